package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/deepresearch/internal/logging"
	"github.com/danielpatrickdp/deepresearch/internal/planner"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id        TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	url           TEXT,
	body          TEXT NOT NULL,
	keywords      TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
`
// #endregion schema

// ErrNotFound is returned when a document ID has no row.
var ErrNotFound = errors.New("document not found")

// #region store-struct
// Store holds the document corpus and the run log in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := logging.EnsureRunLog(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion close

// #region add-document
// AddDocument stores doc and returns it with its ID, keywords and timestamp
// filled in. An empty DocID gets a fresh UUID.
func (s *Store) AddDocument(doc Document) (Document, error) {
	doc.Title = strings.TrimSpace(doc.Title)
	doc.Body = strings.TrimSpace(doc.Body)
	if doc.Body == "" {
		return Document{}, errors.New("document body is empty")
	}
	if doc.Title == "" {
		doc.Title = firstLine(doc.Body)
	}
	if doc.DocID == "" {
		doc.DocID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.Keywords = planner.Keywords(doc.Title + " " + doc.Body)

	kwJSON, err := json.Marshal(doc.Keywords)
	if err != nil {
		return Document{}, fmt.Errorf("marshal keywords: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO documents (doc_id, title, url, body, keywords, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(doc_id) DO UPDATE SET
		   title = excluded.title, url = excluded.url, body = excluded.body,
		   keywords = excluded.keywords`,
		doc.DocID, doc.Title, nullIfEmpty(doc.URL), doc.Body, string(kwJSON),
		doc.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}
// #endregion add-document

// #region get-document
// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(id string) (Document, error) {
	row := s.db.QueryRow(
		`SELECT doc_id, title, url, body, keywords, created_at FROM documents WHERE doc_id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}
// #endregion get-document

// #region list-documents
// Documents returns every stored document, oldest first. A limit <= 0
// returns all rows.
func (s *Store) Documents(limit int) ([]Document, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT doc_id, title, url, body, keywords, created_at
		 FROM documents ORDER BY created_at ASC, doc_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document. Deleting a missing ID is an error.
func (s *Store) DeleteDocument(id string) error {
	res, err := s.db.Exec(`DELETE FROM documents WHERE doc_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
// #endregion list-documents

// #region run-log
// LogRun appends a run entry to the run log.
func (s *Store) LogRun(entry logging.RunEntry) error {
	return logging.LogRun(s.db, entry)
}

// RecentRuns returns up to limit run log entries, newest first.
func (s *Store) RecentRuns(limit int) ([]logging.RunEntry, error) {
	return logging.RecentRuns(s.db, limit)
}
// #endregion run-log

// #region helpers
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (Document, error) {
	var doc Document
	var url sql.NullString
	var kwJSON, createdStr string
	if err := sc.Scan(&doc.DocID, &doc.Title, &url, &doc.Body, &kwJSON, &createdStr); err != nil {
		return Document{}, err
	}
	if url.Valid {
		doc.URL = url.String
	}
	if err := json.Unmarshal([]byte(kwJSON), &doc.Keywords); err != nil {
		return Document{}, fmt.Errorf("unmarshal keywords: %w", err)
	}
	doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return doc, nil
}

func firstLine(body string) string {
	line, _, _ := strings.Cut(body, "\n")
	line = strings.TrimSpace(line)
	if r := []rune(line); len(r) > 80 {
		line = string(r[:80])
	}
	return line
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
