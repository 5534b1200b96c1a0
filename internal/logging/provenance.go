package logging

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// #region schema
// RunLogSchema creates the run_log table. Stores that host the run log
// execute it alongside their own migrations.
const RunLogSchema = `
CREATE TABLE IF NOT EXISTS run_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	topic_hash    TEXT NOT NULL,
	status        TEXT NOT NULL,
	error_kind    TEXT,
	subqueries    INTEGER NOT NULL,
	succeeded     INTEGER NOT NULL,
	failed        INTEGER NOT NULL,
	min_required  INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL,
	created_at    TEXT NOT NULL
);
`

// EnsureRunLog runs RunLogSchema against db.
func EnsureRunLog(db *sql.DB) error {
	if _, err := db.Exec(RunLogSchema); err != nil {
		return fmt.Errorf("migrate run_log: %w", err)
	}
	return nil
}
// #endregion schema

// #region log-run
// LogRun writes a run entry to the run_log table.
func LogRun(db *sql.DB, entry RunEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO run_log (run_id, topic_hash, status, error_kind, subqueries, succeeded, failed, min_required, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.TopicHash,
		entry.Status,
		nullIfEmpty(entry.ErrorKind),
		entry.SubQueries,
		entry.Succeeded,
		entry.Failed,
		entry.MinRequired,
		entry.Duration.Milliseconds(),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log run: %w", err)
	}
	return nil
}
// #endregion log-run

// #region recent-runs
// RecentRuns returns up to limit entries, newest first.
func RecentRuns(db *sql.DB, limit int) ([]RunEntry, error) {
	rows, err := db.Query(
		`SELECT run_id, topic_hash, status, COALESCE(error_kind, ''), subqueries, succeeded, failed, min_required, duration_ms, created_at
		 FROM run_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query run_log: %w", err)
	}
	defer rows.Close()

	var out []RunEntry
	for rows.Next() {
		var e RunEntry
		var durMS int64
		var created string
		if err := rows.Scan(&e.RunID, &e.TopicHash, &e.Status, &e.ErrorKind,
			&e.SubQueries, &e.Succeeded, &e.Failed, &e.MinRequired, &durMS, &created); err != nil {
			return nil, fmt.Errorf("scan run_log: %w", err)
		}
		e.Duration = time.Duration(durMS) * time.Millisecond
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion recent-runs

// #region helpers
// TopicHash returns a stable, non-reversible key for a topic so the run log
// can group runs without keeping the caller's text.
func TopicHash(topic string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(topic))))
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
