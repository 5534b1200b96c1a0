package store

import "time"

// #region document
// Document is one entry in the local research corpus.
type Document struct {
	DocID     string
	Title     string
	URL       string
	Body      string
	Keywords  []string
	CreatedAt time.Time
}
// #endregion document
