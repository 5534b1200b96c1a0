package logging

import "time"

// #region run-entry
// RunEntry is a single row in the run_log table.
// It records how a run resolved; the report body itself is never stored.
type RunEntry struct {
	RunID       string
	TopicHash   string
	Status      string // "succeeded" | "failed"
	ErrorKind   string
	SubQueries  int
	Succeeded   int
	Failed      int
	MinRequired int
	Duration    time.Duration
	CreatedAt   time.Time
}
// #endregion run-entry
