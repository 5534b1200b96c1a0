package retrieval

import "time"

// #region config
// Config holds the retry and timeout policy for one sub-query retrieval.
type Config struct {
	MaxAttempts    int           // total source calls, including the first
	BackoffBase    time.Duration // delay before retry n is BackoffBase * 2^n
	MaxBackoff     time.Duration // cap on a single backoff delay
	AttemptTimeout time.Duration // per-call slice of the run budget
	MaxEvidenceLen int           // max runes of evidence text kept
}

// DefaultConfig returns sensible defaults for retrieval.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BackoffBase:    200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		AttemptTimeout: 10 * time.Second,
		MaxEvidenceLen: 4000,
	}
}

// #endregion config
