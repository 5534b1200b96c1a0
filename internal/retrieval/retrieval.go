package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/danielpatrickdp/deepresearch/internal/logging"
	"github.com/danielpatrickdp/deepresearch/internal/metrics"
	"github.com/danielpatrickdp/deepresearch/internal/research"
)

// #region retriever
// Retriever wraps one EvidenceSource with retry, backoff and timeouts.
// It holds no per-call state and is safe for concurrent use.
type Retriever struct {
	source  research.EvidenceSource
	config  Config
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewRetriever creates a Retriever over source. Non-positive config values
// fall back to DefaultConfig; MaxEvidenceLen < 0 disables truncation.
func NewRetriever(source research.EvidenceSource, config Config, rec *metrics.Recorder) *Retriever {
	def := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = def.BackoffBase
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = def.AttemptTimeout
	}
	if config.MaxEvidenceLen == 0 {
		config.MaxEvidenceLen = def.MaxEvidenceLen
	}
	return &Retriever{
		source:  source,
		config:  config,
		metrics: rec,
		logger:  logging.New("retriever"),
	}
}

// #endregion retriever

// #region fetch
// Fetch retrieves evidence for one sub-query. The run budget is ctx's
// deadline. Every exit path is a RetrievalOutcome; source panics are
// recovered into a non-retryable failure.
func (r *Retriever) Fetch(ctx context.Context, sq research.SubQuery) (out research.RetrievalOutcome) {
	attempts := 0
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("evidence source panicked", "subquery", sq.ID, "panic", p)
			out = research.Failed(sq, research.KindRetrievalFailure,
				fmt.Sprintf("evidence source panicked: %v", p), false, attempts)
		}
	}()

	var lastErr error
	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return budgetSpent(ctx, sq, attempts)
		}

		attempts++
		ev, err := r.attempt(ctx, sq.Text)
		if err == nil {
			ev, err = r.consistencyCheck(ev)
		}
		if err == nil {
			r.logger.Debug("retrieved", "subquery", sq.ID, "attempt", attempts, "origin", ev.Origin)
			return research.Succeeded(sq, ev, attempts)
		}
		if ctx.Err() != nil {
			return budgetSpent(ctx, sq, attempts)
		}

		lastErr = err
		if !research.IsRetryable(err) {
			r.logger.Debug("permanent failure", "subquery", sq.ID, "attempt", attempts, "error", err)
			return research.Failed(sq, research.KindRetrievalFailure, err.Error(), false, attempts)
		}
		if attempts == r.config.MaxAttempts {
			break
		}

		delay := r.backoff(attempt)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= delay {
			return research.Failed(sq, research.KindDeadlineExceeded,
				fmt.Sprintf("run budget exhausted before retry %d: %v", attempts+1, err), false, attempts)
		}
		r.logger.Debug("retrying", "subquery", sq.ID, "attempt", attempts, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return budgetSpent(ctx, sq, attempts)
		case <-timer.C:
		}
	}

	return research.Failed(sq, research.KindRetrievalFailure,
		fmt.Sprintf("gave up after %d attempts: %v", attempts, lastErr), true, attempts)
}

// #endregion fetch

// #region attempt
func (r *Retriever) attempt(ctx context.Context, query string) (research.Evidence, error) {
	actx, cancel := context.WithTimeout(ctx, r.config.AttemptTimeout)
	defer cancel()

	done := r.metrics.AttemptStarted()
	defer done()

	return r.source.Retrieve(actx, query)
}

// backoff returns BackoffBase * 2^attempt, capped at MaxBackoff.
func (r *Retriever) backoff(attempt int) time.Duration {
	d := r.config.BackoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= r.config.MaxBackoff {
			return r.config.MaxBackoff
		}
	}
	if d > r.config.MaxBackoff {
		return r.config.MaxBackoff
	}
	return d
}

// #endregion attempt

// #region consistency-check
// consistencyCheck rejects evidence with no text and trims overlong text.
func (r *Retriever) consistencyCheck(ev research.Evidence) (research.Evidence, error) {
	ev.Text = strings.TrimSpace(ev.Text)
	if ev.Text == "" {
		return ev, research.Permanentf("evidence source returned empty text")
	}
	if r.config.MaxEvidenceLen > 0 {
		if runes := []rune(ev.Text); len(runes) > r.config.MaxEvidenceLen {
			ev.Text = strings.TrimSpace(string(runes[:r.config.MaxEvidenceLen]))
		}
	}
	return ev, nil
}

// #endregion consistency-check

// #region helpers
func budgetSpent(ctx context.Context, sq research.SubQuery, attempts int) research.RetrievalOutcome {
	reason := "run deadline exceeded"
	if errors.Is(ctx.Err(), context.Canceled) {
		reason = "run cancelled"
	}
	return research.Failed(sq, research.KindDeadlineExceeded, reason, false, attempts)
}

// #endregion helpers
