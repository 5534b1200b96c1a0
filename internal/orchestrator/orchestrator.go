package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/deepresearch/internal/logging"
	"github.com/danielpatrickdp/deepresearch/internal/metrics"
	"github.com/danielpatrickdp/deepresearch/internal/planner"
	"github.com/danielpatrickdp/deepresearch/internal/research"
	"github.com/danielpatrickdp/deepresearch/internal/retrieval"
	"github.com/danielpatrickdp/deepresearch/internal/synthesis"
)

// #endregion

// #region messages

// Messages returned for internal faults. Raw detail only goes to the log.
const (
	msgInternal        = "internal error while researching topic"
	msgSynthesisFailed = "internal error while synthesizing report"
)

// #endregion

// #region orchestrator-struct

// Orchestrator is the top-level coordinator for planning, concurrent
// retrieval, the sufficiency decision and synthesis. It holds no per-run
// state, so one value serves any number of concurrent runs.
type Orchestrator struct {
	config    Config
	planner   Planner
	retriever *retrieval.Retriever
	synth     Synthesizer
	metrics   *metrics.Recorder
	runLog    RunLogger
	logger    *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithPlanner replaces the default planner.
func WithPlanner(p Planner) Option {
	return func(o *Orchestrator) { o.planner = p }
}

// WithSynthesizer replaces the default synthesizer.
func WithSynthesizer(s Synthesizer) Option {
	return func(o *Orchestrator) { o.synth = s }
}

// WithMetrics records run and retrieval metrics.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRunLog persists one provenance row per finished run.
func WithRunLog(l RunLogger) Option {
	return func(o *Orchestrator) { o.runLog = l }
}

// #endregion

// #region constructor

// New creates a fully wired orchestrator over source.
func New(source research.EvidenceSource, config Config, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if config.OverallTimeout <= 0 {
		config.OverallTimeout = def.OverallTimeout
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = def.MaxConcurrency
	}

	o := &Orchestrator{
		config: config,
		logger: logging.New("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.planner == nil {
		o.planner = planner.New(config.Planner, nil)
	}
	if o.synth == nil {
		o.synth = synthesis.New(config.Synthesis)
	}
	o.retriever = retrieval.NewRetriever(source, config.Retrieval, o.metrics)
	return o
}

// #endregion

// #region run

// RunDeepResearch researches topic and returns a report or a structured
// error. It is the entry point used by the HTTP and MCP surfaces.
func (o *Orchestrator) RunDeepResearch(ctx context.Context, topic string) research.ResultEnvelope {
	return o.Run(ctx, topic)
}

// Run plans, dispatches, collects and synthesizes. Every failure mode,
// including panics in pluggable components, is converted into an error
// envelope; the returned envelope always holds exactly one side.
func (o *Orchestrator) Run(ctx context.Context, topic string) (env research.ResultEnvelope) {
	start := time.Now()
	run := newRun(topic)

	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("run panicked", "run_id", run.ID, "state", run.State(),
				"panic", p, "stack", string(debug.Stack()))
			_ = run.transition(StateFailed)
			env = research.Fail(research.KindInternalError, msgInternal)
		}
		o.finish(run, env, time.Since(start))
	}()

	plan, err := o.planner.Plan(topic)
	if err != nil {
		_ = run.transition(StateFailed)
		if errors.Is(err, research.ErrInvalidTopic) {
			return research.Fail(research.KindInvalidTopic, err.Error())
		}
		o.logger.Error("planner failed", "run_id", run.ID, "error", err)
		return research.Fail(research.KindInternalError, msgInternal)
	}
	if err := checkPlan(plan); err != nil {
		_ = run.transition(StateFailed)
		o.logger.Error("planner returned an unusable plan", "run_id", run.ID, "error", err)
		return research.Fail(research.KindInternalError, msgInternal)
	}
	run.SubQueries = plan

	runCtx, cancel := context.WithTimeout(ctx, o.config.OverallTimeout)
	defer cancel()
	run.Deadline, _ = runCtx.Deadline()

	o.mustTransition(run, StateDispatching)
	o.logger.Info("dispatching", "run_id", run.ID, "subqueries", len(plan),
		"max_concurrency", o.config.MaxConcurrency, "deadline", run.Deadline)
	results := o.dispatch(runCtx, plan)

	o.mustTransition(run, StateCollecting)
	o.collect(runCtx, run, results)
	cancel()

	required := o.minRequired(len(plan))
	succeeded, _ := run.Counts()
	if succeeded < required {
		o.mustTransition(run, StateFailed)
		return research.Fail(research.KindInsufficientEvidence, run.failureSummary(required))
	}

	o.mustTransition(run, StateSynthesizing)
	report, err := o.synthesize(topic, run.Evidence())
	if err != nil {
		o.logger.Error("synthesis failed", "run_id", run.ID, "error", err)
		o.mustTransition(run, StateFailed)
		return research.Fail(research.KindInternalError, msgSynthesisFailed)
	}

	o.mustTransition(run, StateSucceeded)
	return research.Succeed(report)
}

// #endregion

// #region dispatch

// dispatch starts one retrieval per sub-query on a pool bounded by
// MaxConcurrency. The channel is buffered for every sub-query so workers
// never block on a collector that has stopped listening.
func (o *Orchestrator) dispatch(ctx context.Context, plan []research.SubQuery) <-chan research.RetrievalOutcome {
	results := make(chan research.RetrievalOutcome, len(plan))

	var g errgroup.Group
	g.SetLimit(o.config.MaxConcurrency)
	go func() {
		for _, sq := range plan {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				results <- o.retriever.Fetch(ctx, sq)
				return nil
			})
		}
		_ = g.Wait()
	}()

	return results
}

// #endregion

// #region collect

// collect records outcomes until every sub-query has one or the run
// deadline fires. At the deadline the remaining sub-queries are recorded as
// DeadlineExceeded and stragglers are left to finish into the buffer.
func (o *Orchestrator) collect(ctx context.Context, run *ResearchRun, results <-chan research.RetrievalOutcome) {
	for run.pending() > 0 {
		select {
		case out := <-results:
			o.record(run, out)
		case <-ctx.Done():
			o.drain(run, results)
			reason := "run deadline exceeded before retrieval completed"
			if errors.Is(ctx.Err(), context.Canceled) {
				reason = "run cancelled before retrieval completed"
			}
			for _, sq := range run.missing() {
				o.record(run, research.Failed(sq, research.KindDeadlineExceeded, reason, false, 0))
			}
			o.logger.Warn("run deadline reached", "run_id", run.ID, "reason", reason)
			return
		}
	}
}

// drain records outcomes that were already delivered without waiting.
func (o *Orchestrator) drain(run *ResearchRun, results <-chan research.RetrievalOutcome) {
	for run.pending() > 0 {
		select {
		case out := <-results:
			o.record(run, out)
		default:
			return
		}
	}
}

func (o *Orchestrator) record(run *ResearchRun, out research.RetrievalOutcome) {
	if err := run.record(out); err != nil {
		o.logger.Warn("discarding outcome", "run_id", run.ID, "subquery", out.SubQuery.ID, "error", err)
		return
	}
	if out.OK() {
		o.metrics.Outcome("success")
		o.logger.Debug("outcome", "run_id", run.ID, "subquery", out.SubQuery.ID,
			"attempts", out.Attempts, "result", "success")
		return
	}
	o.metrics.Outcome(string(out.Failure.Kind))
	o.logger.Debug("outcome", "run_id", run.ID, "subquery", out.SubQuery.ID,
		"attempts", out.Attempts, "result", out.Failure.Kind, "reason", out.Failure.Reason)
}

// #endregion

// #region policy

// minRequired applies the sufficiency policy for n dispatched sub-queries:
// the configured minimum, or a majority when unset, clamped to [1, n].
func (o *Orchestrator) minRequired(n int) int {
	need := o.config.MinSuccessfulEvidence
	if need <= 0 {
		need = n/2 + 1
	}
	if need > n {
		need = n
	}
	if need < 1 {
		need = 1
	}
	return need
}

// #endregion

// checkPlan rejects plans the run cannot track: empty plans, IDs that are
// not plan indexes, and blank sub-query text.
func checkPlan(plan []research.SubQuery) error {
	if len(plan) == 0 {
		return errors.New("plan has no sub-queries")
	}
	for i, sq := range plan {
		if sq.ID != i {
			return fmt.Errorf("sub-query %d has id %d", i, sq.ID)
		}
		if strings.TrimSpace(sq.Text) == "" {
			return fmt.Errorf("sub-query %d has empty text", i)
		}
	}
	return nil
}

// #endregion

// #region synthesize

// synthesize calls the synthesizer, converting a panic into an error.
func (o *Orchestrator) synthesize(topic string, evidence []research.Evidence) (report research.Report, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("synthesizer panicked: %v", p)
		}
	}()
	return o.synth.Synthesize(topic, evidence)
}

// #endregion

// #region finish

func (o *Orchestrator) mustTransition(run *ResearchRun, to State) {
	if err := run.transition(to); err != nil {
		panic(err)
	}
}

// finish records metrics and provenance for a run that has resolved.
func (o *Orchestrator) finish(run *ResearchRun, env research.ResultEnvelope, elapsed time.Duration) {
	status := string(StateSucceeded)
	errKind := ""
	if !env.OK() {
		status = string(StateFailed)
		if env.Error != nil {
			errKind = string(env.Error.Kind)
		}
	}
	succeeded, failed := run.Counts()

	o.metrics.RunFinished(status, elapsed)
	o.logger.Info("run finished", "run_id", run.ID, "status", status, "error_kind", errKind,
		"subqueries", len(run.SubQueries), "succeeded", succeeded, "failed", failed, "elapsed", elapsed)

	if o.runLog == nil {
		return
	}
	entry := logging.RunEntry{
		RunID:      run.ID,
		TopicHash:  logging.TopicHash(run.Topic),
		Status:     status,
		ErrorKind:  errKind,
		SubQueries: len(run.SubQueries),
		Succeeded:  succeeded,
		Failed:     failed,
		Duration:   elapsed,
	}
	if len(run.SubQueries) > 0 {
		entry.MinRequired = o.minRequired(len(run.SubQueries))
	}
	if err := o.runLog.LogRun(entry); err != nil {
		o.logger.Warn("failed to log run", "run_id", run.ID, "error", err)
	}
}

// #endregion
