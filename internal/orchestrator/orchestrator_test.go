package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/deepresearch/internal/logging"
	"github.com/danielpatrickdp/deepresearch/internal/metrics"
	"github.com/danielpatrickdp/deepresearch/internal/planner"
	"github.com/danielpatrickdp/deepresearch/internal/research"
	"github.com/danielpatrickdp/deepresearch/internal/retrieval"
)

// #region helpers

// fixedPlanner returns q0..q{n-1} for any non-empty topic.
type fixedPlanner int

func (n fixedPlanner) Plan(topic string) ([]research.SubQuery, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("%w: topic is empty", research.ErrInvalidTopic)
	}
	plan := make([]research.SubQuery, int(n))
	for i := range plan {
		plan[i] = research.SubQuery{ID: i, Text: fmt.Sprintf("q%d", i)}
	}
	return plan, nil
}

// stubSource dispatches on the query text and counts calls.
type stubSource struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, query string, call int) (research.Evidence, error)
}

func newStub(fn func(ctx context.Context, query string, call int) (research.Evidence, error)) *stubSource {
	return &stubSource{calls: make(map[string]int), fn: fn}
}

func (s *stubSource) Retrieve(ctx context.Context, query string) (research.Evidence, error) {
	s.mu.Lock()
	s.calls[query]++
	n := s.calls[query]
	s.mu.Unlock()
	return s.fn(ctx, query, n)
}

func (s *stubSource) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for _, n := range s.calls {
		sum += n
	}
	return sum
}

func (s *stubSource) callsFor(q string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[q]
}

func evidenceFor(query string) research.Evidence {
	return research.Evidence{Text: "findings for " + query, Origin: "stub://" + query}
}

func succeedOnly(ok ...string) func(context.Context, string, int) (research.Evidence, error) {
	set := make(map[string]bool)
	for _, q := range ok {
		set[q] = true
	}
	return func(_ context.Context, q string, _ int) (research.Evidence, error) {
		if set[q] {
			return evidenceFor(q), nil
		}
		return research.Evidence{}, research.Permanentf("no results for %s", q)
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.OverallTimeout = 2 * time.Second
	cfg.MaxConcurrency = 5
	cfg.Retrieval = retrieval.Config{
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		AttemptTimeout: time.Second,
	}
	return cfg
}

func headings(r *research.Report) []string {
	var out []string
	for _, s := range r.Sections {
		out = append(out, s.Heading)
	}
	return out
}

type recordingLog struct {
	mu      sync.Mutex
	entries []logging.RunEntry
}

func (l *recordingLog) LogRun(e logging.RunEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

// #endregion helpers

// #region topic-tests

func TestRun_InvalidTopicNoDispatch(t *testing.T) {
	src := newStub(succeedOnly())
	o := New(src, testConfig())

	for _, topic := range []string{"", "   ", strings.Repeat("x", 501)} {
		env := o.Run(context.Background(), topic)
		if !env.Valid() || env.OK() {
			t.Fatalf("expected error envelope for %q", topic[:min(len(topic), 10)])
		}
		if env.Error.Kind != research.KindInvalidTopic {
			t.Errorf("expected invalid_topic, got %s", env.Error.Kind)
		}
	}
	if n := src.total(); n != 0 {
		t.Errorf("expected no evidence calls, got %d", n)
	}
}

// #endregion topic-tests

// #region success-tests

func TestRun_AllSucceedOrderedByPlan(t *testing.T) {
	// q0 finishes last and q4 first: completion order is the reverse of plan order.
	src := newStub(func(ctx context.Context, q string, _ int) (research.Evidence, error) {
		var idx int
		fmt.Sscanf(q, "q%d", &idx)
		select {
		case <-time.After(time.Duration(5-idx) * 15 * time.Millisecond):
		case <-ctx.Done():
			return research.Evidence{}, ctx.Err()
		}
		return evidenceFor(q), nil
	})
	o := New(src, testConfig(), WithPlanner(fixedPlanner(5)))

	env := o.Run(context.Background(), "ordering")
	if !env.OK() {
		t.Fatalf("expected report, got %+v", env.Error)
	}
	want := []string{"q0", "q1", "q2", "q3", "q4"}
	if diff := cmp.Diff(want, headings(env.Report)); diff != "" {
		t.Errorf("section order mismatch (-want +got):\n%s", diff)
	}
	for i, sec := range env.Report.Sections {
		if sec.Body != "findings for "+want[i] {
			t.Errorf("section %d has body %q", i, sec.Body)
		}
	}
}

func TestRun_DefaultPlannerEndToEnd(t *testing.T) {
	src := newStub(func(_ context.Context, q string, _ int) (research.Evidence, error) {
		return evidenceFor(q), nil
	})
	cfg := testConfig()
	cfg.Planner = planner.Config{MaxSubQueries: 3}
	env := New(src, cfg).Run(context.Background(), "deep sea mining")

	if !env.OK() {
		t.Fatalf("expected report, got %+v", env.Error)
	}
	if len(env.Report.Sections) != 3 || src.total() != 3 {
		t.Errorf("expected 3 sections from 3 calls, got %d sections and %d calls",
			len(env.Report.Sections), src.total())
	}
	if env.Report.Title != "Research report: deep sea mining" {
		t.Errorf("unexpected title %q", env.Report.Title)
	}
}

// #endregion success-tests

// #region sufficiency-tests

func TestRun_InsufficientEvidence(t *testing.T) {
	src := newStub(succeedOnly("q2"))
	cfg := testConfig()
	cfg.MinSuccessfulEvidence = 3
	env := New(src, cfg, WithPlanner(fixedPlanner(5))).Run(context.Background(), "sparse")

	if env.OK() || env.Report != nil {
		t.Fatal("expected no report")
	}
	if env.Error.Kind != research.KindInsufficientEvidence {
		t.Fatalf("expected insufficient_evidence, got %s", env.Error.Kind)
	}
	for _, want := range []string{"1 of 5 sub-queries succeeded, 3 required", `[0] "q0"`, "no results for q4"} {
		if !strings.Contains(env.Error.Message, want) {
			t.Errorf("message missing %q: %s", want, env.Error.Message)
		}
	}
	if strings.Contains(env.Error.Message, `"q2"`) {
		t.Errorf("successful sub-query should not be listed as a failure: %s", env.Error.Message)
	}
}

func TestRun_ExactlyMinimumSucceeds(t *testing.T) {
	src := newStub(succeedOnly("q1", "q3", "q4"))
	cfg := testConfig()
	cfg.MinSuccessfulEvidence = 3
	env := New(src, cfg, WithPlanner(fixedPlanner(5))).Run(context.Background(), "threshold")

	if !env.OK() {
		t.Fatalf("expected report, got %+v", env.Error)
	}
	if diff := cmp.Diff([]string{"q1", "q3", "q4"}, headings(env.Report)); diff != "" {
		t.Errorf("report should hold only successful sub-queries (-want +got):\n%s", diff)
	}
}

func TestRun_DefaultMajority(t *testing.T) {
	cfg := testConfig()

	env := New(newStub(succeedOnly("q0", "q1")), cfg, WithPlanner(fixedPlanner(5))).
		Run(context.Background(), "majority")
	if env.OK() {
		t.Error("2 of 5 is not a majority")
	}

	env = New(newStub(succeedOnly("q0", "q1", "q2")), cfg, WithPlanner(fixedPlanner(5))).
		Run(context.Background(), "majority")
	if !env.OK() {
		t.Errorf("3 of 5 is a majority, got %+v", env.Error)
	}
}

func TestMinRequired(t *testing.T) {
	cases := []struct {
		configured, n, want int
	}{
		{0, 1, 1},
		{0, 4, 3},
		{0, 5, 3},
		{2, 5, 2},
		{9, 3, 3},
		{-1, 2, 2},
	}
	for _, c := range cases {
		o := &Orchestrator{config: Config{MinSuccessfulEvidence: c.configured}}
		if got := o.minRequired(c.n); got != c.want {
			t.Errorf("minRequired(configured=%d, n=%d) = %d, want %d", c.configured, c.n, got, c.want)
		}
	}
}

// #endregion sufficiency-tests

// #region retry-tests

func TestRun_RetryableThenSuccessCounts(t *testing.T) {
	src := newStub(func(_ context.Context, q string, call int) (research.Evidence, error) {
		if q == "q1" && call == 1 {
			return research.Evidence{}, research.Retryablef("http 429")
		}
		return evidenceFor(q), nil
	})
	cfg := testConfig()
	cfg.MinSuccessfulEvidence = 3
	env := New(src, cfg, WithPlanner(fixedPlanner(3))).Run(context.Background(), "flaky")

	if !env.OK() {
		t.Fatalf("expected report, got %+v", env.Error)
	}
	if got := src.callsFor("q1"); got != 2 {
		t.Errorf("expected 2 calls for q1, got %d", got)
	}
	if diff := cmp.Diff([]string{"q0", "q1", "q2"}, headings(env.Report)); diff != "" {
		t.Errorf("retried sub-query should count as success:\n%s", diff)
	}
}

// #endregion retry-tests

// #region deadline-tests

func TestRun_DeadlineWithStragglers(t *testing.T) {
	// q3 and q4 ignore cancellation entirely; collection must not wait for them.
	src := newStub(func(_ context.Context, q string, _ int) (research.Evidence, error) {
		if q == "q3" || q == "q4" {
			time.Sleep(time.Second)
		}
		return evidenceFor(q), nil
	})
	cfg := testConfig()
	cfg.OverallTimeout = 100 * time.Millisecond
	cfg.MinSuccessfulEvidence = 3
	o := New(src, cfg, WithPlanner(fixedPlanner(5)))

	start := time.Now()
	env := o.Run(context.Background(), "slow")
	elapsed := time.Since(start)

	if elapsed > 700*time.Millisecond {
		t.Errorf("run waited for stragglers: %v", elapsed)
	}
	if !env.OK() {
		t.Fatalf("expected report from the 3 fast sub-queries, got %+v", env.Error)
	}
	if diff := cmp.Diff([]string{"q0", "q1", "q2"}, headings(env.Report)); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_DeadlineLeavesInsufficientEvidence(t *testing.T) {
	src := newStub(func(ctx context.Context, q string, _ int) (research.Evidence, error) {
		if q == "q0" {
			return evidenceFor(q), nil
		}
		<-ctx.Done()
		return research.Evidence{}, ctx.Err()
	})
	cfg := testConfig()
	cfg.OverallTimeout = 50 * time.Millisecond
	env := New(src, cfg, WithPlanner(fixedPlanner(3))).Run(context.Background(), "timeout")

	if env.OK() {
		t.Fatal("expected failure")
	}
	if env.Error.Kind != research.KindInsufficientEvidence {
		t.Fatalf("expected insufficient_evidence, got %s", env.Error.Kind)
	}
	if strings.Count(env.Error.Message, string(research.KindDeadlineExceeded)) != 2 {
		t.Errorf("expected two deadline_exceeded outcomes: %s", env.Error.Message)
	}
}

func TestRun_CallerCancellation(t *testing.T) {
	src := newStub(func(ctx context.Context, _ string, _ int) (research.Evidence, error) {
		<-ctx.Done()
		return research.Evidence{}, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	env := New(src, testConfig(), WithPlanner(fixedPlanner(2))).Run(ctx, "cancelled")
	if env.OK() || env.Error.Kind != research.KindInsufficientEvidence {
		t.Fatalf("expected insufficient_evidence, got %+v", env)
	}
}

// #endregion deadline-tests

// #region concurrency-tests

func TestRun_MaxConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	src := newStub(func(_ context.Context, q string, _ int) (research.Evidence, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return evidenceFor(q), nil
	})
	cfg := testConfig()
	cfg.MaxConcurrency = 2
	env := New(src, cfg, WithPlanner(fixedPlanner(5))).Run(context.Background(), "bounded")

	if !env.OK() {
		t.Fatalf("expected report, got %+v", env.Error)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("expected at most 2 calls in flight, saw %d", p)
	}
	if src.total() != 5 {
		t.Errorf("expected 5 calls, got %d", src.total())
	}
}

func TestRun_ConcurrentRunsIndependent(t *testing.T) {
	src := newStub(func(_ context.Context, q string, _ int) (research.Evidence, error) {
		time.Sleep(5 * time.Millisecond)
		return evidenceFor(q), nil
	})
	o := New(src, testConfig(), WithPlanner(fixedPlanner(4)))

	var wg sync.WaitGroup
	envs := make([]research.ResultEnvelope, 8)
	for i := range envs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			envs[i] = o.Run(context.Background(), fmt.Sprintf("topic %d", i))
		}()
	}
	wg.Wait()

	for i, env := range envs {
		if !env.OK() {
			t.Fatalf("run %d failed: %+v", i, env.Error)
		}
		if len(env.Report.Sections) != 4 {
			t.Errorf("run %d has %d sections", i, len(env.Report.Sections))
		}
		if env.Report.Title != fmt.Sprintf("Research report: topic %d", i) {
			t.Errorf("run %d got another run's report: %q", i, env.Report.Title)
		}
	}
}

// #endregion concurrency-tests

// #region fault-tests

type panickingSynth struct{}

func (panickingSynth) Synthesize(string, []research.Evidence) (research.Report, error) {
	panic("secret internal detail")
}

type failingSynth struct{}

func (failingSynth) Synthesize(string, []research.Evidence) (research.Report, error) {
	return research.Report{}, errors.New("template missing")
}

type panickingPlanner struct{}

func (panickingPlanner) Plan(string) ([]research.SubQuery, error) {
	panic("planner bug")
}

func TestRun_SynthesizerPanicBecomesInternalError(t *testing.T) {
	src := newStub(succeedOnly("q0", "q1"))
	env := New(src, testConfig(), WithPlanner(fixedPlanner(2)), WithSynthesizer(panickingSynth{})).
		Run(context.Background(), "boom")

	if !env.Valid() || env.OK() {
		t.Fatal("expected error envelope")
	}
	if env.Error.Kind != research.KindInternalError {
		t.Errorf("expected internal_error, got %s", env.Error.Kind)
	}
	if strings.Contains(env.Error.Message, "secret") {
		t.Errorf("panic detail leaked: %q", env.Error.Message)
	}
}

func TestRun_SynthesizerErrorBecomesInternalError(t *testing.T) {
	src := newStub(succeedOnly("q0"))
	env := New(src, testConfig(), WithPlanner(fixedPlanner(1)), WithSynthesizer(failingSynth{})).
		Run(context.Background(), "boom")
	if env.OK() || env.Error.Kind != research.KindInternalError {
		t.Fatalf("expected internal_error, got %+v", env)
	}
	if strings.Contains(env.Error.Message, "template") {
		t.Errorf("error detail leaked: %q", env.Error.Message)
	}
}

func TestRun_PlannerPanicBecomesInternalError(t *testing.T) {
	src := newStub(succeedOnly())
	env := New(src, testConfig(), WithPlanner(panickingPlanner{})).Run(context.Background(), "boom")
	if env.OK() || env.Error.Kind != research.KindInternalError {
		t.Fatalf("expected internal_error, got %+v", env)
	}
	if src.total() != 0 {
		t.Error("no retrieval should happen after a planner fault")
	}
}

type planFunc func(string) ([]research.SubQuery, error)

func (f planFunc) Plan(topic string) ([]research.SubQuery, error) { return f(topic) }

func TestRun_UnusablePlanRejectedBeforeDispatch(t *testing.T) {
	plans := map[string][]research.SubQuery{
		"ids not plan indexes": {{ID: 1, Text: "q0"}, {ID: 2, Text: "q1"}},
		"blank text":           {{ID: 0, Text: "q0"}, {ID: 1, Text: "  "}},
		"empty plan":           nil,
	}
	for name, plan := range plans {
		t.Run(name, func(t *testing.T) {
			src := newStub(succeedOnly("q0", "q1"))
			o := New(src, testConfig(), WithPlanner(planFunc(func(string) ([]research.SubQuery, error) {
				return plan, nil
			})))

			start := time.Now()
			env := o.Run(context.Background(), "topic")
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("run waited %v on a plan it cannot track", elapsed)
			}
			if env.OK() || env.Error.Kind != research.KindInternalError {
				t.Fatalf("expected internal_error, got %+v", env)
			}
			if src.total() != 0 {
				t.Errorf("expected no retrieval, got %d calls", src.total())
			}
		})
	}
}

func TestRun_SourcePanicIsLocalFailure(t *testing.T) {
	src := newStub(func(_ context.Context, q string, _ int) (research.Evidence, error) {
		if q == "q1" {
			panic("driver crashed")
		}
		return evidenceFor(q), nil
	})
	env := New(src, testConfig(), WithPlanner(fixedPlanner(3))).Run(context.Background(), "panic")
	if !env.OK() {
		t.Fatalf("one panicking sub-query should not fail the run: %+v", env.Error)
	}
	if diff := cmp.Diff([]string{"q0", "q2"}, headings(env.Report)); diff != "" {
		t.Errorf("sections mismatch:\n%s", diff)
	}
}

// #endregion fault-tests

// #region observability-tests

func TestRun_LogsProvenanceAndMetrics(t *testing.T) {
	runLog := &recordingLog{}
	rec := metrics.New()
	cfg := testConfig()
	cfg.MinSuccessfulEvidence = 2
	o := New(newStub(succeedOnly("q0", "q2")), cfg,
		WithPlanner(fixedPlanner(3)), WithRunLog(runLog), WithMetrics(rec))

	if env := o.Run(context.Background(), "audited"); !env.OK() {
		t.Fatalf("expected report, got %+v", env.Error)
	}
	o.Run(context.Background(), "")

	if len(runLog.entries) != 2 {
		t.Fatalf("expected 2 run log entries, got %d", len(runLog.entries))
	}
	ok := runLog.entries[0]
	if ok.Status != "succeeded" || ok.Succeeded != 2 || ok.Failed != 1 || ok.MinRequired != 2 {
		t.Errorf("unexpected success entry %+v", ok)
	}
	if ok.TopicHash != logging.TopicHash("audited") || ok.RunID == "" {
		t.Errorf("entry missing identity: %+v", ok)
	}
	bad := runLog.entries[1]
	if bad.Status != "failed" || bad.ErrorKind != string(research.KindInvalidTopic) || bad.SubQueries != 0 {
		t.Errorf("unexpected failure entry %+v", bad)
	}
}

// #endregion observability-tests
