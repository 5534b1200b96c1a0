package orchestrator

// #region imports
import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/deepresearch/internal/research"
)

// #endregion

// #region errors

var (
	ErrRunClosed        = errors.New("run already reached a terminal state")
	ErrDuplicateOutcome = errors.New("sub-query already has an outcome")
	ErrUnknownSubQuery  = errors.New("outcome for a sub-query outside the plan")
)

// #endregion

// #region run

// ResearchRun is the state of one invocation. It is owned by a single Run
// call and never shared between runs; outcomes are recorded only by the
// collecting goroutine.
type ResearchRun struct {
	ID         string
	Topic      string
	SubQueries []research.SubQuery
	Deadline   time.Time

	state    State
	outcomes map[int]research.RetrievalOutcome
}

func newRun(topic string) *ResearchRun {
	return &ResearchRun{
		ID:       uuid.NewString(),
		Topic:    topic,
		state:    StatePlanning,
		outcomes: make(map[int]research.RetrievalOutcome),
	}
}

// State returns the current lifecycle stage.
func (r *ResearchRun) State() State {
	return r.state
}

// transition moves the run to the next state. Terminal states are final.
func (r *ResearchRun) transition(to State) error {
	if r.state.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrRunClosed, r.state, to)
	}
	if !slices.Contains(transitions[r.state], to) {
		return fmt.Errorf("illegal run transition %s -> %s", r.state, to)
	}
	r.state = to
	return nil
}

// record stores one outcome keyed by sub-query ID.
func (r *ResearchRun) record(out research.RetrievalOutcome) error {
	if r.state.Terminal() {
		return ErrRunClosed
	}
	id := out.SubQuery.ID
	if id < 0 || id >= len(r.SubQueries) {
		return fmt.Errorf("%w: %d", ErrUnknownSubQuery, id)
	}
	if _, ok := r.outcomes[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateOutcome, id)
	}
	r.outcomes[id] = out
	return nil
}

// pending returns how many sub-queries have no outcome yet.
func (r *ResearchRun) pending() int {
	return len(r.SubQueries) - len(r.outcomes)
}

// missing returns the sub-queries without an outcome, in plan order.
func (r *ResearchRun) missing() []research.SubQuery {
	var out []research.SubQuery
	for _, sq := range r.SubQueries {
		if _, ok := r.outcomes[sq.ID]; !ok {
			out = append(out, sq)
		}
	}
	return out
}

// Outcomes returns recorded outcomes in plan order.
func (r *ResearchRun) Outcomes() []research.RetrievalOutcome {
	out := make([]research.RetrievalOutcome, 0, len(r.outcomes))
	for _, o := range r.outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubQuery.ID < out[j].SubQuery.ID })
	return out
}

// Evidence returns successful evidence in plan order.
func (r *ResearchRun) Evidence() []research.Evidence {
	var ev []research.Evidence
	for _, o := range r.Outcomes() {
		if o.OK() {
			ev = append(ev, *o.Evidence)
		}
	}
	return ev
}

// Counts returns successful and failed outcome counts.
func (r *ResearchRun) Counts() (succeeded, failed int) {
	for _, o := range r.outcomes {
		if o.OK() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// #endregion

// #region summary

// failureSummary explains an insufficient-evidence decision.
func (r *ResearchRun) failureSummary(required int) string {
	succeeded, _ := r.Counts()
	var b strings.Builder
	fmt.Fprintf(&b, "insufficient evidence: %d of %d sub-queries succeeded, %d required",
		succeeded, len(r.SubQueries), required)
	for _, o := range r.Outcomes() {
		if o.OK() {
			continue
		}
		fmt.Fprintf(&b, "; [%d] %q: %s: %s", o.SubQuery.ID, o.SubQuery.Text, o.Failure.Kind, o.Failure.Reason)
	}
	return b.String()
}

// #endregion
