package planner

import (
	"errors"
	"strings"
	"testing"

	"github.com/danielpatrickdp/deepresearch/internal/research"
	"github.com/google/go-cmp/cmp"
)

// #region validation-tests

func TestPlan_EmptyTopic(t *testing.T) {
	p := New(DefaultConfig(), nil)
	for _, topic := range []string{"", "   ", "\n\t"} {
		_, err := p.Plan(topic)
		if !errors.Is(err, research.ErrInvalidTopic) {
			t.Errorf("Plan(%q): expected ErrInvalidTopic, got %v", topic, err)
		}
	}
}

func TestPlan_OverLengthTopic(t *testing.T) {
	p := New(Config{MaxSubQueries: 3, MaxTopicLength: 10}, nil)
	_, err := p.Plan("this topic is far too long")
	if !errors.Is(err, research.ErrInvalidTopic) {
		t.Fatalf("expected ErrInvalidTopic, got %v", err)
	}
	if !strings.Contains(err.Error(), "limit is 10") {
		t.Errorf("expected limit in message, got %q", err.Error())
	}
}

func TestPlan_LengthCountsRunes(t *testing.T) {
	p := New(Config{MaxTopicLength: 5}, nil)
	if _, err := p.Plan("ééééé"); err != nil {
		t.Errorf("5 runes should fit a limit of 5: %v", err)
	}
}

func TestPlan_NothingDerived(t *testing.T) {
	p := New(DefaultConfig(), DecomposerFunc(func(string) []string { return []string{" ", ""} }))
	_, err := p.Plan("anything")
	if !errors.Is(err, research.ErrInvalidTopic) {
		t.Fatalf("expected ErrInvalidTopic, got %v", err)
	}
}

// #endregion validation-tests

// #region plan-tests

func TestPlan_BoundedAndIndexed(t *testing.T) {
	p := New(Config{MaxSubQueries: 4}, nil)
	plan, err := p.Plan("quantum computing")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) != 4 {
		t.Fatalf("expected 4 sub-queries, got %d", len(plan))
	}
	for i, sq := range plan {
		if sq.ID != i {
			t.Errorf("sub-query %d has ID %d", i, sq.ID)
		}
		if sq.Text == "" {
			t.Errorf("sub-query %d is empty", i)
		}
	}
	if plan[0].Text != "quantum computing" {
		t.Errorf("first sub-query should be the topic itself, got %q", plan[0].Text)
	}
}

func TestPlan_DistinctIgnoringCase(t *testing.T) {
	dec := DecomposerFunc(func(topic string) []string {
		return []string{topic, "Solar Power", "solar  power", "SOLAR POWER costs", "solar power costs"}
	})
	plan, err := New(DefaultConfig(), dec).Plan("solar power")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	got := make([]string, len(plan))
	for i, sq := range plan {
		got[i] = sq.Text
	}
	want := []string{"solar power", "SOLAR POWER costs"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_Deterministic(t *testing.T) {
	p := New(DefaultConfig(), nil)
	a, err := p.Plan("coral reef bleaching and ocean acidification")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	b, _ := p.Plan("coral reef bleaching and ocean acidification")
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("plans differ between calls:\n%s", diff)
	}
}

func TestPlan_CompoundTopicSplits(t *testing.T) {
	plan, err := New(Config{MaxSubQueries: 6}, nil).Plan("coral reef bleaching and ocean acidification")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) < 3 {
		t.Fatalf("expected at least 3 sub-queries, got %d", len(plan))
	}
	if plan[1].Text != "coral reef bleaching" || plan[2].Text != "ocean acidification" {
		t.Errorf("expected compound parts after topic, got %q and %q", plan[1].Text, plan[2].Text)
	}
}

func TestPlan_CommaListSplits(t *testing.T) {
	plan, err := New(Config{MaxSubQueries: 6}, nil).Plan("solar power, wind turbines, tidal energy")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := []string{"solar power", "wind turbines", "tidal energy"}
	for i, w := range want {
		if plan[i+1].Text != w {
			t.Errorf("sub-query %d = %q, want %q", i+1, plan[i+1].Text, w)
		}
	}
}

func TestPlan_TruncatesAtWordBoundary(t *testing.T) {
	dec := DecomposerFunc(func(string) []string {
		return []string{"alpha beta gamma delta"}
	})
	plan, err := New(Config{MaxSubQueryLength: 13}, dec).Plan("x")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan[0].Text != "alpha beta" {
		t.Errorf("expected word-boundary cut, got %q", plan[0].Text)
	}
}

// #endregion plan-tests

// #region decomposer-tests

func TestFacetDecomposer_UsesKeywordCore(t *testing.T) {
	out := FacetDecomposer{}.Decompose("What is the history of the printing press?")
	found := false
	for _, c := range out {
		if c == "history printing press overview" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected keyword-core facet, got %v", out)
	}
}

func TestSplitCompound_RequiresKeywords(t *testing.T) {
	if parts := splitCompound("rock and roll"); len(parts) != 2 {
		t.Errorf("expected two parts, got %v", parts)
	}
	if parts := splitCompound("this and that"); parts != nil {
		t.Errorf("stopword-only parts should not split, got %v", parts)
	}
	if parts := splitCompound("solar power, wind turbines, tidal energy"); len(parts) != 3 || parts[2] != "tidal energy" {
		t.Errorf("expected three comma-separated parts, got %v", parts)
	}
	if parts := splitCompound("solar power, and the"); parts != nil {
		t.Errorf("part without keywords should block the split, got %v", parts)
	}
	if parts := splitCompound("single topic"); parts != nil {
		t.Errorf("non-compound topic should not split, got %v", parts)
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("How does the Web3 economy work in 2024? The economy!")
	want := []string{"web3", "economy", "work", "2024"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("keywords mismatch (-want +got):\n%s", diff)
	}
	if n := SharedKeywords(got, []string{"economy", "2024", "mars"}); n != 2 {
		t.Errorf("expected 2 shared keywords, got %d", n)
	}
}

// #endregion decomposer-tests
