package main

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_CorpusRunAndRuns(t *testing.T) {
	t.Setenv("DEEPRESEARCH_SOURCE", "corpus")
	t.Setenv("DEEPRESEARCH_DB", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("DEEPRESEARCH_OVERALL_TIMEOUT", "10s")

	out, err := execute(t, "Coral reefs host a quarter of marine species. Reef health depends on water temperature.",
		"corpus", "add", "--title", "Coral reefs", "--url", "https://reef.example")
	if err != nil {
		t.Fatalf("corpus add: %v", err)
	}
	if !strings.Contains(out, `"Coral reefs"`) {
		t.Errorf("unexpected add output: %s", out)
	}

	out, err = execute(t, "", "corpus", "list")
	if err != nil {
		t.Fatalf("corpus list: %v", err)
	}
	if !strings.Contains(out, "https://reef.example") {
		t.Errorf("list missing document: %s", out)
	}

	out, err = execute(t, "", "run", "coral", "reefs")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out, "# Research report: coral reefs") {
		t.Errorf("unexpected report:\n%s", out)
	}
	if !strings.Contains(out, "https://reef.example") {
		t.Errorf("report missing reference:\n%s", out)
	}

	_, err = execute(t, "", "run", "volcanic", "glass")
	if err == nil || !strings.Contains(err.Error(), "insufficient_evidence") {
		t.Errorf("expected insufficient evidence error, got %v", err)
	}

	out, err = execute(t, "", "runs", "--limit", "5")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, "succeeded") || !strings.Contains(out, "insufficient_evidence") {
		t.Errorf("runs table missing entries:\n%s", out)
	}
}

func TestCLI_BadConfig(t *testing.T) {
	t.Setenv("DEEPRESEARCH_SOURCE", "telepathy")
	if _, err := execute(t, "", "runs"); err == nil {
		t.Error("expected validation error for unknown source kind")
	}
}
