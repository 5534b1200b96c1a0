package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/deepresearch/internal/store"
)

var runsFlags struct {
	limit    int
	markdown bool
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recently finished research runs from the run log",
	RunE:  runRuns,
}

func init() {
	f := runsCmd.Flags()
	f.IntVarP(&runsFlags.limit, "limit", "n", 20, "Maximum runs to show")
	f.BoolVar(&runsFlags.markdown, "markdown", false, "Render as a markdown table")
}

func runRuns(cmd *cobra.Command, _ []string) error {
	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	runs, err := st.RecentRuns(runsFlags.limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	t := newTable(runsFlags.markdown, "Run", "When", "Status", "Error", "OK/Total", "Min", "Duration")
	for _, r := range runs {
		t.row(r.RunID[:min(len(r.RunID), 8)], r.CreatedAt.Local().Format(time.DateTime), r.Status, r.ErrorKind,
			fmt.Sprintf("%d/%d", r.Succeeded, r.SubQueries), r.MinRequired, r.Duration.Round(time.Millisecond))
	}
	t.alignRight(5, 6, 7)
	fmt.Fprintln(out, t.String())
	return nil
}
