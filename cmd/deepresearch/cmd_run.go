package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runFlags struct {
	asJSON bool
}

var runCmd = &cobra.Command{
	Use:   "run <topic>",
	Short: "Research a topic once and print the report",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.asJSON, "json", false, "Print the result envelope as JSON instead of markdown")
}

func runRun(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	topic := strings.Join(args, " ")
	env := eng.orch.RunDeepResearch(cmd.Context(), topic)
	out := cmd.OutOrStdout()

	if runFlags.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(env); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	} else if env.OK() {
		fmt.Fprint(out, env.Report.Markdown())
	}
	if !env.OK() {
		return env.Error
	}
	return nil
}
