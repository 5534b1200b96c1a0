package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/deepresearch/internal/config"
	"github.com/danielpatrickdp/deepresearch/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// cfg is loaded once in PersistentPreRunE and read by every subcommand.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "deepresearch",
	Short: "Concurrent deep-research engine",
	Long: "deepresearch decomposes a topic into sub-queries, gathers evidence for them\n" +
		"concurrently from a web search, gRPC or local corpus source, and synthesizes\n" +
		"a cited report. Partial failure is tolerated up to a sufficiency threshold.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(rootFlags.configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = rootFlags.logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.Log.Format = rootFlags.logFormat
		}
		cfg = loaded
		logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootFlags.configPath, "config", "c", os.Getenv("DEEPRESEARCH_CONFIG"), "Path to YAML config file")
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(corpusCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
