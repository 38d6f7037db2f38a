// Package cmd wires the CLI: an interactive chat loop, a one-shot ask
// command, and version reporting.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "memo",
	Short: "A diary companion that remembers",
	Long: `memo is a personal diary companion with long-term memory.

It keeps a private, per-session memory of what you tell it: durable facts,
life-topic snapshots, rolling daily/weekly/monthly summaries, and wellbeing
metrics. Conversations retrieve exactly the memory they need.

Configuration lives in ~/.memo/config.yaml; set GEMINI_API_KEY (and optional
GEMINI_API_KEY_2, _3, ...) in the environment.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
