// Package main provides the intake CLI entry point.
// intake runs the CRM email intake service and its operator commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brightlane/crm-intake/cmd"
	"github.com/brightlane/crm-intake/pkg/buildinfo"
)

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "CRM email intake service",
	Long: `intake processes inbound email for a small-office CRM.

Each email is normalized, enriched with CRM context, analyzed by an LLM for
intent, summary, and task/deal recommendations, and either auto-approved or
queued for human review based on the analysis confidence.

COMMON WORKFLOWS:
  Run the service:      intake serve
  Process one email:    intake process --eml message.eml
  Review the queue:     intake pending
  Apply a decision:     intake decide <id> --tasks 0,1 --deals 0
  Store an API key:     intake auth set-key --provider openai`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(c *cobra.Command, args []string) {
		fmt.Printf("intake %s\n", buildinfo.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cmd.ConfigFile, "config", "", "config file (default is ~/.crm-intake/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&cmd.Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(cmd.ServeCmd)
	rootCmd.AddCommand(cmd.ProcessCmd)
	rootCmd.AddCommand(cmd.PendingCmd)
	rootCmd.AddCommand(cmd.DecideCmd)
	rootCmd.AddCommand(cmd.AuthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
