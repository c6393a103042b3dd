package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "consensusctl",
	Short: "Multi-provider strategic analysis from the command line",
	Long: `consensusctl runs strategic-analysis frameworks (SWOT, PESTEL, ...) against
several AI providers in-process and prints the merged consensus.

Provider credentials come from the same environment variables as the API
server. Use --demo to run with canned provider output.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(frameworksCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
