package main

import (
	"github.com/spf13/cobra"

	"consensus-backend/internal/llm"
)

var frameworksFormat string

var frameworksCmd = &cobra.Command{
	Use:   "frameworks",
	Short: "List the available analysis frameworks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(frameworksFormat); err != nil {
			return err
		}
		return writeFrameworks(cmd.OutOrStdout(), frameworksFormat, llm.Frameworks())
	},
}

func init() {
	frameworksCmd.Flags().StringVarP(&frameworksFormat, "format", "f", formatText, "Output format (text, json, yaml)")
}
