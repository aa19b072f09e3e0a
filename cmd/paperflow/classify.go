// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paperflow/internal/classify"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <url>...",
	Short: "Print the research domain of each URL",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		for _, u := range args {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", classify.Domain(u), u)
		}
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
