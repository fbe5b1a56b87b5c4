package main

import (
	"github.com/spf13/cobra"
)

var refreshSegmentsCmd = &cobra.Command{
	Use:   "refresh-segments",
	Short: "Re-classify every client against the current date",
	Long: `Re-classify every client's segment. Visits already move clients between
segments; this catches clients who became lost through inactivity alone.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, svcs, err := services()
		if err != nil {
			return err
		}
		changed, err := svcs.Ledger.RefreshSegments(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(map[string]int{"changed": changed})
	},
}
