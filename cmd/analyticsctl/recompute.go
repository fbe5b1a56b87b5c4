package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	rcFrom    string
	rcTo      string
	rcChannel string
)

func init() {
	recomputeCmd.Flags().StringVar(&rcFrom, "from", "", "first business day, YYYY-MM-DD (required)")
	recomputeCmd.Flags().StringVar(&rcTo, "to", "", "last business day, YYYY-MM-DD (defaults to --from)")
	recomputeCmd.Flags().StringVar(&rcChannel, "channel", "", "channel id (defaults to every active channel)")
	_ = recomputeCmd.MarkFlagRequired("from")
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Rebuild channel metric rows for a date range",
	Long: `Rebuild channel metric rows for every (channel, day) in the range.

Examples:
  # Backfill March for every active channel
  analyticsctl recompute --from 2026-03-01 --to 2026-03-31

  # One channel, one day
  analyticsctl recompute --from 2026-03-15 --channel 6f1c...`,
	RunE: runRecompute,
}

func runRecompute(cmd *cobra.Command, _ []string) error {
	_, svcs, err := services()
	if err != nil {
		return err
	}
	loc := svcs.Metrics.Location()

	from, err := time.ParseInLocation("2006-01-02", rcFrom, loc)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to := from
	if rcTo != "" {
		if to, err = time.ParseInLocation("2006-01-02", rcTo, loc); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}
	var channelID *uuid.UUID
	if rcChannel != "" {
		id, err := uuid.Parse(rcChannel)
		if err != nil {
			return fmt.Errorf("--channel: %w", err)
		}
		channelID = &id
	}

	report, err := svcs.Metrics.RecomputeRange(cmd.Context(), from, to, channelID)
	if err != nil {
		return err
	}
	if len(report.Failures) > 0 {
		log.Warn().Int("failures", len(report.Failures)).Msg("some units failed")
	}
	return printJSON(report)
}
