package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"donations/internal/infrastructure/cache"
)

func replayCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "replay-webhooks",
		Short: "Re-run webhook events whose processing failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			db, err := connectDB(ctx, cfg, logger, 3)
			if err != nil {
				return err
			}
			defer db.Close()

			// Replay re-applies stored payloads that were authenticated on receipt.
			svc := buildServices(db, cfg, "", cache.NewMemoryCache(), logger)
			report, err := svc.donations.ReplayFailed(ctx, limit)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "replayed: %d processed, %d failed, %d skipped\n",
				report.Processed, report.Failed, report.Skipped)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of failed events to replay")
	return cmd
}
