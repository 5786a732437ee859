package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"donations/internal/domain"
	"donations/internal/infrastructure/cache"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild the campaign total from its seed and contribution ledger",
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

			svc := buildServices(db, cfg, "", cache.NewMemoryCache(), logger)
			if err := svc.campaigns.Ensure(ctx); err != nil {
				return err
			}
			before, after, err := svc.campaigns.Reconcile(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "campaign %s: %.2f -> %.2f GHS (drift %.2f)\n",
				cfg.Campaign.ID,
				domain.FromMinorUnits(before),
				domain.FromMinorUnits(after),
				domain.FromMinorUnits(after-before),
			)
			return nil
		},
	}
}
