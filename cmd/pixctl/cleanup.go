package main

import (
	"context"
	"fmt"
	"time"

	"pix-settlement-bridge/internal/common"
	"pix-settlement-bridge/internal/models"

	"github.com/spf13/cobra"
)

func cleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Expire stale unconfirmed transactions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, _ *models.Config, services *common.Services) error {
				result, err := services.Payments.RunCleanup(ctx)
				if err != nil {
					return err
				}
				printHeader("CLEANUP")
				fmt.Printf("Cutoff:   %s\n", result.Cutoff.Format(time.DateTime))
				fmt.Printf("Examined: %d\n", result.Examined)
				fmt.Printf("Expired:  %d\n", result.Expired)
				fmt.Printf("Failed:   %d\n", result.Failed)
				printFooter(fmt.Sprintf("Completed in %s", result.Duration))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show how many transactions the next sweep would expire",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, cfg *models.Config, services *common.Services) error {
				stats, err := services.Payments.CleanupStats(ctx)
				if err != nil {
					return err
				}
				printHeader(fmt.Sprintf("CLEANUP STATS (timeout %s)", cfg.Listener.CleanupTimeout))
				fmt.Printf("Open:             %d\n", stats.TotalPending)
				fmt.Printf("Ready to expire:  %d\n", stats.ReadyToExpire)
				fmt.Printf("Recently opened:  %d\n", stats.RecentlyPending)
				fmt.Printf("Already expired:  %d\n", stats.AlreadyExpired)
				printFooter("Cutoff: "+stats.Cutoff.Format(time.DateTime))
				return nil
			})
		},
	})
	return cmd
}
