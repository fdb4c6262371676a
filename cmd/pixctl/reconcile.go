package main

import (
	"context"
	"fmt"
	"time"

	"pix-settlement-bridge/internal/common"
	"pix-settlement-bridge/internal/models"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Poll the provider for open transactions",
	}

	var minAge time.Duration
	var batch int
	run := &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, cfg *models.Config, services *common.Services) error {
				if !cmd.Flags().Changed("min-age") {
					minAge = cfg.Listener.ReconcileMinAge
				}
				if !cmd.Flags().Changed("batch") {
					batch = cfg.Listener.ReconcileBatchSize
				}
				result, err := services.Payments.ReconcileOpen(ctx, minAge, batch)
				if result != nil {
					printHeader("RECONCILE")
					fmt.Printf("Checked:  %d\n", result.Checked)
					fmt.Printf("Changed:  %d\n", result.Changed)
					fmt.Printf("Deferred: %d\n", result.Deferred)
					fmt.Printf("Failed:   %d\n", result.Failed)
					printFooter(fmt.Sprintf("Rows younger than %s were left alone", minAge))
				}
				return err
			})
		},
	}
	run.Flags().DurationVar(&minAge, "min-age", 0, "Skip transactions created more recently than this (default from RECONCILE_MIN_AGE)")
	run.Flags().IntVar(&batch, "batch", 0, "Maximum transactions to check (default from RECONCILE_BATCH_SIZE)")
	cmd.AddCommand(run)
	return cmd
}
