package main

import (
	"context"
	"fmt"
	"strconv"

	"pix-settlement-bridge/internal/common"
	"pix-settlement-bridge/internal/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func reputationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reputation",
		Short: "Inspect and override reputation tiers",
	}
	cmd.AddCommand(reputationShowCmd())
	cmd.AddCommand(reputationSetTierCmd())
	return cmd
}

func reputationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id|email>",
		Short: "Show a user's reputation record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, _ *models.Config, services *common.Services) error {
				user, err := common.ResolveUser(ctx, services.DbService, args[0])
				if err != nil {
					return err
				}
				rep, err := services.Payments.GetReputation(ctx, user.Id)
				if err != nil {
					return err
				}
				printReputation(user, rep)
				return nil
			})
		},
	}
}

func reputationSetTierCmd() *cobra.Command {
	var dailyLimit string
	cmd := &cobra.Command{
		Use:   "set-tier <user-id|email> <tier>",
		Short: "Force a user onto a tier, optionally with a custom daily limit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid tier %q: %w", args[1], err)
			}
			var custom *decimal.Decimal
			if cmd.Flags().Changed("daily-limit") {
				d, err := decimal.NewFromString(dailyLimit)
				if err != nil {
					return fmt.Errorf("invalid --daily-limit %q: %w", dailyLimit, err)
				}
				custom = &d
			}
			return withServices(cmd, func(ctx context.Context, _ *models.Config, services *common.Services) error {
				user, err := common.ResolveUser(ctx, services.DbService, args[0])
				if err != nil {
					return err
				}
				rep, err := services.Payments.SetReputationTier(ctx, user.Id, tier, custom)
				if err != nil {
					return err
				}
				printReputation(user, rep)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dailyLimit, "daily-limit", "", "Daily limit to record instead of the tier default")
	return cmd
}

func printReputation(user *models.User, rep *models.UserReputation) {
	printBoxTitle("Reputation: %s (%s)", user.Name, user.Email)
	fmt.Printf("│  Score:           %s\n", rep.ReputationScore.StringFixed(2))
	fmt.Printf("│  Tier:            %d\n", rep.LimitTier)
	fmt.Printf("│  Daily limit:     %s\n", formatBRL(rep.CurrentDailyLimit))
	fmt.Printf("│  Next threshold:  %s\n", rep.NextLimitThreshold.StringFixed(2))
	fmt.Printf("│  Approved volume: %s\n", formatBRL(rep.TotalApprovedVolume))
	fmt.Printf("└  Approved/rejected: %d/%d\n", rep.TotalApprovedCount, rep.TotalRejectedCount)
}
