package main

import (
	"context"
	"fmt"

	"pix-settlement-bridge/internal/common"
	"pix-settlement-bridge/internal/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func limitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Inspect and adjust per-user transaction limits",
	}
	cmd.AddCommand(limitsShowCmd())
	cmd.AddCommand(limitsAdjustCmd())
	cmd.AddCommand(limitsUserActionCmd("reset-first-day", "Put a user back on first-day limits",
		func(ctx context.Context, services *common.Services, userId string) (*models.UserLimit, error) {
			return services.Payments.ResetFirstDay(ctx, userId)
		}))
	cmd.AddCommand(limitsUserActionCmd("apply-verified", "Grant the verified profile to a KYC-approved user",
		func(ctx context.Context, services *common.Services, userId string) (*models.UserLimit, error) {
			return services.Payments.ApplyVerifiedLimits(ctx, userId)
		}))
	return cmd
}

func limitsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id|email>",
		Short: "Show limits and current usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, _ *models.Config, services *common.Services) error {
				user, err := common.ResolveUser(ctx, services.DbService, args[0])
				if err != nil {
					return err
				}
				summary, err := services.Payments.GetLimitsSummary(ctx, user.Id)
				if err != nil {
					return err
				}

				printHeader(fmt.Sprintf("LIMITS: %s (%s)", user.Name, user.Email))
				fmt.Printf("First day: %t   KYC verified: %t   High risk: %t\n",
					summary.IsFirstDay, summary.IsKycVerified, summary.IsHighRiskUser)
				printBoxSeparator()
				for i, txType := range models.TransactionTypes {
					isLast := i == len(models.TransactionTypes)-1
					l := summary.Limits.For(txType)
					fmt.Printf("%s %-9s per-tx %12s  daily %12s / %-12s  monthly %12s / %s\n",
						listPrefix(isLast), txType,
						l.PerTransaction.StringFixed(2),
						summary.DailyUsage[txType].StringFixed(2), l.Daily.StringFixed(2),
						summary.MonthlyUsage[txType].StringFixed(2), l.Monthly.StringFixed(2))
				}
				printFooter("Usage counts completed and in-flight transactions")
				return nil
			})
		},
	}
}

func limitsAdjustCmd() *cobra.Command {
	var (
		typeName                string
		perTx, daily, monthly   string
		firstDay, kyc, highRisk bool
	)
	cmd := &cobra.Command{
		Use:   "adjust <user-id|email>",
		Short: "Override limits or flags for one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := buildOverrides(cmd, typeName, perTx, daily, monthly, firstDay, kyc, highRisk)
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, _ *models.Config, services *common.Services) error {
				user, err := common.ResolveUser(ctx, services.DbService, args[0])
				if err != nil {
					return err
				}
				limit, err := services.Payments.AdjustLimits(ctx, user.Id, overrides)
				if err != nil {
					return err
				}
				printUserLimit(limit)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "deposit", "Transaction type the amount overrides apply to")
	cmd.Flags().StringVar(&perTx, "per-tx", "", "Per-transaction cap")
	cmd.Flags().StringVar(&daily, "daily", "", "Daily cap")
	cmd.Flags().StringVar(&monthly, "monthly", "", "Monthly cap")
	cmd.Flags().BoolVar(&firstDay, "first-day", false, "Set the first-day flag")
	cmd.Flags().BoolVar(&kyc, "kyc", false, "Set the KYC-verified flag")
	cmd.Flags().BoolVar(&highRisk, "high-risk", false, "Set the high-risk flag")
	return cmd
}

func buildOverrides(cmd *cobra.Command, typeName, perTx, daily, monthly string, firstDay, kyc, highRisk bool) (models.LimitOverrides, error) {
	var overrides models.LimitOverrides

	amounts := &models.TypeLimitOverrides{}
	changed := false
	for _, f := range []struct {
		flag  string
		value string
		dst   **decimal.Decimal
	}{
		{"per-tx", perTx, &amounts.PerTransaction},
		{"daily", daily, &amounts.Daily},
		{"monthly", monthly, &amounts.Monthly},
	} {
		if !cmd.Flags().Changed(f.flag) {
			continue
		}
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return overrides, fmt.Errorf("invalid --%s %q: %w", f.flag, f.value, err)
		}
		*f.dst = &d
		changed = true
	}
	if changed {
		txType, err := models.ParseTransactionType(typeName)
		if err != nil {
			return overrides, err
		}
		switch txType {
		case models.TransactionTypeDeposit:
			overrides.Deposit = amounts
		case models.TransactionTypeWithdraw:
			overrides.Withdraw = amounts
		case models.TransactionTypeTransfer:
			overrides.Transfer = amounts
		}
	}

	if cmd.Flags().Changed("first-day") {
		overrides.IsFirstDay = &firstDay
	}
	if cmd.Flags().Changed("kyc") {
		overrides.IsKycVerified = &kyc
	}
	if cmd.Flags().Changed("high-risk") {
		overrides.IsHighRiskUser = &highRisk
	}
	return overrides, nil
}

func limitsUserActionCmd(use, short string, action func(ctx context.Context, services *common.Services, userId string) (*models.UserLimit, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id|email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, _ *models.Config, services *common.Services) error {
				user, err := common.ResolveUser(ctx, services.DbService, args[0])
				if err != nil {
					return err
				}
				limit, err := action(ctx, services, user.Id)
				if err != nil {
					return err
				}
				printUserLimit(limit)
				return nil
			})
		},
	}
}

func printUserLimit(limit *models.UserLimit) {
	printBoxTitle("Limits for %s", limit.UserId)
	fmt.Printf("│  First day: %t   KYC verified: %t   High risk: %t\n",
		limit.IsFirstDay, limit.IsKycVerified, limit.IsHighRiskUser)
	printBoxSeparator()
	for i, txType := range models.TransactionTypes {
		l := limit.Limits.For(txType)
		fmt.Printf("%s %-9s per-tx %12s  daily %12s  monthly %12s\n",
			listPrefix(i == len(models.TransactionTypes)-1), txType,
			l.PerTransaction.StringFixed(2), l.Daily.StringFixed(2), l.Monthly.StringFixed(2))
	}
}
