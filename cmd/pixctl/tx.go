package main

import (
	"context"
	"fmt"

	"pix-settlement-bridge/internal/common"
	"pix-settlement-bridge/internal/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func txCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Create deposits and check their status",
	}
	cmd.AddCommand(txCreateCmd())
	cmd.AddCommand(txStatusCmd())
	return cmd
}

func txCreateCmd() *cobra.Command {
	var amount, destination, description string
	cmd := &cobra.Command{
		Use:   "create <user-id|email>",
		Short: "Request a PIX deposit and print its payment code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid --amount %q: %w", amount, err)
			}
			return withServices(cmd, func(ctx context.Context, _ *models.Config, services *common.Services) error {
				user, err := common.ResolveUser(ctx, services.DbService, args[0])
				if err != nil {
					return err
				}
				result, err := services.Payments.CreateTransaction(ctx, models.CreateTransactionRequest{
					UserId:      user.Id,
					Type:        models.TransactionTypeDeposit,
					Amount:      value,
					Destination: destination,
					Description: description,
				})
				if err != nil {
					return err
				}

				printHeader("DEPOSIT REQUESTED")
				fmt.Printf("Transaction: %s\n", result.TransactionId)
				fmt.Printf("Status:      %s\n", result.Status)
				fmt.Printf("Amount:      %s\n", formatBRL(value))
				if result.QRImageURL != "" {
					fmt.Printf("QR image:    %s\n", result.QRImageURL)
				}
				printRule()
				fmt.Println(result.QRCopyPaste)
				printFooter("Pay the code above, then run: pixctl tx status "+args[0]+" "+result.TransactionId)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in BRL, at most two decimal places")
	cmd.Flags().StringVar(&destination, "destination", "", "Wallet address that receives the settled asset")
	cmd.Flags().StringVar(&description, "description", "", "Optional note shown to the payer")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("destination")
	return cmd
}

func txStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <user-id|email> <transaction-id>",
		Short: "Reconcile one transaction against the provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, _ *models.Config, services *common.Services) error {
				user, err := common.ResolveUser(ctx, services.DbService, args[0])
				if err != nil {
					return err
				}
				result, err := services.Payments.CheckStatus(ctx, user.Id, args[1])
				if err != nil {
					return err
				}
				printStatus(result)
				return nil
			})
		},
	}
}

func printStatus(result *models.StatusResult) {
	printBoxTitle("Transaction %s", result.TransactionId)
	fmt.Printf("│  Status:    %s\n", result.Status)
	fmt.Printf("│  Amount:    %s\n", formatBRL(result.Amount))
	fmt.Printf("│  Processed: %s\n", formatTime(result.ProcessedAt))
	fmt.Printf("│  Changed:   %t   Can poll: %t   Retry later: %t\n", result.Changed, result.CanPoll, result.ShouldRetry)
	fmt.Printf("└  %s\n", result.Message)
}
