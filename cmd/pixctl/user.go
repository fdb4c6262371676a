package main

import (
	"context"
	"fmt"

	"pix-settlement-bridge/internal/common"
	"pix-settlement-bridge/internal/database"
	"pix-settlement-bridge/internal/models"

	"github.com/spf13/cobra"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Activate and list accounts",
	}
	cmd.AddCommand(userAddCmd())
	cmd.AddCommand(userListCmd())
	return cmd
}

func userAddCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Activate an account with first-day limits and an initial reputation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, _ *models.Config, services *common.Services) error {
				user, err := services.Payments.ActivateUser(ctx, name, email)
				if err != nil {
					return err
				}

				printHeader("USER ACTIVATED")
				fmt.Printf("ID:    %s\n", user.Id)
				fmt.Printf("Name:  %s\n", user.Name)
				fmt.Printf("Email: %s\n", user.Email)
				printFooter("First-day limits apply until the first confirmed deposit")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userListCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activated accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, dbService *database.Service) error {
				users, err := common.ListUsers(ctx, dbService, email)
				if err != nil {
					return err
				}

				printHeader("USERS")
				for i, user := range users {
					isLast := i == len(users)-1
					fmt.Printf("%s %-36s  %-24s %s\n", listPrefix(isLast), user.Id, user.Name, user.Email)
				}
				printFooter(fmt.Sprintf("SUMMARY: %d users", len(users)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Only show the user with this email")
	return cmd
}
