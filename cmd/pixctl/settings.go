package main

import (
	"context"
	"fmt"
	"time"

	"pix-settlement-bridge/internal/config"
	"pix-settlement-bridge/internal/database"

	"github.com/spf13/cobra"
)

// secret settings are never echoed back
var secretSettings = map[string]bool{
	config.SettingProviderToken: true,
	config.SettingWebhookSecret: true,
}

func displayValue(key, value string) string {
	if secretSettings[key] && value != "" {
		return "********"
	}
	return value
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write runtime settings (credentials, tier table, feature flags)",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every stored setting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, dbService *database.Service) error {
				settings, err := dbService.ListSettings(ctx)
				if err != nil {
					return err
				}
				printHeader("SETTINGS")
				for i, s := range settings {
					fmt.Printf("%s %-36s = %s (v%d, updated: %s)\n",
						listPrefix(i == len(settings)-1), s.Key, displayValue(s.Key, s.Value),
						s.Version, s.UpdatedAt.Format(time.DateTime))
				}
				printFooter(fmt.Sprintf("SUMMARY: %d settings", len(settings)))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, dbService *database.Service) error {
				setting, err := dbService.GetSetting(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s = %s (v%d)\n", setting.Key, displayValue(setting.Key, setting.Value), setting.Version)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting; running services pick it up on their next read",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, dbService *database.Service) error {
				setting, err := dbService.PutSetting(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Printf("%s updated to v%d\n", setting.Key, setting.Version)
				return nil
			})
		},
	})
	return cmd
}
