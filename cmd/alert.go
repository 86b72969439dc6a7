package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/n0ne0ther/ma-scanner/internal/config"
	"github.com/n0ne0ther/ma-scanner/internal/notify"
)

var alertTestCmd = &cobra.Command{
	Use:   "alert-test",
	Short: "Send a test message to the configured Telegram chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		n, err := notify.New(notify.TelegramConfig{
			Token:  cfg.Secrets.TelegramToken,
			ChatID: cfg.Secrets.TelegramChatID,
		}, appLog)
		if err != nil {
			return err
		}
		if err := n.Notify(cmd.Context(), notify.TestMessage); err != nil {
			if errors.Is(err, notify.ErrNotConfigured) {
				return fmt.Errorf("%w: set TELEGRAM_TOKEN and TELEGRAM_CHAT_ID in the environment or .env", err)
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Test alert sent.")
		return nil
	},
}
