package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ArionMiles/homeledger/pkg/client"
	"github.com/ArionMiles/homeledger/pkg/notify/gmail"
)

// runSetup runs the OAuth flow that lets the daemon send notification email.
func runSetup(logger *slog.Logger, args []string) error {
	fs, configPath := newFlags("setup")
	force := fs.Bool("force", false, "re-authenticate even if a token exists")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	fmt.Println("=== homeledger Setup ===")
	fmt.Println()

	if _, err := os.Stat(cfg.ClientSecret); os.IsNotExist(err) {
		return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
			"1. Go to https://console.cloud.google.com/apis/credentials\n"+
			"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
			"3. Download the JSON file and save it as '%s'", cfg.ClientSecret, cfg.ClientSecret)
	}

	auth := client.Authenticator{
		SecretPath:  cfg.ClientSecret,
		TokenPath:   cfg.TokenFile,
		Scopes:      gmail.Scopes,
		Interactive: true,
		Logger:      logger,
	}

	if auth.HasToken() {
		if !*force {
			fmt.Printf("Already authenticated! Token file exists: %s\n", cfg.TokenFile)
			fmt.Println()
			fmt.Println("To re-authenticate, run: homeledger setup -force")
			return nil
		}
		if err := os.Remove(cfg.TokenFile); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove existing token", "error", err)
		}
		fmt.Println("Forcing re-authentication...")
		fmt.Println()
	}

	fmt.Println("This will set up OAuth authentication with Google.")
	fmt.Println()
	fmt.Println("Required permissions:")
	fmt.Println("  - Gmail: Send email (overdue reminders and weekly summaries)")
	fmt.Println()
	fmt.Println("Starting authentication...")
	fmt.Println()

	ctx, cancel := signalContext(logger)
	defer cancel()

	if _, err := auth.Client(ctx); err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Println()
	fmt.Println("=== Setup Complete ===")
	fmt.Println()
	fmt.Printf("Token saved to: %s\n", cfg.TokenFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Set HOMELEDGER_NOTIFIER=gmail and HOMELEDGER_NOTIFY_TO=<address>")
	fmt.Println("  2. Run 'homeledger status' to verify, then 'homeledger run'")
	fmt.Println()

	return nil
}
