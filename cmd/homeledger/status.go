package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/ArionMiles/homeledger/pkg/client"
	"github.com/ArionMiles/homeledger/pkg/config"
	"github.com/ArionMiles/homeledger/pkg/logging"
	"github.com/ArionMiles/homeledger/pkg/notify/gmail"
	"github.com/ArionMiles/homeledger/pkg/scheduler"
	"github.com/ArionMiles/homeledger/pkg/store/postgres"
)

// runStatus checks configuration, storage and authorization.
func runStatus(_ *slog.Logger, args []string) error {
	fs, configPath := newFlags("status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Println("=== homeledger Status ===")
	fmt.Println()

	allGood := true

	fmt.Print("Configuration: ")
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		printFinalStatus(false)
		return nil
	}
	fmt.Printf("✓ store=%s notifier=%s timezone=%s\n", cfg.Store, cfg.Notifier, cfg.Timezone)

	checkSchedules(cfg, &allGood)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	checkStore(ctx, cfg, &allGood)
	if cfg.Notifier == config.NotifierGmail {
		checkGmail(ctx, cfg, &allGood)
	} else {
		fmt.Println("Notifications: ✓ written to the log")
	}

	printFinalStatus(allGood)
	return nil
}

func checkSchedules(cfg config.Config, allGood *bool) {
	fmt.Print("Schedules: ")
	loc, _ := cfg.Location()
	_, err := scheduler.New(nil, scheduler.Config{
		Location: loc,
		Daily:    cfg.DailySchedule,
		Weekly:   cfg.WeeklySchedule,
		Monthly:  cfg.MonthlySchedule,
	}, logging.Discard())
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	fmt.Printf("✓ daily %q, weekly %q, monthly %q\n", cfg.DailySchedule, cfg.WeeklySchedule, cfg.MonthlySchedule)
}

func checkStore(ctx context.Context, cfg config.Config, allGood *bool) {
	fmt.Print("Store: ")
	if cfg.Store != config.StorePostgres {
		fmt.Println("⚠ in-memory, data is lost on exit")
		return
	}

	s, err := postgres.New(ctx, postgres.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Database: cfg.Database,
		User:     cfg.User,
		Password: cfg.Password,
		SSLMode:  cfg.SSLMode,
	}, logging.Discard())
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	defer s.Close()
	fmt.Printf("✓ connected to %s:%d/%s\n", cfg.Host, cfg.Port, cfg.Database)
}

func checkGmail(ctx context.Context, cfg config.Config, allGood *bool) {
	fmt.Printf("Credentials file (%s): ", cfg.ClientSecret)
	if _, err := os.Stat(cfg.ClientSecret); os.IsNotExist(err) {
		fmt.Println("✗ Not found")
		*allGood = false
	} else {
		fmt.Println("✓ Found")
	}

	fmt.Printf("OAuth token (%s): ", cfg.TokenFile)
	token, err := checkToken(cfg.TokenFile)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	if token.Expiry.Before(time.Now()) {
		fmt.Println("⚠ Expired (will refresh on next run)")
	} else {
		fmt.Printf("✓ Valid (expires: %s)\n", token.Expiry.Format(time.RFC3339))
	}

	fmt.Print("Gmail API: ")
	httpClient, err := client.Authenticator{
		SecretPath: cfg.ClientSecret,
		TokenPath:  cfg.TokenFile,
		Scopes:     gmail.Scopes,
		Logger:     logging.Discard(),
	}.Client(ctx)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	// The send scope cannot read the mailbox, so only the service is built.
	if _, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient)); err != nil {
		fmt.Printf("✗ %v\n", err)
		*allGood = false
		return
	}
	fmt.Printf("✓ Ready to send to %s\n", cfg.NotifyTo)
}

func checkToken(tokenPath string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("not found (run 'homeledger setup')")
		}
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid format")
	}
	return &token, nil
}

func printFinalStatus(allGood bool) {
	fmt.Println()
	if allGood {
		fmt.Println("Status: ✓ Ready to run")
		fmt.Println()
		fmt.Println("Run 'homeledger run' to start the scheduler.")
	} else {
		fmt.Println("Status: ✗ Configuration issues detected")
		fmt.Println()
		fmt.Println("Fix the issues above, then run 'homeledger status' again.")
	}
}
