// Package gmail delivers notification digests as email through the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ArionMiles/homeledger/pkg/api"
	"github.com/ArionMiles/homeledger/pkg/notify/buffered"
)

// Scopes lists the OAuth scopes the sender needs.
var Scopes = []string{gmail.GmailSendScope}

// Default retry settings for rate-limited sends.
const (
	DefaultAttempts   = 3
	DefaultRetryDelay = 60 * time.Second
)

// Config holds configuration for the Gmail sender.
type Config struct {
	// To is the recipient address for every digest.
	To string
	// SubjectPrefix is prepended to each digest subject. Defaults to "homeledger".
	SubjectPrefix string
	// Attempts is the number of send attempts on rate limiting. Defaults to DefaultAttempts.
	Attempts uint
	// RetryDelay is the base delay between attempts. Defaults to DefaultRetryDelay.
	RetryDelay time.Duration
	// Endpoint overrides the Gmail API base URL.
	Endpoint string
}

// Sender emails one digest per household for each batch it is given.
type Sender struct {
	svc    *gmail.Service
	cfg    Config
	logger *slog.Logger
}

// New creates a Gmail sender using an authorized HTTP client.
func New(ctx context.Context, httpClient *http.Client, cfg Config, logger *slog.Logger) (*Sender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.To == "" {
		return nil, fmt.Errorf("%w: recipient address is required", api.ErrValidation)
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "homeledger"
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return &Sender{svc: svc, cfg: cfg, logger: logger}, nil
}

// Send groups batch by household and sends one message per group.
// It matches buffered.Flusher: when some digests fail, the error is a
// *buffered.PartialError holding only their notifications.
func (s *Sender) Send(ctx context.Context, batch []api.Notification) error {
	groups := make(map[string][]api.Notification)
	for _, n := range batch {
		groups[n.HouseholdID] = append(groups[n.HouseholdID], n)
	}

	households := make([]string, 0, len(groups))
	for h := range groups {
		households = append(households, h)
	}
	sort.Strings(households)

	var (
		errs        []error
		undelivered []api.Notification
	)
	for _, household := range households {
		if err := s.sendDigest(ctx, household, groups[household]); err != nil {
			s.logger.Error("failed to send digest", "household", household, "error", err)
			errs = append(errs, err)
			undelivered = append(undelivered, groups[household]...)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &buffered.PartialError{Undelivered: undelivered, Err: errors.Join(errs...)}
}

func (s *Sender) sendDigest(ctx context.Context, household string, items []api.Notification) error {
	msg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(s.compose(household, items))),
	}

	err := retry.Do(
		func() error {
			_, err := s.svc.Users.Messages.Send("me", msg).Context(ctx).Do()
			return err
		},
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) &&
				(apiErr.Code == http.StatusTooManyRequests || apiErr.Code == http.StatusServiceUnavailable) {
				s.logger.Warn("rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(s.cfg.Attempts),
		retry.Delay(s.cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("sending digest: %w", err)
	}

	s.logger.Info("sent notification digest", "household", household, "count", len(items))
	return nil
}

// compose renders an RFC 2822 plain-text message.
func (s *Sender) compose(household string, items []api.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", s.cfg.To)
	fmt.Fprintf(&b, "Subject: [%s] %d update(s) for %s\r\n", s.cfg.SubjectPrefix, len(items), household)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")

	for _, n := range items {
		fmt.Fprintf(&b, "[%s] %s\r\n", strings.ToUpper(string(n.Severity)), n.Message)
	}
	return b.String()
}
