package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"media-migrator/internal/metrics"
)

// Config holds the settings shared by the Drive and Sheets clients.
type Config struct {
	// CredentialsFile is a service-account JSON key. Empty uses
	// application default credentials.
	CredentialsFile string
	// RateLimit is the sustained request rate per second. Zero disables limiting.
	RateLimit float64
	Burst     int
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
	// MaxDownloadBytes caps a single file download.
	MaxDownloadBytes int64
}

// DefaultConfig returns settings that stay inside the default Drive quota.
func DefaultConfig() Config {
	return Config{
		RateLimit:        10,
		Burst:            5,
		MaxRetries:       4,
		RetryDelay:       500 * time.Millisecond,
		MaxDelay:         10 * time.Second,
		MaxDownloadBytes: 50 << 20,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Burst <= 0 {
		c.Burst = d.Burst
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxDownloadBytes <= 0 {
		c.MaxDownloadBytes = d.MaxDownloadBytes
	}
	return c
}

func (c Config) clientOptions(scope string, extra []option.ClientOption) []option.ClientOption {
	var opts []option.ClientOption
	if c.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(scope))
	return append(opts, extra...)
}

// caller applies rate limiting and retries to remote calls.
type caller struct {
	cfg     Config
	limiter *rate.Limiter
}

func newCaller(cfg Config) *caller {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	return &caller{cfg: cfg, limiter: limiter}
}

// do runs fn until it succeeds, fails with a permanent error, or the retry
// budget is spent.
func (c *caller) do(ctx context.Context, operation string, fn func() error) error {
	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			err := fn()
			if err != nil && !isTransient(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.MaxRetries+1)),
		retry.Delay(c.cfg.RetryDelay),
		retry.MaxDelay(c.cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			metrics.SourceRetries.WithLabelValues(operation).Inc()
			log.Debug("%s attempt %d failed: %v", operation, n+1, err)
		}),
	)
	metrics.SourceRequestsTotal.WithLabelValues(operation, metrics.StatusLabel(err)).Inc()
	return err
}

// isTransient reports whether err is worth retrying: throttling, server
// errors and network failures.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTooLarge) {
		return false
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests, gerr.Code >= 500:
			return true
		case gerr.Code == http.StatusForbidden:
			for _, item := range gerr.Errors {
				if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
					return true
				}
			}
		}
		return false
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// mapNotFound converts a 404 into ErrNotFound.
func mapNotFound(err error, id string) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}
