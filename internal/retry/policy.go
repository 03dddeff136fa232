package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
	"github.com/JakeFAU/hltv-demo-scraper/internal/metrics"
)

const (
	// DefaultMaxAttempts bounds the attempts made per call site.
	DefaultMaxAttempts = 3
	// DefaultEmergencySleep is the pause after every blocked attempt.
	DefaultEmergencySleep = 60 * time.Second
)

var (
	// ErrBlocked is matched by every error returned after attempts run out.
	ErrBlocked = errors.New("request blocked")
	// ErrCircuitOpen reports that the run-wide emergency sleep budget is spent.
	ErrCircuitOpen = errors.New("emergency sleep budget exhausted")
)

// BlockedError describes a call site that never got a 200 response.
type BlockedError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *BlockedError) Error() string {
	msg := fmt.Sprintf("request to %s blocked after %d attempt(s), last status %d", e.URL, e.Attempts, e.StatusCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrBlocked and the last underlying error.
func (e *BlockedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBlocked}
	}
	return []error{ErrBlocked, e.Err}
}

// Config parameterizes a Policy. Zero values take the defaults.
type Config struct {
	MaxAttempts    int
	EmergencySleep time.Duration
}

// Attempt performs one try and reports the HTTP status it saw. A transport
// failure is returned as err and retried like a blocked status; wrap an error
// with backoff.Permanent to stop immediately.
type Attempt func(ctx context.Context) (status int, err error)

// Policy retries attempts that do not produce HTTP 200.
type Policy struct {
	cfg     Config
	sleeper crawler.Sleeper
	breaker *Breaker
	logger  *zap.Logger
}

// NewPolicy builds a Policy. A nil breaker disables the run-wide budget.
func NewPolicy(cfg Config, sleeper crawler.Sleeper, breaker *Breaker, logger *zap.Logger) *Policy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.EmergencySleep <= 0 {
		cfg.EmergencySleep = DefaultEmergencySleep
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{
		cfg:     cfg,
		sleeper: sleeper,
		breaker: breaker,
		logger:  logger,
	}
}

// Do runs attempt until it reports HTTP 200, the attempts are used up, the
// breaker opens or ctx ends. Every failed attempt is followed by the
// emergency sleep, including the last one.
func (p *Policy) Do(ctx context.Context, url string, attempt Attempt) error {
	intervals := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.cfg.EmergencySleep), uint64(p.cfg.MaxAttempts)),
		ctx,
	)
	blocked := &BlockedError{URL: url}
	for n := 1; n <= p.cfg.MaxAttempts; n++ {
		status, err := attempt(ctx)
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return permanent.Err
		}
		if err == nil && status == http.StatusOK {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("retry %s: %w", url, ctxErr)
		}
		blocked.StatusCode, blocked.Err, blocked.Attempts = status, err, n
		metrics.ObserveBlocked(url, status)

		wait := intervals.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		if err := p.breaker.Charge(wait); err != nil {
			p.logger.Error("emergency sleep budget exhausted, giving up",
				zap.String("url", url),
				zap.Int("status_code", status),
				zap.Duration("spent", p.breaker.Spent()),
			)
			blocked.Err = err
			return blocked
		}
		p.logger.Warn("request got blocked, sleeping",
			zap.String("url", url),
			zap.Int("status_code", status),
			zap.Int("attempt", n),
			zap.Duration("sleep", wait),
			zap.Error(err),
		)
		metrics.ObserveEmergencySleep(wait)
		if err := p.sleeper.Sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry %s: %w", url, err)
		}
		if n < p.cfg.MaxAttempts {
			p.logger.Warn("retrying now", zap.String("url", url), zap.Int("attempt", n+1))
		}
	}
	return blocked
}
