// Package retry runs an operation again on failure following a fixed delay schedule.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts int
	Delays      []time.Duration
}

// permanentError stops further attempts
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// ParseConfig builds a Config from an attempt count and a comma separated list of
// millisecond delays, falling back to def for anything missing or malformed.
func ParseConfig(attemptsStr, backoffStr string, def Config) Config {
	cfg := def

	if attemptsStr != "" {
		if attempts, err := strconv.Atoi(strings.TrimSpace(attemptsStr)); err == nil && attempts > 0 {
			cfg.MaxAttempts = attempts
		}
	}

	if backoffStr != "" {
		var parsed []time.Duration
		for _, delayStr := range strings.Split(backoffStr, ",") {
			if ms, err := strconv.Atoi(strings.TrimSpace(delayStr)); err == nil && ms > 0 {
				parsed = append(parsed, time.Duration(ms)*time.Millisecond)
			}
		}
		if len(parsed) > 0 {
			cfg.Delays = parsed
		}
	}

	return cfg
}

// WithRetry calls fn up to MaxAttempts times. Before attempt n+1 it waits Delays[n-1],
// reusing the last delay once the list runs out. A Permanent error ends the loop early.
func WithRetry(ctx context.Context, cfg Config, op string, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(cfg.delay(attempt - 1)):
			case <-ctx.Done():
				return fmt.Errorf("%s: retry cancelled: %w", op, ctx.Err())
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return fmt.Errorf("%s: %w", op, perm.err)
		}

		lastErr = err
		if attempt+1 < cfg.MaxAttempts {
			logrus.WithFields(logrus.Fields{
				"operation": op,
				"attempt":   attempt + 1,
				"max":       cfg.MaxAttempts,
			}).WithError(err).Warn("Attempt failed, retrying")
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, cfg.MaxAttempts, lastErr)
}

func (c Config) delay(i int) time.Duration {
	if len(c.Delays) == 0 {
		return 0
	}
	if i >= len(c.Delays) {
		i = len(c.Delays) - 1
	}
	return c.Delays[i]
}
