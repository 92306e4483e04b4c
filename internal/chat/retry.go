package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// maxErrorBody bounds how much of an error response is read
const maxErrorBody = 64 << 10

// RetryPolicy controls the backoff loop
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy is 3 retries starting at 500ms, capped at 8s
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   8 * time.Second,
}

// Backoff returns the delay before retry number attempt (0-based)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay * time.Duration(1<<uint(attempt))
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	return delay
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// doWithRetry sends the request built by newReq until it gets a 2xx,
// a non-retryable status, or runs out of attempts. 429, 5xx and network
// failures are retried.
func (c *Client) doWithRetry(ctx context.Context, newReq func() (*http.Request, error), log logrus.FieldLogger) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, err
		}

		var (
			delay   time.Duration
			lastErr *ProviderError
		)

		resp, err := c.http.Do(req)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("request aborted: %w", ctxErr)
			}
			lastErr = networkError(err)
			delay = c.retry.Backoff(attempt)

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil

		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			lastErr = newProviderError(resp.StatusCode, body)
			if !lastErr.Retryable() {
				return nil, lastErr
			}
			delay = c.retry.Backoff(attempt)
			if ra, ok := parseRetryAfter(resp.Header.Get("Retry-After"), c.now()); ok {
				if ra > c.retry.MaxDelay {
					log.WithFields(logrus.Fields{"status": lastErr.Status, "retry_after": ra}).Warn("provider asked for a longer wait than allowed")
					return nil, lastErr
				}
				delay = ra
			}
		}

		if attempt >= c.retry.MaxRetries {
			log.WithFields(logrus.Fields{"attempts": attempt + 1, "status": lastErr.Status}).Warn("giving up after retries")
			return nil, lastErr
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= delay {
			log.WithFields(logrus.Fields{"status": lastErr.Status, "delay": delay}).Warn("retry would outlast the request deadline")
			return nil, lastErr
		}

		log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"status":  lastErr.Status,
			"delay":   delay,
		}).Info("retrying provider request")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("request aborted while waiting to retry: %w", err)
		}
	}
}
