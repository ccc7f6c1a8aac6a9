package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func (c *Client) withRetry(ctx context.Context, op string, payload chatRequest) (string, error) {
	attempts := max(c.retryAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		reply, body, err := c.send(ctx, payload)
		if err == nil {
			content, finish := reply.content()
			if content != "" {
				return content, nil
			}
			if len(reply.Choices) == 0 {
				err = fmt.Errorf("%s: empty choices", op)
			} else {
				err = &emptyReplyError{
					Op:           op,
					FinishReason: finish,
					Refusal:      reply.refusal(),
					Snippet:      snippet(string(body)),
				}
			}
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		delay, retry := c.retryDelay(ctx, err, attempt)
		if !retry {
			return "", err
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

// retryDelay decides whether err is worth another attempt. Empty replies,
// 408, 429, 5xx and network timeouts are retried; Retry-After wins over the
// exponential schedule.
func (c *Client) retryDelay(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var empty *emptyReplyError
	if errors.As(err, &empty) {
		return c.backoff(attempt), true
	}
	var status *statusError
	if errors.As(err, &status) {
		if status.StatusCode != http.StatusRequestTimeout &&
			status.StatusCode != http.StatusTooManyRequests &&
			status.StatusCode < http.StatusInternalServerError {
			return 0, false
		}
		if status.RetryAfter > 0 {
			if c.retryMaxDelay > 0 && status.RetryAfter > c.retryMaxDelay {
				return c.retryMaxDelay, true
			}
			return status.RetryAfter, true
		}
		return c.backoff(attempt), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoff(attempt), true
	}
	return 0, false
}

// backoff doubles from the base delay per attempt, capped at the max delay.
func (c *Client) backoff(attempt int) time.Duration {
	if c.retryBaseDelay <= 0 {
		return 0
	}
	delay := c.retryBaseDelay
	for i := 1; i < attempt && delay < c.retryMaxDelay; i++ {
		delay *= 2
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		delay = c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
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
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay, true
		}
	}
	return 0, false
}
