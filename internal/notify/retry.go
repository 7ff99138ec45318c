package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
)

// HTTPError is a non-2xx response from a delivery API
type HTTPError struct {
	Service    string
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("%s http %d: %s", e.Service, e.StatusCode, truncate(msg, maxErrorBody))
}

const maxErrorBody = 500

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// IsTransient reports whether a delivery error is worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var herr *HTTPError
	if errors.As(err, &herr) {
		code := herr.StatusCode
		return code == 408 || code == 429 || code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Policy retries a delivery a fixed number of times with a fixed delay
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Do runs fn until it succeeds, fails permanently, or attempts run out
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := max(p.Attempts, 1)

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn()
		if err != nil && !IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(attempts)),
	)
	return err
}
