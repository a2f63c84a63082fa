package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const DefaultTimeout = 30 * time.Second

type strategy struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// Cascade tries its strategies in order until one succeeds. The strategy that
// last succeeded is tried first on the next call.
type Cascade struct {
	strategies []*strategy
	timeout    time.Duration

	mu       sync.Mutex
	lastGood int
}

func NewCascade(timeout time.Duration, providers ...Provider) *Cascade {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Cascade{timeout: timeout, lastGood: -1}
	for _, p := range providers {
		c.strategies = append(c.strategies, &strategy{provider: p, breaker: newBreaker(p.Name())})
	}
	return c
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("[AI] Circuit breaker state changed")
		},
	})
}

// Enabled reports whether any strategy is configured.
func (c *Cascade) Enabled() bool {
	return c != nil && len(c.strategies) > 0
}

// LastGood names the strategy that last succeeded, or "".
func (c *Cascade) LastGood() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastGood < 0 {
		return ""
	}
	return c.strategies[c.lastGood].provider.Name()
}

func (c *Cascade) order() []int {
	c.mu.Lock()
	first := c.lastGood
	c.mu.Unlock()

	order := make([]int, 0, len(c.strategies))
	if first >= 0 {
		order = append(order, first)
	}
	for i := range c.strategies {
		if i != first {
			order = append(order, i)
		}
	}
	return order
}

func (c *Cascade) remember(i int) {
	c.mu.Lock()
	c.lastGood = i
	c.mu.Unlock()
}

// Complete returns the first successful completion and the name of the strategy
// that produced it.
func (c *Cascade) Complete(ctx context.Context, prompt string, opts Options) (string, string, error) {
	if !c.Enabled() {
		return "", "", ErrNoProvider
	}

	var lastErr error
	for _, i := range c.order() {
		s := c.strategies[i]
		name := s.provider.Name()

		out, err := s.breaker.Execute(func() (interface{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			text, err := s.provider.Complete(attemptCtx, prompt, opts)
			if err != nil {
				return nil, err
			}
			if opts.Validate != nil {
				if err := opts.Validate(text); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrUnusable, err)
				}
			}
			return text, nil
		})
		if err == nil {
			c.remember(i)
			return out.(string), name, nil
		}

		lastErr = err
		logAttemptFailure(name, err)
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
	}
	return "", "", fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

// Stream forwards chunks from the first strategy that produces output. A strategy
// failing before its first chunk is skipped; a failure after output was emitted
// returns ErrPartialStream.
func (c *Cascade) Stream(ctx context.Context, prompt string, opts Options, onChunk func(string) error) (string, error) {
	if !c.Enabled() {
		return "", ErrNoProvider
	}

	var lastErr error
	for _, i := range c.order() {
		s := c.strategies[i]
		name := s.provider.Name()
		emitted := false

		_, err := s.breaker.Execute(func() (interface{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			err := s.provider.Stream(attemptCtx, prompt, opts, func(chunk string) error {
				emitted = true
				return onChunk(chunk)
			})
			if err == nil && !emitted {
				err = errEmpty
			}
			return nil, err
		})
		if err == nil {
			c.remember(i)
			return name, nil
		}

		logAttemptFailure(name, err)
		if emitted {
			return name, fmt.Errorf("%w: %v", ErrPartialStream, err)
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

func logAttemptFailure(name string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		reason = "circuit_open"
	case errors.Is(err, ErrUnusable):
		reason = "unusable"
	case isQuotaError(err):
		reason = "quota"
	case isConnectionError(err):
		reason = "connection"
	}
	log.Warn().Err(err).Str("provider", name).Str("reason", reason).Msg("[AI] Provider failed, trying next")
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{"connection refused", "no such host", "network is unreachable", "connection reset", "timeout", "dial tcp", "eof"} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{"429", "quota", "rate limit", "too many requests", "resource exhausted", "resource_exhausted"} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}
