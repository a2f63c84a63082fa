package gmail

import (
	"io"
	"net/http"
	"strconv"
	"time"
)

// RetryTransport retries HTTP 429 responses with linear backoff (base * attempt) and
// reports 401s through OnUnauthorized. Requests with a body are replayed only when
// GetBody is available.
type RetryTransport struct {
	Base           http.RoundTripper
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	OnUnauthorized func()
}

func NewRetryTransport(base http.RoundTripper) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RetryTransport{
		Base:        base,
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	maxAttempts := t.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		r := req
		if attempt > 1 {
			var err error
			if r, err = rewind(req); err != nil {
				return nil, err
			}
		}

		resp, err := t.Base.RoundTrip(r)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusUnauthorized && t.OnUnauthorized != nil {
			t.OnUnauthorized()
			return resp, nil
		}

		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxAttempts {
			return resp, nil
		}
		if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
			return resp, nil
		}

		delay := t.delay(attempt, resp.Header.Get("Retry-After"))
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

func (t *RetryTransport) delay(attempt int, retryAfter string) time.Duration {
	d := t.BaseDelay * time.Duration(attempt)
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		d = time.Duration(secs) * time.Second
	}
	if t.MaxDelay > 0 && d > t.MaxDelay {
		d = t.MaxDelay
	}
	return d
}

func rewind(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	return r, nil
}
