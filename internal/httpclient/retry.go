package httpclient

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// RetryPolicy controls which attempt outcomes are retried and how long to wait in between.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries including the first. <= 0 means 1.
	MaxAttempts int
	// Backoff is the wait before the second attempt; each further wait is multiplied by Multiplier.
	Backoff    time.Duration
	Multiplier float64
	// MaxBackoff caps any single wait, including one requested via Retry-After. 0 = no cap.
	MaxBackoff time.Duration
	// RetryStatuses are the HTTP statuses that trigger another attempt.
	RetryStatuses []int
}

// DefaultRetryPolicy: 3 attempts, 1s then 2s, retried on 500/502/503/504 and transient transport errors.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:   3,
	Backoff:       1 * time.Second,
	Multiplier:    2,
	MaxBackoff:    8 * time.Second,
	RetryStatuses: []int{500, 502, 503, 504},
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// RetryableStatus reports whether an HTTP status should be retried under p.
func (p RetryPolicy) RetryableStatus(code int) bool {
	for _, c := range p.RetryStatuses {
		if c == code {
			return true
		}
	}
	return false
}

// Delay returns the wait after the given number of failed attempts (1-based).
func (p RetryPolicy) Delay(failed int) time.Duration {
	if failed < 1 || p.Backoff <= 0 {
		return 0
	}
	m := p.Multiplier
	if m < 1 {
		m = 1
	}
	d := time.Duration(float64(p.Backoff) * math.Pow(m, float64(failed-1)))
	return p.capped(d)
}

func (p RetryPolicy) capped(d time.Duration) time.Duration {
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Attempt is the outcome of one try. Status is 0 when the request never got a response.
type Attempt struct {
	Status     int
	Err        error
	RetryAfter time.Duration // server hint from Retry-After; 0 = none
}

// Retrier is the retry state of one operation: attempt count, start time, last error and status.
// It is not safe for concurrent use; create one per operation.
type Retrier struct {
	Policy RetryPolicy

	attempts   int
	started    time.Time
	lastErr    error
	lastStatus int
}

// NewRetrier starts the retry state for one operation under p.
func NewRetrier(p RetryPolicy) *Retrier {
	return &Retrier{Policy: p, started: time.Now()}
}

// Attempts returns how many attempts were recorded.
func (r *Retrier) Attempts() int { return r.attempts }

// LastErr returns the transport error of the last attempt, if any.
func (r *Retrier) LastErr() error { return r.lastErr }

// LastStatus returns the HTTP status of the last attempt; 0 when none arrived.
func (r *Retrier) LastStatus() int { return r.lastStatus }

// Elapsed returns the time since the Retrier was created.
func (r *Retrier) Elapsed() time.Duration { return time.Since(r.started) }

// Next records the outcome of an attempt and reports whether to try again and after what wait.
// Success, non-retryable statuses, permanent errors and an exhausted budget all stop.
func (r *Retrier) Next(a Attempt) (retry bool, wait time.Duration) {
	r.attempts++
	r.lastErr, r.lastStatus = a.Err, a.Status
	switch {
	case a.Err != nil && !IsTransient(a.Err):
		return false, 0
	case a.Err == nil && !r.Policy.RetryableStatus(a.Status):
		return false, 0
	case r.attempts >= r.Policy.maxAttempts():
		return false, 0
	}
	wait = r.Policy.Delay(r.attempts)
	if a.RetryAfter > wait {
		wait = r.Policy.capped(a.RetryAfter)
	}
	return true, wait
}

// Do calls fn until Next says stop or ctx ends. When ctx ends first the returned attempt
// carries ctx.Err() and the last status seen.
func (r *Retrier) Do(ctx context.Context, fn func(context.Context) Attempt) Attempt {
	for {
		if err := ctx.Err(); err != nil {
			r.lastErr = err
			return Attempt{Status: r.lastStatus, Err: err}
		}
		a := fn(ctx)
		retry, wait := r.Next(a)
		if !retry {
			return a
		}
		if wait <= 0 {
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			r.lastErr = ctx.Err()
			return Attempt{Status: r.lastStatus, Err: ctx.Err()}
		case <-t.C:
		}
	}
}

// IsTransient reports whether a transport error is worth another attempt: timeouts,
// refused or reset connections, truncated responses. Cancellation, unknown hosts and
// malformed requests are permanent.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// ParseRetryAfter parses Retry-After (seconds or HTTP-date); returns duration capped at max.
// Empty or unparseable values yield 0.
func ParseRetryAfter(s string, max time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
		d := time.Duration(sec) * time.Second
		if max > 0 && d > max {
			return max
		}
		return d
	}
	// RFC 1123 date
	t, err := time.Parse(time.RFC1123, s)
	if err != nil {
		return 0
	}
	until := time.Until(t)
	if until <= 0 {
		return 0
	}
	if max > 0 && until > max {
		return max
	}
	return until
}
