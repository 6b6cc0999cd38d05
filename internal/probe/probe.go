// Package probe decides whether stream URLs are reachable.
//
// A check is a HEAD request (falling back to a one-byte ranged GET when the server
// refuses HEAD) retried on 5xx and transient transport errors, all inside one
// per-URL deadline. A timeout or exhausted budget is an invalid verdict, never an error.
// Verdicts are not cached; each run validates again.
package probe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/snapetech/iptvcollect/internal/httpclient"
	"github.com/snapetech/iptvcollect/internal/safeurl"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultConcurrency = 32
)

// ErrUnsupportedScheme is the verdict error for URLs that are not http(s).
var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// Checker answers a single reachability question.
type Checker interface {
	Valid(ctx context.Context, rawURL string) bool
}

// Verdict is the result of checking one URL.
type Verdict struct {
	URL      string
	Valid    bool
	Status   int // last HTTP status seen; 0 when no response arrived
	Attempts int
	Err      error
	Duration time.Duration
}

// Observer receives every verdict (metrics).
type Observer interface {
	ObserveVerdict(Verdict)
}

// Validator checks URLs. Safe for concurrent use; the limiter, host semaphore and
// observer are the only shared state and all are concurrency-safe.
type Validator struct {
	// Client may be nil to use a client with Timeout and capped redirects.
	Client *http.Client
	// Timeout bounds one URL check, all attempts and backoff waits included. Time
	// queued on Limiter or Hosts is not counted.
	Timeout time.Duration
	Retry   httpclient.RetryPolicy
	// Concurrency bounds ValidateAll.
	Concurrency int
	// Limiter, when set, paces probed URLs. Retries of one URL are not paced again.
	Limiter *rate.Limiter
	// Hosts, when set, caps in-flight probes per origin. A slot is held for all
	// attempts of one URL.
	Hosts     *httpclient.HostSemaphore
	UserAgent string
	Observer  Observer
	Logger    *slog.Logger

	once   sync.Once
	client *http.Client
}

// New returns a Validator with the default retry policy and the given limits.
// perSecond <= 0 disables the rate limit; perHost <= 0 disables the host cap.
func New(timeout time.Duration, concurrency int, perSecond float64, perHost int) *Validator {
	v := &Validator{
		Timeout:     timeout,
		Retry:       httpclient.DefaultRetryPolicy,
		Concurrency: concurrency,
	}
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		v.Limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	if perHost > 0 {
		v.Hosts = httpclient.NewHostSemaphore(perHost)
	}
	return v
}

func (v *Validator) timeout() time.Duration {
	if v.Timeout <= 0 {
		return DefaultTimeout
	}
	return v.Timeout
}

func (v *Validator) httpClient() *http.Client {
	v.once.Do(func() {
		v.client = v.Client
		if v.client == nil {
			v.client = httpclient.WithRedirectLimit(v.timeout(), 5)
		}
	})
	return v.client
}

func (v *Validator) logger() *slog.Logger {
	if v.Logger == nil {
		return slog.Default()
	}
	return v.Logger
}

// Valid reports whether rawURL answered 2xx within the deadline.
func (v *Validator) Valid(ctx context.Context, rawURL string) bool {
	return v.Check(ctx, rawURL).Valid
}

// Check probes rawURL and returns the full verdict.
func (v *Validator) Check(ctx context.Context, rawURL string) Verdict {
	start := time.Now()
	out := Verdict{URL: rawURL}
	if !safeurl.IsHTTPOrHTTPS(rawURL) {
		out.Err = ErrUnsupportedScheme
	} else {
		out = v.check(ctx, rawURL)
	}
	out.Duration = time.Since(start)
	if !out.Valid {
		v.logger().Debug("invalid url", "url", rawURL, "status", out.Status, "attempts", out.Attempts, "err", out.Err)
	}
	if v.Observer != nil {
		v.Observer.ObserveVerdict(out)
	}
	return out
}

// check waits for the rate limiter and a host slot under the caller's context, then
// runs the attempts under the per-URL deadline. Queueing never counts against it.
func (v *Validator) check(ctx context.Context, rawURL string) Verdict {
	out := Verdict{URL: rawURL}
	if v.Limiter != nil {
		if err := v.Limiter.Wait(ctx); err != nil {
			out.Err = err
			return out
		}
	}
	if v.Hosts != nil {
		release, ok := v.Hosts.Acquire(rawURL, ctx.Done())
		if !ok {
			out.Err = ctx.Err()
			return out
		}
		defer release()
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout())
	defer cancel()
	r := httpclient.NewRetrier(v.Retry)
	a := r.Do(ctx, func(ctx context.Context) httpclient.Attempt {
		return v.attempt(ctx, rawURL)
	})
	out.Status, out.Err, out.Attempts = a.Status, a.Err, r.Attempts()
	out.Valid = a.Err == nil && a.Status >= 200 && a.Status <= 299
	return out
}

func (v *Validator) attempt(ctx context.Context, rawURL string) httpclient.Attempt {
	status, header, err := v.request(ctx, http.MethodHead, rawURL)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, header, err = v.request(ctx, http.MethodGet, rawURL)
	}
	if err != nil {
		return httpclient.Attempt{Err: err}
	}
	return httpclient.Attempt{
		Status:     status,
		RetryAfter: httpclient.ParseRetryAfter(header.Get("Retry-After"), v.Retry.MaxBackoff),
	}
}

func (v *Validator) request(ctx context.Context, method, rawURL string) (int, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	ua := v.UserAgent
	if ua == "" {
		ua = httpclient.UserAgent
	}
	req.Header.Set("User-Agent", ua)
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := v.httpClient().Do(req)
	if err != nil {
		return 0, nil, err
	}
	// Live streams never end; read at most a little before closing.
	_, _ = io.CopyN(io.Discard, resp.Body, 512)
	resp.Body.Close()
	return resp.StatusCode, resp.Header, nil
}

// ValidateAll checks every distinct URL with at most Concurrency probes in flight and
// returns a verdict per URL. Empty strings are reported invalid without a probe.
func (v *Validator) ValidateAll(ctx context.Context, urls []string) map[string]bool {
	out := make(map[string]bool, len(urls))
	seen := make(map[string]bool, len(urls))
	var uniq []string
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		if u == "" {
			out[u] = false
			continue
		}
		uniq = append(uniq, u)
	}
	limit := v.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(limit)
	for _, u := range uniq {
		g.Go(func() error {
			ok := v.Valid(ctx, u)
			mu.Lock()
			out[u] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
