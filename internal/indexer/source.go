package indexer

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"

	"github.com/snapetech/iptvcollect/internal/catalog"
	"github.com/snapetech/iptvcollect/internal/httpclient"
)

// DefaultMaxBody caps a decoded source body when Fetcher.MaxBody is unset.
const DefaultMaxBody = 32 << 20

// ErrBodyTooLarge is returned when a decoded source body exceeds the fetcher's limit.
var ErrBodyTooLarge = errors.New("source body too large")

// Validator checks a batch of URLs and returns a verdict per URL. Satisfied by *probe.Validator.
type Validator interface {
	ValidateAll(ctx context.Context, urls []string) map[string]bool
}

// Source is the outcome of fetching one playlist source.
type Source struct {
	URL      string
	Format   Format
	Entries  []catalog.SourceEntry
	Dropped  int // entries removed by fetch-time validation
	Duration time.Duration
	Err      error
}

// Categories returns the categories present in the source, in first-seen order.
func (s Source) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range s.Entries {
		if !seen[e.Category] {
			seen[e.Category] = true
			out = append(out, e.Category)
		}
	}
	return out
}

// Fetcher downloads and parses playlist sources.
type Fetcher struct {
	// Client may be nil to use httpclient.Default().
	Client    *http.Client
	UserAgent string
	// Retry applies to the playlist download itself, not to the streams it lists.
	Retry httpclient.RetryPolicy
	// Validator, when set, drops unreachable URLs while fetching. The playlist writer
	// validates every candidate again, so this only trims work for later stages.
	Validator Validator
	// MaxBody caps the decoded body; 0 means DefaultMaxBody.
	MaxBody int64
	Logger  *slog.Logger
}

func (f *Fetcher) client() *http.Client {
	if f.Client == nil {
		return httpclient.Default()
	}
	return f.Client
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// StatusError is returned when a source answers with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return "unexpected status " + strconv.Itoa(e.Code) + " from " + e.URL
}

// Fetch downloads sourceURL, detects its format and parses its entries.
func (f *Fetcher) Fetch(ctx context.Context, sourceURL string) (Source, error) {
	start := time.Now()
	src := Source{URL: sourceURL}
	body, err := f.download(ctx, sourceURL)
	if err != nil {
		src.Duration = time.Since(start)
		return src, err
	}
	format, entries, err := ParseBytes(body)
	if err != nil {
		src.Duration = time.Since(start)
		return src, fmt.Errorf("parse %s: %w", sourceURL, err)
	}
	src.Format = format
	src.Entries = entries
	if f.Validator != nil && len(entries) > 0 {
		src.Entries, src.Dropped = filterValid(ctx, f.Validator, entries)
	}
	src.Duration = time.Since(start)
	return src, nil
}

func (f *Fetcher) download(ctx context.Context, sourceURL string) ([]byte, error) {
	policy := f.Retry
	if policy.MaxAttempts == 0 {
		policy = httpclient.RetryPolicy{MaxAttempts: 1}
	}
	var body []byte
	r := httpclient.NewRetrier(policy)
	a := r.Do(ctx, func(ctx context.Context) httpclient.Attempt {
		b, status, retryAfter, err := f.get(ctx, sourceURL)
		if err == nil && (status < 200 || status > 299) {
			return httpclient.Attempt{Status: status, RetryAfter: retryAfter}
		}
		body = b
		return httpclient.Attempt{Status: status, Err: err}
	})
	if a.Err != nil {
		return nil, fmt.Errorf("fetch %s: %w", sourceURL, a.Err)
	}
	if a.Status < 200 || a.Status > 299 {
		return nil, &StatusError{URL: sourceURL, Code: a.Status}
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, sourceURL string) ([]byte, int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	ua := f.UserAgent
	if ua == "" {
		ua = httpclient.UserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Encoding", "gzip, br")
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, httpclient.ParseRetryAfter(resp.Header.Get("Retry-After"), f.Retry.MaxBackoff), nil
	}
	r, err := decodeBody(resp)
	if err != nil {
		return nil, resp.StatusCode, 0, err
	}
	limit := f.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, resp.StatusCode, 0, err
	}
	if int64(len(b)) > limit {
		return nil, resp.StatusCode, 0, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, limit)
	}
	return b, resp.StatusCode, 0, nil
}

// decodeBody undoes Content-Encoding (gzip, br) and transcodes a declared non-UTF-8 charset.
func decodeBody(resp *http.Response) (io.Reader, error) {
	var r io.Reader = resp.Body
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		r = gz
	case "br":
		r = brotli.NewReader(r)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", enc)
	}
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return r, nil
	}
	cs := strings.ToLower(strings.TrimSpace(params["charset"]))
	if cs == "" || cs == "utf-8" || cs == "utf8" {
		return r, nil
	}
	if e, _ := charset.Lookup(cs); e != nil {
		return e.NewDecoder().Reader(r), nil
	}
	return r, nil
}

func filterValid(ctx context.Context, v Validator, entries []catalog.SourceEntry) ([]catalog.SourceEntry, int) {
	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		urls = append(urls, e.URL)
	}
	verdicts := v.ValidateAll(ctx, urls)
	kept := make([]catalog.SourceEntry, 0, len(entries))
	for _, e := range entries {
		if verdicts[e.URL] {
			kept = append(kept, e)
		}
	}
	return kept, len(entries) - len(kept)
}

// FetchAll fetches every source with at most concurrency downloads in flight.
// Results are in input order; a failed source has Err set and no entries.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string, concurrency int) []Source {
	if concurrency <= 0 {
		concurrency = 4
	}
	out := make([]Source, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, u := range urls {
		g.Go(func() error {
			src, err := f.Fetch(gctx, u)
			if err != nil {
				f.logger().Warn("source fetch failed", "url", u, "err", err)
				out[i] = Source{URL: u, Err: err, Duration: src.Duration}
				return nil
			}
			f.logger().Info("source fetched",
				"url", u, "format", string(src.Format), "entries", len(src.Entries),
				"dropped", src.Dropped, "categories", strings.Join(src.Categories(), ", "))
			out[i] = src
			return nil
		})
	}
	_ = g.Wait()
	return out
}
