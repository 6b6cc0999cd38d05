// Package provider reports on the playlist sources themselves: whether each answers, how
// fast, and what it serves. Used by the probe command to vet a source list.
package provider

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/snapetech/iptvcollect/internal/httpclient"
	"github.com/snapetech/iptvcollect/internal/indexer"
)

// maxBody caps how much of a source is read while probing.
const maxBody = 32 << 20

// Result is the outcome of probing one source URL.
type Result struct {
	URL        string
	Status     Status
	StatusCode int
	LatencyMs  int64
	Format     indexer.Format
	Entries    int
	Categories int
}

type Status string

const (
	StatusOK         Status = "ok"
	StatusEmpty      Status = "empty" // 200 but no parsable entries
	StatusCloudflare Status = "cloudflare"
	StatusBadStatus  Status = "bad_status"
	StatusTimeout    Status = "timeout"
	StatusError      Status = "error"
)

// ProbeOne fetches the source once and classifies the result.
func ProbeOne(ctx context.Context, sourceURL string, client *http.Client) Result {
	if client == nil {
		client = httpclient.WithTimeout(15 * time.Second)
	}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return Result{URL: sourceURL, Status: StatusError, LatencyMs: time.Since(start).Milliseconds()}
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	resp, err := client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		if isTimeout(err) {
			return Result{URL: sourceURL, Status: StatusTimeout, LatencyMs: latency}
		}
		return Result{URL: sourceURL, Status: StatusError, LatencyMs: latency}
	}
	defer resp.Body.Close()
	code := resp.StatusCode

	if code != http.StatusOK {
		preview := make([]byte, 512)
		n, _ := io.ReadFull(resp.Body, preview)
		if isCloudflare(resp.Header, code, strings.ToLower(string(preview[:n]))) {
			return Result{URL: sourceURL, Status: StatusCloudflare, StatusCode: code, LatencyMs: latency}
		}
		return Result{URL: sourceURL, Status: StatusBadStatus, StatusCode: code, LatencyMs: latency}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Result{URL: sourceURL, Status: StatusError, StatusCode: code, LatencyMs: latency}
	}
	format, entries, err := indexer.ParseBytes(body)
	if err != nil {
		return Result{URL: sourceURL, Status: StatusError, StatusCode: code, LatencyMs: latency}
	}
	r := Result{
		URL:        sourceURL,
		Status:     StatusOK,
		StatusCode: code,
		LatencyMs:  latency,
		Format:     format,
		Entries:    len(entries),
		Categories: len(indexer.Source{Entries: entries}.Categories()),
	}
	if r.Entries == 0 {
		r.Status = StatusEmpty
	}
	return r
}

// isCloudflare reports a Cloudflare block: the Server header says so, or a known
// challenge status carries challenge text.
func isCloudflare(h http.Header, code int, preview string) bool {
	if strings.EqualFold(strings.TrimSpace(h.Get("Server")), "cloudflare") {
		return true
	}
	switch code {
	case 403, 503, 520, 521, 524:
		return strings.Contains(preview, "checking your browser") ||
			strings.Contains(preview, "cf-bypass") ||
			strings.Contains(preview, "ray id")
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ProbeAll probes every source with at most concurrency requests in flight and returns
// results sorted OK first (by latency), then the rest by URL.
func ProbeAll(ctx context.Context, sourceURLs []string, client *http.Client, concurrency int) []Result {
	if concurrency <= 0 {
		concurrency = 4
	}
	var urls []string
	for _, u := range sourceURLs {
		if u != "" {
			urls = append(urls, u)
		}
	}
	out := make([]Result, len(urls))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, u := range urls {
		g.Go(func() error {
			out[i] = ProbeOne(ctx, u, client)
			return nil
		})
	}
	_ = g.Wait()
	sort.SliceStable(out, func(i, j int) bool {
		okI := out[i].Status == StatusOK
		okJ := out[j].Status == StatusOK
		if okI != okJ {
			return okI
		}
		if okI {
			return out[i].LatencyMs < out[j].LatencyMs
		}
		return out[i].URL < out[j].URL
	})
	return out
}
