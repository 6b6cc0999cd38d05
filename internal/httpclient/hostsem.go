package httpclient

import (
	"sync"

	"github.com/snapetech/iptvcollect/internal/safeurl"
)

// HostSemaphore is a per-host concurrency limiter shared by all probes of a run.
//
//	release, ok := sem.Acquire(url, ctx.Done())
//	if !ok { return ctx.Err() }
//	defer release()
type HostSemaphore struct {
	mu    sync.Mutex
	sems  map[string]chan struct{}
	limit int
}

func NewHostSemaphore(concurrency int) *HostSemaphore {
	if concurrency < 1 {
		concurrency = 1
	}
	return &HostSemaphore{
		sems:  make(map[string]chan struct{}),
		limit: concurrency,
	}
}

// Acquire blocks until a slot is available for the URL's host and returns a release func.
// done aborts the wait; the returned ok is false in that case and release is a no-op.
func (h *HostSemaphore) Acquire(rawURL string, done <-chan struct{}) (release func(), ok bool) {
	sem := h.semFor(safeurl.Host(rawURL))
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, true
	case <-done:
		return func() {}, false
	}
}

func (h *HostSemaphore) semFor(host string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sems[host]
	if !ok {
		s = make(chan struct{}, h.limit)
		h.sems[host] = s
	}
	return s
}
