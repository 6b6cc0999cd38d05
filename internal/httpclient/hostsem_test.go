package httpclient

import (
	"testing"
	"time"
)

func TestHostSemaphore_perHost(t *testing.T) {
	h := NewHostSemaphore(1)
	release, ok := h.Acquire("http://a.example/1", nil)
	if !ok {
		t.Fatal("first acquire should succeed")
	}

	// A different host is not blocked.
	r2, ok := h.Acquire("http://b.example/1", nil)
	if !ok {
		t.Fatal("other host should not be blocked")
	}
	r2()

	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(done)
	}()
	if _, ok := h.Acquire("http://a.example/2", done); ok {
		t.Fatal("same host should block until done")
	}

	release()
	r3, ok := h.Acquire("http://a.example/3", nil)
	if !ok {
		t.Fatal("acquire after release should succeed")
	}
	r3()
}
