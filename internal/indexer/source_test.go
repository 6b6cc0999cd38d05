package indexer

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html/charset"

	"github.com/snapetech/iptvcollect/internal/catalog"
	"github.com/snapetech/iptvcollect/internal/httpclient"
)

const flatBody = "News,#genre#\nNewsA,http://x/1\nNewsB,http://x/2\n"

type mapValidator map[string]bool

func (m mapValidator) ValidateAll(_ context.Context, urls []string) map[string]bool {
	out := make(map[string]bool, len(urls))
	for _, u := range urls {
		out[u] = m[u]
	}
	return out
}

func TestFetch_plain(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Write([]byte(flatBody))
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client()}
	src, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, FormatTXT, src.Format)
	assert.Len(t, src.Entries, 2)
	assert.Equal(t, []string{"News"}, src.Categories())
	assert.Equal(t, httpclient.UserAgent, ua)
}

func TestFetch_gzipAndBrotli(t *testing.T) {
	var gz, br bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte(flatBody))
	zw.Close()
	bw := brotli.NewWriter(&br)
	bw.Write([]byte(flatBody))
	bw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gz":
			w.Header().Set("Content-Encoding", "gzip")
			w.Write(gz.Bytes())
		case "/br":
			w.Header().Set("Content-Encoding", "br")
			w.Write(br.Bytes())
		}
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client()}
	for _, path := range []string{"/gz", "/br"} {
		src, err := f.Fetch(context.Background(), srv.URL+path)
		require.NoError(t, err, path)
		assert.Len(t, src.Entries, 2, path)
	}
}

func TestFetch_declaredCharset(t *testing.T) {
	enc, _ := charset.Lookup("gbk")
	require.NotNil(t, enc)
	body, err := enc.NewEncoder().String("央视频道,#genre#\nCCTV1,http://a/1\n")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=GBK")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	src, err := (&Fetcher{Client: srv.Client()}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []catalog.SourceEntry{{Category: "央视频道", Name: "CCTV1", URL: "http://a/1"}}, src.Entries)
}

func TestFetch_statusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := (&Fetcher{Client: srv.Client()}).Fetch(context.Background(), srv.URL)
	var se *StatusError
	require.True(t, errors.As(err, &se), "err = %v", err)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestFetch_retries5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(flatBody))
	}))
	defer srv.Close()

	f := &Fetcher{
		Client: srv.Client(),
		Retry:  httpclient.RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond, RetryStatuses: []int{502}},
	}
	src, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, src.Entries, 2)
	assert.EqualValues(t, 2, calls.Load())
}

func TestFetch_validatorShortCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(flatBody))
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client(), Validator: mapValidator{"http://x/2": true}}
	src, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []catalog.SourceEntry{{Category: "News", Name: "NewsB", URL: "http://x/2"}}, src.Entries)
	assert.Equal(t, 1, src.Dropped)
}

func TestFetchAll_orderAndFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slow":
			time.Sleep(30 * time.Millisecond)
			w.Write([]byte("Slow,#genre#\nS,http://s/1\n"))
		case "/fast":
			w.Write([]byte("#EXTM3U\n#EXTINF:-1 group-title=\"Fast\",F\nhttp://f/1\n"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client()}
	got := f.FetchAll(context.Background(), []string{srv.URL + "/slow", srv.URL + "/broken", srv.URL + "/fast"}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "S", got[0].Entries[0].Name)
	assert.Error(t, got[1].Err)
	assert.Empty(t, got[1].Entries)
	assert.Equal(t, FormatM3U, got[2].Format)
	assert.Equal(t, "F", got[2].Entries[0].Name)
}

func TestFetch_decodedBodyIsCapped(t *testing.T) {
	big := bytes.Repeat([]byte("News,#genre#\n"), 1000)
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write(big)
	zw.Close()
	require.Less(t, gz.Len(), 1024)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gz" {
			w.Header().Set("Content-Encoding", "gzip")
			w.Write(gz.Bytes())
			return
		}
		w.Write([]byte(flatBody))
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client(), MaxBody: 1024}
	_, err := f.Fetch(context.Background(), srv.URL+"/gz")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBodyTooLarge), err.Error())

	f.MaxBody = int64(len(flatBody))
	src, err := f.Fetch(context.Background(), srv.URL+"/plain")
	require.NoError(t, err)
	assert.Len(t, src.Entries, 2)
}
