package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/iptvcollect/internal/playlist"
	"github.com/snapetech/iptvcollect/internal/probe"
)

func TestObserveVerdict(t *testing.T) {
	m := New()
	m.ObserveVerdict(probe.Verdict{Valid: true, Attempts: 1, Duration: 20 * time.Millisecond})
	m.ObserveVerdict(probe.Verdict{Attempts: 3})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Probes.WithLabelValues("valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Probes.WithLabelValues("invalid")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ProbeAttempts))
}

func TestObserveSourceAndWrite(t *testing.T) {
	m := New()
	m.ObserveSource("http://a/list.txt", nil, 12)
	m.ObserveSource("http://b/list.m3u", errors.New("boom"), 0)
	m.ObserveWrite(playlist.Stats{Records: 5, Invalid: 2, Duplicates: 1, PriorPruned: 3})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourcesFetched.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourcesFetched.WithLabelValues("error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.SourceEntries.WithLabelValues("http://a/list.txt")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Records))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Excluded.WithLabelValues("invalid")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PriorURLs.WithLabelValues("pruned")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveRun(time.Unix(1700000000, 0), 2*time.Second, nil)
	m.Records.Set(7)

	path := filepath.Join(t.TempDir(), "iptv_collect.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	for _, want := range []string{
		"iptv_collect_records 7",
		"iptv_collect_run_duration_seconds 2",
		"iptv_collect_last_run_failed 0",
	} {
		assert.True(t, strings.Contains(out, want), "missing %q in\n%s", want, out)
	}

	assert.NoError(t, m.WriteTextfile(""))
}
