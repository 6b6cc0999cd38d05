// Package metrics records what a collection run did and exports it as a Prometheus
// textfile (node_exporter textfile collector).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/snapetech/iptvcollect/internal/playlist"
	"github.com/snapetech/iptvcollect/internal/probe"
)

// Metrics is one run's registry. The zero value is not usable; call New.
type Metrics struct {
	Registry *prometheus.Registry

	// SourcesFetched counts sources by result ("ok" or "error")
	SourcesFetched *prometheus.CounterVec
	// SourceEntries is the number of entries parsed per source
	SourceEntries *prometheus.GaugeVec
	// Probes counts URL verdicts by result ("valid" or "invalid")
	Probes *prometheus.CounterVec
	// ProbeAttempts counts HTTP attempts made by the validator, retries included
	ProbeAttempts prometheus.Counter
	ProbeDuration prometheus.Histogram
	// Records is the number of channel records in the last written playlist
	Records prometheus.Gauge
	// Excluded is the number of candidates dropped per reason in the last run
	Excluded *prometheus.GaugeVec
	// PriorURLs tracks revalidated URLs from the previous outputs ("kept" or "pruned")
	PriorURLs     *prometheus.GaugeVec
	RunDuration   prometheus.Gauge
	LastRunTime   prometheus.Gauge
	LastRunFailed prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		SourcesFetched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "iptv_collect_sources_fetched_total",
			Help: "Playlist sources fetched, by result",
		}, []string{"result"}),
		SourceEntries: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "iptv_collect_source_entries",
			Help: "Entries parsed from each source",
		}, []string{"source"}),
		Probes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "iptv_collect_probes_total",
			Help: "Stream URL verdicts, by result",
		}, []string{"result"}),
		ProbeAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "iptv_collect_probe_attempts_total",
			Help: "HTTP attempts made while validating stream URLs",
		}),
		ProbeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "iptv_collect_probe_duration_seconds",
			Help:    "Time to reach a verdict for one stream URL",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		Records: f.NewGauge(prometheus.GaugeOpts{
			Name: "iptv_collect_records",
			Help: "Channel records in the written playlist",
		}),
		Excluded: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "iptv_collect_excluded",
			Help: "Candidate URLs dropped, by reason",
		}, []string{"reason"}),
		PriorURLs: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "iptv_collect_prior_urls",
			Help: "URLs of the previous playlists after revalidation",
		}, []string{"state"}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "iptv_collect_run_duration_seconds",
			Help: "Duration of the last run",
		}),
		LastRunTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "iptv_collect_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
		LastRunFailed: f.NewGauge(prometheus.GaugeOpts{
			Name: "iptv_collect_last_run_failed",
			Help: "1 when the last run returned an error",
		}),
	}
}

// ObserveVerdict implements probe.Observer.
func (m *Metrics) ObserveVerdict(v probe.Verdict) {
	result := "invalid"
	if v.Valid {
		result = "valid"
	}
	m.Probes.WithLabelValues(result).Inc()
	m.ProbeAttempts.Add(float64(v.Attempts))
	m.ProbeDuration.Observe(v.Duration.Seconds())
}

// ObserveSource records one fetched source.
func (m *Metrics) ObserveSource(url string, err error, entries int) {
	if err != nil {
		m.SourcesFetched.WithLabelValues("error").Inc()
	} else {
		m.SourcesFetched.WithLabelValues("ok").Inc()
	}
	m.SourceEntries.WithLabelValues(url).Set(float64(entries))
}

// ObserveWrite records the writer's stats.
func (m *Metrics) ObserveWrite(st playlist.Stats) {
	m.Records.Set(float64(st.Records))
	m.Excluded.WithLabelValues("invalid").Set(float64(st.Invalid))
	m.Excluded.WithLabelValues("blacklisted").Set(float64(st.Blacklisted))
	m.Excluded.WithLabelValues("duplicate").Set(float64(st.Duplicates))
	m.PriorURLs.WithLabelValues("kept").Set(float64(st.PriorKept))
	m.PriorURLs.WithLabelValues("pruned").Set(float64(st.PriorPruned))
}

// ObserveRun records the end of a run.
func (m *Metrics) ObserveRun(finished time.Time, d time.Duration, err error) {
	m.RunDuration.Set(d.Seconds())
	m.LastRunTime.Set(float64(finished.Unix()))
	if err != nil {
		m.LastRunFailed.Set(1)
	} else {
		m.LastRunFailed.Set(0)
	}
}

// WriteTextfile writes the registry in the text exposition format. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
