// Package collector runs one collection: read the template, fetch every source, merge,
// match, and hand the result to the playlist writer.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/snapetech/iptvcollect/internal/catalog"
	"github.com/snapetech/iptvcollect/internal/history"
	"github.com/snapetech/iptvcollect/internal/indexer"
	"github.com/snapetech/iptvcollect/internal/playlist"
)

// Options is everything a run needs to know. It is copied into the Collector and not
// changed afterwards.
type Options struct {
	TemplatePath  string
	Sources       []string
	EPGURLs       []string
	Blacklist     []string
	Prefer        playlist.Family
	LogoURL       string
	Announcements []catalog.AnnouncementGroup
	M3UPath       string
	TXTPath       string
	// ValidateAtFetch drops unreachable entries while fetching. The writer validates
	// every candidate regardless.
	ValidateAtFetch  bool
	FetchConcurrency int
}

// Validator is what both the fetcher and the writer use to check URLs.
type Validator interface {
	ValidateAll(ctx context.Context, urls []string) map[string]bool
}

// Recorder observes a run (metrics).
type Recorder interface {
	ObserveSource(url string, err error, entries int)
	ObserveWrite(st playlist.Stats)
	ObserveRun(finished time.Time, d time.Duration, err error)
}

// HistoryStore persists run summaries.
type HistoryStore interface {
	Record(ctx context.Context, r history.Run) error
}

// Summary reports one run.
type Summary struct {
	RunID            string
	Started          time.Time
	Duration         time.Duration
	TemplateChannels int
	Matched          int
	Sources          []indexer.Source
	Stats            playlist.Stats
}

// SourceErrors returns the sources that failed to fetch.
func (s Summary) SourceErrors() []indexer.Source {
	var out []indexer.Source
	for _, src := range s.Sources {
		if src.Err != nil {
			out = append(out, src)
		}
	}
	return out
}

// Collector runs the whole pipeline once per Run call.
type Collector struct {
	opts      Options
	fetcher   *indexer.Fetcher
	validator Validator
	recorder  Recorder
	history   HistoryStore
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures optional collaborators.
type Option func(*Collector)

// WithRecorder reports per-source, per-write and per-run outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(c *Collector) { c.recorder = r }
}

// WithHistory stores a summary of every run in h.
func WithHistory(h HistoryStore) Option {
	return func(c *Collector) { c.history = h }
}

// WithClock replaces time.Now for run timestamps and announcement dates.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// WithFetcher replaces the default source fetcher.
func WithFetcher(f *indexer.Fetcher) Option {
	return func(c *Collector) { c.fetcher = f }
}

// New builds a Collector. v validates stream URLs; a nil v accepts every URL.
func New(opts Options, v Validator, options ...Option) *Collector {
	opts.Sources = append([]string(nil), opts.Sources...)
	opts.EPGURLs = append([]string(nil), opts.EPGURLs...)
	opts.Blacklist = append([]string(nil), opts.Blacklist...)
	opts.Announcements = append([]catalog.AnnouncementGroup(nil), opts.Announcements...)
	c := &Collector{opts: opts, validator: v, now: time.Now, logger: slog.Default()}
	for _, o := range options {
		o(c)
	}
	if c.fetcher == nil {
		c.fetcher = &indexer.Fetcher{}
	}
	if c.fetcher.Logger == nil {
		c.fetcher.Logger = c.logger
	}
	if opts.ValidateAtFetch && v != nil && c.fetcher.Validator == nil {
		c.fetcher.Validator = v
	}
	return c
}

// Run performs one collection. The template must be readable; failed sources are logged
// and treated as empty. Output write failures are returned after both files were attempted.
func (c *Collector) Run(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString(), Started: c.now()}
	log := c.logger.With("run", sum.RunID)

	err := c.run(ctx, log, &sum)
	sum.Duration = c.now().Sub(sum.Started)
	if err != nil {
		log.Error("run failed", "err", err, "duration", sum.Duration)
	} else {
		log.Info("run complete",
			"records", sum.Stats.Records, "matched", sum.Matched,
			"invalid", sum.Stats.Invalid, "duplicates", sum.Stats.Duplicates,
			"blacklisted", sum.Stats.Blacklisted, "duration", sum.Duration)
	}
	if c.recorder != nil {
		c.recorder.ObserveRun(sum.Started.Add(sum.Duration), sum.Duration, err)
	}
	if c.history != nil {
		if herr := c.history.Record(context.WithoutCancel(ctx), historyRun(sum, err)); herr != nil {
			log.Error("record history", "err", herr)
		}
	}
	return sum, err
}

func (c *Collector) run(ctx context.Context, log *slog.Logger, sum *Summary) error {
	tpl, err := indexer.ParseTemplateFile(c.opts.TemplatePath)
	if err != nil {
		return fmt.Errorf("template: %w", err)
	}
	sum.TemplateChannels = tpl.ChannelCount()
	log.Info("template loaded", "path", c.opts.TemplatePath,
		"categories", len(tpl.Categories), "channels", sum.TemplateChannels)

	if len(c.opts.Sources) == 0 {
		log.Warn("no sources configured")
	}
	sum.Sources = c.fetcher.FetchAll(ctx, c.opts.Sources, c.opts.FetchConcurrency)
	entries := make([][]catalog.SourceEntry, 0, len(sum.Sources))
	for _, src := range sum.Sources {
		if c.recorder != nil {
			c.recorder.ObserveSource(src.URL, src.Err, len(src.Entries))
		}
		entries = append(entries, src.Entries)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ix := catalog.Aggregate(entries...)
	matched := catalog.Match(tpl, ix)
	sum.Matched = matched.Count()
	log.Info("channels matched", "indexed", ix.Len(), "categories", len(ix.Categories()), "matched", sum.Matched)

	w := &playlist.Writer{
		M3UPath:       c.opts.M3UPath,
		TXTPath:       c.opts.TXTPath,
		EPGURLs:       c.opts.EPGURLs,
		Blacklist:     c.opts.Blacklist,
		Prefer:        c.opts.Prefer,
		LogoURL:       c.opts.LogoURL,
		Announcements: c.opts.Announcements,
		Validator:     c.validator,
		Now:           c.now,
		Logger:        log,
	}
	st, err := w.Write(ctx, tpl, matched)
	sum.Stats = st
	if c.recorder != nil {
		c.recorder.ObserveWrite(st)
	}
	if err != nil {
		return fmt.Errorf("write playlists: %w", err)
	}
	if st.PriorKept+st.PriorPruned > 0 {
		log.Info("previous playlists revalidated", "kept", st.PriorKept, "pruned", st.PriorPruned, "carried", st.PriorCarried)
	}
	return nil
}

func historyRun(sum Summary, err error) history.Run {
	r := history.Run{
		ID:               sum.RunID,
		Started:          sum.Started,
		Duration:         sum.Duration,
		TemplateChannels: sum.TemplateChannels,
		Matched:          sum.Matched,
		Records:          sum.Stats.Records,
		Invalid:          sum.Stats.Invalid,
		PriorPruned:      sum.Stats.PriorPruned,
	}
	if err != nil {
		r.Err = err.Error()
	}
	for _, src := range sum.Sources {
		sr := history.SourceResult{
			URL:      src.URL,
			Format:   string(src.Format),
			Entries:  len(src.Entries),
			Dropped:  src.Dropped,
			Duration: src.Duration,
		}
		if src.Err != nil {
			sr.Err = src.Err.Error()
		}
		r.Sources = append(r.Sources, sr)
	}
	return r
}
