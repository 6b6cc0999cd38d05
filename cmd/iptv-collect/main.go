// Command iptv-collect builds live.m3u and live.txt from remote playlist sources and a
// curated channel template.
//
//	run      (default) fetch, match, validate and write both playlists
//	probe    fetch each source once and report status, latency, format and entry count
//	history  list recent runs from the history database
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/snapetech/iptvcollect/internal/collector"
	"github.com/snapetech/iptvcollect/internal/config"
	"github.com/snapetech/iptvcollect/internal/history"
	"github.com/snapetech/iptvcollect/internal/httpclient"
	"github.com/snapetech/iptvcollect/internal/indexer"
	"github.com/snapetech/iptvcollect/internal/logging"
	"github.com/snapetech/iptvcollect/internal/metrics"
	"github.com/snapetech/iptvcollect/internal/playlist"
	"github.com/snapetech/iptvcollect/internal/probe"
	"github.com/snapetech/iptvcollect/internal/provider"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type globalOptions struct {
	EnvFile  string `long:"env-file" default:".env" description:"Load environment variables from this file (missing file is ignored)"`
	Template string `long:"template" description:"Channel template file (overrides IPTV_COLLECT_TEMPLATE)"`
	Config   string `long:"config" description:"Playlist YAML file (overrides IPTV_COLLECT_CONFIG)"`
	Version  bool   `long:"version" description:"Print version and exit"`

	Run     runCommand     `command:"run" description:"Collect sources and write both playlists (default)"`
	Probe   probeCommand   `command:"probe" description:"Check each configured source once"`
	History historyCommand `command:"history" description:"List recent runs"`
}

var opts globalOptions

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = true
	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
	if parser.Active != nil {
		return
	}
	if opts.Version {
		fmt.Println("iptv-collect", Version)
		return
	}
	if err := opts.Run.Execute(nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is the loaded configuration shared by every command.
type env struct {
	cfg *config.Config
	pl  *config.Playlist
	log *slog.Logger
}

func loadEnv() (*env, error) {
	if err := config.LoadEnvFile(opts.EnvFile); err != nil {
		return nil, fmt.Errorf("env file %s: %w", opts.EnvFile, err)
	}
	cfg := config.Load()
	if opts.Template != "" {
		cfg.TemplatePath = opts.Template
	}
	if opts.Config != "" {
		cfg.ConfigPath = opts.Config
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(log)

	pl, err := config.LoadPlaylist(cfg.ConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("playlist config not found; using defaults", "path", cfg.ConfigPath)
		pl, err = config.ParsePlaylist(nil)
	}
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, pl: pl, log: log}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type runCommand struct{}

func (c *runCommand) Execute(_ []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	cfg, pl := e.cfg, e.pl
	ctx, cancel := signalContext()
	defer cancel()

	m := metrics.New()
	v := probe.New(cfg.ValidateTimeout, cfg.ValidateConcurrency, cfg.ValidateRate, cfg.ValidatePerHost)
	v.Retry.MaxAttempts = cfg.ValidateAttempts
	v.Retry.Backoff = cfg.ValidateBackoff
	v.UserAgent = cfg.UserAgent
	v.Observer = m
	v.Logger = e.log

	fetcher := &indexer.Fetcher{
		Client:    httpclient.WithTimeout(cfg.FetchTimeout),
		UserAgent: cfg.UserAgent,
		Retry:     httpclient.DefaultRetryPolicy,
		Logger:    e.log,
	}
	options := []collector.Option{
		collector.WithFetcher(fetcher),
		collector.WithRecorder(m),
		collector.WithLogger(e.log),
	}
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
		options = append(options, collector.WithHistory(store))
	}

	col := collector.New(collector.Options{
		TemplatePath:     cfg.TemplatePath,
		Sources:          cfg.SourceURLs(pl),
		EPGURLs:          pl.EPGURLs,
		Blacklist:        pl.URLBlacklist,
		Prefer:           playlist.ParseFamily(pl.IPVersionPriority),
		LogoURL:          pl.LogoURL,
		Announcements:    pl.Announcements,
		M3UPath:          cfg.M3UPath,
		TXTPath:          cfg.TXTPath,
		ValidateAtFetch:  cfg.ValidateAtFetch(pl),
		FetchConcurrency: cfg.FetchConcurrency,
	}, v, options...)

	_, runErr := col.Run(ctx)
	if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
		e.log.Error("write metrics", "path", cfg.MetricsFile, "err", err)
	}
	return runErr
}

type probeCommand struct{}

func (c *probeCommand) Execute(_ []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	sources := e.cfg.SourceURLs(e.pl)
	if len(sources) == 0 {
		return errors.New("no sources configured")
	}
	ctx, cancel := signalContext()
	defer cancel()
	results := provider.ProbeAll(ctx, sources, httpclient.WithTimeout(e.cfg.FetchTimeout), e.cfg.FetchConcurrency)
	printProbe(os.Stdout, results)
	for _, r := range results {
		if r.Status == provider.StatusOK {
			return nil
		}
	}
	return errors.New("no usable source")
}

func printProbe(w io.Writer, results []provider.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCODE\tLATENCY\tFORMAT\tENTRIES\tCATEGORIES\tURL")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%dms\t%s\t%d\t%d\t%s\n",
			r.Status, r.StatusCode, r.LatencyMs, orDash(string(r.Format)), r.Entries, r.Categories, r.URL)
	}
	tw.Flush()
}

type historyCommand struct {
	Limit int `short:"n" long:"limit" default:"10" description:"Number of runs to list"`
}

func (c *historyCommand) Execute(_ []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	if e.cfg.HistoryDB == "" {
		return errors.New("IPTV_COLLECT_HISTORY_DB is not set")
	}
	store, err := history.Open(e.cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()
	runs, err := store.Recent(context.Background(), c.Limit)
	if err != nil {
		return err
	}
	printHistory(os.Stdout, runs)
	return nil
}

func printHistory(w io.Writer, runs []history.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tMATCHED\tRECORDS\tINVALID\tPRUNED\tSOURCES\tERROR")
	for _, r := range runs {
		failed := 0
		for _, s := range r.Sources {
			if s.Err != "" {
				failed++
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d/%d\t%s\n",
			r.Started.Local().Format(time.DateTime), r.Duration.Round(time.Millisecond),
			r.Matched, r.Records, r.Invalid, r.PriorPruned,
			len(r.Sources)-failed, len(r.Sources), orDash(r.Err))
	}
	tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
