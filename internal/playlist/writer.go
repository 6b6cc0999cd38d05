package playlist

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/iptvcollect/internal/catalog"
	"github.com/snapetech/iptvcollect/internal/indexer"
	"github.com/snapetech/iptvcollect/internal/safeurl"
)

// Family is an IP address family used to rank candidate URLs.
type Family string

const (
	IPv4 Family = "ipv4"
	IPv6 Family = "ipv6"
)

// ParseFamily maps "ipv6" (any case) to IPv6 and everything else to IPv4.
func ParseFamily(s string) Family {
	if strings.EqualFold(strings.TrimSpace(s), string(IPv6)) {
		return IPv6
	}
	return IPv4
}

// DefaultLogoURL is the logo template used when none is configured.
const DefaultLogoURL = "https://gcore.jsdelivr.net/gh/yuanzl77/TVlogo@master/png/{name}.png"

const (
	suffixIPv4 = "$LR•IPV4"
	suffixIPv6 = "$LR•IPV6"
)

// Validator checks a batch of URLs. Satisfied by *probe.Validator.
type Validator interface {
	ValidateAll(ctx context.Context, urls []string) map[string]bool
}

// Writer produces both output files from matched channels.
type Writer struct {
	M3UPath string
	TXTPath string
	EPGURLs []string
	// Blacklist entries exclude any candidate URL containing them.
	Blacklist []string
	Prefer    Family
	// LogoURL is a template; "{name}" is replaced by the channel name.
	LogoURL       string
	Announcements []catalog.AnnouncementGroup
	// Validator gates every candidate and every prior URL. Nil accepts everything.
	Validator Validator
	// Now stamps unnamed announcements. Nil means time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Stats describes one Write.
type Stats struct {
	Records      int // channel records written, announcements excluded
	Candidates   int
	Invalid      int
	Blacklisted  int
	Duplicates   int
	PriorKept    int
	PriorPruned  int
	PriorCarried int // prior entries appended as extra candidates
}

func (w *Writer) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

// validate fills known with verdicts for the urls it does not hold yet and returns it.
// One map lives for one Write, so each base URL is probed at most once per run.
func (w *Writer) validate(ctx context.Context, urls []string, known map[string]bool) map[string]bool {
	if known == nil {
		known = make(map[string]bool, len(urls))
	}
	var todo []string
	queued := make(map[string]bool)
	for _, u := range urls {
		if _, ok := known[u]; ok || queued[u] {
			continue
		}
		queued[u] = true
		todo = append(todo, u)
	}
	if len(todo) == 0 {
		return known
	}
	if w.Validator == nil {
		for _, u := range todo {
			known[u] = u != ""
		}
		return known
	}
	for u, ok := range w.Validator.ValidateAll(ctx, todo) {
		known[u] = ok
	}
	return known
}

// Write prunes the previous outputs, carries their still-valid entries forward as extra
// candidates in m, builds the groups and replaces both files. m is modified.
// Both files are attempted; the returned error joins their write failures. No file is
// rewritten from verdicts gathered under a cancelled ctx.
func (w *Writer) Write(ctx context.Context, tpl *catalog.Template, m *catalog.Matched) (Stats, error) {
	var st Stats
	var prior []catalog.SourceEntry
	verdicts := make(map[string]bool)
	for _, path := range []string{w.M3UPath, w.TXTPath} {
		p, err := w.prune(ctx, path, verdicts)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			w.logger().Info("no previous playlist", "path", path)
			continue
		case ctx.Err() != nil:
			return st, ctx.Err()
		case err != nil && p.Data == nil:
			w.logger().Error("read previous playlist", "path", path, "err", err)
			continue
		case err != nil:
			w.logger().Error("rewrite previous playlist", "path", path, "err", err)
		}
		st.PriorKept += p.Kept
		st.PriorPruned += p.Dropped
		_, entries, _ := indexer.ParseBytes(p.Data)
		prior = append(prior, entries...)
	}
	if m == nil {
		m = &catalog.Matched{}
	}
	st.PriorCarried = carryForward(tpl, m, prior)

	groups := w.groups(ctx, tpl, m, &st, verdicts)
	if err := ctx.Err(); err != nil {
		return st, err
	}

	var m3u, txt bytes.Buffer
	if err := RenderM3U(&m3u, w.EPGURLs, groups); err != nil {
		return st, err
	}
	if err := RenderTXT(&txt, groups); err != nil {
		return st, err
	}
	var errs []error
	if err := writeFileAtomic(w.M3UPath, m3u.Bytes()); err != nil {
		w.logger().Error("write playlist", "path", w.M3UPath, "err", err)
		errs = append(errs, err)
	}
	if err := writeFileAtomic(w.TXTPath, txt.Bytes()); err != nil {
		w.logger().Error("write playlist", "path", w.TXTPath, "err", err)
		errs = append(errs, err)
	}
	return st, errors.Join(errs...)
}

// carryForward appends prior entries that still belong to a template channel after that
// channel's fresh candidates. Prior URLs carry our own suffix, so only the base is kept.
func carryForward(tpl *catalog.Template, m *catalog.Matched, prior []catalog.SourceEntry) int {
	if tpl == nil {
		return 0
	}
	wanted := make(map[[2]string]bool)
	for _, tc := range tpl.Categories {
		for _, name := range tc.Channels {
			wanted[[2]string{tc.Name, name}] = true
		}
	}
	seen := make(map[[3]string]bool)
	n := 0
	for _, e := range prior {
		base := safeurl.Base(e.URL)
		key := [3]string{e.Category, e.Name, base}
		if base == "" || !wanted[[2]string{e.Category, e.Name}] || seen[key] {
			continue
		}
		seen[key] = true
		m.Append(e.Category, e.Name, base)
		n++
	}
	return n
}

// Groups builds the announcement groups followed by one group per template category.
// Verdicts for every candidate are gathered first; ranking and dedup then run in a single
// ordered pass, so the result does not depend on probe timing. st may be nil.
func (w *Writer) Groups(ctx context.Context, tpl *catalog.Template, m *catalog.Matched, st *Stats) []Group {
	return w.groups(ctx, tpl, m, st, nil)
}

func (w *Writer) groups(ctx context.Context, tpl *catalog.Template, m *catalog.Matched, st *Stats, known map[string]bool) []Group {
	if st == nil {
		st = &Stats{}
	}
	groups := w.announcementGroups()
	if tpl == nil {
		return groups
	}

	var probe []string
	for _, tc := range tpl.Categories {
		for _, name := range tc.Channels {
			for _, u := range m.URLs(tc.Name, name) {
				if u != "" && !w.blacklisted(u) {
					probe = append(probe, safeurl.Base(u))
				}
			}
		}
	}
	verdicts := w.validate(ctx, probe, known)

	written := make(map[string]bool)
	for _, tc := range tpl.Categories {
		g := Group{Category: tc.Name}
		done := make(map[string]bool)
		for _, name := range tc.Channels {
			if done[name] {
				continue
			}
			done[name] = true
			cands := w.rank(m.URLs(tc.Name, name))
			var kept []string
			for _, u := range cands {
				st.Candidates++
				base := safeurl.Base(u)
				switch {
				case base == "":
					st.Invalid++
				case written[base]:
					st.Duplicates++
				case w.blacklisted(u):
					st.Blacklisted++
				case !verdicts[base]:
					st.Invalid++
				default:
					written[base] = true
					kept = append(kept, base)
				}
			}
			for i, base := range kept {
				g.Records = append(g.Records, Record{
					Category: tc.Name,
					Name:     name,
					URL:      base + suffix(base, i+1, len(kept)),
					Logo:     strings.ReplaceAll(w.logoURL(), "{name}", name),
					TVGID:    strconv.Itoa(i + 1),
				})
			}
		}
		st.Records += len(g.Records)
		groups = append(groups, g)
	}
	return groups
}

func (w *Writer) announcementGroups() []Group {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	date := now().Format("2006-01-02")
	groups := make([]Group, 0, len(w.Announcements))
	for _, ag := range w.Announcements {
		g := Group{Category: ag.Channel}
		for _, a := range ag.Entries {
			name := a.Name
			if name == "" {
				name = date
			}
			g.Records = append(g.Records, Record{Category: ag.Channel, Name: name, URL: a.URL, Logo: a.Logo, TVGID: "1"})
		}
		groups = append(groups, g)
	}
	return groups
}

// rank stable-sorts candidates so the preferred IP family comes first.
func (w *Writer) rank(urls []string) []string {
	out := append([]string(nil), urls...)
	preferV6 := w.Prefer == IPv6
	sort.SliceStable(out, func(i, j int) bool {
		return (safeurl.IsIPv6(safeurl.Base(out[i])) == preferV6) && (safeurl.IsIPv6(safeurl.Base(out[j])) != preferV6)
	})
	return out
}

func (w *Writer) blacklisted(u string) bool {
	for _, b := range w.Blacklist {
		if b != "" && strings.Contains(u, b) {
			return true
		}
	}
	return false
}

func (w *Writer) logoURL() string {
	if w.LogoURL == "" {
		return DefaultLogoURL
	}
	return w.LogoURL
}

func suffix(base string, rank, total int) string {
	s := suffixIPv4
	if safeurl.IsIPv6(base) {
		s = suffixIPv6
	}
	if total == 1 {
		return s
	}
	return s + "『线路" + strconv.Itoa(rank) + "』"
}
