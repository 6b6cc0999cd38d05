package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/snapetech/iptvcollect/internal/catalog"
)

func TestLoad_defaults(t *testing.T) {
	os.Clearenv()
	c := Load()
	if c.TemplatePath != "demo.txt" || c.ConfigPath != "collect.yaml" {
		t.Errorf("paths = %q, %q", c.TemplatePath, c.ConfigPath)
	}
	if c.M3UPath != "live.m3u" || c.TXTPath != "live.txt" {
		t.Errorf("outputs = %q, %q", c.M3UPath, c.TXTPath)
	}
	if c.ValidateTimeout != 10*time.Second || c.ValidateAttempts != 3 || c.ValidateBackoff != time.Second {
		t.Errorf("validator = %v / %d / %v", c.ValidateTimeout, c.ValidateAttempts, c.ValidateBackoff)
	}
	if c.ValidateConcurrency != 32 || c.ValidatePerHost != 4 || c.ValidateRate != 0 {
		t.Errorf("limits = %d / %d / %v", c.ValidateConcurrency, c.ValidatePerHost, c.ValidateRate)
	}
	if c.FetchTimeout != 60*time.Second || c.FetchConcurrency != 4 {
		t.Errorf("fetch = %v / %d", c.FetchTimeout, c.FetchConcurrency)
	}
	if c.LogLevel != "info" || c.LogFormat != "text" || c.MetricsFile != "" || c.HistoryDB != "" {
		t.Errorf("logging/outputs = %+v", c)
	}
}

func TestLoad_env(t *testing.T) {
	os.Clearenv()
	os.Setenv("IPTV_COLLECT_TEMPLATE", "/etc/iptv/template.txt")
	os.Setenv("IPTV_COLLECT_VALIDATE_TIMEOUT", "3s")
	os.Setenv("IPTV_COLLECT_VALIDATE_RATE", "12.5")
	os.Setenv("IPTV_COLLECT_VALIDATE_PER_HOST", "0")
	os.Setenv("IPTV_COLLECT_FETCH_CONCURRENCY", "-1")
	os.Setenv("IPTV_COLLECT_HISTORY_DB", "/var/lib/iptv/history.db")
	c := Load()
	if c.TemplatePath != "/etc/iptv/template.txt" {
		t.Errorf("TemplatePath = %q", c.TemplatePath)
	}
	if c.ValidateTimeout != 3*time.Second {
		t.Errorf("ValidateTimeout = %v", c.ValidateTimeout)
	}
	if c.ValidateRate != 12.5 {
		t.Errorf("ValidateRate = %v", c.ValidateRate)
	}
	if c.ValidatePerHost != 0 {
		t.Errorf("ValidatePerHost = %d, want 0 (unlimited)", c.ValidatePerHost)
	}
	if c.FetchConcurrency != 4 {
		t.Errorf("FetchConcurrency = %d, want default for invalid value", c.FetchConcurrency)
	}
	if c.HistoryDB != "/var/lib/iptv/history.db" {
		t.Errorf("HistoryDB = %q", c.HistoryDB)
	}
}

func TestLoad_badDurationKeepsDefault(t *testing.T) {
	os.Clearenv()
	os.Setenv("IPTV_COLLECT_VALIDATE_TIMEOUT", "soon")
	if got := Load().ValidateTimeout; got != 10*time.Second {
		t.Errorf("ValidateTimeout = %v", got)
	}
}

func TestSourceURLs_envOverridesFile(t *testing.T) {
	os.Clearenv()
	p := &Playlist{Sources: []string{"http://file/a"}}
	c := Load()
	if got := c.SourceURLs(p); !reflect.DeepEqual(got, []string{"http://file/a"}) {
		t.Errorf("SourceURLs() = %v", got)
	}
	os.Setenv("IPTV_COLLECT_SOURCES", " http://env/a , ,http://env/b")
	want := []string{"http://env/a", "http://env/b"}
	if got := c.SourceURLs(p); !reflect.DeepEqual(got, want) {
		t.Errorf("SourceURLs() = %v, want %v", got, want)
	}
	if got := c.SourceURLs(nil); !reflect.DeepEqual(got, want) {
		t.Errorf("SourceURLs(nil) = %v", got)
	}
}

const samplePlaylist = `
sources:
  - "https://example.com/a.m3u"
  - "  "
  - "https://example.com/b.txt"
epg_urls: ["https://epg.example/e.xml"]
url_blacklist: ["badhost", "epg.pw/stream/"]
ip_version_priority: IPv6
validate_at_fetch: true
logo_url: "https://example.com/logo/{name}.png"
announcements:
  - channel: "Updated"
    entries:
      - { name: null, url: "https://example.com/a.mp4", logo: "https://example.com/a.png" }
      - { name: "Notice", url: "https://example.com/b.mp4" }
`

func TestParsePlaylist(t *testing.T) {
	p, err := ParsePlaylist([]byte(samplePlaylist))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p.Sources, []string{"https://example.com/a.m3u", "https://example.com/b.txt"}) {
		t.Errorf("Sources = %v", p.Sources)
	}
	if p.IPVersionPriority != "ipv6" || !p.ValidateAtFetch {
		t.Errorf("priority/validate = %q / %v", p.IPVersionPriority, p.ValidateAtFetch)
	}
	if len(p.URLBlacklist) != 2 || p.LogoURL == "" || len(p.EPGURLs) != 1 {
		t.Errorf("playlist = %+v", p)
	}
	want := []catalog.AnnouncementGroup{{
		Channel: "Updated",
		Entries: []catalog.Announcement{
			{URL: "https://example.com/a.mp4", Logo: "https://example.com/a.png"},
			{Name: "Notice", URL: "https://example.com/b.mp4"},
		},
	}}
	if !reflect.DeepEqual(p.Announcements, want) {
		t.Errorf("Announcements = %+v", p.Announcements)
	}
}

func TestParsePlaylist_defaultsAndErrors(t *testing.T) {
	p, err := ParsePlaylist(nil)
	if err != nil {
		t.Fatalf("empty file: %v", err)
	}
	if p.IPVersionPriority != "ipv4" {
		t.Errorf("IPVersionPriority = %q", p.IPVersionPriority)
	}
	for name, body := range map[string]string{
		"bad priority":     "ip_version_priority: ipx\n",
		"unknown key":      "source: [a]\n",
		"nameless channel": "announcements:\n  - entries: []\n",
	} {
		if _, err := ParsePlaylist([]byte(body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadPlaylist_missing(t *testing.T) {
	_, err := LoadPlaylist(filepath.Join(t.TempDir(), "collect.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateAtFetch_envOverride(t *testing.T) {
	os.Clearenv()
	c := Load()
	p := &Playlist{ValidateAtFetch: true}
	if !c.ValidateAtFetch(p) {
		t.Error("file setting ignored")
	}
	os.Setenv("IPTV_COLLECT_VALIDATE_AT_FETCH", "false")
	if c.ValidateAtFetch(p) {
		t.Error("env override ignored")
	}
	if c.ValidateAtFetch(nil) {
		t.Error("nil playlist should default to false")
	}
}
