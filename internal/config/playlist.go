package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/snapetech/iptvcollect/internal/catalog"
)

// Playlist is the operator's collection file: which sources to read and how to shape output.
type Playlist struct {
	Sources           []string                    `yaml:"sources"`
	EPGURLs           []string                    `yaml:"epg_urls"`
	URLBlacklist      []string                    `yaml:"url_blacklist"`
	IPVersionPriority string                      `yaml:"ip_version_priority"` // ipv4 | ipv6
	ValidateAtFetch   bool                        `yaml:"validate_at_fetch"`
	LogoURL           string                      `yaml:"logo_url"`
	Announcements     []catalog.AnnouncementGroup `yaml:"announcements"`
}

// LoadPlaylist reads and checks the YAML playlist file. Unknown keys are rejected so typos
// don't silently disable a setting.
func LoadPlaylist(path string) (*Playlist, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("playlist config: %w", err)
	}
	return ParsePlaylist(data)
}

// ParsePlaylist decodes a playlist YAML document. Empty input yields the defaults.
func ParsePlaylist(data []byte) (*Playlist, error) {
	var p Playlist
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("playlist config: %w", err)
	}
	p.Sources = trimList(p.Sources)
	p.EPGURLs = trimList(p.EPGURLs)
	p.URLBlacklist = trimList(p.URLBlacklist)
	switch v := strings.ToLower(strings.TrimSpace(p.IPVersionPriority)); v {
	case "":
		p.IPVersionPriority = "ipv4"
	case "ipv4", "ipv6":
		p.IPVersionPriority = v
	default:
		return nil, fmt.Errorf("playlist config: ip_version_priority %q: want ipv4 or ipv6", p.IPVersionPriority)
	}
	for i, g := range p.Announcements {
		if strings.TrimSpace(g.Channel) == "" {
			return nil, fmt.Errorf("playlist config: announcements[%d]: channel is required", i)
		}
	}
	return &p, nil
}

// ValidateAtFetch reports whether sources are filtered while fetching.
// IPTV_COLLECT_VALIDATE_AT_FETCH overrides the file.
func (c *Config) ValidateAtFetch(p *Playlist) bool {
	return getEnvBool("IPTV_COLLECT_VALIDATE_AT_FETCH", p != nil && p.ValidateAtFetch)
}

func trimList(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
