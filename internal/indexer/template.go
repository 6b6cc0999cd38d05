package indexer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/snapetech/iptvcollect/internal/catalog"
)

// GenreMarker marks a category line in templates and flat playlists ("News,#genre#").
const GenreMarker = "#genre#"

// ParseTemplateFile reads the channel template at path.
func ParseTemplateFile(path string) (*catalog.Template, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	defer f.Close()
	tpl, err := ParseTemplate(f)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return tpl, nil
}

// ParseTemplate reads category and channel declarations in file order.
// Blank lines, '#' comments and channel lines before the first category are skipped;
// only the first comma field of a channel line is used.
func ParseTemplate(r io.Reader) (*catalog.Template, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}
	tpl := &catalog.Template{}
	current := ""
	open := false
	for _, line := range lines {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, GenreMarker) {
			current = firstField(line)
			tpl.Open(current)
			open = true
			continue
		}
		if !open {
			continue
		}
		name := firstField(line)
		if name == "" {
			continue
		}
		c := tpl.Open(current)
		c.Channels = append(c.Channels, name)
	}
	return tpl, nil
}

func firstField(line string) string {
	name, _, _ := strings.Cut(line, ",")
	return strings.TrimSpace(name)
}
