package indexer

import (
	"strings"

	"github.com/snapetech/iptvcollect/internal/catalog"
)

// ParseTXT extracts entries from a flat playlist regardless of what Detect would say.
func ParseTXT(data []byte) []catalog.SourceEntry {
	lines, _ := readLines(strings.NewReader(string(data)))
	return parseTXTLines(lines)
}

// parseTXTLines reads "Category,#genre#" sections of "name,url" lines. A line without a
// comma is a bare URL with an empty name. Lines before the first category are ignored.
func parseTXTLines(lines []string) []catalog.SourceEntry {
	var out []catalog.SourceEntry
	category := ""
	open := false
	for _, line := range lines {
		if line == "" {
			continue
		}
		if strings.Contains(line, GenreMarker) {
			category = firstField(line)
			open = true
			continue
		}
		if !open || strings.HasPrefix(line, "#") {
			continue
		}
		name, url := "", line
		if n, u, ok := strings.Cut(line, ","); ok {
			name, url = strings.TrimSpace(n), strings.TrimSpace(u)
		}
		if url == "" {
			continue
		}
		out = append(out, catalog.SourceEntry{Category: category, Name: name, URL: url})
	}
	return out
}
