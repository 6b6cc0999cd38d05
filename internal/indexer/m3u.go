package indexer

import (
	"regexp"
	"strings"

	"github.com/snapetech/iptvcollect/internal/catalog"
)

// groupTitleRe captures the group-title attribute and the display name after the attribute list.
var groupTitleRe = regexp.MustCompile(`group-title="(.*?)",(.*)`)

// ParseM3U extracts entries from a tag-based playlist regardless of what Detect would say.
func ParseM3U(data []byte) []catalog.SourceEntry {
	lines, _ := readLines(strings.NewReader(string(data)))
	return parseM3ULines(lines)
}

// parseM3ULines pairs each #EXTINF carrying group-title with the next non-comment line.
// An #EXTINF without group-title clears the pending channel so its URL is skipped.
func parseM3ULines(lines []string) []catalog.SourceEntry {
	var out []catalog.SourceEntry
	var category, name string
	pending := false
	for _, line := range lines {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXTINF") {
			category, name, pending = "", "", false
			if m := groupTitleRe.FindStringSubmatch(line); m != nil {
				category = strings.TrimSpace(m[1])
				name = strings.TrimSpace(m[2])
				pending = category != "" && name != ""
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if !pending {
			continue
		}
		out = append(out, catalog.SourceEntry{Category: category, Name: name, URL: line})
		pending = false
	}
	return out
}
