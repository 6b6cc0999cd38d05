package indexer

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/snapetech/iptvcollect/internal/catalog"
)

const (
	maxLineSize = 1 << 20 // 1 MiB per line

	// detectWindow is how many leading lines are inspected for #EXTINF.
	detectWindow = 15
)

// Format is the payload layout of a source.
type Format string

const (
	FormatM3U Format = "m3u" // #EXTINF info line followed by a URL line
	FormatTXT Format = "txt" // "Category,#genre#" lines followed by "name,url" lines
)

// Detect classifies lines as tag-based when any of the first few carries #EXTINF.
func Detect(lines []string) Format {
	n := len(lines)
	if n > detectWindow {
		n = detectWindow
	}
	for _, line := range lines[:n] {
		if strings.Contains(line, "#EXTINF") {
			return FormatM3U
		}
	}
	return FormatTXT
}

// Parse detects the payload format and extracts (category, name, url) entries in order.
func Parse(r io.Reader) (Format, []catalog.SourceEntry, error) {
	lines, err := readLines(r)
	if err != nil {
		return "", nil, err
	}
	format := Detect(lines)
	if format == FormatM3U {
		return format, parseM3ULines(lines), nil
	}
	return format, parseTXTLines(lines), nil
}

// ParseBytes is Parse over an in-memory payload.
func ParseBytes(data []byte) (Format, []catalog.SourceEntry, error) {
	return Parse(bytes.NewReader(data))
}

// readLines returns trimmed lines; a leading UTF-8 BOM is dropped.
func readLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if len(lines) == 0 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	return lines, sc.Err()
}
