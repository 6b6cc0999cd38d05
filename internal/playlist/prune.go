package playlist

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/snapetech/iptvcollect/internal/indexer"
	"github.com/snapetech/iptvcollect/internal/safeurl"
)

// Pruned is a previous output file with its unreachable URL lines removed.
type Pruned struct {
	Path    string
	Format  indexer.Format
	Data    []byte // surviving content, as written back
	Kept    int
	Dropped int
}

// Prune re-validates the URL lines of a previously written playlist and rewrites it in place,
// keeping comment, blank and category lines verbatim (trimmed). m3u URL lines are validated
// as-is; txt lines as "name,url". Only the base URL (before the first '$') is probed.
//
// A missing or unreadable file is returned as an error and means "no prior URLs".
func (w *Writer) Prune(ctx context.Context, path string) (Pruned, error) {
	return w.prune(ctx, path, nil)
}

// prune validates through known, which may hold verdicts from earlier in the same run.
func (w *Writer) prune(ctx context.Context, path string, known map[string]bool) (Pruned, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Pruned{Path: path}, err
	}
	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	// A trailing newline is not a blank line of its own.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	if len(lines) > 0 {
		lines[0] = strings.TrimPrefix(lines[0], "\ufeff")
	}
	format := indexer.Detect(lines)

	bases := make([]string, len(lines))
	var probe []string
	for i, line := range lines {
		u, ok := lineURL(format, line)
		if !ok {
			continue
		}
		bases[i] = safeurl.Base(u)
		probe = append(probe, bases[i])
	}
	verdicts := w.validate(ctx, probe, known)
	// Verdicts gathered under a cancelled context are all false; keep the file as is.
	if err := ctx.Err(); err != nil {
		return Pruned{Path: path}, err
	}

	out := Pruned{Path: path, Format: format}
	var buf bytes.Buffer
	for i, line := range lines {
		if _, ok := lineURL(format, line); ok {
			if !verdicts[bases[i]] {
				out.Dropped++
				continue
			}
			out.Kept++
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	out.Data = buf.Bytes()
	if err := writeFileAtomic(path, out.Data); err != nil {
		return out, fmt.Errorf("prune %s: %w", path, err)
	}
	return out, nil
}

// lineURL returns the URL carried by a playlist line, or false for comment, blank and
// category lines.
func lineURL(format indexer.Format, line string) (string, bool) {
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	if format == indexer.FormatM3U {
		return line, true
	}
	if strings.Contains(line, indexer.GenreMarker) {
		return "", false
	}
	if _, u, ok := strings.Cut(line, ","); ok {
		return strings.TrimSpace(u), true
	}
	return line, true
}
