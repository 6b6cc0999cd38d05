// Package playlist turns matched channels into the live.m3u and live.txt outputs.
package playlist

import (
	"bufio"
	"io"
	"strings"

	"github.com/snapetech/iptvcollect/internal/indexer"
)

// Record is one output line pair, shared by both renderers.
type Record struct {
	Category string
	Name     string
	URL      string
	Logo     string
	TVGID    string
}

// Group is an output category. Groups without records still get a header in live.txt.
type Group struct {
	Category string
	Records  []Record
}

// RenderM3U writes the tag-based playlist: the header naming the EPG sources, then two
// lines per record.
func RenderM3U(w io.Writer, epgURLs []string, groups []Group) error {
	bw := bufio.NewWriter(w)
	quoted := make([]string, len(epgURLs))
	for i, u := range epgURLs {
		quoted[i] = `"` + u + `"`
	}
	bw.WriteString("#EXTM3U x-tvg-url=" + strings.Join(quoted, ",") + "\n")
	for _, g := range groups {
		for _, r := range g.Records {
			bw.WriteString(`#EXTINF:-1 tvg-id="` + r.TVGID +
				`" tvg-name="` + r.Name +
				`" tvg-logo="` + r.Logo +
				`" group-title="` + g.Category + `",` + r.Name + "\n")
			bw.WriteString(r.URL + "\n")
		}
	}
	return bw.Flush()
}

// RenderTXT writes the flat playlist: a "Category,#genre#" header per group followed by
// "name,url" lines, and one trailing blank line.
func RenderTXT(w io.Writer, groups []Group) error {
	bw := bufio.NewWriter(w)
	for _, g := range groups {
		bw.WriteString(g.Category + "," + indexer.GenreMarker + "\n")
		for _, r := range g.Records {
			bw.WriteString(r.Name + "," + r.URL + "\n")
		}
	}
	bw.WriteString("\n")
	return bw.Flush()
}
