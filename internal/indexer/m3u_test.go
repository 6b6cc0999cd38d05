package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/iptvcollect/internal/catalog"
)

func TestParseBytes_empty(t *testing.T) {
	format, entries, err := ParseBytes([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, FormatTXT, format)
	assert.Empty(t, entries)
}

func TestParseBytes_m3u(t *testing.T) {
	m3u := `#EXTM3U x-tvg-url="http://epg/e.xml"
#EXTINF:-1 tvg-id="1" tvg-name="CCTV1" group-title="央视",CCTV1
http://example.com/cctv1.m3u8
#EXTINF:-1 tvg-name="Music" group-title="Radio",Music FM
#EXTVLCOPT:http-user-agent=x
http://example.com/music

#EXTINF:-1,No Group
http://example.com/nogroup
#EXTINF:-1 group-title="News",
http://example.com/noname
`
	format, entries, err := ParseBytes([]byte(m3u))
	require.NoError(t, err)
	assert.Equal(t, FormatM3U, format)
	assert.Equal(t, []catalog.SourceEntry{
		{Category: "央视", Name: "CCTV1", URL: "http://example.com/cctv1.m3u8"},
		{Category: "Radio", Name: "Music FM", URL: "http://example.com/music"},
	}, entries)
}

// Each #EXTINF owns exactly the next URL line; a stray second URL is not attributed to it.
func TestParseM3U_oneURLPerInfoLine(t *testing.T) {
	entries := ParseM3U([]byte(`#EXTM3U
#EXTINF:-1 group-title="G",A
http://a/1
http://a/2
#EXTINF:-1 group-title="G",B
http://b/1
`))
	assert.Equal(t, []catalog.SourceEntry{
		{Category: "G", Name: "A", URL: "http://a/1"},
		{Category: "G", Name: "B", URL: "http://b/1"},
	}, entries)
}

func TestDetect_window(t *testing.T) {
	lines := make([]string, 20)
	lines[19] = "#EXTINF:-1 group-title=\"G\",A"
	assert.Equal(t, FormatTXT, Detect(lines), "#EXTINF past the detection window does not count")
	lines[14] = "#EXTINF:-1"
	assert.Equal(t, FormatM3U, Detect(lines))
}
