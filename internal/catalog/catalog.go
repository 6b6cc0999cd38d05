package catalog

// TemplateCategory is one output category and the channel names wanted under it, in output order.
type TemplateCategory struct {
	Name     string
	Channels []string
}

// Template is the operator-curated output structure. Category and channel order drive output order.
// Built once per run by the template parser; treat as read-only afterwards.
type Template struct {
	Categories []TemplateCategory
}

// Category returns the named category or nil.
func (t *Template) Category(name string) *TemplateCategory {
	if t == nil {
		return nil
	}
	for i := range t.Categories {
		if t.Categories[i].Name == name {
			return &t.Categories[i]
		}
	}
	return nil
}

// Open returns the category named name, appending an empty one when it is not present yet.
// A category that is opened twice keeps its original position.
func (t *Template) Open(name string) *TemplateCategory {
	if c := t.Category(name); c != nil {
		return c
	}
	t.Categories = append(t.Categories, TemplateCategory{Name: name})
	return &t.Categories[len(t.Categories)-1]
}

// ChannelCount is the total number of channel declarations (duplicates included).
func (t *Template) ChannelCount() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, c := range t.Categories {
		n += len(c.Channels)
	}
	return n
}

// ChannelEntry is one (name, url) pair found in a source.
type ChannelEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// SourceEntry is a channel as parsed from a source, still carrying the category it was listed under.
type SourceEntry struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}

// Announcement is a fixed entry injected at the head of the output. An empty Name is
// replaced with the run date when the playlist is written.
type Announcement struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
	Logo string `yaml:"logo" json:"logo"`
}

// AnnouncementGroup is an output category holding announcements only.
type AnnouncementGroup struct {
	Channel string         `yaml:"channel" json:"channel"`
	Entries []Announcement `yaml:"entries" json:"entries"`
}
