package catalog

// Index is every channel found across all sources, grouped by the category each source listed it under.
// Categories keep first-seen order; entries keep source order then in-source order. Nothing is deduplicated.
type Index struct {
	order   []string
	entries map[string][]ChannelEntry
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string][]ChannelEntry)}
}

// Add appends entries under category, creating the category on first sight.
func (ix *Index) Add(category string, entries ...ChannelEntry) {
	if ix.entries == nil {
		ix.entries = make(map[string][]ChannelEntry)
	}
	if _, ok := ix.entries[category]; !ok {
		ix.order = append(ix.order, category)
		ix.entries[category] = nil
	}
	ix.entries[category] = append(ix.entries[category], entries...)
}

// Merge appends one source's entries in their parsed order.
func (ix *Index) Merge(src []SourceEntry) {
	for _, e := range src {
		ix.Add(e.Category, ChannelEntry{Name: e.Name, URL: e.URL})
	}
}

// Categories returns category names in first-seen order.
func (ix *Index) Categories() []string {
	out := make([]string, len(ix.order))
	copy(out, ix.order)
	return out
}

// Entries returns the entries listed under category.
func (ix *Index) Entries(category string) []ChannelEntry {
	return ix.entries[category]
}

// Len is the total number of entries.
func (ix *Index) Len() int {
	n := 0
	for _, es := range ix.entries {
		n += len(es)
	}
	return n
}

// Aggregate merges per-source entry lists in source-list order.
func Aggregate(sources ...[]SourceEntry) *Index {
	ix := NewIndex()
	for _, src := range sources {
		ix.Merge(src)
	}
	return ix
}
