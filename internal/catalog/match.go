package catalog

// Matched holds, per template category and channel name, the candidate URLs found for that name.
// Candidates keep index order; the same URL may appear more than once.
type Matched struct {
	urls map[string]map[string][]string
}

// URLs returns the candidates for name under the template category, or nil when nothing matched.
func (m *Matched) URLs(category, name string) []string {
	if m == nil {
		return nil
	}
	return m.urls[category][name]
}

// Append adds extra candidates for (category, name) after the existing ones.
func (m *Matched) Append(category, name string, urls ...string) {
	if len(urls) == 0 {
		return
	}
	if m.urls == nil {
		m.urls = make(map[string]map[string][]string)
	}
	byName := m.urls[category]
	if byName == nil {
		byName = make(map[string][]string)
		m.urls[category] = byName
	}
	byName[name] = append(byName[name], urls...)
}

// Count is the number of (category, name) pairs with at least one candidate.
func (m *Matched) Count() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, byName := range m.urls {
		n += len(byName)
	}
	return n
}

// Match looks up every template channel by name across all index categories.
// Matching ignores the category an entry was fetched under; names compare exactly.
func Match(tpl *Template, ix *Index) *Matched {
	m := &Matched{urls: make(map[string]map[string][]string)}
	if tpl == nil || ix == nil {
		return m
	}
	byName := make(map[string][]string)
	for _, cat := range ix.order {
		for _, e := range ix.entries[cat] {
			byName[e.Name] = append(byName[e.Name], e.URL)
		}
	}
	for _, tc := range tpl.Categories {
		for _, name := range tc.Channels {
			if m.URLs(tc.Name, name) != nil {
				continue
			}
			m.Append(tc.Name, name, byName[name]...)
		}
	}
	return m
}
