package paperscraper

import "strings"

// RecordFilter maps record field names (see Record.Field) to keywords.
// A record passes when any listed field contains any of its keywords,
// ignoring case. An empty filter passes every record.
type RecordFilter map[string][]string

// Match reports whether r passes the filter.
func (f RecordFilter) Match(r *Record) bool {
	if len(f) == 0 {
		return true
	}
	for field, words := range f {
		value := strings.ToLower(r.Field(field))
		if value == "" {
			continue
		}
		for _, w := range words {
			if w != "" && strings.Contains(value, strings.ToLower(w)) {
				return true
			}
		}
	}
	return false
}
