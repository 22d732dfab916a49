package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Filter keys accepted by topic discovery. Other keys are ignored.
const (
	FilterYearFrom      = "year_from"
	FilterYearTo        = "year_to"
	FilterMinCitations  = "min_citations"
	FilterOpenAccess    = "open_access"
	FilterFieldsOfStudy = "fields_of_study"
)

// DiscoveryFilters narrows a topic search. Zero values mean "no constraint".
type DiscoveryFilters struct {
	YearFrom      int      `json:"year_from,omitempty"`
	YearTo        int      `json:"year_to,omitempty"`
	MinCitations  int      `json:"min_citations,omitempty"`
	OpenAccess    bool     `json:"open_access,omitempty"`
	FieldsOfStudy []string `json:"fields_of_study,omitempty"`
}

// IsZero reports whether no filter is set.
func (f DiscoveryFilters) IsZero() bool {
	return f.YearFrom == 0 && f.YearTo == 0 && f.MinCitations == 0 && !f.OpenAccess && len(f.FieldsOfStudy) == 0
}

// ParseDiscoveryFilters reads a loosely typed filter map as produced by JSON
// decoding or query strings. Unknown keys and unparseable values are ignored.
func ParseDiscoveryFilters(raw map[string]any) DiscoveryFilters {
	var f DiscoveryFilters
	for key, value := range raw {
		switch strings.ToLower(strings.TrimSpace(key)) {
		case FilterYearFrom:
			f.YearFrom, _ = toInt(value)
		case FilterYearTo:
			f.YearTo, _ = toInt(value)
		case FilterMinCitations:
			f.MinCitations, _ = toInt(value)
		case FilterOpenAccess:
			f.OpenAccess, _ = toBool(value)
		case FilterFieldsOfStudy:
			f.FieldsOfStudy = toStrings(value)
		}
	}
	if f.YearFrom < 0 {
		f.YearFrom = 0
	}
	if f.YearTo < 0 {
		f.YearTo = 0
	}
	if f.MinCitations < 0 {
		f.MinCitations = 0
	}
	return f
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, false
		}
		return parsed, true
	case float64:
		return b != 0, true
	case int:
		return b != 0, true
	}
	return false, false
}

func toStrings(v any) []string {
	var items []string
	switch s := v.(type) {
	case string:
		items = strings.Split(s, ",")
	case []string:
		items = s
	case []any:
		for _, item := range s {
			if str, ok := item.(string); ok {
				items = append(items, str)
			}
		}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
