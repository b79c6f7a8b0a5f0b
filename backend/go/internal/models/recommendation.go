package models

import "strings"

// RecommendationRecord is the set of items suggested for one query.
type RecommendationRecord struct {
	Query string   `json:"query"`
	Items []string `json:"items"`
}

// RecommendationKey normalizes a query into the key used in EntityState.Recommendations.
func RecommendationKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// RememberItems returns prev followed by the new items in items that prev does not already
// hold (case-insensitive), keeping only the last max entries when max > 0.
func RememberItems(prev, items []string, max int) []string {
	out := append([]string(nil), prev...)
	seen := make(map[string]bool, len(prev)+len(items))
	for _, it := range prev {
		seen[strings.ToLower(it)] = true
	}
	for _, it := range items {
		it = strings.TrimSpace(it)
		key := strings.ToLower(it)
		if it == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}
