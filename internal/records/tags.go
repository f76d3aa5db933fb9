package records

import "strings"

// NormalizeTags lowercases and trims tags, dropping empties and
// case-insensitive duplicates. First occurrence order is preserved so a tag
// set round-trips stably through both backends.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
