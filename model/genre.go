package model

import "strings"

// NormalizeGenres canonicalizes genre input arriving at the API boundary.
// Clients historically send either a single string ("Rock"), a comma-joined
// string ("Rock, Jazz"), or a JSON array; everything is normalized once into
// an ordered, de-duplicated list before entering the core.
func NormalizeGenres(raw interface{}) []string {
	var parts []string
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Split(v, ",")
	case []string:
		parts = v
	case []interface{}:
		for _, e := range v {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
		}
	default:
		return nil
	}

	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		g := strings.TrimSpace(p)
		if g == "" {
			continue
		}
		key := strings.ToLower(g)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, g)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// JoinGenres flattens a canonical genre list for column storage.
func JoinGenres(genres []string) string {
	return strings.Join(genres, ",")
}

// SplitGenres is the inverse of JoinGenres.
func SplitGenres(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
