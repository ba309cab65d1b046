package coord

import "strings"

// GetPath resolves a dot-separated field path against a snapshot. The
// second return reports whether the path resolved to a value.
func GetPath(snapshot map[string]any, path string) (any, bool) {
	var current any = snapshot
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetPath returns a copy of the snapshot with the value placed at the
// dot-separated path. Intermediate maps are copied, not mutated, and are
// created where missing or where a non-map value is in the way.
func SetPath(snapshot map[string]any, path string, value any) map[string]any {
	parts := strings.Split(path, ".")
	result := copyMap(snapshot)

	current := result
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
		} else {
			next = copyMap(next)
		}
		current[part] = next
		current = next
	}
	current[parts[len(parts)-1]] = value
	return result
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
