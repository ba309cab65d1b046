package version

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Serialize renders a snapshot as stable, human-readable text suitable for
// line-level diffing. Keys are sorted so output does not depend on map
// iteration order; nested values are JSON with sorted keys.
func Serialize(snapshot map[string]any) string {
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+": "+renderValue(snapshot[key]))
	}
	return strings.Join(lines, "\n")
}

// ChangedSections lists the top-level keys whose value differs between two
// snapshots, sorted.
func ChangedSections(oldSnapshot, newSnapshot map[string]any) []string {
	seen := make(map[string]struct{}, len(oldSnapshot)+len(newSnapshot))
	for key := range oldSnapshot {
		seen[key] = struct{}{}
	}
	for key := range newSnapshot {
		seen[key] = struct{}{}
	}

	var changed []string
	for key := range seen {
		if stableStringify(oldSnapshot[key]) != stableStringify(newSnapshot[key]) {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case map[string]any, []any:
		return stableStringify(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// stableStringify is deterministic because encoding/json writes map keys in
// sorted order.
func stableStringify(value any) string {
	if value == nil {
		return "null"
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}
