package engine

import (
	"slices"
	"strings"
)

// Merges override "KEY=value" entries on top of a base env slice.
//
// Entries without "=" are dropped. The result is sorted by key so callers
// get a stable order regardless of map iteration.
func MergeEnv(base, overrides []string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for _, entry := range base {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}
	for _, entry := range overrides {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}

	result := make([]string, 0, len(merged))
	for k, v := range merged {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}
