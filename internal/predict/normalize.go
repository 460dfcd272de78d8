// Package predict normalizes heterogeneous external-provider outputs into a
// single usable URL.
package predict

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoURL is returned when no URL can be extracted from a provider output.
var ErrNoURL = errors.New("no url in provider output")

// knownKeys are probed, in order, on object-shaped outputs.
var knownKeys = []string{"url", "image", "output"}

// FirstURL extracts the authoritative output URL from one of the three
// provider response shapes: a bare string, an array of URLs (the first wins),
// or a keyed object. Objects are probed for the known keys first; failing
// that, the first string value starting with "http" is used.
func FirstURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", ErrNoURL
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("decode provider output: %w", err)
	}
	return fromValue(v)
}

func fromValue(v any) (string, error) {
	switch out := v.(type) {
	case string:
		if s := strings.TrimSpace(out); s != "" {
			return s, nil
		}
	case []any:
		if len(out) > 0 {
			if s, ok := out[0].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), nil
			}
		}
	case map[string]any:
		for _, key := range knownKeys {
			if s, ok := out[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s), nil
			}
			// A known key may itself hold an array shape.
			if arr, ok := out[key].([]any); ok && len(arr) > 0 {
				if s, ok := arr[0].(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s), nil
				}
			}
		}
		// Deterministic fallback scan over the remaining values.
		keys := make([]string, 0, len(out))
		for k := range out {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := out[k].(string); ok && strings.HasPrefix(s, "http") {
				return s, nil
			}
		}
	}
	return "", ErrNoURL
}
