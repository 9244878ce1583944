package filter

import (
	"strings"

	"github.com/yourorg/trainlink/pkg/types"
)

// Sanitize removes every deny-listed key from a request payload, at any depth.
// Matching is case-insensitive. The message is modified in place and returned.
func Sanitize(msg types.Message, keys []string) types.Message {
	if msg == nil {
		return nil
	}
	set := toLowerSet(keys)
	if len(set) == 0 {
		return msg
	}
	stripValue(msg, set)
	return msg
}

func toLowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, v := range items {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}

func stripValue(v any, set map[string]struct{}) {
	switch val := v.(type) {
	case types.Message:
		for k, v2 := range val {
			if _, ok := set[strings.ToLower(k)]; ok {
				delete(val, k)
				continue
			}
			stripValue(v2, set)
		}
	case []any:
		for i := range val {
			stripValue(val[i], set)
		}
	}
}
