package telemetry

import (
	"maps"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// maxValueLen drops string values that are long enough to smuggle a record.
const maxValueLen = 256

// deniedFragments keep request material off spans. Feature records describe
// real crashes and are never exported as attributes.
var deniedFragments = []string{"feature", "record", "authorization", "key", "token", "secret"}

func denied(key string) bool {
	k := strings.ToLower(key)
	return slices.ContainsFunc(deniedFragments, func(f string) bool { return strings.Contains(k, f) })
}

// SafeAttributes turns prediction span fields into attributes ordered by key.
// Denied keys, long strings and values that are not a string, bool, int or
// float64 are left out.
func SafeAttributes(fields map[string]any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if denied(k) {
			continue
		}
		switch v := fields[k].(type) {
		case string:
			if len(v) <= maxValueLen {
				attrs = append(attrs, attribute.String(k, v))
			}
		case bool:
			attrs = append(attrs, attribute.Bool(k, v))
		case int:
			attrs = append(attrs, attribute.Int(k, v))
		case float64:
			attrs = append(attrs, attribute.Float64(k, v))
		}
	}
	return attrs
}
