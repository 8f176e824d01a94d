package logger

import (
	"context"
	"sort"

	"cryptoDataPipeline/internal/ports"
)

// field is one rendered key/value pair.
type field struct {
	Key   string
	Value interface{}
}

// collectFields merges context fields with every call-site map, later maps
// overriding earlier ones, and returns them sorted by key. Both adapters emit
// fields in this order.
func collectFields(ctx context.Context, fields []map[string]interface{}) []field {
	merged := make(map[string]interface{})
	for k, v := range ports.LogFields(ctx) {
		merged[k] = v
	}
	for _, m := range fields {
		for k, v := range m {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}

	out := make([]field, 0, len(merged))
	for k, v := range merged {
		out = append(out, field{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
