package browser

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// wrapScript turns a statement body into a function expression. Bodies use
// `return` to produce a value. Function expressions pass through unchanged.
func wrapScript(script string) string {
	script = strings.TrimSpace(script)
	if strings.HasPrefix(script, "()") ||
		strings.HasPrefix(script, "function") ||
		strings.HasPrefix(script, "async ") {
		return script
	}
	return fmt.Sprintf("function() {\n%s\n}", script)
}

// normalizeResult makes a script result JSON-serializable. Values that cannot
// be encoded degrade to their string form.
func normalizeResult(v interface{}) interface{} {
	switch r := v.(type) {
	case nil, string, bool, int, int64:
		return r
	case json.Number:
		if i, err := r.Int64(); err == nil {
			return i
		}
		if f, err := r.Float64(); err == nil {
			return normalizeResult(f)
		}
		return r.String()
	case float64:
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return fmt.Sprint(r)
		}
		return r
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Sprint(r)
		}
		var out interface{}
		if err := json.Unmarshal(data, &out); err != nil {
			return string(data)
		}
		return out
	default:
		return fmt.Sprint(r)
	}
}
