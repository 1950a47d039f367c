package executor

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderRe matches {{variable}} placeholders, with optional whitespace
// inside the braces.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// interpolate replaces {{variable}} placeholders in s with values from the
// context. Unknown variables are left in place so the collaborator sees
// exactly what was unresolved.
func interpolate(s string, vars map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		val, ok := lookupVar(name, vars)
		if !ok {
			return match
		}
		return stringify(val)
	})
}

// interpolateParams returns a copy of params with every string value
// interpolated. Nested maps and slices are walked recursively.
func interpolateParams(params map[string]any, vars map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = interpolateValue(v, vars)
	}
	return out
}

func interpolateValue(v any, vars map[string]any) any {
	switch val := v.(type) {
	case string:
		return interpolate(val, vars)
	case map[string]any:
		return interpolateParams(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = interpolateValue(item, vars)
		}
		return out
	default:
		return v
	}
}

// lookupVar resolves a possibly-dotted name against the context. A dotted
// name walks nested maps: "user.name" reads vars["user"]["name"].
func lookupVar(name string, vars map[string]any) (any, bool) {
	if vars == nil {
		return nil, false
	}
	if val, ok := vars[name]; ok {
		return val, true
	}

	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return nil, false
	}
	var cur any = vars
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// stringify renders a context value for placeholder substitution.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// Render whole floats without a trailing .0 so counts read naturally.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
