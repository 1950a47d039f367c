package executor

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/jfeld/taskforge/pkg/models"
)

// The condition grammar is deliberately tiny: one operand, or two operands
// joined by a comparison operator. Operands are identifiers (context
// variables or step references like `fetch.success`), numbers, quoted
// strings, or the literals true/false. There is no general expression
// evaluation and never any code execution.

type condToken struct {
	kind  string // "ident", "number", "string", "bool", "op"
	text  string
	num   float64
	truth bool
}

// evalCondition evaluates a restricted comparison expression against the
// task's variables and prior step results.
func evalCondition(expr string, vars map[string]any, results map[string]*models.StepResult) (bool, error) {
	tokens, err := lexCondition(expr)
	if err != nil {
		return false, err
	}

	switch len(tokens) {
	case 1:
		val, err := resolveOperand(tokens[0], vars, results)
		if err != nil {
			return false, err
		}
		return truthy(val), nil
	case 3:
		if tokens[1].kind != "op" {
			return false, fmt.Errorf("expected comparison operator, got %q", tokens[1].text)
		}
		left, err := resolveOperand(tokens[0], vars, results)
		if err != nil {
			return false, err
		}
		right, err := resolveOperand(tokens[2], vars, results)
		if err != nil {
			return false, err
		}
		return compare(left, tokens[1].text, right)
	default:
		return false, fmt.Errorf("malformed condition %q: expected `operand` or `operand op operand`", expr)
	}
}

// lexCondition splits the expression into at most three tokens.
func lexCondition(expr string) ([]condToken, error) {
	var tokens []condToken
	s := strings.TrimSpace(expr)
	if s == "" {
		return nil, fmt.Errorf("empty condition expression")
	}

	for len(s) > 0 {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			break
		}
		switch {
		case strings.HasPrefix(s, ">="), strings.HasPrefix(s, "<="),
			strings.HasPrefix(s, "=="), strings.HasPrefix(s, "!="):
			tokens = append(tokens, condToken{kind: "op", text: s[:2]})
			s = s[2:]
		case s[0] == '>' || s[0] == '<':
			tokens = append(tokens, condToken{kind: "op", text: s[:1]})
			s = s[1:]
		case s[0] == '\'' || s[0] == '"':
			quote := s[0]
			end := strings.IndexByte(s[1:], quote)
			if end == -1 {
				return nil, fmt.Errorf("unterminated string in condition %q", expr)
			}
			tokens = append(tokens, condToken{kind: "string", text: s[1 : end+1]})
			s = s[end+2:]
		case s[0] == '-' || unicode.IsDigit(rune(s[0])):
			end := 1
			for end < len(s) && (unicode.IsDigit(rune(s[end])) || s[end] == '.') {
				end++
			}
			num, err := strconv.ParseFloat(s[:end], 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q in condition", s[:end])
			}
			tokens = append(tokens, condToken{kind: "number", num: num})
			s = s[end:]
		case unicode.IsLetter(rune(s[0])) || s[0] == '_':
			end := 1
			for end < len(s) && (unicode.IsLetter(rune(s[end])) || unicode.IsDigit(rune(s[end])) ||
				s[end] == '_' || s[end] == '.' || s[end] == '-') {
				end++
			}
			word := s[:end]
			s = s[end:]
			switch word {
			case "true":
				tokens = append(tokens, condToken{kind: "bool", truth: true})
			case "false":
				tokens = append(tokens, condToken{kind: "bool", truth: false})
			default:
				tokens = append(tokens, condToken{kind: "ident", text: word})
			}
		default:
			return nil, fmt.Errorf("unexpected character %q in condition %q", s[0], expr)
		}
		if len(tokens) > 3 {
			return nil, fmt.Errorf("condition %q has too many terms", expr)
		}
	}
	return tokens, nil
}

// resolveOperand turns a token into a value. Identifiers resolve against
// the context; a first segment naming a prior step resolves against its
// result (success, output, error, status).
func resolveOperand(tok condToken, vars map[string]any, results map[string]*models.StepResult) (any, error) {
	switch tok.kind {
	case "number":
		return tok.num, nil
	case "string":
		return tok.text, nil
	case "bool":
		return tok.truth, nil
	case "ident":
		if val, ok := resolveStepRef(tok.text, results); ok {
			return val, nil
		}
		if val, ok := lookupVar(tok.text, vars); ok {
			return val, nil
		}
		return nil, nil // unknown identifiers evaluate as nil, not errors
	default:
		return nil, fmt.Errorf("operator %q used as operand", tok.text)
	}
}

// resolveStepRef resolves `<stepID>.<field>` against prior step results.
func resolveStepRef(name string, results map[string]*models.StepResult) (any, bool) {
	idx := strings.IndexByte(name, '.')
	if idx == -1 || results == nil {
		return nil, false
	}
	result, ok := results[name[:idx]]
	if !ok {
		return nil, false
	}
	switch name[idx+1:] {
	case "success":
		return result.Success(), true
	case "output", "data":
		return result.Data, true
	case "error":
		return result.Error, true
	case "status":
		return string(result.Status), true
	default:
		return nil, false
	}
}

// compare applies a comparison operator to two resolved values.
// Relational operators require both sides to be numeric.
func compare(left any, op string, right any) (bool, error) {
	switch op {
	case "==", "!=":
		eq := looseEqual(left, right)
		if op == "!=" {
			return !eq, nil
		}
		return eq, nil
	case ">", "<", ">=", "<=":
		ln, lok := toNumber(left)
		rn, rok := toNumber(right)
		if !lok || !rok {
			return false, fmt.Errorf("operator %q requires numeric operands (got %T and %T)", op, left, right)
		}
		switch op {
		case ">":
			return ln > rn, nil
		case "<":
			return ln < rn, nil
		case ">=":
			return ln >= rn, nil
		default:
			return ln <= rn, nil
		}
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// looseEqual compares values with numeric coercion so `count == 3` holds
// whether count was stored as int or float64.
func looseEqual(left, right any) bool {
	if ln, lok := toNumber(left); lok {
		if rn, rok := toNumber(right); rok {
			return ln == rn
		}
	}
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

// toNumber coerces the numeric types JSON and YAML decoding produce.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// truthy reports whether a bare operand counts as true.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != "" && val != "false" && val != "0"
	default:
		if n, ok := toNumber(v); ok {
			return n != 0
		}
		return true
	}
}
