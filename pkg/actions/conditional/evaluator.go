package conditional

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/template"
)

// Evaluate interprets a condition expression against the execution
// context. Supported forms: comparisons with == != > < >= <=,
// contains / notContains, and clauses joined by && and ||. Operands are
// template-resolved, quote-stripped and coerced to number, bool or
// string before comparison. && binds tighter than ||.
func Evaluate(expression string, execCtx *models.ExecutionContext) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return false, ErrConditionRequired
	}

	data := template.ContextData(execCtx)

	for _, clause := range strings.Split(expression, "||") {
		result, err := evaluateConjunction(clause, data)
		if err != nil {
			return false, err
		}

		if result {
			return true, nil
		}
	}

	return false, nil
}

func evaluateConjunction(clause string, data map[string]any) (bool, error) {
	for _, term := range strings.Split(clause, "&&") {
		result, err := evaluateComparison(term, data)
		if err != nil {
			return false, err
		}

		if !result {
			return false, nil
		}
	}

	return true, nil
}

// operators are tried in order; two-character operators first so ">="
// is not misread as ">".
var operators = []string{"==", "!=", ">=", "<=", ">", "<", " notContains ", " contains "}

func evaluateComparison(term string, data map[string]any) (bool, error) {
	term = strings.TrimSpace(term)

	for _, op := range operators {
		idx := strings.Index(term, op)
		if idx < 0 {
			continue
		}

		left := coerce(template.Resolve(strings.TrimSpace(term[:idx]), data))
		right := coerce(template.Resolve(strings.TrimSpace(term[idx+len(op):]), data))

		return compare(left, right, strings.TrimSpace(op))
	}

	// a bare term is truthy when it coerces to true
	if b, ok := coerce(template.Resolve(term, data)).(bool); ok {
		return b, nil
	}

	return false, fmt.Errorf("unsupported condition term %q", term)
}

func compare(left, right any, op string) (bool, error) {
	switch op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case ">", "<", ">=", "<=":
		return ordered(left, right, op)
	case "contains":
		return contains(left, right), nil
	case "notContains":
		return !contains(left, right), nil
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

func equal(left, right any) bool {
	if lnum, lok := toNumber(left); lok {
		if rnum, rok := toNumber(right); rok {
			return lnum == rnum
		}
	}

	return stringify(left) == stringify(right)
}

func ordered(left, right any, op string) (bool, error) {
	lnum, lok := toNumber(left)
	rnum, rok := toNumber(right)

	if lok && rok {
		switch op {
		case ">":
			return lnum > rnum, nil
		case "<":
			return lnum < rnum, nil
		case ">=":
			return lnum >= rnum, nil
		default:
			return lnum <= rnum, nil
		}
	}

	lstr, rstr := stringify(left), stringify(right)

	switch op {
	case ">":
		return lstr > rstr, nil
	case "<":
		return lstr < rstr, nil
	case ">=":
		return lstr >= rstr, nil
	default:
		return lstr <= rstr, nil
	}
}

func contains(left, right any) bool {
	if list, ok := left.([]any); ok {
		for _, item := range list {
			if equal(item, right) {
				return true
			}
		}

		return false
	}

	return strings.Contains(stringify(left), stringify(right))
}

// coerce normalizes a resolved operand: quoted literals lose their
// quotes, numeric and boolean strings become typed values.
func coerce(value any) any {
	str, ok := value.(string)
	if !ok {
		return value
	}

	str = strings.TrimSpace(str)

	if len(str) >= 2 {
		if (str[0] == '\'' && str[len(str)-1] == '\'') || (str[0] == '"' && str[len(str)-1] == '"') {
			return str[1 : len(str)-1]
		}
	}

	if num, err := strconv.ParseFloat(str, 64); err == nil {
		return num
	}

	if b, err := strconv.ParseBool(str); err == nil {
		return b
	}

	return str
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func stringify(value any) string {
	return fmt.Sprintf("%v", value)
}
