package transform

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Operation names for value transforms.
const (
	OpTrim     = "trim"
	OpUpper    = "upper"
	OpLower    = "lower"
	OpTitle    = "title"
	OpCast     = "cast"     // cast:int|float|bool|string
	OpSplit    = "split"    // split:<delimiter>
	OpReplace  = "replace"  // replace:<old>=<new>
	OpPrefix   = "prefix"   // prefix:<value>
	OpSuffix   = "suffix"   // suffix:<value>
	OpCoalesce = "coalesce" // coalesce:<column> — use another row column when empty
)

// validOps maps operation names to whether they require an argument.
var validOps = map[string]bool{
	OpTrim:     false,
	OpUpper:    false,
	OpLower:    false,
	OpTitle:    false,
	OpCast:     true,
	OpSplit:    true,
	OpReplace:  true,
	OpPrefix:   true,
	OpSuffix:   true,
	OpCoalesce: true,
}

var castTypes = map[string]bool{
	"int":    true,
	"float":  true,
	"bool":   true,
	"string": true,
}

var titleCaser = cases.Title(language.Und)

// Parse splits a transform spec like "split:;" into operation and argument.
func Parse(spec string) (op, arg string) {
	op, arg, _ = strings.Cut(spec, ":")
	return op, arg
}

// Validate checks that a single transform spec is well formed.
func Validate(spec string) error {
	op, arg := Parse(spec)
	needsArg, ok := validOps[op]
	if !ok {
		return fmt.Errorf("unknown transform %q", op)
	}
	if needsArg && arg == "" {
		return fmt.Errorf("transform %q requires an argument", op)
	}
	if op == OpCast && !castTypes[arg] {
		return fmt.Errorf("cast: unknown target type %q", arg)
	}
	if op == OpReplace && !strings.Contains(arg, "=") {
		return fmt.Errorf("replace: expected old=new, got %q", arg)
	}
	return nil
}

// ValidateAll validates a transform chain.
func ValidateAll(specs []string) error {
	for i, spec := range specs {
		if err := Validate(spec); err != nil {
			return fmt.Errorf("transform %d: %w", i, err)
		}
	}
	return nil
}

// Apply runs a transform chain over a value in order. Each transform
// receives the source row as context. Nil values pass through untouched.
func Apply(specs []string, value any, row map[string]any) (any, error) {
	var err error
	for _, spec := range specs {
		value, err = applyOne(spec, value, row)
		if err != nil {
			return nil, fmt.Errorf("applying %q: %w", spec, err)
		}
	}
	return value, nil
}

func applyOne(spec string, value any, row map[string]any) (any, error) {
	op, arg := Parse(spec)

	if op == OpCoalesce {
		if isEmpty(value) {
			return row[arg], nil
		}
		return value, nil
	}

	if value == nil {
		return nil, nil
	}

	switch op {
	case OpTrim:
		return mapString(value, strings.TrimSpace), nil
	case OpUpper:
		return mapString(value, strings.ToUpper), nil
	case OpLower:
		return mapString(value, strings.ToLower), nil
	case OpTitle:
		return mapString(value, titleCaser.String), nil
	case OpSplit:
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		parts := strings.Split(s, arg)
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case OpReplace:
		from, to, _ := strings.Cut(arg, "=")
		return mapString(value, func(s string) string {
			return strings.ReplaceAll(s, from, to)
		}), nil
	case OpPrefix:
		return mapString(value, func(s string) string { return arg + s }), nil
	case OpSuffix:
		return mapString(value, func(s string) string { return s + arg }), nil
	case OpCast:
		return cast(value, arg)
	default:
		return nil, fmt.Errorf("unknown transform %q", op)
	}
}

// mapString applies f to string values, and to each element of a string
// slice; other types pass through unchanged.
func mapString(value any, f func(string) string) any {
	switch v := value.(type) {
	case string:
		return f(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			if s, ok := e.(string); ok {
				out[i] = f(s)
			} else {
				out[i] = e
			}
		}
		return out
	default:
		return value
	}
}

func cast(value any, target string) (any, error) {
	switch target {
	case "string":
		return fmt.Sprintf("%v", value), nil
	case "int":
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("casting %q to int: %w", v, err)
			}
			return n, nil
		}
	case "float":
		switch v := value.(type) {
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("casting %q to float: %w", v, err)
			}
			return f, nil
		}
	case "bool":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(strings.ToLower(v)))
			if err != nil {
				return nil, fmt.Errorf("casting %q to bool: %w", v, err)
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("cannot cast %T to %s", value, target)
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && s == ""
}
