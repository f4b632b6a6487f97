package expand

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	strftime "github.com/ncruces/go-strftime"
)

// DefaultTimeLayout is applied to time values that carry no explicit layout.
const DefaultTimeLayout = "%Y-%m-%d %H:%M:%S"

var (
	// ErrUnknownKey reports a placeholder with no matching value.
	ErrUnknownKey = errors.New("unknown template key")
	// ErrSyntax reports an unbalanced or empty placeholder.
	ErrSyntax = errors.New("template syntax error")
)

// Vars maps placeholder names to substitution values. Supported value types
// are string, fmt.Stringer, integers, float64, bool, and time.Time.
type Vars map[string]any

// With returns a copy of v extended with the given key/value.
func (v Vars) With(key string, value any) Vars {
	out := make(Vars, len(v)+1)
	for k, val := range v {
		out[k] = val
	}
	out[key] = value
	return out
}

// Expand replaces every placeholder in tmpl with its value from vars.
func Expand(tmpl string, vars Vars) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl) + 32)
	err := walk(tmpl, func(literal string) {
		b.WriteString(literal)
	}, func(key, spec string) error {
		value, ok := vars[key]
		if !ok {
			return fmt.Errorf("%w: {%s}", ErrUnknownKey, key)
		}
		formatted, err := format(value, spec)
		if err != nil {
			return fmt.Errorf("{%s}: %w", key, err)
		}
		b.WriteString(formatted)
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// MustExpand is Expand for templates built in code; it panics on error.
func MustExpand(tmpl string, vars Vars) string {
	out, err := Expand(tmpl, vars)
	if err != nil {
		panic(err)
	}
	return out
}

// Keys lists the placeholder names referenced by tmpl in order of appearance.
func Keys(tmpl string) ([]string, error) {
	var keys []string
	err := walk(tmpl, func(string) {}, func(key, _ string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Check verifies that tmpl parses and references only allowed keys.
func Check(tmpl string, allowed ...string) error {
	keys, err := Keys(tmpl)
	if err != nil {
		return err
	}
	set := make(map[string]struct{}, len(allowed))
	for _, key := range allowed {
		set[key] = struct{}{}
	}
	for _, key := range keys {
		if _, ok := set[key]; !ok {
			return fmt.Errorf("%w: {%s}", ErrUnknownKey, key)
		}
	}
	return nil
}

func walk(tmpl string, literal func(string), placeholder func(key, spec string) error) error {
	start := 0
	for i := 0; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				literal(tmpl[start:i] + "{")
				i++
				start = i + 1
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return fmt.Errorf("%w: unclosed '{' at offset %d", ErrSyntax, i)
			}
			literal(tmpl[start:i])
			body := tmpl[i+1 : i+1+end]
			key, spec, _ := strings.Cut(body, ":")
			key = strings.TrimSpace(key)
			if key == "" || strings.ContainsAny(key, "{ ") {
				return fmt.Errorf("%w: invalid placeholder %q", ErrSyntax, "{"+body+"}")
			}
			if err := placeholder(key, spec); err != nil {
				return err
			}
			i += end + 1
			start = i + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				literal(tmpl[start:i] + "}")
				i++
				start = i + 1
				continue
			}
			return fmt.Errorf("%w: unmatched '}' at offset %d", ErrSyntax, i)
		}
	}
	literal(tmpl[start:])
	return nil
}

func format(value any, spec string) (string, error) {
	switch v := value.(type) {
	case time.Time:
		layout := spec
		if layout == "" {
			layout = DefaultTimeLayout
		}
		return strftime.Format(layout, v), nil
	case string:
		if spec != "" {
			return "", fmt.Errorf("format spec %q not supported for strings", spec)
		}
		return v, nil
	case int:
		return formatInt(int64(v), spec)
	case int64:
		return formatInt(v, spec)
	case uint64:
		return formatInt(int64(v), spec)
	case float64:
		if spec == "" {
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
		return fmt.Sprintf("%"+spec, v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(v), nil
	}
}

func formatInt(v int64, spec string) (string, error) {
	if spec == "" {
		return strconv.FormatInt(v, 10), nil
	}
	if !strings.HasSuffix(spec, "d") {
		return "", fmt.Errorf("format spec %q not supported for integers", spec)
	}
	width := strings.TrimSuffix(spec, "d")
	if width != "" {
		if _, err := strconv.Atoi(width); err != nil {
			return "", fmt.Errorf("format spec %q: %w", spec, err)
		}
	}
	return fmt.Sprintf("%"+width+"d", v), nil
}
