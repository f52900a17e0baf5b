// Package prompts loads the perception and decision templates and renders
// them with named placeholders.
//
// Templates use single-brace placeholders such as {user_input}. Literal
// braces are written doubled: {{ and }}.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Embedded default template names.
const (
	Perception = "perception_prompt.txt"
	Decision   = "decision_prompt.txt"
)

var (
	// ErrMissingPlaceholder is returned when a template names a value that
	// was not supplied.
	ErrMissingPlaceholder = errors.New("missing placeholder value")
	// ErrMalformedTemplate is returned for unbalanced braces.
	ErrMalformedTemplate = errors.New("malformed template")
)

//go:embed templates/*.txt
var defaults embed.FS

// Load returns the template at path, or the embedded template named
// fallback when path is empty.
func Load(path, fallback string) (string, error) {
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read prompt %s: %w", path, err)
		}
		return string(data), nil
	}
	data, err := defaults.ReadFile("templates/" + fallback)
	if err != nil {
		return "", fmt.Errorf("embedded prompt %s: %w", fallback, err)
	}
	return string(data), nil
}

// HasPlaceholder reports whether tmpl contains the literal {name}.
func HasPlaceholder(tmpl, name string) bool {
	return strings.Contains(tmpl, "{"+name+"}")
}

// Render substitutes every {name} in tmpl with values[name]. Values may be
// supplied that the template does not use.
func Render(tmpl string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed '{' at offset %d", ErrMalformedTemplate, i)
			}
			name := tmpl[i+1 : i+1+end]
			if !validName(name) {
				return "", fmt.Errorf("%w: bad placeholder %q at offset %d", ErrMalformedTemplate, name, i)
			}
			v, ok := values[name]
			if !ok {
				return "", fmt.Errorf("%w: %s", ErrMissingPlaceholder, name)
			}
			b.WriteString(v)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}' at offset %d", ErrMalformedTemplate, i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
