package guard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// Shape names the structured contract a model response must satisfy.
type Shape string

const (
	ShapeNone       Shape = ""
	ShapeJSON       Shape = "json"
	ShapeToolCall   Shape = "tool_call"
	ShapePerception Shape = "perception"
	ShapePlan       Shape = "plan"
)

const (
	PlaceholderName        = "default_tool"
	PlaceholderItemName    = "unnamed_item"
	PlaceholderDescription = "No description provided."
	PlaceholderURL         = "https://example.com"
	NotAvailable           = "N/A"
)

// requiredFields lists, per shape, the fields every response must carry.
var requiredFields = map[Shape][]string{
	ShapeToolCall:   {"name", "args"},
	ShapePerception: {"selected_servers"},
	ShapePlan:       {"steps"},
}

var (
	fencePattern       = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
	singleQuotedKey    = regexp.MustCompile(`'([^']*)':\s*`)
	singleQuotedValue  = regexp.MustCompile(`:\s*'([^']*)'`)
	bareKey            = regexp.MustCompile(`([{,]\s*)([a-zA-Z0-9_]+)(\s*:)`)
	errTrailingContent = errors.New("unexpected content after JSON value")
)

// RequiredFields returns the required field names for a shape, if any.
func RequiredFields(shape Shape) []string {
	return append([]string(nil), requiredFields[shape]...)
}

// CheckOutput extracts, repairs and validates a model response against shape.
// With ShapeNone the text passes through untouched and is reported valid.
func CheckOutput(text string, shape Shape) Outcome {
	out := Outcome{Valid: true, Repaired: text}
	if shape == ShapeNone {
		return out
	}

	parsed, err := parseLenient(ExtractBlock(text))
	if err != nil {
		out.fail(fmt.Sprintf("Invalid JSON format: %v", err))
		return out
	}

	if fields, ok := requiredFields[shape]; ok {
		parsed = backfillRequired(parsed, shape, fields, &out)
	}
	backfillEmpty(parsed, &out)

	out.Repaired = parsed
	return out
}

// ExtractBlock returns the interior of the first fenced code block in text,
// or the trimmed text when there is none.
func ExtractBlock(text string) string {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// Normalize rewrites single-quoted keys and values to double quotes and quotes
// bare identifier keys. It is a textual repair and may disturb punctuation
// inside string values.
func Normalize(text string) string {
	text = singleQuotedKey.ReplaceAllString(text, `"${1}": `)
	text = singleQuotedValue.ReplaceAllString(text, `: "${1}"`)
	return bareKey.ReplaceAllString(text, `${1}"${2}"${3}`)
}

// parseLenient decodes text strictly first and only falls back to the
// normalized form when that fails, so valid JSON is never rewritten.
func parseLenient(text string) (any, error) {
	v, err := decode(text)
	if err == nil {
		return v, nil
	}
	if v, nerr := decode(Normalize(text)); nerr == nil {
		return v, nil
	}
	return nil, err
}

func decode(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingContent
	}
	return v, nil
}

func backfillRequired(v any, shape Shape, fields []string, out *Outcome) any {
	obj, ok := v.(map[string]any)
	if !ok {
		out.fail(fmt.Sprintf("Expected a JSON object for %s output", shape))
		return v
	}
	var missing []string
	for _, f := range fields {
		if _, present := obj[f]; !present {
			missing = append(missing, f)
			obj[f] = requiredDefault(f)
		}
	}
	if len(missing) > 0 {
		out.fail(fmt.Sprintf("Missing required fields: %s", strings.Join(missing, ", ")))
	}
	return obj
}

func requiredDefault(field string) any {
	switch field {
	case "name":
		return PlaceholderName
	case "args":
		return map[string]any{}
	case "selected_servers", "steps":
		return []any{}
	default:
		return nil
	}
}

func backfillEmpty(v any, out *Outcome) {
	var empty []string
	walkEmpty(v, "", &empty)
	if len(empty) > 0 {
		out.fail(fmt.Sprintf("Found empty values for keys: %s", strings.Join(empty, ", ")))
	}
}

func walkEmpty(v any, path string, empty *[]string) {
	switch node := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if path != "" {
				child = path + "." + k
			}
			if isEmpty(node[k]) {
				*empty = append(*empty, child)
				node[k] = emptyDefault(k)
				continue
			}
			walkEmpty(node[k], child, empty)
		}
	case []any:
		for i, item := range node {
			walkEmpty(item, fmt.Sprintf("%s[%d]", path, i), empty)
		}
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func emptyDefault(key string) string {
	lower := strings.ToLower(key)
	switch {
	case strings.Contains(lower, "name"):
		return PlaceholderItemName
	case strings.Contains(lower, "description"):
		return PlaceholderDescription
	case strings.Contains(lower, "url"):
		return PlaceholderURL
	default:
		return NotAvailable
	}
}

// Marshal renders a structured value in the canonical indented form used
// when handing repaired output back to callers.
func Marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
