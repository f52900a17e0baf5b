package guard

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestCheckOutputNonePassesThrough(t *testing.T) {
	out := CheckOutput("not json at all", ShapeNone)
	require.True(t, out.Valid)
	require.Empty(t, out.Errors)
	require.Equal(t, "not json at all", out.Repaired)
}

func TestCheckOutputRepairsQuotesAndBareKeys(t *testing.T) {
	out := CheckOutput("```json\n{'name': 'x', args: {}}\n```", ShapeToolCall)
	require.True(t, out.Valid, "errors: %v", out.Errors)

	want := map[string]any{"name": "x", "args": map[string]any{}}
	if diff := cmp.Diff(want, out.Repaired); diff != "" {
		t.Fatalf("repaired mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckOutputBackfillsMissingPerceptionField(t *testing.T) {
	out := CheckOutput("{}", ShapePerception)
	require.False(t, out.Valid)
	require.Equal(t, []string{"Missing required fields: selected_servers"}, out.Errors)
	require.Equal(t, map[string]any{"selected_servers": []any{}}, out.Repaired)
}

func TestCheckOutputBackfillsToolCallDefaults(t *testing.T) {
	out := CheckOutput(`{"tool": "add"}`, ShapeToolCall)
	require.False(t, out.Valid)
	require.Equal(t, map[string]any{
		"tool": "add",
		"name": PlaceholderName,
		"args": map[string]any{},
	}, out.Repaired)
}

func TestCheckOutputBackfillsEmptyValues(t *testing.T) {
	out := CheckOutput(`{"name": "", "description": null}`, ShapeJSON)
	require.False(t, out.Valid)
	require.Equal(t, map[string]any{
		"name":        PlaceholderItemName,
		"description": PlaceholderDescription,
	}, out.Repaired)
	require.Len(t, out.Errors, 1)
	require.Contains(t, out.Errors[0], "description")
	require.Contains(t, out.Errors[0], "name")
}

func TestCheckOutputEmptyValuesNested(t *testing.T) {
	out := CheckOutput(`{"steps": [{"tool_url": " ", "note": null}], "meta": {"display_name": ""}}`, ShapePlan)
	require.False(t, out.Valid)
	want := map[string]any{
		"steps": []any{map[string]any{"tool_url": PlaceholderURL, "note": NotAvailable}},
		"meta":  map[string]any{"display_name": PlaceholderItemName},
	}
	if diff := cmp.Diff(want, out.Repaired); diff != "" {
		t.Fatalf("repaired mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"Found empty values for keys: meta.display_name, steps[0].note, steps[0].tool_url"}, out.Errors)
}

func TestCheckOutputParseFailureReturnsRawText(t *testing.T) {
	raw := "async def solve():\n    return 'FINAL_ANSWER: 4'"
	out := CheckOutput(raw, ShapePlan)
	require.False(t, out.Valid)
	require.Len(t, out.Errors, 1)
	require.Contains(t, out.Errors[0], "Invalid JSON format")
	require.Equal(t, raw, out.Repaired)
	require.False(t, out.Structured())
}

func TestCheckOutputRejectsTrailingGarbage(t *testing.T) {
	out := CheckOutput(`{"selected_servers": []} and more`, ShapePerception)
	require.False(t, out.Valid)
	_, isText := out.Text()
	require.True(t, isText)
}

func TestCheckOutputNonObjectForRequiredShape(t *testing.T) {
	out := CheckOutput(`["math", "documents"]`, ShapePerception)
	require.False(t, out.Valid)
	require.Equal(t, []any{"math", "documents"}, out.Repaired)
}

func TestCheckOutputKeepsPunctuationInValidJSON(t *testing.T) {
	text := `{"intent": "note, time: 5pm", "selected_servers": ["math"]}`
	out := CheckOutput(text, ShapePerception)
	require.True(t, out.Valid)
	require.Equal(t, "note, time: 5pm", out.Repaired.(map[string]any)["intent"])
}

func TestCheckOutputIsIdempotent(t *testing.T) {
	text := `{"intent": "math", "entities": ["INDIA"], "tool_hint": "ascii", "count": 12, "selected_servers": ["math"]}`

	first := CheckOutput(text, ShapePerception)
	require.True(t, first.Valid)

	rendered, err := Marshal(first.Repaired)
	require.NoError(t, err)

	second := CheckOutput(rendered, ShapePerception)
	require.True(t, second.Valid)
	require.Empty(t, second.Errors)
	if diff := cmp.Diff(first.Repaired, second.Repaired); diff != "" {
		t.Fatalf("second pass changed the value (-first +second):\n%s", diff)
	}
	require.Equal(t, json.Number("12"), second.Repaired.(map[string]any)["count"])
}

func TestExtractBlock(t *testing.T) {
	require.Equal(t, `{"a": 1}`, ExtractBlock("Here you go:\n```json\n{\"a\": 1}\n```\nthanks"))
	require.Equal(t, `{"a": 1}`, ExtractBlock("```\n{\"a\": 1}\n```"))
	require.Equal(t, `{"a": 1}`, ExtractBlock("  {\"a\": 1}  "))
}

func TestMarshalDoesNotEscapeHTML(t *testing.T) {
	s, err := Marshal(map[string]any{"q": "a < b && c"})
	require.NoError(t, err)
	require.Equal(t, "{\n  \"q\": \"a < b && c\"\n}", s)
}
