package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesAndUnescapes(t *testing.T) {
	out, err := Render(`Tools:
{tool_descriptions}
Example: {{"input": {{"a": 1}}}}
Q: {user_input}`, map[string]string{
		"tool_descriptions": "- add: Add two numbers",
		"user_input":        "what is {x}?",
		"unused":            "ignored",
	})
	require.NoError(t, err)
	require.Equal(t, `Tools:
- add: Add two numbers
Example: {"input": {"a": 1}}
Q: what is {x}?`, out)
}

func TestRenderMissingValue(t *testing.T) {
	_, err := Render("{servers_text}\n{user_input}", map[string]string{"user_input": "hi"})
	require.ErrorIs(t, err, ErrMissingPlaceholder)
	require.ErrorContains(t, err, "servers_text")
}

func TestRenderMalformed(t *testing.T) {
	cases := []string{
		`{"intent": "x"}`,
		"open {brace",
		"close } brace",
		"{}",
		"{1abc}",
	}
	for _, tmpl := range cases {
		t.Run(tmpl, func(t *testing.T) {
			_, err := Render(tmpl, map[string]string{"intent": "x"})
			require.ErrorIs(t, err, ErrMalformedTemplate)
		})
	}
}

func TestHasPlaceholder(t *testing.T) {
	require.True(t, HasPlaceholder("a {history_context} b", "history_context"))
	require.False(t, HasPlaceholder("a {user_input}", "history_context"))
}

func TestEmbeddedTemplatesRender(t *testing.T) {
	perception, err := Load("", Perception)
	require.NoError(t, err)
	out, err := Render(perception, map[string]string{
		"servers_text": "- math: Math tools",
		"user_input":   "add 2 and 3",
	})
	require.NoError(t, err)
	require.Contains(t, out, "- math: Math tools")
	require.Contains(t, out, `"selected_servers": [`)

	decision, err := Load("", Decision)
	require.NoError(t, err)
	out, err = Render(decision, map[string]string{
		"tool_descriptions": "- add: Add",
		"memory_texts":      "None",
		"user_input":        "add 2 and 3",
	})
	require.NoError(t, err)
	require.Contains(t, out, `await mcp.call_tool('add', {"input": {"a": 5, "b": 3}})`)
	require.Contains(t, out, `return f"FINAL_ANSWER: {value}"`)
	require.False(t, HasPlaceholder(decision, "history_context"))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.txt")
	require.NoError(t, os.WriteFile(path, []byte("custom {user_input}"), 0o644))

	tmpl, err := Load(path, Decision)
	require.NoError(t, err)
	require.Equal(t, "custom {user_input}", tmpl)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"), Decision)
	require.Error(t, err)
}
