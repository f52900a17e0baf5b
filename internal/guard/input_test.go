package guard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInputGuardTruncatesOverLength(t *testing.T) {
	g := NewInputGuard(Limits{MaxLength: 500})

	for _, n := range []int{501, 750, 5000} {
		out := g.Check(strings.Repeat("a", n))
		require.False(t, out.Valid)
		repaired, ok := out.Text()
		require.True(t, ok)
		require.LessOrEqual(t, len([]rune(repaired)), 500-100+len(truncationMarker))
		require.True(t, strings.HasSuffix(repaired, truncationMarker))
		require.Contains(t, out.Errors[0], "maximum length of 500")
	}
}

func TestInputGuardDefaultLimits(t *testing.T) {
	g := NewInputGuard(Limits{})
	require.Equal(t, DefaultMaxInputLength, g.Limits().MaxLength)
	require.Equal(t, DefaultMinInputLength, g.Limits().MinLength)
	require.Equal(t, DefaultMaxURLLength, g.Limits().MaxURLLength)

	out := g.Check(strings.Repeat("b", DefaultMaxInputLength+1))
	repaired, _ := out.Text()
	require.Len(t, []rune(repaired), DefaultMaxInputLength-100+len(truncationMarker))
}

func TestInputGuardTooShortKeepsText(t *testing.T) {
	out := NewInputGuard(Limits{}).Check("hi")
	require.False(t, out.Valid)
	require.Equal(t, "hi", out.Repaired)
	require.Len(t, out.Errors, 1)
}

func TestInputGuardRepairsBareWWW(t *testing.T) {
	g := NewInputGuard(Limits{})
	for _, host := range []string{"www.example.com", "www.bbc.co.uk/news", "WWW.Formula1.com/en/latest"} {
		out := g.Check("Summarize " + host + " for me")
		require.True(t, out.Valid, "errors: %v", out.Errors)
		require.Contains(t, out.Repaired, "https://"+host)
	}
}

func TestInputGuardLeavesSchemedURLsAlone(t *testing.T) {
	text := "Summarize https://www.bbc.com/news/articles/cg72x3dd7ydo please."
	out := NewInputGuard(Limits{}).Check(text)
	require.True(t, out.Valid)
	require.Equal(t, text, out.Repaired)
}

func TestInputGuardOversizedURLIsHardFailure(t *testing.T) {
	long := "https://example.com/" + strings.Repeat("x", 2100)
	out := NewInputGuard(Limits{}).Check("open " + long)
	require.False(t, out.Valid)
	require.Contains(t, out.Errors[0], "URL exceeds maximum length")
	require.Contains(t, out.Repaired, long, "oversized URLs are reported, never truncated")
}

func TestInputGuardOversizedURLBelowPreviewLength(t *testing.T) {
	g := NewInputGuard(Limits{MaxURLLength: 20})
	var out Outcome
	require.NotPanics(t, func() {
		out = g.Check("see https://example.com/abcdefghij please")
	})
	require.False(t, out.Valid)
	require.Len(t, out.Errors, 1)
	require.Contains(t, out.Errors[0], "maximum length of 20 characters: https://example.com/abcdefghij...")
}

func TestInputGuardInvalidURL(t *testing.T) {
	out := NewInputGuard(Limits{}).Check("see https://. and www.example.com")
	require.False(t, out.Valid)
	require.Len(t, out.Errors, 1)
	require.Contains(t, out.Errors[0], "Invalid URL format")
	require.Contains(t, out.Repaired, "https://www.example.com")
}

func TestInputGuardContentPolicy(t *testing.T) {
	g := NewInputGuard(Limits{DenyList: []string{"forbidden"}})
	out := g.Check("This is FORBIDDEN text")
	require.False(t, out.Valid)
	require.Equal(t, []string{"Text contains potentially inappropriate content"}, out.Errors)
	require.Equal(t, "This is FORBIDDEN text", out.Repaired)
}

func TestInputGuardEmailTypos(t *testing.T) {
	out := NewInputGuard(Limits{}).Check("mail anmol@gmial.com and raj@hotmial.com, cc ops@outlook.com")
	require.True(t, out.Valid)
	require.Equal(t, "mail anmol@gmail.com and raj@hotmail.com, cc ops@outlook.com", out.Repaired)
}

func TestInputGuardMalformedEmail(t *testing.T) {
	out := NewInputGuard(Limits{}).Check("write to admin@localhost today")
	require.False(t, out.Valid)
	require.Equal(t, []string{"Invalid email format: admin@localhost"}, out.Errors)
	require.Equal(t, "write to admin@localhost today", out.Repaired)
}

func TestInputGuardCollectsEveryFailure(t *testing.T) {
	g := NewInputGuard(Limits{MaxLength: 200})
	text := "obscene www.example.com user@gmial.com root@box " + strings.Repeat("z", 200)
	out := g.Check(text)
	require.False(t, out.Valid)
	require.Len(t, out.Errors, 3)
	require.Contains(t, out.Errors[0], "maximum length")
	require.Contains(t, out.Errors[1], "inappropriate")
	require.Contains(t, out.Errors[2], "root@box")

	repaired, _ := out.Text()
	require.Contains(t, repaired, "https://www.example.com")
	require.Contains(t, repaired, "user@gmail.com")
	require.True(t, strings.HasSuffix(repaired, truncationMarker))
}
