package documents

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newLibrary(t *testing.T, opts Options) (*Library, string) {
	t.Helper()
	root := t.TempDir()
	lib, err := Open(root, opts)
	require.NoError(t, err)
	return lib, root
}

func TestOpenRequiresDirectory(t *testing.T) {
	_, err := Open("", Options{})
	require.Error(t, err)

	_, err = Open(filepath.Join(t.TempDir(), "missing"), Options{})
	require.ErrorContains(t, err, "documents root")

	file := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = Open(file, Options{})
	require.ErrorContains(t, err, "not a directory")
}

func TestListFiltersAndSorts(t *testing.T) {
	lib, root := newLibrary(t, Options{})
	writeDoc(t, root, "b.md", "beta")
	writeDoc(t, root, "nested/a.txt", "alpha")
	writeDoc(t, root, "image.png", "binary")
	writeDoc(t, root, ".git/config.txt", "hidden")

	paths, err := lib.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"b.md", "nested/a.txt"}, paths)
}

func TestListRespectsMaxFiles(t *testing.T) {
	lib, root := newLibrary(t, Options{MaxFiles: 2})
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeDoc(t, root, name, name)
	}
	paths, err := lib.List(context.Background())
	require.NoError(t, err)
	require.Len(t, paths, 2)
}

func TestReadGuardsPaths(t *testing.T) {
	lib, root := newLibrary(t, Options{MaxFileBytes: 5})
	writeDoc(t, root, "notes.txt", "hello world")
	writeDoc(t, root, "pic.png", "png")

	text, err := lib.Read("notes.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", text)

	_, err = lib.Read("../etc/passwd.txt")
	require.ErrorContains(t, err, "escapes")
	_, err = lib.Read("/etc/hosts.txt")
	require.ErrorContains(t, err, "absolute")
	_, err = lib.Read("pic.png")
	require.ErrorContains(t, err, "not a supported document")
	_, err = lib.Read("")
	require.Error(t, err)
}

func TestSearchRanksPassages(t *testing.T) {
	lib, root := newLibrary(t, Options{})
	writeDoc(t, root, "gensol.md", "Gensol Engineering leases vehicles.\n\nGo-Auto sold vehicles to Gensol.")
	writeDoc(t, root, "tesla.txt", "Tesla opened its patents.")

	hits, err := lib.Search(context.Background(), "Gensol Go-Auto", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.Equal(t, "gensol.md", hits[0].Source)
	require.Equal(t, 1.0, hits[0].Score)
	for _, h := range hits {
		require.NotEqual(t, "tesla.txt", h.Source)
	}

	_, err = lib.Search(context.Background(), "  ", 5)
	require.ErrorContains(t, err, "query is required")
}

func TestSearchLimit(t *testing.T) {
	lib, root := newLibrary(t, Options{})
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeDoc(t, root, name, "shared term")
	}
	hits, err := lib.Search(context.Background(), "shared", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "a.txt", hits[0].Source)
}

func TestChunkText(t *testing.T) {
	require.Equal(t, []string{"one two", "three four"}, chunkText("one two\n\nthree four", 3))
	require.Equal(t, []string{"one two three four"}, chunkText("one two\n\nthree four", 10))
	require.Equal(t, []string{"a b", "c d", "e"}, chunkText("a b c d e", 2))
	require.Empty(t, chunkText("  \n\n ", 5))
}

func TestTokenizeAndOverlap(t *testing.T) {
	require.Equal(t, []string{"go", "auto", "café"}, tokenize("Go-Auto, Café!"))
	require.Equal(t, []string{"a", "b"}, distinct([]string{"a", "b", "a"}))
	require.InDelta(t, 0.5, overlap([]string{"a", "b"}, strings.Fields("a c")), 1e-9)
	require.Zero(t, overlap(nil, []string{"a"}))
}
