// Package documents serves a folder of local text documents as an
// in-process tool server: listing, reading and ranked passage search.
package documents

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Options bounds how much of the folder a Library looks at.
type Options struct {
	MaxFiles     int
	MaxFileBytes int
	ChunkWords   int
	Extensions   []string
}

// Library is a read-only view of the documents under one directory.
type Library struct {
	root string
	opts Options
	exts map[string]bool
}

// Passage is one ranked search hit.
type Passage struct {
	Source string  `json:"source"`
	Chunk  int     `json:"chunk"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

var defaultExtensions = []string{".txt", ".md", ".markdown", ".csv", ".json", ".html"}

// Open builds a Library rooted at dir, which must exist.
func Open(dir string, opts Options) (*Library, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("documents root is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("documents root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("documents root %s is not a directory", dir)
	}

	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 500
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = 256 * 1024
	}
	if opts.ChunkWords <= 0 {
		opts.ChunkWords = 200
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = defaultExtensions
	}
	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	return &Library{root: abs, opts: opts, exts: exts}, nil
}

// Root returns the absolute library directory.
func (l *Library) Root() string {
	return l.root
}

// resolve maps a library-relative path to an absolute one inside root.
func (l *Library) resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("path is required")
	}
	clean := filepath.Clean(filepath.FromSlash(p))
	if filepath.IsAbs(clean) {
		return "", errors.New("absolute paths are not allowed")
	}
	abs := filepath.Join(l.root, clean)
	if abs != l.root && !strings.HasPrefix(abs, l.root+string(os.PathSeparator)) {
		return "", errors.New("path escapes documents root")
	}
	return abs, nil
}

// List returns the library-relative paths of readable documents, sorted.
func (l *Library) List(ctx context.Context) ([]string, error) {
	var out []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != l.root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 || !l.exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if len(out) >= l.opts.MaxFiles {
			return filepath.SkipAll
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Read returns a document's text, truncated to MaxFileBytes.
func (l *Library) Read(path string) (string, error) {
	abs, err := l.resolve(path)
	if err != nil {
		return "", err
	}
	if !l.exts[strings.ToLower(filepath.Ext(abs))] {
		return "", fmt.Errorf("%s is not a supported document", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	if len(data) > l.opts.MaxFileBytes {
		data = data[:l.opts.MaxFileBytes]
	}
	return string(data), nil
}

// Search ranks passages by the share of distinct query terms they contain.
// Ties keep document order.
func (l *Library) Search(ctx context.Context, query string, limit int) ([]Passage, error) {
	terms := distinct(tokenize(query))
	if len(terms) == 0 {
		return nil, errors.New("query is required")
	}
	if limit <= 0 {
		limit = 5
	}

	paths, err := l.List(ctx)
	if err != nil {
		return nil, err
	}

	var hits []Passage
	for _, p := range paths {
		content, err := l.Read(p)
		if err != nil {
			continue
		}
		for i, chunk := range chunkText(content, l.opts.ChunkWords) {
			score := overlap(terms, tokenize(chunk))
			if score <= 0 {
				continue
			}
			hits = append(hits, Passage{Source: p, Chunk: i, Score: score, Text: chunk})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// chunkText groups paragraphs into passages of roughly size words. A
// paragraph longer than size is split on word boundaries.
func chunkText(content string, size int) []string {
	var chunks []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
			cur = nil
		}
	}
	for _, para := range paragraphRe.Split(content, -1) {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		if len(cur)+len(words) > size {
			flush()
		}
		for len(words) > size {
			chunks = append(chunks, strings.Join(words[:size], " "))
			words = words[size:]
		}
		cur = append(cur, words...)
	}
	flush()
	return chunks
}

func overlap(terms, doc []string) float64 {
	if len(terms) == 0 || len(doc) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(doc))
	for _, t := range doc {
		seen[t] = struct{}{}
	}
	var n int
	for _, q := range terms {
		if _, ok := seen[q]; ok {
			n++
		}
	}
	return float64(n) / float64(len(terms))
}

var (
	tokenRe     = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	paragraphRe = regexp.MustCompile(`\n\s*\n`)
)

func tokenize(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

func distinct(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func skipDir(name string) bool {
	switch strings.ToLower(name) {
	case ".git", "node_modules", ".idea", ".vscode", "vendor", ".cache":
		return true
	}
	return strings.HasPrefix(name, ".")
}
