// Package memory persists conversation records in SQLite and answers the
// historical-search queries the agent makes about past sessions.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record kinds.
const (
	KindRunMetadata = "run_metadata"
	KindToolOutput  = "tool_output"
	KindFinalAnswer = "final_answer"
)

// DefaultWordLimit caps the words returned by one search.
const DefaultWordLimit = 10000

// Record is one stored interaction.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Kind        string    `json:"type"`
	UserQuery   string    `json:"user_query,omitempty"`
	FinalAnswer string    `json:"final_answer,omitempty"`
	Intent      string    `json:"intent,omitempty"`
	Text        string    `json:"text,omitempty"`
	ToolName    string    `json:"tool_name,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Match is a search hit in the shape the history retriever consumes.
// Timestamp is Unix seconds.
type Match struct {
	UserQuery   string  `json:"user_query"`
	FinalAnswer string  `json:"final_answer"`
	Timestamp   float64 `json:"timestamp"`
	Intent      string  `json:"intent"`
	Text        string  `json:"text"`
}

// Summary describes how much of a search was returned.
type Summary struct {
	TotalMatches    int `json:"total_matches"`
	MatchesReturned int `json:"matches_returned"`
	TotalWords      int `json:"total_words"`
}

// SearchResult is the outcome of Search.
type SearchResult struct {
	Summary Summary `json:"summary"`
	Matches []Match `json:"matches"`
}

// Store is a SQLite-backed conversation memory.
type Store struct {
	db        *sql.DB
	wordLimit int
	now       func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string, wordLimit int) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create memory dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	s, err := NewStore(db, wordLimit)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an open database and applies the schema.
func NewStore(db *sql.DB, wordLimit int) (*Store, error) {
	if wordLimit <= 0 {
		wordLimit = DefaultWordLimit
	}
	s := &Store{db: db, wordLimit: wordLimit, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate memory: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			user_query TEXT NOT NULL DEFAULT '',
			final_answer TEXT NOT NULL DEFAULT '',
			intent TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			tool_name TEXT NOT NULL DEFAULT '',
			tags_json TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_session ON records(session_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores r, assigning an id and timestamp when missing.
func (s *Store) Add(ctx context.Context, r *Record) error {
	if r.SessionID == "" {
		return errors.New("session id is required")
	}
	if r.Kind == "" {
		return errors.New("record kind is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.now()
	}
	r.Timestamp = r.Timestamp.UTC()

	var tagsJSON []byte
	if len(r.Tags) > 0 {
		tagsJSON, _ = json.Marshal(r.Tags)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, session_id, kind, user_query, final_answer, intent, text, tool_name, tags_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.Kind, r.UserQuery, r.FinalAnswer, r.Intent, r.Text, r.ToolName,
		nullable(tagsJSON), r.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Search returns past interactions containing every whitespace-separated
// term of query (case-insensitive) in their query, answer, intent or text.
// Run metadata is never matched. Newest records come first and the total
// word count stays within the word limit. An empty query matches everything.
func (s *Store) Search(ctx context.Context, query string) (SearchResult, error) {
	terms := strings.Fields(strings.ToLower(query))

	where, args := searchFilter(terms)
	rows, err := s.query(ctx, `SELECT `+recordColumns+` FROM records WHERE `+where+` ORDER BY created_at DESC, rowid DESC`, args...)
	if err != nil {
		return SearchResult{}, err
	}

	var matches []Match
	for _, r := range rows {
		haystack := strings.ToLower(strings.Join([]string{r.UserQuery, r.FinalAnswer, r.Intent, r.Text}, " "))
		if !containsAll(haystack, terms) {
			continue
		}
		matches = append(matches, Match{
			UserQuery:   r.UserQuery,
			FinalAnswer: r.FinalAnswer,
			Timestamp:   float64(r.Timestamp.UnixNano()) / 1e9,
			Intent:      r.Intent,
			Text:        r.Text,
		})
	}

	res := SearchResult{Matches: []Match{}}
	words := 0
	for _, m := range matches {
		n := len(strings.Fields(m.UserQuery)) + len(strings.Fields(m.FinalAnswer)) + len(strings.Fields(m.Text))
		if words+n > s.wordLimit {
			break
		}
		res.Matches = append(res.Matches, m)
		words += n
	}
	res.Summary = Summary{
		TotalMatches:    len(matches),
		MatchesReturned: len(res.Matches),
		TotalWords:      words,
	}
	return res, nil
}

// Session is the interaction log of one session.
type Session struct {
	SessionID    string   `json:"session_id"`
	Interactions []Record `json:"interactions"`
}

// CurrentSession returns the most recently active session, without its run
// metadata records. ok is false when nothing has been stored.
func (s *Store) CurrentSession(ctx context.Context) (Session, bool, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id FROM records ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("latest session: %w", err)
	}

	rows, err := s.query(ctx, `SELECT `+recordColumns+` FROM records
		WHERE session_id = ? AND kind != ? ORDER BY created_at, rowid`, sessionID, KindRunMetadata)
	if err != nil {
		return Session{}, false, err
	}
	if rows == nil {
		rows = []Record{}
	}
	return Session{SessionID: sessionID, Interactions: rows}, true, nil
}

// Recent returns up to k of the latest non-metadata records of a session,
// oldest first.
func (s *Store) Recent(ctx context.Context, sessionID string, k int) ([]Record, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.query(ctx, `SELECT `+recordColumns+` FROM records
		WHERE session_id = ? AND kind != ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		sessionID, KindRunMetadata, k)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

const recordColumns = `id, session_id, kind, user_query, final_answer, intent, text, tool_name, tags_json, created_at`

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			tagsJSON sql.NullString
			created  int64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Kind, &r.UserQuery, &r.FinalAnswer,
			&r.Intent, &r.Text, &r.ToolName, &tagsJSON, &created); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if tagsJSON.Valid && tagsJSON.String != "" {
			_ = json.Unmarshal([]byte(tagsJSON.String), &r.Tags)
		}
		r.Timestamp = time.Unix(0, created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// searchFilter narrows Search in SQL: one LIKE group per term. LIKE only
// folds ASCII case, so containsAll still has the final say.
func searchFilter(terms []string) (string, []any) {
	clauses := []string{"kind != ?"}
	args := []any{KindRunMetadata}
	for _, t := range terms {
		clauses = append(clauses, `(user_query LIKE ? ESCAPE '\' OR final_answer LIKE ? ESCAPE '\' OR intent LIKE ? ESCAPE '\' OR text LIKE ? ESCAPE '\')`)
		pattern := "%" + likeEscaper.Replace(t) + "%"
		args = append(args, pattern, pattern, pattern, pattern)
	}
	return strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsAll(haystack string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
