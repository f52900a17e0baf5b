package history

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Item is one past interaction returned by the memory search.
type Item struct {
	UserQuery   string    `json:"user_query,omitempty"`
	FinalAnswer string    `json:"final_answer,omitempty"`
	Text        string    `json:"text,omitempty"`
	Intent      string    `json:"intent,omitempty"`
	Timestamp   Timestamp `json:"timestamp,omitempty"`
}

// Timestamp holds either Unix seconds or, for sources that send something
// else, the raw text.
type Timestamp struct {
	Seconds float64
	Raw     string
}

// UnmarshalJSON accepts a number, a numeric string, any other string, or null.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	*t = Timestamp{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			t.Seconds = f
			return nil
		}
		t.Raw = s
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		t.Raw = string(b)
		return nil
	}
	t.Seconds = f
	return nil
}

// MarshalJSON writes the seconds, the raw text, or null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	switch {
	case t.Seconds != 0:
		return json.Marshal(t.Seconds)
	case t.Raw != "":
		return json.Marshal(t.Raw)
	}
	return []byte("null"), nil
}

// IsZero reports whether no timestamp was given.
func (t Timestamp) IsZero() bool {
	return t.Seconds == 0 && t.Raw == ""
}

const timeLayout = "2006-01-02 15:04:05"

// String renders the timestamp in local time, or the raw text.
func (t Timestamp) String() string {
	if t.Seconds != 0 {
		sec := int64(t.Seconds)
		nsec := int64((t.Seconds - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).Local().Format(timeLayout)
	}
	return t.Raw
}

// Format renders items as labelled blocks for a prompt, in input order.
func Format(items []Item) string {
	if len(items) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(items))
	for _, it := range items {
		when := "Unknown time"
		if !it.Timestamp.IsZero() {
			when = it.Timestamp.String()
		}

		var b strings.Builder
		b.WriteString("--- Previous Conversation (" + when + ") ---\n")
		if it.UserQuery != "" {
			b.WriteString("Query: " + it.UserQuery + "\n")
		}
		if it.FinalAnswer != "" {
			answer := it.FinalAnswer
			if strings.HasPrefix(answer, "FINAL_ANSWER:") {
				answer = strings.TrimSpace(strings.TrimPrefix(answer, "FINAL_ANSWER:"))
			}
			b.WriteString("Answer: " + answer + "\n")
		}
		if it.Text != "" && it.UserQuery == "" {
			b.WriteString("Content: " + it.Text + "\n")
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}
