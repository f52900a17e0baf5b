package guard

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	DefaultMaxInputLength = 100000
	DefaultMinInputLength = 3
	DefaultMaxURLLength   = 2048

	truncationMarker = "... [truncated]"
	// truncationHeadroom is how far below the limit truncated text is cut.
	truncationHeadroom = 100
)

// DefaultDenyList is the placeholder content-policy list.
var DefaultDenyList = []string{"inappropriate", "offensive", "obscene"}

// emailTypos maps common misspellings of popular providers to the real domain.
var emailTypos = map[string]string{
	"gmial.com":   "gmail.com",
	"yaho.com":    "yahoo.com",
	"outlock.com": "outlook.com",
	"hotmial.com": "hotmail.com",
}

var (
	urlPattern   = regexp.MustCompile(`(?i)(?:https?://|www\.)[^\s<>"'` + "`" + `]+`)
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+`)
	tldPattern   = regexp.MustCompile(`\.[a-zA-Z]{2,}$`)
)

// Limits configures the input guard. Zero values fall back to the defaults.
type Limits struct {
	MaxLength    int
	MinLength    int
	MaxURLLength int
	DenyList     []string
}

// InputGuard validates and repairs prompt text before it is sent to a model.
type InputGuard struct {
	limits Limits
}

// NewInputGuard constructs a guard, filling unset limits with defaults.
func NewInputGuard(limits Limits) *InputGuard {
	if limits.MaxLength <= 0 {
		limits.MaxLength = DefaultMaxInputLength
	}
	if limits.MinLength <= 0 {
		limits.MinLength = DefaultMinInputLength
	}
	if limits.MaxURLLength <= 0 {
		limits.MaxURLLength = DefaultMaxURLLength
	}
	if limits.DenyList == nil {
		limits.DenyList = DefaultDenyList
	}
	return &InputGuard{limits: limits}
}

// Limits returns the effective limits.
func (g *InputGuard) Limits() Limits {
	return g.limits
}

// Check runs the length, URL, content-policy and email rules in that order.
// Every rule runs even after an earlier failure; each repair is applied to the
// output of the previous rule.
func (g *InputGuard) Check(text string) Outcome {
	out := Outcome{Valid: true}

	fixed := g.checkLength(text, &out)
	fixed = g.checkURLs(fixed, &out)
	g.checkContent(fixed, &out)
	fixed = checkEmails(fixed, &out)

	out.Repaired = fixed
	return out
}

func (g *InputGuard) checkLength(text string, out *Outcome) string {
	n := len([]rune(text))
	switch {
	case n > g.limits.MaxLength:
		out.fail(fmt.Sprintf("Input exceeds maximum length of %d characters", g.limits.MaxLength))
		keep := g.limits.MaxLength - truncationHeadroom
		if keep < 0 {
			keep = 0
		}
		return string([]rune(text)[:keep]) + truncationMarker
	case n < g.limits.MinLength:
		out.fail(fmt.Sprintf("Input is too short (min %d characters required)", g.limits.MinLength))
	}
	return text
}

func (g *InputGuard) checkURLs(text string, out *Outcome) string {
	matches := urlPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		candidate := strings.TrimRight(text[start:end], ".,;:!?)]}")
		end = start + len(candidate)
		isWWW := strings.HasPrefix(strings.ToLower(candidate), "www.")
		if isWWW && start > 0 && !boundary(text[start-1]) {
			continue
		}

		b.WriteString(text[last:start])
		last = end

		if len(candidate) > g.limits.MaxURLLength {
			out.fail(fmt.Sprintf("URL exceeds maximum length of %d characters: %s...", g.limits.MaxURLLength, candidate[:min(50, len(candidate))]))
			b.WriteString(candidate)
			continue
		}

		if isWWW {
			fixedURL := "https://" + candidate
			if !wellFormed(fixedURL) || !strings.Contains(candidate[len("www."):], ".") {
				out.fail(fmt.Sprintf("Invalid URL format: %s", candidate))
				b.WriteString(candidate)
				continue
			}
			b.WriteString(fixedURL)
			continue
		}

		if !wellFormed(candidate) {
			out.fail(fmt.Sprintf("Invalid URL format: %s", candidate))
		}
		b.WriteString(candidate)
	}
	b.WriteString(text[last:])
	return b.String()
}

func (g *InputGuard) checkContent(text string, out *Outcome) {
	lower := strings.ToLower(text)
	for _, word := range g.limits.DenyList {
		if word == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(word)) {
			out.fail("Text contains potentially inappropriate content")
			return
		}
	}
}

func checkEmails(text string, out *Outcome) string {
	matches := emailPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		email := strings.TrimRight(text[start:end], ".-")
		end = start + len(email)

		b.WriteString(text[last:start])
		last = end

		local, domain, _ := strings.Cut(email, "@")
		if local == "" || !strings.Contains(domain, ".") || !tldPattern.MatchString(domain) {
			out.fail(fmt.Sprintf("Invalid email format: %s", email))
			b.WriteString(email)
			continue
		}
		if correct, ok := emailTypos[strings.ToLower(domain)]; ok {
			b.WriteString(local + "@" + correct)
			continue
		}
		b.WriteString(email)
	}
	b.WriteString(text[last:])
	return b.String()
}

func wellFormed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != "" && u.Hostname() != ""
}

// boundary reports whether c may precede a bare www. host.
func boundary(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return false
	case c == '.', c == '/', c == '_', c == '-', c == '@':
		return false
	}
	return true
}
