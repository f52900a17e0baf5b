package agent

import "strings"

// Markers plans use to steer the loop.
const (
	FinalMarker    = "FINAL_ANSWER:"
	ContinueMarker = "FURTHER_PROCESSING_REQUIRED:"
)

// Kind tells the loop what a step result means.
type Kind int

const (
	// Raw output carried neither marker; it is shown as is and ends the turn.
	Raw Kind = iota
	// Final ends the turn with an answer.
	Final
	// Continue feeds the text back into perception within the same turn.
	Continue
)

func (k Kind) String() string {
	switch k {
	case Final:
		return "final"
	case Continue:
		return "continue"
	default:
		return "raw"
	}
}

// Directive is a classified step result.
type Directive struct {
	Kind Kind
	Text string
}

// Classify inspects text for the answer markers. FINAL_ANSWER wins when both
// appear. The directive text runs from the marker to its next occurrence.
func Classify(text string) Directive {
	if s, ok := afterMarker(text, FinalMarker); ok {
		return Directive{Kind: Final, Text: s}
	}
	if s, ok := afterMarker(text, ContinueMarker); ok {
		return Directive{Kind: Continue, Text: s}
	}
	return Directive{Kind: Raw, Text: text}
}

// String renders the directive back into marker form.
func (d Directive) String() string {
	switch d.Kind {
	case Final:
		return FinalMarker + " " + d.Text
	case Continue:
		return ContinueMarker + " " + d.Text
	default:
		return d.Text
	}
}

func afterMarker(text, marker string) (string, bool) {
	i := strings.Index(text, marker)
	if i < 0 {
		return "", false
	}
	rest := text[i+len(marker):]
	if j := strings.Index(rest, marker); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest), true
}
