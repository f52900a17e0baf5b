// Package guard validates and repairs text crossing the LLM boundary.
//
// InputGuard checks prompts before they reach a backend; CheckOutput coerces
// backend responses into a named contract shape. Neither ever fails: every
// check reports its problems in an Outcome and hands back the best repair it
// could make, leaving the decision to proceed to the caller.
package guard

// Outcome is the result of a guard or contract check.
type Outcome struct {
	Valid  bool
	Errors []string
	// Repaired is always a string for input checks. For output checks it is
	// the parsed (and backfilled) value, or the original string when the
	// response could not be parsed at all.
	Repaired any
}

// Text returns the repaired value when it is a string.
func (o Outcome) Text() (string, bool) {
	s, ok := o.Repaired.(string)
	return s, ok
}

// Structured reports whether the repaired value is parsed data rather than raw text.
func (o Outcome) Structured() bool {
	_, isText := o.Repaired.(string)
	return o.Repaired != nil && !isText
}

func (o *Outcome) fail(msg string) {
	o.Valid = false
	o.Errors = append(o.Errors, msg)
}
