package llm

import (
	"errors"
	"fmt"
)

// ErrGeneration matches every backend failure surfaced by the adapter.
var ErrGeneration = errors.New("generation failed")

// GenerationError reports that no backend produced text for a prompt.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("generation failed: %v", e.Err)
	}
	return fmt.Sprintf("generation failed on model %s: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrGeneration) hold for any GenerationError.
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }
