package openai

import (
	"errors"
	"fmt"
)

// ErrNoChoices is returned when the service answers without any completion.
var ErrNoChoices = errors.New("model returned no choices")

// ErrToolsUnsupported is returned when tools are requested in completion prompt style.
var ErrToolsUnsupported = errors.New("tool calling requires the chat prompt style")

// CountMismatchError reports an embedding batch whose result count differs from its input.
type CountMismatchError struct {
	Want, Got int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("embedding service returned %d vectors for %d texts", e.Got, e.Want)
}
