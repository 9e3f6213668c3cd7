package enums

import "fmt"

// GenerationState is the lifecycle state of one cache generation slot.
type GenerationState string

const (
	GenerationStateEmpty   GenerationState = "empty"
	GenerationStateWarming GenerationState = "warming"
	GenerationStateReady   GenerationState = "ready"
)

var validGenerationStates = []GenerationState{
	GenerationStateEmpty,
	GenerationStateWarming,
	GenerationStateReady,
}

// String implements fmt.Stringer.
func (s GenerationState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known GenerationState.
func (s GenerationState) IsValid() bool {
	for _, candidate := range validGenerationStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseGenerationState converts raw input into a GenerationState.
func ParseGenerationState(value string) (GenerationState, error) {
	for _, candidate := range validGenerationStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid generation state %q", value)
}
