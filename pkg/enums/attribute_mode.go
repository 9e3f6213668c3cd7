package enums

import "fmt"

// AttributeMode declares how an attribute's selected values combine:
// "and" requires every selected value, "or" requires at least one.
// Distinct attributes always combine with AND regardless of mode.
type AttributeMode string

const (
	AttributeModeAnd AttributeMode = "and"
	AttributeModeOr  AttributeMode = "or"
)

// String implements fmt.Stringer.
func (m AttributeMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known AttributeMode.
func (m AttributeMode) IsValid() bool {
	return m == AttributeModeAnd || m == AttributeModeOr
}

// ParseAttributeMode converts raw input into an AttributeMode.
func ParseAttributeMode(value string) (AttributeMode, error) {
	switch value {
	case "and":
		return AttributeModeAnd, nil
	case "or":
		return AttributeModeOr, nil
	}
	return "", fmt.Errorf("invalid attribute mode %q", value)
}
