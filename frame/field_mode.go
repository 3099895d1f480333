package frame

import "fmt"

// FieldMode selects which scan lines of an interlaced picture an image
// contributes to. It is a bit set: FieldProgressive is FieldUpper|FieldLower.
type FieldMode uint8

const (
	// FieldEmpty contributes no scan lines.
	FieldEmpty FieldMode = 0

	// FieldLower is the odd scan lines (1, 3, 5, ...).
	FieldLower FieldMode = 1

	// FieldUpper is the even scan lines (0, 2, 4, ...).
	FieldUpper FieldMode = 2

	// FieldProgressive is every scan line.
	FieldProgressive FieldMode = FieldUpper | FieldLower
)

// String returns a string representation of the field mode.
func (m FieldMode) String() string {
	switch m {
	case FieldEmpty:
		return "empty"
	case FieldLower:
		return "lower"
	case FieldUpper:
		return "upper"
	case FieldProgressive:
		return "progressive"
	default:
		return fmt.Sprintf("FieldMode(%d)", m)
	}
}

// Interlaced reports whether the mode covers exactly one field.
func (m FieldMode) Interlaced() bool {
	return m == FieldUpper || m == FieldLower
}

// Covers reports whether scan line y belongs to the mode.
func (m FieldMode) Covers(y int) bool {
	if y%2 == 0 {
		return m&FieldUpper != 0
	}
	return m&FieldLower != 0
}
