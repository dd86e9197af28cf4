package enums

import "fmt"

// MovementKind maps to the movement_kind_enum enum in Postgres.
type MovementKind string

const (
	MovementKindIn       MovementKind = "in"
	MovementKindOut      MovementKind = "out"
	MovementKindRented   MovementKind = "rented"
	MovementKindReturned MovementKind = "returned"
)

var validMovementKinds = []MovementKind{
	MovementKindIn,
	MovementKindOut,
	MovementKindRented,
	MovementKindReturned,
}

// IsValid reports whether the value matches the canonical movement kind enum.
func (k MovementKind) IsValid() bool {
	for _, candidate := range validMovementKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// Sign returns +1 for kinds that add stock and -1 for kinds that remove it.
func (k MovementKind) Sign() int {
	switch k {
	case MovementKindIn, MovementKindReturned:
		return 1
	case MovementKindOut, MovementKindRented:
		return -1
	default:
		return 0
	}
}

// IsManual reports whether the kind may be recorded through a manual stock adjustment.
func (k MovementKind) IsManual() bool {
	return k == MovementKindIn || k == MovementKindOut
}

// ParseMovementKind converts raw input into MovementKind.
func ParseMovementKind(value string) (MovementKind, error) {
	for _, candidate := range validMovementKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement kind %q", value)
}
