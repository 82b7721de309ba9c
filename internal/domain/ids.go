package domain

import "github.com/google/uuid"

// NewID returns a new time-ordered, sortable identifier (a type-7 UUID).
// Monotonicity is used only to order otherwise-equivalent records
// deterministically; nothing in the engine depends on it for correctness.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the system clock/entropy source is
		// broken; fall back to a random v4 rather than panic.
		return uuid.NewString()
	}
	return id.String()
}
