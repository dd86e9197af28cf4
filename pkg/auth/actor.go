package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
)

// Actor is the explicit caller identity handed to every engine operation.
// Authentication happens upstream; the engine only consults Privileged and
// CanActFor.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

// SystemActor identifies scheduled jobs acting on the engine's behalf.
func SystemActor() Actor {
	return Actor{Role: enums.MemberRoleSystem}
}

// Privileged reports whether the actor may confirm, cancel, edit or finalize bookings.
func (a Actor) Privileged() bool {
	return a.Role.IsPrivileged()
}

// CanActFor reports whether the actor may operate on resources owned by userID.
func (a Actor) CanActFor(userID uuid.UUID) bool {
	if a.Privileged() {
		return true
	}
	return a.UserID != uuid.Nil && a.UserID == userID
}

// IDPtr returns the actor's user id for audit columns, or nil for system actors.
func (a Actor) IDPtr() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}
