// Package types provides unified type definitions for the PersonaFlow core.
package types

import "github.com/google/uuid"

// UUID is the canonical identifier type used across the core.
type UUID = uuid.UUID

// Nil is the zero UUID.
var Nil = uuid.Nil

// idNamespace is the fixed namespace for deterministic identifiers.
// Changing it would orphan every previously stored memory, so don't.
var idNamespace = uuid.MustParse("f7d2a8c4-3b91-4e6a-9f05-2c8d71e4b0a3")

// NewID returns a fresh random identifier.
func NewID() UUID {
	return uuid.New()
}

// ParseID parses the canonical string form of an identifier.
func ParseID(s string) (UUID, error) {
	return uuid.Parse(s)
}

// DeterministicID derives a stable UUID from an arbitrary string.
// The same input always yields the same identifier, which is how
// document hashes and per-agent room ids stay idempotent.
func DeterministicID(s string) UUID {
	parsed, err := uuid.Parse(s)
	if err == nil {
		return parsed
	}
	return uuid.NewSHA1(idNamespace, []byte(s))
}

// RoomFor returns the deterministic self-room id for an agent.
func RoomFor(agentID UUID) UUID {
	return uuid.NewSHA1(idNamespace, []byte("room:"+agentID.String()))
}
