// Package replicaid generates the opaque per-session identifier a document
// uses to tag every transaction it sends.
package replicaid

import (
	"github.com/google/uuid"
)

// ID is an opaque replica identifier. It is immutable once assigned to a
// document and is never reused across concurrent sessions.
type ID string

// New returns a fresh identifier with well over the 60-bit entropy floor
// required by the runtime. It is derived from a random UUIDv4, which carries
// 122 bits of randomness, so collision probability across concurrent
// sessions is negligible.
func New() ID {
	return ID(uuid.NewString())
}

// String returns the identifier's text form.
func (id ID) String() string {
	return string(id)
}

// Empty reports whether the identifier has never been assigned.
func (id ID) Empty() bool {
	return id == ""
}
