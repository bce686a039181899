package shadow

import (
	"github.com/google/uuid"
)

// IDGenerator produces cycle IDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 cycle IDs.
//
// UUIDv7 sorts by creation time, which keeps journal rows for one key in
// roughly chronological order even across restarts.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7. It panics only if the system random source
// fails, which is unrecoverable anyway.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
