package idgen

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// New returns a UUIDv7 identifier string. UUIDv7 sorts by creation time
// under byte order of its canonical text form, so records listed by id come
// back in creation order. If UUIDv7 generation fails, it falls back to a
// random UUIDv4.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewEventID returns a ULID string. Used for feed events and request ids,
// never as a persistence key.
func NewEventID() string {
	return ulid.Make().String()
}

// Valid reports whether id parses as a UUID in canonical text form.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
