package core

import (
	"strings"

	"github.com/google/uuid"
)

// Identity is the client-chosen UUID that names a user across sessions.
type Identity = uuid.UUID

// ParseIdentity parses a textual identity token. The nil UUID is rejected.
func ParseIdentity(s string) (Identity, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, NewError(ErrCodeProtocol, "the client response contained invalid data that could not be parsed.")
	}
	if id == uuid.Nil {
		return uuid.Nil, NewError(ErrCodeProtocol, "the client response contained invalid data that could not be parsed.")
	}
	return id, nil
}
