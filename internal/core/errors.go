package core

// Error codes for domain errors.
const (
	ErrCodeProtocol      = "protocol_error"
	ErrCodeForbidden     = "insufficient_permissions"
	ErrCodeNotFound      = "not_found"
	ErrCodeCapacity      = "server_full"
	ErrCodePersistence   = "persistence_error"
	ErrCodeConflict      = "already_connected"
	ErrCodeBanned        = "banned"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNameTooLong   = "name_too_long"
	ErrCodeNotAccepting  = "not_accepting"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeInternalError = "internal_error"
)

var (
	ErrProtocol    = coreError(ErrCodeProtocol, "malformed frame")
	ErrForbidden   = coreError(ErrCodeForbidden, "insufficient permissions")
	ErrNotFound    = coreError(ErrCodeNotFound, "not found")
	ErrCapacity    = coreError(ErrCodeCapacity, "400: server is full.")
	ErrPersistence = coreError(ErrCodePersistence, "failed to persist state")
	ErrConflict    = coreError(ErrCodeConflict, "you're already connected from this account.")
	ErrBanned      = coreError(ErrCodeBanned, "banned")
	ErrBadRequest  = coreError(ErrCodeBadRequest, "bad request")
	ErrInternal    = coreError(ErrCodeInternalError, "internal error")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// Is matches any CoreError carrying the same code, so errors.Is works against
// the sentinels regardless of the message.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	return ok && t.Code == e.Code
}

// NewError builds a CoreError with the given code and a reply message.
func NewError(code, msg string) *CoreError {
	return coreError(code, msg)
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
