package domain

import (
	"errors"
	"net/http"
)

// ErrorKind is the semantic category of a relay error. The HTTP binding maps
// each kind onto a status code; everything else treats kinds as opaque.
type ErrorKind int

const (
	KindInternal         ErrorKind = iota // unexpected failure (500)
	KindValidation                        // missing file, missing id, malformed form (400)
	KindMethodNotAllowed                  // wrong HTTP method (405)
	KindTimeout                           // upload exceeded its deadline (408)
	KindTooLarge                          // upload exceeded the configured limit (413)
	KindNotFound                          // remote object does not exist (404)
	KindSpoolWrite                        // local disk failure while spooling (500)
	KindAuthConfig                        // credentials missing or malformed (500)
	KindUpload                            // object store rejected the upload (500)
	KindPermission                        // object store rejected the permission grant (500)
	KindDelete                            // object store rejected the delete (500)
	KindLookup                            // object store rejected the lookup (500)
)

var kindNames = map[ErrorKind]string{
	KindInternal:         "internal",
	KindValidation:       "validation",
	KindMethodNotAllowed: "method_not_allowed",
	KindTimeout:          "timeout",
	KindTooLarge:         "too_large",
	KindNotFound:         "not_found",
	KindSpoolWrite:       "spool_write",
	KindAuthConfig:       "auth_config",
	KindUpload:           "upload",
	KindPermission:       "permission",
	KindDelete:           "delete",
	KindLookup:           "lookup",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// HTTPStatus returns the status code a response carrying this kind uses.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a relay error with a stable, user-facing message and an optional
// underlying cause that is reported as diagnostic details.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Details returns the diagnostic text for the error, falling back to the
// message when there is no underlying cause.
func (e *Error) Details() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func newError(kind ErrorKind, message string, err []error) *Error {
	return &Error{Kind: kind, Message: message, Err: errors.Join(err...)}
}

func NewInternalError(message string, err ...error) *Error {
	return newError(KindInternal, message, err)
}

func NewValidationError(message string, err ...error) *Error {
	return newError(KindValidation, message, err)
}

func NewMethodNotAllowedError(message string, err ...error) *Error {
	return newError(KindMethodNotAllowed, message, err)
}

func NewTimeoutError(message string, err ...error) *Error {
	return newError(KindTimeout, message, err)
}

func NewTooLargeError(message string, err ...error) *Error {
	return newError(KindTooLarge, message, err)
}

func NewNotFoundError(message string, err ...error) *Error {
	return newError(KindNotFound, message, err)
}

func NewSpoolWriteError(message string, err ...error) *Error {
	return newError(KindSpoolWrite, message, err)
}

func NewAuthConfigError(message string, err ...error) *Error {
	return newError(KindAuthConfig, message, err)
}

func NewUploadError(message string, err ...error) *Error {
	return newError(KindUpload, message, err)
}

func NewPermissionError(message string, err ...error) *Error {
	return newError(KindPermission, message, err)
}

func NewDeleteError(message string, err ...error) *Error {
	return newError(KindDelete, message, err)
}

func NewLookupError(message string, err ...error) *Error {
	return newError(KindLookup, message, err)
}
