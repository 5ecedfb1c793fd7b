// Package apperror defines the typed errors returned by the scheduling core and
// mapped onto HTTP status codes by the delivery layer.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindForbidden
)

// ConflictType names the resource dimension a scheduling conflict was found on.
type ConflictType string

const (
	ConflictRoom             ConflictType = "ot"
	ConflictSurgeon          ConflictType = "surgeon"
	ConflictAssistant        ConflictType = "assistant"
	ConflictAnesthesiologist ConflictType = "anesthesiologist"
	ConflictNurse            ConflictType = "nurse"
)

// ConflictTypes lists every overridable conflict type.
var ConflictTypes = []ConflictType{
	ConflictRoom,
	ConflictSurgeon,
	ConflictAssistant,
	ConflictAnesthesiologist,
	ConflictNurse,
}

// Valid reports whether c is a known conflict type.
func (c ConflictType) Valid() bool {
	for _, t := range ConflictTypes {
		if t == c {
			return true
		}
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the HTTP status code for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind             Kind
	Message          string
	ConflictType     ConflictType
	ConflictCaseCode string
}

func (e *Error) Error() string {
	if e.ConflictType != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.ConflictType)
	}
	return e.Message
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// ScheduleConflict returns a Conflict tagged with the dimension and the case it collided with.
func ScheduleConflict(conflictType ConflictType, caseCode string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:             KindConflict,
		Message:          fmt.Sprintf(format, args...),
		ConflictType:     conflictType,
		ConflictCaseCode: caseCode,
	}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of kind k.
func IsKind(err error, k Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == k
}
