// Package apperr defines the error taxonomy shared by services and the
// HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how the caller should react to it.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "INVALID"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus maps a kind to the status code returned to clients.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalid:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Machine-readable codes carried by business errors.
const (
	CodeInvalidQuantity  = "InvalidQuantity"
	CodeInvalidInput     = "InvalidInput"
	CodeEmptyCart        = "EmptyCart"
	CodeCartSealed       = "CartSealed"
	CodeCartNotFound     = "CartNotFound"
	CodeProductNotFound  = "ProductNotFound"
	CodeCategoryNotFound = "CategoryNotFound"
	CodeUserNotFound     = "UserNotFound"
	CodeEmailTaken       = "EmailTaken"
	CodeLastAdmin        = "LastAdmin"
	CodeUnauthorized     = "Unauthorized"
	CodeForbidden        = "Forbidden"
	CodeInternal         = "Internal"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Err is the underlying cause. It is logged, never sent to clients.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Kind and Code, so sentinel
// values such as ErrCartSealed work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Invalid(code, message string) *Error {
	return New(KindInvalid, code, message)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, CodeUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, CodeForbidden, message)
}

// Internal wraps an infrastructure failure. The message shown to clients
// is generic; err keeps the detail for logs.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: op, Err: err}
}

// Sentinels for the cart engine's business errors.
var (
	ErrInvalidQuantity  = Invalid(CodeInvalidQuantity, "quantity must be at least 1; remove the line instead")
	ErrQuantityTooLarge = Invalid(CodeInvalidQuantity, "quantity is too large")
	ErrEmptyCart        = Invalid(CodeEmptyCart, "cart is empty")
	ErrCartSealed       = Conflict(CodeCartSealed, "cart is already paid; start a new cart")
	ErrCartNotFound     = NotFound(CodeCartNotFound, "cart not found")
	ErrProductNotFound  = NotFound(CodeProductNotFound, "product not found")
)

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
