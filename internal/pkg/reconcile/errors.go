package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Kind classifies reconciliation failures so the HTTP boundary can tell the
// provider whether a redelivery makes sense.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindNotFound
	KindTransient
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Authentication(op string, err error) error { return NewError(KindAuthentication, op, err) }
func NotFound(op string, err error) error       { return NewError(KindNotFound, op, err) }
func Transient(op string, err error) error      { return NewError(KindTransient, op, err) }
func Validation(op string, err error) error     { return NewError(KindValidation, op, err) }

// KindOf returns the kind of the first *Error in the chain. Deadline and
// cancellation errors count as transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the response status returned to a provider.
func HTTPStatus(err error) int {
	if err == nil {
		return fiber.StatusOK
	}
	switch KindOf(err) {
	case KindAuthentication:
		return fiber.StatusUnauthorized
	case KindNotFound:
		return fiber.StatusNotFound
	case KindTransient:
		return fiber.StatusServiceUnavailable
	case KindValidation:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// Classify wraps a persistence error. Missing rows become NotFound, errors
// that already carry a kind pass through, anything else is retryable.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(op, err)
	}
	return Transient(op, err)
}
