// Package apperr define la taxonomía de errores del protocolo de
// conciliación. Los servicios nunca regresan errores crudos de la base;
// siempre un *apperr.Error con su tipo y, cuando aplica, la lista de
// registros que impiden la operación.
package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type Kind string

const (
	InvalidArgument Kind = "invalid_argument"
	NotFound        Kind = "not_found"
	Conflict        Kind = "conflict"
	Blocked         Kind = "blocked"
	Unauthorized    Kind = "unauthorized"
	Locked          Kind = "locked"
)

// RecordRef identifica un registro ofensor (cajero sin corte, movimiento sin
// validar, corte que bloquea una mutación).
type RecordRef struct {
	Entity string `json:"entity"`
	ID     uint   `json:"id"`
	Name   string `json:"name,omitempty"`
}

type Error struct {
	Kind    Kind
	Message string
	Records []RecordRef
}

func (e *Error) Error() string {
	if len(e.Records) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (%d registros)", e.Kind, e.Message, len(e.Records))
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithRecords regresa una copia del error con los registros ofensores.
func (e *Error) WithRecords(records ...RecordRef) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Records: records}
}

// KindOf regresa el tipo del error, o "" si no es un *apperr.Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// RecordsOf regresa los registros ofensores del error, si los hay.
func RecordsOf(err error) []RecordRef {
	var e *Error
	if errors.As(err, &e) {
		return e.Records
	}
	return nil
}

// HTTPStatus mapea cada tipo al código HTTP que regresa el ErrorHandler.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidArgument:
		return fiber.StatusBadRequest
	case NotFound:
		return fiber.StatusNotFound
	case Conflict:
		return fiber.StatusConflict
	case Blocked:
		return fiber.StatusUnprocessableEntity
	case Unauthorized:
		return fiber.StatusUnauthorized
	case Locked:
		return fiber.StatusLocked
	}
	return fiber.StatusInternalServerError
}
