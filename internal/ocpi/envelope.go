// Package ocpi defines the response envelope and status codes of the OCPI
// wire convention: every body carries a numeric status code and message
// next to the payload, and the HTTP status is derived from it.
package ocpi

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// OCPI status codes used by the Common module.
const (
	StatusSuccess              = 1000
	StatusGenericClientError   = 2000
	StatusInvalidParameters    = 2001
	StatusNotEnoughInformation = 2002
	StatusUnknownLocation      = 2003
	StatusUnknownToken         = 2004
	StatusGenericServerError   = 3000
	StatusUnableToUseClientAPI = 3001
	StatusUnsupportedVersion   = 3002
	StatusNoMatchingEndpoints  = 3003
)

// Response is the OCPI response envelope.
type Response struct {
	Data          any       `json:"data,omitempty"`
	StatusCode    int       `json:"status_code"`
	StatusMessage string    `json:"status_message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Error is a protocol-level failure: an OCPI status code plus a message,
// passed by value through the handshake instead of Go errors.
type Error struct {
	Code    int
	Message string
}

func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string { return e.Message }

// Success builds a 1000 envelope around data.
func Success(data any) Response {
	return Response{
		Data:          data,
		StatusCode:    StatusSuccess,
		StatusMessage: "Success",
		Timestamp:     time.Now().UTC(),
	}
}

// Failure builds an error envelope.
func Failure(code int, message string) Response {
	return Response{
		StatusCode:    code,
		StatusMessage: message,
		Timestamp:     time.Now().UTC(),
	}
}

// HTTPStatus maps an OCPI status code to the HTTP status of the envelope.
func HTTPStatus(code int) int {
	switch {
	case code == StatusSuccess:
		return fiber.StatusOK
	case code == StatusUnknownToken:
		return fiber.StatusForbidden
	case code == StatusUnknownLocation:
		return fiber.StatusNotFound
	case code >= 2000 && code < 3000:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
