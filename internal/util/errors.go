package util

import (
	"fmt"
	"net/http"
)

// ResponseError is an error that already knows the HTTP status it maps to.
type ResponseError struct {
	Msg    string
	Status int
}

func (e ResponseError) Error() string { return e.Msg }

func NewResponseError(status int, format string, args ...interface{}) error {
	return ResponseError{
		Msg:    fmt.Sprintf(format, args...),
		Status: status,
	}
}

// ErrUnauthorized is returned by the bearer middleware for every verification failure.
var ErrUnauthorized = ResponseError{
	Msg:    "Authentication is required to access this resource",
	Status: http.StatusUnauthorized,
}
