package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindUpstream   Kind = "upstream"
	KindStore      Kind = "store"
	KindSchema     Kind = "schema"
)

type Error struct {
	Status int
	Code   string
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Validation(code string, err error) *Error {
	return &Error{Status: http.StatusBadRequest, Code: code, Kind: KindValidation, Err: err}
}

func NotFound(code string, err error) *Error {
	return &Error{Status: http.StatusNotFound, Code: code, Kind: KindNotFound, Err: err}
}

func Conflict(code string, err error) *Error {
	return &Error{Status: http.StatusConflict, Code: code, Kind: KindConflict, Err: err}
}

func Upstream(code string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: code, Kind: KindUpstream, Err: err}
}

func Store(code string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: code, Kind: KindStore, Err: err}
}

// Schema errors reach clients as upstream failures; the kind is kept for logging.
func Schema(code string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: code, Kind: KindSchema, Err: err}
}

func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae != nil {
		return ae, true
	}
	return nil, false
}

func StatusOf(err error) int {
	if ae, ok := As(err); ok && ae.Status != 0 {
		return ae.Status
	}
	return http.StatusInternalServerError
}

func CodeOf(err error) string {
	if ae, ok := As(err); ok && ae.Code != "" {
		return ae.Code
	}
	return "internal_error"
}

func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return ""
}
