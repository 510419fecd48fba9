package approval

import "net/http"

// Error is a classified client-visible failure. Detail is the short
// machine-readable kind the HTTP layer serializes as {"detail": ...}.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string { return e.Detail }

func notFound(detail string) *Error     { return &Error{Status: http.StatusNotFound, Detail: detail} }
func conflict(detail string) *Error     { return &Error{Status: http.StatusConflict, Detail: detail} }
func unauthorized(detail string) *Error { return &Error{Status: http.StatusUnauthorized, Detail: detail} }
func badRequest(detail string) *Error   { return &Error{Status: http.StatusBadRequest, Detail: detail} }
