package responses

import "net/http"

// APIError is an error that knows which HTTP status it maps to.
type APIError interface {
    error
    StatusCode() int
}

type BadRequestError struct{ Msg string }

func (e BadRequestError) Error() string { return e.Msg }
func (BadRequestError) StatusCode() int { return http.StatusBadRequest }

type UnauthorizedError struct{ Msg string }

func (e UnauthorizedError) Error() string { return e.Msg }
func (UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }

type NotFoundError struct{ Msg string }

func (e NotFoundError) Error() string { return e.Msg }
func (NotFoundError) StatusCode() int { return http.StatusNotFound }

// ConflictError reports a resource that already exists.
type ConflictError struct{ Msg string }

func (e ConflictError) Error() string { return e.Msg }
func (ConflictError) StatusCode() int { return http.StatusConflict }

type InternalServerError struct{ Msg string }

func (e InternalServerError) Error() string { return e.Msg }
func (InternalServerError) StatusCode() int { return http.StatusInternalServerError }
