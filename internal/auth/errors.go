package auth

import "errors"

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrConflict      = errors.New("auth: resource conflict")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrUnauthorized  = errors.New("auth: unauthorized")
	ErrForbidden     = errors.New("auth: forbidden")
	ErrInvalidToken  = errors.New("auth: invalid token")
	ErrUserDisabled  = errors.New("auth: user disabled")
	ErrStoreRequired = errors.New("auth: store is required")
)
