package auth

import "errors"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrUnknownUser  = errors.New("token subject is not a known user")
	ErrInactiveUser = errors.New("user account is inactive")
	ErrForbidden    = errors.New("admin role required")
)
