package auth

import "errors"

// Common authentication errors
var (
	// ErrInvalidToken is returned when a token is malformed or its signature
	// does not verify
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when a token has expired
	ErrExpiredToken = errors.New("token expired")

	// ErrInvalidCredentials is returned when an email/password pair does not
	// match a known user. Deliberately indistinguishable between unknown email
	// and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
