package provisioning

import "errors"

var (
	// ErrTokenNotFound is returned when no setup token matches the presented
	// plaintext.
	ErrTokenNotFound = errors.New("setup token not found")

	// ErrTokenExpired is returned when the token is past its expiry,
	// regardless of whether it was ever used.
	ErrTokenExpired = errors.New("setup token expired")

	// ErrTokenAlreadyUsed is returned when the token was redeemed before.
	ErrTokenAlreadyUsed = errors.New("setup token already used")
)
