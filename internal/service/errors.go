package service

import "errors"

var (
	// ErrInvalidCredentials deliberately covers both unknown user and wrong
	// password so responses never leak which one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionNotFound covers revoked and never-existed alike; callers
	// facing the request cannot tell them apart, logs can.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is the one distinguishable liveness failure: clients
	// may react to it (re-login), never to a revocation.
	ErrSessionExpired = errors.New("session expired")

	ErrUserNotFound = errors.New("user not found")

	ErrUnauthorizedDeviceAction = errors.New("session or device belongs to another user")
)
