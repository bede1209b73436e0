package models

import "errors"

var (
	// ErrNetwork is a transport failure or an unusable upstream response.
	ErrNetwork = errors.New("network error")

	// ErrRateLimited is an HTTP 429 or a local throttle refusal.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound is an operation on a missing watchlist entry, notification or record.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEntry is re-adding an asset that is already on the watchlist.
	ErrDuplicateEntry = errors.New("asset already in watchlist")

	// ErrAlreadyExists is a unique-key clash in the account store.
	ErrAlreadyExists = errors.New("already exists")
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
