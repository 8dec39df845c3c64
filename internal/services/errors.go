// Package services defines the business logic for the query façade and the
// command executor. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked
// by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed
// at the handler layer.
package services

import "errors"

var (
	// ErrMissingPrefix is returned when a submitted command line does not
	// start with the command prefix character.
	ErrMissingPrefix = errors.New("command must start with '!'")

	// ErrUnknownCommand is returned for a prefixed command whose verb is
	// not recognized. The accompanying response text points at !help.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrBotOffline is returned when command execution is requested while
	// no ingestion connection is active.
	ErrBotOffline = errors.New("bot is not connected")
)
