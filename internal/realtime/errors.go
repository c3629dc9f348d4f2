package realtime

import "errors"

var (
	// ErrUnauthorized indicates a message arrived on a connection without an established identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidLocation indicates an update payload without usable coordinates.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrMissingToken indicates a connection attempt carried no credential.
	ErrMissingToken = errors.New("missing access token")
)
