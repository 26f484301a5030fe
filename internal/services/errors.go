package services

import "errors"

var (
	// ErrNoMatchFound means a place query matched nothing in the gazetteer
	// or the external geocoder.
	ErrNoMatchFound = errors.New("no match found for place query")

	// ErrNoRouteAvailable means every routing source failed and no fallback
	// could be produced.
	ErrNoRouteAvailable = errors.New("no route available")

	// ErrMalformedResponse means an upstream service answered with a payload
	// that could not be interpreted.
	ErrMalformedResponse = errors.New("malformed upstream response")
)
