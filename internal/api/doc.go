// Package api exposes the proof registry over HTTP with a chi router.
// Mutating endpoints act as the caller resolved by the auth middleware; every
// GET endpoint reads committed state only.
package api
