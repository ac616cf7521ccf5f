package auth

import (
	"time"

	xerrors "ProofChain/internal/errors"
)

// Mode enumerates the supported ways of establishing the caller identity.
type Mode string

const (
	// ModeHeader trusts an address header set by an upstream gateway.
	ModeHeader Mode = "header"
	// ModeJWT verifies HS256 bearer tokens whose subject is the caller address.
	ModeJWT Mode = "jwt"
	// ModeDisabled never yields an identity; mutating calls are refused.
	ModeDisabled Mode = "disabled"
)

// DefaultHeader carries the caller address in header mode.
const DefaultHeader = "X-Caller-Address"

// Config configures the identity resolver.
type Config struct {
	Mode   Mode
	Header string
	JWT    JWTOptions
}

// JWTOptions contains the parameters used to verify and issue bearer tokens.
type JWTOptions struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
	TTL      time.Duration
}

var (
	// ErrMissingIdentity is returned when a mutating call carries no caller.
	ErrMissingIdentity = xerrors.New(xerrors.CodeUnauthenticated, "caller identity required")
	// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
	ErrInvalidToken = xerrors.New(xerrors.CodeUnauthenticated, "invalid bearer token")
	// ErrInvalidAddress is returned when the presented identity is not a
	// non-zero 20-byte hex address.
	ErrInvalidAddress = xerrors.New(xerrors.CodeUnauthenticated, "caller address is not a valid identity")
)
