package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ProofChain/internal/errors"
	"ProofChain/internal/proofs"
	"ProofChain/pkg/logger"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func TestNewServiceValidatesConfig(t *testing.T) {
	svc, err := NewService(Config{})
	require.NoError(t, err)
	assert.Equal(t, ModeHeader, svc.Mode())

	_, err = NewService(Config{Mode: ModeJWT})
	assert.Error(t, err)

	_, err = NewService(Config{Mode: "oauth"})
	assert.Error(t, err)

	var nilSvc *Service
	assert.Equal(t, ModeDisabled, nilSvc.Mode())
}

func TestHeaderMode(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeHeader})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok, err := svc.Resolve(req)
	require.NoError(t, err)
	assert.False(t, ok)

	req.Header.Set(DefaultHeader, alice.Hex())
	caller, ok, err := svc.Resolve(req)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, alice, caller)

	req.Header.Set(DefaultHeader, "0x0000000000000000000000000000000000000000")
	_, _, err = svc.Resolve(req)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	req.Header.Set(DefaultHeader, "not-an-address")
	_, _, err = svc.Resolve(req)
	assert.Equal(t, xerrors.CodeUnauthenticated, xerrors.CodeOf(err))
}

func TestJWTModeRoundTrip(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeJWT, JWT: JWTOptions{Secret: "s3cret", Issuer: "proofd", Audience: "proofs"}})
	require.NoError(t, err)

	token, err := svc.IssueToken(alice)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	caller, ok, err := svc.Resolve(req)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, alice, caller)

	_, err = svc.IssueToken(proofs.ZeroIdentity)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestJWTModeRejectsBadTokens(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeJWT, JWT: JWTOptions{Secret: "s3cret", Issuer: "proofd", Audience: "proofs"}})
	require.NoError(t, err)

	sign := func(claims jwt.RegisteredClaims, secret string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{
		Subject:   alice.Hex(),
		Issuer:    "proofd",
		Audience:  jwt.ClaimStrings{"proofs"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	wrongIssuer := valid
	wrongIssuer.Issuer = "other"
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noSubject := valid
	noSubject.Subject = ""

	cases := map[string]string{
		"wrong secret": sign(valid, "other"),
		"wrong issuer": sign(wrongIssuer, "s3cret"),
		"expired":      sign(expired, "s3cret"),
		"missing sub":  sign(noSubject, "s3cret"),
		"garbage":      "a.b.c",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			_, _, err := svc.Resolve(req)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	_, ok, err := svc.Resolve(req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMiddlewareAttachesCaller(t *testing.T) {
	svc, err := NewService(Config{Mode: ModeHeader})
	require.NoError(t, err)

	var seen proofs.Identity
	var present bool
	h := svc.Middleware(MiddlewareConfig{Audit: logger.Discard()})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, present = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DefaultHeader, alice.Hex())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, present)
	assert.Equal(t, alice, seen)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, present)

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set(DefaultHeader, "zz")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireCaller(t *testing.T) {
	_, err := RequireCaller(context.Background())
	assert.ErrorIs(t, err, ErrMissingIdentity)

	ctx := WithCaller(context.Background(), alice)
	caller, err := RequireCaller(ctx)
	require.NoError(t, err)
	assert.Equal(t, alice, caller)

	assert.Equal(t, context.Background(), WithCaller(context.Background(), proofs.ZeroIdentity))
}
