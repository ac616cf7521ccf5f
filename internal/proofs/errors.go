package proofs

import (
	"fmt"
	"net/http"

	xerrors "ProofChain/internal/errors"
)

const (
	CodeDuplicateID     xerrors.Code = "PROOF_DUPLICATE_ID"
	CodeInvalidLength   xerrors.Code = "PROOF_INVALID_LENGTH"
	CodeUnauthorized    xerrors.Code = "PROOF_UNAUTHORIZED"
	CodeNotFound        xerrors.Code = "PROOF_NOT_FOUND"
	CodeInvalidIdentity xerrors.Code = "PROOF_INVALID_IDENTITY"
	CodeInvalidProofID  xerrors.Code = "PROOF_INVALID_ID"
)

var (
	// ErrDuplicateID: the proof id is already owned.
	ErrDuplicateID = xerrors.New(CodeDuplicateID, "Proof ID already exists")
	// ErrInvalidLength: proof text outside [1, 500] bytes.
	ErrInvalidLength = xerrors.New(CodeInvalidLength, fmt.Sprintf("Proof text must be between %d and %d characters", MinProofTextLength, MaxProofTextLength))
	// ErrUnauthorized covers both "no such proof" and "caller is not the owner".
	ErrUnauthorized = xerrors.New(CodeUnauthorized, "Only proof owner can update")
	// ErrNotFound is only produced by transports that turn an absent view
	// result into an error. The registry itself reports absence with ok=false.
	ErrNotFound = xerrors.New(CodeNotFound, "proof not found")

	ErrInvalidIdentity = xerrors.New(CodeInvalidIdentity, "caller identity must be a non-zero 20-byte address")
	ErrEmptyProofID    = xerrors.New(CodeInvalidProofID, "proof id must not be empty")
)

func init() {
	xerrors.Register(CodeDuplicateID, xerrors.Attributes{
		Message:    "proof id already exists",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusConflict,
	})
	xerrors.Register(CodeInvalidLength, xerrors.Attributes{
		Message:    "proof text length out of range",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusBadRequest,
	})
	xerrors.Register(CodeUnauthorized, xerrors.Attributes{
		Message:    "only proof owner can update",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusForbidden,
	})
	xerrors.Register(CodeNotFound, xerrors.Attributes{
		Message:    "proof not found",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusNotFound,
	})
	xerrors.Register(CodeInvalidIdentity, xerrors.Attributes{
		Message:    "invalid identity",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusBadRequest,
	})
	xerrors.Register(CodeInvalidProofID, xerrors.Attributes{
		Message:    "invalid proof id",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusBadRequest,
	})
}
