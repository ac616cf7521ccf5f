package proofs

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"ProofChain/internal/events"
)

const (
	EventProofCertified = "proofs.certified"
	EventProofUpdated   = "proofs.updated"
)

func proofCertifiedEvent(owner Identity, rec Record) events.Event {
	return events.Event{
		Name: EventProofCertified,
		Indexed: map[string]string{
			"owner":    owner.Hex(),
			"proof_id": hexutil.Encode(rec.ProofID),
		},
		Data: map[string]string{
			"proof_text": hexutil.Encode(rec.ProofText),
		},
		Timestamp: rec.Timestamp,
	}
}

// proofUpdatedEvent is stamped with the time of the update; the record keeps
// its certification timestamp.
func proofUpdatedEvent(owner Identity, rec Record, at uint64) events.Event {
	return events.Event{
		Name: EventProofUpdated,
		Indexed: map[string]string{
			"owner":    owner.Hex(),
			"proof_id": hexutil.Encode(rec.ProofID),
		},
		Data: map[string]string{
			"proof_text": hexutil.Encode(rec.ProofText),
		},
		Timestamp: at,
	}
}

// DecodeEventBytes reverses the hex encoding of event byte fields.
func DecodeEventBytes(value string) ([]byte, error) {
	return hexutil.Decode(value)
}
