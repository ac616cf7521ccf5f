package proofs

import (
	"encoding/binary"
)

// Key layout. The owner segment is a fixed 20 bytes and every prefix ends in
// '/', so no key of one namespace can be produced by another.
var (
	prefixRecord     = []byte("proofs/userProofs/")
	prefixUserIndex  = []byte("proofs/userProofIds/")
	prefixOwner      = []byte("proofs/proofOwners/")
	prefixUserCount  = []byte("proofs/userProofCount/")
	keyTotalProofs   = []byte("proofs/totalProofs")
	identityLength   = len(ZeroIdentity)
	indexSuffixBytes = 8
)

func recordKey(owner Identity, proofID []byte) []byte {
	key := make([]byte, 0, len(prefixRecord)+identityLength+len(proofID))
	key = append(key, prefixRecord...)
	key = append(key, owner.Bytes()...)
	return append(key, proofID...)
}

// userIndexKey addresses the position-th proof id certified by owner.
// Positions are dense from 0, so the per-user counter doubles as the set size.
func userIndexKey(owner Identity, position uint64) []byte {
	key := make([]byte, 0, len(prefixUserIndex)+identityLength+indexSuffixBytes)
	key = append(key, prefixUserIndex...)
	key = append(key, owner.Bytes()...)
	return binary.BigEndian.AppendUint64(key, position)
}

func ownerKey(proofID []byte) []byte {
	key := make([]byte, 0, len(prefixOwner)+len(proofID))
	key = append(key, prefixOwner...)
	return append(key, proofID...)
}

func userCountKey(owner Identity) []byte {
	key := make([]byte, 0, len(prefixUserCount)+identityLength)
	key = append(key, prefixUserCount...)
	return append(key, owner.Bytes()...)
}

func totalProofsKey() []byte {
	return append([]byte(nil), keyTotalProofs...)
}

// MaxProofIDLength returns the longest proof id whose keys all fit in
// keyLimit bytes. The record key carries the most overhead.
func MaxProofIDLength(keyLimit int) int {
	n := keyLimit - len(prefixRecord) - identityLength
	if n < 0 {
		return 0
	}
	return n
}
