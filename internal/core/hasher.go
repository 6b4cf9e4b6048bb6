package core

import (
	"PoolLedger/internal/store"
	"crypto/sha256"
	"encoding/binary"
)

const GenesisHashSeed = "PoolLedger:genesis:v1"

// StateHasher computes deterministic state hashes
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher initializes with genesis hash
func NewStateHasher() *StateHasher {
	return &StateHasher{
		prevHash: sha256.Sum256([]byte(GenesisHashSeed)),
	}
}

// ComputeHash calculates state_hash[N] = SHA-256(prev_hash || sequence || state_digest)
// and advances the chain tip.
func (h *StateHasher) ComputeHash(sequence int64, stateDigest []byte) [32]byte {
	hash := h.Peek(sequence, stateDigest)
	h.prevHash = hash
	return hash
}

// Peek returns the hash ComputeHash would produce without advancing.
func (h *StateHasher) Peek(sequence int64, stateDigest []byte) [32]byte {
	hasher := sha256.New()

	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(stateDigest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// GetPrevHash returns current chain tip
func (h *StateHasher) GetPrevHash() [32]byte {
	return h.prevHash
}

// SetPrevHash moves the chain tip, used when restoring from a checkpoint.
func (h *StateHasher) SetPrevHash(hash [32]byte) {
	h.prevHash = hash
}

// ChangeSetDigest hashes the stored form of every written entity. Records
// arrive ordered by kind then id, so equal change sets give equal digests.
func ChangeSetDigest(records []store.Record) []byte {
	hasher := sha256.New()
	var lenBuf [4]byte
	for _, r := range records {
		for _, part := range [][]byte{[]byte(r.Kind), []byte(r.ID), r.Data} {
			binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(part)))
			hasher.Write(lenBuf[:])
			hasher.Write(part)
		}
	}
	return hasher.Sum(nil)
}
