package core

import (
	"crypto/sha256"
	"encoding/binary"

	"PerpAMM/internal/event"
)

const GenesisHashSeed = "PerpAMM:genesis:v1"

// StateHasher chains every committed event:
// hash[N] = SHA-256(hash[N-1] || N (8 bytes LE) || digest(event N)).
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher starts the chain at the genesis hash.
func NewStateHasher() *StateHasher {
	return &StateHasher{prevHash: sha256.Sum256([]byte(GenesisHashSeed))}
}

// ResumeStateHasher continues a chain from a snapshot's tip.
func ResumeStateHasher(tip [32]byte) *StateHasher {
	return &StateHasher{prevHash: tip}
}

// EventDigest is SHA-256(type (4 bytes LE) || payload).
func EventDigest(t event.EventType, payload []byte) [32]byte {
	h := sha256.New()
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(t))
	h.Write(buf[:])
	h.Write(payload)
	var d [32]byte
	copy(d[:], h.Sum(nil))
	return d
}

// ComputeHash advances the chain by one event and returns the new tip.
func (h *StateHasher) ComputeHash(sequence int64, digest [32]byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])
	hasher.Write(digest[:])

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	h.prevHash = hash
	return hash
}

// GetPrevHash returns current chain tip
func (h *StateHasher) GetPrevHash() [32]byte {
	return h.prevHash
}

// VerifyChain recomputes the chain over envelopes starting from prev and
// reports the first sequence whose stored hash disagrees.
func VerifyChain(prev [32]byte, envelopes []*event.EventEnvelope) (int64, bool) {
	h := ResumeStateHasher(prev)
	for _, env := range envelopes {
		if env.PrevHash != h.GetPrevHash() {
			return env.Sequence, false
		}
		if h.ComputeHash(env.Sequence, EventDigest(env.EventType, env.Payload)) != env.StateHash {
			return env.Sequence, false
		}
	}
	return 0, true
}
