package faults

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"sort"
	"sync"
)

// =============================================================================
// Hash Builder
// =============================================================================

// HashBuilder provides a fluent API for building content hashes.
//
// Usage:
//
//	hash := NewHashBuilder().
//	    String(rec.FailureType).
//	    String(rec.ObjectRef).
//	    Bool(rec.Active).
//	    Build()
//
// The hash is deterministic - same inputs always produce the same output.
// Order of operations matters.
type HashBuilder struct {
	h hash.Hash64
}

// NewHashBuilder creates a new hash builder.
func NewHashBuilder() *HashBuilder {
	return &HashBuilder{h: fnv.New64a()}
}

// String adds a string value to the hash.
func (b *HashBuilder) String(s string) *HashBuilder {
	b.h.Write([]byte(s))
	b.h.Write([]byte{0}) // Separator to avoid collisions
	return b
}

// StringMap adds a map of strings to the hash.
// Keys are sorted for deterministic ordering.
func (b *HashBuilder) StringMap(m map[string]string) *HashBuilder {
	if m == nil {
		b.Int(0)
		return b
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.Int(len(keys))
	for _, k := range keys {
		b.String(k)
		b.String(m[k])
	}
	return b
}

// Int adds an integer to the hash.
func (b *HashBuilder) Int(i int) *HashBuilder {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(i))
	b.h.Write(buf)
	return b
}

// Int64 adds an int64 to the hash.
func (b *HashBuilder) Int64(i int64) *HashBuilder {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(i))
	b.h.Write(buf)
	return b
}

// Bool adds a boolean to the hash.
func (b *HashBuilder) Bool(v bool) *HashBuilder {
	if v {
		b.h.Write([]byte{1})
	} else {
		b.h.Write([]byte{0})
	}
	return b
}

// Bytes adds raw bytes to the hash.
func (b *HashBuilder) Bytes(data []byte) *HashBuilder {
	b.Int(len(data))
	b.h.Write(data)
	return b
}

// Build returns the final hash value.
func (b *HashBuilder) Build() uint64 {
	return b.h.Sum64()
}

// HashBytes returns the hash of raw bytes.
func HashBytes(data []byte) uint64 {
	return NewHashBuilder().Bytes(data).Build()
}

// =============================================================================
// Checksum Guard
// =============================================================================

// ChecksumGuard short-circuits reconciliation when the raw failure payload is
// byte-identical to the previous cycle's. On quiescent systems this bounds
// per-cycle reconciliation cost to one hash computation.
//
// The guard is two-phase: Check compares without mutating, Commit records the
// hash only after a successful reconcile, so a failed cycle never suppresses
// the retry.
type ChecksumGuard struct {
	mu     sync.Mutex
	hashes map[string]uint64 // sys_id -> last committed payload hash
}

// NewChecksumGuard creates an empty guard.
func NewChecksumGuard() *ChecksumGuard {
	return &ChecksumGuard{
		hashes: make(map[string]uint64),
	}
}

// Check hashes the payload and reports whether it matches the last committed
// hash for the system.
func (g *ChecksumGuard) Check(sysID string, payload []byte) (hash uint64, unchanged bool) {
	hash = HashBytes(payload)

	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.hashes[sysID]
	return hash, ok && last == hash
}

// Commit records the payload hash for the next cycle's comparison.
func (g *ChecksumGuard) Commit(sysID string, hash uint64) {
	g.mu.Lock()
	g.hashes[sysID] = hash
	g.mu.Unlock()
}

// Forget drops the stored hash for a system, forcing full reconciliation on
// the next cycle.
func (g *ChecksumGuard) Forget(sysID string) {
	g.mu.Lock()
	delete(g.hashes, sysID)
	g.mu.Unlock()
}
