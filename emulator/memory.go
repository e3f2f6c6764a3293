package emulator

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/steptrace/steptrace/log"
)

// MemoryState is the sparse byte-granular memory image. Only addresses that
// were ever written are materialized; everything else reads as zero, matching
// the engine's zero-initialized mappings.
type MemoryState map[uint64]byte

// ReadBytes returns size bytes starting at addr, zero-filled for holes.
func (m MemoryState) ReadBytes(addr uint64, size int) []byte {
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		out[i] = m[addr+uint64(i)]
	}
	return out
}

// WriteBytes stores data starting at addr.
func (m MemoryState) WriteBytes(addr uint64, data []byte) {
	for i, b := range data {
		m[addr+uint64(i)] = b
	}
}

// WriteValue stores the low size bytes of value at addr, big-endian.
func (m MemoryState) WriteValue(addr uint64, size int, value int64) {
	m.WriteBytes(addr, valueBytes(value, size))
}

// Copy returns an independently owned copy of the image.
func (m MemoryState) Copy() MemoryState {
	out := make(MemoryState, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MemWord is one 4-byte word of the image, keyed by its word index (address
// right-shifted by 2). Partially materialized words are zero-filled.
type MemWord struct {
	Index uint32
	Value [4]byte
}

// Words folds the byte image into its word view, sorted by word index.
func (m MemoryState) Words() []MemWord {
	byIndex := make(map[uint32][4]byte)
	for addr, b := range m {
		idx := uint32(addr >> 2)
		w := byIndex[idx]
		w[addr&3] = b
		byIndex[idx] = w
	}
	words := make([]MemWord, 0, len(byIndex))
	for idx, w := range byIndex {
		words = append(words, MemWord{Index: idx, Value: w})
	}
	sort.Slice(words, func(i, j int) bool { return words[i].Index < words[j].Index })
	return words
}

// valueBytes returns the low size bytes of value in big-endian order.
func valueBytes(value int64, size int) []byte {
	out := make([]byte, size)
	for i := 0; i < size; i++ {
		out[i] = byte(value >> (8 * (size - 1 - i)))
	}
	return out
}

// Mirror is the shadow copy of the engine's memory, maintained through the
// permanent write hook and through loader writes. It is the source of truth
// for snapshots, so every observation cross-checks it against the engine's
// live content: a mismatch means a hook was missed or fired out of order, and
// the mirror can no longer back a commitment. That is an internal invariant
// violation, not a user error, hence the panic.
type Mirror struct {
	mem    MemoryState
	verify bool
}

func NewMirror(verify bool) *Mirror {
	return &Mirror{mem: make(MemoryState), verify: verify}
}

// ObserveWrite records a write event. live holds the engine's pre-write
// content at (addr, size); it must equal the mirror's, or a prior update was
// lost.
func (mr *Mirror) ObserveWrite(live []byte, addr uint64, size int, value int64) {
	if mr.verify {
		shadow := mr.mem.ReadBytes(addr, size)
		if !bytes.Equal(shadow, live) {
			log.Error(log.MirrorMonitoring, "mirror divergence on write", "addr", fmt.Sprintf("%#x", addr), "size", size, "shadow", fmt.Sprintf("%x", shadow), "live", fmt.Sprintf("%x", live))
			panic(fmt.Sprintf("shadow memory divergence at %#x (size %d): shadow %x, live %x", addr, size, shadow, live))
		}
	}
	mr.mem.WriteValue(addr, size, value)
}

// ObserveRead cross-checks a resolved read: the value's low size bytes must
// equal the mirror's content at addr.
func (mr *Mirror) ObserveRead(addr uint64, size int, value int64) {
	if !mr.verify {
		return
	}
	shadow := mr.mem.ReadBytes(addr, size)
	expect := valueBytes(value, size)
	if !bytes.Equal(shadow, expect) {
		log.Error(log.MirrorMonitoring, "mirror divergence on read", "addr", fmt.Sprintf("%#x", addr), "size", size, "shadow", fmt.Sprintf("%x", shadow), "read", fmt.Sprintf("%x", expect))
		panic(fmt.Sprintf("shadow memory divergence at %#x (size %d): shadow %x, engine read %x", addr, size, shadow, expect))
	}
}

// Write records bytes placed into engine memory outside instruction
// execution (the loader path), keeping the mirror in lockstep from the first
// instruction on.
func (mr *Mirror) Write(addr uint64, data []byte) {
	mr.mem.WriteBytes(addr, data)
}

// Snapshot returns an independently owned copy of the full sparse image.
func (mr *Mirror) Snapshot() MemoryState {
	return mr.mem.Copy()
}
