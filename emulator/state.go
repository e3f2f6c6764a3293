package emulator

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/trie"
)

// registerSlot is the reserved trie key (the all-zero word index) carrying
// the encoded register file. A memory word at index 0 is shadowed by it, as
// the register slot takes precedence.
const registerSlot = uint32(0)

// MemAccess is one observed memory operation of a traced instruction, in
// occurrence order.
type MemAccess struct {
	// Write distinguishes writes from reads (the seeded instruction fetch
	// counts as a read).
	Write bool   `json:"write"`
	Addr  uint64 `json:"addr"`
	Size  int    `json:"size"`
	Value int64  `json:"value"`
}

// EmulatorState is an immutable capture of the machine at an instruction
// boundary: the register file, the full sparse memory image and the retired
// instruction count.
type EmulatorState struct {
	Regs     RegisterState `json:"regs"`
	Memories MemoryState   `json:"memories"`
	Steps    uint64        `json:"steps"`
}

// StateRoot commits the snapshot into a Merkle-Patricia trie and returns the
// 32-byte root. Every memory word is inserted under its 4-byte big-endian
// word index; the register file occupies the reserved all-zero key. The root
// depends only on the (key, value) set, never on iteration order, and never
// on the step count or any access log.
func (s *EmulatorState) StateRoot() common.Hash {
	words := s.Memories.Words()

	// The stack trie wants strictly ascending keys; Words() is sorted and
	// the register slot is the smallest possible key.
	st := trie.NewStackTrie(nil)
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], registerSlot)
	if err := st.Update(key[:], s.Regs.Encode()); err != nil {
		panic(fmt.Sprintf("state commitment: register slot: %v", err))
	}
	for _, w := range words {
		if w.Index == registerSlot {
			continue
		}
		binary.BigEndian.PutUint32(key[:], w.Index)
		if err := st.Update(key[:], append([]byte{}, w.Value[:]...)); err != nil {
			panic(fmt.Sprintf("state commitment: word %#x: %v", w.Index, err))
		}
	}
	return st.Hash()
}

// StateChange is the exported proof bundle for one traced instruction.
type StateChange struct {
	StateBefore *EmulatorState `json:"state_before"`
	StateAfter  *EmulatorState `json:"state_after"`
	// Step is the step index after which the access log was captured.
	Step   uint64      `json:"step"`
	Access []MemAccess `json:"access"`
}

const (
	beforeStateFile = "before_state.json"
	afterStateFile  = "after_state.json"
	memAccessFile   = "mem_access.json"
)

// OutputTo writes the bundle as three pretty-printed JSON documents into
// outputDir, creating the directory if needed and overwriting existing
// files.
func (sc *StateChange) OutputTo(outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output dir %s: %w", outputDir, err)
	}
	parts := []struct {
		name string
		obj  interface{}
	}{
		{beforeStateFile, sc.StateBefore},
		{afterStateFile, sc.StateAfter},
		{memAccessFile, sc.Access},
	}
	for _, p := range parts {
		data, err := json.MarshalIndent(p.obj, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", p.name, err)
		}
		path := filepath.Join(outputDir, p.name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}
