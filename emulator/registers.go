package emulator

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/steptrace/steptrace/arch"
)

// RegisterValue is one committed register: a stable architecture-defined
// identifier and its 64-bit value.
type RegisterValue struct {
	Reg   arch.RegisterID `json:"reg"`
	Value uint64          `json:"value"`
}

// RegisterState is the captured register file in the architecture's
// enumeration order. The order is irrelevant for the commitment semantics but
// kept stable so re-encoding a snapshot is deterministic.
type RegisterState []RegisterValue

// Get returns the value of the register with the given id.
func (rs RegisterState) Get(id arch.RegisterID) (uint64, bool) {
	for _, r := range rs {
		if r.Reg == id {
			return r.Value, true
		}
	}
	return 0, false
}

// Encode serializes the register file for the commitment's reserved trie
// slot: an RLP list with one fixed-width 12-byte element per register, the
// 4-byte big-endian identifier followed by the 8-byte big-endian value. The
// two fields never overlap, so the encoding is unambiguous for full 64-bit
// register values.
func (rs RegisterState) Encode() []byte {
	elems := make([][]byte, len(rs))
	for i, r := range rs {
		b := make([]byte, 12)
		binary.BigEndian.PutUint32(b[0:4], uint32(r.Reg))
		binary.BigEndian.PutUint64(b[4:12], r.Value)
		elems[i] = b
	}
	out, err := rlp.EncodeToBytes(elems)
	if err != nil {
		// rlp encoding of a [][]byte cannot fail
		panic(err)
	}
	return out
}
