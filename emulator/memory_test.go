package emulator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStateReadWriteBytes(t *testing.T) {
	m := make(MemoryState)
	m.WriteBytes(0x1000, []byte{0xde, 0xad, 0xbe, 0xef})

	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, m.ReadBytes(0x1000, 4))
	// Holes read as zero.
	require.Equal(t, []byte{0xef, 0x00, 0x00}, m.ReadBytes(0x1003, 3))
	require.Equal(t, []byte{0x00, 0xde}, m.ReadBytes(0xfff, 2))
}

func TestMemoryStateWriteValueBigEndian(t *testing.T) {
	m := make(MemoryState)
	m.WriteValue(0x2000, 4, 0x11223344)
	require.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, m.ReadBytes(0x2000, 4))

	m.WriteValue(0x3000, 1, 0x2a)
	require.Equal(t, []byte{0x2a}, m.ReadBytes(0x3000, 1))

	// Only the low size bytes are stored.
	m.WriteValue(0x4000, 2, 0x00ffbeef)
	require.Equal(t, []byte{0xbe, 0xef}, m.ReadBytes(0x4000, 2))
}

func TestMemoryStateCopyIsIndependent(t *testing.T) {
	m := MemoryState{0x1000: 0x2a}
	c := m.Copy()
	c[0x1000] = 0xff
	c[0x2000] = 0x01
	require.Equal(t, byte(0x2a), m[0x1000])
	_, ok := m[0x2000]
	require.False(t, ok)
}

func TestMemoryStateWords(t *testing.T) {
	m := MemoryState{
		0x1001: 0xad, // word 0x400, byte 1
		0x1003: 0xef, // word 0x400, byte 3
		0x0ffc: 0x11, // word 0x3ff, byte 0
	}
	words := m.Words()
	require.Len(t, words, 2)
	require.Equal(t, MemWord{Index: 0x3ff, Value: [4]byte{0x11, 0, 0, 0}}, words[0])
	require.Equal(t, MemWord{Index: 0x400, Value: [4]byte{0, 0xad, 0, 0xef}}, words[1])
}

func TestMirrorObserveWrite(t *testing.T) {
	mr := NewMirror(true)
	mr.ObserveWrite([]byte{0x00}, 0x1000, 1, 0x2a)
	require.Equal(t, []byte{0x2a}, mr.Snapshot().ReadBytes(0x1000, 1))

	// Overwrite with matching pre-state.
	mr.ObserveWrite([]byte{0x2a}, 0x1000, 1, 0x2b)
	require.Equal(t, []byte{0x2b}, mr.Snapshot().ReadBytes(0x1000, 1))
}

func TestMirrorWriteDivergencePanics(t *testing.T) {
	mr := NewMirror(true)
	mr.ObserveWrite([]byte{0x00}, 0x1000, 1, 0x2a)
	require.Panics(t, func() {
		// Live pre-write content disagrees with the shadow copy.
		mr.ObserveWrite([]byte{0x99}, 0x1000, 1, 0x2b)
	})
}

func TestMirrorReadDivergencePanics(t *testing.T) {
	mr := NewMirror(true)
	mr.ObserveWrite([]byte{0x00, 0x00}, 0x1000, 2, 0x1234)
	require.NotPanics(t, func() { mr.ObserveRead(0x1000, 2, 0x1234) })
	require.Panics(t, func() { mr.ObserveRead(0x1000, 2, 0x1235) })
}

func TestMirrorVerifyDisabled(t *testing.T) {
	mr := NewMirror(false)
	mr.ObserveWrite([]byte{0x00}, 0x1000, 1, 0x2a)
	require.NotPanics(t, func() {
		mr.ObserveWrite([]byte{0x99}, 0x1000, 1, 0x2b)
		mr.ObserveRead(0x1000, 1, 0x77)
	})
	// Updates still land.
	require.Equal(t, []byte{0x2b}, mr.Snapshot().ReadBytes(0x1000, 1))
}

func TestMirrorLoaderWrite(t *testing.T) {
	mr := NewMirror(true)
	mr.Write(0x400000, []byte{0x34, 0x08, 0x00, 0x2a})
	// A later read of the loaded bytes must match.
	require.NotPanics(t, func() { mr.ObserveRead(0x400000, 4, 0x3408002a) })
}

func TestMirrorSnapshotIsIndependent(t *testing.T) {
	mr := NewMirror(true)
	mr.Write(0x1000, []byte{0x2a})
	snap := mr.Snapshot()
	mr.Write(0x1000, []byte{0xff})
	require.Equal(t, byte(0x2a), snap[0x1000])
}
