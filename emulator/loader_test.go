package emulator

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/steptrace/steptrace/arch"
)

const elfCodeOffset = 0x1000

// buildELF assembles a minimal static big-endian MIPS ELF32 with a single
// PT_LOAD segment carrying code at vaddr.
func buildELF(code []byte, vaddr, entry uint64, segType uint32) []byte {
	buf := make([]byte, elfCodeOffset+len(code))
	be := binary.BigEndian

	copy(buf, []byte{0x7f, 'E', 'L', 'F', 1, 2, 1, 0})
	be.PutUint16(buf[16:], 2) // ET_EXEC
	be.PutUint16(buf[18:], 8) // EM_MIPS
	be.PutUint32(buf[20:], 1)
	be.PutUint32(buf[24:], uint32(entry))
	be.PutUint32(buf[28:], 52) // e_phoff
	be.PutUint16(buf[40:], 52) // e_ehsize
	be.PutUint16(buf[42:], 32) // e_phentsize
	be.PutUint16(buf[44:], 1)  // e_phnum

	ph := buf[52:]
	be.PutUint32(ph[0:], segType)
	be.PutUint32(ph[4:], elfCodeOffset)
	be.PutUint32(ph[8:], uint32(vaddr))
	be.PutUint32(ph[12:], uint32(vaddr))
	be.PutUint32(ph[16:], uint32(len(code))) // p_filesz
	be.PutUint32(ph[20:], uint32(len(code))) // p_memsz
	be.PutUint32(ph[24:], 7)                 // rwx
	be.PutUint32(ph[28:], 0x1000)

	copy(buf[elfCodeOffset:], code)
	return buf
}

func testConfig() Config {
	return Config{
		OS: OSConfig{
			StackAddress: 0x7f80_0000,
			StackSize:    0x10_0000,
		},
		Emulator: EmulatorConfig{VerifyMemory: true},
	}
}

func newLoadedEmulator(t *testing.T, conf Config, image []byte, argv []string, env map[string]string, runner Runner) (*Emulator, LoadResult, error) {
	t.Helper()
	emu, err := New(conf, arch.MIPS32{}, runner)
	require.NoError(t, err)
	t.Cleanup(func() { emu.Engine().Close() })
	info, err := emu.Load(image, argv, env)
	return emu, info, err
}

func TestLoadELF(t *testing.T) {
	conf := testConfig()
	image := buildELF(testProgram, codeBase, codeBase, 1)
	emu, info, err := newLoadedEmulator(t, conf, image,
		[]string{"prog", "arg1"}, map[string]string{"PATH": "/bin"}, NullRunner{})
	require.NoError(t, err)

	require.Equal(t, codeBase, info.Entrypoint)
	require.Equal(t, codeBase+pageSize, info.Brk)

	stackBase := conf.OS.StackAddress
	stackEnd := stackBase + conf.OS.StackSize
	require.Greater(t, info.StackTop, stackBase)
	require.Less(t, info.StackTop, stackEnd)
	require.Zero(t, info.StackTop%8)

	// argc sits at the initial stack pointer.
	word, err := emu.Engine().MemRead(info.StackTop, 4)
	require.NoError(t, err)
	require.Equal(t, uint32(2), binary.BigEndian.Uint32(word))

	// argv[0] points at a NUL-terminated "prog".
	word, err = emu.Engine().MemRead(info.StackTop+4, 4)
	require.NoError(t, err)
	argv0, err := emu.Engine().MemRead(uint64(binary.BigEndian.Uint32(word)), 5)
	require.NoError(t, err)
	require.Equal(t, []byte("prog\x00"), argv0)

	// The loaded image is in the mirror too; running it keeps the mirror
	// consistent from the first instruction on.
	require.NoError(t, emu.Engine().MapRegion(dataBase, pageSize))
	steps, err := emu.Run(info.Entrypoint, codeBase+uint64(len(testProgram)), 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(3), steps)

	state, err := emu.Save()
	require.NoError(t, err)
	require.Equal(t, byte(0x2a), state.Memories[dataBase])
	require.Equal(t, testProgram, state.Memories.ReadBytes(codeBase, len(testProgram)))
}

func TestLoadELFBadImage(t *testing.T) {
	_, _, err := newLoadedEmulator(t, testConfig(), []byte("not an elf"), nil, nil, NullRunner{})
	require.ErrorIs(t, err, ErrEBadImage)
}

func TestLoadELFWrongType(t *testing.T) {
	image := buildELF(testProgram, codeBase, codeBase, 1)
	binary.BigEndian.PutUint16(image[16:], 3) // ET_DYN
	_, _, err := newLoadedEmulator(t, testConfig(), image, nil, nil, NullRunner{})
	require.ErrorIs(t, err, ErrEBadImage)
}

func TestLoadELFNoLoadSegments(t *testing.T) {
	image := buildELF(testProgram, codeBase, codeBase, 4) // PT_NOTE
	_, _, err := newLoadedEmulator(t, testConfig(), image, nil, nil, NullRunner{})
	require.ErrorIs(t, err, ErrENoLoadSegments)
}

func TestLoadELFStackUnaligned(t *testing.T) {
	conf := testConfig()
	conf.OS.StackAddress += 0x10
	image := buildELF(testProgram, codeBase, codeBase, 1)
	_, _, err := newLoadedEmulator(t, conf, image, nil, nil, NullRunner{})
	require.ErrorIs(t, err, ErrEStackUnaligned)
}

func TestLoadELFStackOverlap(t *testing.T) {
	conf := testConfig()
	conf.OS.StackAddress = codeBase
	image := buildELF(testProgram, codeBase, codeBase, 1)
	_, _, err := newLoadedEmulator(t, conf, image, nil, nil, NullRunner{})
	require.ErrorIs(t, err, ErrEStackRegion)
}
