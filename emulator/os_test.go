package emulator

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// Writes "hi\n" to fd 1 and exits with status 7. The message lives in the
// load segment right after the code.
var helloProgram = append([]byte{
	0x34, 0x04, 0x00, 0x01, // ori   $a0, $zero, 1
	0x3c, 0x05, 0x00, 0x40, // lui   $a1, 0x0040
	0x34, 0xa5, 0x00, 0x24, // ori   $a1, $a1, 0x0024
	0x34, 0x06, 0x00, 0x03, // ori   $a2, $zero, 3
	0x34, 0x02, 0x0f, 0xa4, // ori   $v0, $zero, 4004 (write)
	0x00, 0x00, 0x00, 0x0c, // syscall
	0x34, 0x04, 0x00, 0x07, // ori   $a0, $zero, 7
	0x34, 0x02, 0x0f, 0xa1, // ori   $v0, $zero, 4001 (exit)
	0x00, 0x00, 0x00, 0x0c, // syscall
}, []byte("hi\n")...)

// Queries the current break and exits.
var brkProgram = []byte{
	0x34, 0x02, 0x0f, 0xcd, // ori   $v0, $zero, 4045 (brk)
	0x34, 0x04, 0x00, 0x00, // ori   $a0, $zero, 0
	0x00, 0x00, 0x00, 0x0c, // syscall
	0x00, 0x40, 0x40, 0x21, // addu  $t0, $v0, $zero
	0x34, 0x02, 0x0f, 0xa1, // ori   $v0, $zero, 4001 (exit)
	0x34, 0x04, 0x00, 0x00, // ori   $a0, $zero, 0
	0x00, 0x00, 0x00, 0x0c, // syscall
}

func TestLinuxRunnerWriteAndExit(t *testing.T) {
	var stdout, stderr bytes.Buffer
	runner := &LinuxRunner{Stdout: &stdout, Stderr: &stderr}

	image := buildELF(helloProgram, codeBase, codeBase, 1)
	emu, info, err := newLoadedEmulator(t, testConfig(), image, []string{"hello"}, nil, runner)
	require.NoError(t, err)

	steps, err := emu.Run(info.Entrypoint, 0, 0, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(9), steps)

	require.Equal(t, "hi\n", stdout.String())
	require.Empty(t, stderr.String())

	status, exited := runner.Exited()
	require.True(t, exited)
	require.Equal(t, uint64(7), status)
}

func TestLinuxRunnerBrk(t *testing.T) {
	runner := NewLinuxRunner()
	image := buildELF(brkProgram, codeBase, codeBase, 1)
	emu, info, err := newLoadedEmulator(t, testConfig(), image, []string{"brk"}, nil, runner)
	require.NoError(t, err)

	_, err = emu.Run(info.Entrypoint, 0, 0, 0)
	require.NoError(t, err)

	state, err := emu.Save()
	require.NoError(t, err)
	brk, ok := state.Regs.Get(regT0)
	require.True(t, ok)
	require.Equal(t, info.Brk, brk)
}

func TestLinuxRunnerTracedSyscall(t *testing.T) {
	// A traced syscall instruction still services the guest and logs only
	// its seeded fetch; register effects of the runner land in the after
	// snapshot.
	var stdout bytes.Buffer
	runner := &LinuxRunner{Stdout: &stdout, Stderr: &stdout}

	image := buildELF(helloProgram, codeBase, codeBase, 1)
	emu, info, err := newLoadedEmulator(t, testConfig(), image, []string{"hello"}, nil, runner)
	require.NoError(t, err)

	// Run the five setup instructions untraced, then trace the write
	// syscall.
	change, err := emu.RunUntil(info.Entrypoint, 0, 0, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(6), change.Step)
	require.Equal(t, "hi\n", stdout.String())

	// The message bytes were read by the host, not by the guest: the log
	// holds the fetch alone.
	require.Equal(t, []MemAccess{
		{Write: false, Addr: codeBase + 20, Size: 4, Value: 0x0000000c},
	}, change.Access)

	v0, ok := change.StateAfter.Regs.Get(2)
	require.True(t, ok)
	require.Equal(t, uint64(3), v0, "write returns the byte count in v0")
}
