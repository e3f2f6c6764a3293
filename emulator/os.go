package emulator

import (
	"fmt"
	"io"
	"os"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/steptrace/steptrace/log"
)

// Runner is the OS collaborator attached to a machine after loading. It may
// install additional mappings or hooks; an error aborts construction of the
// process image.
type Runner interface {
	OnLoad(m *Machine, info LoadResult) error
}

// NullRunner attaches nothing. Useful for raw code fragments that never
// leave user mode.
type NullRunner struct{}

func (NullRunner) OnLoad(*Machine, LoadResult) error { return nil }

// Linux o32 syscall numbers, the minimal set a static hello-world style
// binary needs. Anything else is reported as unimplemented and returns 0.
const (
	sysExit      = 4001
	sysWrite     = 4004
	sysBrk       = 4045
	sysExitGroup = 4246
)

// LinuxRunner services guest syscalls through the interrupt hook: exit stops
// the engine, write(1/2) is copied through to the configured streams, brk is
// tracked against the loader's break. This is deliberately not an OS
// emulation layer; it exists so self-contained test binaries run to their
// natural end.
type LinuxRunner struct {
	Stdout io.Writer
	Stderr io.Writer

	brk        uint64
	exitStatus uint64
	exited     bool
}

func NewLinuxRunner() *LinuxRunner {
	return &LinuxRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Exited reports whether the guest called exit, and with which status.
func (r *LinuxRunner) Exited() (uint64, bool) {
	return r.exitStatus, r.exited
}

func (r *LinuxRunner) OnLoad(m *Machine, info LoadResult) error {
	r.brk = info.Brk
	_, err := m.HookAdd(uc.HOOK_INTR, func(mu uc.Unicorn, intno uint32) {
		r.handleSyscall(m)
	}, 1, 0)
	if err != nil {
		return fmt.Errorf("install syscall hook: %w", err)
	}
	return nil
}

func (r *LinuxRunner) handleSyscall(m *Machine) {
	nr, err := m.RegRead(uc.MIPS_REG_V0)
	if err != nil {
		log.Error(log.OsMonitoring, "read syscall number", "err", err)
		return
	}
	a0, _ := m.RegRead(uc.MIPS_REG_A0)
	a1, _ := m.RegRead(uc.MIPS_REG_A1)
	a2, _ := m.RegRead(uc.MIPS_REG_A2)

	switch nr {
	case sysExit, sysExitGroup:
		r.exitStatus = a0
		r.exited = true
		log.Info(log.OsMonitoring, "guest exit", "status", a0)
		m.Stop()

	case sysWrite:
		var w io.Writer
		switch a0 {
		case 1:
			w = r.Stdout
		case 2:
			w = r.Stderr
		}
		if w == nil {
			r.ret(m, 0, errnoBadf)
			return
		}
		data, err := m.MemRead(a1, a2)
		if err != nil {
			r.ret(m, 0, errnoFault)
			return
		}
		n, _ := w.Write(data)
		r.ret(m, uint64(n), 0)

	case sysBrk:
		if a0 != 0 {
			r.brk = a0
		}
		r.ret(m, r.brk, 0)

	default:
		log.Debug(log.OsMonitoring, "unimplemented syscall", "nr", nr)
		r.ret(m, 0, 0)
	}
}

const (
	errnoBadf  = 9
	errnoFault = 14
)

// ret applies the o32 return convention: result in v0, error flag in a3.
func (r *LinuxRunner) ret(m *Machine, v0, errno uint64) {
	if errno != 0 {
		m.RegWrite(uc.MIPS_REG_V0, errno)
		m.RegWrite(uc.MIPS_REG_A3, 1)
		return
	}
	m.RegWrite(uc.MIPS_REG_V0, v0)
	m.RegWrite(uc.MIPS_REG_A3, 0)
}
