package emulator

import (
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/steptrace/steptrace/arch"
)

const (
	pageSize = uint64(0x1000)

	// hookSpanEnd bounds the permanent and transient memory hooks to the
	// 32-bit address space the traced images live in.
	hookSpanEnd = uint64(0xffffffff)
)

// Machine wraps one unicorn engine instance together with the shadow memory
// mirror and the retired-instruction counter that belong to it. Steps are
// scoped per Machine, never process wide, so independent machines can trace
// in parallel within one process.
type Machine struct {
	uc.Unicorn
	arch   arch.Arch
	mirror *Mirror
	steps  uint64
}

// NewMachine creates the engine for the given architecture. verifyMemory
// controls the mirror's per-event consistency assertions.
func NewMachine(a arch.Arch, verifyMemory bool) (*Machine, error) {
	switch a.PointerSize() {
	case 2, 4, 8:
	default:
		return nil, ErrEBadPointerSize
	}
	mu, err := uc.NewUnicorn(a.UnicornArch(), a.UnicornMode())
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}
	return &Machine{
		Unicorn: mu,
		arch:    a,
		mirror:  NewMirror(verifyMemory),
	}, nil
}

func (m *Machine) Arch() arch.Arch {
	return m.arch
}

func (m *Machine) PointerSize() uint8 {
	return m.arch.PointerSize()
}

// PC reads the current program counter.
func (m *Machine) PC() (uint64, error) {
	return m.RegRead(m.arch.PCReg())
}

// Steps returns the number of instructions retired by this machine.
func (m *Machine) Steps() uint64 {
	return m.steps
}

// MemWrite places bytes into engine memory and into the mirror. All
// non-emulated writes (loader, runner) must go through here, or the mirror's
// consistency assertions will trip on the first instruction touching the
// region.
func (m *Machine) MemWrite(addr uint64, data []byte) error {
	if err := m.Unicorn.MemWrite(addr, data); err != nil {
		return err
	}
	m.mirror.Write(addr, data)
	return nil
}

// MapRegion page-aligns and maps [addr, addr+size) read/write/execute.
func (m *Machine) MapRegion(addr, size uint64) error {
	base := addr &^ (pageSize - 1)
	end := (addr + size + pageSize - 1) &^ (pageSize - 1)
	if err := m.MemMap(base, end-base); err != nil {
		return fmt.Errorf("map region %#x+%#x: %w", base, end-base, err)
	}
	return nil
}

// SaveRegisters captures the architecture's register file in its stable
// enumeration order. Pure read.
func (m *Machine) SaveRegisters() (RegisterState, error) {
	defs := m.arch.Registers()
	state := make(RegisterState, 0, len(defs))
	for _, def := range defs {
		val, err := m.RegRead(def.Uc)
		if err != nil {
			return nil, fmt.Errorf("read register %s: %w", def.Name, err)
		}
		state = append(state, RegisterValue{Reg: def.ID, Value: val})
	}
	return state, nil
}

// Close releases the engine.
func (m *Machine) Close() error {
	if m.Unicorn != nil {
		return m.Unicorn.Close()
	}
	return nil
}
