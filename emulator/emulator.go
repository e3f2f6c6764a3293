// Package emulator drives a unicorn engine instance to produce
// cryptographically committed, replayable execution traces: full machine
// snapshots before and after a single instruction, the ordered memory
// operations that instruction performed, and a Merkle-Patricia root binding
// the whole memory image and register file.
package emulator

import (
	"encoding/binary"
	"fmt"
	"math"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/steptrace/steptrace/arch"
	"github.com/steptrace/steptrace/log"
)

// Emulator is the execution controller. It owns one machine (engine, mirror,
// step counter) exclusively; the permanent hooks are installed once at
// construction and live for the machine's lifetime.
type Emulator struct {
	config Config
	core   *Machine
	os     Runner
	loaded bool
}

// New creates a machine for the architecture and installs the permanent
// hooks: the shadow-memory mirroring hook (every write and resolved read)
// and the instruction-boundary step counter.
func New(conf Config, a arch.Arch, runner Runner) (*Emulator, error) {
	machine, err := NewMachine(a, conf.Emulator.VerifyMemory)
	if err != nil {
		return nil, err
	}

	_, err = machine.HookAdd(uc.HOOK_MEM_WRITE|uc.HOOK_MEM_READ_AFTER,
		func(mu uc.Unicorn, access int, addr uint64, size int, value int64) {
			log.Trace(log.MirrorMonitoring, "mem event", "access", access, "addr", fmt.Sprintf("%#x", addr), "size", size, "value", value)
			switch access {
			case uc.MEM_WRITE:
				// The hook fires before the engine applies the write, so the
				// live content is the pre-write state to check the mirror
				// against.
				live, err := mu.MemRead(addr, uint64(size))
				if err != nil {
					panic(fmt.Sprintf("mirror hook: engine read at %#x (size %d): %v", addr, size, err))
				}
				machine.mirror.ObserveWrite(live, addr, size, value)
			case uc.MEM_READ_AFTER:
				machine.mirror.ObserveRead(addr, size, value)
			}
		}, 0, hookSpanEnd)
	if err != nil {
		machine.Close()
		return nil, fmt.Errorf("install mirror hook: %w", err)
	}

	_, err = machine.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		machine.steps++
		log.Trace(log.TraceMonitoring, "step", "steps", machine.steps, "addr", fmt.Sprintf("%#x", addr), "size", size)
	}, 1, 0)
	if err != nil {
		machine.Close()
		return nil, fmt.Errorf("install step hook: %w", err)
	}

	return &Emulator{
		config: conf,
		core:   machine,
		os:     runner,
	}, nil
}

// Engine exposes the underlying machine.
func (e *Emulator) Engine() *Machine {
	return e.core
}

// Runner exposes the attached OS runner.
func (e *Emulator) Runner() Runner {
	return e.os
}

// Load maps the binary image and hands the result to the runner. Must be
// called once before Run or RunUntil.
func (e *Emulator) Load(image []byte, argv []string, env map[string]string) (LoadResult, error) {
	info, err := LoadELF(e.config.OS, e.core, image, argv, env)
	if err != nil {
		return LoadResult{}, err
	}
	if err := e.os.OnLoad(e.core, info); err != nil {
		return LoadResult{}, fmt.Errorf("runner on-load: %w", err)
	}
	e.loaded = true
	return info, nil
}

// Run executes from entrypoint until the exitpoint, the timeout (in
// microseconds) or the instruction count cap, whichever comes first; zero
// disables each bound and the exitpoint defaults by pointer width. Reaching
// the exitpoint is normal termination. Returns the machine's total retired
// step count.
func (e *Emulator) Run(entrypoint, exitpoint, timeout, count uint64) (uint64, error) {
	if !e.loaded {
		return 0, ErrENotLoaded
	}
	if exitpoint == 0 {
		exitpoint = DefaultExitpoint(e.core.PointerSize())
	}
	log.Info(log.EmulatorMonitoring, "run", "entry", fmt.Sprintf("%#x", entrypoint), "exit", fmt.Sprintf("%#x", exitpoint), "timeout", timeout, "count", count)
	if err := e.core.StartWithOptions(entrypoint, exitpoint, &uc.UcOptions{Timeout: timeout, Count: count}); err != nil {
		return 0, fmt.Errorf("emulation: %w", err)
	}
	return e.core.Steps(), nil
}

// RunUntil runs count instructions untraced from entrypoint, snapshots, then
// executes exactly one further instruction with the access logger attached
// and snapshots again. count == 0 places the pc at the entrypoint and
// snapshots immediately with no prior execution. The returned StateChange
// carries step = count+1.
func (e *Emulator) RunUntil(entrypoint, exitpoint, timeout uint64, count uint64) (*StateChange, error) {
	if !e.loaded {
		return nil, ErrENotLoaded
	}
	if exitpoint == 0 {
		exitpoint = DefaultExitpoint(e.core.PointerSize())
	}

	if count > 0 {
		if err := e.core.StartWithOptions(entrypoint, exitpoint, &uc.UcOptions{Timeout: timeout, Count: count}); err != nil {
			return nil, fmt.Errorf("emulation: %w", err)
		}
	} else {
		// No untraced prefix: position the machine at the entrypoint so the
		// traced instruction and the before snapshot agree on the pc.
		if err := e.core.RegWrite(e.core.arch.PCReg(), entrypoint); err != nil {
			return nil, fmt.Errorf("set pc: %w", err)
		}
	}
	stateBefore, err := e.Save()
	if err != nil {
		return nil, err
	}

	pc, err := e.core.PC()
	if err != nil {
		return nil, fmt.Errorf("read pc: %w", err)
	}

	// The engine does not report the instruction fetch through the data
	// access events, so the log is seeded with a synthetic fetch entry for
	// the word at the current pc.
	word, err := e.core.MemRead(pc, 4)
	if err != nil {
		return nil, fmt.Errorf("read instruction word at %#x: %w", pc, err)
	}
	recorder := &accessLog{
		entries: []MemAccess{{
			Write: false,
			Addr:  pc,
			Size:  4,
			Value: int64(binary.BigEndian.Uint32(word)),
		}},
	}

	hook, err := e.core.HookAdd(uc.HOOK_MEM_WRITE|uc.HOOK_MEM_READ_AFTER|uc.HOOK_MEM_FETCH,
		recorder.observe, 0, hookSpanEnd)
	if err != nil {
		return nil, fmt.Errorf("install access hook: %w", err)
	}
	// The transient hook must come off on every exit path; leaking it would
	// corrupt the access log of the next traced call.
	removed := false
	defer func() {
		if !removed {
			e.core.HookDel(hook)
		}
	}()

	if err := e.core.StartWithOptions(pc, exitpoint, &uc.UcOptions{Timeout: timeout, Count: 1}); err != nil {
		return nil, fmt.Errorf("emulation: %w", err)
	}

	removed = true
	if err := e.core.HookDel(hook); err != nil {
		return nil, fmt.Errorf("remove access hook: %w", err)
	}

	stateAfter, err := e.Save()
	if err != nil {
		return nil, err
	}
	log.Debug(log.TraceMonitoring, "traced step", "step", count+1, "pc", fmt.Sprintf("%#x", pc), "accesses", len(recorder.entries))
	return &StateChange{
		StateBefore: stateBefore,
		StateAfter:  stateAfter,
		Step:        count + 1,
		Access:      recorder.entries,
	}, nil
}

// Save captures the current machine state: register file, an independent
// copy of the mirror's sparse image, and the step count. Pure read.
func (e *Emulator) Save() (*EmulatorState, error) {
	regs, err := e.core.SaveRegisters()
	if err != nil {
		return nil, err
	}
	return &EmulatorState{
		Regs:     regs,
		Memories: e.core.mirror.Snapshot(),
		Steps:    e.core.Steps(),
	}, nil
}

// accessLog is the transient recorder for one traced instruction. It is
// passed to the hook as an explicit context object and must not outlive the
// hook's removal.
type accessLog struct {
	entries []MemAccess
}

func (l *accessLog) observe(mu uc.Unicorn, access int, addr uint64, size int, value int64) {
	switch access {
	case uc.MEM_WRITE:
		l.entries = append(l.entries, MemAccess{Write: true, Addr: addr, Size: size, Value: value})
	case uc.MEM_READ_AFTER, uc.MEM_READ, uc.MEM_FETCH:
		l.entries = append(l.entries, MemAccess{Write: false, Addr: addr, Size: size, Value: value})
	}
}

// DefaultExitpoint returns the address at or beyond which execution counts
// as normal termination, by pointer width: the top of the 20-bit lane for
// 2-byte pointers, just under the 2^31 line for 4-byte, max u64 for 8-byte.
func DefaultExitpoint(pointerSize uint8) uint64 {
	switch pointerSize {
	case 2:
		return 0xfffff
	case 4:
		return 0x8fffffff
	case 8:
		return math.MaxUint64
	default:
		// NewMachine validated the pointer size already.
		panic(fmt.Sprintf("unsupported pointer size %d", pointerSize))
	}
}
