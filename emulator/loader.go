package emulator

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/steptrace/steptrace/log"
)

// LoadResult describes the process image the loader built.
type LoadResult struct {
	Entrypoint uint64 `json:"entrypoint"`
	// StackTop is the initial stack pointer, below the argument vectors.
	StackTop uint64 `json:"stack_top"`
	// Brk is the first address past the highest mapped load segment, where a
	// runner may place the heap.
	Brk uint64 `json:"brk"`
}

// LoadELF maps a static executable into the machine and builds the initial
// stack with the argc/argv/envp vectors. All content goes through
// Machine.MemWrite so the mirror observes the image from the start.
func LoadELF(conf OSConfig, m *Machine, image []byte, argv []string, env map[string]string) (LoadResult, error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: %v", ErrEBadImage, err)
	}
	defer f.Close()

	if err := checkImage(f, m); err != nil {
		return LoadResult{}, err
	}

	var loads []*elf.Prog
	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD && p.Memsz > 0 {
			loads = append(loads, p)
		}
	}
	if len(loads) == 0 {
		return LoadResult{}, ErrENoLoadSegments
	}
	sort.Slice(loads, func(i, j int) bool { return loads[i].Vaddr < loads[j].Vaddr })

	lo := loads[0].Vaddr &^ (pageSize - 1)
	hi := uint64(0)
	for _, p := range loads {
		if end := p.Vaddr + p.Memsz; end > hi {
			hi = end
		}
	}
	hi = (hi + pageSize - 1) &^ (pageSize - 1)

	if conf.StackAddress%pageSize != 0 || conf.StackSize%pageSize != 0 {
		return LoadResult{}, ErrEStackUnaligned
	}
	if lo < conf.StackAddress+conf.StackSize && conf.StackAddress < hi {
		return LoadResult{}, ErrEStackRegion
	}

	if err := m.MemMap(lo, hi-lo); err != nil {
		return LoadResult{}, fmt.Errorf("map image %#x+%#x: %w", lo, hi-lo, err)
	}
	for _, p := range loads {
		if p.Filesz == 0 {
			continue
		}
		data, err := io.ReadAll(io.LimitReader(p.Open(), int64(p.Filesz)))
		if err != nil {
			return LoadResult{}, fmt.Errorf("read segment at %#x: %w", p.Vaddr, err)
		}
		if err := m.MemWrite(p.Vaddr, data); err != nil {
			return LoadResult{}, fmt.Errorf("write segment at %#x: %w", p.Vaddr, err)
		}
		log.Debug(log.LoaderMonitoring, "mapped segment", "vaddr", fmt.Sprintf("%#x", p.Vaddr), "filesz", p.Filesz, "memsz", p.Memsz)
	}

	if err := m.MemMap(conf.StackAddress, conf.StackSize); err != nil {
		return LoadResult{}, fmt.Errorf("map stack %#x+%#x: %w", conf.StackAddress, conf.StackSize, err)
	}

	sp, err := buildStack(conf, m, argv, env)
	if err != nil {
		return LoadResult{}, err
	}
	if err := m.RegWrite(m.arch.SPReg(), sp); err != nil {
		return LoadResult{}, fmt.Errorf("set stack pointer: %w", err)
	}

	info := LoadResult{
		Entrypoint: f.Entry,
		StackTop:   sp,
		Brk:        hi,
	}
	log.Info(log.LoaderMonitoring, "image loaded", "entry", fmt.Sprintf("%#x", info.Entrypoint), "sp", fmt.Sprintf("%#x", info.StackTop), "brk", fmt.Sprintf("%#x", info.Brk))
	return info, nil
}

func checkImage(f *elf.File, m *Machine) error {
	wantClass := elf.ELFCLASS32
	if m.PointerSize() == 8 {
		wantClass = elf.ELFCLASS64
	}
	if f.Class != wantClass {
		return fmt.Errorf("%w: class %v", ErrEBadImage, f.Class)
	}
	if f.Type != elf.ET_EXEC {
		return fmt.Errorf("%w: type %v, only static executables are supported", ErrEBadImage, f.Type)
	}
	return nil
}

// buildStack lays the argument and environment vectors out on the stack and
// returns the initial stack pointer: strings at the top, then the aligned
// argc/argv/envp table below them.
func buildStack(conf OSConfig, m *Machine, argv []string, env map[string]string) (uint64, error) {
	ptrSize := uint64(m.PointerSize())
	sp := conf.StackAddress + conf.StackSize

	envKeys := make([]string, 0, len(env))
	for k := range env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)

	pushString := func(s string) (uint64, error) {
		data := append([]byte(s), 0)
		sp -= uint64(len(data))
		if err := m.MemWrite(sp, data); err != nil {
			return 0, fmt.Errorf("write stack string: %w", err)
		}
		return sp, nil
	}

	envPtrs := make([]uint64, 0, len(envKeys))
	for _, k := range envKeys {
		p, err := pushString(k + "=" + env[k])
		if err != nil {
			return 0, err
		}
		envPtrs = append(envPtrs, p)
	}
	argvPtrs := make([]uint64, 0, len(argv))
	for _, a := range argv {
		p, err := pushString(a)
		if err != nil {
			return 0, err
		}
		argvPtrs = append(argvPtrs, p)
	}

	// argc, argv..., NULL, envp..., NULL
	table := make([]uint64, 0, len(argvPtrs)+len(envPtrs)+3)
	table = append(table, uint64(len(argv)))
	table = append(table, argvPtrs...)
	table = append(table, 0)
	table = append(table, envPtrs...)
	table = append(table, 0)

	sp -= uint64(len(table)) * ptrSize
	sp &^= 7

	buf := make([]byte, uint64(len(table))*ptrSize)
	for i, v := range table {
		putPointer(buf[uint64(i)*ptrSize:], ptrSize, v)
	}
	if err := m.MemWrite(sp, buf); err != nil {
		return 0, fmt.Errorf("write stack table: %w", err)
	}
	return sp, nil
}

// putPointer writes a big-endian pointer of the architecture's width.
func putPointer(dst []byte, ptrSize, v uint64) {
	switch ptrSize {
	case 2:
		binary.BigEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(dst, uint32(v))
	default:
		binary.BigEndian.PutUint64(dst, v)
	}
}
