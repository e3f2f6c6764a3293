// Package arch describes the guest architectures the emulator can drive:
// how wide a pointer is, how to instantiate the unicorn engine for the
// architecture, and which registers make up the committed register file.
package arch

// RegisterID is a stable, architecture-defined register identifier. It is
// part of the state commitment encoding, so it must never depend on unicorn
// constant values, which are an engine implementation detail.
type RegisterID uint32

// Register pairs a stable identifier with the unicorn register constant used
// to read it from the engine.
type Register struct {
	Name string
	ID   RegisterID
	Uc   int
}

// Arch is the architecture definition consumed by the emulator.
type Arch interface {
	Name() string

	// PointerSize returns the pointer width in bytes (2, 4 or 8).
	PointerSize() uint8

	// UnicornArch and UnicornMode select the engine instantiation.
	UnicornArch() int
	UnicornMode() int

	// PCReg returns the unicorn constant of the program counter.
	PCReg() int

	// SPReg returns the unicorn constant of the stack pointer.
	SPReg() int

	// Registers enumerates the committed register file in stable order.
	Registers() []Register
}
