package arch

import (
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

// MIPS32 is the big-endian MIPS32 (o32) architecture definition.
type MIPS32 struct{}

// mips32Registers lists the o32 general purpose registers followed by HI, LO
// and PC. The ID column is the o32 register number; HI/LO/PC extend it past
// the 32 GPRs. This order is the snapshot and commitment order.
var mips32Registers = []Register{
	{"zero", 0, uc.MIPS_REG_ZERO},
	{"at", 1, uc.MIPS_REG_AT},
	{"v0", 2, uc.MIPS_REG_V0},
	{"v1", 3, uc.MIPS_REG_V1},
	{"a0", 4, uc.MIPS_REG_A0},
	{"a1", 5, uc.MIPS_REG_A1},
	{"a2", 6, uc.MIPS_REG_A2},
	{"a3", 7, uc.MIPS_REG_A3},
	{"t0", 8, uc.MIPS_REG_T0},
	{"t1", 9, uc.MIPS_REG_T1},
	{"t2", 10, uc.MIPS_REG_T2},
	{"t3", 11, uc.MIPS_REG_T3},
	{"t4", 12, uc.MIPS_REG_T4},
	{"t5", 13, uc.MIPS_REG_T5},
	{"t6", 14, uc.MIPS_REG_T6},
	{"t7", 15, uc.MIPS_REG_T7},
	{"s0", 16, uc.MIPS_REG_S0},
	{"s1", 17, uc.MIPS_REG_S1},
	{"s2", 18, uc.MIPS_REG_S2},
	{"s3", 19, uc.MIPS_REG_S3},
	{"s4", 20, uc.MIPS_REG_S4},
	{"s5", 21, uc.MIPS_REG_S5},
	{"s6", 22, uc.MIPS_REG_S6},
	{"s7", 23, uc.MIPS_REG_S7},
	{"t8", 24, uc.MIPS_REG_T8},
	{"t9", 25, uc.MIPS_REG_T9},
	{"k0", 26, uc.MIPS_REG_K0},
	{"k1", 27, uc.MIPS_REG_K1},
	{"gp", 28, uc.MIPS_REG_GP},
	{"sp", 29, uc.MIPS_REG_SP},
	{"fp", 30, uc.MIPS_REG_FP},
	{"ra", 31, uc.MIPS_REG_RA},
	{"hi", 32, uc.MIPS_REG_HI},
	{"lo", 33, uc.MIPS_REG_LO},
	{"pc", 34, uc.MIPS_REG_PC},
}

func (MIPS32) Name() string {
	return "mips32"
}

func (MIPS32) PointerSize() uint8 {
	return 4
}

func (MIPS32) UnicornArch() int {
	return uc.ARCH_MIPS
}

func (MIPS32) UnicornMode() int {
	return uc.MODE_MIPS32 | uc.MODE_BIG_ENDIAN
}

func (MIPS32) PCReg() int {
	return uc.MIPS_REG_PC
}

func (MIPS32) SPReg() int {
	return uc.MIPS_REG_SP
}

func (MIPS32) Registers() []Register {
	return mips32Registers
}
