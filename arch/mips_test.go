package arch

import (
	"testing"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/stretchr/testify/require"
)

func TestMIPS32Definition(t *testing.T) {
	m := MIPS32{}
	require.Equal(t, "mips32", m.Name())
	require.Equal(t, uint8(4), m.PointerSize())
	require.Equal(t, uc.ARCH_MIPS, m.UnicornArch())
	require.Equal(t, uc.MODE_MIPS32|uc.MODE_BIG_ENDIAN, m.UnicornMode())
	require.Equal(t, uc.MIPS_REG_PC, m.PCReg())
	require.Equal(t, uc.MIPS_REG_SP, m.SPReg())
}

func TestMIPS32Registers(t *testing.T) {
	regs := MIPS32{}.Registers()
	require.Len(t, regs, 35, "32 GPRs plus hi, lo and pc")

	// Stable identifiers must be unique; they key the commitment.
	seen := make(map[RegisterID]string)
	for _, r := range regs {
		prev, dup := seen[r.ID]
		require.False(t, dup, "id %d used by both %s and %s", r.ID, prev, r.Name)
		seen[r.ID] = r.Name
	}

	// The o32 numbering is positional for the GPRs.
	for i := 0; i < 32; i++ {
		require.Equal(t, RegisterID(i), regs[i].ID, "gpr %s", regs[i].Name)
	}
	require.Equal(t, "zero", regs[0].Name)
	require.Equal(t, "sp", regs[29].Name)
	require.Equal(t, uc.MIPS_REG_SP, regs[29].Uc)
	require.Equal(t, "pc", regs[34].Name)
}
