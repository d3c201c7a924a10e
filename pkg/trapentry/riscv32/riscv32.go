// Package riscv32 is the architecture-specific boundary of the trap
// entry layer, isolated to a single module per architecture. On real
// hardware this is where the naked-function trap stub, the CSR
// twiddling, and the register save/restore sequence would live as
// inline assembly; here it is the fixed-size, slice-free data this
// hosted kernel's simulated trap path is built around, so a future port
// to an actual riscv32 target only has to replace this package.
package riscv32

import "github.com/oxidecomputer/hubriskern/pkg/kernel"

// RegisterFile is a plain array copy of kernel.SavedState's 32 words, the
// same shape the trap stub would push to/pop from the kernel stack with
// a fixed sequence of sw/lw instructions (original_source/sys/kern/src/arch/riscv32/trap.rs).
// Keeping this as a [32]uint32 rather than a struct mirrors the stub's
// view of the save area as an untyped block of words.
type RegisterFile [32]uint32

// Save copies t's saved registers into a RegisterFile, as the trap stub
// would read them back out of the task's save area after a context
// switch decision.
func Save(t *kernel.SavedState) RegisterFile {
	return RegisterFile{
		t.RA, t.SP, t.GP, t.TP, t.T0, t.T1, t.T2, t.S0, t.S1,
		t.A0, t.A1, t.A2, t.A3, t.A4, t.A5, t.A6, t.A7,
		t.S2, t.S3, t.S4, t.S5, t.S6, t.S7, t.S8, t.S9, t.S10, t.S11,
		t.T3, t.T4, t.T5, t.T6, t.PC,
	}
}

// Restore writes a RegisterFile back into t, the inverse of Save.
func Restore(t *kernel.SavedState, r RegisterFile) {
	t.RA, t.SP, t.GP, t.TP = r[0], r[1], r[2], r[3]
	t.T0, t.T1, t.T2, t.S0, t.S1 = r[4], r[5], r[6], r[7], r[8]
	t.A0, t.A1, t.A2, t.A3, t.A4, t.A5, t.A6, t.A7 = r[9], r[10], r[11], r[12], r[13], r[14], r[15], r[16]
	t.S2, t.S3, t.S4, t.S5, t.S6, t.S7, t.S8, t.S9, t.S10, t.S11 = r[17], r[18], r[19], r[20], r[21], r[22], r[23], r[24], r[25], r[26]
	t.T3, t.T4, t.T5, t.T6, t.PC = r[27], r[28], r[29], r[30], r[31]
}

// TrapMode selects between the two mtvec layouts the original supports
// (original_source/.../trap.rs): a single 4-byte-aligned direct stub
// everything traps into, or a 256-entry vectored trampoline for
// platforms that want per-cause dispatch in hardware.
type TrapMode uint8

const (
	TrapModeDirect TrapMode = iota
	TrapModeVectored
)

// DirectAlignment and VectoredAlignment are the mtvec.BASE alignment
// requirements for each mode (direct needs 4-byte alignment; vectored
// needs the table itself 0x100-aligned per the RISC-V privileged spec's
// vectored mode encoding).
const (
	DirectAlignment   = 4
	VectoredAlignment = 0x100
)

// VectorTable returns a 256-entry table of trampoline targets for
// vectored mode, every entry pointing at handler except interrupt cause
// 7 (machine timer) and 11 (machine external), which point at
// timerHandler/externalHandler respectively -- mirroring the original's
// `.rept 256 / j _start_trap` with the two causes this kernel actually
// uses given dedicated slots.
func VectorTable(handler, timerHandler, externalHandler uintptr) [256]uintptr {
	var table [256]uintptr
	for i := range table {
		table[i] = handler
	}
	const causeMachineTimer = 7
	const causeMachineExternal = 11
	table[causeMachineTimer] = timerHandler
	table[causeMachineExternal] = externalHandler
	return table
}

// Aligned reports whether addr satisfies mode's mtvec.BASE alignment
// requirement.
func (mode TrapMode) Aligned(addr uint32) bool {
	switch mode {
	case TrapModeVectored:
		return addr&(VectoredAlignment-1) == 0
	default:
		return addr&(DirectAlignment-1) == 0
	}
}
