package kernel

// SavedState holds the RISC-V general-purpose registers plus the program
// counter, laid out contiguously in exactly the order the Hubris riscv32
// trap stub stores them (original_source/sys/kern/src/arch/riscv32/saved_state.rs
// and .../trap.rs): ra, sp, gp, tp, t0-t2, s0-s1, a0-a7, s2-s11, t3-t6, pc.
//
// This must be the first field of Task so that a real trap entry stub
// (pkg/trapentry/riscv32) can address each register by a small immediate
// offset from the task base pointer, without any indirection through Go's
// field-offset machinery. The field order below IS that offset table.
type SavedState struct {
	RA uint32 // offset 0
	SP uint32 // offset 1
	GP uint32 // offset 2
	TP uint32 // offset 3
	T0 uint32 // offset 4
	T1 uint32 // offset 5
	T2 uint32 // offset 6
	S0 uint32 // offset 7
	S1 uint32 // offset 8
	A0 uint32 // offset 9
	A1 uint32 // offset 10
	A2 uint32 // offset 11
	A3 uint32 // offset 12
	A4 uint32 // offset 13
	A5 uint32 // offset 14
	A6 uint32 // offset 15
	A7 uint32 // offset 16
	S2 uint32 // offset 17
	S3 uint32 // offset 18
	S4 uint32 // offset 19
	S5 uint32 // offset 20
	S6 uint32 // offset 21
	S7 uint32 // offset 22
	S8 uint32 // offset 23
	S9 uint32 // offset 24
	S10 uint32 // offset 25
	S11 uint32 // offset 26
	T3 uint32 // offset 27
	T4 uint32 // offset 28
	T5 uint32 // offset 29
	T6 uint32 // offset 30
	PC uint32 // offset 31, stored/restored from mepc
}

// StackPointer returns the saved SP, the architecture-independent view
// used by the scheduler's alignment invariant check.
func (s *SavedState) StackPointer() uint32 { return s.SP }

// Syscall descriptor and argument accessors, mapping to the A7/A0-A6
// register convention.
func (s *SavedState) SyscallDescriptor() uint32 { return s.A7 }
func (s *SavedState) Arg0() uint32              { return s.A0 }
func (s *SavedState) Arg1() uint32              { return s.A1 }
func (s *SavedState) Arg2() uint32              { return s.A2 }
func (s *SavedState) Arg3() uint32              { return s.A3 }
func (s *SavedState) Arg4() uint32              { return s.A4 }
func (s *SavedState) Arg5() uint32              { return s.A5 }
func (s *SavedState) Arg6() uint32              { return s.A6 }

// Return-register setters, A0-A5.
func (s *SavedState) SetRet0(v uint32) { s.A0 = v }
func (s *SavedState) SetRet1(v uint32) { s.A1 = v }
func (s *SavedState) SetRet2(v uint32) { s.A2 = v }
func (s *SavedState) SetRet3(v uint32) { s.A3 = v }
func (s *SavedState) SetRet4(v uint32) { s.A4 = v }
func (s *SavedState) SetRet5(v uint32) { s.A5 = v }
