// Package startup performs the six-step boot sequence: program the
// timer, enable interrupts, reinitialize every task, assert the
// priority invariant, program the supervisor's PMP regions, and hand
// off to the first task -- the simulated equivalent of a real board's
// reset handler falling through into the kernel's main loop.
package startup

import (
	"github.com/oxidecomputer/hubriskern/pkg/appdesc"
	"github.com/oxidecomputer/hubriskern/pkg/irq"
	"github.com/oxidecomputer/hubriskern/pkg/kernel"
	"github.com/oxidecomputer/hubriskern/pkg/pmp"
	"github.com/oxidecomputer/hubriskern/pkg/timer"
	"github.com/oxidecomputer/hubriskern/pkg/trapentry"
)

// DefaultMemSize is the simulated physical memory arena size used when a
// caller doesn't have a board-specific figure; generous enough for the
// fixture applications this rework's tests and demo harness build.
const DefaultMemSize = 1 << 20

// Boot performs startup and returns a fully wired Machine ready to
// Dispatch traps, with the highest-priority Runnable task already
// selected as current.
func Boot(desc *appdesc.Descriptor) *trapentry.Machine {
	return BootWithMemSize(desc, DefaultMemSize)
}

// BootWithMemSize is Boot with an explicit memory arena size, used by
// tests that want a small, easy-to-reason-about address space.
func BootWithMemSize(desc *appdesc.Descriptor, memSize int) *trapentry.Machine {
	// Step 1: program the machine timer.
	td := &timer.Driver{}
	td.Start(0, desc.TickDivisor)

	// Step 2: interrupts enabled is implicit here -- every routed line
	// starts unmasked (irq.Build's zero value), matching mstatus.MIE=1
	// plus every mie bit this kernel cares about set at reset.
	router := irq.Build(desc)

	// Steps 3-4: build and reinitialize the task table, asserting the
	// priority invariant (kernel.New does both, panicking on violation).
	ts := kernel.New(desc, memSize)

	// Step 5: program PMP for the supervisor task explicitly, even though
	// kernel.New already populated every task's Regions field, because
	// the supervisor's regions are the ones live in the PMP CSRs the
	// instant boot hands off (every other task's regions are programmed
	// lazily on its first dispatch in a real kernel; here pmp.Program is
	// total and cheap enough to call unconditionally).
	pmp.Program(ts.Tasks[appdesc.SupervisorIndex].Regions)

	m := &trapentry.Machine{Tasks: ts, Timer: td, Irqs: router}

	// Step 6: hand off to the first runnable task.
	first := ts.Select(appdesc.SupervisorIndex)
	if first < 0 {
		panic("startup: no runnable task at boot (every application must supply a start_at_boot task)")
	}
	m.Current.Set(first)
	return m
}
