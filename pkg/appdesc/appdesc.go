// Package appdesc defines the static Application Descriptor: the
// read-only task, region, and interrupt-routing tables that describe a
// board's image. Building these tables for a real board is the job of
// an offline pack/build tool that lives outside this module; this
// package is only the interface that tool's output must satisfy. Tests
// and pkg/fixture (used by the demo harness in cmd/hubriskernel) fill in
// Descriptor literals directly to stand in for the tool's output.
//
// The shape here is a plain configuration struct handed to the
// task-table constructor, similar to how gVisor's
// pkg/sentry/kernel/task_start.go hands a TaskConfig to the task
// constructor, except every field here is fixed at image-build time
// rather than per-spawn, since this kernel never spawns tasks
// dynamically.
package appdesc

import (
	"fmt"

	"github.com/oxidecomputer/hubriskern/pkg/abi"
	"github.com/oxidecomputer/hubriskern/pkg/pmp"
)

// Flags control a task's boot-time behavior.
type Flags uint8

const (
	// StartAtBoot marks a task Runnable at boot/restart; without it the
	// task starts Stopped until something else makes it runnable.
	StartAtBoot Flags = 1 << iota
)

// TaskDesc is one entry in the ordered task descriptor array: everything
// needed to (re)initialize a task's control block.
type TaskDesc struct {
	Name          string
	EntryPoint    uint32
	InitialStack  uint32
	Priority      uint8
	Flags         Flags
	RegionIndices [pmp.MaxRegions]int // indices into Descriptor.Regions
}

// IrqRoute maps one hardware interrupt line to the task and notification
// bits it should post to.
type IrqRoute struct {
	IRQ             uint32
	TaskIndex       int
	NotificationBit uint32
}

// Descriptor is the complete, read-only application image: the ordered
// task table, the shared region table, the interrupt routing table (and
// its reverse), and the platform timer configuration.
type Descriptor struct {
	Tasks   []TaskDesc
	Regions []pmp.Region

	Irqs []IrqRoute

	// MtimeAddr/MtimecmpAddr record the platform's timer register
	// addresses; the simulator doesn't dereference them (pkg/timer models
	// the registers directly) but they round-trip through here since a
	// real board's startup code needs them.
	MtimeAddr    uint32
	MtimecmpAddr uint32
	TickDivisor  uint32
}

// SupervisorIndex is the fixed task-table index of the supervisor, which
// must have priority 0.
const SupervisorIndex = 0

// RegionSet resolves a task's region indices into the region structs the
// PMP driver and IPC transfer path operate on.
func (d *Descriptor) RegionSet(taskIndex int) [pmp.MaxRegions]pmp.Region {
	var out [pmp.MaxRegions]pmp.Region
	td := d.Tasks[taskIndex]
	for i, ri := range td.RegionIndices {
		if ri < 0 || ri >= len(d.Regions) {
			out[i] = pmp.Region{Base: 0, Size: 0x20}
			continue
		}
		out[i] = d.Regions[ri]
	}
	return out
}

// ReverseIrqs builds the (task, bits) -> []irq table used by
// sys_irq_control to find which physical lines to mask/unmask for a
// given notification mask.
func (d *Descriptor) ReverseIrqs(taskIndex int, mask uint32) []uint32 {
	var irqs []uint32
	for _, route := range d.Irqs {
		if route.TaskIndex == taskIndex && route.NotificationBit&mask != 0 {
			irqs = append(irqs, route.IRQ)
		}
	}
	return irqs
}

// RouteFor finds the routing entry for irq, or ok=false if no task owns
// this line. An offline build tool would build this as a perfect hash at
// image build time; here a linear scan over the small,
// fixed-at-construction slice has the same observable behavior. The
// interrupt dispatch path does not call it: irq.Build wraps d.Irqs into a
// pkg/phf.Table instead.
func (d *Descriptor) RouteFor(irq uint32) (IrqRoute, bool) {
	for _, route := range d.Irqs {
		if route.IRQ == irq {
			return route, true
		}
	}
	return IrqRoute{}, false
}

// AssertPriorityInvariant checks the boot-time invariant: the
// supervisor has priority 0; every other task has priority >= 1; exactly
// one task named "idle" exists at the lowest priority. It panics on
// violation, since this is a static property of
// the image that should never be wrong at runtime -- if it is, the image
// itself is corrupt or was built incorrectly.
func (d *Descriptor) AssertPriorityInvariant() {
	if len(d.Tasks) == 0 {
		panic("appdesc: application descriptor has no tasks")
	}
	if d.Tasks[SupervisorIndex].Priority != 0 {
		panic("appdesc: supervisor task must have priority 0")
	}

	// Lowest priority means the numerically largest priority value
	// (priority 0 is highest).
	var lowestPriority uint8
	idleCount := 0
	idleIsLowest := true
	for i, t := range d.Tasks {
		if i == SupervisorIndex {
			continue
		}
		if t.Priority == 0 {
			panic(fmt.Sprintf("appdesc: task %q must not share priority 0 with the supervisor", t.Name))
		}
		if t.Priority > lowestPriority {
			lowestPriority = t.Priority
		}
		if t.Name == "idle" {
			idleCount++
		}
	}
	if idleCount != 1 {
		panic(fmt.Sprintf("appdesc: application must have exactly one task named %q, found %d", "idle", idleCount))
	}
	for i, t := range d.Tasks {
		if i == SupervisorIndex {
			continue
		}
		if t.Name == "idle" && t.Priority != lowestPriority {
			idleIsLowest = false
		}
	}
	if !idleIsLowest {
		panic("appdesc: the \"idle\" task must be the lowest-priority task")
	}
}

// NewTaskId builds a TaskId for the given task index and generation; the
// caller supplies the generation.
func NewTaskId(index int, generation uint8) abi.TaskId {
	return abi.NewTaskId(index, generation)
}
