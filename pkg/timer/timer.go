// Package timer drives the kernel's notion of time from the platform
// machine timer. It owns the simulated mtime/mtimecmp registers and the
// monotonic tick counter, following the same increment-by-divisor (not
// set-to-now) discipline as the Hubris riscv32 mtimer driver, which keeps
// the timer free-running without drift from read latency (see
// original_source/sys/kern/src/arch/riscv32/mtimer.rs).
package timer

import "math"

// Ticks is a monotonic kernel tick count. It is a distinct type rather
// than a bare uint64 so that a tick value can never be silently added to
// an unrelated uint64 (e.g. an address) by mistake.
type Ticks uint64

// Driver owns the simulated machine timer registers. In the real kernel
// these are memory-mapped mtime/mtimecmp; here they are plain fields the
// trap entry and tests can both drive deterministically.
type Driver struct {
	// ClockFreqKHz is the tick divisor: the number of mtime units per
	// kernel tick, set once at boot from the application descriptor's
	// configured tick frequency.
	ClockFreqKHz uint32

	mtime    uint64
	mtimecmp uint64

	// ticks is the monotonic kernel tick counter. A wrapping add is
	// deliberately not used: overflowing this counter would require
	// roughly 2^64 ticks (hundreds of years at millisecond resolution)
	// and can only happen via memory corruption, which must panic rather
	// than silently wrap.
	ticks Ticks
}

// Start programs mtimecmp to fire one tick from the current mtime and
// records the tick divisor.
func (d *Driver) Start(mtimeNow uint64, tickDivisor uint32) {
	d.ClockFreqKHz = tickDivisor
	d.mtime = mtimeNow
	d.mtimecmp = mtimeNow + uint64(tickDivisor)
}

// Now returns the current simulated mtime.
func (d *Driver) Now() uint64 { return d.mtime }

// Ticks returns the monotonic kernel tick counter.
func (d *Driver) Ticks() Ticks { return d.ticks }

// Advance moves mtime forward by delta, simulating the passage of
// hardware time between trap entries. It does not itself fire the timer
// interrupt; the harness calls HandleInterrupt once mtime has reached
// mtimecmp, exactly as real hardware raises the machine timer interrupt.
func (d *Driver) Advance(delta uint64) {
	d.mtime += delta
}

// Pending reports whether mtime has reached mtimecmp, i.e. whether a
// timer interrupt would be pending on real hardware.
func (d *Driver) Pending() bool {
	return d.mtime >= d.mtimecmp
}

// HandleInterrupt advances the tick counter by one and reprograms
// mtimecmp for the next interrupt. It panics on tick-counter overflow
// rather than wrapping.
func (d *Driver) HandleInterrupt() Ticks {
	if d.ticks == math.MaxUint64 {
		panic("timer: tick counter overflowed")
	}
	d.ticks++
	d.mtimecmp += uint64(d.ClockFreqKHz)
	return d.ticks
}
