// Package pmp programs the RISC-V Physical Memory Protection unit from a
// task's region table. It is the kernel's only interface to hardware
// isolation: every dispatch re-writes all eight TOR entry pairs so that no
// permission from the outgoing task can leak into the incoming one.
//
// This package does not touch real PMP CSRs, and neither does any other
// package here (pkg/trapentry/riscv32 holds no PMP code). Program instead
// returns the CSR values a real driver would write, which pkg/startup and
// tests inspect,
// mirroring how the Hubris rv64 backend's apply_memory_protection builds
// PmpCfg/TOR pairs from a task's region table (see
// original_source/sys/kern/src/arch/rv64/pmp.rs for the grounding).
package pmp

import "github.com/oxidecomputer/hubriskern/pkg/abi"

// MaxRegions is the number of region slots a task may hold, fixed by the
// hardware (8 PMP entry pairs).
const MaxRegions = 8

// NullRegionID is the canonical filler entry used for unused region slots:
// base 0, size 32, no rights.
const NullRegionID = 0

// Region describes one memory region, either in NAPOT (power-of-two size)
// or TOR (explicit base/limit) style; the kernel supports both, but all
// PMP programming below always emits TOR pairs, since TOR can express
// both styles uniformly.
type Region struct {
	Base  uint32
	Size  uint32
	Attrs abi.RegionAttrs
}

// Limit returns the exclusive upper bound of the region.
func (r Region) Limit() uint32 { return r.Base + r.Size }

// Contains reports whether the half-open byte range [addr, addr+length)
// lies entirely within r.
func (r Region) Contains(addr, length uint32) bool {
	if length == 0 {
		return addr >= r.Base && addr <= r.Limit()
	}
	end := addr + length
	if end < addr {
		return false // overflow
	}
	return addr >= r.Base && end <= r.Limit()
}

// Permits reports whether r grants every attribute bit set in want.
func (r Region) Permits(want abi.RegionAttrs) bool {
	return r.Attrs&want == want
}

// IsNull reports whether r is the canonical null-region filler.
func (r Region) IsNull() bool {
	return r.Base == 0 && r.Size == 0x20
}

// Permission is the architectural PMP permission encoding; values match
// the RISC-V PMP R/W/X bit assignments exactly so Entry can be compared
// against real hardware traces.
type Permission uint8

const (
	PermNone Permission = 0b000
	PermR    Permission = 0b001
	PermRW   Permission = 0b011
	PermX    Permission = 0b100
	PermRX   Permission = 0b101
	PermRWX  Permission = 0b111
)

// translate maps the abstract region attributes to a PMP permission,
// following the same switch the Hubris rv64 backend uses (with the two
// unrepresentable combinations -- write-only and write+execute -- treated
// as kernel invariant violations rather than silently coerced).
func translate(attrs abi.RegionAttrs) Permission {
	switch attrs & (abi.AttrRead | abi.AttrWrite | abi.AttrExecute) {
	case 0:
		return PermNone
	case abi.AttrRead:
		return PermR
	case abi.AttrRead | abi.AttrWrite:
		return PermRW
	case abi.AttrExecute:
		return PermX
	case abi.AttrRead | abi.AttrExecute:
		return PermRX
	case abi.AttrRead | abi.AttrWrite | abi.AttrExecute:
		return PermRWX
	default:
		panic("pmp: region attributes are not representable as a PMP permission")
	}
}

// Entry is a pair of PMP CSR writes: a disabled base-address entry
// followed by a TOR-mode limit entry carrying the translated permission.
// An empty region slot maps to both entries disabled.
type Entry struct {
	BaseAddr  uint32
	BasePerm  Permission // always PermNone: TOR base entries carry no rights
	LimitAddr uint32
	LimitPerm Permission
	TOR       bool // false only for a fully-disabled (null) slot
}

// Program translates a task's region table into the PMP entry pairs that
// must be written before dispatching to that task. It always returns
// exactly MaxRegions entries, overwriting every slot unconditionally --
// there is no "leave as-is" path, so a task can never inherit a permission
// left over from whichever task ran before it.
func Program(regions [MaxRegions]Region) [MaxRegions]Entry {
	var out [MaxRegions]Entry
	for i, r := range regions {
		if r.IsNull() || r.Size == 0 {
			out[i] = Entry{TOR: false}
			continue
		}
		out[i] = Entry{
			BaseAddr:  r.Base,
			BasePerm:  PermNone,
			LimitAddr: r.Limit(),
			LimitPerm: translate(r.Attrs),
			TOR:       true,
		}
	}
	return out
}

// FindRegion returns the index of the region in regions that fully
// contains [addr, addr+length) and grants every bit in want, or -1 if no
// such region exists. This is the shared primitive both the IPC transfer
// path and borrow validation use to bounds-check a buffer against a
// task's region table.
func FindRegion(regions [MaxRegions]Region, addr, length uint32, want abi.RegionAttrs) int {
	for i, r := range regions {
		if r.IsNull() {
			continue
		}
		if r.Contains(addr, length) && r.Permits(want) {
			return i
		}
	}
	return -1
}
