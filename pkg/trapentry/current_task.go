package trapentry

// CurrentTaskCell is the mscratch-style single-cell handoff for "which
// task trapped." The real riscv32 entry stub stores the current task
// pointer in the mscratch CSR and reloads it on every trap without a
// separate memory load. The rejected alternative -- a bare
// package-level global task-index variable -- would work identically in
// single-hart Go, but modeling it as a CSR-shaped cell keeps the
// parallel to the real entry stub honest and routes every write through
// one method (Set: called at the end of Machine.Dispatch, once by
// pkg/startup to publish the first task, and by pkg/fixture and tests)
// rather than scattered assignment.
type CurrentTaskCell struct {
	index int
}

// Get reads the current task index, as a trap stub would read mscratch.
func (c *CurrentTaskCell) Get() int { return c.index }

// Set publishes the next task index, as a trap stub would before mret.
func (c *CurrentTaskCell) Set(index int) { c.index = index }
