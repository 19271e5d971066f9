package automaton

import "sync/atomic"

// ConvergenceFlag is the OR-reduction of per-cell change flags over one pass.
// Workers accumulate a local flag and merge it once per work item; merges
// commute so their order never matters.
type ConvergenceFlag struct {
	changed atomic.Bool
}

// Reset clears the flag before a pass.
func (f *ConvergenceFlag) Reset() { f.changed.Store(false) }

// Merge ORs a worker's local result into the flag.
func (f *ConvergenceFlag) Merge(changed bool) {
	if changed {
		f.changed.Store(true)
	}
}

// Changed reports whether any merged result was true since the last Reset.
func (f *ConvergenceFlag) Changed() bool { return f.changed.Load() }
