package automaton

import "time"

// Profile holds the wall time of every pass of a run.
type Profile struct {
	Passes []time.Duration
}

// Total returns the summed wall time of all passes.
func (p *Profile) Total() (total time.Duration) {
	for _, d := range p.Passes {
		total += d
	}
	return total
}

// Mean returns the average pass time, or zero if no pass ran.
func (p *Profile) Mean() time.Duration {
	if len(p.Passes) == 0 {
		return 0
	}
	return p.Total() / time.Duration(len(p.Passes))
}
