package automaton

import (
	"fmt"
	"strings"

	"github.com/soypat/watershed"
)

// Rule is the relaxation policy deciding what elevation a neighbor offers.
type Rule int

const (
	// RuleMin offers the neighbor's elevation unchanged, so each basin floods
	// with the elevation of its seed.
	RuleMin Rule = iota
	// RuleMinimax offers max(neighbor elevation, own gradient): the lowest
	// water level at which the cell connects to a seed. Unlabeled cells start
	// at an unreachable elevation.
	RuleMinimax
)

// Rules lists every valid [Rule].
var Rules = []Rule{RuleMin, RuleMinimax}

func (r Rule) String() string {
	switch r {
	case RuleMin:
		return "min"
	case RuleMinimax:
		return "minimax"
	default:
		return "unknown"
	}
}

// ParseRule parses the name returned by [Rule.String].
func ParseRule(s string) (Rule, error) {
	for _, r := range Rules {
		if strings.EqualFold(strings.TrimSpace(s), r.String()) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown rule %q: %w", s, watershed.ErrInvalidConfig)
}

func (r Rule) validate() error {
	if r != RuleMin && r != RuleMinimax {
		return fmt.Errorf("rule %d: %w", int(r), watershed.ErrInvalidConfig)
	}
	return nil
}

func (r Rule) initialElevation(gradient uint32) uint32 {
	if r == RuleMinimax {
		return unreachable
	}
	return gradient
}

// cell is the mutable state of one lattice cell.
type cell struct {
	elev, label uint32
}

// absent is what a missing neighbor looks like. It is never a candidate.
var absent = cell{elev: unreachable, label: Unlabeled}

// relax computes the next state of a cell from the current generation.
// nb holds the north, east, south and west neighbors; missing ones are [absent].
// A neighbor is a candidate only if it is labeled, and it wins only if its
// offered elevation is strictly below the best so far, so earlier directions
// win ties. Seeds never change.
func (r Rule) relax(seed bool, gradient uint32, self cell, nb *[4]cell) (next cell, changed bool) {
	if seed {
		return self, false
	}
	next = self
	for _, n := range nb {
		if n.label == Unlabeled {
			continue
		}
		e := n.elev
		if r == RuleMinimax {
			e = max(e, gradient)
		}
		if e < next.elev {
			next = cell{elev: e, label: n.label}
		}
	}
	return next, next != self
}
