//  Copyright (c) 2024 The Nilcheck Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package solver

import (
	"go.uber.org/zap"

	"nilcheck.dev/nilcheck/formula"
)

// Bounded is a reference Solver that decides satisfiability by exhaustive
// truth-table enumeration over the atoms mentioned in its assumptions and
// the queried formula, charging one "iteration" per row of the table. It is
// exact but exponential, which is exactly why spec.md treats a real
// SAT/SMT engine as an external collaborator; Bounded exists so the engine
// is runnable and testable without one.
type Bounded struct {
	assumptions []*formula.Formula
	budget      int
	spent       int
	limitHit    bool
	log         *zap.SugaredLogger
}

// NewBounded returns a Bounded solver with the given total iteration budget.
func NewBounded(budget int) *Bounded {
	return &Bounded{budget: budget, log: zap.NewNop().Sugar()}
}

// WithLogger attaches a structured logger used to record the sticky
// transition into LimitReached, replacing the no-op default.
func (b *Bounded) WithLogger(log *zap.SugaredLogger) *Bounded {
	if log != nil {
		b.log = log
	}
	return b
}

// Assume implements Solver.
func (b *Bounded) Assume(f *formula.Formula) {
	b.assumptions = append(b.assumptions, f)
}

// Reset implements Solver.
func (b *Bounded) Reset() {
	b.assumptions = nil
}

// LimitReached implements Solver.
func (b *Bounded) LimitReached() bool { return b.limitHit }

// Prove implements Solver. It proves f by checking that every assignment of
// the mentioned atoms which satisfies all assumptions also satisfies f
// (i.e. assumptions => f is a tautology). Symmetrically it proves ¬f by
// checking assumptions => ¬f. If neither holds within budget, it returns
// Unknown.
func (b *Bounded) Prove(f *formula.Formula) Verdict {
	atoms := map[*formula.Atom]struct{}{}
	for _, a := range b.assumptions {
		collectAtoms(a, atoms)
	}
	collectAtoms(f, atoms)

	ordered := make([]*formula.Atom, 0, len(atoms))
	for a := range atoms {
		ordered = append(ordered, a)
	}

	n := len(ordered)
	if n > 20 {
		// Truth-table enumeration is infeasible; a real solver would use
		// DPLL/CDCL here. We conservatively report Unknown rather than
		// spend the whole budget on one query.
		if !b.limitHit {
			b.log.Debugw("solver limit reached", "reason", "atom count exceeds enumeration bound", "atoms", n)
		}
		b.limitHit = true
		return Unknown
	}

	total := 1 << uint(n)
	provedTrue, provedFalse := true, true
	sawSatisfyingRow := false

	for row := 0; row < total; row++ {
		if b.spent >= b.budget {
			if !b.limitHit {
				b.log.Debugw("solver limit reached", "reason", "iteration budget exhausted", "budget", b.budget)
			}
			b.limitHit = true
			return Unknown
		}
		b.spent++

		assign := make(map[*formula.Atom]bool, n)
		for i, a := range ordered {
			assign[a] = (row>>uint(i))&1 == 1
		}

		if !allSatisfied(b.assumptions, assign) {
			continue
		}
		sawSatisfyingRow = true

		if !evaluate(f, assign) {
			provedTrue = false
		} else {
			provedFalse = false
		}
	}

	if !sawSatisfyingRow {
		// Assumptions are jointly unsatisfiable: everything follows
		// (vacuous truth). Treat conservatively as Unknown rather than
		// claiming a proof from a contradiction.
		return Unknown
	}
	switch {
	case provedTrue:
		return Yes
	case provedFalse:
		return No
	default:
		return Unknown
	}
}

func allSatisfied(fs []*formula.Formula, assign map[*formula.Atom]bool) bool {
	for _, f := range fs {
		if !evaluate(f, assign) {
			return false
		}
	}
	return true
}

func evaluate(f *formula.Formula, assign map[*formula.Atom]bool) bool {
	switch f.Kind() {
	case formula.KindTrue:
		return true
	case formula.KindFalse:
		return false
	case formula.KindAtom:
		return assign[f.Atom()]
	case formula.KindNot:
		return !evaluate(f.Left(), assign)
	case formula.KindAnd:
		return evaluate(f.Left(), assign) && evaluate(f.Right(), assign)
	case formula.KindOr:
		return evaluate(f.Left(), assign) || evaluate(f.Right(), assign)
	case formula.KindImplies:
		return !evaluate(f.Left(), assign) || evaluate(f.Right(), assign)
	case formula.KindIff:
		return evaluate(f.Left(), assign) == evaluate(f.Right(), assign)
	default:
		return false
	}
}

func collectAtoms(f *formula.Formula, out map[*formula.Atom]struct{}) {
	if f == nil {
		return
	}
	switch f.Kind() {
	case formula.KindAtom:
		out[f.Atom()] = struct{}{}
	case formula.KindNot:
		collectAtoms(f.Left(), out)
	case formula.KindAnd, formula.KindOr, formula.KindImplies, formula.KindIff:
		collectAtoms(f.Left(), out)
		collectAtoms(f.Right(), out)
	}
}
