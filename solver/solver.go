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

// Package solver defines the SAT/SMT collaborator interface the engine
// consumes (spec.md section 6) and a small bounded reference implementation
// suitable for tests and for embedding when no external solver is wired in.
//
// A real deployment is expected to bind Solver to an actual SAT/SMT engine;
// this package's Bounded implementation intentionally does the simplest
// thing that satisfies the interface's contract (truth-table enumeration
// with an iteration cap), since spec.md treats the solver itself as an
// external collaborator named only by interface.
package solver

import (
	"errors"

	"nilcheck.dev/nilcheck/formula"
)

// Verdict is the three-valued result of asking a Solver to prove a formula.
type Verdict uint8

const (
	// Yes means the formula is proven true under the current assumptions.
	Yes Verdict = iota
	// No means the formula is proven false (its negation is proven true).
	No
	// Unknown means neither the formula nor its negation could be proven
	// within budget.
	Unknown
)

// ErrLimitReached is the sentinel for an exhausted iteration budget. No
// function in this module returns it: once a Solver's budget is exhausted,
// Prove returns Unknown and LimitReached stays true from then on.
var ErrLimitReached = errors.New("solver: iteration limit reached")

// Solver is the SAT/SMT collaborator named by spec.md section 6: it proves
// formulas built from atoms and connectives, tracking a bounded iteration
// budget across the lifetime of one analysis run.
type Solver interface {
	// Assume adds f as a standing assumption for all subsequent Prove calls,
	// modeling the flow condition accumulated along a path (spec.md's
	// Environment.flow condition).
	Assume(f *formula.Formula)

	// Prove attempts to establish that f is a logical consequence of the
	// solver's standing assumptions. It returns Unknown, rather than an
	// error, when the budget runs out mid-proof; LimitReached becomes true
	// in that case and stays true for the rest of the solver's lifetime.
	Prove(f *formula.Formula) Verdict

	// LimitReached reports whether the iteration cap has ever been hit.
	// It is sticky: once true, it never reverts to false.
	LimitReached() bool

	// Reset clears standing assumptions (used when environments fork at a
	// branch) but preserves the sticky LimitReached flag and the remaining
	// budget - budget is a property of the whole analysis run, not of one
	// path.
	Reset()
}
