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

package fixpoint

import (
	"nilcheck.dev/nilcheck/formula"
	"nilcheck.dev/nilcheck/lattice"
	"nilcheck.dev/nilcheck/ptrval"
	"nilcheck.dev/nilcheck/solver"
	"nilcheck.dev/nilcheck/storage"
)

// MergeProperty merges one boolean property (from_nullable or is_null) of
// two predecessor environments at a CFG join, per spec.md 4.5: if both
// sides prove to the same literal, keep the literal; if either side is
// top, the merged property is forgotten; otherwise allocate a fresh atom
// constrained by the disjunction of each predecessor's flow condition
// paired with that predecessor's value, and assume it in dst.
func MergeProperty(propA, propB *formula.Formula, envA, envB *lattice.Environment, dst *lattice.Environment, s solver.Solver, fresh ptrval.AtomFactory, label string) *formula.Formula {
	if propA == nil || propB == nil {
		return nil
	}

	aTrue := envA.Proves(s, propA)
	bTrue := envB.Proves(s, propB)
	if aTrue && bTrue {
		return formula.True()
	}
	aFalse := envA.Proves(s, formula.Not(propA))
	bFalse := envB.Proves(s, formula.Not(propB))
	if aFalse && bFalse {
		return formula.False()
	}

	m := formula.FromAtom(fresh(label))
	disjunct := formula.Or(
		formula.And(envA.FlowCondition, formula.Iff(m, propA)),
		formula.And(envB.FlowCondition, formula.Iff(m, propB)),
	)
	dst.Assume(disjunct)
	return m
}

// MergeValue merges two PointerValues observed for the same storage
// location along different predecessors of a CFG join.
func MergeValue(a, b ptrval.Value, envA, envB *lattice.Environment, dst *lattice.Environment, s solver.Solver, fresh ptrval.AtomFactory) ptrval.Value {
	out := ptrval.Value{Pointee: a.Pointee}
	if a.Pointee != b.Pointee {
		// Divergent pointees can't be merged into one location; conservatively
		// forget the pointee identity by pointing at a Top location keyed by
		// nothing more than "merged", losing precision rather than soundness.
		out.Pointee = &storage.Top{TypeKey: "merged"}
	}
	out.State.FromNullable = MergeProperty(a.State.FromNullable, b.State.FromNullable, envA, envB, dst, s, fresh, "from_nullable_merge")
	out.State.IsNull = MergeProperty(a.State.IsNull, b.State.IsNull, envA, envB, dst, s, fresh, "is_null_merge")
	return out
}

// Merge joins two predecessor environments into a fresh one: it unions
// their tracked locations (merging values present in both, carrying over
// values present in only one unchanged), unions their flow conditions with
// Or, and clears the const-method memo (spec.md 4.3's documented precision
// loss at joins).
func Merge(envA, envB *lattice.Environment, s solver.Solver, fresh ptrval.AtomFactory) *lattice.Environment {
	dst := lattice.NewEnvironment()
	dst.FlowCondition = formula.Or(envA.FlowCondition, envB.FlowCondition)

	seen := map[storage.Location]bool{}
	for _, loc := range envA.Locations() {
		seen[loc] = true
		va, _ := envA.Get(loc)
		if vb, ok := envB.Get(loc); ok {
			dst.Set(loc, MergeValue(va, vb, envA, envB, dst, s, fresh))
		} else {
			dst.Set(loc, va)
		}
	}
	for _, loc := range envB.Locations() {
		if seen[loc] {
			continue
		}
		vb, _ := envB.Get(loc)
		dst.Set(loc, vb)
	}

	dst.ClearConstMemo()
	return dst
}
