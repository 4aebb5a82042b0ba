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

// widenProperty implements spec.md 4.5's Widen for one boolean property: if
// prev and cur are mutually proven equivalent under their respective
// environments, the formula is stable and is kept; otherwise it is widened
// to top.
func widenProperty(prev, cur *formula.Formula, prevEnv, curEnv *lattice.Environment, s solver.Solver) *formula.Formula {
	if prev == nil || cur == nil {
		return nil
	}
	if prevEnv.Proves(s, formula.Iff(prev, cur)) && curEnv.Proves(s, formula.Iff(prev, cur)) {
		return cur
	}
	return nil
}

// WidenValue widens one PointerValue observed across a loop-head revisit.
// The pointee location is always replaced by the canonical Top location for
// its pointee type - stable across further iterations, per spec.md 4.5 and
// the GLOSSARY's "Top storage location" - unless prev and cur already agree
// on the exact same location, in which case it's kept (no widening needed).
func WidenValue(prev, cur ptrval.Value, prevEnv, curEnv *lattice.Environment, s solver.Solver, arena interface {
	TopLocation(typeKey string) *storage.Top
}, pointeeTypeKey string) ptrval.Value {
	out := ptrval.Value{Pointee: cur.Pointee}
	if prev.Pointee != cur.Pointee {
		out.Pointee = arena.TopLocation(pointeeTypeKey)
	}
	out.State.FromNullable = widenProperty(prev.State.FromNullable, cur.State.FromNullable, prevEnv, curEnv, s)
	out.State.IsNull = widenProperty(prev.State.IsNull, cur.State.IsNull, prevEnv, curEnv, s)
	return out
}

// Stable reports whether prev and cur are the same PointerValue by
// spec.md 4.5's Compare, i.e. widening has reached a fixed point for this
// location and no further revisits are needed.
func Stable(prev, cur ptrval.Value) bool {
	return Compare(prev, cur) == Same
}

// WidenEnvironment implements spec.md 4.5's Widen at the whole-environment
// level: for every location tracked by prev, the previous and current
// PointerValue are widened via WidenValue, keyed by the location's own
// String() as its pointeeTypeKey so that repeatedly widening the same loop
// head location converges onto the same canonical Top rather than minting
// a fresh one each revisit. A location prev tracked but cur dropped is
// itself dropped, matching a value going out of scope along the loop body;
// a location only cur tracks (newly observed this iteration) is carried
// over unwidened. Flow condition is taken from cur, the most recent
// iteration's accumulated narrowing.
func WidenEnvironment(prev, cur *lattice.Environment, s solver.Solver, arena interface {
	TopLocation(typeKey string) *storage.Top
}) *lattice.Environment {
	dst := lattice.NewEnvironment()
	dst.FlowCondition = cur.FlowCondition

	seen := map[storage.Location]bool{}
	for _, loc := range prev.Locations() {
		seen[loc] = true
		pv, _ := prev.Get(loc)
		cv, ok := cur.Get(loc)
		if !ok {
			continue
		}
		dst.Set(loc, WidenValue(pv, cv, prev, cur, s, arena, loc.String()))
	}
	for _, loc := range cur.Locations() {
		if seen[loc] {
			continue
		}
		cv, _ := cur.Get(loc)
		dst.Set(loc, cv)
	}

	dst.ClearConstMemo()
	return dst
}
