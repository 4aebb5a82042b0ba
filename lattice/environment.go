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

package lattice

import (
	"nilcheck.dev/nilcheck/formula"
	"nilcheck.dev/nilcheck/ptrval"
	"nilcheck.dev/nilcheck/solver"
	"nilcheck.dev/nilcheck/srcast"
	"nilcheck.dev/nilcheck/storage"
)

// constMethodKey identifies one memoized parameterless const-method call
// (spec.md 3): the receiver's storage location paired with the method.
type constMethodKey struct {
	Recv   storage.Location
	Method srcast.USR
}

// Environment is a mapping from storage locations to abstract values plus a
// flow condition (spec.md 3): a conjunction of formulas assumed true on the
// current program path. It also carries the const-method memo (spec.md 3),
// which is path-sensitive and is cleared at joins (spec.md 4.3).
type Environment struct {
	values         map[storage.Location]ptrval.Value
	FlowCondition  *formula.Formula
	constMethodMemo map[constMethodKey]ptrval.Value
}

// NewEnvironment returns an empty environment with a trivially-true flow
// condition.
func NewEnvironment() *Environment {
	return &Environment{
		values:          make(map[storage.Location]ptrval.Value),
		FlowCondition:   formula.True(),
		constMethodMemo: make(map[constMethodKey]ptrval.Value),
	}
}

// Get looks up the abstract value stored at loc.
func (e *Environment) Get(loc storage.Location) (ptrval.Value, bool) {
	v, ok := e.values[loc]
	return v, ok
}

// Set stores v at loc.
func (e *Environment) Set(loc storage.Location, v ptrval.Value) {
	e.values[loc] = v
}

// Assume conjoins f onto the flow condition.
func (e *Environment) Assume(f *formula.Formula) {
	e.FlowCondition = formula.And(e.FlowCondition, f)
}

// Proves reports whether f is a logical consequence of e's flow condition,
// using s as scratch (its standing assumptions are reset first). This
// implements the testable properties D(e,env)/N(e,env) of spec.md 8.
func (e *Environment) Proves(s solver.Solver, f *formula.Formula) bool {
	s.Reset()
	s.Assume(e.FlowCondition)
	return s.Prove(f) == solver.Yes
}

// MemoizedConstCall looks up a memoized parameterless const-method result.
func (e *Environment) MemoizedConstCall(recv storage.Location, method srcast.USR) (ptrval.Value, bool) {
	v, ok := e.constMethodMemo[constMethodKey{Recv: recv, Method: method}]
	return v, ok
}

// MemoizeConstCall records the result of a parameterless const-method call.
func (e *Environment) MemoizeConstCall(recv storage.Location, method srcast.USR, v ptrval.Value) {
	e.constMethodMemo[constMethodKey{Recv: recv, Method: method}] = v
}

// InvalidateConstMemoFor drops every memoized const-call result for recv,
// used when a non-const method call on recv may have changed its state
// (spec.md 4.4.2).
func (e *Environment) InvalidateConstMemoFor(recv storage.Location) {
	for k := range e.constMethodMemo {
		if k.Recv == recv {
			delete(e.constMethodMemo, k)
		}
	}
}

// ClearConstMemo drops the entire const-method memo - the join-time
// precision/cost trade-off spec.md 4.3 documents.
func (e *Environment) ClearConstMemo() {
	e.constMethodMemo = make(map[constMethodKey]ptrval.Value)
}

// Clone returns an independent deep-enough copy of e, suitable for forking
// at a branch: mutating the clone never affects e.
func (e *Environment) Clone() *Environment {
	out := &Environment{
		values:          make(map[storage.Location]ptrval.Value, len(e.values)),
		FlowCondition:   e.FlowCondition,
		constMethodMemo: make(map[constMethodKey]ptrval.Value, len(e.constMethodMemo)),
	}
	for k, v := range e.values {
		out.values[k] = v
	}
	for k, v := range e.constMethodMemo {
		out.constMethodMemo[k] = v
	}
	return out
}

// Locations returns the set of storage locations e currently tracks, used
// by fixpoint.Merge/Widen to iterate the union of two environments' domains.
func (e *Environment) Locations() []storage.Location {
	out := make([]storage.Location, 0, len(e.values))
	for k := range e.values {
		out = append(out, k)
	}
	return out
}
