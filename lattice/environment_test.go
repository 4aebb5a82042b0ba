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
	"testing"

	"github.com/stretchr/testify/require"

	"nilcheck.dev/nilcheck/formula"
	"nilcheck.dev/nilcheck/ptrval"
	"nilcheck.dev/nilcheck/solver"
	"nilcheck.dev/nilcheck/srcast"
	"nilcheck.dev/nilcheck/storage"
)

func TestNewEnvironmentStartsWithTrueFlowConditionAndNoLocations(t *testing.T) {
	t.Parallel()

	e := NewEnvironment()
	require.True(t, e.FlowCondition.IsTrue())
	require.Empty(t, e.Locations())
}

func TestSetThenGetRoundTrips(t *testing.T) {
	t.Parallel()

	e := NewEnvironment()
	loc := &storage.Variable{Name: "p"}
	v := ptrval.Value{Pointee: loc, State: ptrval.State{IsNull: formula.True()}}

	e.Set(loc, v)
	got, ok := e.Get(loc)
	require.True(t, ok)
	require.Equal(t, v, got)
	require.Equal(t, []storage.Location{loc}, e.Locations())
}

func TestGetMissingLocationReportsNotFound(t *testing.T) {
	t.Parallel()

	e := NewEnvironment()
	_, ok := e.Get(&storage.Variable{Name: "p"})
	require.False(t, ok)
}

func TestAssumeConjoinsOntoFlowCondition(t *testing.T) {
	t.Parallel()

	e := NewEnvironment()
	a := formula.NewAtom("a")
	e.Assume(formula.FromAtom(a))
	require.Equal(t, formula.KindAtom, e.FlowCondition.Kind())

	b := formula.NewAtom("b")
	e.Assume(formula.FromAtom(b))
	require.Equal(t, formula.KindAnd, e.FlowCondition.Kind())
}

func TestProvesDelegatesToSolverWithResetAssumptions(t *testing.T) {
	t.Parallel()

	e := NewEnvironment()
	a := formula.NewAtom("a")
	e.Assume(formula.FromAtom(a))

	s := solver.NewBounded(1000)
	s.Assume(formula.False())

	require.True(t, e.Proves(s, formula.FromAtom(a)), "Proves must reset s's own assumptions before using the environment's")
}

func TestProvesReturnsFalseWhenUnproven(t *testing.T) {
	t.Parallel()

	e := NewEnvironment()
	s := solver.NewBounded(1000)
	require.False(t, e.Proves(s, formula.FromAtom(formula.NewAtom("unknown"))))
}

func TestConstMethodMemoRoundTripsAndInvalidates(t *testing.T) {
	t.Parallel()

	e := NewEnvironment()
	recv := &storage.Variable{Name: "obj"}
	other := &storage.Variable{Name: "other"}
	method := srcast.USR("c:@F@getFoo")

	v := ptrval.Value{State: ptrval.State{IsNull: formula.False()}}
	e.MemoizeConstCall(recv, method, v)
	e.MemoizeConstCall(other, method, v)

	got, ok := e.MemoizedConstCall(recv, method)
	require.True(t, ok)
	require.Equal(t, v, got)

	e.InvalidateConstMemoFor(recv)
	_, ok = e.MemoizedConstCall(recv, method)
	require.False(t, ok)
	_, ok = e.MemoizedConstCall(other, method)
	require.True(t, ok, "invalidating one receiver must not disturb another's memo")
}

func TestClearConstMemoDropsEverything(t *testing.T) {
	t.Parallel()

	e := NewEnvironment()
	recv := &storage.Variable{Name: "obj"}
	method := srcast.USR("c:@F@getFoo")
	e.MemoizeConstCall(recv, method, ptrval.Value{})

	e.ClearConstMemo()
	_, ok := e.MemoizedConstCall(recv, method)
	require.False(t, ok)
}

func TestCloneIsIndependentOfSource(t *testing.T) {
	t.Parallel()

	e := NewEnvironment()
	loc := &storage.Variable{Name: "p"}
	e.Set(loc, ptrval.Value{State: ptrval.State{IsNull: formula.False()}})

	clone := e.Clone()
	clone.Set(&storage.Variable{Name: "q"}, ptrval.Value{State: ptrval.State{IsNull: formula.True()}})

	require.Len(t, e.Locations(), 1, "mutating the clone must not affect the source")
	require.Len(t, clone.Locations(), 2)

	clone.FlowCondition = formula.FromAtom(formula.NewAtom("branch"))
	require.True(t, e.FlowCondition.IsTrue(), "reassigning the clone's flow condition must not affect the source's")
}
