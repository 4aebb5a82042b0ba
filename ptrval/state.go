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

// Package ptrval implements the Pointer Abstract Value model (spec.md 4.2,
// C2): PointerNullState, PointerValue, and their constructors.
package ptrval

import (
	"nilcheck.dev/nilcheck/formula"
	"nilcheck.dev/nilcheck/nullkind"
	"nilcheck.dev/nilcheck/storage"
)

// AtomFactory mints a fresh, uniquely-identified atom labeled for debugging.
// The lattice's arena owns the concrete implementation so that every atom
// allocated during one analysis run has a lifetime tied to that run.
type AtomFactory func(label string) *formula.Atom

// State is the pair (from_nullable, is_null) of boolean-formula references
// spec.md 3 calls PointerNullState. A nil field means "top": no knowledge.
type State struct {
	// FromNullable is true when the declared/inferred annotation is
	// Nullable.
	FromNullable *formula.Formula
	// IsNull is true when the runtime value is the null pointer.
	IsNull *formula.Formula
}

// Top is the fully-unknown state: both properties forgotten.
func Top() State { return State{} }

// Init constructs a State per spec.md 4.2's init_pointer_null_state rules.
// isNullLiteral takes precedence over hint, matching "null literal ->
// (true,true)"; a nil hint means "no hint given", producing fresh atoms for
// both properties.
func Init(hint *nullkind.Kind, isNullLiteral bool, fresh AtomFactory) State {
	if isNullLiteral {
		return State{FromNullable: formula.True(), IsNull: formula.True()}
	}
	if hint == nil {
		return State{
			FromNullable: formula.FromAtom(fresh("from_nullable")),
			IsNull:       formula.FromAtom(fresh("is_null")),
		}
	}
	switch *hint {
	case nullkind.NonNull:
		return State{FromNullable: formula.False(), IsNull: formula.False()}
	case nullkind.Nullable:
		return State{FromNullable: formula.True(), IsNull: formula.FromAtom(fresh("is_null"))}
	default: // Unspecified
		return State{
			FromNullable: formula.FromAtom(fresh("from_nullable")),
			IsNull:       formula.FromAtom(fresh("is_null")),
		}
	}
}

// ForgetIsNull returns a copy of s with IsNull set to top.
func (s State) ForgetIsNull() State {
	s.IsNull = nil
	return s
}

// ForgetFromNullable returns a copy of s with FromNullable set to top.
func (s State) ForgetFromNullable() State {
	s.FromNullable = nil
	return s
}

// sameFormula reports pointer identity, treating two nils as equal (both
// "top"). This is deliberately not structural/semantic equivalence - see
// spec.md 4.5, "Formula-equivalence is deliberately not checked."
func sameFormula(a, b *formula.Formula) bool {
	return a == b
}

// SameProperties reports whether s and other are the identical state by
// atom identity, per spec.md 4.5's Compare rule.
func (s State) SameProperties(other State) bool {
	return sameFormula(s.FromNullable, other.FromNullable) && sameFormula(s.IsNull, other.IsNull)
}

// Value is a PointerValue (spec.md 3, C2): a pointee storage location paired
// with a nullability state.
type Value struct {
	Pointee storage.Location
	State   State
}

// SameIdentity reports whether v and other are the same PointerValue by
// spec.md 3's definition: identical pointee location plus identical atoms.
func (v Value) SameIdentity(other Value) bool {
	return v.Pointee == other.Pointee && v.State.SameProperties(other.State)
}

// Unpack replaces any "top" property in v with a fresh atom constrained
// (via the returned constraint formulas) to equal the previous value - the
// lvalue-to-rvalue "unpacking" spec.md 4.4.2 describes. It returns the
// unpacked value and the list of equality constraints the caller should
// assume in the current environment's flow condition.
func Unpack(v Value, prevFromNullable, prevIsNull *formula.Formula, fresh AtomFactory) (Value, []*formula.Formula) {
	var constraints []*formula.Formula
	out := v
	if out.State.FromNullable == nil {
		na := formula.FromAtom(fresh("from_nullable_unpacked"))
		if prevFromNullable != nil {
			constraints = append(constraints, formula.Iff(na, prevFromNullable))
		}
		out.State.FromNullable = na
	}
	if out.State.IsNull == nil {
		na := formula.FromAtom(fresh("is_null_unpacked"))
		if prevIsNull != nil {
			constraints = append(constraints, formula.Iff(na, prevIsNull))
		}
		out.State.IsNull = na
	}
	return out, constraints
}
