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

// Package formula builds and represents the boolean formulas that the
// nullability engine hands to the SAT/SMT collaborator (spec.md section 6):
// atoms, the literals true/false, and the connectives and/or/not/implies/iff.
//
// Formulas are immutable trees. Two formulas built from the same atoms with
// the same shape are not necessarily `==`; callers that need identity
// comparison (spec.md's PointerNullState atom-identity rules) compare
// *Formula pointers directly, never the trees' structure.
package formula

import "fmt"

// Kind discriminates the node kinds in a formula tree.
type Kind uint8

const (
	// KindTrue is the literal true.
	KindTrue Kind = iota
	// KindFalse is the literal false.
	KindFalse
	// KindAtom wraps an *Atom leaf.
	KindAtom
	// KindNot is logical negation of one child.
	KindNot
	// KindAnd is conjunction of two children.
	KindAnd
	// KindOr is disjunction of two children.
	KindOr
	// KindImplies is implication, Left => Right.
	KindImplies
	// KindIff is biconditional, Left <=> Right.
	KindIff
)

// Atom is an opaque boolean variable. Atoms are compared by pointer identity
// - two Atoms with the same Name are still distinct variables unless they
// are literally the same *Atom. This mirrors spec.md's PointerNullState,
// whose "atom identity" is what PointerValue equality (C5 Compare) hinges on.
type Atom struct {
	// Name is a short, human-readable label used only for debugging and
	// diagnostic prestrings; it plays no role in equality.
	Name string
}

// NewAtom allocates a fresh, uniquely-identified atom.
func NewAtom(name string) *Atom {
	return &Atom{Name: name}
}

func (a *Atom) String() string {
	if a == nil {
		return "<nil-atom>"
	}
	return a.Name
}

// Formula is an immutable boolean-formula node.
type Formula struct {
	kind        Kind
	atom        *Atom
	left, right *Formula
}

var (
	trueFormula  = &Formula{kind: KindTrue}
	falseFormula = &Formula{kind: KindFalse}
)

// True returns the singleton literal-true formula. It is always the same
// *Formula instance, so pointer-identity comparisons (as fixpoint.Compare
// performs) treat every "true" as equal.
func True() *Formula { return trueFormula }

// False returns the singleton literal-false formula; see True.
func False() *Formula { return falseFormula }

// FromAtom lifts an atom into a formula.
func FromAtom(a *Atom) *Formula {
	return &Formula{kind: KindAtom, atom: a}
}

// Not negates f.
func Not(f *Formula) *Formula {
	if f.kind == KindTrue {
		return False()
	}
	if f.kind == KindFalse {
		return True()
	}
	return &Formula{kind: KindNot, left: f}
}

// And conjoins two formulas, short-circuiting on literals.
func And(l, r *Formula) *Formula {
	switch {
	case l.kind == KindFalse || r.kind == KindFalse:
		return False()
	case l.kind == KindTrue:
		return r
	case r.kind == KindTrue:
		return l
	}
	return &Formula{kind: KindAnd, left: l, right: r}
}

// Or disjoins two formulas, short-circuiting on literals.
func Or(l, r *Formula) *Formula {
	switch {
	case l.kind == KindTrue || r.kind == KindTrue:
		return True()
	case l.kind == KindFalse:
		return r
	case r.kind == KindFalse:
		return l
	}
	return &Formula{kind: KindOr, left: l, right: r}
}

// Implies builds l => r.
func Implies(l, r *Formula) *Formula {
	if l.kind == KindFalse || r.kind == KindTrue {
		return True()
	}
	if l.kind == KindTrue {
		return r
	}
	return &Formula{kind: KindImplies, left: l, right: r}
}

// Iff builds l <=> r.
func Iff(l, r *Formula) *Formula {
	if l.kind == KindTrue {
		return r
	}
	if r.kind == KindTrue {
		return l
	}
	return &Formula{kind: KindIff, left: l, right: r}
}

// Kind reports the node kind.
func (f *Formula) Kind() Kind { return f.kind }

// Atom returns the wrapped atom; only valid when Kind() == KindAtom.
func (f *Formula) Atom() *Atom { return f.atom }

// Left returns the left (or sole, for Not) child; nil for leaves.
func (f *Formula) Left() *Formula { return f.left }

// Right returns the right child; nil for Not and leaves.
func (f *Formula) Right() *Formula { return f.right }

// IsLiteral reports whether f is the literal true or false.
func (f *Formula) IsLiteral() bool {
	return f.kind == KindTrue || f.kind == KindFalse
}

// IsTrue reports whether f is literally true.
func (f *Formula) IsTrue() bool { return f.kind == KindTrue }

// IsFalse reports whether f is literally false.
func (f *Formula) IsFalse() bool { return f.kind == KindFalse }

func (f *Formula) String() string {
	switch f.kind {
	case KindTrue:
		return "true"
	case KindFalse:
		return "false"
	case KindAtom:
		return f.atom.String()
	case KindNot:
		return fmt.Sprintf("!(%s)", f.left)
	case KindAnd:
		return fmt.Sprintf("(%s && %s)", f.left, f.right)
	case KindOr:
		return fmt.Sprintf("(%s || %s)", f.left, f.right)
	case KindImplies:
		return fmt.Sprintf("(%s => %s)", f.left, f.right)
	case KindIff:
		return fmt.Sprintf("(%s <=> %s)", f.left, f.right)
	default:
		return "<invalid formula>"
	}
}
