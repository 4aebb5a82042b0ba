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

// Package storage models the abstract storage locations pointers can point
// to: variables, fields, temporaries materialized during evaluation, and
// the canonical "top" location used by widening (spec.md 4.5, GLOSSARY).
package storage

import "fmt"

// Location is a pointee storage location. Two Locations are the same
// location iff they compare == under Go's interface equality, which holds
// for the pointer-backed kinds below because each is allocated once per
// distinct storage site.
type Location interface {
	// String returns a short debugging label.
	String() string
	isLocation()
}

// Variable identifies a named local or global storage slot.
type Variable struct {
	Name string
	USR  string // the declaring declaration's USR, disambiguates shadowing
}

func (v *Variable) String() string { return fmt.Sprintf("var(%s)", v.Name) }
func (*Variable) isLocation()      {}

// Field identifies a field within a record instance rooted at Base.
type Field struct {
	Base      Location
	FieldName string
}

func (f *Field) String() string { return fmt.Sprintf("%s.%s", f.Base, f.FieldName) }
func (*Field) isLocation()      {}

// Temporary identifies a value materialized during evaluation of one
// expression that has no durable storage of its own (e.g. the result of
// `new`, or an unpacked lvalue-to-rvalue conversion).
type Temporary struct {
	// ExprID is a stable, per-analysis-run identifier for the expression
	// that produced this temporary.
	ExprID int
}

func (t *Temporary) String() string { return fmt.Sprintf("tmp#%d", t.ExprID) }
func (*Temporary) isLocation()      {}

// Top is the canonical placeholder pointee introduced by widening (spec.md
// 4.5): it commits to nothing beyond the pointee's static type, so that a
// widened value stays stable across further loop iterations. Two Top
// locations with the same TypeKey obtained from the same TopInterner are
// the same location by construction (see TopInterner.Intern).
type Top struct {
	TypeKey string
}

func (t *Top) String() string { return fmt.Sprintf("top(%s)", t.TypeKey) }
func (*Top) isLocation()      {}

// TopInterner canonicalizes Top locations per pointee type so that widening
// two paths that both produce Top for the same pointee type yields the
// identical Location, which fixpoint.Compare then reports as Same. One
// TopInterner is owned per analysis arena (lattice.Arena embeds one).
type TopInterner struct {
	byType map[string]*Top
}

// NewTopInterner returns an empty canonicalization cache.
func NewTopInterner() *TopInterner {
	return &TopInterner{byType: make(map[string]*Top)}
}

// Intern returns the canonical Top location for typeKey, allocating on the
// first request.
func (c *TopInterner) Intern(typeKey string) *Top {
	if t, ok := c.byType[typeKey]; ok {
		return t
	}
	t := &Top{TypeKey: typeKey}
	c.byType[typeKey] = t
	return t
}
