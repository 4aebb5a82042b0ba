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
	"nilcheck.dev/nilcheck/nullkind"
	"nilcheck.dev/nilcheck/srcast"
	"nilcheck.dev/nilcheck/storage"
)

// Lattice is the per-function state of spec.md 3/4.3: the expression
// nullability cache (monotone, path-independent) and the declaration
// override map supplied by the current inference iteration. The
// const-method memo, being path-sensitive, lives on Environment instead
// (spec.md 4.3).
//
// Lattice also owns the per-function Location interning table: the value
// transfer must resolve the same variable, "this", or field reference to
// the identical storage.Location every time it is asked, or Environment's
// map-keyed tracking would never see two occurrences of the same variable
// as the same location.
type Lattice struct {
	exprCache     map[srcast.Expr]nullkind.Vector
	declOverrides map[srcast.USR]nullkind.Vector
	locations     map[string]storage.Location
}

// NewLattice returns an empty Lattice with the given declaration overrides
// (the previous inference iteration's conclusions, or nil for the first
// iteration).
func NewLattice(declOverrides map[srcast.USR]nullkind.Vector) *Lattice {
	if declOverrides == nil {
		declOverrides = make(map[srcast.USR]nullkind.Vector)
	}
	return &Lattice{
		exprCache:     make(map[srcast.Expr]nullkind.Vector),
		declOverrides: declOverrides,
		locations:     make(map[string]storage.Location),
	}
}

// InternLocation returns the Location previously interned under key,
// allocating it via make on the first request. Callers key variables by
// USR and fields by their base location plus field name, so that every
// syntactic occurrence of the same storage site resolves to one Location.
func (l *Lattice) InternLocation(key string, make func() storage.Location) storage.Location {
	if loc, ok := l.locations[key]; ok {
		return loc
	}
	loc := make()
	l.locations[key] = loc
	return loc
}

// CachedType returns the memoized TypeNullability for e, if the type
// transfer has already visited it.
func (l *Lattice) CachedType(e srcast.Expr) (nullkind.Vector, bool) {
	v, ok := l.exprCache[e]
	return v, ok
}

// CacheType records e's computed TypeNullability. The cache is monotone: it
// is only ever populated, never invalidated, matching spec.md 4.3's
// "computed bottom-up and monotone."
func (l *Lattice) CacheType(e srcast.Expr, v nullkind.Vector) {
	l.exprCache[e] = v
}

// DeclOverride returns the symbolic nullability assigned to decl by the
// current inference iteration, if any (spec.md 3, "assignNullabilityVariable").
func (l *Lattice) DeclOverride(decl srcast.USR) (nullkind.Vector, bool) {
	v, ok := l.declOverrides[decl]
	return v, ok
}

// SetDeclOverride assigns decl's symbolic nullability for the remainder of
// this iteration.
func (l *Lattice) SetDeclOverride(decl srcast.USR, v nullkind.Vector) {
	l.declOverrides[decl] = v
}
