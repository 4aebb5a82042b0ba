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

// Package lattice implements the per-function Lattice (spec.md 4.3, C3):
// the expression-nullability cache, declaration-override map, and
// const-method memoization, plus the Environment/Arena machinery they run
// on top of.
package lattice

import (
	"fmt"
	"sync/atomic"

	"nilcheck.dev/nilcheck/formula"
	"nilcheck.dev/nilcheck/storage"
)

// Arena owns every allocation (atoms, storage locations) whose lifetime is
// tied to one analysis invocation (spec.md 5): "all allocations... are
// owned by an arena tied to the analysis context." There is no global
// mutable state outside an Arena instance.
type Arena struct {
	atomSeq atomic.Int64
	exprSeq atomic.Int64
	tops    *storage.TopInterner
}

// NewArena returns a fresh, empty Arena.
func NewArena() *Arena {
	return &Arena{tops: storage.NewTopInterner()}
}

// FreshAtom mints a new, uniquely-identified boolean atom labeled for
// debugging as "<label>#<n>".
func (a *Arena) FreshAtom(label string) *formula.Atom {
	n := a.atomSeq.Add(1)
	return formula.NewAtom(fmt.Sprintf("%s#%d", label, n))
}

// NewTemporary allocates a fresh Temporary storage location for a
// materialization site with no durable storage of its own.
func (a *Arena) NewTemporary() *storage.Temporary {
	n := a.exprSeq.Add(1)
	return &storage.Temporary{ExprID: int(n)}
}

// TopLocation returns the canonical widened placeholder location for the
// pointee type identified by typeKey (spec.md 4.5, GLOSSARY "Top storage
// location").
func (a *Arena) TopLocation(typeKey string) *storage.Top {
	return a.tops.Intern(typeKey)
}
