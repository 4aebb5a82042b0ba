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

	"nilcheck.dev/nilcheck/internal/fakesrc"
	"nilcheck.dev/nilcheck/nullkind"
	"nilcheck.dev/nilcheck/srcast"
)

func TestNewLatticeWithNilOverridesStartsEmpty(t *testing.T) {
	t.Parallel()

	l := NewLattice(nil)
	_, ok := l.DeclOverride(srcast.USR("c:@F@foo"))
	require.False(t, ok)
}

func TestNewLatticeKeepsSuppliedOverrides(t *testing.T) {
	t.Parallel()

	usr := srcast.USR("c:@F@foo")
	l := NewLattice(map[srcast.USR]nullkind.Vector{usr: {nullkind.NonNull}})
	v, ok := l.DeclOverride(usr)
	require.True(t, ok)
	require.Equal(t, nullkind.Vector{nullkind.NonNull}, v)
}

func TestSetDeclOverrideAffectsRemainderOfIteration(t *testing.T) {
	t.Parallel()

	usr := srcast.USR("c:@F@bar")
	l := NewLattice(nil)
	l.SetDeclOverride(usr, nullkind.Vector{nullkind.Nullable})
	v, ok := l.DeclOverride(usr)
	require.True(t, ok)
	require.Equal(t, nullkind.Vector{nullkind.Nullable}, v)
}

func TestExprCacheIsMonotoneAndKeyedByExprIdentity(t *testing.T) {
	t.Parallel()

	l := NewLattice(nil)
	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	e1 := fakesrc.NewExpr(srcast.ExprDeclRef, fakesrc.NonNullPointer(fakesrc.Scalar("Foo")), fc, srcast.Position{})
	e2 := fakesrc.NewExpr(srcast.ExprDeclRef, fakesrc.NonNullPointer(fakesrc.Scalar("Foo")), fc, srcast.Position{})

	_, ok := l.CachedType(e1)
	require.False(t, ok)

	l.CacheType(e1, nullkind.Vector{nullkind.NonNull})
	v, ok := l.CachedType(e1)
	require.True(t, ok)
	require.Equal(t, nullkind.Vector{nullkind.NonNull}, v)

	_, ok = l.CachedType(e2)
	require.False(t, ok, "two distinct Expr allocations must not alias in the cache even with identical content")
}
