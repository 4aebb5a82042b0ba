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
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFreshAtomLabelsAreUniquePerCall(t *testing.T) {
	t.Parallel()

	a := NewArena()
	first := a.FreshAtom("is_null")
	second := a.FreshAtom("is_null")
	require.NotSame(t, first, second)
	require.NotEqual(t, first.String(), second.String())
}

func TestNewTemporaryAllocatesDistinctExprIDs(t *testing.T) {
	t.Parallel()

	a := NewArena()
	first := a.NewTemporary()
	second := a.NewTemporary()
	require.NotEqual(t, first.ExprID, second.ExprID)
}

func TestTopLocationCanonicalizesPerTypeKey(t *testing.T) {
	t.Parallel()

	a := NewArena()
	require.Same(t, a.TopLocation("Foo"), a.TopLocation("Foo"))
	require.NotSame(t, a.TopLocation("Foo"), a.TopLocation("Bar"))
}
