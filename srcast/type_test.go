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

package srcast_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"nilcheck.dev/nilcheck/internal/fakesrc"
	"nilcheck.dev/nilcheck/srcast"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCountPointersOnScalarIsZero(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, srcast.CountPointers(fakesrc.Scalar("int")))
}

func TestCountPointersOnNilIsZero(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, srcast.CountPointers(nil))
}

func TestCountPointersCountsEachPointerLevel(t *testing.T) {
	t.Parallel()

	ppFoo := fakesrc.NullablePointer(fakesrc.NonNullPointer(fakesrc.Scalar("Foo")))
	require.Equal(t, 2, srcast.CountPointers(ppFoo))
}

func TestCountPointersSumsAcrossTemplateArgs(t *testing.T) {
	t.Parallel()

	boxed := fakesrc.Named("Box",
		fakesrc.NonNullPointer(fakesrc.Scalar("Foo")),
		fakesrc.NullablePointer(fakesrc.Scalar("Bar")),
	)
	require.Equal(t, 2, srcast.CountPointers(boxed))
}

func TestCountPointersOnPackParamIsPackWidth(t *testing.T) {
	t.Parallel()

	require.Equal(t, 3, srcast.CountPointers(fakesrc.PackParam(0, 3)))
}

func TestCountPointersOnNonPackTemplateParamIsZero(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, srcast.CountPointers(fakesrc.TemplateParam(0)))
}
