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

package inference

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"nilcheck.dev/nilcheck/config"
	"nilcheck.dev/nilcheck/evidence"
	"nilcheck.dev/nilcheck/nullkind"
	"nilcheck.dev/nilcheck/srcast"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRecordThenFinalizeProducesStrongNonNullInference(t *testing.T) {
	t.Parallel()

	en := NewEngine(nil)
	en.Record(evidence.Evidence{Declaration: "c:@p", Slot: 0, Kind: evidence.UncheckedDereference})

	infs := en.Finalize()
	require.Len(t, infs, 1)
	require.Equal(t, Slot{Declaration: "c:@p", Index: 0}, infs[0].Slot)
	require.Equal(t, nullkind.NonNull, infs[0].Kind)
	require.False(t, infs[0].Conflict)
}

func TestFinalizeResolvesConflictingStrongEvidenceToNullable(t *testing.T) {
	t.Parallel()

	en := NewEngine(nil)
	en.Record(evidence.Evidence{Declaration: "c:@p", Slot: 0, Kind: evidence.NullableArgument})
	en.Record(evidence.Evidence{Declaration: "c:@p", Slot: 0, Kind: evidence.NonNullArgument})

	infs := en.Finalize()
	require.Len(t, infs, 1)
	require.Equal(t, nullkind.Nullable, infs[0].Kind)
	require.True(t, infs[0].Conflict)
}

func TestFinalizeResolvesConflictToNonNullWhenDereferenceIsAmongStrongEvidence(t *testing.T) {
	t.Parallel()

	en := NewEngine(nil)
	en.Record(evidence.Evidence{Declaration: "c:@p", Slot: 0, Kind: evidence.NullableArgument})
	en.Record(evidence.Evidence{Declaration: "c:@p", Slot: 0, Kind: evidence.UncheckedDereference})

	infs := en.Finalize()
	require.Len(t, infs, 1)
	require.Equal(t, nullkind.NonNull, infs[0].Kind, "an unchecked dereference among the strong-NonNull evidence must win the conflict")
	require.True(t, infs[0].Conflict)
}

func TestFinalizeBreaksWeakTiesTowardNullable(t *testing.T) {
	t.Parallel()

	en := NewEngine(nil)
	en.Record(evidence.Evidence{Declaration: "c:@f", Slot: 0, Kind: evidence.DefaultMemberInitializerNull})

	infs := en.Finalize()
	require.Len(t, infs, 1)
	require.Equal(t, nullkind.Nullable, infs[0].Kind)
	require.False(t, infs[0].Conflict)
}

func TestSuppressInferenceExcludesPragmaMarkedDeclarationsFromOutput(t *testing.T) {
	t.Parallel()

	en := NewEngine(nil)
	en.SuppressInference("c:@q")
	en.Record(evidence.Evidence{Declaration: "c:@q", Slot: 0, Kind: evidence.UncheckedDereference})
	en.Record(evidence.Evidence{Declaration: "c:@r", Slot: 0, Kind: evidence.UncheckedDereference})

	infs := en.Finalize()
	require.Len(t, infs, 1)
	require.Equal(t, srcast.USR("c:@r"), infs[0].Slot.Declaration)
}

func TestRegisterGroupPoolsEvidenceAcrossSlotsIntoOneInference(t *testing.T) {
	t.Parallel()

	en := NewEngine(nil)
	en.RegisterGroup(Group{
		ID: "virtual:Base::f",
		Slots: []Slot{
			{Declaration: "c:@Base::f", Index: 0},
			{Declaration: "c:@Derived::f", Index: 0},
		},
	})
	en.Record(evidence.Evidence{Declaration: "c:@Base::f", Slot: 0, Kind: evidence.NonNullArgument})
	en.Record(evidence.Evidence{Declaration: "c:@Derived::f", Slot: 0, Kind: evidence.NullableArgument})

	infs := en.Finalize()
	require.Len(t, infs, 1, "both slots must pool into a single virtual-method inference")
	require.Equal(t, nullkind.Nullable, infs[0].Kind)
	require.True(t, infs[0].Conflict)
	require.Equal(t, srcast.USR("c:@Base::f"), infs[0].Slot.Declaration, "the first-recorded slot is the group's representative")
}

func TestFinalizeSortsByDeclarationThenSlotIndex(t *testing.T) {
	t.Parallel()

	en := NewEngine(nil)
	en.Record(evidence.Evidence{Declaration: "c:@b", Slot: 0, Kind: evidence.UncheckedDereference})
	en.Record(evidence.Evidence{Declaration: "c:@a", Slot: 1, Kind: evidence.UncheckedDereference})
	en.Record(evidence.Evidence{Declaration: "c:@a", Slot: 0, Kind: evidence.UncheckedDereference})

	infs := en.Finalize()
	require.Len(t, infs, 3)

	var gotSlots []Slot
	for _, inf := range infs {
		gotSlots = append(gotSlots, inf.Slot)
	}
	wantSlots := []Slot{
		{Declaration: "c:@a", Index: 0},
		{Declaration: "c:@a", Index: 1},
		{Declaration: "c:@b", Index: 0},
	}
	if diff := cmp.Diff(wantSlots, gotSlots); diff != "" {
		t.Errorf("Finalize() slot order mismatch (-want +got):\n%s", diff)
	}
}

func TestOverridesBuildsPerDeclarationVectorIndexedBySlot(t *testing.T) {
	t.Parallel()

	infs := []Inference{
		{Slot: Slot{Declaration: "c:@f", Index: 1}, Kind: nullkind.NonNull},
		{Slot: Slot{Declaration: "c:@f", Index: 0}, Kind: nullkind.Nullable},
		{Slot: Slot{Declaration: "c:@g", Index: 0}, Kind: nullkind.NonNull},
	}

	overrides := Overrides(infs)
	require.Equal(t, nullkind.Vector{nullkind.Nullable, nullkind.NonNull}, overrides["c:@f"])
	require.Equal(t, nullkind.Vector{nullkind.NonNull}, overrides["c:@g"])
}

func TestOverridesLeavesUnassignedSlotsUnspecified(t *testing.T) {
	t.Parallel()

	infs := []Inference{
		{Slot: Slot{Declaration: "c:@f", Index: 2}, Kind: nullkind.NonNull},
	}

	overrides := Overrides(infs)
	require.Equal(t, nullkind.Vector{nullkind.Unspecified, nullkind.Unspecified, nullkind.NonNull}, overrides["c:@f"])
}

func TestFinalizeCapsSamplesPerDirectionAtConfiguredMax(t *testing.T) {
	t.Parallel()

	en := NewEngine(nil)
	for i := 0; i < config.MaxSamplesPerSlot+3; i++ {
		en.Record(evidence.Evidence{
			Declaration: "c:@p",
			Slot:        0,
			Kind:        evidence.NullableArgument,
			Location:    srcast.Position{File: "a.h", Line: i},
		})
	}

	infs := en.Finalize()
	require.Len(t, infs, 1)
	require.Len(t, infs[0].Samples[evidence.TowardNullable], config.MaxSamplesPerSlot)
}
