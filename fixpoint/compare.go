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

// Package fixpoint implements the Widen/Merge/Compare support (spec.md 4.5,
// C5) that the flow-sensitive transfer needs to reach a dataflow fixed
// point: merging environments at CFG joins, widening at loop heads, and
// comparing values for equivalence.
package fixpoint

import "nilcheck.dev/nilcheck/ptrval"

// Result is the two-valued outcome of Compare.
type Result uint8

const (
	// Same means the two values are identical by spec.md 4.5's rule.
	Same Result = iota
	// Different means they are not identical.
	Different
)

// Compare implements spec.md 4.5's Compare: two PointerValues are Same only
// when their pointee storage locations are identical and both
// (from_nullable, is_null) atoms are pointer-equal. Formula-equivalence is
// deliberately not checked.
func Compare(a, b ptrval.Value) Result {
	if a.SameIdentity(b) {
		return Same
	}
	return Different
}
