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

package nullkind

import "nilcheck.dev/nilcheck/srcast"

// DefaultsFromFile derives the Defaults to use for slots declared in fc's
// file, from that file's pragma file_default (spec.md section 6). A nil
// FileContext yields Unspecified, matching a file with no pragma.
func DefaultsFromFile(fc *srcast.FileContext) Defaults {
	if fc == nil {
		return Defaults{FileDefault: Unspecified}
	}
	switch fc.Default {
	case srcast.DefaultNonNull:
		return Defaults{FileDefault: NonNull}
	case srcast.DefaultNullable:
		return Defaults{FileDefault: Nullable}
	default:
		return Defaults{FileDefault: Unspecified}
	}
}
