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

package engine

import "errors"

// ErrCFGConstruction is returned (wrapped with the function's name) when the
// AST provider could not build a CFG for a function, per spec.md 4.6.3:
// this aborts analysis of that one function only, never the whole run.
var ErrCFGConstruction = errors.New("engine: CFG construction failed")

// ErrBlockVisitCap is returned (wrapped) when a function's fixed-point
// iteration exceeds config.BlockVisitCap revisits of a single basic block,
// per spec.md 5 and 7. Like ErrCFGConstruction, this aborts only the
// enclosing function.
var ErrBlockVisitCap = errors.New("engine: block visit cap exceeded")

// FunctionError pairs one of the sentinel errors above with the function it
// occurred in, so a caller iterating many functions can report which ones
// failed without aborting the whole translation unit (spec.md 7).
type FunctionError struct {
	Function string
	Err      error
}

func (e *FunctionError) Error() string { return "engine: " + e.Function + ": " + e.Err.Error() }
func (e *FunctionError) Unwrap() error { return e.Err }
