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

// Package diagnostic implements the Diagnoser (spec.md 4.6.1, C6.1): the
// walk that turns proven/unproven nullability facts about an expression
// into a user-visible finding.
package diagnostic

import (
	"fmt"

	"nilcheck.dev/nilcheck/formula"
	"nilcheck.dev/nilcheck/lattice"
	"nilcheck.dev/nilcheck/nullkind"
	"nilcheck.dev/nilcheck/srcast"
	"nilcheck.dev/nilcheck/transfer"
)

// Code classifies what went wrong.
type Code uint8

const (
	// ExpectedNonNull means a value proven (or assumed) possibly-null flowed
	// somewhere a non-null value was required.
	ExpectedNonNull Code = iota
	// Untracked means the engine couldn't establish either NonNull or
	// Nullable for a value that needed checking - a non-fatal warning, not
	// a proof of a bug (spec.md 4.6.1, 7).
	Untracked
	// AssertFailed means a `__assert_nullability` call's argument has a
	// computed nullability vector that differs from the asserted kinds.
	AssertFailed
)

func (c Code) String() string {
	switch c {
	case ExpectedNonNull:
		return "expected-nonnull"
	case Untracked:
		return "untracked"
	case AssertFailed:
		return "assert-failed"
	default:
		return "unknown"
	}
}

// Context classifies where in the source the finding occurred.
type Context uint8

const (
	// NullableDereference is a dereference, subscript, or arrow access.
	NullableDereference Context = iota
	// FunctionArgument is a call argument passed to a NonNull parameter.
	FunctionArgument
	// ReturnValue is a `return` statement returning a possibly-null value
	// from a NonNull-declared function.
	ReturnValue
	// Initializer is a member initializer or variable initializer assigning
	// a possibly-null value to a NonNull-declared slot.
	Initializer
	// Other covers `__assert_nullability` and any context not covered above.
	Other
)

func (c Context) String() string {
	switch c {
	case NullableDereference:
		return "dereference"
	case FunctionArgument:
		return "argument"
	case ReturnValue:
		return "return"
	case Initializer:
		return "initializer"
	default:
		return "other"
	}
}

// Diagnostic is one user-visible finding.
type Diagnostic struct {
	Code     Code
	Context  Context
	Position srcast.Position
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s [%s/%s]", d.Position, d.Message, d.Code, d.Context)
}

// mayBeNull reports whether e's nullability is tracked at all, and if so
// whether env fails to prove it non-null - i.e. it may be null along some
// path consistent with the current flow condition.
func mayBeNull(e srcast.Expr, env *lattice.Environment, ctx *transfer.Context) (unsafe, tracked bool) {
	v := transfer.ValueOf(e, env, ctx)
	if v.State.IsNull == nil {
		return false, false
	}
	tracked = true
	unsafe = !env.Proves(ctx.Solver, formula.Not(v.State.IsNull))
	return
}

// CheckDereference implements spec.md 4.6.1's dereference/subscript/arrow
// rule: report ExpectedNonNull if e is provably (or unprovenly) nullable,
// or Untracked if neither NonNull nor Nullable can be established.
func CheckDereference(e srcast.Expr, env *lattice.Environment, ctx *transfer.Context) []Diagnostic {
	unsafe, tracked := mayBeNull(e, env, ctx)
	if !tracked {
		return []Diagnostic{{
			Code: Untracked, Context: NullableDereference, Position: e.Pos(),
			Message: "nullability of dereferenced expression could not be established",
		}}
	}
	if unsafe {
		return []Diagnostic{{
			Code: ExpectedNonNull, Context: NullableDereference, Position: e.Pos(),
			Message: "dereference of a possibly-null pointer",
		}}
	}
	return nil
}

// paramIsNonNull reports whether callee's parameter paramIdx is declared
// (or overridden) NonNull at its outermost pointer slot. It consults the
// lattice's decl-override map first, falling through to the parameter's
// declared type, matching how the type transfer resolves DeclRef expressions
// for parameters (spec.md 4.4.1, 4.1).
func paramIsNonNull(callee srcast.Decl, paramIdx int, lat *lattice.Lattice) bool {
	t := callee.ParamType(paramIdx)
	if t == nil || t.Kind() != srcast.KindPointer {
		return false
	}
	usr := callee.ParamUSR(paramIdx)
	if override, ok := lat.DeclOverride(usr); ok {
		return len(override) > 0 && override[0] == nullkind.NonNull
	}
	vec := nullkind.TypeNullability(t, nullkind.DefaultsFromFile(callee.File()))
	return len(vec) > 0 && vec[0] == nullkind.NonNull
}

// CheckArgument implements spec.md 4.6.1's call-argument rule: for each
// pointer-typed argument whose corresponding parameter is NonNull-declared,
// report ExpectedNonNull or Untracked. Variadic calls round the parameter
// index down to the last declared parameter, matching the call-site key
// rounding convention of spec.md 4.6.1.
func CheckArgument(call srcast.Expr, env *lattice.Environment, ctx *transfer.Context) []Diagnostic {
	callee := call.DeclRef()
	if callee == nil {
		return nil
	}
	var out []Diagnostic
	for i, a := range call.Args() {
		if a == nil || a.Type() == nil || a.Type().Kind() != srcast.KindPointer {
			continue
		}
		pi := i
		if callee.Variadic() && pi >= callee.NumParams() {
			pi = callee.NumParams() - 1
		}
		if pi < 0 || pi >= callee.NumParams() || !paramIsNonNull(callee, pi, ctx.Lat) {
			continue
		}
		unsafe, tracked := mayBeNull(a, env, ctx)
		if !tracked {
			out = append(out, Diagnostic{
				Code: Untracked, Context: FunctionArgument, Position: a.Pos(),
				Message: fmt.Sprintf("nullability of argument %d could not be established", i),
			})
			continue
		}
		if unsafe {
			out = append(out, Diagnostic{
				Code: ExpectedNonNull, Context: FunctionArgument, Position: a.Pos(),
				Message: fmt.Sprintf("possibly-null value passed to non-null parameter %d", i),
			})
		}
	}
	return out
}

// CheckReturn implements spec.md 4.6.1's return rule: if fn is declared
// NonNull at slot 0 and the returned expression may be null, report
// ExpectedNonNull (or Untracked if untrackable).
func CheckReturn(fn srcast.Decl, retExpr srcast.Expr, env *lattice.Environment, ctx *transfer.Context) []Diagnostic {
	if retExpr == nil || retExpr.Type() == nil || retExpr.Type().Kind() != srcast.KindPointer {
		return nil
	}
	declVec := nullkind.TypeNullability(fn.DeclaredType(), nullkind.DefaultsFromFile(fn.File()))
	if override, ok := ctx.Lat.DeclOverride(fn.USR()); ok {
		declVec = override
	}
	if len(declVec) == 0 || declVec[0] != nullkind.NonNull {
		return nil
	}
	unsafe, tracked := mayBeNull(retExpr, env, ctx)
	if !tracked {
		return []Diagnostic{{
			Code: Untracked, Context: ReturnValue, Position: retExpr.Pos(),
			Message: "nullability of returned expression could not be established",
		}}
	}
	if unsafe {
		return []Diagnostic{{
			Code: ExpectedNonNull, Context: ReturnValue, Position: retExpr.Pos(),
			Message: "possibly-null value returned from a non-null-declared function",
		}}
	}
	return nil
}

// CheckInitializer implements spec.md 4.6.1's member/variable initializer
// rule: if field is declared NonNull and initExpr may be null, report
// ExpectedNonNull (or Untracked).
func CheckInitializer(field srcast.Decl, initExpr srcast.Expr, env *lattice.Environment, ctx *transfer.Context) []Diagnostic {
	if initExpr == nil || field.DeclaredType() == nil || field.DeclaredType().Kind() != srcast.KindPointer {
		return nil
	}
	declVec := nullkind.TypeNullability(field.DeclaredType(), nullkind.DefaultsFromFile(field.File()))
	if override, ok := ctx.Lat.DeclOverride(field.USR()); ok {
		declVec = override
	}
	if len(declVec) == 0 || declVec[0] != nullkind.NonNull {
		return nil
	}
	unsafe, tracked := mayBeNull(initExpr, env, ctx)
	if !tracked {
		return []Diagnostic{{
			Code: Untracked, Context: Initializer, Position: initExpr.Pos(),
			Message: fmt.Sprintf("nullability of initializer for %q could not be established", field.Name()),
		}}
	}
	if unsafe {
		return []Diagnostic{{
			Code: ExpectedNonNull, Context: Initializer, Position: initExpr.Pos(),
			Message: fmt.Sprintf("possibly-null value initializes non-null field %q", field.Name()),
		}}
	}
	return nil
}

// CheckDefaultArgument implements the default-argument rule (spec.md
// 4.6.1): a default argument expression is checked exactly like an ordinary
// call argument, against the parameter it defaults.
func CheckDefaultArgument(callee srcast.Decl, paramIdx int, defaultExpr srcast.Expr, env *lattice.Environment, ctx *transfer.Context) []Diagnostic {
	if defaultExpr == nil || !paramIsNonNull(callee, paramIdx, ctx.Lat) {
		return nil
	}
	unsafe, tracked := mayBeNull(defaultExpr, env, ctx)
	if !tracked {
		return []Diagnostic{{
			Code: Untracked, Context: FunctionArgument, Position: defaultExpr.Pos(),
			Message: fmt.Sprintf("nullability of default argument %d could not be established", paramIdx),
		}}
	}
	if unsafe {
		return []Diagnostic{{
			Code: ExpectedNonNull, Context: FunctionArgument, Position: defaultExpr.Pos(),
			Message: fmt.Sprintf("possibly-null default value for non-null parameter %d", paramIdx),
		}}
	}
	return nil
}

// CheckAssertion implements `__assert_nullability<NK1,NK2,...>(expr)`
// (spec.md section 6): it compares expr's computed TypeNullability vector
// against the asserted template-argument kind list slot by slot, reporting
// AssertFailed at the first mismatch. A length mismatch is itself a failure,
// reported once against the whole expression.
func CheckAssertion(arg srcast.Expr, asserted nullkind.Vector, lat *lattice.Lattice) []Diagnostic {
	got := transfer.TypeOf(arg, lat)
	if len(got) != len(asserted) {
		return []Diagnostic{{
			Code: AssertFailed, Context: Other, Position: arg.Pos(),
			Message: fmt.Sprintf("__assert_nullability: expected %d nullability slot(s), computed %d", len(asserted), len(got)),
		}}
	}
	var out []Diagnostic
	for i := range asserted {
		if got[i] != asserted[i] {
			out = append(out, Diagnostic{
				Code: AssertFailed, Context: Other, Position: arg.Pos(),
				Message: fmt.Sprintf("__assert_nullability: slot %d asserted %s, computed %s", i, asserted[i], got[i]),
			})
		}
	}
	return out
}
