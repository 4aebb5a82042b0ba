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

package transfer

import (
	"nilcheck.dev/nilcheck/formula"
	"nilcheck.dev/nilcheck/lattice"
	"nilcheck.dev/nilcheck/nullkind"
	"nilcheck.dev/nilcheck/ptrval"
	"nilcheck.dev/nilcheck/solver"
	"nilcheck.dev/nilcheck/srcast"
	"nilcheck.dev/nilcheck/storage"
)

// Context bundles the collaborators the value transfer needs beyond the
// expression itself and the current environment: the arena that owns fresh
// atoms and temporaries, the lattice that answers type-transfer queries, the
// solver used to decide comparisons, and the translation unit consulted for
// smart-pointer classification (spec.md section 6).
type Context struct {
	Arena  *lattice.Arena
	Lat    *lattice.Lattice
	Solver solver.Solver
	TU     srcast.TranslationUnit
}

func (c *Context) fresh(label string) *formula.Atom { return c.Arena.FreshAtom(label) }

// LocationOf computes the storage location a glvalue expression denotes,
// per spec.md 4.4.2. Prvalues that never have durable storage (calls, new,
// arithmetic) get a fresh Temporary, matching a materialization site with no
// storage of its own.
func LocationOf(e srcast.Expr, env *lattice.Environment, ctx *Context) storage.Location {
	if e == nil {
		return ctx.Arena.NewTemporary()
	}
	switch e.Kind() {
	case srcast.ExprDeclRef:
		d := e.DeclRef()
		if d == nil {
			return ctx.Arena.NewTemporary()
		}
		usr := d.USR()
		return ctx.Lat.InternLocation("var:"+string(usr), func() storage.Location {
			return &storage.Variable{Name: d.Name(), USR: string(usr)}
		})
	case srcast.ExprThis:
		return ctx.Lat.InternLocation("this", func() storage.Location {
			return &storage.Variable{Name: "this"}
		})
	case srcast.ExprMemberAccess:
		d := e.DeclRef()
		name := ""
		if d != nil {
			name = d.Name()
		}
		base := LocationOf(e.Receiver(), env, ctx)
		return ctx.Lat.InternLocation("field:"+base.String()+"."+name, func() storage.Location {
			return &storage.Field{Base: base, FieldName: name}
		})
	case srcast.ExprDereference:
		sub := subExpr(e, 0)
		v := ValueOf(sub, env, ctx)
		if v.Pointee != nil {
			return v.Pointee
		}
		return ctx.Arena.NewTemporary()
	case srcast.ExprSubscript:
		base := subExpr(e, 0)
		v := ValueOf(base, env, ctx)
		if v.Pointee != nil {
			return v.Pointee
		}
		return ctx.Arena.NewTemporary()
	case srcast.ExprCast:
		if e.CastKind() == srcast.CastIdentity {
			return LocationOf(subExpr(e, 0), env, ctx)
		}
		return ctx.Arena.NewTemporary()
	default:
		return ctx.Arena.NewTemporary()
	}
}

// ValueOf evaluates e's PointerValue in env, per the dispatch table of
// spec.md 4.4.2, fetching or materializing a Value in env as a side effect
// whenever e denotes storage. e must be pointer-typed.
func ValueOf(e srcast.Expr, env *lattice.Environment, ctx *Context) ptrval.Value {
	if e == nil {
		return ptrval.Value{State: ptrval.Top()}
	}
	switch e.Kind() {
	case srcast.ExprNullLiteral:
		return ptrval.Value{Pointee: nil, State: ptrval.Init(nil, true, ctx.fresh)}
	case srcast.ExprAddressOf:
		return ptrval.Value{
			Pointee: LocationOf(subExpr(e, 0), env, ctx),
			State:   ptrval.State{FromNullable: formula.False(), IsNull: formula.False()},
		}
	case srcast.ExprNew:
		return newValue(e, ctx)
	case srcast.ExprCast:
		return castValue(e, env, ctx)
	case srcast.ExprCall:
		return callValue(e, env, ctx, false)
	case srcast.ExprMemberCall:
		return memberCallValue(e, env, ctx)
	case srcast.ExprAssign:
		return assignValue(e, env, ctx)
	case srcast.ExprDeclRef, srcast.ExprMemberAccess, srcast.ExprDereference,
		srcast.ExprSubscript, srcast.ExprThis:
		return fetchOrInit(e, env, ctx)
	default:
		return fetchOrInit(e, env, ctx)
	}
}

func newValue(e srcast.Expr, ctx *Context) ptrval.Value {
	loc := ctx.Arena.NewTemporary()
	var kind nullkind.Kind
	if e.MayReturnNull() {
		kind = nullkind.Nullable
	} else {
		kind = nullkind.NonNull
	}
	return ptrval.Value{Pointee: loc, State: ptrval.Init(&kind, false, ctx.fresh)}
}

// fetchOrInit implements the "pointer expression fetch-or-create, then
// lvalue-to-rvalue unpack" rule (spec.md 4.4.2): if e's location already has
// a tracked Value in env, that value is unpacked (any top property
// materialized as a fresh atom, constrained equal to any prior known value)
// and re-stored; otherwise a fresh Value is initialized from the static
// nullability hint from the type transfer.
func fetchOrInit(e srcast.Expr, env *lattice.Environment, ctx *Context) ptrval.Value {
	loc := LocationOf(e, env, ctx)
	if v, ok := env.Get(loc); ok {
		unpacked, constraints := ptrval.Unpack(v, v.State.FromNullable, v.State.IsNull, ctx.fresh)
		for _, c := range constraints {
			env.Assume(c)
		}
		env.Set(loc, unpacked)
		return unpacked
	}

	vec := TypeOf(e, ctx.Lat)
	var hint *nullkind.Kind
	if len(vec) > 0 {
		k := vec[0]
		hint = &k
	}
	v := ptrval.Value{Pointee: pointeeFor(e, ctx), State: ptrval.Init(hint, false, ctx.fresh)}
	env.Set(loc, v)
	return v
}

// pointeeFor allocates the placeholder location a freshly-initialized
// pointer expression points at: a Top location keyed by the pointee's
// static type, matching what widening would eventually collapse it to
// anyway (spec.md 4.5, GLOSSARY).
func pointeeFor(e srcast.Expr, ctx *Context) storage.Location {
	t := e.Type()
	if t == nil || t.Kind() != srcast.KindPointer || t.Pointee() == nil {
		return ctx.Arena.NewTemporary()
	}
	return ctx.Arena.TopLocation(t.Pointee().String())
}

func castValue(e srcast.Expr, env *lattice.Environment, ctx *Context) ptrval.Value {
	sub := subExpr(e, 0)
	switch e.CastKind() {
	case srcast.CastIdentity:
		return ValueOf(sub, env, ctx)
	case srcast.CastNullToPointer:
		return ptrval.Value{Pointee: nil, State: ptrval.Init(nil, true, ctx.fresh)}
	case srcast.CastArrayOrFunctionDecay:
		return ptrval.Value{
			Pointee: LocationOf(sub, env, ctx),
			State:   ptrval.State{FromNullable: formula.False(), IsNull: formula.False()},
		}
	case srcast.CastBitOrHierarchy, srcast.CastIntegralToPointer:
		v := ValueOf(sub, env, ctx)
		return ptrval.Value{Pointee: v.Pointee, State: ptrval.State{}}
	case srcast.CastDynamic:
		v := ValueOf(sub, env, ctx)
		return ptrval.Value{Pointee: v.Pointee, State: ptrval.Init(kindPtr(nullkind.Nullable), false, ctx.fresh)}
	default:
		return ValueOf(sub, env, ctx)
	}
}

func kindPtr(k nullkind.Kind) *nullkind.Kind { return &k }

// EvalNullCheck implements spec.md 4.4.2's three-way is_null comparison
// rule: `p == nullptr` / `p != nullptr` (and the symmetric forms) evaluate
// to p's own is_null atom (or its negation); the general two-pointer case
// reads both operands' is_null atoms and, unless either is "top", assumes
// the three-way implication tying a fresh result atom to both operands'
// null-ness (`lhs_null ∧ rhs_null ⇒ eq`, and either side alone null ⇒ ¬eq)
// rather than leaving the comparison completely unconstrained.
func EvalNullCheck(e srcast.Expr, env *lattice.Environment, ctx *Context) *formula.Formula {
	subs := e.SubExprs()
	if len(subs) != 2 {
		return formula.FromAtom(ctx.fresh("cmp"))
	}
	lhs, rhs := subs[0], subs[1]
	lIsNull := lhs.Kind() == srcast.ExprNullLiteral
	rIsNull := rhs.Kind() == srcast.ExprNullLiteral

	var eq *formula.Formula
	switch {
	case lIsNull && rIsNull:
		eq = formula.True()
	case lIsNull:
		eq = ValueOf(rhs, env, ctx).State.IsNull
	case rIsNull:
		eq = ValueOf(lhs, env, ctx).State.IsNull
	default:
		eq = twoPointerEq(lhs, rhs, env, ctx)
	}
	if eq == nil {
		eq = formula.FromAtom(ctx.fresh("ptr_eq_unpacked"))
	}
	if e.BinaryOp() == srcast.OpNE {
		return formula.Not(eq)
	}
	return eq
}

// twoPointerEq handles `p == q` for two non-literal pointer expressions: if
// either side's is_null is "top", it reports nil so the caller falls back to
// a fully unconstrained atom (spec.md 4.4.2: "if either is top, the result
// is top and no constraints are added"); otherwise it allocates a fresh
// result atom and assumes the three-way implication against both operands'
// is_null atoms.
func twoPointerEq(lhs, rhs srcast.Expr, env *lattice.Environment, ctx *Context) *formula.Formula {
	lNull, rNull := ValueOf(lhs, env, ctx).State.IsNull, ValueOf(rhs, env, ctx).State.IsNull
	if lNull == nil || rNull == nil {
		return nil
	}
	eq := formula.FromAtom(ctx.fresh("ptr_eq"))
	env.Assume(formula.Implies(formula.And(lNull, rNull), eq))
	env.Assume(formula.Implies(formula.And(lNull, formula.Not(rNull)), formula.Not(eq)))
	env.Assume(formula.Implies(formula.And(formula.Not(lNull), rNull), formula.Not(eq)))
	return eq
}

// AssumeNullCheck narrows env along one branch of a null-check comparison by
// conjoining the comparison's truth value (or its negation) onto the flow
// condition, matching how the engine forks environments at a conditional
// (spec.md 4.4.2, 5).
func AssumeNullCheck(e srcast.Expr, branchTrue bool, env *lattice.Environment, ctx *Context) {
	f := EvalNullCheck(e, env, ctx)
	if !branchTrue {
		f = formula.Not(f)
	}
	env.Assume(f)
}

// EvalPointerToBool implements the implicit pointer->bool contextual
// conversion (`if (p)`, `p && ...`): true means non-null, so the boolean
// value is the negation of p's is_null atom.
func EvalPointerToBool(e srcast.Expr, env *lattice.Environment, ctx *Context) *formula.Formula {
	v := ValueOf(e, env, ctx)
	if v.State.IsNull == nil {
		return formula.FromAtom(ctx.fresh("bool_from_ptr"))
	}
	return formula.Not(v.State.IsNull)
}

// assignValue implements the assignment rule: the rhs's PointerValue is
// evaluated, stored at the lhs's location, and also returned since `a = b`
// is itself an expression yielding the assigned value (spec.md 4.4.2).
func assignValue(e srcast.Expr, env *lattice.Environment, ctx *Context) ptrval.Value {
	subs := e.SubExprs()
	if len(subs) != 2 {
		return ptrval.Value{}
	}
	lhs, rhs := subs[0], subs[1]
	v := ValueOf(rhs, env, ctx)
	loc := LocationOf(lhs, env, ctx)
	env.Set(loc, v)
	if recv := receiverOf(lhs); recv != nil {
		env.InvalidateConstMemoFor(LocationOf(recv, env, ctx))
	}
	return v
}

func receiverOf(e srcast.Expr) srcast.Expr {
	if e == nil {
		return nil
	}
	switch e.Kind() {
	case srcast.ExprMemberAccess, srcast.ExprMemberCall:
		return e.Receiver()
	default:
		return nil
	}
}

// callValue evaluates a free-function call, per spec.md 4.4.2: arguments
// are evaluated for their side effects (output-parameter modeling), then
// the result is materialized fresh using the callee's resugared return
// nullability, unless the callee is `__assert_nullability`, whose
// diagnostic-only role is handled separately by the diagnostic package and
// whose argument is not treated as an output parameter here.
func callValue(e srcast.Expr, env *lattice.Environment, ctx *Context, isMember bool) ptrval.Value {
	d := e.DeclRef()
	skipOutputModeling := d != nil && d.Name() == "__assert_nullability"

	args := e.Args()
	for i, a := range args {
		if a == nil || a.Type() == nil || a.Type().Kind() != srcast.KindPointer {
			continue
		}
		if skipOutputModeling {
			ValueOf(a, env, ctx)
			continue
		}
		modelOutputParam(a, i, d, env, ctx)
	}

	retVec := TypeOf(e, ctx.Lat)
	loc := ctx.Arena.NewTemporary()
	var hint *nullkind.Kind
	if len(retVec) > 0 {
		k := retVec[0]
		hint = &k
	}
	return ptrval.Value{Pointee: loc, State: ptrval.Init(hint, false, ctx.fresh)}
}

// modelOutputParam implements the output-parameter rule (spec.md 4.4.2):
// passing the address of a pointer variable as a call argument (an
// AddressOf expression of pointer-to-pointer type) forgets everything the
// callee could have written through it, forcing a fresh unconstrained Value
// at the pointee location rather than leaving the caller's stale value in
// place. The callee's parameter type, its constness and its inner
// nullability are not consulted.
func modelOutputParam(arg srcast.Expr, idx int, callee srcast.Decl, env *lattice.Environment, ctx *Context) {
	if arg.Kind() != srcast.ExprAddressOf {
		ValueOf(arg, env, ctx)
		return
	}
	inner := subExpr(arg, 0)
	pt := arg.Type()
	if pt == nil || pt.Kind() != srcast.KindPointer || pt.Pointee() == nil || pt.Pointee().Kind() != srcast.KindPointer {
		ValueOf(arg, env, ctx)
		return
	}
	loc := LocationOf(inner, env, ctx)
	env.Set(loc, ptrval.Value{Pointee: ctx.Arena.NewTemporary(), State: ptrval.Top()})
}

// memberCallValue dispatches a member call to the smart-pointer rules when
// the receiver's type is a recognized smart pointer (spec.md 4.4.2's
// SUPPLEMENT), otherwise falls back to the const/non-const method call
// rules: a const, parameterless method call is memoized per (receiver
// location, method), while any other member call invalidates that memo for
// its receiver, since it may have mutated observable state.
func memberCallValue(e srcast.Expr, env *lattice.Environment, ctx *Context) ptrval.Value {
	d := e.DeclRef()
	recv := e.Receiver()

	if d != nil && ctx.TU != nil {
		if op := ctx.TU.SmartPointerKind(d); op != srcast.SmartPtrOpNone {
			return smartPointerValue(e, op, env, ctx)
		}
	}

	recvLoc := LocationOf(recv, env, ctx)
	if d != nil && d.IsConstMethod() && d.NumParams() == 0 {
		if v, ok := env.MemoizedConstCall(recvLoc, d.USR()); ok {
			return v
		}
		v := callValue(e, env, ctx, true)
		env.MemoizeConstCall(recvLoc, d.USR(), v)
		return v
	}

	env.InvalidateConstMemoFor(recvLoc)
	invalidateFields(recv, recvLoc, env, ctx)
	return callValue(e, env, ctx, true)
}

// invalidateFields implements spec.md 4.4.2's non-const member call rule:
// a mutating call may have written through any pointer-typed field of the
// receiver, so every such field is forgotten (reset to a fully-Top
// PointerValue) rather than left with its stale, possibly now-wrong value.
func invalidateFields(recv srcast.Expr, recvLoc storage.Location, env *lattice.Environment, ctx *Context) {
	if recv == nil || ctx.TU == nil {
		return
	}
	for _, f := range ctx.TU.Fields(recv.Type()) {
		if f == nil || f.DeclaredType() == nil || f.DeclaredType().Kind() != srcast.KindPointer {
			continue
		}
		name := f.Name()
		loc := ctx.Lat.InternLocation("field:"+recvLoc.String()+"."+name, func() storage.Location {
			return &storage.Field{Base: recvLoc, FieldName: name}
		})
		env.Set(loc, ptrval.Value{Pointee: ctx.Arena.NewTemporary(), State: ptrval.Top()})
	}
}

// smartPointerValue implements the SPEC_FULL supplement covering
// unique_ptr/shared_ptr/weak_ptr-shaped types: each recognized operation is
// translated into the equivalent raw-pointer PointerValue rule (spec.md
// 4.4.2, original_source/'s smart-pointer handling).
func smartPointerValue(e srcast.Expr, op srcast.SmartPointerOp, env *lattice.Environment, ctx *Context) ptrval.Value {
	recv := e.Receiver()
	recvLoc := LocationOf(recv, env, ctx)

	switch op {
	case srcast.SmartPtrOpDefaultCtor, srcast.SmartPtrOpResetEmpty:
		v := ptrval.Value{Pointee: nil, State: ptrval.Init(nil, true, ctx.fresh)}
		env.Set(recvLoc, v)
		return v
	case srcast.SmartPtrOpNullCtor:
		v := ptrval.Value{Pointee: nil, State: ptrval.Init(nil, true, ctx.fresh)}
		env.Set(recvLoc, v)
		return v
	case srcast.SmartPtrOpResetValue, srcast.SmartPtrOpFromRaw:
		args := e.Args()
		var v ptrval.Value
		if len(args) > 0 {
			v = ValueOf(args[0], env, ctx)
		} else {
			v = ptrval.Value{Pointee: ctx.Arena.NewTemporary(), State: ptrval.State{FromNullable: formula.False(), IsNull: formula.False()}}
		}
		env.Set(recvLoc, v)
		return v
	case srcast.SmartPtrOpFromWeak:
		v := ptrval.Value{Pointee: ctx.Arena.NewTemporary(), State: ptrval.State{FromNullable: formula.False(), IsNull: formula.False()}}
		env.Set(recvLoc, v)
		return v
	case srcast.SmartPtrOpMoveSource:
		out, ok := env.Get(recvLoc)
		if !ok {
			out = ptrval.Value{Pointee: ctx.Arena.NewTemporary(), State: ptrval.Top()}
		}
		env.Set(recvLoc, ptrval.Value{Pointee: nil, State: ptrval.Init(nil, true, ctx.fresh)})
		return out
	case srcast.SmartPtrOpRelease:
		out, ok := env.Get(recvLoc)
		if !ok {
			out = ptrval.Value{Pointee: ctx.Arena.NewTemporary(), State: ptrval.Top()}
		}
		env.Set(recvLoc, ptrval.Value{Pointee: nil, State: ptrval.Init(nil, true, ctx.fresh)})
		return out
	case srcast.SmartPtrOpGet:
		v, ok := env.Get(recvLoc)
		if !ok {
			v = ptrval.Value{Pointee: ctx.Arena.NewTemporary(), State: ptrval.Top()}
		}
		return v
	case srcast.SmartPtrOpSwap:
		args := e.Args()
		if len(args) > 0 {
			otherLoc := LocationOf(args[0], env, ctx)
			a, _ := env.Get(recvLoc)
			b, _ := env.Get(otherLoc)
			env.Set(recvLoc, b)
			env.Set(otherLoc, a)
		}
		return ptrval.Value{}
	default:
		return callValue(e, env, ctx, true)
	}
}
