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
	"testing"

	"github.com/stretchr/testify/require"

	"nilcheck.dev/nilcheck/formula"
	"nilcheck.dev/nilcheck/internal/fakesrc"
	"nilcheck.dev/nilcheck/lattice"
	"nilcheck.dev/nilcheck/solver"
	"nilcheck.dev/nilcheck/srcast"
)

func newCtx() *Context {
	return &Context{Arena: lattice.NewArena(), Lat: lattice.NewLattice(nil), Solver: solver.NewBounded(1000)}
}

func declRef(usr, name string, typ srcast.Type, fc *srcast.FileContext) *fakesrc.Expr {
	d := fakesrc.NewDecl(usr, srcast.DeclVar, name, typ, fc)
	return fakesrc.NewExpr(srcast.ExprDeclRef, typ, fc, srcast.Position{}).WithGLValue().WithDeclRef(d)
}

func TestValueOfNullLiteralIsAlwaysNull(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	null := fakesrc.NewExpr(srcast.ExprNullLiteral, fakesrc.NullablePointer(fakesrc.Scalar("Foo")), fc, srcast.Position{})

	v := ValueOf(null, lattice.NewEnvironment(), newCtx())
	require.True(t, v.State.IsNull.IsTrue())
}

func TestValueOfDeclRefIsStableAcrossRepeatedFetches(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	ptrType := fakesrc.NonNullPointer(fakesrc.Scalar("Foo"))
	p := declRef("c:@p", "p", ptrType, fc)

	env := lattice.NewEnvironment()
	ctx := newCtx()
	first := ValueOf(p, env, ctx)
	second := ValueOf(p, env, ctx)
	require.Equal(t, first.Pointee, second.Pointee, "the same variable fetched twice must resolve to the same location")
}

func TestValueOfNonNullDeclRefHintsFalseFromNullable(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	ptrType := fakesrc.NonNullPointer(fakesrc.Scalar("Foo"))
	p := declRef("c:@p", "p", ptrType, fc)

	v := ValueOf(p, lattice.NewEnvironment(), newCtx())
	require.True(t, v.State.FromNullable.IsFalse())
	require.True(t, v.State.IsNull.IsFalse())
}

func TestAssignValueStoresAtLHSLocationAndReturnsRHSValue(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	ptrType := fakesrc.NullablePointer(fakesrc.Scalar("Foo"))
	lhs := declRef("c:@p", "p", ptrType, fc)
	rhs := fakesrc.NewExpr(srcast.ExprNullLiteral, ptrType, fc, srcast.Position{})
	assign := fakesrc.NewExpr(srcast.ExprAssign, ptrType, fc, srcast.Position{}).WithSubExprs(lhs, rhs)

	env := lattice.NewEnvironment()
	ctx := newCtx()
	v := ValueOf(assign, env, ctx)
	require.True(t, v.State.IsNull.IsTrue())

	stored := ValueOf(lhs, env, ctx)
	require.True(t, stored.State.IsNull.IsTrue())
}

func TestEvalNullCheckOnNullLiteralComparisonUsesOtherSideIsNull(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	ptrType := fakesrc.NullablePointer(fakesrc.Scalar("Foo"))
	p := declRef("c:@p", "p", ptrType, fc)
	null := fakesrc.NewExpr(srcast.ExprNullLiteral, ptrType, fc, srcast.Position{})
	cmp := fakesrc.NewExpr(srcast.ExprBinaryCompare, fakesrc.Scalar("bool"), fc, srcast.Position{}).
		WithBinaryOp(srcast.OpEQ).WithSubExprs(p, null)

	env := lattice.NewEnvironment()
	ctx := newCtx()
	pVal := ValueOf(p, env, ctx)

	f := EvalNullCheck(cmp, env, ctx)
	require.Same(t, pVal.State.IsNull, f)
}

func TestEvalNullCheckNegatesForNotEquals(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	ptrType := fakesrc.NullablePointer(fakesrc.Scalar("Foo"))
	p := declRef("c:@p", "p", ptrType, fc)
	null := fakesrc.NewExpr(srcast.ExprNullLiteral, ptrType, fc, srcast.Position{})
	cmp := fakesrc.NewExpr(srcast.ExprBinaryCompare, fakesrc.Scalar("bool"), fc, srcast.Position{}).
		WithBinaryOp(srcast.OpNE).WithSubExprs(p, null)

	env := lattice.NewEnvironment()
	ctx := newCtx()
	pVal := ValueOf(p, env, ctx)
	f := EvalNullCheck(cmp, env, ctx)
	require.Equal(t, formula.KindNot, f.Kind())
	require.Same(t, pVal.State.IsNull, f.Left())
}

func TestEvalNullCheckOnTwoPointersAssumesThreeWayImplication(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	ptrType := fakesrc.NullablePointer(fakesrc.Scalar("Foo"))
	p := declRef("c:@p", "p", ptrType, fc)
	q := declRef("c:@q", "q", ptrType, fc)
	cmp := fakesrc.NewExpr(srcast.ExprBinaryCompare, fakesrc.Scalar("bool"), fc, srcast.Position{}).
		WithBinaryOp(srcast.OpEQ).WithSubExprs(p, q)

	env := lattice.NewEnvironment()
	ctx := newCtx()
	pVal := ValueOf(p, env, ctx)
	qVal := ValueOf(q, env, ctx)
	require.NotNil(t, pVal.State.IsNull, "a nullable declaration must have a tracked, non-top is_null atom")
	require.NotNil(t, qVal.State.IsNull, "a nullable declaration must have a tracked, non-top is_null atom")

	eq := EvalNullCheck(cmp, env, ctx)

	// Both sides null implies equal.
	bothNull := env.Clone()
	bothNull.Assume(pVal.State.IsNull)
	bothNull.Assume(qVal.State.IsNull)
	require.True(t, bothNull.Proves(ctx.Solver, eq))

	// Exactly one side null implies not equal.
	oneNull := env.Clone()
	oneNull.Assume(pVal.State.IsNull)
	oneNull.Assume(formula.Not(qVal.State.IsNull))
	require.True(t, oneNull.Proves(ctx.Solver, formula.Not(eq)))
}

func TestEvalNullCheckOnTwoPointersReturnsUnconstrainedWhenEitherSideIsTop(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	ptrType := fakesrc.NonNullPointer(fakesrc.Scalar("Foo"))
	p := declRef("c:@p", "p", ptrType, fc)
	// An integral-to-pointer cast produces a completely untracked value
	// (ptrval.Top()): its nullability isn't known from any hint.
	qRaw := declRef("c:@q", "q", fakesrc.Scalar("uintptr"), fc)
	q := fakesrc.NewExpr(srcast.ExprCast, ptrType, fc, srcast.Position{}).
		WithCastKind(srcast.CastIntegralToPointer).WithSubExprs(qRaw)
	cmp := fakesrc.NewExpr(srcast.ExprBinaryCompare, fakesrc.Scalar("bool"), fc, srcast.Position{}).
		WithBinaryOp(srcast.OpEQ).WithSubExprs(p, q)

	env := lattice.NewEnvironment()
	ctx := newCtx()
	require.Nil(t, ValueOf(q, env, ctx).State.IsNull, "an integral-to-pointer cast must leave is_null untracked")

	eq := EvalNullCheck(cmp, env, ctx)
	require.False(t, env.Proves(ctx.Solver, eq), "an untracked operand must leave the comparison unconstrained")
	require.False(t, env.Proves(ctx.Solver, formula.Not(eq)), "an untracked operand must leave the comparison unconstrained")
}

func TestAssumeNullCheckNarrowsFlowConditionOnTrueBranch(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	ptrType := fakesrc.NullablePointer(fakesrc.Scalar("Foo"))
	p := declRef("c:@p", "p", ptrType, fc)
	null := fakesrc.NewExpr(srcast.ExprNullLiteral, ptrType, fc, srcast.Position{})
	cmp := fakesrc.NewExpr(srcast.ExprBinaryCompare, fakesrc.Scalar("bool"), fc, srcast.Position{}).
		WithBinaryOp(srcast.OpNE).WithSubExprs(p, null)

	env := lattice.NewEnvironment()
	ctx := newCtx()
	AssumeNullCheck(cmp, true, env, ctx)

	pVal := ValueOf(p, env, ctx)
	require.True(t, env.Proves(ctx.Solver, formula.Not(pVal.State.IsNull)))
}

func TestMemberCallValueInvalidatesReceiverPointerFields(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	widgetType := fakesrc.Named("Widget")
	fieldType := fakesrc.NonNullPointer(fakesrc.Scalar("Foo"))
	field := fakesrc.NewDecl("c:@Widget@FI@next", srcast.DeclField, "next", fieldType, fc).WithClass("Widget")

	tu := fakesrc.NewTranslationUnit().RegisterFields("Widget", field)
	ctx := &Context{Arena: lattice.NewArena(), Lat: lattice.NewLattice(nil), Solver: solver.NewBounded(1000), TU: tu}
	env := lattice.NewEnvironment()

	recv := declRef("c:@w", "w", widgetType, fc)
	member := fakesrc.NewExpr(srcast.ExprMemberAccess, fieldType, fc, srcast.Position{}).WithGLValue().WithDeclRef(field).WithReceiver(recv)

	before := ValueOf(member, env, ctx)
	require.True(t, before.State.FromNullable.IsFalse(), "the field must start out known non-null")

	mutate := fakesrc.NewDecl("c:@Widget@F@mutate", srcast.DeclFunc, "mutate", fakesrc.Scalar("void"), fc).WithClass("Widget")
	call := fakesrc.NewExpr(srcast.ExprMemberCall, fakesrc.Scalar("void"), fc, srcast.Position{}).WithDeclRef(mutate).WithReceiver(recv)
	memberCallValue(call, env, ctx)

	after, ok := env.Get(LocationOf(member, env, ctx))
	require.True(t, ok)
	require.Nil(t, after.State.FromNullable, "a non-const member call must forget the receiver's pointer-typed fields")
	require.Nil(t, after.State.IsNull, "a non-const member call must forget the receiver's pointer-typed fields")
}

func TestModelOutputParamForgetsPreviousValue(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	innerType := fakesrc.NonNullPointer(fakesrc.Scalar("Foo"))
	outerType := fakesrc.NonNullPointer(innerType)
	p := declRef("c:@p", "p", innerType, fc)
	addr := fakesrc.NewExpr(srcast.ExprAddressOf, outerType, fc, srcast.Position{}).WithSubExprs(p)

	callee := fakesrc.NewDecl("c:@f", srcast.DeclFunc, "f", fakesrc.Scalar("void"), fc).
		WithParams([]srcast.Type{outerType}, []string{"out"})
	call := fakesrc.NewExpr(srcast.ExprCall, fakesrc.Scalar("void"), fc, srcast.Position{}).
		WithDeclRef(callee).WithArgs(addr)

	env := lattice.NewEnvironment()
	ctx := newCtx()

	before := ValueOf(p, env, ctx)
	require.True(t, before.State.FromNullable.IsFalse())

	callValue(call, env, ctx, false)

	after, ok := env.Get(LocationOf(p, env, ctx))
	require.True(t, ok)
	require.Nil(t, after.State.FromNullable, "an output parameter write must forget the prior known state")
}
