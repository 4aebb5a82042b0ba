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

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"nilcheck.dev/nilcheck/config"
	"nilcheck.dev/nilcheck/diagnostic"
	"nilcheck.dev/nilcheck/evidence"
	"nilcheck.dev/nilcheck/internal/fakesrc"
	"nilcheck.dev/nilcheck/nullkind"
	"nilcheck.dev/nilcheck/solver"
	"nilcheck.dev/nilcheck/srcast"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func declRef(usr, name string, typ srcast.Type, fc *srcast.FileContext) *fakesrc.Expr {
	d := fakesrc.NewDecl(usr, srcast.DeclVar, name, typ, fc)
	return fakesrc.NewExpr(srcast.ExprDeclRef, typ, fc, srcast.Position{}).WithGLValue().WithDeclRef(d)
}

func evidenceOfKind(evs []evidence.Evidence, k evidence.Kind) []evidence.Evidence {
	var out []evidence.Evidence
	for _, e := range evs {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func TestAnalyzeFunctionReturnsErrorOnMissingCFG(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	decl := fakesrc.NewDecl("c:@f", srcast.DeclFunc, "f", fakesrc.Scalar("void"), fc)
	fn := fakesrc.NewFunctionWithoutCFG(decl)

	en := New(fakesrc.NewTranslationUnit(fn), solver.NewBounded(1000), nil)
	_, err := en.AnalyzeFunction(fn)
	require.ErrorIs(t, err, ErrCFGConstruction)
}

func TestAnalyzeFunctionReportsUncheckedDereferenceEvidenceAndDiagnostic(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	paramType := fakesrc.NullablePointer(fakesrc.Scalar("Foo"))
	pDecl := fakesrc.NewDecl("c:@p", srcast.DeclParam, "p", paramType, fc)
	fnDecl := fakesrc.NewDecl("c:@use", srcast.DeclFunc, "use", fakesrc.Scalar("int"), fc).
		WithParams([]srcast.Type{paramType}, []string{"c:@p"})

	pRef := fakesrc.NewExpr(srcast.ExprDeclRef, paramType, fc, srcast.Position{}).WithGLValue().WithDeclRef(pDecl)
	deref := fakesrc.NewExpr(srcast.ExprDereference, fakesrc.Scalar("Foo"), fc, srcast.Position{}).WithGLValue().WithSubExprs(pRef)

	entry := fakesrc.NewBlock(0).WithElements(fakesrc.Stmt(deref))
	cfg := fakesrc.NewCFG(entry, entry)
	fn := fakesrc.NewFunction(fnDecl, cfg)

	en := New(fakesrc.NewTranslationUnit(fn), solver.NewBounded(1000), config.NewConfig())
	res, err := en.AnalyzeFunction(fn)
	require.NoError(t, err)

	require.NotEmpty(t, res.Diagnostics)
	derefEvs := evidenceOfKind(res.Evidence, evidence.UncheckedDereference)
	require.Len(t, derefEvs, 1)
	require.Equal(t, pDecl.USR(), derefEvs[0].Declaration)

	annotatedEvs := evidenceOfKind(res.Evidence, evidence.Annotated)
	require.Len(t, annotatedEvs, 1, "p's explicit Nullable annotation must also be recorded as evidence")
	require.Equal(t, nullkind.Nullable, annotatedEvs[0].AnnotatedKind)
}

func TestAnalyzeFunctionNullCheckGuardSuppressesEvidenceInThenBranch(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	paramType := fakesrc.NullablePointer(fakesrc.Scalar("Foo"))
	pDecl := fakesrc.NewDecl("c:@p", srcast.DeclParam, "p", paramType, fc)
	fnDecl := fakesrc.NewDecl("c:@useGuarded", srcast.DeclFunc, "useGuarded", fakesrc.Scalar("int"), fc).
		WithParams([]srcast.Type{paramType}, []string{"c:@p"})

	pRef := func() *fakesrc.Expr {
		return fakesrc.NewExpr(srcast.ExprDeclRef, paramType, fc, srcast.Position{}).WithGLValue().WithDeclRef(pDecl)
	}
	null := fakesrc.NewExpr(srcast.ExprNullLiteral, paramType, fc, srcast.Position{})
	cmp := fakesrc.NewExpr(srcast.ExprBinaryCompare, fakesrc.Scalar("bool"), fc, srcast.Position{}).
		WithBinaryOp(srcast.OpNE).WithSubExprs(pRef(), null)
	deref := fakesrc.NewExpr(srcast.ExprDereference, fakesrc.Scalar("Foo"), fc, srcast.Position{}).WithGLValue().WithSubExprs(pRef())

	condBlock := fakesrc.NewBlock(0).WithElements(fakesrc.Stmt(cmp))
	thenBlock := fakesrc.NewBlock(1).WithElements(fakesrc.Stmt(deref))
	elseBlock := fakesrc.NewBlock(2)
	fakesrc.Link(condBlock, thenBlock)
	fakesrc.Link(condBlock, elseBlock)

	cfg := fakesrc.NewCFG(condBlock, condBlock, thenBlock, elseBlock)
	fn := fakesrc.NewFunction(fnDecl, cfg)

	en := New(fakesrc.NewTranslationUnit(fn), solver.NewBounded(1000), config.NewConfig())
	res, err := en.AnalyzeFunction(fn)
	require.NoError(t, err)
	require.Empty(t, evidenceOfKind(res.Evidence, evidence.UncheckedDereference), "a dereference guarded by p != nullptr must not be flagged as unchecked")
}

func TestAnalyzeFunctionNullCheckElseBranchGetsItsOwnNegatedNarrowing(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	paramType := fakesrc.NullablePointer(fakesrc.Scalar("Foo"))
	pDecl := fakesrc.NewDecl("c:@p", srcast.DeclParam, "p", paramType, fc)
	fnDecl := fakesrc.NewDecl("c:@useElse", srcast.DeclFunc, "useElse", fakesrc.Scalar("int"), fc).
		WithParams([]srcast.Type{paramType}, []string{"c:@p"})

	pRef := func() *fakesrc.Expr {
		return fakesrc.NewExpr(srcast.ExprDeclRef, paramType, fc, srcast.Position{}).WithGLValue().WithDeclRef(pDecl)
	}
	null := fakesrc.NewExpr(srcast.ExprNullLiteral, paramType, fc, srcast.Position{})
	cmp := fakesrc.NewExpr(srcast.ExprBinaryCompare, fakesrc.Scalar("bool"), fc, srcast.Position{}).
		WithBinaryOp(srcast.OpNE).WithSubExprs(pRef(), null)
	deref := fakesrc.NewExpr(srcast.ExprDereference, fakesrc.Scalar("Foo"), fc, srcast.Position{}).WithGLValue().WithSubExprs(pRef())

	// if (p != nullptr) {} else { *p; } — the else edge must be narrowed by
	// the condition's negation, not share the then edge's true-assumed
	// environment, so the dereference here is still flagged as unchecked.
	condBlock := fakesrc.NewBlock(0).WithElements(fakesrc.Stmt(cmp))
	thenBlock := fakesrc.NewBlock(1)
	elseBlock := fakesrc.NewBlock(2).WithElements(fakesrc.Stmt(deref))
	fakesrc.Link(condBlock, thenBlock)
	fakesrc.Link(condBlock, elseBlock)

	cfg := fakesrc.NewCFG(condBlock, condBlock, thenBlock, elseBlock)
	fn := fakesrc.NewFunction(fnDecl, cfg)

	en := New(fakesrc.NewTranslationUnit(fn), solver.NewBounded(1000), config.NewConfig())
	res, err := en.AnalyzeFunction(fn)
	require.NoError(t, err)
	require.NotEmpty(t, evidenceOfKind(res.Evidence, evidence.UncheckedDereference),
		"a dereference in the else branch of `p != nullptr` must see p as possibly null, not inherit the then branch's narrowing")
}

func TestAnalyzeFunctionCollectsNonNullArgumentEvidence(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	paramType := fakesrc.NonNullPointer(fakesrc.Scalar("Bar"))
	calleeDecl := fakesrc.NewDecl("c:@callee", srcast.DeclFunc, "callee", fakesrc.Scalar("void"), fc).
		WithParams([]srcast.Type{paramType}, []string{"c:@q"})

	argType := fakesrc.NonNullPointer(fakesrc.Scalar("Bar"))
	arg := declRef("c:@arg", "arg", argType, fc)
	call := fakesrc.NewExpr(srcast.ExprCall, fakesrc.Scalar("void"), fc, srcast.Position{}).
		WithDeclRef(calleeDecl).WithArgs(arg)

	callerDecl := fakesrc.NewDecl("c:@caller", srcast.DeclFunc, "caller", fakesrc.Scalar("void"), fc)
	entry := fakesrc.NewBlock(0).WithElements(fakesrc.Stmt(call))
	cfg := fakesrc.NewCFG(entry, entry)
	fn := fakesrc.NewFunction(callerDecl, cfg)

	en := New(fakesrc.NewTranslationUnit(fn), solver.NewBounded(1000), config.NewConfig())
	res, err := en.AnalyzeFunction(fn)
	require.NoError(t, err)
	require.Empty(t, res.Diagnostics)
	require.Len(t, evidenceOfKind(res.Evidence, evidence.NonNullArgument), 1)
	require.Len(t, evidenceOfKind(res.Evidence, evidence.Annotated), 1, "arg's explicit NonNull annotation must also be recorded as evidence")
}

func TestAnalyzeFunctionReportsAssertFailedWhenAssertedVectorMismatchesComputed(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	paramType := fakesrc.NullablePointer(fakesrc.Scalar("Foo"))
	pDecl := fakesrc.NewDecl("c:@p", srcast.DeclParam, "p", paramType, fc)
	pRef := fakesrc.NewExpr(srcast.ExprDeclRef, paramType, fc, srcast.Position{}).WithGLValue().WithDeclRef(pDecl)

	assertDecl := fakesrc.NewDecl("c:@__assert_nullability", srcast.DeclFunc, "__assert_nullability", fakesrc.Scalar("void"), fc)
	call := fakesrc.NewExpr(srcast.ExprCall, fakesrc.Scalar("void"), fc, srcast.Position{}).
		WithDeclRef(assertDecl).WithArgs(pRef).
		WithTemplateArgs(fakesrc.Written(fakesrc.AnnotationOnly(srcast.AnnotationNonNull)))

	fnDecl := fakesrc.NewDecl("c:@caller", srcast.DeclFunc, "caller", fakesrc.Scalar("void"), fc).
		WithParams([]srcast.Type{paramType}, []string{"c:@p"})
	entry := fakesrc.NewBlock(0).WithElements(fakesrc.Stmt(call))
	cfg := fakesrc.NewCFG(entry, entry)
	fn := fakesrc.NewFunction(fnDecl, cfg)

	en := New(fakesrc.NewTranslationUnit(fn), solver.NewBounded(1000), config.NewConfig())
	res, err := en.AnalyzeFunction(fn)
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)
	require.Equal(t, diagnostic.AssertFailed, res.Diagnostics[0].Code)
}

func TestAnalyzeFunctionReportsNullableReturnDiagnosticAndEvidence(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	retType := fakesrc.NonNullPointer(fakesrc.Scalar("Foo"))
	fnDecl := fakesrc.NewDecl("c:@g", srcast.DeclFunc, "g", retType, fc)

	null := fakesrc.NewExpr(srcast.ExprNullLiteral, retType, fc, srcast.Position{})
	entry := fakesrc.NewBlock(0).WithElements(fakesrc.Ret(null))
	cfg := fakesrc.NewCFG(entry, entry)
	fn := fakesrc.NewFunction(fnDecl, cfg)

	en := New(fakesrc.NewTranslationUnit(fn), solver.NewBounded(1000), config.NewConfig())
	res, err := en.AnalyzeFunction(fn)
	require.NoError(t, err)

	require.Len(t, res.Diagnostics, 1)
	require.Equal(t, diagnostic.ExpectedNonNull, res.Diagnostics[0].Code)
	require.Equal(t, diagnostic.ReturnValue, res.Diagnostics[0].Context)

	require.Len(t, res.Evidence, 1)
	require.Equal(t, evidence.NullableReturn, res.Evidence[0].Kind)
	require.Equal(t, fnDecl.USR(), res.Evidence[0].Declaration)
}

func TestAnalyzeFunctionCollectsNonNullReturnEvidence(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	retType := fakesrc.NullablePointer(fakesrc.Scalar("Foo"))
	fnDecl := fakesrc.NewDecl("c:@h", srcast.DeclFunc, "h", retType, fc)

	pDecl := fakesrc.NewDecl("c:@p", srcast.DeclVar, "p", fakesrc.NonNullPointer(fakesrc.Scalar("Foo")), fc)
	pRef := fakesrc.NewExpr(srcast.ExprDeclRef, fakesrc.NonNullPointer(fakesrc.Scalar("Foo")), fc, srcast.Position{}).WithGLValue().WithDeclRef(pDecl)

	entry := fakesrc.NewBlock(0).WithElements(fakesrc.Ret(pRef))
	cfg := fakesrc.NewCFG(entry, entry)
	fn := fakesrc.NewFunction(fnDecl, cfg)

	en := New(fakesrc.NewTranslationUnit(fn), solver.NewBounded(1000), config.NewConfig())
	res, err := en.AnalyzeFunction(fn)
	require.NoError(t, err)
	require.Empty(t, res.Diagnostics)

	returnEvs := evidenceOfKind(res.Evidence, evidence.NonNullReturn)
	require.Len(t, returnEvs, 1)
	require.Equal(t, fnDecl.USR(), returnEvs[0].Declaration)
	require.Len(t, evidenceOfKind(res.Evidence, evidence.Annotated), 1, "p's explicit NonNull annotation must also be recorded as evidence")
}

func TestAnalyzeFunctionCollectsAnnotatedEvidenceForExplicitlyAnnotatedDeclRef(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	paramType := fakesrc.NullablePointer(fakesrc.Scalar("Foo"))
	pDecl := fakesrc.NewDecl("c:@p", srcast.DeclParam, "p", paramType, fc)
	pRef := fakesrc.NewExpr(srcast.ExprDeclRef, paramType, fc, srcast.Position{}).WithGLValue().WithDeclRef(pDecl)

	fnDecl := fakesrc.NewDecl("c:@noop", srcast.DeclFunc, "noop", fakesrc.Scalar("void"), fc).
		WithParams([]srcast.Type{paramType}, []string{"c:@p"})
	entry := fakesrc.NewBlock(0).WithElements(fakesrc.Stmt(pRef))
	cfg := fakesrc.NewCFG(entry, entry)
	fn := fakesrc.NewFunction(fnDecl, cfg)

	en := New(fakesrc.NewTranslationUnit(fn), solver.NewBounded(1000), config.NewConfig())
	res, err := en.AnalyzeFunction(fn)
	require.NoError(t, err)

	annotated := evidenceOfKind(res.Evidence, evidence.Annotated)
	require.Len(t, annotated, 1)
	require.Equal(t, pDecl.USR(), annotated[0].Declaration)
	require.Equal(t, nullkind.Nullable, annotated[0].AnnotatedKind)
}

func TestAnalyzeFunctionEmitsNoAnnotatedEvidenceForUnannotatedDeclRef(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	paramType := fakesrc.UnannotatedPointer(fakesrc.Scalar("Foo"))
	pDecl := fakesrc.NewDecl("c:@p", srcast.DeclParam, "p", paramType, fc)
	pRef := fakesrc.NewExpr(srcast.ExprDeclRef, paramType, fc, srcast.Position{}).WithGLValue().WithDeclRef(pDecl)

	fnDecl := fakesrc.NewDecl("c:@noop", srcast.DeclFunc, "noop", fakesrc.Scalar("void"), fc).
		WithParams([]srcast.Type{paramType}, []string{"c:@p"})
	entry := fakesrc.NewBlock(0).WithElements(fakesrc.Stmt(pRef))
	cfg := fakesrc.NewCFG(entry, entry)
	fn := fakesrc.NewFunction(fnDecl, cfg)

	en := New(fakesrc.NewTranslationUnit(fn), solver.NewBounded(1000), config.NewConfig())
	res, err := en.AnalyzeFunction(fn)
	require.NoError(t, err)
	require.Empty(t, evidenceOfKind(res.Evidence, evidence.Annotated))
}

func TestAnalyzeTranslationUnitContinuesPastPerFunctionErrors(t *testing.T) {
	t.Parallel()

	fc := fakesrc.File("a.h", srcast.DefaultUnspecified)
	broken := fakesrc.NewFunctionWithoutCFG(fakesrc.NewDecl("c:@broken", srcast.DeclFunc, "broken", fakesrc.Scalar("void"), fc))

	okDecl := fakesrc.NewDecl("c:@ok", srcast.DeclFunc, "ok", fakesrc.Scalar("void"), fc)
	entry := fakesrc.NewBlock(0)
	ok := fakesrc.NewFunction(okDecl, fakesrc.NewCFG(entry, entry))

	tu := fakesrc.NewTranslationUnit(broken, ok)
	en := New(tu, solver.NewBounded(1000), config.NewConfig())

	results, errs := en.AnalyzeTranslationUnit(nil)
	require.Len(t, errs, 1)
	require.Len(t, results, 1)
	require.Equal(t, "ok", results[0].Function.Name())
}
