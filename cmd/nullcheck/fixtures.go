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

package main

import (
	"fmt"

	"nilcheck.dev/nilcheck/internal/fakesrc"
	"nilcheck.dev/nilcheck/srcast"
)

// fixtureBuilder constructs one translation unit given the FileContext
// parsed from its archive entry's pragma directives. Since parsing real
// source is out of scope for this engine (spec.md section 1), the driver
// demonstrates multi-translation-unit analysis over small, hand-built
// fixtures selected by name instead of over a real front end's output.
type fixtureBuilder func(fc *srcast.FileContext) *fakesrc.TranslationUnit

// fixtures is the registry of builtin scenarios a bundle entry can select
// via its "fixture:" directive.
var fixtures = map[string]fixtureBuilder{
	"unchecked-deref":  buildUncheckedDeref,
	"nonnull-argument": buildNonNullArgument,
	"null-check-guard": buildNullCheckGuard,
}

// buildUncheckedDeref models spec.md's canonical unsafe-dereference
// scenario: `int use(Foo* p) { return p->value; }` with p left
// unannotated (or explicitly Nullable), dereferenced with no preceding
// null check.
func buildUncheckedDeref(fc *srcast.FileContext) *fakesrc.TranslationUnit {
	pos := srcast.Position{File: fc.Path, Line: 2, Column: 12}
	fooTy := fakesrc.Scalar("Foo")
	pTy := fakesrc.NullablePointer(fooTy)

	param := fakesrc.NewDecl("use(Foo*)::p", srcast.DeclParam, "p", pTy, fc)
	fn := fakesrc.NewDecl("use(Foo*)", srcast.DeclFunc, "use", fakesrc.Scalar("int"), fc).
		WithParams([]srcast.Type{pTy}, []string{"use(Foo*)::p"})

	declRef := fakesrc.NewExpr(srcast.ExprDeclRef, pTy, fc, pos).WithDeclRef(param).WithGLValue()
	deref := fakesrc.NewExpr(srcast.ExprDereference, fooTy, fc, pos).WithSubExprs(declRef).WithGLValue()

	entry := fakesrc.NewBlock(0).WithElements(fakesrc.Stmt(deref))
	cfg := fakesrc.NewCFG(entry, entry)

	function := fakesrc.NewFunction(fn, cfg)
	return fakesrc.NewTranslationUnit(function)
}

// buildNullCheckGuard is the safe counterpart of buildUncheckedDeref: the
// same dereference, but preceded by a two-successor block whose trailing
// element is the `p != nullptr` guard, so AssumeNullCheck narrows the
// pointer to non-null on the branch that reaches the dereference.
func buildNullCheckGuard(fc *srcast.FileContext) *fakesrc.TranslationUnit {
	pos := srcast.Position{File: fc.Path, Line: 3, Column: 12}
	fooTy := fakesrc.Scalar("Foo")
	pTy := fakesrc.NullablePointer(fooTy)

	param := fakesrc.NewDecl("useGuarded(Foo*)::p", srcast.DeclParam, "p", pTy, fc)
	fn := fakesrc.NewDecl("useGuarded(Foo*)", srcast.DeclFunc, "useGuarded", fakesrc.Scalar("int"), fc).
		WithParams([]srcast.Type{pTy}, []string{"useGuarded(Foo*)::p"})

	declRefCond := fakesrc.NewExpr(srcast.ExprDeclRef, pTy, fc, pos).WithDeclRef(param).WithGLValue()
	nullLit := fakesrc.NewExpr(srcast.ExprNullLiteral, pTy, fc, pos)
	guard := fakesrc.NewExpr(srcast.ExprBinaryCompare, fakesrc.Scalar("bool"), fc, pos).
		WithBinaryOp(srcast.OpNE).WithSubExprs(declRefCond, nullLit)

	declRefUse := fakesrc.NewExpr(srcast.ExprDeclRef, pTy, fc, pos).WithDeclRef(param).WithGLValue()
	deref := fakesrc.NewExpr(srcast.ExprDereference, fooTy, fc, pos).WithSubExprs(declRefUse).WithGLValue()

	thenBlock := fakesrc.NewBlock(1).WithElements(fakesrc.Stmt(deref))
	elseBlock := fakesrc.NewBlock(2)
	condBlock := fakesrc.NewBlock(0).WithElements(fakesrc.Stmt(guard))
	fakesrc.Link(condBlock, thenBlock)
	fakesrc.Link(condBlock, elseBlock)

	cfg := fakesrc.NewCFG(condBlock, condBlock, thenBlock, elseBlock)
	function := fakesrc.NewFunction(fn, cfg)
	return fakesrc.NewTranslationUnit(function)
}

// buildNonNullArgument models a call site passing a null literal to a
// parameter annotated NonNull: `callee(nullptr)`.
func buildNonNullArgument(fc *srcast.FileContext) *fakesrc.TranslationUnit {
	pos := srcast.Position{File: fc.Path, Line: 4, Column: 8}
	barTy := fakesrc.Scalar("Bar")
	qTy := fakesrc.NonNullPointer(barTy)

	callee := fakesrc.NewDecl("callee(Bar*)", srcast.DeclFunc, "callee", fakesrc.Scalar("void"), fc).
		WithParams([]srcast.Type{qTy}, []string{"callee(Bar*)::q"})
	caller := fakesrc.NewDecl("caller()", srcast.DeclFunc, "caller", fakesrc.Scalar("void"), fc)

	nullArg := fakesrc.NewExpr(srcast.ExprNullLiteral, fakesrc.NullablePointer(barTy), fc, pos)
	call := fakesrc.NewExpr(srcast.ExprCall, fakesrc.Scalar("void"), fc, pos).
		WithDeclRef(callee).WithArgs(nullArg)

	entry := fakesrc.NewBlock(0).WithElements(fakesrc.Stmt(call))
	cfg := fakesrc.NewCFG(entry, entry)

	function := fakesrc.NewFunction(caller, cfg)
	return fakesrc.NewTranslationUnit(function)
}

func lookupFixture(name string) (fixtureBuilder, error) {
	b, ok := fixtures[name]
	if !ok {
		return nil, fmt.Errorf("nullcheck: unknown fixture %q", name)
	}
	return b, nil
}
