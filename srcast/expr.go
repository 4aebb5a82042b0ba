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

package srcast

import "strconv"

// ExprKind discriminates expression shapes the type and value transfers
// dispatch on (spec.md 4.4.1, 4.4.2).
type ExprKind uint8

const (
	// ExprOther is any expression kind the engine doesn't specially model.
	ExprOther ExprKind = iota
	// ExprDeclRef references a declaration (variable, parameter, function).
	ExprDeclRef
	// ExprMemberAccess is `b.m` (a field or bound-member reference).
	ExprMemberAccess
	// ExprMemberCall is a call through a member access, `b.m(...)`.
	ExprMemberCall
	// ExprCast is an explicit or implicit cast; see CastKind for the sub-kind.
	ExprCast
	// ExprAddressOf is `&e`.
	ExprAddressOf
	// ExprDereference is `*e`.
	ExprDereference
	// ExprSubscript is `e[i]`.
	ExprSubscript
	// ExprThis is the `this` expression.
	ExprThis
	// ExprNew is a `new` expression.
	ExprNew
	// ExprCall is a (non-member) function call.
	ExprCall
	// ExprNullLiteral is the null-pointer literal.
	ExprNullLiteral
	// ExprBinaryCompare is `p == q` / `p != q`.
	ExprBinaryCompare
	// ExprAssign is an assignment `lhs = rhs`.
	ExprAssign
)

// CastKind discriminates the cast-kind table of spec.md 4.4.1.
type CastKind uint8

const (
	// CastIdentity covers NoOp, lvalue-to-rvalue, atomic<->non-atomic, and
	// address-space casts: nullability passes through unchanged.
	CastIdentity CastKind = iota
	// CastBitOrHierarchy covers bit-casts, base<->derived, and user-defined
	// conversions: only the top-level pointer chain is preserved, inner
	// sugar is dropped.
	CastBitOrHierarchy
	// CastNullToPointer is a null-literal-to-pointer conversion.
	CastNullToPointer
	// CastIntegralToPointer is an integer-to-pointer conversion.
	CastIntegralToPointer
	// CastArrayOrFunctionDecay is array-to-pointer or function-to-pointer decay.
	CastArrayOrFunctionDecay
	// CastDynamic is a dynamic_cast-style runtime-checked downcast.
	CastDynamic
)

// BinaryOp discriminates the comparison operators ExprBinaryCompare carries.
type BinaryOp uint8

const (
	// OpEQ is `==`.
	OpEQ BinaryOp = iota
	// OpNE is `!=`.
	OpNE
)

// ValueCategory distinguishes glvalues (denote storage) from prvalues
// (transient results), matching the AST provider's category (spec.md 6).
type ValueCategory uint8

const (
	// PRValue is a transient, non-storage-denoting result.
	PRValue ValueCategory = iota
	// GLValue denotes existing storage.
	GLValue
)

// Expr is an expression node as the AST provider exposes it.
type Expr interface {
	// Kind reports which shape below applies.
	Kind() ExprKind
	// Type returns the static type of this expression.
	Type() Type
	// ValueCategory reports whether this expression is a glvalue or prvalue.
	ValueCategory() ValueCategory
	// SubExprs returns this expression's direct sub-expressions, in
	// evaluation-relevant order.
	SubExprs() []Expr
	// CastKind is valid when Kind() == ExprCast.
	CastKind() CastKind
	// BinaryOp is valid when Kind() == ExprBinaryCompare.
	BinaryOp() BinaryOp
	// DeclRef is valid when Kind() == ExprDeclRef, ExprMemberAccess (the
	// referenced member), or ExprMemberCall/ExprCall (the callee).
	DeclRef() Decl
	// Receiver is valid when Kind() == ExprMemberAccess or ExprMemberCall:
	// the base object expression `b` in `b.m`.
	Receiver() Expr
	// Args is valid when Kind() == ExprCall or ExprMemberCall: the
	// argument expressions in order.
	Args() []Expr
	// TemplateArgs is valid when Kind() == ExprCall or ExprMemberCall and
	// the callee is a function template: the instantiation arguments.
	TemplateArgs() []TemplateArg
	// MayReturnNull is valid when Kind() == ExprNew: whether this
	// allocation form may return null instead of throwing/aborting.
	MayReturnNull() bool
	// File returns the file this expression appears in, for pragma lookup.
	File() *FileContext
	// Pos returns a source position for diagnostics.
	Pos() Position
}

// Position is a minimal source location, deliberately not tied to any
// concrete file-set implementation (spec.md 6: "source-manager queries").
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File == "" {
		return "<unknown>"
	}
	return p.File + ":" + strconv.Itoa(p.Line) + ":" + strconv.Itoa(p.Column)
}
