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

// ElementKind discriminates the two shapes a CFG element can take (spec.md
// 3, "Lifecycles": "a sequence of CFG elements (statements or constructor
// initializers)").
type ElementKind uint8

const (
	// ElementStatement wraps a statement-level expression.
	ElementStatement ElementKind = iota
	// ElementInitializer wraps a constructor member initializer.
	ElementInitializer
	// ElementReturn wraps a return statement (spec.md section 8's Return
	// row of C6.1/C6.2: the returned expression is checked against the
	// enclosing function's declared nullability and contributes
	// NullableReturn/NonNullReturn evidence).
	ElementReturn
)

// Element is one entry in a basic block's element sequence.
type Element interface {
	// Kind reports which shape this element takes.
	Kind() ElementKind
	// Expr is the statement expression, valid when Kind() == ElementStatement.
	Expr() Expr
	// InitField is the field being initialized, valid when
	// Kind() == ElementInitializer.
	InitField() Decl
	// InitExpr is the initializer expression, valid when
	// Kind() == ElementInitializer.
	InitExpr() Expr
	// ReturnExpr is the returned expression, valid when
	// Kind() == ElementReturn. A bare `return;` with no operand reports nil.
	ReturnExpr() Expr
}

// BasicBlock is one node of a function's control-flow graph.
type BasicBlock interface {
	// ID uniquely identifies this block within its CFG.
	ID() int
	// Elements returns this block's CFG elements in program order.
	Elements() []Element
	// Successors returns this block's successor blocks. For a block ending
	// in a two-way branch, index 0 is the then/true edge and index 1 is the
	// else/false edge; the engine's fixed-point driver relies on this order
	// to narrow each edge's environment against the branch condition.
	Successors() []BasicBlock
	// Predecessors returns this block's predecessor blocks.
	Predecessors() []BasicBlock
	// IsLoopHead reports whether this block is the target of a
	// back-edge, i.e. a fixed-point widening candidate (spec.md 4.5, 5).
	IsLoopHead() bool
}

// CFG is a function's control-flow graph, as the AST provider exposes it
// (spec.md section 6).
type CFG interface {
	// Entry returns the CFG's entry block.
	Entry() BasicBlock
	// Blocks returns every block in the CFG, in an order suitable for a
	// first, non-fixed-point traversal (e.g. reverse post-order).
	Blocks() []BasicBlock
}

// Function is one function or method the engine analyzes.
type Function interface {
	// Decl is the function's own declaration.
	Decl() Decl
	// CFG returns the function's control-flow graph, or ok=false if CFG
	// construction failed for this function (spec.md 4.6.3).
	CFG() (CFG, bool)
	// DefaultArgs returns, for each parameter index, the default-value
	// expression if one was written, else nil.
	DefaultArgs() []Expr
	// MemberInitializers returns the initializer expressions used to
	// default-initialize fields not covered by an explicit member
	// initializer, keyed by field declaration; used to detect
	// DefaultMemberInitializerNull evidence in generated constructors
	// (spec.md 3, 4.6.2).
	MemberInitializers() map[Decl]Expr
}

// TranslationUnit is the top-level input to the engine: every function
// with a body, plus lookup helpers shared across the whole file set.
type TranslationUnit interface {
	// Functions returns every function or method with a body in this
	// translation unit.
	Functions() []Function
	// SupportedSmartPointer reports whether t is one of the
	// unique_ptr/shared_ptr/weak_ptr-like record types the engine gives
	// special value-transfer treatment (spec.md 4.4.2), and if so returns
	// its synthetic inner raw-pointer field declaration ("ptr").
	SupportedSmartPointer(t Type) (Decl, bool)
	// SmartPointerKind returns the smart-pointer kind classification
	// needed to select among constructor/reset/release/get/swap rules.
	SmartPointerKind(ctorOrMethod Decl) SmartPointerOp
	// Fields returns the fields declared directly on the record type t, in
	// declaration order. Used by the value transfer's non-const member
	// call rule (spec.md 4.4.2) to invalidate every pointer-typed field of
	// a receiver a mutating call could have written through. Empty for
	// non-record types or when the AST provider has no field information
	// for t.
	Fields(t Type) []Decl
}

// SmartPointerOp classifies which smart-pointer operation a constructor or
// method call corresponds to, for the value-transfer rules of spec.md 4.4.2.
type SmartPointerOp uint8

const (
	// SmartPtrOpNone means this declaration isn't a recognized smart
	// pointer operation.
	SmartPtrOpNone SmartPointerOp = iota
	// SmartPtrOpDefaultCtor is the default constructor.
	SmartPtrOpDefaultCtor
	// SmartPtrOpNullCtor is construction from nullptr_t.
	SmartPtrOpNullCtor
	// SmartPtrOpResetEmpty is reset() with no args or reset(nullptr).
	SmartPtrOpResetEmpty
	// SmartPtrOpResetValue is reset(p) with a non-null pointer argument.
	SmartPtrOpResetValue
	// SmartPtrOpMoveSource is being the moved-from side of a move
	// construction/assignment, or the source of a copy.
	SmartPtrOpMoveSource
	// SmartPtrOpFromRaw is construction from a raw pointer or a
	// compatible smart pointer.
	SmartPtrOpFromRaw
	// SmartPtrOpFromWeak is construction from a weak pointer (throws on
	// empty, so the result is modeled non-null).
	SmartPtrOpFromWeak
	// SmartPtrOpRelease is release().
	SmartPtrOpRelease
	// SmartPtrOpGet is get().
	SmartPtrOpGet
	// SmartPtrOpSwap is swap(), member or free.
	SmartPtrOpSwap
)
