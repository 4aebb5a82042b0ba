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

// Package fakesrc is an in-memory implementation of the srcast interfaces,
// used only by tests to build small synthetic programs without a real
// front end.
package fakesrc

import "nilcheck.dev/nilcheck/srcast"

// Type is a fluent-buildable srcast.Type.
type Type struct {
	kind        srcast.TypeKind
	pointee     srcast.Type
	annotation  srcast.ExplicitAnnotation
	paramIndex  int
	pack        bool
	packWidth   int
	className   string
	templateArgs []srcast.Type
	str         string
}

// NonNullPointer returns a pointer type explicitly annotated NonNull.
func NonNullPointer(pointee srcast.Type) *Type {
	return &Type{kind: srcast.KindPointer, pointee: pointee, annotation: srcast.AnnotationNonNull, str: "T* _Nonnull"}
}

// NullablePointer returns a pointer type explicitly annotated Nullable.
func NullablePointer(pointee srcast.Type) *Type {
	return &Type{kind: srcast.KindPointer, pointee: pointee, annotation: srcast.AnnotationNullable, str: "T* _Nullable"}
}

// UnannotatedPointer returns a pointer type with no explicit annotation.
func UnannotatedPointer(pointee srcast.Type) *Type {
	return &Type{kind: srcast.KindPointer, pointee: pointee, annotation: srcast.AnnotationNone, str: "T*"}
}

// Scalar returns a non-pointer, non-template leaf type (e.g. int, a plain
// class with no pointer members).
func Scalar(name string) *Type {
	return &Type{kind: srcast.KindOther, str: name}
}

// AnnotationOnly returns a type carrying only ann, no pointer/pointee shape.
// Used for __assert_nullability<NK1,NK2,...>'s template arguments, where
// each argument names a nullability kind directly rather than a pointer type.
func AnnotationOnly(ann srcast.ExplicitAnnotation) *Type {
	return &Type{kind: srcast.KindOther, annotation: ann, str: "NK"}
}

// TemplateParam returns an unsubstituted template-parameter occurrence.
func TemplateParam(index int) *Type {
	return &Type{kind: srcast.KindTemplateParam, paramIndex: index, str: "T"}
}

// PackParam returns an unsubstituted parameter-pack occurrence of the given
// width.
func PackParam(index, width int) *Type {
	return &Type{kind: srcast.KindTemplateParam, paramIndex: index, pack: true, packWidth: width, str: "Ts..."}
}

// Named returns a class/struct type instantiated with the given template
// arguments (may be empty for a non-template class).
func Named(className string, args ...srcast.Type) *Type {
	return &Type{kind: srcast.KindNamed, className: className, templateArgs: args, str: className}
}

func (t *Type) Kind() srcast.TypeKind                { return t.kind }
func (t *Type) Pointee() srcast.Type {
	if t.pointee == nil {
		return nil
	}
	return t.pointee
}
func (t *Type) Annotation() srcast.ExplicitAnnotation { return t.annotation }
func (t *Type) ParamIndex() int                       { return t.paramIndex }
func (t *Type) Pack() bool                            { return t.pack }
func (t *Type) PackWidth() int                        { return t.packWidth }
func (t *Type) ClassName() string     { return t.className }
func (t *Type) TemplateArgs() []srcast.Type { return t.templateArgs }
func (t *Type) String() string        { return t.str }

// Written wraps t as a written (not deduced) template argument.
func Written(t srcast.Type) srcast.TemplateArg { return srcast.TemplateArg{Type: t, Written: true} }

// Deduced wraps t as a deduced (not written) template argument.
func Deduced(t srcast.Type) srcast.TemplateArg { return srcast.TemplateArg{Type: t, Written: false} }

// File is a fluent-buildable srcast.FileContext.
func File(path string, def srcast.AnnotationDefault) *srcast.FileContext {
	return &srcast.FileContext{Path: path, Default: def}
}

// Decl is a fluent-buildable srcast.Decl.
type Decl struct {
	usr            srcast.USR
	kind           srcast.DeclKind
	name           string
	declaredType   srcast.Type
	declaringClass string
	boundMember    bool
	file           *srcast.FileContext
	constMethod    bool
	numParams      int
	paramTypes     []srcast.Type
	paramUSRs      []srcast.USR
	variadic       bool
	numResults     int
	virtual        bool
	overrides      []srcast.USR
}

// NewDecl returns a Decl builder. Chain the With* methods to configure it.
func NewDecl(usr string, kind srcast.DeclKind, name string, declaredType srcast.Type, file *srcast.FileContext) *Decl {
	return &Decl{usr: srcast.USR(usr), kind: kind, name: name, declaredType: declaredType, file: file}
}

func (d *Decl) WithClass(class string) *Decl        { d.declaringClass = class; return d }
func (d *Decl) WithBoundMember() *Decl              { d.boundMember = true; return d }
func (d *Decl) WithConstMethod() *Decl              { d.constMethod = true; return d }
func (d *Decl) WithVariadic() *Decl                 { d.variadic = true; return d }
func (d *Decl) WithVirtual(overrides ...srcast.USR) *Decl {
	d.virtual = true
	d.overrides = overrides
	return d
}
func (d *Decl) WithParams(types []srcast.Type, usrs []string) *Decl {
	d.paramTypes = types
	d.numParams = len(types)
	d.paramUSRs = make([]srcast.USR, len(usrs))
	for i, u := range usrs {
		d.paramUSRs[i] = srcast.USR(u)
	}
	return d
}
func (d *Decl) WithResults(n int) *Decl { d.numResults = n; return d }

func (d *Decl) USR() srcast.USR             { return d.usr }
func (d *Decl) Kind() srcast.DeclKind       { return d.kind }
func (d *Decl) Name() string                { return d.name }
func (d *Decl) DeclaredType() srcast.Type   { return d.declaredType }
func (d *Decl) DeclaringClass() string      { return d.declaringClass }
func (d *Decl) IsBoundMember() bool         { return d.boundMember }
func (d *Decl) File() *srcast.FileContext   { return d.file }
func (d *Decl) IsConstMethod() bool         { return d.constMethod }
func (d *Decl) NumParams() int              { return d.numParams }
func (d *Decl) ParamType(i int) srcast.Type {
	if i < 0 || i >= len(d.paramTypes) {
		return nil
	}
	return d.paramTypes[i]
}
func (d *Decl) ParamUSR(i int) srcast.USR {
	if i < 0 || i >= len(d.paramUSRs) {
		return ""
	}
	return d.paramUSRs[i]
}
func (d *Decl) Variadic() bool          { return d.variadic }
func (d *Decl) NumResults() int         { return d.numResults }
func (d *Decl) Virtual() bool           { return d.virtual }
func (d *Decl) Overrides() []srcast.USR { return d.overrides }

// Expr is a fluent-buildable srcast.Expr.
type Expr struct {
	kind          srcast.ExprKind
	typ           srcast.Type
	valueCategory srcast.ValueCategory
	subs          []srcast.Expr
	castKind      srcast.CastKind
	binOp         srcast.BinaryOp
	declRef       srcast.Decl
	receiver      srcast.Expr
	args          []srcast.Expr
	templateArgs  []srcast.TemplateArg
	mayReturnNull bool
	file          *srcast.FileContext
	pos           srcast.Position
}

// NewExpr returns an Expr builder for the given kind and static type.
func NewExpr(kind srcast.ExprKind, typ srcast.Type, file *srcast.FileContext, pos srcast.Position) *Expr {
	return &Expr{kind: kind, typ: typ, file: file, pos: pos}
}

func (e *Expr) WithGLValue() *Expr                          { e.valueCategory = srcast.GLValue; return e }
func (e *Expr) WithSubExprs(subs ...srcast.Expr) *Expr       { e.subs = subs; return e }
func (e *Expr) WithCastKind(k srcast.CastKind) *Expr         { e.castKind = k; return e }
func (e *Expr) WithBinaryOp(op srcast.BinaryOp) *Expr        { e.binOp = op; return e }
func (e *Expr) WithDeclRef(d srcast.Decl) *Expr              { e.declRef = d; return e }
func (e *Expr) WithReceiver(r srcast.Expr) *Expr             { e.receiver = r; return e }
func (e *Expr) WithArgs(args ...srcast.Expr) *Expr           { e.args = args; return e }
func (e *Expr) WithTemplateArgs(a ...srcast.TemplateArg) *Expr { e.templateArgs = a; return e }
func (e *Expr) WithMayReturnNull() *Expr                     { e.mayReturnNull = true; return e }

func (e *Expr) Kind() srcast.ExprKind               { return e.kind }
func (e *Expr) Type() srcast.Type                   { return e.typ }
func (e *Expr) ValueCategory() srcast.ValueCategory { return e.valueCategory }
func (e *Expr) SubExprs() []srcast.Expr             { return e.subs }
func (e *Expr) CastKind() srcast.CastKind           { return e.castKind }
func (e *Expr) BinaryOp() srcast.BinaryOp           { return e.binOp }
func (e *Expr) DeclRef() srcast.Decl                { return e.declRef }
func (e *Expr) Receiver() srcast.Expr               { return e.receiver }
func (e *Expr) Args() []srcast.Expr                 { return e.args }
func (e *Expr) TemplateArgs() []srcast.TemplateArg  { return e.templateArgs }
func (e *Expr) MayReturnNull() bool                 { return e.mayReturnNull }
func (e *Expr) File() *srcast.FileContext           { return e.file }
func (e *Expr) Pos() srcast.Position                { return e.pos }

// Element is a fluent-buildable srcast.Element.
type Element struct {
	kind      srcast.ElementKind
	expr      srcast.Expr
	initField srcast.Decl
	initExpr  srcast.Expr
	retExpr   srcast.Expr
}

// Stmt wraps a statement-level expression as a CFG element.
func Stmt(e srcast.Expr) *Element { return &Element{kind: srcast.ElementStatement, expr: e} }

// Init wraps a member initializer as a CFG element.
func Init(field srcast.Decl, e srcast.Expr) *Element {
	return &Element{kind: srcast.ElementInitializer, initField: field, initExpr: e}
}

// Ret wraps a return statement as a CFG element. e may be nil for a bare
// `return;` with no operand.
func Ret(e srcast.Expr) *Element { return &Element{kind: srcast.ElementReturn, retExpr: e} }

func (el *Element) Kind() srcast.ElementKind { return el.kind }
func (el *Element) Expr() srcast.Expr        { return el.expr }
func (el *Element) InitField() srcast.Decl   { return el.initField }
func (el *Element) InitExpr() srcast.Expr    { return el.initExpr }
func (el *Element) ReturnExpr() srcast.Expr  { return el.retExpr }

// Block is a fluent-buildable srcast.BasicBlock.
type Block struct {
	id           int
	elements     []srcast.Element
	successors   []srcast.BasicBlock
	predecessors []srcast.BasicBlock
	loopHead     bool
}

// NewBlock returns a new, empty basic block with the given ID.
func NewBlock(id int) *Block { return &Block{id: id} }

func (b *Block) WithElements(els ...srcast.Element) *Block { b.elements = els; return b }
func (b *Block) WithLoopHead() *Block                      { b.loopHead = true; return b }

// Link records b -> to as a CFG edge, updating both blocks' adjacency.
func Link(b, to *Block) {
	b.successors = append(b.successors, to)
	to.predecessors = append(to.predecessors, b)
}

func (b *Block) ID() int                        { return b.id }
func (b *Block) Elements() []srcast.Element      { return b.elements }
func (b *Block) Successors() []srcast.BasicBlock { return b.successors }
func (b *Block) Predecessors() []srcast.BasicBlock { return b.predecessors }
func (b *Block) IsLoopHead() bool                { return b.loopHead }

// CFG is a fluent-buildable srcast.CFG: an entry block plus every block
// reachable from it, in the order they were added (callers are expected to
// add blocks in reverse-post-order, matching spec.md 5's traversal
// requirement).
type CFG struct {
	entry  *Block
	blocks []srcast.BasicBlock
}

// NewCFG returns a CFG rooted at entry. blocks must be given in RPO,
// starting with entry itself.
func NewCFG(entry *Block, blocks ...*Block) *CFG {
	c := &CFG{entry: entry}
	for _, b := range blocks {
		c.blocks = append(c.blocks, b)
	}
	return c
}

func (c *CFG) Entry() srcast.BasicBlock    { return c.entry }
func (c *CFG) Blocks() []srcast.BasicBlock { return c.blocks }

// Function is a fluent-buildable srcast.Function.
type Function struct {
	decl          srcast.Decl
	cfg           srcast.CFG
	cfgOK         bool
	defaultArgs   []srcast.Expr
	memberInits   map[srcast.Decl]srcast.Expr
}

// NewFunction returns a Function with a successfully-constructed CFG.
func NewFunction(decl srcast.Decl, cfg *CFG) *Function {
	return &Function{decl: decl, cfg: cfg, cfgOK: true, memberInits: map[srcast.Decl]srcast.Expr{}}
}

// NewFunctionWithoutCFG returns a Function whose CFG() reports ok=false,
// simulating a front-end CFG-construction failure (spec.md 4.6.3).
func NewFunctionWithoutCFG(decl srcast.Decl) *Function {
	return &Function{decl: decl, memberInits: map[srcast.Decl]srcast.Expr{}}
}

func (f *Function) WithDefaultArgs(args ...srcast.Expr) *Function { f.defaultArgs = args; return f }
func (f *Function) WithMemberInitializer(field srcast.Decl, e srcast.Expr) *Function {
	f.memberInits[field] = e
	return f
}

func (f *Function) Decl() srcast.Decl { return f.decl }
func (f *Function) CFG() (srcast.CFG, bool) {
	if !f.cfgOK {
		return nil, false
	}
	return f.cfg, true
}
func (f *Function) DefaultArgs() []srcast.Expr             { return f.defaultArgs }
func (f *Function) MemberInitializers() map[srcast.Decl]srcast.Expr { return f.memberInits }

// TranslationUnit is a fluent-buildable srcast.TranslationUnit.
type TranslationUnit struct {
	functions       []srcast.Function
	smartPointers   map[string]srcast.Decl
	smartPointerOps map[srcast.Decl]srcast.SmartPointerOp
	fields          map[string][]srcast.Decl
}

// NewTranslationUnit returns an empty translation unit.
func NewTranslationUnit(fns ...srcast.Function) *TranslationUnit {
	return &TranslationUnit{
		functions:       fns,
		smartPointers:   map[string]srcast.Decl{},
		smartPointerOps: map[srcast.Decl]srcast.SmartPointerOp{},
		fields:          map[string][]srcast.Decl{},
	}
}

// RegisterFields records the fields declared on className, for
// TranslationUnit.Fields lookups.
func (tu *TranslationUnit) RegisterFields(className string, fields ...srcast.Decl) *TranslationUnit {
	tu.fields[className] = fields
	return tu
}

// RegisterSmartPointer marks className as a recognized smart-pointer type
// whose inner raw pointer is modeled by innerField.
func (tu *TranslationUnit) RegisterSmartPointer(className string, innerField srcast.Decl) *TranslationUnit {
	tu.smartPointers[className] = innerField
	return tu
}

// RegisterSmartPointerOp records op as the operation classification for a
// specific constructor/method decl.
func (tu *TranslationUnit) RegisterSmartPointerOp(d srcast.Decl, op srcast.SmartPointerOp) *TranslationUnit {
	tu.smartPointerOps[d] = op
	return tu
}

func (tu *TranslationUnit) Functions() []srcast.Function { return tu.functions }

func (tu *TranslationUnit) SupportedSmartPointer(t srcast.Type) (srcast.Decl, bool) {
	if t == nil || t.Kind() != srcast.KindNamed {
		return nil, false
	}
	d, ok := tu.smartPointers[t.ClassName()]
	return d, ok
}

func (tu *TranslationUnit) SmartPointerKind(ctorOrMethod srcast.Decl) srcast.SmartPointerOp {
	return tu.smartPointerOps[ctorOrMethod]
}

func (tu *TranslationUnit) Fields(t srcast.Type) []srcast.Decl {
	if t == nil || t.Kind() != srcast.KindNamed {
		return nil
	}
	return tu.fields[t.ClassName()]
}
