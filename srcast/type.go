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

// Package srcast defines the external AST-and-CFG-provider interfaces the
// engine consumes (spec.md section 6). Parsing and semantic analysis of the
// source language are explicitly out of scope (spec.md section 1); this
// package only names the shape a real front end must implement. A minimal,
// in-memory implementation for tests lives in internal/fakesrc.
package srcast

// ExplicitAnnotation is the explicit nullability wrapper or attribute
// written on one pointer slot in source (spec.md section 6): NonNull<T*>,
// Nullable<T*>, NullabilityUnknown<T*>, or the equivalent _Nonnull /
// _Nullable / _Null_unspecified attributes. AnnotationNone means nothing
// was written and the file's pragma default (or Unspecified) applies.
type ExplicitAnnotation uint8

const (
	// AnnotationNone means no explicit annotation was written.
	AnnotationNone ExplicitAnnotation = iota
	// AnnotationNonNull is an explicit NonNull<T*> / _Nonnull.
	AnnotationNonNull
	// AnnotationNullable is an explicit Nullable<T*> / _Nullable.
	AnnotationNullable
	// AnnotationUnknown is an explicit NullabilityUnknown<T*> /
	// _Null_unspecified - it always overrides the pragma default for this
	// slot (spec.md 4.1).
	AnnotationUnknown
)

// TypeKind discriminates the nodes of a Type tree.
type TypeKind uint8

const (
	// KindOther is any type with no pointers of its own and no template
	// parameters - a leaf of the type tree (int, bool, a plain record...).
	KindOther TypeKind = iota
	// KindPointer is a single raw pointer, annotated or not, to Pointee().
	KindPointer
	// KindTemplateParam is an occurrence of a class- or function-template
	// parameter, to be resolved only through resugaring.
	KindTemplateParam
	// KindNamed is a (possibly template-instantiated) named/record type;
	// TemplateArgs holds its instantiation arguments, if any.
	KindNamed
)

// Type is one node of a type tree, as the AST provider exposes it.
type Type interface {
	// Kind reports which of the node shapes below applies.
	Kind() TypeKind

	// Pointee is valid when Kind() == KindPointer: the pointed-to type.
	Pointee() Type
	// Annotation is valid when Kind() == KindPointer: the explicit
	// nullability wrapper/attribute written on this pointer slot, if any.
	Annotation() ExplicitAnnotation

	// ParamIndex is valid when Kind() == KindTemplateParam: which
	// enclosing template parameter this occurrence refers to.
	ParamIndex() int
	// Pack reports whether this template-parameter occurrence is a
	// variadic pack expansion (spec.md 4.1 edge case: not resugared).
	Pack() bool
	// PackWidth is the number of pointer slots a pack occurrence
	// contributes when it cannot be resugared; front ends that know the
	// expansion width should report it, others may return 0 or 1.
	PackWidth() int

	// ClassName is valid when Kind() == KindNamed: a stable name for the
	// type's associated class/record, used to check the class-template
	// resugaring precondition (same associated class).
	ClassName() string
	// TemplateArgs is valid when Kind() == KindNamed: the instantiation
	// arguments in declaration order (empty for a non-template type).
	TemplateArgs() []Type

	// String returns a short debugging representation.
	String() string
}

// TemplateArg pairs a function-template instantiation argument with whether
// it was written explicitly at the call site or deduced by the type system
// (spec.md 4.1: deduced arguments carry no sugar).
type TemplateArg struct {
	Type    Type
	Written bool
}

// CountPointers returns the number of pointer slots t's TypeNullability
// vector would have - the structural count spec.md's invariant
// len(TypeNullability(T)) == count_pointers(T) is checked against.
func CountPointers(t Type) int {
	if t == nil {
		return 0
	}
	switch t.Kind() {
	case KindPointer:
		return 1 + CountPointers(t.Pointee())
	case KindNamed:
		n := 0
		for _, arg := range t.TemplateArgs() {
			n += CountPointers(arg)
		}
		return n
	case KindTemplateParam:
		if t.Pack() {
			return t.PackWidth()
		}
		return 0
	default:
		return 0
	}
}
