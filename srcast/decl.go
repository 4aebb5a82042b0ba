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

// DeclKind discriminates the kinds of declarations the engine reasons about.
type DeclKind uint8

const (
	// DeclVar is a local or global variable.
	DeclVar DeclKind = iota
	// DeclParam is a function or method parameter.
	DeclParam
	// DeclFunc is a free function or a method.
	DeclFunc
	// DeclField is a record field.
	DeclField
	// DeclType is a type/class declaration.
	DeclType
)

// USR is an opaque string uniquely naming a declaration across the
// translation unit (spec.md 6, GLOSSARY).
type USR string

// Decl is a declaration as the AST provider exposes it: something that can
// carry a nullability annotation and be evidence-tracked.
type Decl interface {
	// USR returns this declaration's unique identifier.
	USR() USR
	// Kind reports what sort of declaration this is.
	Kind() DeclKind
	// Name returns a human-readable name, for diagnostics.
	Name() string
	// DeclaredType returns the declaration's type as written. For a
	// DeclFunc this is its return type - parameter types are obtained
	// separately through the enclosing Function/Expr machinery.
	DeclaredType() Type
	// DeclaringClass returns the name of the class/record that declares
	// this member (field or method), used to check the class-template
	// resugaring precondition (spec.md 4.1). Empty for non-members.
	DeclaringClass() string
	// IsBoundMember reports whether this declaration, when reached through
	// a member access, is a "bound member" placeholder (e.g. a
	// pointer-to-member or method reference) whose declared type should be
	// used as-is rather than resugared (spec.md 4.4.1).
	IsBoundMember() bool
	// File returns the file this declaration was written in, for pragma
	// default lookup.
	File() *FileContext
	// IsConstMethod reports whether this is a parameterless const method
	// (relevant to the const-method memoization in the lattice, spec.md 3).
	IsConstMethod() bool
	// NumParams returns the number of parameters, valid for DeclFunc.
	NumParams() int
	// ParamType returns the declared type of parameter i, valid for
	// DeclFunc. For a variadic function, callers should round i down to
	// the last parameter, matching spec.md 4.6.1's call-site key rounding.
	ParamType(i int) Type
	// ParamUSR returns the stable per-parameter USR used as an
	// evidence/inference slot key, valid for DeclFunc.
	ParamUSR(i int) USR
	// Variadic reports whether the last parameter is variadic.
	Variadic() bool
	// NumResults returns the number of return values, valid for DeclFunc.
	NumResults() int
	// Virtual reports whether this is a virtual method.
	Virtual() bool
	// Overrides returns the USRs of methods this method's group is coupled
	// with (the base declaration and every sibling override), used for the
	// virtual-method evidence pooling in spec.md 4.6.2. Empty for
	// non-virtual declarations.
	Overrides() []USR
}

// FileContext carries the per-file information the pragma surface (spec.md
// section 6) attaches: the default nullability for unannotated slots, and
// whether inference is suppressed for declarations written in this file.
type FileContext struct {
	// Path is the file's path, for diagnostics.
	Path string
	// Default is the pragma file_default in effect, Unspecified if none
	// was declared.
	Default AnnotationDefault
	// NoInfer, when true, means this file carries the
	// "#pragma nullability disable" directive (spec.md SPEC_FULL supplement):
	// declarations written here are still diagnosed but never have their
	// annotations inferred. The cmd/nullcheck driver applies this to every
	// function defined in the file and to that function's parameters;
	// fields and variables declared in the file are still inferred.
	NoInfer bool
}

// AnnotationDefault mirrors ExplicitAnnotation's three real values (None
// isn't meaningful as a pragma default, so file defaults are expressed with
// their own small enum to avoid a confusing "AnnotationNone as default"
// state).
type AnnotationDefault uint8

const (
	// DefaultUnspecified is the fallback when no pragma default was set.
	DefaultUnspecified AnnotationDefault = iota
	// DefaultNonNull is "#pragma nullability file_default nonnull".
	DefaultNonNull
	// DefaultNullable is "#pragma nullability file_default nullable".
	DefaultNullable
)
