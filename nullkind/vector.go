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

package nullkind

import "nilcheck.dev/nilcheck/srcast"

// Defaults carries the per-file pragma default (spec.md 4.1) applied to
// unannotated raw-pointer slots.
type Defaults struct {
	// FileDefault is the nullability filled in for a pointer slot with no
	// explicit annotation. An explicit NullabilityUnknown wrapper always
	// overrides this, per spec.md 4.1.
	FileDefault Kind
}

// KindFromAnnotation maps an explicit annotation directly to a Kind, with no
// file-default fallback (an absent annotation resolves to Unspecified). Used
// where a Kind is asserted directly rather than read off a declaration's
// type, e.g. __assert_nullability<NK1,NK2,...>'s template arguments.
func KindFromAnnotation(ann srcast.ExplicitAnnotation) Kind {
	return resolveSlot(ann, Defaults{FileDefault: Unspecified})
}

func resolveSlot(ann srcast.ExplicitAnnotation, defaults Defaults) Kind {
	switch ann {
	case srcast.AnnotationNonNull:
		return NonNull
	case srcast.AnnotationNullable:
		return Nullable
	case srcast.AnnotationUnknown:
		return Unspecified
	default:
		return defaults.FileDefault
	}
}

// TypeNullability walks t and returns one Vector entry per pointer
// encountered, in the pre-order spec.md 3 defines: outermost pointer first,
// then that pointer's pointee (recursively along the pointer spine), then -
// once the spine bottoms out at a named type - the template arguments'
// pointers in declaration order. Bare occurrences of an unsubstituted
// template parameter contribute no slots at this level; they are only
// resolved through ResugarMember / ResugarCall.
func TypeNullability(t srcast.Type, defaults Defaults) Vector {
	if t == nil {
		return nil
	}
	switch t.Kind() {
	case srcast.KindPointer:
		slot := resolveSlot(t.Annotation(), defaults)
		return append(Vector{slot}, TypeNullability(t.Pointee(), defaults)...)
	case srcast.KindNamed:
		var v Vector
		for _, arg := range t.TemplateArgs() {
			v = append(v, TypeNullability(arg, defaults)...)
		}
		return v
	case srcast.KindTemplateParam:
		if t.Pack() {
			return unspecifiedRun(t.PackWidth())
		}
		return nil
	default:
		return nil
	}
}

func unspecifiedRun(n int) Vector {
	if n <= 0 {
		return nil
	}
	v := make(Vector, n)
	for i := range v {
		v[i] = Unspecified
	}
	return v
}

// FitToType refills v with all-Unspecified if its length doesn't match
// t's structural pointer count, per spec.md 4.4.1's "mismatches discard the
// vector and refill with Unspecified (a warning state, not an abort)". It
// reports whether a mismatch was found.
func FitToType(v Vector, t srcast.Type) (Vector, bool) {
	want := srcast.CountPointers(t)
	if len(v) == want {
		return v, false
	}
	return unspecifiedRun(want), true
}

// ResugarMember performs class-template resugaring (spec.md 4.1): given a
// member's declared type as written inside class C<P1..Pn>, and the
// nullability vector plus concrete template arguments of a base object of
// type C<A1..An>, it substitutes each occurrence of Pi in memberType by the
// slice of baseVector corresponding to Ai.
//
// memberClass and baseClass are the associated-class names of memberType's
// declaring class and the base object's type, respectively; per spec.md's
// precondition, resugaring bails out (returns ok=false) unless they match,
// falling through to the member's declared type.
func ResugarMember(memberType srcast.Type, memberClass, baseClass string, baseVector Vector, baseArgs []srcast.Type, memberDefaults Defaults) (Vector, bool) {
	if memberClass != baseClass {
		return nil, false
	}
	bounds := paramSliceBounds(baseArgs)
	v, ok := substitute(memberType, memberDefaults, func(paramIdx int, pack bool, packWidth int) (Vector, bool) {
		if pack {
			return nil, false
		}
		if paramIdx < 0 || paramIdx >= len(bounds) {
			return nil, false
		}
		b := bounds[paramIdx]
		if b.start+b.length > len(baseVector) {
			return nil, false
		}
		return baseVector.Slice(b.start, b.length), true
	})
	if !ok {
		return nil, false
	}
	return v, true
}

// ResugarCall performs function-template resugaring (spec.md 4.1): given an
// occurrence of a function-template parameter inside declaredType (a
// parameter or return type of `f<A1..Ak>`), it substitutes the nullability
// of the corresponding template argument. Deduced (unwritten) arguments
// contribute Unspecified slots instead of their real annotations. Pack
// parameter occurrences are never resugared (spec.md 4.1 edge case).
func ResugarCall(declaredType srcast.Type, args []srcast.TemplateArg, defaults Defaults) Vector {
	v, _ := substitute(declaredType, defaults, func(paramIdx int, pack bool, packWidth int) (Vector, bool) {
		if pack {
			return unspecifiedRun(packWidth), true
		}
		if paramIdx < 0 || paramIdx >= len(args) {
			return nil, false
		}
		arg := args[paramIdx]
		if !arg.Written {
			return unspecifiedRun(srcast.CountPointers(arg.Type)), true
		}
		return TypeNullability(arg.Type, defaults), true
	})
	return v
}

type paramSlice struct{ start, length int }

// paramSliceBounds returns, for each template parameter index i, the
// [start, start+length) range within a base vector that Ai's own pointers
// occupy - contiguous, in declaration order, matching spec.md 3's
// "template-argument pointers in declaration order".
func paramSliceBounds(args []srcast.Type) []paramSlice {
	bounds := make([]paramSlice, len(args))
	offset := 0
	for i, a := range args {
		n := srcast.CountPointers(a)
		bounds[i] = paramSlice{start: offset, length: n}
		offset += n
	}
	return bounds
}

// substitute walks t exactly like TypeNullability, except that when it
// reaches a KindTemplateParam node it calls resolve to obtain the slice
// that should be spliced in at that position. resolve's second return value
// reports whether resugaring is available for that occurrence; the whole
// substitution fails (ok=false) if any component fails to resolve for a
// reason other than "correctly emits Unspecified". ResugarCall's resolve
// fills its "no sugar" cases with Unspecified and fails only on an
// out-of-range parameter index; ResugarMember's resolve also fails on a
// pack occurrence and on a base vector too short for the parameter's slice.
func substitute(t srcast.Type, defaults Defaults, resolve func(paramIdx int, pack bool, packWidth int) (Vector, bool)) (Vector, bool) {
	if t == nil {
		return nil, true
	}
	switch t.Kind() {
	case srcast.KindPointer:
		slot := resolveSlot(t.Annotation(), defaults)
		rest, ok := substitute(t.Pointee(), defaults, resolve)
		if !ok {
			return nil, false
		}
		return append(Vector{slot}, rest...), true
	case srcast.KindNamed:
		var v Vector
		for _, arg := range t.TemplateArgs() {
			part, ok := substitute(arg, defaults, resolve)
			if !ok {
				return nil, false
			}
			v = append(v, part...)
		}
		return v, true
	case srcast.KindTemplateParam:
		return resolve(t.ParamIndex(), t.Pack(), t.PackWidth())
	default:
		return nil, true
	}
}
