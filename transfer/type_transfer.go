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

// Package transfer implements the Flow-Sensitive Transfer (spec.md 4.4,
// C4): the type transfer, which fills the expression-nullability cache
// bottom-up, and the value transfer, which manipulates PointerValue atoms.
package transfer

import (
	"nilcheck.dev/nilcheck/lattice"
	"nilcheck.dev/nilcheck/nullkind"
	"nilcheck.dev/nilcheck/srcast"
)

// TypeOf computes (or returns the cached) TypeNullability of e, per the
// dispatch table in spec.md 4.4.1. It always returns a vector whose length
// matches srcast.CountPointers(e.Type()); a structural mismatch produced by
// a dispatch rule is silently refilled with Unspecified rather than
// propagated as an error (spec.md 4.4.1, 7).
func TypeOf(e srcast.Expr, lat *lattice.Lattice) nullkind.Vector {
	if e == nil {
		return nil
	}
	if v, ok := lat.CachedType(e); ok {
		return v
	}
	v := computeType(e, lat)
	if fitted, mismatched := nullkind.FitToType(v, e.Type()); mismatched {
		v = fitted
	}
	lat.CacheType(e, v)
	return v
}

func defaultsFor(f *srcast.FileContext) nullkind.Defaults {
	return nullkind.DefaultsFromFile(f)
}

func computeType(e srcast.Expr, lat *lattice.Lattice) nullkind.Vector {
	switch e.Kind() {
	case srcast.ExprDeclRef:
		return declRefType(e, lat)
	case srcast.ExprMemberAccess:
		return memberAccessType(e, lat)
	case srcast.ExprMemberCall:
		return memberCallType(e, lat)
	case srcast.ExprCast:
		return castType(e, lat)
	case srcast.ExprAddressOf:
		sub := subExpr(e, 0)
		return append(nullkind.Vector{nullkind.NonNull}, TypeOf(sub, lat)...)
	case srcast.ExprDereference:
		sub := subExpr(e, 0)
		v := TypeOf(sub, lat)
		if len(v) == 0 {
			return nil
		}
		return v[1:]
	case srcast.ExprSubscript:
		return subscriptType(e, lat)
	case srcast.ExprThis:
		v := nullkind.TypeNullability(e.Type(), defaultsFor(e.File()))
		if len(v) == 0 {
			v = nullkind.Vector{nullkind.NonNull}
		} else {
			v = v.WithSlot(0, nullkind.NonNull)
		}
		return v
	case srcast.ExprNew:
		v := nullkind.TypeNullability(e.Type(), defaultsFor(e.File()))
		if len(v) == 0 {
			return v
		}
		if e.MayReturnNull() {
			return v.WithSlot(0, nullkind.Nullable)
		}
		return v.WithSlot(0, nullkind.NonNull)
	case srcast.ExprCall:
		return callType(e, lat)
	default:
		return nullkind.TypeNullability(e.Type(), defaultsFor(e.File()))
	}
}

func subExpr(e srcast.Expr, i int) srcast.Expr {
	subs := e.SubExprs()
	if i < 0 || i >= len(subs) {
		return nil
	}
	return subs[i]
}

func declRefType(e srcast.Expr, lat *lattice.Lattice) nullkind.Vector {
	d := e.DeclRef()
	if d == nil {
		return nullkind.TypeNullability(e.Type(), defaultsFor(e.File()))
	}
	if override, ok := lat.DeclOverride(d.USR()); ok {
		return override
	}
	return nullkind.TypeNullability(d.DeclaredType(), defaultsFor(d.File()))
}

func memberAccessType(e srcast.Expr, lat *lattice.Lattice) nullkind.Vector {
	m := e.DeclRef()
	if m == nil {
		return nullkind.TypeNullability(e.Type(), defaultsFor(e.File()))
	}
	if m.IsBoundMember() {
		return nullkind.TypeNullability(m.DeclaredType(), defaultsFor(m.File()))
	}
	if override, ok := lat.DeclOverride(m.USR()); ok {
		return override
	}

	base := e.Receiver()
	baseType := base.Type()
	baseVector := TypeOf(base, lat)
	v, ok := nullkind.ResugarMember(m.DeclaredType(), m.DeclaringClass(), baseType.ClassName(), baseVector, baseType.TemplateArgs(), defaultsFor(m.File()))
	if !ok {
		return nullkind.TypeNullability(m.DeclaredType(), defaultsFor(m.File()))
	}
	return v
}

func memberCallType(e srcast.Expr, lat *lattice.Lattice) nullkind.Vector {
	m := e.DeclRef()
	if m == nil {
		return nullkind.TypeNullability(e.Type(), defaultsFor(e.File()))
	}
	base := e.Receiver()
	baseType := base.Type()
	baseVector := TypeOf(base, lat)

	full, ok := nullkind.ResugarMember(m.DeclaredType(), m.DeclaringClass(), baseType.ClassName(), baseVector, baseType.TemplateArgs(), defaultsFor(m.File()))
	if !ok {
		full = nullkind.TypeNullability(m.DeclaredType(), defaultsFor(m.File()))
	}
	k := srcast.CountPointers(m.DeclaredType())
	if k > len(full) {
		k = len(full)
	}
	return full[:k]
}

func castType(e srcast.Expr, lat *lattice.Lattice) nullkind.Vector {
	sub := subExpr(e, 0)
	switch e.CastKind() {
	case srcast.CastIdentity:
		return TypeOf(sub, lat)
	case srcast.CastBitOrHierarchy:
		v := nullkind.TypeNullability(e.Type(), nullkind.Defaults{FileDefault: nullkind.Unspecified})
		childVec := TypeOf(sub, lat)
		srcType, dstType := sub.Type(), e.Type()
		for i := 0; srcType != nil && dstType != nil &&
			srcType.Kind() == srcast.KindPointer && dstType.Kind() == srcast.KindPointer &&
			i < len(v) && i < len(childVec); i++ {
			v = v.WithSlot(i, childVec[i])
			srcType, dstType = srcType.Pointee(), dstType.Pointee()
		}
		return v
	case srcast.CastDynamic:
		v := nullkind.TypeNullability(e.Type(), nullkind.Defaults{FileDefault: nullkind.Unspecified})
		if len(v) > 0 {
			v = v.WithSlot(0, nullkind.Nullable)
		}
		return v
	case srcast.CastNullToPointer:
		v := nullkind.TypeNullability(e.Type(), nullkind.Defaults{FileDefault: nullkind.Unspecified})
		if len(v) > 0 {
			v = v.WithSlot(0, nullkind.Nullable)
		}
		return v
	case srcast.CastIntegralToPointer:
		return nullkind.TypeNullability(e.Type(), nullkind.Defaults{FileDefault: nullkind.Unspecified})
	case srcast.CastArrayOrFunctionDecay:
		return append(nullkind.Vector{nullkind.NonNull}, TypeOf(sub, lat)...)
	default:
		return TypeOf(sub, lat)
	}
}

func subscriptType(e srcast.Expr, lat *lattice.Lattice) nullkind.Vector {
	base := subExpr(e, 0)
	if base != nil && base.Type() != nil && base.Type().Kind() == srcast.KindPointer {
		v := TypeOf(base, lat)
		if len(v) == 0 {
			return nil
		}
		return v[1:]
	}
	return nullkind.TypeNullability(e.Type(), defaultsFor(e.File()))
}

func callType(e srcast.Expr, lat *lattice.Lattice) nullkind.Vector {
	d := e.DeclRef()
	if d == nil {
		return nullkind.TypeNullability(e.Type(), defaultsFor(e.File()))
	}
	if override, ok := lat.DeclOverride(d.USR()); ok {
		return override
	}
	if targs := e.TemplateArgs(); len(targs) > 0 {
		return nullkind.ResugarCall(d.DeclaredType(), targs, defaultsFor(d.File()))
	}
	return nullkind.TypeNullability(d.DeclaredType(), defaultsFor(d.File()))
}
