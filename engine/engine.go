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

// Package engine orchestrates C1 through C6 into one runnable analysis:
// given a translation unit, it builds a CFG per function, iterates it to a
// dataflow fixed point (spec.md 5), and produces diagnostics plus evidence
// for inference (spec.md 4.6).
package engine

import (
	"go.uber.org/zap"

	"nilcheck.dev/nilcheck/config"
	"nilcheck.dev/nilcheck/diagnostic"
	"nilcheck.dev/nilcheck/evidence"
	"nilcheck.dev/nilcheck/fixpoint"
	"nilcheck.dev/nilcheck/formula"
	"nilcheck.dev/nilcheck/inference"
	"nilcheck.dev/nilcheck/lattice"
	"nilcheck.dev/nilcheck/nullkind"
	"nilcheck.dev/nilcheck/ptrval"
	"nilcheck.dev/nilcheck/solver"
	"nilcheck.dev/nilcheck/srcast"
	"nilcheck.dev/nilcheck/storage"
	"nilcheck.dev/nilcheck/transfer"
)

// Result is the output of analyzing one function.
type Result struct {
	Function    srcast.Decl
	Diagnostics []diagnostic.Diagnostic
	Evidence    []evidence.Evidence
}

// Engine wires the per-run collaborators: the arena all allocations for one
// translation unit are owned by, the SAT collaborator, the config, and the
// translation unit itself for smart-pointer classification.
type Engine struct {
	Arena  *lattice.Arena
	Solver solver.Solver
	Config *config.Config
	TU     srcast.TranslationUnit
	log    *zap.SugaredLogger
	// declOverrides seeds every function's Lattice with the previous
	// inference iteration's conclusions (spec.md 4.6.2 step 1), so a
	// callee inferred NonNull can strengthen its callers on the next pass.
	// Nil on the first iteration.
	declOverrides map[srcast.USR]nullkind.Vector
}

// New returns an Engine over a fresh Arena for one translation-unit run.
func New(tu srcast.TranslationUnit, s solver.Solver, cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &Engine{Arena: lattice.NewArena(), Solver: s, Config: cfg, TU: tu, log: zap.NewNop().Sugar()}
}

// WithLogger attaches a per-run structured logger, replacing the no-op
// default. Analysis diagnostics (the engine's actual product) never go
// through this logger; it carries only internal operational messages, such
// as the debug-log downgrade of a per-function analysis failure.
func (en *Engine) WithLogger(log *zap.SugaredLogger) *Engine {
	if log != nil {
		en.log = log
	}
	return en
}

// WithDeclOverrides seeds this Engine's per-function Lattices with a
// previous inference iteration's conclusions, driving spec.md 4.6.2 step
// 1's fixed-point feedback loop: analyze, aggregate evidence into
// Inferences, feed those back as overrides, and repeat for the configured
// iteration count (see cmd/nullcheck's driver loop).
func (en *Engine) WithDeclOverrides(overrides map[srcast.USR]nullkind.Vector) *Engine {
	en.declOverrides = overrides
	return en
}

// AnalyzeFunction runs C3-C6 over one function: it walks the function's CFG
// to a dataflow fixed point (spec.md 5), checking dereferences, call
// arguments, and initializers as it goes, and collecting the Evidence each
// site contributes (spec.md 4.6.2).
func (en *Engine) AnalyzeFunction(fn srcast.Function) (Result, error) {
	d := fn.Decl()
	res := Result{Function: d}

	cfg, ok := fn.CFG()
	if !ok {
		en.log.Debugw("cfg construction failed, skipping function", "function", d.Name())
		return res, &FunctionError{Function: d.Name(), Err: ErrCFGConstruction}
	}

	lat := lattice.NewLattice(en.declOverrides)
	tctx := &transfer.Context{Arena: en.Arena, Lat: lat, Solver: en.Solver, TU: en.TU}

	blocks := cfg.Blocks()
	envs := make(map[int]*lattice.Environment, len(blocks))
	edgeEnvs := make(map[edgeKey]*lattice.Environment, len(blocks))
	loopIn := make(map[int]*lattice.Environment, len(blocks))
	visits := make(map[int]int, len(blocks))

	entry := cfg.Entry()
	envs[entry.ID()] = lattice.NewEnvironment()

	for field, initExpr := range fn.MemberInitializers() {
		w := &walker{en: en, ctx: tctx, res: &res}
		w.walkExpr(initExpr, envs[entry.ID()])
		res.Diagnostics = append(res.Diagnostics, diagnostic.CheckInitializer(field, initExpr, envs[entry.ID()], tctx)...)
		if initExpr.Kind() == srcast.ExprNullLiteral {
			res.Evidence = append(res.Evidence, evidence.Evidence{
				Declaration: field.USR(), Slot: 0, Kind: evidence.DefaultMemberInitializerNull,
				Location: initExpr.Pos(),
			})
		}
	}

	queue := append([]srcast.BasicBlock{}, blocks...)
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]

		visits[b.ID()]++
		if visits[b.ID()] > en.Config.BlockVisitCap {
			en.log.Debugw("block visit cap exceeded, skipping function", "function", d.Name(), "block", b.ID())
			return res, &FunctionError{Function: d.Name(), Err: ErrBlockVisitCap}
		}

		in := mergePredecessors(b, envs, edgeEnvs, en.Solver, tctx.Arena.FreshAtom)
		if in == nil {
			continue // no predecessor has produced an out-environment yet
		}
		if b.IsLoopHead() {
			if prev, ok := loopIn[b.ID()]; ok {
				in = fixpoint.WidenEnvironment(prev, in, en.Solver, en.Arena)
			}
			loopIn[b.ID()] = in
		}

		prevOut, hadPrevOut := envs[b.ID()]
		out, cond, w := en.runBlock(b, in, tctx, lat, fn)
		res.Diagnostics = append(res.Diagnostics, w.diags...)
		res.Evidence = append(res.Evidence, w.evs...)
		envs[b.ID()] = out

		for succID, succEnv := range successorEnvironments(b, out, cond, tctx) {
			edgeEnvs[edgeKey{from: b.ID(), to: succID}] = succEnv
		}

		stable := b.IsLoopHead() && hadPrevOut && environmentsStable(prevOut, out)
		if stable {
			continue // fixed point reached at this loop head, don't requeue successors
		}
		queue = append(queue, b.Successors()...)
	}

	return res, nil
}

// environmentsStable reports whether every location tracked by either
// environment compares Same (spec.md 4.5's Compare), meaning a further
// revisit of the block that produced them would not change anything.
func environmentsStable(prev, cur *lattice.Environment) bool {
	seen := map[storage.Location]bool{}
	for _, loc := range prev.Locations() {
		seen[loc] = true
		pv, _ := prev.Get(loc)
		cv, ok := cur.Get(loc)
		if !ok || fixpoint.Compare(pv, cv) != fixpoint.Same {
			return false
		}
	}
	for _, loc := range cur.Locations() {
		if !seen[loc] {
			return false
		}
	}
	return true
}

// edgeKey identifies one directed CFG edge, used to keep the two output
// environments of a two-way branch (spec.md 5's "then/else" edges) distinct
// instead of collapsing them into one shared per-block environment.
type edgeKey struct {
	from, to int
}

func mergePredecessors(b srcast.BasicBlock, envs map[int]*lattice.Environment, edgeEnvs map[edgeKey]*lattice.Environment, s solver.Solver, fresh ptrval.AtomFactory) *lattice.Environment {
	preds := b.Predecessors()
	if len(preds) == 0 {
		if e, ok := envs[b.ID()]; ok {
			return e
		}
		return nil
	}
	var acc *lattice.Environment
	for _, p := range preds {
		pe, ok := edgeEnvs[edgeKey{from: p.ID(), to: b.ID()}]
		if !ok {
			continue
		}
		if acc == nil {
			acc = pe
			continue
		}
		acc = fixpoint.Merge(acc, pe, s, fresh)
	}
	return acc
}

// successorEnvironments computes the output environment each of b's
// successor edges should carry (spec.md 4.4.2, 5). When b ends in a
// two-way branch on a null-check comparison, the then edge (successor 0)
// gets out narrowed by assuming the condition true and the else edge
// (successor 1) gets a separately narrowed copy assuming it false, so an
// `if (p != nullptr) {...} else {...}` analyzes each side under its own
// assumption instead of sharing one narrowed environment. Every other
// successor (including both edges of a branch with no recognized
// condition) simply carries out unchanged.
func successorEnvironments(b srcast.BasicBlock, out *lattice.Environment, cond srcast.Expr, ctx *transfer.Context) map[int]*lattice.Environment {
	succs := b.Successors()
	result := make(map[int]*lattice.Environment, len(succs))
	if cond != nil && len(succs) == 2 {
		trueEnv := out.Clone()
		transfer.AssumeNullCheck(cond, true, trueEnv, ctx)
		falseEnv := out.Clone()
		transfer.AssumeNullCheck(cond, false, falseEnv, ctx)
		result[succs[0].ID()] = trueEnv
		result[succs[1].ID()] = falseEnv
		return result
	}
	for _, s := range succs {
		result[s.ID()] = out
	}
	return result
}

type walker struct {
	en    *Engine
	ctx   *transfer.Context
	res   *Result
	diags []diagnostic.Diagnostic
	evs   []evidence.Evidence
}

// runBlock evaluates a block's elements in program order and, when the
// block ends in a two-way branch on a null-check comparison, reports that
// trailing condition so the caller can narrow each successor edge
// separately (successorEnvironments) instead of sharing one environment
// between the then and else edges.
func (en *Engine) runBlock(b srcast.BasicBlock, in *lattice.Environment, ctx *transfer.Context, lat *lattice.Lattice, fn srcast.Function) (*lattice.Environment, srcast.Expr, *walker) {
	out := in.Clone()
	w := &walker{en: en, ctx: ctx}

	elements := b.Elements()
	for _, el := range elements {
		switch el.Kind() {
		case srcast.ElementInitializer:
			field, initExpr := el.InitField(), el.InitExpr()
			w.walkExpr(initExpr, out)
			w.diags = append(w.diags, diagnostic.CheckInitializer(field, initExpr, out, ctx)...)
		case srcast.ElementReturn:
			w.walkReturn(fn.Decl(), el.ReturnExpr(), out)
		default:
			e := el.Expr()
			w.walkExpr(e, out)
		}
	}

	var cond srcast.Expr
	if len(b.Successors()) == 2 && len(elements) > 0 {
		last := elements[len(elements)-1]
		if last.Kind() == srcast.ElementStatement && last.Expr() != nil && last.Expr().Kind() == srcast.ExprBinaryCompare {
			cond = last.Expr()
		}
	}

	return out, cond, w
}

// walkExpr recursively visits e's sub-expressions post-order, applying the
// value transfer as a side effect and emitting diagnostics/evidence at
// dereference, subscript, and call sites (spec.md 4.6.1, 4.6.2).
func (w *walker) walkExpr(e srcast.Expr, env *lattice.Environment) {
	if e == nil {
		return
	}
	for _, sub := range e.SubExprs() {
		w.walkExpr(sub, env)
	}
	if recv := e.Receiver(); recv != nil {
		w.walkExpr(recv, env)
	}
	for _, a := range e.Args() {
		w.walkExpr(a, env)
	}

	switch e.Kind() {
	case srcast.ExprDeclRef:
		w.collectAnnotatedEvidence(e)
	case srcast.ExprDereference, srcast.ExprSubscript:
		sub := e.SubExprs()
		if len(sub) > 0 {
			w.checkUncheckedDeref(sub[0], env)
		}
	case srcast.ExprCall, srcast.ExprMemberCall:
		w.diags = append(w.diags, diagnostic.CheckArgument(e, env, w.ctx)...)
		w.collectArgumentEvidence(e, env)
		if d := e.DeclRef(); d != nil && d.Name() == "__assert_nullability" {
			if args := e.Args(); len(args) > 0 {
				asserted := assertedVector(e.TemplateArgs())
				w.diags = append(w.diags, diagnostic.CheckAssertion(args[0], asserted, w.ctx.Lat)...)
			}
		}
	case srcast.ExprAssign:
		w.collectAssignEvidence(e, env)
	}

	transfer.ValueOf(e, env, w.ctx)
}

// assertedVector reads __assert_nullability<NK1,NK2,...>'s template
// arguments as the asserted nullkind.Vector, one slot per argument, each
// carried as an explicit annotation on the argument's Type (spec.md 6).
func assertedVector(args []srcast.TemplateArg) nullkind.Vector {
	v := make(nullkind.Vector, len(args))
	for i, a := range args {
		var ann srcast.ExplicitAnnotation
		if a.Type != nil {
			ann = a.Type.Annotation()
		}
		v[i] = nullkind.KindFromAnnotation(ann)
	}
	return v
}

// walkReturn implements the Return row of spec.md section 8's C6.1/C6.2:
// the returned expression is walked for its own side effects, checked
// against the enclosing function's declared nullability, and contributes
// NullableReturn/NonNullReturn evidence for the function's slot 0.
func (w *walker) walkReturn(fn srcast.Decl, retExpr srcast.Expr, env *lattice.Environment) {
	if retExpr == nil {
		return
	}
	w.walkExpr(retExpr, env)
	w.diags = append(w.diags, diagnostic.CheckReturn(fn, retExpr, env, w.ctx)...)

	if retExpr.Type() == nil || retExpr.Type().Kind() != srcast.KindPointer {
		return
	}
	if retExpr.Kind() == srcast.ExprNullLiteral {
		w.evs = append(w.evs, evidence.Evidence{Declaration: fn.USR(), Slot: 0, Kind: evidence.NullableReturn, Location: retExpr.Pos()})
		return
	}
	v := transfer.ValueOf(retExpr, env, w.ctx)
	if v.State.IsNull == nil {
		return
	}
	if env.Proves(w.ctx.Solver, formula.Not(v.State.IsNull)) {
		w.evs = append(w.evs, evidence.Evidence{Declaration: fn.USR(), Slot: 0, Kind: evidence.NonNullReturn, Location: retExpr.Pos()})
	}
}

func (w *walker) checkUncheckedDeref(target srcast.Expr, env *lattice.Environment) {
	w.diags = append(w.diags, diagnostic.CheckDereference(target, env, w.ctx)...)

	d := target.DeclRef()
	if d == nil {
		return
	}
	v := transfer.ValueOf(target, env, w.ctx)
	if v.State.IsNull == nil {
		return
	}
	if !env.Proves(w.ctx.Solver, formula.Not(v.State.IsNull)) {
		w.evs = append(w.evs, evidence.Evidence{
			Declaration: d.USR(), Slot: 0, Kind: evidence.UncheckedDereference, Location: target.Pos(),
		})
	}
}

// collectAnnotatedEvidence implements spec.md 4.6.2 step 1's fifth evidence
// trigger: a declaration reference whose declared type carries an explicit
// annotation (NonNull/Nullable/Unknown) at its outermost pointer slot counts
// as strong evidence for that same kind, independent of anything the
// dataflow observes at this use site.
func (w *walker) collectAnnotatedEvidence(e srcast.Expr) {
	d := e.DeclRef()
	if d == nil {
		return
	}
	t := d.DeclaredType()
	if t == nil || t.Kind() != srcast.KindPointer || t.Annotation() == srcast.AnnotationNone {
		return
	}
	w.evs = append(w.evs, evidence.Evidence{
		Declaration: d.USR(), Slot: 0, Kind: evidence.Annotated,
		AnnotatedKind: nullkind.KindFromAnnotation(t.Annotation()), Location: e.Pos(),
	})
}

func (w *walker) collectArgumentEvidence(call srcast.Expr, env *lattice.Environment) {
	callee := call.DeclRef()
	if callee == nil {
		return
	}
	for i, a := range call.Args() {
		if a == nil || a.Type() == nil || a.Type().Kind() != srcast.KindPointer {
			continue
		}
		pi := i
		if callee.Variadic() && pi >= callee.NumParams() {
			pi = callee.NumParams() - 1
		}
		if pi < 0 || pi >= callee.NumParams() {
			continue
		}
		usr := callee.ParamUSR(pi)
		if a.Kind() == srcast.ExprNullLiteral {
			w.evs = append(w.evs, evidence.Evidence{Declaration: usr, Slot: 0, Kind: evidence.NullableArgument, Location: a.Pos()})
			continue
		}
		v := transfer.ValueOf(a, env, w.ctx)
		if v.State.IsNull == nil {
			continue
		}
		if env.Proves(w.ctx.Solver, formula.Not(v.State.IsNull)) {
			w.evs = append(w.evs, evidence.Evidence{Declaration: usr, Slot: 0, Kind: evidence.NonNullArgument, Location: a.Pos()})
		}
	}
}

func (w *walker) collectAssignEvidence(assign srcast.Expr, env *lattice.Environment) {
	subs := assign.SubExprs()
	if len(subs) != 2 {
		return
	}
	lhs, rhs := subs[0], subs[1]
	if lhs.Type() == nil || lhs.Type().Kind() != srcast.KindPointer {
		return
	}
	d := lhs.DeclRef()
	if d == nil {
		return
	}
	if rhs.Kind() == srcast.ExprNullLiteral {
		w.evs = append(w.evs, evidence.Evidence{Declaration: d.USR(), Slot: 0, Kind: evidence.NullableAssignment, Location: rhs.Pos()})
	}
}

// AnalyzeTranslationUnit runs AnalyzeFunction over every function, recording
// each function's evidence into infEngine and continuing past per-function
// errors (spec.md 7: a CFG/block-cap failure aborts only its own function).
func (en *Engine) AnalyzeTranslationUnit(infEngine *inference.Engine) ([]Result, []error) {
	var results []Result
	var errs []error
	for _, fn := range en.TU.Functions() {
		res, err := en.AnalyzeFunction(fn)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
		if infEngine != nil {
			for _, ev := range res.Evidence {
				infEngine.Record(ev)
			}
		}
	}
	return results, errs
}
