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

// nullcheck is a standalone driver over the nullability dataflow engine.
// It reads a bundle of translation-unit descriptors (a txtar archive, one
// archive file per unit) and runs the engine over each concurrently,
// printing diagnostics and the final aggregated inference table.
//
// Real front-end parsing is out of scope for the engine (spec.md section
// 1), so each archive entry names one of a small set of builtin fixtures
// built with internal/fakesrc rather than carrying source text the driver
// would need a compiler to understand. An entry's body instead carries the
// pragma directives that shape its FileContext.
package main

import (
	"errors"
	"flag"
	"fmt"
	"hash/crc32"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/txtar"

	"nilcheck.dev/nilcheck/config"
	"nilcheck.dev/nilcheck/engine"
	"nilcheck.dev/nilcheck/inference"
	"nilcheck.dev/nilcheck/infercache"
	"nilcheck.dev/nilcheck/nullkind"
	"nilcheck.dev/nilcheck/solver"
	"nilcheck.dev/nilcheck/srcast"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "nullcheck:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("nullcheck", flag.ContinueOnError)
	bundlePath := fs.String("bundle", "", "path to a txtar archive of translation-unit descriptors")
	iterations := fs.Int("iterations", config.DefaultIterations, "number of inference iterations")
	cachePath := fs.String("cache", "", "optional path to persist/reuse the inference table")
	verbose := fs.Bool("v", false, "enable debug-level operational logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bundlePath == "" {
		return errors.New("-bundle is required")
	}

	log, err := newLogger(*verbose)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	archive, err := txtar.ParseFile(*bundlePath)
	if err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}

	units, err := parseArchive(archive)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return errors.New("bundle contains no translation units")
	}

	cfg := config.NewConfig(config.WithIterations(*iterations))

	fp := fingerprint(archive, *iterations)

	if *cachePath != "" {
		if cached, ok, err := infercache.Load(*cachePath, fp); err != nil {
			log.Warnw("inference cache load failed, continuing without it", "error", err)
		} else if ok {
			printInferences(cached)
			log.Infow("inference table served from cache", "path", *cachePath, "slots", len(cached))
			return nil
		}
	}

	// spec.md 4.6.2 step 1's fixed-point feedback loop: each pass feeds the
	// previous pass's aggregated Inferences back in as declaration
	// overrides, so a callee inferred NonNull on iteration i can strengthen
	// a caller's evidence on iteration i+1, up to cfg.Iterations passes.
	n := cfg.Iterations
	if n < 1 {
		n = 1
	}
	var overrides map[srcast.USR]nullkind.Vector
	var results []engine.Result
	var errs []error
	var infs []inference.Inference
	for i := 0; i < n; i++ {
		infEngine := inference.NewEngine(cfg).WithLogger(log)
		results, errs = analyzeUnits(units, cfg, log, infEngine, overrides)
		infs = infEngine.Finalize()
		overrides = inference.Overrides(infs)
		log.Debugw("inference iteration complete", "iteration", i, "slots", len(infs))
	}

	for _, e := range errs {
		log.Warnw("function analysis failed", "error", e.Error())
	}

	printResults(results)
	printInferences(infs)

	if *cachePath != "" {
		if err := infercache.Save(*cachePath, fp, infs); err != nil {
			log.Warnw("inference cache save failed", "error", err)
		}
	}
	return nil
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// unit pairs one parsed translation unit with the archive entry name it
// came from, for error reporting.
type unit struct {
	name string
	tu   srcast.TranslationUnit
}

func parseArchive(archive *txtar.Archive) ([]unit, error) {
	var units []unit
	for _, f := range archive.Files {
		fixtureName, fc, err := parseDescriptor(f.Name, f.Data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		build, err := lookupFixture(fixtureName)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		units = append(units, unit{name: f.Name, tu: build(fc)})
	}
	return units, nil
}

// parseDescriptor reads the small directive language an archive entry's
// body carries: a required "fixture: <name>" line selecting the builtin
// scenario, and zero or more pragma lines shaping the FileContext, in the
// same vocabulary spec.md section 6 defines for source-embedded pragmas.
func parseDescriptor(path string, data []byte) (string, *srcast.FileContext, error) {
	fc := &srcast.FileContext{Path: path}
	var fixtureName string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "fixture:"):
			fixtureName = strings.TrimSpace(strings.TrimPrefix(line, "fixture:"))
		case strings.HasPrefix(line, "#pragma "):
			directive := strings.TrimSpace(strings.TrimPrefix(line, "#pragma "))
			switch {
			case directive == config.NoInferPragma:
				fc.NoInfer = true
			case strings.HasPrefix(directive, config.FileDefaultPragmaPrefix):
				switch strings.TrimSpace(strings.TrimPrefix(directive, config.FileDefaultPragmaPrefix)) {
				case "nonnull":
					fc.Default = srcast.DefaultNonNull
				case "nullable":
					fc.Default = srcast.DefaultNullable
				}
			}
		}
	}
	if fixtureName == "" {
		return "", nil, errors.New("missing \"fixture: <name>\" directive")
	}
	return fixtureName, fc, nil
}

// analyzeUnits runs every unit's translation unit through its own Engine
// concurrently: each unit gets its own Arena and Solver since neither is
// safe to share across goroutines, and evidence is only folded into the
// shared inference.Engine once every unit has finished, avoiding concurrent
// map writes on infEngine's internal tables.
func analyzeUnits(units []unit, cfg *config.Config, log *zap.SugaredLogger, infEngine *inference.Engine, overrides map[srcast.USR]nullkind.Vector) ([]engine.Result, []error) {
	perUnit := make([][]engine.Result, len(units))
	perUnitErrs := make([][]error, len(units))

	var g errgroup.Group
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			s := solver.NewBounded(cfg.SATIterationCap).WithLogger(log.Named(u.name))
			en := engine.New(u.tu, s, cfg).WithLogger(log.Named(u.name)).WithDeclOverrides(overrides)
			results, errs := en.AnalyzeTranslationUnit(nil)
			perUnit[i] = results
			for _, e := range errs {
				perUnitErrs[i] = append(perUnitErrs[i], fmt.Errorf("%s: %w", u.name, e))
			}
			return nil
		})
	}
	_ = g.Wait() // AnalyzeTranslationUnit never returns an error itself; per-function failures are collected above.

	var results []engine.Result
	var errs []error
	for i := range units {
		results = append(results, perUnit[i]...)
		errs = append(errs, perUnitErrs[i]...)
	}
	for _, u := range units {
		for _, fn := range u.tu.Functions() {
			d := fn.Decl()
			if d == nil || d.File() == nil || !d.File().NoInfer {
				continue
			}
			infEngine.SuppressInference(d.USR())
			for p := 0; p < d.NumParams(); p++ {
				infEngine.SuppressInference(d.ParamUSR(p))
			}
		}
	}
	for _, res := range results {
		for _, ev := range res.Evidence {
			infEngine.Record(ev)
		}
	}
	return results, errs
}

func printResults(results []engine.Result) {
	for _, res := range results {
		for _, d := range res.Diagnostics {
			fmt.Println(d.String())
		}
	}
}

func printInferences(infs []inference.Inference) {
	for _, inf := range infs {
		marker := ""
		if inf.Conflict {
			marker = " (conflict)"
		}
		fmt.Printf("%s#%d -> %s%s\n", inf.Slot.Declaration, inf.Slot.Index, inf.Kind, marker)
	}
}

func fingerprint(archive *txtar.Archive, iterations int) string {
	h := crc32.NewIEEE()
	h.Write(archive.Comment)
	for _, f := range archive.Files {
		h.Write([]byte(f.Name))
		h.Write(f.Data)
	}
	return fmt.Sprintf("%08x-i%d", h.Sum32(), iterations)
}
