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

// Package config hosts the non-user-configurable parameters of the
// nullability engine, plus the Config struct library callers tune.
package config

// DefaultIterations is the number of inference iterations (N) run when the
// caller does not specify one explicitly.
const DefaultIterations = 1

// SATIterationCap bounds the number of iterations the SAT collaborator may
// spend proving a single formula before it aborts with a "limit reached"
// signal (spec.md 4.6.3).
const SATIterationCap = 2_000_000

// BlockVisitCap bounds the number of times any single CFG basic block may be
// revisited while iterating to a fixed point. Exceeding it fails analysis of
// the enclosing function (spec.md 5).
const BlockVisitCap = 20_000

// StableRoundLimit is the default for Config.StableRounds. Neither the
// inference engine nor the cmd/nullcheck driver reads that field: the
// driver always runs the requested number of inference iterations.
const StableRoundLimit = 5

// MaxSamplesPerSlot bounds how many sample Evidence entries are retained per
// (declaration, slot) pair in an Inference's Samples map, so that hot
// declarations with thousands of call sites don't blow up memory.
const MaxSamplesPerSlot = 8

// NoInferPragma is the file-level pragma directive that suppresses inference
// (but not diagnosis) for the functions defined in that file and their
// parameters.
const NoInferPragma = "nullability disable"

// FileDefaultPragmaPrefix is the recognized prefix of the per-file default
// nullability pragma, e.g. "#pragma nullability file_default nonnull".
const FileDefaultPragmaPrefix = "nullability file_default"

// Config holds the tunable knobs for one analysis run. Use NewConfig with
// Options to build one; the zero value is not valid.
type Config struct {
	Iterations     int
	SATIterationCap int
	BlockVisitCap  int
	StableRounds   int
}

// Option configures a Config.
type Option func(*Config)

// WithIterations sets the number of inference iterations (N).
func WithIterations(n int) Option {
	return func(c *Config) { c.Iterations = n }
}

// WithSATCap overrides the SAT solver's iteration budget.
func WithSATCap(n int) Option {
	return func(c *Config) { c.SATIterationCap = n }
}

// WithBlockVisitCap overrides the per-function basic-block revisit budget.
func WithBlockVisitCap(n int) Option {
	return func(c *Config) { c.BlockVisitCap = n }
}

// WithStableRounds overrides the fixed-point stability window.
func WithStableRounds(n int) Option {
	return func(c *Config) { c.StableRounds = n }
}

// NewConfig builds a Config with the package defaults, then applies opts.
func NewConfig(opts ...Option) *Config {
	c := &Config{
		Iterations:      DefaultIterations,
		SATIterationCap: SATIterationCap,
		BlockVisitCap:   BlockVisitCap,
		StableRounds:    StableRoundLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
