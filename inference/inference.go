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

// Package inference implements the evidence aggregator (spec.md 4.6.2,
// C6.2): turning the evidence collected across one or more analysis
// iterations into a per-declaration, per-slot Inference, with conflict
// detection and virtual-method evidence pooling.
package inference

import (
	"sort"

	"go.uber.org/zap"

	"nilcheck.dev/nilcheck/config"
	"nilcheck.dev/nilcheck/evidence"
	"nilcheck.dev/nilcheck/nullkind"
	"nilcheck.dev/nilcheck/srcast"
)

// Slot identifies one pointer slot of one declaration.
type Slot struct {
	Declaration srcast.USR
	Index       int
}

// Inference is the aggregated conclusion for one Slot (spec.md 4.6.2).
type Inference struct {
	Slot Slot
	// Kind is the inferred nullability. A Conflict resolves to NonNull when
	// an unchecked dereference is among the strong NonNull evidence, and to
	// Nullable otherwise.
	Kind Kind
	// Conflict is true when strong evidence argued both ways.
	Conflict bool
	// Samples holds up to config.MaxSamplesPerSlot pieces of evidence per
	// direction, retained for diagnostics/debugging (SPEC_FULL supplement).
	Samples map[evidence.Direction][]evidence.Evidence
}

// Kind mirrors nullkind.Kind but is declared locally so that Unspecified
// has a distinct meaning here: "never observed any evidence", not "explicit
// annotation absent".
type Kind = nullkind.Kind

// Group couples a set of slots that must share one Inference, per spec.md
// 4.6.2's virtual-method rule: a base method's parameter slot and every
// override's corresponding slot are inferred together, since callers may
// invoke through either the base or a derived static type.
type Group struct {
	ID    string
	Slots []Slot
}

// Engine accumulates evidence across one or more iterations and produces
// the Inference table from everything recorded so far when Finalize is
// called.
type Engine struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	byGroup map[string][]evidence.Evidence
	slotGroup map[Slot]string
	noInfer map[srcast.USR]bool
}

// NewEngine returns an empty aggregation engine.
func NewEngine(cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &Engine{
		cfg:       cfg,
		log:       zap.NewNop().Sugar(),
		byGroup:   make(map[string][]evidence.Evidence),
		slotGroup: make(map[Slot]string),
	}
}

// WithLogger attaches a structured logger for per-iteration progress
// reporting (evidence counts, conflicts), replacing the no-op default.
func (en *Engine) WithLogger(log *zap.SugaredLogger) *Engine {
	if log != nil {
		en.log = log
	}
	return en
}

// RegisterGroup records that every slot in g shares one inferred outcome
// (spec.md 4.6.2's virtual-method coupling). Slots not explicitly grouped
// default to their own singleton group keyed by the slot itself.
func (en *Engine) RegisterGroup(g Group) {
	for _, s := range g.Slots {
		en.slotGroup[s] = g.ID
	}
}

// SuppressInference marks usr as written in a file carrying the NoInfer
// pragma (SPEC_FULL supplement: "#pragma nullability disable"): evidence
// for it is still recorded, but Finalize produces no Inference for any
// group holding such evidence.
func (en *Engine) SuppressInference(usr srcast.USR) {
	if en.noInfer == nil {
		en.noInfer = make(map[srcast.USR]bool)
	}
	en.noInfer[usr] = true
}

func (en *Engine) groupKey(s Slot) string {
	if g, ok := en.slotGroup[s]; ok {
		return g
	}
	return "slot:" + string(s.Declaration) + "#" + itoa(s.Index)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Record files one piece of evidence, per the GroupID it carries if any,
// else the slot's own registered group (or its singleton default).
func (en *Engine) Record(ev evidence.Evidence) {
	key := ev.GroupID
	if key == "" {
		key = en.groupKey(Slot{Declaration: ev.Declaration, Index: ev.Slot})
	}
	en.byGroup[key] = append(en.byGroup[key], ev)
	en.log.Debugw("evidence recorded", "group", key, "kind", ev.Kind, "declaration", ev.Declaration)
}

// Finalize aggregates every group's evidence into Inferences, per spec.md
// 4.6.2: strong evidence in only one direction wins; strong evidence in
// both directions is a Conflict, resolved to NonNull when an unchecked
// dereference is among the strong NonNull evidence and to Nullable
// otherwise; absent strong
// evidence, weak evidence decides (ties resolve to Nullable); absent any
// evidence at all, no Inference is produced for that group.
func (en *Engine) Finalize() []Inference {
	var out []Inference
	var conflicts int
	for key, evs := range en.byGroup {
		suppressed := false
		for _, e := range evs {
			if en.noInfer[e.Declaration] {
				suppressed = true
				break
			}
		}
		if suppressed {
			en.log.Debugw("group suppressed by pragma", "group", key)
			continue
		}

		var strongNonNull, strongNullable, weakNonNull, weakNullable []evidence.Evidence
		for _, e := range evs {
			switch {
			case e.Strength() == evidence.Strong && e.Direction() == evidence.TowardNonNull:
				strongNonNull = append(strongNonNull, e)
			case e.Strength() == evidence.Strong && e.Direction() == evidence.TowardNullable:
				strongNullable = append(strongNullable, e)
			case e.Direction() == evidence.TowardNonNull:
				weakNonNull = append(weakNonNull, e)
			default:
				weakNullable = append(weakNullable, e)
			}
		}

		inf := inferenceFor(key, evs, strongNonNull, strongNullable, weakNonNull, weakNullable, en.cfg)
		if inf.Conflict {
			conflicts++
		}
		out = append(out, inf)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Slot.Declaration != out[j].Slot.Declaration {
			return out[i].Slot.Declaration < out[j].Slot.Declaration
		}
		return out[i].Slot.Index < out[j].Slot.Index
	})
	en.log.Debugw("inference finalized", "slots", len(out), "conflicts", conflicts)
	return out
}

// hasUncheckedDereference reports whether an unchecked-dereference is among
// the strong-NonNull evidence, per spec.md 4.6.2 rule 1: a strong/strong
// conflict resolves toward NonNull only when a real dereference forced the
// issue, since suppressing that report is more costly than a Nullable
// misclassification would be for the weaker forms of strong-NonNull
// evidence (e.g. a NonNull argument at a call site).
func hasUncheckedDereference(strongNonNull []evidence.Evidence) bool {
	for _, e := range strongNonNull {
		if e.Kind == evidence.UncheckedDereference {
			return true
		}
	}
	return false
}

func inferenceFor(key string, all, strongNonNull, strongNullable, weakNonNull, weakNullable []evidence.Evidence, cfg *config.Config) Inference {
	representative := all[0].Declaration
	slotIdx := all[0].Slot
	for _, e := range all {
		if e.GroupID == "" {
			representative = e.Declaration
			slotIdx = e.Slot
			break
		}
	}

	var kind Kind
	conflict := false
	switch {
	case len(strongNonNull) > 0 && len(strongNullable) > 0:
		if hasUncheckedDereference(strongNonNull) {
			kind = nullkind.NonNull
		} else {
			kind = nullkind.Nullable
		}
		conflict = true
	case len(strongNonNull) > 0:
		kind = nullkind.NonNull
	case len(strongNullable) > 0:
		kind = nullkind.Nullable
	case len(weakNonNull) > len(weakNullable):
		kind = nullkind.NonNull
	default:
		kind = nullkind.Nullable
	}
	if len(weakNonNull) == 0 && len(weakNullable) == 0 && len(strongNonNull) == 0 && len(strongNullable) == 0 {
		kind = nullkind.Unspecified
	}

	samples := map[evidence.Direction][]evidence.Evidence{}
	for _, e := range all {
		d := e.Direction()
		if len(samples[d]) >= config.MaxSamplesPerSlot {
			continue
		}
		samples[d] = append(samples[d], e)
	}

	_ = key
	return Inference{
		Slot:     Slot{Declaration: representative, Index: slotIdx},
		Kind:     kind,
		Conflict: conflict,
		Samples:  samples,
	}
}

// Overrides converts a finalized Inference table into the declaration
// override map the next iteration's Engine should be seeded with, via
// engine.Engine.WithDeclOverrides (spec.md 4.6.2 step 1: "use the previous
// iteration's inferred nullabilities as declaration overrides", letting a
// callee inferred NonNull strengthen its callers on the next pass). A
// declaration's slots never assigned an Inference of their own stay
// Unspecified, matching lattice.NewLattice's zero-value convention for a
// declaration with no override at all.
func Overrides(infs []Inference) map[srcast.USR]nullkind.Vector {
	out := make(map[srcast.USR]nullkind.Vector, len(infs))
	for _, inf := range infs {
		v := out[inf.Slot.Declaration]
		for len(v) <= inf.Slot.Index {
			v = append(v, nullkind.Unspecified)
		}
		v[inf.Slot.Index] = inf.Kind
		out[inf.Slot.Declaration] = v
	}
	return out
}
