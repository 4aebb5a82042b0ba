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

// Package infercache persists an inference.Engine's Finalize() output to
// disk so that a repeated run against an unchanged translation unit can
// skip re-deriving it (SPEC_FULL's DOMAIN STACK: cross-run inference
// caching, keyed by a caller-supplied content fingerprint).
package infercache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"nilcheck.dev/nilcheck/evidence"
	"nilcheck.dev/nilcheck/inference"
	"nilcheck.dev/nilcheck/nullkind"
	"nilcheck.dev/nilcheck/srcast"
)

// record is the gob-serializable shape of one inference.Inference: the
// exported types in inference/evidence don't need gob tags since every
// field they carry is itself already gob-encodable, but srcast.Position and
// evidence.Evidence are copied field-by-field here to keep the on-disk
// format decoupled from srcast's interface-heavy Decl/Expr types, which are
// never themselves serializable.
type record struct {
	DeclUSR  string
	Slot     int
	Kind     nullkind.Kind
	Conflict bool
	Samples  []sampleRecord
}

type sampleRecord struct {
	Direction     evidence.Direction
	DeclUSR       string
	Slot          int
	Kind          evidence.Kind
	AnnotatedKind nullkind.Kind
	File          string
	Line          int
	Column        int
	GroupID       string
}

// table is the top-level on-disk payload: a fingerprint identifying the
// translation-unit snapshot the cache was built from, plus the records.
type table struct {
	Fingerprint string
	Records     []record
}

// Save writes infs to path, zstd-compressed, keyed by fingerprint (an
// opaque caller-supplied string - e.g. a hash of the translation unit's
// source content - used by Load to detect staleness).
func Save(path, fingerprint string, infs []inference.Inference) error {
	t := table{Fingerprint: fingerprint}
	for _, inf := range infs {
		r := record{
			DeclUSR:  string(inf.Slot.Declaration),
			Slot:     inf.Slot.Index,
			Kind:     inf.Kind,
			Conflict: inf.Conflict,
		}
		for dir, samples := range inf.Samples {
			for _, s := range samples {
				r.Samples = append(r.Samples, sampleRecord{
					Direction:     dir,
					DeclUSR:       string(s.Declaration),
					Slot:          s.Slot,
					Kind:          s.Kind,
					AnnotatedKind: s.AnnotatedKind,
					File:          s.Location.File,
					Line:          s.Location.Line,
					Column:        s.Location.Column,
					GroupID:       s.GroupID,
				})
			}
		}
		t.Records = append(t.Records, r)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t); err != nil {
		return fmt.Errorf("infercache: encode: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("infercache: create: %w", err)
	}
	defer f.Close()

	w, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("infercache: zstd writer: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		w.Close()
		return fmt.Errorf("infercache: write: %w", err)
	}
	return w.Close()
}

// Load reads back a cache written by Save, returning ok=false (with no
// error) if the file doesn't exist or its fingerprint doesn't match wantFP,
// so callers can fall through to a fresh analysis run.
func Load(path, wantFP string) (infs []inference.Inference, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("infercache: open: %w", err)
	}
	defer f.Close()

	r, err := zstd.NewReader(f)
	if err != nil {
		return nil, false, fmt.Errorf("infercache: zstd reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("infercache: read: %w", err)
	}

	var t table
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&t); err != nil {
		return nil, false, fmt.Errorf("infercache: decode: %w", err)
	}
	if t.Fingerprint != wantFP {
		return nil, false, nil
	}

	for _, r := range t.Records {
		inf := inference.Inference{
			Slot:     inference.Slot{Declaration: srcast.USR(r.DeclUSR), Index: r.Slot},
			Kind:     r.Kind,
			Conflict: r.Conflict,
			Samples:  map[evidence.Direction][]evidence.Evidence{},
		}
		for _, s := range r.Samples {
			inf.Samples[s.Direction] = append(inf.Samples[s.Direction], evidence.Evidence{
				Declaration:   srcast.USR(s.DeclUSR),
				Slot:          s.Slot,
				Kind:          s.Kind,
				AnnotatedKind: s.AnnotatedKind,
				Location:      srcast.Position{File: s.File, Line: s.Line, Column: s.Column},
				GroupID:       s.GroupID,
			})
		}
		infs = append(infs, inf)
	}
	return infs, true, nil
}
