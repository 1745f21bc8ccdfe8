/*
 * Copyright 2024 Qualcomm Innovation Center, Inc. and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package memplan assigns static storage slots to every tensor output of a
// compiled dataflow graph. Two traversals run over the graph: a prototype
// pass that establishes one storage token per output with device and scope
// metadata and usage counts, and an allocation pass that replaces each
// prototype with a concrete slot, recycling slots whose consumers have all
// retired. Values on generic "global" memory produced by operator calls are
// the only candidates for recycling; everything else gets a pinned slot.
package memplan

import (
	"github.com/pkg/errors"

	"github.com/lhez/qualcomm/expr"
)

// NodeStorage is the planned storage for one node: parallel arrays with one
// entry per tensor output (one for a tensor, N for an N-field tuple).
type NodeStorage struct {
	SlotIDs     []int64
	DeviceTypes []int
	Scopes      []string
}

// Stats summarizes the allocation outcome of one plan.
type Stats struct {
	// LinearSlots and LinearBytes count byte-addressed slots and their
	// combined widened sizes.
	LinearSlots int
	LinearBytes int64
	// TextureSlots and TextureArea count 2D blocks and their combined
	// width x height footprint in elements.
	TextureSlots int
	TextureArea  int64
	// ReusedSlots counts requests satisfied from a free structure.
	ReusedSlots int
}

// Plan is the sole artifact the downstream executor consumes: plain data
// with no references back into the planning pass.
type Plan struct {
	Storage map[expr.Node]*NodeStorage
	Stats   Stats
}

// Planner runs static memory planning with a fixed set of options. A
// Planner is stateless across calls; each Plan owns its own arena.
type Planner struct {
	opt Options
}

func NewPlanner(opt Options) *Planner {
	return &Planner{opt: opt}
}

// PlanGraph plans fn with DefaultOptions.
func PlanGraph(fn *expr.Function, devices map[expr.Node]int, targets TargetMap) (*Plan, error) {
	return NewPlanner(DefaultOptions).Plan(fn, devices, targets)
}

// Plan assigns a storage slot to every tensor output reachable from fn.
// The devices map gives per-node device types (absent entries mean 0) and
// targets selects the storage scope classifier. The pass is single
// threaded and deterministic: identical inputs yield identical plans.
func (p *Planner) Plan(fn *expr.Function, devices map[expr.Node]int, targets TargetMap) (*Plan, error) {
	scopes, err := collectStorageInfo(fn, devices, targets)
	if err != nil {
		return nil, err
	}

	arena := newTokenArena()
	prototype, err := newInitPass(arena, devices, scopes).buildTokenMap(fn)
	if err != nil {
		return nil, err
	}

	ap := &allocPass{
		baseVisitor: newBaseVisitor(arena),
		prototype:   prototype,
		alloc:       newTokenAllocator(arena, p.opt),
		logger:      p.opt.Logger,
	}
	if err := ap.run(fn, ap); err != nil {
		return nil, err
	}

	// Copy the plan out of the arena. Either all or none of the outputs
	// may carry a device type annotation.
	storage := make(map[expr.Node]*NodeStorage, len(ap.tokenMap))
	numAnnotated, numOutputs := 0, 0
	for n, toks := range ap.tokenMap {
		ns := &NodeStorage{
			SlotIDs:     make([]int64, 0, len(toks)),
			DeviceTypes: make([]int, 0, len(toks)),
			Scopes:      make([]string, 0, len(toks)),
		}
		for _, tok := range toks {
			t := arena.get(tok)
			if t.deviceType != 0 {
				numAnnotated++
			}
			numOutputs++
			ns.SlotIDs = append(ns.SlotIDs, t.slotID)
			ns.DeviceTypes = append(ns.DeviceTypes, t.deviceType)
			ns.Scopes = append(ns.Scopes, t.scope)
		}
		storage[n] = ns
	}
	if numAnnotated != 0 && numAnnotated != numOutputs {
		return nil, errors.Wrapf(ErrPartialAnnotation,
			"%d out of %d outputs are assigned device types; either all or none must be annotated",
			numAnnotated, numOutputs)
	}

	stats := ap.alloc.stats()
	numPlans.Add(1)
	numTokens.Add(int64(arena.len()))
	numSlots.Add(int64(stats.LinearSlots + stats.TextureSlots))
	numSlotsReused.Add(int64(stats.ReusedSlots))
	numBytesPlanned.Add(stats.LinearBytes)
	p.opt.Logger.Infof("planned %d outputs into %d linear slots (%d bytes) and %d texture blocks, %d reused",
		numOutputs, stats.LinearSlots, stats.LinearBytes, stats.TextureSlots, stats.ReusedSlots)

	return &Plan{Storage: storage, Stats: stats}, nil
}
