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

package memplan

import (
	"sort"

	"github.com/pkg/errors"
)

// linearAlloc hands out byte-addressed storage slots. Freed slots are kept
// in a size-ordered free list and matched against later requests within a
// bounded size range.
type linearAlloc struct {
	arena *tokenArena
	// matchRange is the rough-match scale R: a request of size S may reuse
	// a free block sized within [S/R, S*R). Zero disables reuse.
	matchRange int64
	// free is ordered by size; entries of equal size keep insertion order.
	free []freeEntry
	// data holds every slot this allocator ever created.
	data []token
}

type freeEntry struct {
	size int64
	tok  token
}

func newLinearAlloc(arena *tokenArena, matchRange int64) *linearAlloc {
	return &linearAlloc{arena: arena, matchRange: matchRange}
}

// memorySize returns the byte size required by the prototype: the product
// of all shape dimensions times the rounded-up element size.
func (a *linearAlloc) memorySize(proto *storageToken) (int64, error) {
	ttype := proto.ttype
	if ttype == nil {
		return 0, errors.Wrap(ErrInvariant, "prototype token has no tensor type")
	}
	size := int64(1)
	for _, d := range ttype.Shape {
		if !d.Static() {
			return 0, errors.Wrapf(ErrShape,
				"cannot plan memory for symbolic tensor shape %s", ttype)
		}
		if d.Size < 0 {
			return 0, errors.Wrapf(ErrShape,
				"cannot plan memory for tensor with negative dimension %d", d.Size)
		}
		size *= d.Size
	}
	return size * ttype.DType.ElemBytes(), nil
}

// request searches the free list for a reusable slot. The scan prefers an
// equal-or-larger block in [S, S*R), then falls back to the nearest smaller
// block down to S/R. Returns nilToken when nothing in range matches.
func (a *linearAlloc) request(proto token) (token, error) {
	pt := a.arena.get(proto)
	size, err := a.memorySize(pt)
	if err != nil {
		return nilToken, err
	}
	if a.matchRange == 0 {
		return nilToken, nil
	}
	begin := a.lowerBound(size / a.matchRange)
	mid := a.lowerBound(size)
	end := a.upperBound(size * a.matchRange)

	take := func(i int) (token, error) {
		tok := a.free[i].tok
		t := a.arena.get(tok)
		if t.refCount != 0 {
			return nilToken, errors.Wrapf(ErrInvariant,
				"free slot %d has live references (%d)", t.slotID, t.refCount)
		}
		if size > t.maxBytes {
			t.maxBytes = size
		}
		t.refCount = pt.refCount
		a.free = append(a.free[:i], a.free[i+1:]...)
		return tok, nil
	}

	// Memory blocks equal or larger than requested first.
	for i := mid; i < end; i++ {
		if a.arena.get(a.free[i].tok).deviceType != pt.deviceType {
			continue
		}
		return take(i)
	}
	// Then blocks smaller than the requested space.
	for i := mid - 1; i >= begin; i-- {
		if a.arena.get(a.free[i].tok).deviceType != pt.deviceType {
			continue
		}
		return take(i)
	}
	return nilToken, nil
}

// alloc assigns a brand-new slot id to the prototype token itself.
func (a *linearAlloc) alloc(proto token, slotID int64) (token, error) {
	t := a.arena.get(proto)
	size, err := a.memorySize(t)
	if err != nil {
		return nilToken, err
	}
	t.maxBytes = size
	t.slotID = slotID
	a.data = append(a.data, proto)
	return proto, nil
}

// checkForRelease returns the token's slot to the free list once its
// reference count reaches zero.
func (a *linearAlloc) checkForRelease(tok token) error {
	t := a.arena.get(tok)
	if t.slotID < 0 {
		return errors.Wrap(ErrInvariant, "release of unassigned storage slot")
	}
	if t.refCount < 0 {
		return errors.Wrapf(ErrInvariant,
			"negative reference count on slot %d", t.slotID)
	}
	if t.refCount == 0 {
		a.insertFree(freeEntry{size: t.maxBytes, tok: tok})
	}
	return nil
}

// totalAllocBytes is the combined widened size of every slot created.
func (a *linearAlloc) totalAllocBytes() int64 {
	var total int64
	for _, tok := range a.data {
		total += a.arena.get(tok).maxBytes
	}
	return total
}

// lowerBound is the first index with size >= s.
func (a *linearAlloc) lowerBound(s int64) int {
	return sort.Search(len(a.free), func(i int) bool { return a.free[i].size >= s })
}

// upperBound is the first index with size > s.
func (a *linearAlloc) upperBound(s int64) int {
	return sort.Search(len(a.free), func(i int) bool { return a.free[i].size > s })
}

func (a *linearAlloc) insertFree(e freeEntry) {
	i := a.upperBound(e.size)
	a.free = append(a.free, freeEntry{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = e
}
