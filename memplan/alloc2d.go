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
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/lhez/qualcomm/texture"
)

// textureAlloc hands out 2D texture-shaped storage slots. A freed block
// stays registered with its dimensions; later requests pick the free block
// whose expansion to cover the requested shape adds the least area.
type textureAlloc struct {
	arena *tokenArena
	// growthBound caps acceptable expansion: a reuse candidate is taken
	// only when added area <= growthBound * requested area.
	growthBound float64
	// blocks registers every slot id ever created with its current
	// dimensions. Entries persist across free/reuse cycles.
	blocks map[int64]memBlock
	// freeIDs is kept sorted so candidate scans are deterministic.
	freeIDs []int64
}

type memBlock struct {
	tok  token
	x, y int64
}

func newTextureAlloc(arena *tokenArena, growthBound float64) *textureAlloc {
	return &textureAlloc{
		arena:       arena,
		growthBound: growthBound,
		blocks:      make(map[int64]memBlock),
	}
}

// size2D flattens the prototype's shape to (width, height, channel) using
// the axis separator convention named by its storage scope.
func (a *textureAlloc) size2D(proto *storageToken) (texture.Shape2D, error) {
	ttype := proto.ttype
	if ttype == nil {
		return texture.Shape2D{}, errors.Wrap(ErrInvariant, "prototype token has no tensor type")
	}
	axis, err := texture.LayoutSeparator(len(ttype.Shape), proto.scope)
	if err != nil {
		return texture.Shape2D{}, errors.Wrap(ErrShape, err.Error())
	}
	shape := make([]int64, len(ttype.Shape))
	for i, d := range ttype.Shape {
		if !d.Static() {
			return texture.Shape2D{}, errors.Wrapf(ErrShape,
				"cannot plan texture for symbolic tensor shape %s", ttype)
		}
		if d.Size < 0 {
			return texture.Shape2D{}, errors.Wrapf(ErrShape,
				"cannot plan texture for tensor with negative dimension %d", d.Size)
		}
		shape[i] = d.Size
	}
	shape2d, err := texture.Flatten2D(shape, axis)
	if err != nil {
		return texture.Shape2D{}, errors.Wrap(ErrShape, err.Error())
	}
	return shape2d, nil
}

// request scans the free blocks of matching element type and picks the one
// minimizing added area; among candidates needing no expansion, the one
// minimizing wasted area. The winner is taken only within the growth bound.
func (a *textureAlloc) request(proto token) (token, error) {
	pt := a.arena.get(proto)
	shape, err := a.size2D(pt)
	if err != nil {
		return nilToken, err
	}
	requested := shape.Area()

	minAdded := int64(math.MaxInt64)
	minWasted := int64(math.MaxInt64)
	bestID := int64(-1)
	var best memBlock

	for _, freeID := range a.freeIDs {
		cached := a.blocks[freeID]
		// Only blocks of the same element type can be rebound.
		if a.arena.get(cached.tok).ttype.DType != pt.ttype.DType {
			continue
		}
		cachedSize := cached.x * cached.y
		nx, ny := cached.x, cached.y
		if shape.Width > nx {
			nx = shape.Width
		}
		if shape.Height > ny {
			ny = shape.Height
		}
		expanded := nx * ny
		added := expanded - cachedSize
		wasted := expanded - requested
		// Prioritize minimization of added area first, then minimize
		// wasted area among blocks which would not require expansion.
		if (minAdded > 0 && added < minAdded) ||
			(minAdded == 0 && added == 0 && wasted < minWasted) {
			minAdded = added
			minWasted = wasted
			bestID = freeID
			best = memBlock{tok: cached.tok, x: nx, y: ny}
		}
	}

	if bestID >= 0 && float64(minAdded) <= a.growthBound*float64(requested) {
		t := a.arena.get(best.tok)
		// The reused token goes live again with the new consumer count.
		t.refCount = pt.refCount
		a.blocks[bestID] = best
		a.removeFree(bestID)
		return best.tok, nil
	}
	return nilToken, nil
}

// alloc registers a new block keyed by a fresh slot id with the requested
// width and height.
func (a *textureAlloc) alloc(proto token, slotID int64) (token, error) {
	t := a.arena.get(proto)
	shape, err := a.size2D(t)
	if err != nil {
		return nilToken, err
	}
	t.slotID = slotID
	a.blocks[slotID] = memBlock{tok: proto, x: shape.Width, y: shape.Height}
	return proto, nil
}

// checkForRelease returns the block id to the free set once the token's
// reference count reaches zero. The block registration is retained for
// future matching.
func (a *textureAlloc) checkForRelease(tok token) error {
	t := a.arena.get(tok)
	if t.slotID < 0 {
		return errors.Wrap(ErrInvariant, "release of unassigned texture slot")
	}
	if t.refCount < 0 {
		return errors.Wrapf(ErrInvariant,
			"negative reference count on texture slot %d", t.slotID)
	}
	if t.refCount == 0 {
		a.insertFree(t.slotID)
	}
	return nil
}

// totalAllocArea is the combined current area of every block created.
func (a *textureAlloc) totalAllocArea() int64 {
	var total int64
	for _, b := range a.blocks {
		total += b.x * b.y
	}
	return total
}

func (a *textureAlloc) numBlocks() int { return len(a.blocks) }

func (a *textureAlloc) insertFree(id int64) {
	i := sort.Search(len(a.freeIDs), func(i int) bool { return a.freeIDs[i] >= id })
	a.freeIDs = append(a.freeIDs, 0)
	copy(a.freeIDs[i+1:], a.freeIDs[i:])
	a.freeIDs[i] = id
}

func (a *textureAlloc) removeFree(id int64) {
	i := sort.Search(len(a.freeIDs), func(i int) bool { return a.freeIDs[i] >= id })
	if i < len(a.freeIDs) && a.freeIDs[i] == id {
		a.freeIDs = append(a.freeIDs[:i], a.freeIDs[i+1:]...)
	}
}
