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
	"github.com/lhez/qualcomm/texture"
)

// tokenAllocator routes each request to the linear or texture sub-allocator
// by storage scope, and issues slot ids from one shared counter so ids
// never collide between the two.
type tokenAllocator struct {
	arena   *tokenArena
	slotIDs int64
	reused  int
	t1      *linearAlloc
	t2      *textureAlloc
}

func newTokenAllocator(arena *tokenArena, opt Options) *tokenAllocator {
	return &tokenAllocator{
		arena: arena,
		t1:    newLinearAlloc(arena, opt.LinearMatchRange),
		t2:    newTextureAlloc(arena, opt.TextureGrowthBound),
	}
}

func (a *tokenAllocator) is2D(tok token) bool {
	return texture.IsTextureStorage(a.arena.get(tok).scope)
}

// alloc assigns a brand-new slot id to the prototype.
func (a *tokenAllocator) alloc(proto token) (token, error) {
	id := a.slotIDs
	a.slotIDs++
	if a.is2D(proto) {
		return a.t2.alloc(proto, id)
	}
	return a.t1.alloc(proto, id)
}

// request tries to find a reusable free slot for the prototype, falling
// back to a fresh allocation when nothing matches.
func (a *tokenAllocator) request(proto token) (token, error) {
	var tok token
	var err error
	if a.is2D(proto) {
		tok, err = a.t2.request(proto)
	} else {
		tok, err = a.t1.request(proto)
	}
	if err != nil {
		return nilToken, err
	}
	if tok != nilToken {
		a.reused++
		return tok, nil
	}
	return a.alloc(proto)
}

// checkForRelease returns the token's slot to the owning free structure if
// its reference count has reached zero.
func (a *tokenAllocator) checkForRelease(tok token) error {
	if a.is2D(tok) {
		return a.t2.checkForRelease(tok)
	}
	return a.t1.checkForRelease(tok)
}

func (a *tokenAllocator) stats() Stats {
	return Stats{
		LinearSlots:  len(a.t1.data),
		LinearBytes:  a.t1.totalAllocBytes(),
		TextureSlots: a.t2.numBlocks(),
		TextureArea:  a.t2.totalAllocArea(),
		ReusedSlots:  a.reused,
	}
}
