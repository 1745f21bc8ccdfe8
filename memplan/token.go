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
	"github.com/lhez/qualcomm/expr"
	"github.com/lhez/qualcomm/y"
)

// token is a handle into the pass-owned arena. All token state is reached
// through handles so nothing outside the pass can retain a live reference.
type token int32

const nilToken token = -1

// storageToken is the unit of memory planning: the planned storage for one
// tensor output, tracking its remaining consumers and eventual slot.
type storageToken struct {
	// refCount is the number of not-yet-retired uses. Never negative.
	refCount int
	// maxBytes is the widened byte size of a linear slot.
	maxBytes int64
	// ttype is the tensor type of the producing output.
	ttype *expr.TensorType
	// deviceType is the executing device tag, 0 if unspecified.
	deviceType int
	// slotID is assigned exactly once during allocation, -1 before.
	slotID int64
	// scope decides which sub-allocator owns the token.
	scope string
}

// tokenArena owns every token created during one planning pass. Handles
// stay valid for the lifetime of the arena; tokens are never reclaimed
// individually, the whole arena is dropped when the pass returns.
type tokenArena struct {
	toks []*storageToken
}

func newTokenArena() *tokenArena {
	return &tokenArena{}
}

func (a *tokenArena) newToken(t storageToken) token {
	t.slotID = -1
	if t.scope == "" {
		t.scope = "global"
	}
	a.toks = append(a.toks, &t)
	return token(len(a.toks) - 1)
}

func (a *tokenArena) get(t token) *storageToken {
	y.AssertTruef(t >= 0 && int(t) < len(a.toks), "bad token handle %d", t)
	return a.toks[t]
}

func (a *tokenArena) len() int { return len(a.toks) }
