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
	"github.com/lhez/qualcomm/y"
)

// Options tunes the planner. The two allocator bounds are heuristics, not
// derived laws; changing them trades peak memory against reuse aggression
// but never affects correctness.
type Options struct {
	// LinearMatchRange is the rough-match scale for the linear free list:
	// a request of size S may reuse a free block sized in [S/R, S*R).
	// Zero disables linear reuse entirely.
	LinearMatchRange int64

	// TextureGrowthBound caps how much a reused texture block may grow:
	// a candidate is accepted only when the area added by expansion is at
	// most this multiple of the requested area.
	TextureGrowthBound float64

	// Logger is used for reuse decision traces and the plan summary.
	Logger y.Logger
}

// DefaultOptions carries the recommended planner tuning.
var DefaultOptions = Options{
	LinearMatchRange:   16,
	TextureGrowthBound: 1.0,
	Logger:             y.DefaultLogger(),
}
