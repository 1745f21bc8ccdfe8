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

// Package texture maps N-d tensor shapes onto 2D texture footprints for the
// storage scope conventions used by GPU backends with image memory.
package texture

import (
	"strings"

	"github.com/pkg/errors"
)

// Shape2D is a flattened texture shape. Channel is the innermost vectorized
// dimension and is not part of the width x height footprint.
type Shape2D struct {
	Width   int64
	Height  int64
	Channel int64
}

// Area returns the 2D footprint in elements, channel excluded.
func (s Shape2D) Area() int64 { return s.Width * s.Height }

// IsTextureStorage reports whether the storage scope names texture memory.
func IsTextureStorage(scope string) bool {
	return strings.Contains(scope, "texture")
}

// LayoutSeparator returns the axis that splits an N-d shape into the two
// sets of axes flattened into height and width for the given scope
// convention:
//
//	texture:        [N,C,H,W,c] -> Texture2d[N*C*H, W, c]
//	texture:weight: [O,I,H,W,c] -> Texture2d[O, I*H*W, c]
//	texture:nhwc:   [N,H,W,C]   -> Texture2d[N*H, W, C]
func LayoutSeparator(rank int, scope string) (int, error) {
	switch scope {
	case "texture":
		return rank - 2, nil
	case "texture:weight":
		return 1, nil
	case "texture:nhwc":
		return 2, nil
	}
	return 0, errors.Errorf("Encountered unknown texture lowering convention %q", scope)
}

// Flatten2D folds an N-d shape at the given axis separator: dimensions
// before the axis multiply into height, dimensions from the axis up to the
// second-to-last multiply into width, and the last dimension is the channel
// count.
func Flatten2D(shape []int64, axis int) (Shape2D, error) {
	rank := len(shape)
	if axis < 0 || axis >= rank {
		return Shape2D{}, errors.Errorf(
			"Number of axes to flatten into rows must be less than shape rank %d, got axis %d", rank, axis)
	}
	out := Shape2D{Width: 1, Height: 1, Channel: shape[rank-1]}
	for i := 0; i < rank-1; i++ {
		if i < axis {
			out.Height *= shape[i]
		} else {
			out.Width *= shape[i]
		}
	}
	return out, nil
}
