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
	"github.com/pkg/errors"
)

// Planning has no partial-success mode. Every error below aborts the pass
// and is surfaced to the caller as a compilation failure.
var (
	// ErrUnsupportedConstruct is returned when the graph contains a node
	// variant the planner cannot handle, such as conditional branching.
	ErrUnsupportedConstruct = errors.New("Unsupported construct in graph")

	// ErrShape is returned when storage size cannot be computed because a
	// shape dimension is symbolic or negative at plan time.
	ErrShape = errors.New("Cannot compute storage size for shape")

	// ErrArityMismatch is returned when the storage scope classifier returns
	// a result whose length disagrees with a tuple's field count.
	ErrArityMismatch = errors.New("Storage scope arity does not match tuple field count")

	// ErrPartialAnnotation is returned when some but not all outputs across
	// the graph carry a nonzero device type.
	ErrPartialAnnotation = errors.New("Graph is partially annotated with device types")

	// ErrInvariant indicates an internal planner invariant was violated.
	// This is a bug upstream or in the planner, not bad user input.
	ErrInvariant = errors.New("Memory planner invariant violated")
)
