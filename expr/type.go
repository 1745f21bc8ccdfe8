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

package expr

import (
	"fmt"
	"strings"
)

// Dim is one dimension of a tensor shape. A dimension is either static with
// a known size, or symbolic: named, with the size unknown until runtime.
// The planner can only compute storage for static dimensions.
type Dim struct {
	Size int64
	Sym  string // non-empty for a symbolic dimension
}

// D returns a static dimension of the given size.
func D(size int64) Dim { return Dim{Size: size} }

// SymDim returns a symbolic dimension with the given name.
func SymDim(name string) Dim { return Dim{Sym: name} }

// Static reports whether the dimension size is known at plan time.
func (d Dim) Static() bool { return d.Sym == "" }

func (d Dim) String() string {
	if !d.Static() {
		return d.Sym
	}
	return fmt.Sprintf("%d", d.Size)
}

// Type is the checked type of a node: either a *TensorType or a *TupleType.
type Type interface {
	isType()
	String() string
}

// TensorType is the type of a single tensor value.
type TensorType struct {
	Shape []Dim
	DType DType
}

func (*TensorType) isType() {}

func (t *TensorType) String() string {
	dims := make([]string, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = d.String()
	}
	return fmt.Sprintf("Tensor[(%s), %s]", strings.Join(dims, ", "), t.DType)
}

// NewTensorType builds a TensorType with all-static dimensions.
func NewTensorType(shape []int64, dtype DType) *TensorType {
	dims := make([]Dim, len(shape))
	for i, s := range shape {
		dims[i] = D(s)
	}
	return &TensorType{Shape: dims, DType: dtype}
}

// TupleType is the type of a fixed-arity tuple of tensors.
type TupleType struct {
	Fields []*TensorType
}

func (*TupleType) isType() {}

func (t *TupleType) String() string {
	fields := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = f.String()
	}
	return fmt.Sprintf("(%s)", strings.Join(fields, ", "))
}
