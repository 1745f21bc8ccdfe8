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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDerivedTypes(t *testing.T) {
	tt := NewTensorType([]int64{4, 4}, Float32)
	x := &Var{Name: "x", T: tt}
	y := &Var{Name: "y", T: tt}

	tup := &Tuple{Fields: []Node{x, y}}
	typ, ok := tup.Type().(*TupleType)
	require.True(t, ok)
	require.Len(t, typ.Fields, 2)
	require.Equal(t, tt, typ.Fields[0])

	get := &TupleGetItem{Tuple: tup, Index: 1}
	require.Equal(t, tt, get.Type())

	oob := &TupleGetItem{Tuple: tup, Index: 2}
	require.Nil(t, oob.Type())

	let := &Let{Var: x, Value: y, Body: x}
	require.Equal(t, tt, let.Type())

	require.Nil(t, (&Op{Name: "add"}).Type())
	require.Equal(t, "Tensor[(4, 4), float32]", tt.String())
}

func TestSymbolicDim(t *testing.T) {
	d := SymDim("n")
	require.False(t, d.Static())
	require.Equal(t, "n", d.String())
	require.True(t, D(7).Static())
}

func TestPostOrder(t *testing.T) {
	tt := NewTensorType([]int64{4}, Float32)
	x := &Var{Name: "x", T: tt}
	add := &Op{Name: "add"}
	// Shared node: c consumes b twice.
	b := &Call{Op: add, Args: []Node{x, x}, T: tt}
	c := &Call{Op: add, Args: []Node{b, b}, T: tt}
	fn := &Function{Params: []*Var{x}, Body: c}

	var order []Node
	PostOrder(fn, func(n Node) { order = append(order, n) })

	// Each node exactly once, children before parents.
	require.Equal(t, []Node{x, add, b, c, fn}, order)
}

func TestPostOrderOpaqueFunction(t *testing.T) {
	tt := NewTensorType([]int64{4}, Float32)
	inner := &Function{Body: &Var{Name: "hidden", T: tt}}
	outer := &Function{Body: &Call{Op: inner, Args: nil, T: tt}}

	var order []Node
	PostOrder(outer, func(n Node) { order = append(order, n) })
	for _, n := range order {
		if v, ok := n.(*Var); ok {
			require.NotEqual(t, "hidden", v.Name, "must not recurse into nested function")
		}
	}
}
