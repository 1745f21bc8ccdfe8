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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/lhez/qualcomm/expr"
	"github.com/lhez/qualcomm/y"
)

func testOptions() Options {
	opt := DefaultOptions
	opt.Logger = y.NopLogger
	return opt
}

func testPlan(t *testing.T, fn *expr.Function, devices map[expr.Node]int,
	targets TargetMap) *Plan {
	t.Helper()
	plan, err := NewPlanner(testOptions()).Plan(fn, devices, targets)
	require.NoError(t, err)
	return plan
}

func f32(shape ...int64) *expr.TensorType {
	return expr.NewTensorType(shape, expr.Float32)
}

func call(op string, t expr.Type, args ...expr.Node) *expr.Call {
	return &expr.Call{Op: &expr.Op{Name: op}, Args: args, T: t}
}

// slot returns the single slot id planned for n.
func slot(t *testing.T, plan *Plan, n expr.Node) int64 {
	t.Helper()
	ns, ok := plan.Storage[n]
	require.True(t, ok)
	require.Len(t, ns.SlotIDs, 1)
	return ns.SlotIDs[0]
}

func TestPlanSingleCall(t *testing.T) {
	// Scenario: one call with two [4,4] float32 inputs and one fresh
	// "global" output.
	x := &expr.Var{Name: "x", T: f32(4, 4)}
	yv := &expr.Var{Name: "y", T: f32(4, 4)}
	add := call("add", f32(4, 4), x, yv)
	fn := &expr.Function{Params: []*expr.Var{x, yv}, Body: add}

	plan := testPlan(t, fn, nil, nil)
	require.Len(t, plan.Storage, 3)

	sx, sy, sa := slot(t, plan, x), slot(t, plan, yv), slot(t, plan, add)
	// Every output holds an assigned slot, and with an empty free list the
	// call output gets a fresh one.
	require.Equal(t, int64(0), sx)
	require.Equal(t, int64(1), sy)
	require.Equal(t, int64(2), sa)

	require.Equal(t, []string{"global"}, plan.Storage[add].Scopes)
	require.Equal(t, []int{0}, plan.Storage[add].DeviceTypes)
	require.Equal(t, 3, plan.Stats.LinearSlots)
	require.Equal(t, 0, plan.Stats.ReusedSlots)
	require.Equal(t, int64(3*64), plan.Stats.LinearBytes)
}

func TestPlanChainReusesRetiredSlot(t *testing.T) {
	// Chain a -> b -> c, where b's output is consumed only by c. An
	// independent d planned after c picks up b's retired slot; c itself
	// lands in a's slot, which retired when b was created.
	x := &expr.Var{Name: "x", T: f32(8, 8)}
	a := call("op_a", f32(8, 8), x)
	b := call("op_b", f32(8, 8), a)
	c := call("op_c", f32(8, 8), b)
	d := call("op_d", f32(8, 8), x)
	fn := &expr.Function{Params: []*expr.Var{x}, Body: &expr.Tuple{Fields: []expr.Node{c, d}}}

	plan := testPlan(t, fn, nil, nil)

	sa, sb := slot(t, plan, a), slot(t, plan, b)
	sc, sd := slot(t, plan, c), slot(t, plan, d)
	require.Equal(t, sa, sc)
	require.Equal(t, sb, sd)
	require.NotEqual(t, sa, sb)
	require.Equal(t, 2, plan.Stats.ReusedSlots)

	// Concurrently live values never share a slot: a and b overlap, as do
	// the pinned param and everything else.
	require.NotEqual(t, slot(t, plan, x), sa)
	require.NotEqual(t, slot(t, plan, x), sb)
}

func TestPlanSharedSubexpression(t *testing.T) {
	// Diamond: s feeds both consumers; its slot must stay live until the
	// second consumer retires it, then become reusable.
	x := &expr.Var{Name: "x", T: f32(16)}
	s := call("shared", f32(16), x)
	u1 := call("u1", f32(16), s)
	u2 := call("u2", f32(16), s, u1)
	late := call("late", f32(16), x)
	fn := &expr.Function{Params: []*expr.Var{x}, Body: &expr.Tuple{Fields: []expr.Node{u2, late}}}

	plan := testPlan(t, fn, nil, nil)

	ss, s1, s2 := slot(t, plan, s), slot(t, plan, u1), slot(t, plan, u2)
	// s is live while u1 is planned, so they differ; u2 retires both.
	require.NotEqual(t, ss, s1)
	require.NotEqual(t, ss, s2)
	// late runs after u2 retired s, so it can reuse s's slot.
	require.Equal(t, ss, slot(t, plan, late))
}

func TestPlanTupleAndProjection(t *testing.T) {
	x := &expr.Var{Name: "x", T: f32(2, 8)}
	split := call("split", &expr.TupleType{
		Fields: []*expr.TensorType{f32(1, 8), f32(1, 8)},
	}, x)
	lhs := &expr.TupleGetItem{Tuple: split, Index: 0}
	rhs := &expr.TupleGetItem{Tuple: split, Index: 1}
	out := call("concat", f32(2, 8), lhs, rhs)
	fn := &expr.Function{Params: []*expr.Var{x}, Body: out}

	plan := testPlan(t, fn, nil, nil)

	ns := plan.Storage[split]
	require.Len(t, ns.SlotIDs, 2)
	require.NotEqual(t, ns.SlotIDs[0], ns.SlotIDs[1])
	// Projections alias the tuple's tokens; no new slots.
	require.Equal(t, ns.SlotIDs[0], slot(t, plan, lhs))
	require.Equal(t, ns.SlotIDs[1], slot(t, plan, rhs))
}

func TestPlanTupleIndexOutOfRange(t *testing.T) {
	x := &expr.Var{Name: "x", T: f32(2, 8)}
	split := call("split", &expr.TupleType{
		Fields: []*expr.TensorType{f32(1, 8), f32(1, 8)},
	}, x)
	bad := &expr.TupleGetItem{Tuple: split, Index: 2}
	fn := &expr.Function{Params: []*expr.Var{x}, Body: bad}

	_, err := NewPlanner(testOptions()).Plan(fn, nil, nil)
	require.Equal(t, ErrInvariant, errors.Cause(err))
}

func TestPlanUnusedTupleFieldRetiresImmediately(t *testing.T) {
	// Only field 0 of the split is consumed. Field 1 has zero uses, so its
	// slot retires the moment the split is planned and a later same-sized
	// value picks it up.
	x := &expr.Var{Name: "x", T: f32(2, 8)}
	split := call("split", &expr.TupleType{
		Fields: []*expr.TensorType{f32(1, 8), f32(1, 8)},
	}, x)
	lhs := &expr.TupleGetItem{Tuple: split, Index: 0}
	keep := call("relu", f32(1, 8), lhs)
	late := call("late", f32(1, 8), x)
	fn := &expr.Function{Params: []*expr.Var{x}, Body: &expr.Tuple{Fields: []expr.Node{keep, late}}}

	plan := testPlan(t, fn, nil, nil)
	require.Equal(t, plan.Storage[split].SlotIDs[1], slot(t, plan, keep))
	// keep in turn retires field 0 once it is planned.
	require.Equal(t, plan.Storage[split].SlotIDs[0], slot(t, plan, late))
}

func TestPlanLetAliasing(t *testing.T) {
	x := &expr.Var{Name: "x", T: f32(4)}
	v := &expr.Var{Name: "v", T: f32(4)}
	bound := call("square", f32(4), x)
	body := call("inc", f32(4), v)
	let := &expr.Let{Var: v, Value: bound, Body: body}
	fn := &expr.Function{Params: []*expr.Var{x}, Body: let}

	plan := testPlan(t, fn, nil, nil)
	// The bound name aliases the value's token, and the let expression
	// aliases its body.
	require.Equal(t, slot(t, plan, bound), slot(t, plan, v))
	require.Equal(t, slot(t, plan, body), slot(t, plan, let))
}

func TestPlanConditionalRejected(t *testing.T) {
	x := &expr.Var{Name: "x", T: f32(4)}
	cond := &expr.If{Cond: x, Then: x, Else: x}
	fn := &expr.Function{Params: []*expr.Var{x}, Body: cond}

	_, err := NewPlanner(testOptions()).Plan(fn, nil, nil)
	require.Equal(t, ErrUnsupportedConstruct, errors.Cause(err))
}

func TestPlanPartialAnnotation(t *testing.T) {
	x := &expr.Var{Name: "x", T: f32(4)}
	yv := &expr.Var{Name: "y", T: f32(4)}
	a := call("a", f32(4), x)
	b := call("b", f32(4), yv)
	c := call("c", f32(4), a, b)
	fn := &expr.Function{Params: []*expr.Var{x, yv}, Body: c}

	t.Run("one of five annotated", func(t *testing.T) {
		_, err := NewPlanner(testOptions()).Plan(fn, map[expr.Node]int{a: 1}, nil)
		require.Equal(t, ErrPartialAnnotation, errors.Cause(err))
	})

	t.Run("all annotated", func(t *testing.T) {
		devices := map[expr.Node]int{x: 1, yv: 1, a: 1, b: 1, c: 1}
		plan := testPlan(t, fn, devices, nil)
		require.Equal(t, []int{1}, plan.Storage[c].DeviceTypes)
	})

	t.Run("none annotated", func(t *testing.T) {
		plan := testPlan(t, fn, nil, nil)
		require.Equal(t, []int{0}, plan.Storage[c].DeviceTypes)
	})
}

func TestPlanSymbolicShapeFails(t *testing.T) {
	x := &expr.Var{Name: "x", T: &expr.TensorType{
		Shape: []expr.Dim{expr.D(4), expr.SymDim("n")},
		DType: expr.Float32,
	}}
	fn := &expr.Function{Params: []*expr.Var{x}, Body: call("id", f32(4), x)}

	_, err := NewPlanner(testOptions()).Plan(fn, nil, nil)
	require.Equal(t, ErrShape, errors.Cause(err))
}

func TestPlanScopeArityMismatch(t *testing.T) {
	RegisterStorageInfo("memplan.badarity", func(fn *expr.Function,
		devices map[expr.Node]int, targets TargetMap) (map[expr.Node][]string, error) {
		scopes := make(map[expr.Node][]string)
		expr.PostOrder(fn, func(n expr.Node) {
			if c, ok := n.(*expr.Call); ok {
				scopes[c] = []string{"global"} // wrong arity for a 2-tuple
			}
		})
		return scopes, nil
	})

	x := &expr.Var{Name: "x", T: f32(2, 8)}
	split := call("split", &expr.TupleType{
		Fields: []*expr.TensorType{f32(1, 8), f32(1, 8)},
	}, x)
	fn := &expr.Function{Params: []*expr.Var{x}, Body: split}

	targets := TargetMap{1: {Kind: "badarity"}}
	_, err := NewPlanner(testOptions()).Plan(fn, nil, targets)
	require.Equal(t, ErrArityMismatch, errors.Cause(err))
}

func TestPlanTextureScopes(t *testing.T) {
	RegisterStorageInfo("memplan.test.gpu", func(fn *expr.Function,
		devices map[expr.Node]int, targets TargetMap) (map[expr.Node][]string, error) {
		scopes := make(map[expr.Node][]string)
		expr.PostOrder(fn, func(n expr.Node) {
			if c, ok := n.(*expr.Call); ok {
				scopes[c] = []string{"texture"}
			}
		})
		return scopes, nil
	})
	targets := TargetMap{4: {Kind: "test", Device: "gpu"}}

	x := &expr.Var{Name: "x", T: f32(16, 16, 4)}
	a := call("conv_a", f32(16, 16, 4), x)
	b := call("conv_b", f32(16, 16, 4), a)
	fn := &expr.Function{Params: []*expr.Var{x}, Body: b}

	plan := testPlan(t, fn, nil, targets)

	require.Equal(t, []string{"texture"}, plan.Storage[a].Scopes)
	require.Equal(t, []string{"texture"}, plan.Storage[b].Scopes)
	require.Equal(t, []string{"global"}, plan.Storage[x].Scopes)

	// Texture outputs are never recycled; each call owns a block, and slot
	// ids stay unique across both sub-allocators.
	seen := make(map[int64]bool)
	for _, n := range []expr.Node{x, a, b} {
		id := slot(t, plan, n)
		require.GreaterOrEqual(t, id, int64(0))
		require.False(t, seen[id])
		seen[id] = true
	}
	require.Equal(t, 2, plan.Stats.TextureSlots)
	require.Equal(t, 1, plan.Stats.LinearSlots)
	require.Equal(t, 0, plan.Stats.ReusedSlots)
	require.Equal(t, int64(2*16*16), plan.Stats.TextureArea)
}

func TestPlanOutputsStayPinned(t *testing.T) {
	// Both calls are final outputs. Even though nothing consumes them,
	// their slots must never be handed to each other.
	x := &expr.Var{Name: "x", T: f32(8)}
	a := call("a", f32(8), x)
	b := call("b", f32(8), x)
	fn := &expr.Function{Params: []*expr.Var{x}, Body: &expr.Tuple{Fields: []expr.Node{a, b}}}

	plan := testPlan(t, fn, nil, nil)
	require.NotEqual(t, slot(t, plan, a), slot(t, plan, b))
}

func TestPlanOpaqueCallee(t *testing.T) {
	// A call through an untyped global reference plans like any other; the
	// reference itself contributes no storage.
	g := &expr.GlobalVar{Name: "ext"}
	x := &expr.Var{Name: "x", T: f32(4)}
	out := &expr.Call{Op: g, Args: []expr.Node{x}, T: f32(4)}
	fn := &expr.Function{Params: []*expr.Var{x}, Body: out}

	plan := testPlan(t, fn, nil, nil)
	require.Len(t, plan.Storage[out].SlotIDs, 1)
}

func TestPlanDeterminism(t *testing.T) {
	build := func() (*expr.Function, []expr.Node) {
		x := &expr.Var{Name: "x", T: f32(8, 8)}
		a := call("a", f32(8, 8), x)
		b := call("b", f32(8, 8), a)
		c := call("c", f32(8, 8), b, a)
		d := call("d", f32(8, 8), x)
		fn := &expr.Function{Params: []*expr.Var{x},
			Body: &expr.Tuple{Fields: []expr.Node{c, d}}}
		var order []expr.Node
		expr.PostOrder(fn, func(n expr.Node) { order = append(order, n) })
		return fn, order
	}

	fn, order := build()
	p1 := testPlan(t, fn, nil, nil)
	p2 := testPlan(t, fn, nil, nil)
	require.Equal(t, p1.Storage, p2.Storage)
	require.Equal(t, p1.Fingerprint(order), p2.Fingerprint(order))
}
