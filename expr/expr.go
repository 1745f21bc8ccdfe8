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

// Package expr defines the dataflow IR consumed by the memory planner: a DAG
// over a closed set of node variants with tensor- or tuple-typed outputs.
// Node identity is pointer identity; shared sub-expressions are expressed by
// sharing node pointers.
package expr

// Node is one vertex of the dataflow graph. The set of implementations is
// closed; consumers switch exhaustively over the variants below.
type Node interface {
	// Type returns the checked type of the node's output, or nil for nodes
	// that produce no tensor value (bare operators, opaque references).
	Type() Type
	isNode()
}

// Var is a named input (function parameter or let-bound name).
type Var struct {
	Name string
	T    Type
}

// Constant is an embedded constant tensor. Only its type matters for
// planning; the payload is bound later by the executor.
type Constant struct {
	T *TensorType
}

// GlobalVar references a function by name in the enclosing module. It is
// opaque to the planner unless it carries a tensor type.
type GlobalVar struct {
	Name string
	T    Type
}

// Op is a bare operator reference, the callee of a Call. It produces no
// value by itself.
type Op struct {
	Name string
}

// Function is a function definition. The planner plans one function at a
// time and does not recurse into nested definitions.
type Function struct {
	Params []*Var
	Body   Node
}

// Tuple constructs a fixed-arity tuple from its fields.
type Tuple struct {
	Fields []Node
}

// TupleGetItem projects one field out of a tuple-valued node.
type TupleGetItem struct {
	Tuple Node
	Index int
}

// Call applies an operator to arguments, producing a new tensor or tuple
// value. T is the checked result type.
type Call struct {
	Op   Node
	Args []Node
	T    Type
}

// Let binds Value to Var within Body.
type Let struct {
	Var   *Var
	Value Node
	Body  Node
}

// If is conditional branching. The planner rejects it; it is part of the
// closed variant set so traversal can fail on it explicitly.
type If struct {
	Cond Node
	Then Node
	Else Node
}

func (*Var) isNode()          {}
func (*Constant) isNode()     {}
func (*GlobalVar) isNode()    {}
func (*Op) isNode()           {}
func (*Function) isNode()     {}
func (*Tuple) isNode()        {}
func (*TupleGetItem) isNode() {}
func (*Call) isNode()         {}
func (*Let) isNode()          {}
func (*If) isNode()           {}

func (v *Var) Type() Type { return v.T }

func (c *Constant) Type() Type {
	if c.T == nil {
		return nil
	}
	return c.T
}

func (g *GlobalVar) Type() Type { return g.T }

func (*Op) Type() Type { return nil }

func (*Function) Type() Type { return nil }

func (t *Tuple) Type() Type {
	fields := make([]*TensorType, len(t.Fields))
	for i, f := range t.Fields {
		tt, ok := f.Type().(*TensorType)
		if !ok {
			return nil
		}
		fields[i] = tt
	}
	return &TupleType{Fields: fields}
}

func (g *TupleGetItem) Type() Type {
	tt, ok := g.Tuple.Type().(*TupleType)
	if !ok || g.Index < 0 || g.Index >= len(tt.Fields) {
		return nil
	}
	return tt.Fields[g.Index]
}

func (c *Call) Type() Type { return c.T }

func (l *Let) Type() Type { return l.Body.Type() }

func (*If) Type() Type { return nil }
