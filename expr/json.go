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
	"encoding/json"

	"github.com/pkg/errors"
)

// The JSON graph format is a flat list of named nodes in dependency order.
// Each node is one of: a call ("op" set), a tuple ("tuple" set) or a tuple
// projection ("get" set). Parameters and constants are listed separately.
//
//	{
//	  "params": [{"name": "x", "shape": [4, 4], "dtype": "float32"}],
//	  "nodes":  [{"name": "y", "op": "nn.relu", "args": ["x"],
//	              "shape": [4, 4], "dtype": "float32"}],
//	  "output": "y",
//	  "devices": {"y": 4}
//	}

type graphFile struct {
	Params  []paramJSON    `json:"params"`
	Nodes   []nodeJSON     `json:"nodes"`
	Output  string         `json:"output"`
	Devices map[string]int `json:"devices"`
}

type paramJSON struct {
	Name  string  `json:"name"`
	Shape []int64 `json:"shape"`
	DType string  `json:"dtype"`
	Const bool    `json:"const"`
}

type fieldJSON struct {
	Shape []int64 `json:"shape"`
	DType string  `json:"dtype"`
}

type nodeJSON struct {
	Name string `json:"name"`

	// Call node.
	Op     string      `json:"op"`
	Args   []string    `json:"args"`
	Shape  []int64     `json:"shape"`
	DType  string      `json:"dtype"`
	Fields []fieldJSON `json:"fields"`

	// Tuple construction.
	Tuple []string `json:"tuple"`

	// Tuple projection.
	Get   string `json:"get"`
	Index int    `json:"index"`
}

// Graph is a parsed graph file: the function to plan, the declared device
// placement, and the name each node had in the file (for display).
type Graph struct {
	Fn      *Function
	Devices map[Node]int
	Names   map[Node]string
}

// ParseGraph decodes the JSON graph format. Device map keys are resolved
// node names; absent names mean device type 0.
func ParseGraph(data []byte) (*Graph, error) {
	var gf graphFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, errors.Wrap(err, "decoding graph json")
	}

	env := make(map[string]Node)
	names := make(map[Node]string)
	var params []*Var
	for _, p := range gf.Params {
		if p.Name == "" {
			return nil, errors.New("graph json: param with empty name")
		}
		if _, ok := env[p.Name]; ok {
			return nil, errors.Errorf("graph json: duplicate name %q", p.Name)
		}
		dt, err := ParseDType(p.DType)
		if err != nil {
			return nil, errors.Wrapf(err, "param %q", p.Name)
		}
		ttype := NewTensorType(p.Shape, dt)
		var node Node
		if p.Const {
			node = &Constant{T: ttype}
		} else {
			v := &Var{Name: p.Name, T: ttype}
			params = append(params, v)
			node = v
		}
		env[p.Name] = node
		names[node] = p.Name
	}

	resolve := func(name, ctx string) (Node, error) {
		n, ok := env[name]
		if !ok {
			return nil, errors.Errorf("graph json: %s references unknown node %q", ctx, name)
		}
		return n, nil
	}

	var last string
	for _, nj := range gf.Nodes {
		if nj.Name == "" {
			return nil, errors.New("graph json: node with empty name")
		}
		if _, ok := env[nj.Name]; ok {
			return nil, errors.Errorf("graph json: duplicate name %q", nj.Name)
		}
		var node Node
		switch {
		case nj.Op != "":
			args := make([]Node, len(nj.Args))
			for i, a := range nj.Args {
				n, err := resolve(a, nj.Name)
				if err != nil {
					return nil, err
				}
				args[i] = n
			}
			t, err := nj.resultType()
			if err != nil {
				return nil, err
			}
			node = &Call{Op: &Op{Name: nj.Op}, Args: args, T: t}
		case len(nj.Tuple) > 0:
			fields := make([]Node, len(nj.Tuple))
			for i, f := range nj.Tuple {
				n, err := resolve(f, nj.Name)
				if err != nil {
					return nil, err
				}
				fields[i] = n
			}
			node = &Tuple{Fields: fields}
		case nj.Get != "":
			src, err := resolve(nj.Get, nj.Name)
			if err != nil {
				return nil, err
			}
			node = &TupleGetItem{Tuple: src, Index: nj.Index}
		default:
			return nil, errors.Errorf("graph json: node %q is neither op, tuple nor get", nj.Name)
		}
		env[nj.Name] = node
		names[node] = nj.Name
		last = nj.Name
	}

	out := gf.Output
	if out == "" {
		out = last
	}
	if out == "" {
		return nil, errors.New("graph json: empty graph")
	}
	body, err := resolve(out, "output")
	if err != nil {
		return nil, err
	}

	devices := make(map[Node]int)
	for name, dev := range gf.Devices {
		n, err := resolve(name, "devices")
		if err != nil {
			return nil, err
		}
		devices[n] = dev
	}
	fn := &Function{Params: params, Body: body}
	return &Graph{Fn: fn, Devices: devices, Names: names}, nil
}

func (nj *nodeJSON) resultType() (Type, error) {
	if len(nj.Fields) > 0 {
		fields := make([]*TensorType, len(nj.Fields))
		for i, f := range nj.Fields {
			dt, err := ParseDType(f.DType)
			if err != nil {
				return nil, errors.Wrapf(err, "node %q field %d", nj.Name, i)
			}
			fields[i] = NewTensorType(f.Shape, dt)
		}
		return &TupleType{Fields: fields}, nil
	}
	dt, err := ParseDType(nj.DType)
	if err != nil {
		return nil, errors.Wrapf(err, "node %q", nj.Name)
	}
	return NewTensorType(nj.Shape, dt), nil
}
