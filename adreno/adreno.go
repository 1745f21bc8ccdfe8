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

// Package adreno annotates storage scopes for the OpenCL backend on Adreno
// GPUs, where image (texture) memory gives better cache behavior than
// generic buffers for vectorized conv workloads. Importing the package
// registers the classifier; planning with a TargetMap naming the
// opencl/adreno combination picks it up.
package adreno

import (
	"strings"

	"github.com/lhez/qualcomm/expr"
	"github.com/lhez/qualcomm/memplan"
)

// BackendKey is the storage info registry key for OpenCL on Adreno.
const BackendKey = "memplan.opencl.adreno"

func init() {
	memplan.RegisterStorageInfo(BackendKey, CollectStorageInfo)
}

// CollectStorageInfo classifies each output as texture-resident when its
// shape fits a 2D image layout: a vectorized innermost dimension of four
// channels and a 16- or 32-bit float element type. Weights feeding
// convolutions use the weight flattening convention; everything else that
// qualifies uses the activation convention. Outputs that do not qualify
// stay on "global" by omission.
func CollectStorageInfo(fn *expr.Function, devices map[expr.Node]int,
	targets memplan.TargetMap) (map[expr.Node][]string, error) {

	// Second arguments of convolution ops are laid out as weights.
	weights := make(map[expr.Node]bool)
	expr.PostOrder(fn, func(n expr.Node) {
		call, ok := n.(*expr.Call)
		if !ok || len(call.Args) < 2 {
			return
		}
		if op, ok := call.Op.(*expr.Op); ok && strings.Contains(op.Name, "conv") {
			weights[call.Args[1]] = true
		}
	})

	scopes := make(map[expr.Node][]string)
	expr.PostOrder(fn, func(n expr.Node) {
		switch n.(type) {
		case *expr.Var, *expr.Constant, *expr.Call:
		default:
			return
		}
		switch t := n.Type().(type) {
		case *expr.TensorType:
			scopes[n] = []string{scopeFor(t, weights[n])}
		case *expr.TupleType:
			out := make([]string, len(t.Fields))
			for i, f := range t.Fields {
				out[i] = scopeFor(f, false)
			}
			scopes[n] = out
		}
	})
	return scopes, nil
}

func scopeFor(t *expr.TensorType, weight bool) string {
	if !textureEligible(t) {
		return "global"
	}
	if weight {
		return "texture:weight"
	}
	return "texture"
}

// textureEligible requires a static shape of rank >= 3 whose innermost
// dimension holds exactly four channels, with a float element type narrow
// enough for image formats.
func textureEligible(t *expr.TensorType) bool {
	if len(t.Shape) < 3 {
		return false
	}
	for _, d := range t.Shape {
		if !d.Static() || d.Size < 0 {
			return false
		}
	}
	if t.Shape[len(t.Shape)-1].Size != 4 {
		return false
	}
	dt := t.DType
	if dt.Code != expr.KindFloat || (dt.Bits != 16 && dt.Bits != 32) || dt.Lanes != 1 {
		return false
	}
	return true
}
