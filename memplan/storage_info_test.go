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

	"github.com/stretchr/testify/require"

	"github.com/lhez/qualcomm/expr"
)

func TestStorageInfoKey(t *testing.T) {
	require.Equal(t, "memplan", StorageInfoKey(nil))
	require.Equal(t, "memplan", StorageInfoKey(TargetMap{}))

	targets := TargetMap{
		2: {Kind: "llvm"},
		1: {Kind: "opencl", Device: "adreno"},
	}
	// Device types contribute in ascending order regardless of map order.
	require.Equal(t, "memplan.opencl.adreno.llvm", StorageInfoKey(targets))
}

func TestCollectStorageInfoDefaultsToNil(t *testing.T) {
	x := &expr.Var{Name: "x", T: f32(4)}
	fn := &expr.Function{Params: []*expr.Var{x}, Body: x}

	scopes, err := collectStorageInfo(fn, nil, TargetMap{9: {Kind: "unregistered"}})
	require.NoError(t, err)
	require.Nil(t, scopes)
}

func TestCollectStorageInfoDispatch(t *testing.T) {
	called := false
	RegisterStorageInfo("memplan.unit", func(fn *expr.Function,
		devices map[expr.Node]int, targets TargetMap) (map[expr.Node][]string, error) {
		called = true
		return map[expr.Node][]string{fn.Body: {"texture"}}, nil
	})

	x := &expr.Var{Name: "x", T: f32(4)}
	fn := &expr.Function{Params: []*expr.Var{x}, Body: x}

	scopes, err := collectStorageInfo(fn, nil, TargetMap{3: {Kind: "unit"}})
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, []string{"texture"}, scopes[x])
}
