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
	"sort"
	"sync"

	"github.com/lhez/qualcomm/expr"
)

// Target identifies the backend executing on one device type: the backend
// kind (e.g. "opencl") and an optional device variant (e.g. "adreno").
type Target struct {
	Kind   string
	Device string
}

// TargetMap maps device type tags to their targets.
type TargetMap map[int]Target

// StorageInfoFunc classifies per-node-output storage scopes for a backend.
// For a tuple-typed node the returned slice length must equal the tuple's
// field count. Nodes absent from the result default to "global".
type StorageInfoFunc func(fn *expr.Function, devices map[expr.Node]int,
	targets TargetMap) (map[expr.Node][]string, error)

var (
	storageInfoMu       sync.RWMutex
	storageInfoRegistry = make(map[string]StorageInfoFunc)
)

// RegisterStorageInfo installs a scope classifier under a backend key as
// produced by StorageInfoKey, e.g. "memplan.opencl.adreno". Backends
// register in an init so importing the backend package is enough.
func RegisterStorageInfo(key string, f StorageInfoFunc) {
	storageInfoMu.Lock()
	defer storageInfoMu.Unlock()
	storageInfoRegistry[key] = f
}

// StorageInfoKey builds the registry key for a target map by walking device
// types in ascending order and appending each target's kind plus, when
// present, its device variant.
func StorageInfoKey(targets TargetMap) string {
	devTypes := make([]int, 0, len(targets))
	for dt := range targets {
		devTypes = append(devTypes, dt)
	}
	sort.Ints(devTypes)

	key := "memplan"
	for _, dt := range devTypes {
		target := targets[dt]
		key += "." + target.Kind
		if target.Device != "" {
			key += "." + target.Device
		}
	}
	return key
}

// collectStorageInfo runs the registered classifier for the active backend
// combination. With no classifier registered, every output defaults to
// "global" (a nil map).
func collectStorageInfo(fn *expr.Function, devices map[expr.Node]int,
	targets TargetMap) (map[expr.Node][]string, error) {
	storageInfoMu.RLock()
	f, ok := storageInfoRegistry[StorageInfoKey(targets)]
	storageInfoMu.RUnlock()
	if !ok {
		return nil, nil
	}
	return f(fn, devices, targets)
}
