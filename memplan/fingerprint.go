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
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/lhez/qualcomm/expr"
)

// Fingerprint hashes the planned slot, device and scope arrays in the given
// node order. Two plans of the same graph fingerprint equal iff their
// assignments are identical, which makes this a cheap determinism check and
// a stable identity for cached executor state.
func (p *Plan) Fingerprint(order []expr.Node) uint64 {
	d := xxhash.New()
	var buf [8]byte
	writeInt := func(v int64) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		_, _ = d.Write(buf[:])
	}
	for _, n := range order {
		ns, ok := p.Storage[n]
		if !ok {
			continue
		}
		writeInt(int64(len(ns.SlotIDs)))
		for i := range ns.SlotIDs {
			writeInt(ns.SlotIDs[i])
			writeInt(int64(ns.DeviceTypes[i]))
			_, _ = d.WriteString(ns.Scopes[i])
			_, _ = d.Write([]byte{0})
		}
	}
	return d.Sum64()
}
