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
	"expvar"
)

var (
	numPlans        *expvar.Int
	numTokens       *expvar.Int
	numSlots        *expvar.Int
	numSlotsReused  *expvar.Int
	numBytesPlanned *expvar.Int
)

// expvar panics if you try to set an already set variable. So we try get
// first else get new.
func getInt(k string) *expvar.Int {
	if val := expvar.Get(k); val != nil {
		return val.(*expvar.Int)
	}
	return expvar.NewInt(k)
}

func init() {
	numPlans = getInt("memplan_plans_total")
	numTokens = getInt("memplan_tokens_total")
	numSlots = getInt("memplan_slots_total")
	numSlotsReused = getInt("memplan_slots_reused_total")
	numBytesPlanned = getInt("memplan_bytes_planned_total")
}
