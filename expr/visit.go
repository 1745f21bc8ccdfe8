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

// PostOrder calls f once for every node reachable from n, children before
// parents, in a deterministic order (fields are walked in declaration
// order). Shared sub-expressions are visited once. Nested function
// definitions are not recursed into, matching the planner's view of the
// graph; the top-level Function's params and body are walked.
func PostOrder(n Node, f func(Node)) {
	seen := make(map[Node]bool)
	var walk func(Node, bool)
	walk = func(n Node, top bool) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		switch n := n.(type) {
		case *Var, *Constant, *GlobalVar, *Op:
		case *Function:
			if top {
				for _, p := range n.Params {
					walk(p, false)
				}
				walk(n.Body, false)
			}
		case *Tuple:
			for _, field := range n.Fields {
				walk(field, false)
			}
		case *TupleGetItem:
			walk(n.Tuple, false)
		case *Call:
			walk(n.Op, false)
			for _, arg := range n.Args {
				walk(arg, false)
			}
		case *Let:
			walk(n.Value, false)
			walk(n.Var, false)
			walk(n.Body, false)
		case *If:
			walk(n.Cond, false)
			walk(n.Then, false)
			walk(n.Else, false)
		}
		f(n)
	}
	walk(n, true)
}
