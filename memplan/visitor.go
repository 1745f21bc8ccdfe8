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
	"github.com/pkg/errors"

	"github.com/lhez/qualcomm/expr"
)

// tokenCreator is what distinguishes the two planning passes: how tokens
// come into existence for a node, and how a call's arguments are accounted.
type tokenCreator interface {
	// createToken populates the token map entry for n. canRealloc is true
	// only for call outputs, the sole values eligible for slot reuse.
	createToken(n expr.Node, canRealloc bool) error
	// visitCall handles an operator application.
	visitCall(n *expr.Call) error
}

// baseVisitor is the traversal shared by both passes: it visits every
// reachable node of the DAG exactly once and caches the token list per
// node. Without the cache, shared sub-expressions would make the walk
// exponential.
type baseVisitor struct {
	arena    *tokenArena
	tokenMap map[expr.Node][]token
}

func newBaseVisitor(arena *tokenArena) baseVisitor {
	return baseVisitor{
		arena:    arena,
		tokenMap: make(map[expr.Node][]token),
	}
}

// run plans one function: parameters get tokens first, then the body is
// visited, and finally every token reachable as a final output gets one
// extra reference so outputs are never released mid-pass.
func (v *baseVisitor) run(fn *expr.Function, c tokenCreator) error {
	for _, p := range fn.Params {
		if err := c.createToken(p, false); err != nil {
			return err
		}
	}
	outs, err := v.getToken(fn.Body, c)
	if err != nil {
		return err
	}
	// must always keep outputs alive.
	for _, t := range outs {
		v.arena.get(t).refCount++
	}
	return nil
}

// getToken visits n if needed and returns its cached token list.
func (v *baseVisitor) getToken(n expr.Node, c tokenCreator) ([]token, error) {
	if err := v.visit(n, c); err != nil {
		return nil, err
	}
	toks, ok := v.tokenMap[n]
	if !ok {
		return nil, errors.Wrapf(ErrInvariant, "no tokens recorded for node %T", n)
	}
	return toks, nil
}

// visit dispatches over the closed set of node variants. Re-visiting a node
// returns immediately; the cached result stands.
func (v *baseVisitor) visit(n expr.Node, c tokenCreator) error {
	if _, ok := v.tokenMap[n]; ok {
		return nil
	}
	switch n := n.(type) {
	case *expr.Var:
		// Parameters were handled in run; let-bound names are aliased by
		// the Let case before the body references them.
		return nil

	case *expr.Constant, *expr.GlobalVar, *expr.Op:
		return c.createToken(n, false)

	case *expr.Function:
		// Do not recurse into nested definitions; they are opaque.
		v.tokenMap[n] = []token{}
		return nil

	case *expr.Tuple:
		// A tuple is a view over its fields' tokens; no new token.
		var fields []token
		for _, f := range n.Fields {
			toks, err := v.getToken(f, c)
			if err != nil {
				return err
			}
			fields = append(fields, toks...)
		}
		v.tokenMap[n] = fields
		return nil

	case *expr.TupleGetItem:
		toks, err := v.getToken(n.Tuple, c)
		if err != nil {
			return err
		}
		if n.Index < 0 || n.Index >= len(toks) {
			return errors.Wrapf(ErrInvariant,
				"tuple index %d out of range for %d fields", n.Index, len(toks))
		}
		v.tokenMap[n] = []token{toks[n.Index]}
		return nil

	case *expr.Let:
		val, err := v.getToken(n.Value, c)
		if err != nil {
			return err
		}
		v.tokenMap[n.Var] = val
		body, err := v.getToken(n.Body, c)
		if err != nil {
			return err
		}
		v.tokenMap[n] = body
		return nil

	case *expr.Call:
		return c.visitCall(n)

	case *expr.If:
		return errors.Wrap(ErrUnsupportedConstruct, "if is not supported")
	}
	return errors.Wrapf(ErrUnsupportedConstruct, "unknown node variant %T", n)
}
