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

// initPass is the prototype pass: one traversal that creates the canonical
// token list per node with correct arity, device and scope metadata, and
// reference counts reflecting true graph usage. It performs no allocation.
type initPass struct {
	baseVisitor
	devices map[expr.Node]int
	scopes  map[expr.Node][]string
}

func newInitPass(arena *tokenArena, devices map[expr.Node]int, scopes map[expr.Node][]string) *initPass {
	return &initPass{
		baseVisitor: newBaseVisitor(arena),
		devices:     devices,
		scopes:      scopes,
	}
}

// buildTokenMap runs the pass and returns the prototype token map.
func (p *initPass) buildTokenMap(fn *expr.Function) (map[expr.Node][]token, error) {
	if err := p.run(fn, p); err != nil {
		return nil, err
	}
	return p.tokenMap, nil
}

func (p *initPass) createToken(n expr.Node, canRealloc bool) error {
	if _, ok := p.tokenMap[n]; ok {
		return errors.Wrapf(ErrInvariant, "token already created for node %T", n)
	}
	deviceType := p.devices[n]
	scopes, hasScopes := p.scopes[n]

	var tokens []token
	switch t := n.Type().(type) {
	case *expr.TupleType:
		if hasScopes && len(scopes) != len(t.Fields) {
			return errors.Wrapf(ErrArityMismatch,
				"classifier returned %d scopes for a %d-field tuple", len(scopes), len(t.Fields))
		}
		for i, field := range t.Fields {
			tok := storageToken{ttype: field, deviceType: deviceType}
			if hasScopes {
				tok.scope = scopes[i]
			}
			tokens = append(tokens, p.arena.newToken(tok))
		}

	case *expr.TensorType:
		if hasScopes && len(scopes) != 1 {
			return errors.Wrapf(ErrArityMismatch,
				"classifier returned %d scopes for a tensor output", len(scopes))
		}
		tok := storageToken{ttype: t, deviceType: deviceType}
		if hasScopes {
			tok.scope = scopes[0]
		}
		tokens = append(tokens, p.arena.newToken(tok))

	case nil:
		// Opaque reference with no tensor value; nothing to plan.
		tokens = []token{}

	default:
		return errors.Wrapf(ErrUnsupportedConstruct, "cannot plan output of type %s", t)
	}
	p.tokenMap[n] = tokens
	return nil
}

func (p *initPass) visitCall(n *expr.Call) error {
	// Create tokens for the call's own outputs, then count one reference
	// per argument use-site. A value referenced twice accumulates two.
	if err := p.createToken(n, true); err != nil {
		return err
	}
	for _, arg := range n.Args {
		toks, err := p.getToken(arg, p)
		if err != nil {
			return err
		}
		for _, t := range toks {
			p.arena.get(t).refCount++
		}
	}
	return nil
}
