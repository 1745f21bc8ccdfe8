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
	"github.com/lhez/qualcomm/y"
)

// allocPass re-traverses the graph in execution order and replaces each
// prototype token with a concrete slot assignment, retiring argument
// references as calls are processed. Because producers are visited before
// consumers and every node exactly once, a slot becomes reusable at the
// earliest point after its last consumer is scheduled.
type allocPass struct {
	baseVisitor
	prototype map[expr.Node][]token
	alloc     *tokenAllocator
	logger    y.Logger
}

func (p *allocPass) createToken(n expr.Node, canRealloc bool) error {
	if _, ok := p.tokenMap[n]; ok {
		return errors.Wrapf(ErrInvariant, "token already created for node %T", n)
	}
	protos, ok := p.prototype[n]
	if !ok {
		return errors.Wrapf(ErrInvariant, "no prototype tokens for node %T", n)
	}
	tokens := make([]token, 0, len(protos))
	for _, proto := range protos {
		pt := p.arena.get(proto)
		// Only call outputs on generic memory are recycled. Parameters,
		// constants and texture-scoped outputs get dedicated slots that
		// stay pinned for the whole plan.
		if canRealloc && pt.scope == "global" {
			tok, err := p.alloc.request(proto)
			if err != nil {
				return err
			}
			if tok != proto {
				p.logger.Debugf("reusing slot %d for %s", p.arena.get(tok).slotID, pt.ttype)
			}
			tokens = append(tokens, tok)
		} else {
			tok, err := p.alloc.alloc(proto)
			if err != nil {
				return err
			}
			t := p.arena.get(tok)
			t.deviceType = pt.deviceType
			// ensure it never gets de-allocated.
			t.refCount++
			tokens = append(tokens, tok)
		}
	}
	p.tokenMap[n] = tokens
	return nil
}

func (p *allocPass) visitCall(n *expr.Call) error {
	// Gather argument tokens first so the call's own outputs may land in
	// slots freed by earlier computations, then retire one reference per
	// argument use.
	var args []token
	for _, arg := range n.Args {
		toks, err := p.getToken(arg, p)
		if err != nil {
			return err
		}
		args = append(args, toks...)
	}
	if err := p.createToken(n, true); err != nil {
		return err
	}
	// An output nobody consumes can be released immediately.
	for _, tok := range p.tokenMap[n] {
		if err := p.alloc.checkForRelease(tok); err != nil {
			return err
		}
	}
	for _, tok := range args {
		p.arena.get(tok).refCount--
		if err := p.alloc.checkForRelease(tok); err != nil {
			return err
		}
	}
	return nil
}
