// Copyright 2026 The litetorrent Authors
// This file is part of the litetorrent library.
//
// The litetorrent library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The litetorrent library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the litetorrent library. If not, see <http://www.gnu.org/licenses/>.

package protocol

import (
	"github.com/decentralized-hse/litetorrent/storage"
	"github.com/decentralized-hse/litetorrent/transport"
)

// HandleResult is a handler's verdict on one inbound message.
type HandleResult struct {
	NeedToSend bool
	Payload    transport.Message
}

// Handler reacts to one inbound message kind, optionally consulting or
// mutating the session's Merkle tree, and optionally produces a reply.
type Handler interface {
	Handle(ctx *transport.SessionContext, msg transport.Message) (HandleResult, error)
}

// Resolver dispatches an inbound message to the handler registered for its
// Kind.
type Resolver struct {
	handlers map[string]Handler
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{handlers: make(map[string]Handler)}
}

// Register binds a handler to a message kind, replacing any prior handler
// for that kind.
func (r *Resolver) Register(kind string, h Handler) {
	r.handlers[kind] = h
}

// Resolve looks up the handler for kind.
func (r *Resolver) Resolve(kind string) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// NewDefaultResolver wires the two canonical handlers the exchanger relies
// on: PieceRequest (serving side) and PieceResponse (downloading side).
func NewDefaultResolver(store storage.PieceStore) *Resolver {
	r := NewResolver()
	r.Register(KindPieceRequest, &PieceRequestHandler{Store: store})
	r.Register(KindPieceResponse, &PieceResponseHandler{Store: store})
	return r
}
