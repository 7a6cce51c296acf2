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

// Package transport declares the external collaborators the exchanger
// drives: the peer transport (C4) and the server/connector pair (C5). Only
// the interfaces live here; concrete socket implementations are out of
// scope for the core, the same way holisticode/swarm's network package
// consumes a StreamProvider without caring how bytes move on the wire.
package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/decentralized-hse/litetorrent/merkle"
	"github.com/decentralized-hse/litetorrent/storage"
)

// PeerID is a random, globally-unique-within-a-reasonable-horizon session
// identifier, a 128-bit UUID.
type PeerID [16]byte

// NewPeerID generates a fresh random peer id.
func NewPeerID() PeerID {
	return PeerID(uuid.New())
}

func (id PeerID) String() string {
	return uuid.UUID(id).String()
}

// Host is an opaque dial target understood by a Connector implementation
// (address, multiaddr, DNS name — the core does not interpret it).
type Host string

// Message is the wire-level envelope exchanged between peers. Byte encoding
// is out of scope for the core; a message need only be routable to a
// handler by Kind.
type Message interface {
	Kind() string
}

// Result is one element of a Peer's receive sequence: either a decoded
// message or a non-fatal receive error.
type Result struct {
	Message Message
	Err     error
}

// SessionContext is the per-peer state a handler operates on.
type SessionContext struct {
	SharedFile *storage.SharedFile
}

// Peer is a live, bidirectional session bound to one remote endpoint.
type Peer interface {
	Context() *SessionContext
	Send(ctx context.Context, msg Message) error
	// Receive returns a channel of inbound Results; the channel is closed
	// when the peer session ends (by remote close or ctx cancellation).
	Receive(ctx context.Context) <-chan Result
	Close() error
	IsClosed() bool
}

// Server accepts inbound peer sessions (the serving side of C5).
// downloadingFileHash is the exchanger's current download target, passed
// through as an opaque hint the server may use for peer advertisement; it
// is never a filter on what gets served.
type Server interface {
	Accept(ctx context.Context, self PeerID, downloadingFileHash *merkle.Hash) (Peer, error)
}

// Connector dials outbound peer sessions (the downloading side of C5).
type Connector interface {
	Connect(ctx context.Context, sharedFile *storage.SharedFile, host Host) (Peer, error)
}

// ErrDialTimeout is the one transport failure the core recognises by kind:
// Connector.Connect returns it (or a wrapped form of it, checked with
// errors.Is) when a host is unreachable within its dial deadline.
var ErrDialTimeout = errors.New("transport: dial timeout")
