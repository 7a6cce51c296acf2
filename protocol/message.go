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

// Package protocol holds the message kinds the exchanger relies on and the
// handler resolver that dispatches an inbound message to its handler (C6).
// The exchanger never inspects a message itself; new kinds are added here
// without touching exchanger code.
package protocol

import "github.com/decentralized-hse/litetorrent/merkle"

const (
	KindPieceRequest  = "PieceRequest"
	KindPieceResponse = "PieceResponse"
)

// PieceRequest asks the peer for one piece by index.
type PieceRequest struct {
	Index int
}

func (PieceRequest) Kind() string { return KindPieceRequest }

// PieceResponse carries one piece's bytes plus the proof needed to verify
// them against the downloader's root hash.
type PieceResponse struct {
	Index    int
	Bytes    []byte
	LeafHash merkle.Hash
	Path     []merkle.Hash
}

func (PieceResponse) Kind() string { return KindPieceResponse }
