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
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/decentralized-hse/litetorrent/merkle"
	"github.com/decentralized-hse/litetorrent/storage"
	"github.com/decentralized-hse/litetorrent/transport"
)

var (
	metricPiecesVerified = metrics.GetOrRegisterCounter("exchanger/download/pieces_verified", nil)
	metricPiecesRejected = metrics.GetOrRegisterCounter("exchanger/download/pieces_rejected", nil)
)

// PieceRequestHandler is the serving-side handler: it looks up the
// requested piece's hash and path, reads the bytes from the local piece
// store, and answers with a PieceResponse. If the piece is not held
// locally it declines to reply.
type PieceRequestHandler struct {
	Store storage.PieceStore
}

func (h *PieceRequestHandler) Handle(ctx *transport.SessionContext, msg transport.Message) (HandleResult, error) {
	req, ok := msg.(PieceRequest)
	if !ok {
		return HandleResult{}, fmt.Errorf("protocol: PieceRequestHandler got unexpected message type %T", msg)
	}

	tree := ctx.SharedFile.HashTree
	leafHash := tree.GetPieceHash(req.Index)
	if leafHash.IsEmpty() {
		log.Trace("declining piece request, not held locally", "index", req.Index)
		return HandleResult{NeedToSend: false}, nil
	}

	bytes, err := h.Store.ReadPiece(req.Index)
	if err != nil {
		return HandleResult{}, fmt.Errorf("protocol: reading piece %d: %w", req.Index, err)
	}

	payload := PieceResponse{
		Index:    req.Index,
		Bytes:    bytes,
		LeafHash: leafHash,
		Path:     tree.GetPath(req.Index),
	}
	return HandleResult{NeedToSend: true, Payload: payload}, nil
}

// PieceResponseHandler is the downloading-side handler: it verifies the
// delivered bytes against the session's root hash via tryAdd, and on
// success writes them to the local piece store. A verification failure is
// silent: the response is dropped, no storage slot is touched, and the
// handler still declines to reply.
type PieceResponseHandler struct {
	Store storage.PieceStore
}

func (h *PieceResponseHandler) Handle(ctx *transport.SessionContext, msg transport.Message) (HandleResult, error) {
	resp, ok := msg.(PieceResponse)
	if !ok {
		return HandleResult{}, fmt.Errorf("protocol: PieceResponseHandler got unexpected message type %T", msg)
	}

	itemHash := merkle.Sum(resp.Bytes)
	tree := ctx.SharedFile.HashTree
	if !tree.TryAdd(resp.Index, itemHash, resp.Path) {
		metricPiecesRejected.Inc(1)
		log.Warn("piece failed verification, dropping", "index", resp.Index)
		return HandleResult{NeedToSend: false}, nil
	}

	metricPiecesVerified.Inc(1)
	if err := h.Store.WritePiece(resp.Index, resp.Bytes); err != nil {
		return HandleResult{}, fmt.Errorf("protocol: writing piece %d: %w", resp.Index, err)
	}
	return HandleResult{NeedToSend: false}, nil
}
