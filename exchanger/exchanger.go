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

// Package exchanger is the session-level orchestrator (C7): it drives
// inbound serving sessions and the single outbound downloading session
// concurrently, arbitrates cancellation when the download is retargeted,
// and persists verified hash-tree state through the repository.
package exchanger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/decentralized-hse/litetorrent/merkle"
	"github.com/decentralized-hse/litetorrent/protocol"
	"github.com/decentralized-hse/litetorrent/storage"
	"github.com/decentralized-hse/litetorrent/transport"
)

var (
	metricServeSessions      = metrics.GetOrRegisterCounter("exchanger/serve/sessions", nil)
	metricServeReceiveErrors = metrics.GetOrRegisterCounter("exchanger/serve/receive_errors", nil)
	metricDialTimeouts       = metrics.GetOrRegisterCounter("exchanger/download/dial_timeouts", nil)
	metricDownloadSession    = metrics.GetOrRegisterResettingTimer("exchanger/download/session", nil)
)

// Exchanger is the piece exchanger. It holds a random self peer-id and, as
// one logical cell serialised by mu, the current downloading file's root
// hash (if any), the cancellation handle of whichever download task is
// currently live, and that task's completion channel.
type Exchanger struct {
	self transport.PeerID

	server    transport.Server
	connector transport.Connector
	resolver  *protocol.Resolver
	repo      *storage.HashTreeRepository

	mu                  sync.Mutex
	downloadingFileHash *merkle.Hash
	cancelDownload      context.CancelFunc
	downloadDone        chan struct{}
}

// New builds an Exchanger with a fresh random self peer-id.
func New(server transport.Server, connector transport.Connector, resolver *protocol.Resolver, repo *storage.HashTreeRepository) *Exchanger {
	return &Exchanger{
		self:      transport.NewPeerID(),
		server:    server,
		connector: connector,
		resolver:  resolver,
		repo:      repo,
	}
}

// SelfID returns the exchanger's peer-id.
func (e *Exchanger) SelfID() transport.PeerID {
	return e.self
}

// GetDownloadingFile returns the current download target's root hash, or
// nil if no download is in progress.
func (e *Exchanger) GetDownloadingFile() *merkle.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.downloadingFileHash
}

// StartDistributing runs the serving loop until ctx fires: repeatedly
// accepts peers, spawns a detached serve session per peer, and persists the
// accepted peer's hash tree. It returns when ctx is done.
func (e *Exchanger) StartDistributing(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		peer, err := e.server.Accept(ctx, e.self, e.GetDownloadingFile())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("accept failed", "err", err)
			continue
		}

		metricServeSessions.Inc(1)
		if err := e.repo.CreateOrReplace(peer.Context().SharedFile.HashTree); err != nil {
			log.Error("persisting accepted peer's hash tree failed", "err", err)
		}
		go e.startReceiving(ctx, peer)
	}
}

// startReceiving is the serve session: it consumes peer.Receive as an
// asynchronous sequence, dispatching each message through the handler
// resolver and surviving any number of receive errors. It is launched
// detached (fire-and-forget) by StartDistributing — unlike the downloading
// side's receive loop, nothing joins it.
func (e *Exchanger) startReceiving(ctx context.Context, peer transport.Peer) {
	defer func() {
		if !peer.IsClosed() {
			if err := peer.Close(); err != nil {
				log.Warn("closing peer after serve session", "err", err)
			}
		}
	}()

	results := peer.Receive(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			if res.Err != nil {
				metricServeReceiveErrors.Inc(1)
				log.Warn("serve session receive error", "err", res.Err)
				continue
			}
			e.dispatch(ctx, peer, res.Message)
		}
	}
}

// dispatch resolves msg to its handler, runs it, and sends the reply if
// one is needed. A HandlerError is logged and contained here so the
// surrounding loop survives it.
func (e *Exchanger) dispatch(ctx context.Context, peer transport.Peer, msg transport.Message) {
	handler, ok := e.resolver.Resolve(msg.Kind())
	if !ok {
		log.Warn("no handler registered for message kind", "kind", msg.Kind())
		return
	}

	result, err := handler.Handle(peer.Context(), msg)
	if err != nil {
		log.Error("handler returned an error, session continues", "kind", msg.Kind(), "err", err)
		return
	}
	if result.NeedToSend {
		if err := peer.Send(ctx, result.Payload); err != nil {
			log.Warn("sending handler reply failed", "err", err)
		}
	}
}

// StartDownloading is an idempotent retarget: if a download task is live it
// is cancelled and awaited to completion before the new one is installed
// and launched, so the three-field state never passes through a torn
// combination.
func (e *Exchanger) StartDownloading(ctx context.Context, hosts []transport.Host, sharedFile *storage.SharedFile) {
	e.mu.Lock()
	prevCancel := e.cancelDownload
	prevDone := e.downloadDone
	e.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	downloadCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	hash := sharedFile.Hash

	e.mu.Lock()
	e.downloadingFileHash = &hash
	e.cancelDownload = cancel
	e.downloadDone = done
	e.mu.Unlock()

	go func() {
		defer close(done)
		e.tryDownload(downloadCtx, hosts, sharedFile)
	}()
}

// tryDownload dials hosts in order, stopping at the first successful
// session; dial-timeouts move on to the next host, other per-host failures
// are logged and also move on. Cleanup of the three shared fields always
// runs, whether the loop completed, broke on cancellation, or ran out of
// hosts.
func (e *Exchanger) tryDownload(ctx context.Context, hosts []transport.Host, sharedFile *storage.SharedFile) {
	defer func() {
		e.mu.Lock()
		e.downloadingFileHash = nil
		e.cancelDownload = nil
		e.downloadDone = nil
		e.mu.Unlock()
	}()

	for _, host := range hosts {
		if ctx.Err() != nil {
			break
		}

		peer, err := e.connector.Connect(ctx, sharedFile, host)
		if err != nil {
			if errors.Is(err, transport.ErrDialTimeout) {
				metricDialTimeouts.Inc(1)
				log.Warn("dial timeout, trying next host", "host", host)
				continue
			}
			log.Warn("connect failed, trying next host", "host", host, "err", err)
			continue
		}

		start := time.Now()
		e.handleDownloadingPeer(ctx, peer, sharedFile)
		metricDownloadSession.UpdateSince(start)

		if err := e.repo.CreateOrReplace(sharedFile.HashTree); err != nil {
			log.Error("persisting hash tree after download session failed", "err", err)
		}
		break
	}
}

// handleDownloadingPeer is the download session: a receive task and a
// send task run concurrently; whichever finishes first triggers
// cancellation of the session context, and both are always awaited before
// returning, so the losing task never leaks.
func (e *Exchanger) handleDownloadingPeer(ctx context.Context, peer transport.Peer, sharedFile *storage.SharedFile) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	recvDone := make(chan struct{})
	sendDone := make(chan struct{})

	go func() {
		defer close(recvDone)
		e.receiveLoop(sessionCtx, peer)
	}()
	go func() {
		defer close(sendDone)
		e.sendRequests(sessionCtx, peer, sharedFile)
	}()

	select {
	case <-recvDone:
	case <-sendDone:
	}
	cancel()
	<-recvDone
	<-sendDone
}

// receiveLoop dispatches inbound messages for a downloading session. It
// does not close the peer itself; sendRequests owns that once it has
// emitted every request.
func (e *Exchanger) receiveLoop(ctx context.Context, peer transport.Peer) {
	results := peer.Receive(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			if res.Err != nil {
				log.Warn("download session receive error", "err", res.Err)
				continue
			}
			e.dispatch(ctx, peer, res.Message)
		}
	}
}

// sendRequests walks the unset bits of the tree's leaf states and requests
// each missing piece. When every request has been sent it closes the peer,
// unless the peer is already closed.
func (e *Exchanger) sendRequests(ctx context.Context, peer transport.Peer, sharedFile *storage.SharedFile) {
	tree := sharedFile.HashTree
	states := tree.GetLeafStates()

	for i := 0; i < tree.N(); i++ {
		if states.Test(uint(i)) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := peer.Send(ctx, protocol.PieceRequest{Index: i}); err != nil {
			log.Warn("sending piece request failed", "index", i, "err", err)
			return
		}
	}

	if !peer.IsClosed() {
		if err := peer.Close(); err != nil {
			log.Warn("closing peer after requests exhausted", "err", err)
		}
	}
}
