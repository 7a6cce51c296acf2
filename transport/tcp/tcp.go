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

// Package tcp is a reference transport.Server/Connector/Peer implementation
// over plain TCP, used to wire up cmd/litetorrent. The core spec treats
// transport as an external collaborator specified only at its interface;
// this package is one concrete choice among many, not a requirement of the
// core, and keeps its own wire framing deliberately simple: a handshake of
// the file's root hash followed by length-prefixed, RLP-encoded envelopes.
package tcp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/decentralized-hse/litetorrent/merkle"
	"github.com/decentralized-hse/litetorrent/protocol"
	"github.com/decentralized-hse/litetorrent/storage"
	"github.com/decentralized-hse/litetorrent/transport"
)

const maxFrameSize = 32 << 20 // 32 MiB, generous for one piece plus its path

// envelope is the one wire-level frame shape every message travels in; Kind
// selects how Payload is decoded.
type envelope struct {
	Kind    string
	Payload []byte
}

func encodeMessage(msg transport.Message) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(msg)
	if err != nil {
		return nil, fmt.Errorf("tcp: encoding %s payload: %w", msg.Kind(), err)
	}
	return rlp.EncodeToBytes(envelope{Kind: msg.Kind(), Payload: payload})
}

func decodeMessage(frame []byte) (transport.Message, error) {
	var env envelope
	if err := rlp.DecodeBytes(frame, &env); err != nil {
		return nil, fmt.Errorf("tcp: decoding envelope: %w", err)
	}
	switch env.Kind {
	case protocol.KindPieceRequest:
		var m protocol.PieceRequest
		if err := rlp.DecodeBytes(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("tcp: decoding PieceRequest: %w", err)
		}
		return m, nil
	case protocol.KindPieceResponse:
		var m protocol.PieceResponse
		if err := rlp.DecodeBytes(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("tcp: decoding PieceResponse: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("tcp: unknown message kind %q", env.Kind)
	}
}

func writeFrame(conn net.Conn, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

func readFrame(conn net.Conn) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("tcp: frame of %d bytes exceeds %d byte limit", n, maxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// peer is the transport.Peer implementation backed by one net.Conn.
type peer struct {
	conn net.Conn
	ctx  *transport.SessionContext

	mu     sync.Mutex
	closed bool
}

func newPeer(conn net.Conn, sessionCtx *transport.SessionContext) *peer {
	return &peer{conn: conn, ctx: sessionCtx}
}

func (p *peer) Context() *transport.SessionContext { return p.ctx }

func (p *peer) Send(_ context.Context, msg transport.Message) error {
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	return writeFrame(p.conn, payload)
}

func (p *peer) Receive(ctx context.Context) <-chan transport.Result {
	ch := make(chan transport.Result)
	go func() {
		defer close(ch)
		for {
			frame, err := readFrame(p.conn)
			if err != nil {
				select {
				case ch <- transport.Result{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			msg, err := decodeMessage(frame)
			select {
			case ch <- transport.Result{Message: msg, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (p *peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}

func (p *peer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Server accepts inbound TCP connections and resolves each to a
// SharedFile via a 32-byte root-hash handshake read right after accept.
type Server struct {
	ln   net.Listener
	repo *storage.HashTreeRepository
}

// NewServer listens on addr and resolves accepted peers' shared files
// through repo.
func NewServer(addr string, repo *storage.HashTreeRepository) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln, repo: repo}, nil
}

func (s *Server) Close() error { return s.ln.Close() }

func (s *Server) Accept(ctx context.Context, self transport.PeerID, downloadingFileHash *merkle.Hash) (transport.Peer, error) {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	resCh := make(chan acceptResult, 1)
	go func() {
		conn, err := s.ln.Accept()
		resCh <- acceptResult{conn, err}
	}()

	var res acceptResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-resCh:
	}
	if res.err != nil {
		return nil, res.err
	}
	conn := res.conn

	var handshake [merkle.Size]byte
	if _, err := io.ReadFull(conn, handshake[:]); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tcp: reading handshake: %w", err)
	}
	rootHash := merkle.BytesToHash(handshake[:])

	tree, err := s.repo.Load(rootHash)
	if err != nil {
		log.Warn("rejecting peer for unknown root hash", "root", rootHash, "err", err)
		conn.Close()
		return nil, fmt.Errorf("tcp: unknown root hash %s: %w", rootHash, err)
	}

	if downloadingFileHash != nil {
		log.Trace("accepted peer while also downloading", "self", self, "downloading", *downloadingFileHash)
	}

	sf := storage.NewSharedFile(tree)
	return newPeer(conn, &transport.SessionContext{SharedFile: sf}), nil
}

// Connector dials outbound TCP connections, recognising a dial timeout as
// transport.ErrDialTimeout.
type Connector struct {
	DialTimeout time.Duration
}

func (c *Connector) Connect(ctx context.Context, sharedFile *storage.SharedFile, host transport.Host) (transport.Peer, error) {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", string(host))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, transport.ErrDialTimeout
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, transport.ErrDialTimeout
		}
		return nil, err
	}

	if _, err := conn.Write(sharedFile.Hash.Bytes()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tcp: sending handshake: %w", err)
	}

	return newPeer(conn, &transport.SessionContext{SharedFile: sharedFile}), nil
}
