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

// Command litetorrent wires the core packages (merkle, storage, transport,
// protocol, exchanger) into a runnable node: a TCP server/connector pair,
// a disk-backed hash-tree repository, and the serving loop, started from a
// cli.v1 App/Action entrypoint.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/vbauerster/mpb"
	"github.com/vbauerster/mpb/decor"
	"gopkg.in/urfave/cli.v1"

	"github.com/decentralized-hse/litetorrent/exchanger"
	"github.com/decentralized-hse/litetorrent/merkle"
	"github.com/decentralized-hse/litetorrent/protocol"
	"github.com/decentralized-hse/litetorrent/storage"
	"github.com/decentralized-hse/litetorrent/transport"
	"github.com/decentralized-hse/litetorrent/transport/tcp"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to a TOML configuration file",
	}
	listenFlag = cli.StringFlag{
		Name:  "listen",
		Usage: "address to accept inbound peer connections on",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "directory holding the hash-tree repository database",
	}
	bootstrapFlag = cli.StringFlag{
		Name:  "bootstrap",
		Usage: "comma-separated host:port list to dial when downloading",
	}
	downloadFlag = cli.StringFlag{
		Name:  "download",
		Usage: "hex-encoded root hash of a file to download on start",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "log verbosity, 0 (silent) to 5 (trace)",
		Value: 3,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "litetorrent"
	app.Usage = "a BitTorrent-family peer-to-peer file distribution node"
	app.Flags = []cli.Flag{configFlag, listenFlag, dataDirFlag, bootstrapFlag, downloadFlag, verbosityFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(verbosity int) {
	handler := log.LvlFilterHandler(log.Lvl(verbosity), log.StreamHandler(colorable.NewColorableStderr(), log.TerminalFormat(true)))
	log.Root().SetHandler(handler)
}

func run(ctx *cli.Context) error {
	cfg := NewConfig()
	if err := loadConfig(ctx.String(configFlag.Name), cfg); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if v := ctx.String(listenFlag.Name); v != "" {
		cfg.ListenAddr = v
	}
	if v := ctx.String(dataDirFlag.Name); v != "" {
		cfg.DataDir = v
	}
	if v := ctx.String(bootstrapFlag.Name); v != "" {
		cfg.BootstrapHosts = strings.Split(v, ",")
	}
	if v := ctx.String(downloadFlag.Name); v != "" {
		cfg.DownloadRootHashHex = v
	}

	setupLogging(ctx.Int(verbosityFlag.Name))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	repo, err := storage.NewHashTreeRepository(filepath.Join(cfg.DataDir, "hashtrees"), cfg.TreeCacheSize)
	if err != nil {
		return fmt.Errorf("opening hash-tree repository: %w", err)
	}
	defer repo.Close()

	server, err := tcp.NewServer(cfg.ListenAddr, repo)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer server.Close()

	connector := &tcp.Connector{DialTimeout: time.Duration(cfg.DialTimeoutSec) * time.Second}
	pieceStore := storage.NewMemPieceStore()
	resolver := protocol.NewDefaultResolver(pieceStore)
	ex := exchanger.New(server, connector, resolver, repo)

	log.Info("litetorrent node starting", "self", ex.SelfID(), "listen", cfg.ListenAddr)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	if cfg.DownloadRootHashHex != "" {
		if err := startInitialDownload(runCtx, ex, repo, cfg); err != nil {
			log.Error("failed to start initial download", "err", err)
		}
	}

	if err := ex.StartDistributing(runCtx); err != nil && runCtx.Err() == nil {
		return fmt.Errorf("serving loop exited: %w", err)
	}
	return nil
}

func startInitialDownload(ctx context.Context, ex *exchanger.Exchanger, repo *storage.HashTreeRepository, cfg *Config) error {
	raw, err := hex.DecodeString(cfg.DownloadRootHashHex)
	if err != nil {
		return fmt.Errorf("decoding download root hash: %w", err)
	}
	rootHash := merkle.BytesToHash(raw)

	tree, err := repo.Load(rootHash)
	if err != nil {
		return fmt.Errorf("loading hash tree for download: %w", err)
	}
	sf := storage.NewSharedFile(tree)

	hosts := make([]transport.Host, len(cfg.BootstrapHosts))
	for i, h := range cfg.BootstrapHosts {
		hosts[i] = transport.Host(h)
	}

	ex.StartDownloading(ctx, hosts, sf)
	go reportDownloadProgress(ctx, sf)
	return nil
}

// reportDownloadProgress renders a terminal progress bar tracking sf's
// verified-piece count against its total until every piece lands or ctx is
// done. It polls rather than subscribing because HashTree exposes no
// completion event, only the point-in-time bitset from GetLeafStates.
func reportDownloadProgress(ctx context.Context, sf *storage.SharedFile) {
	total := sf.HashTree.N()
	p := mpb.New(mpb.WithOutput(colorable.NewColorableStderr()))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(decor.Name("downloading "+sf.Hash.String()[:8])),
		mpb.AppendDecorators(decor.Percentage()),
	)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	have := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := int(sf.HashTree.GetLeafStates().Count())
			if count > have {
				bar.IncrBy(count - have)
				have = count
			}
			if count >= total {
				return
			}
		}
	}
}
