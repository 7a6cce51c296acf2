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

package main

import (
	"os"

	"github.com/naoina/toml"
)

const (
	DefaultListenAddr    = "0.0.0.0:30333"
	DefaultDataDir       = "./litetorrent-data"
	DefaultTreeCacheSize = 256
	DefaultDialTimeout   = 10 // seconds
)

// Config is the flat, TOML-loadable configuration for a litetorrent node.
type Config struct {
	// Network configs
	ListenAddr     string
	BootstrapHosts []string
	DialTimeoutSec int
	// end of Network configs

	// Storage configs
	DataDir       string
	TreeCacheSize int
	// end of Storage configs

	// Download configs: set to join a swarm for an existing file on start.
	DownloadRootHashHex string
	// end of Download configs
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		ListenAddr:     DefaultListenAddr,
		DataDir:        DefaultDataDir,
		TreeCacheSize:  DefaultTreeCacheSize,
		DialTimeoutSec: DefaultDialTimeout,
	}
}

// loadConfig reads and merges a TOML file at path into cfg. An empty path
// is not an error; defaults are kept as-is. A path naming a file that cannot
// be opened returns the open error.
func loadConfig(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := toml.NewDecoder(f)
	return decoder.Decode(cfg)
}
