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

package storage

import "errors"

// Error codes classify repository failures for callers that want to branch
// on kind rather than match a specific error value.
const (
	ErrInit = iota
	ErrNotFound
	ErrCorrupt
)

var (
	// ErrTreeNotFound is returned by Load when no tree is persisted under
	// the requested root hash.
	ErrTreeNotFound = errors.New("storage: hash tree not found")
	// ErrCorruptRecord is returned when a persisted record fails to decode.
	ErrCorruptRecord = errors.New("storage: corrupt persisted hash tree record")
	// ErrPieceNotFound is returned by a PieceStore when the requested index
	// has not been written.
	ErrPieceNotFound = errors.New("storage: piece not found")
)
