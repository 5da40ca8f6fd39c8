// Copyright (c) 2025 Niema Moshiri and The Zaparoo Project.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of go-chd.
//
// go-chd is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-chd is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-chd.  If not, see <https://www.gnu.org/licenses/>.

package chd

import (
	"errors"
	"fmt"
)

// Allocation limits to prevent DoS from malicious CHD files.
const (
	// MaxCompMapLen is the maximum compressed map size (100MB).
	MaxCompMapLen = 100 * 1024 * 1024

	// MaxNumHunks is the maximum number of hunks (10M = ~200GB uncompressed).
	MaxNumHunks = 10_000_000

	// MaxMetadataLen is the maximum metadata entry size (16MB, one above the largest 24-bit length).
	MaxMetadataLen = 16 * 1024 * 1024

	// MaxNumTracks is the maximum number of tracks (200, generous for any disc).
	MaxNumTracks = 200

	// MaxMetadataEntries is the maximum metadata chain entries (prevents loops).
	MaxMetadataEntries = 1000
)

// Kind is a stable, C-ABI-compatible error ordinal, mirroring libchdr's
// chd_error enum so callers bridging to native tooling can match on it
// directly instead of string-matching error text.
type Kind int

const (
	KindNone Kind = iota
	KindNoInterface
	KindOutOfMemory
	KindInvalidFile
	KindInvalidParameter
	KindInvalidData
	KindFileNotFound
	KindRequiresParent
	KindFileNotWriteable
	KindReadError
	KindWriteError
	KindCodecError
	KindInvalidParent
	KindHunkOutOfRange
	KindDecompressionError
	KindCompressionError
	KindCantCreateFile
	KindCantVerify
	KindNotSupported
	KindMetadataNotFound
	KindInvalidMetadataSize
	KindUnsupportedVersion
	KindVerifyIncomplete
	KindInvalidMetadata
	KindInvalidState
	KindOperationPending
	KindNoAsyncOperation
	KindUnsupportedFormat
	KindUnknown
)

//nolint:cyclop // plain enum-to-string table
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "no error"
	case KindNoInterface:
		return "no drive interface"
	case KindOutOfMemory:
		return "out of memory"
	case KindInvalidFile:
		return "invalid file"
	case KindInvalidParameter:
		return "invalid parameter"
	case KindInvalidData:
		return "invalid data"
	case KindFileNotFound:
		return "file not found"
	case KindRequiresParent:
		return "requires parent"
	case KindFileNotWriteable:
		return "file not writeable"
	case KindReadError:
		return "read error"
	case KindWriteError:
		return "write error"
	case KindCodecError:
		return "codec error"
	case KindInvalidParent:
		return "invalid parent"
	case KindHunkOutOfRange:
		return "hunk out of range"
	case KindDecompressionError:
		return "decompression error"
	case KindCompressionError:
		return "compression error"
	case KindCantCreateFile:
		return "can't create file"
	case KindCantVerify:
		return "can't verify file"
	case KindNotSupported:
		return "operation not supported"
	case KindMetadataNotFound:
		return "can't find metadata"
	case KindInvalidMetadataSize:
		return "invalid metadata size"
	case KindUnsupportedVersion:
		return "unsupported CHD version"
	case KindVerifyIncomplete:
		return "incomplete verify"
	case KindInvalidMetadata:
		return "invalid metadata"
	case KindInvalidState:
		return "invalid state"
	case KindOperationPending:
		return "operation pending"
	case KindNoAsyncOperation:
		return "no async operation in progress"
	case KindUnsupportedFormat:
		return "unsupported format"
	default:
		return "undocumented error"
	}
}

// Error is a CHD error carrying a stable Kind alongside the usual wrapped
// cause, so callers can switch on Kind without parsing message text.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// newErr builds an *Error, wrapping err (may be nil) under op with kind.
func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Common sentinel errors for CHD parsing, kept for errors.Is-based matching
// against the pre-existing test suite; each maps onto a Kind above.
var (
	// ErrInvalidMagic indicates the file does not have a valid CHD magic word.
	ErrInvalidMagic = errors.New("invalid CHD magic: expected MComprHD")

	// ErrInvalidHeader indicates the header structure is invalid.
	ErrInvalidHeader = errors.New("invalid CHD header")

	// ErrUnsupportedVersion indicates an unsupported CHD version.
	ErrUnsupportedVersion = errors.New("unsupported CHD version")

	// ErrUnsupportedCodec indicates an unsupported compression codec.
	ErrUnsupportedCodec = errors.New("unsupported compression codec")

	// ErrInvalidHunk indicates an invalid hunk index.
	ErrInvalidHunk = errors.New("invalid hunk index")

	// ErrDecompressFailed indicates decompression failed.
	ErrDecompressFailed = errors.New("decompression failed")

	// ErrCorruptData indicates data corruption was detected.
	ErrCorruptData = errors.New("data corruption detected")

	// ErrNoTracks indicates no track metadata was found.
	ErrNoTracks = errors.New("no track metadata found")

	// ErrInvalidMetadata indicates invalid metadata format.
	ErrInvalidMetadata = errors.New("invalid metadata format")

	// ErrRequiresParent indicates a delta CHD was opened without its parent.
	ErrRequiresParent = errors.New("parent CHD required but not provided")

	// ErrInvalidParent indicates a supplied parent CHD's hash does not match.
	ErrInvalidParent = errors.New("parent CHD hash mismatch")

	// ErrHunkOutOfRange indicates a hunk index beyond hunk_count.
	ErrHunkOutOfRange = errors.New("hunk index out of range")

	// ErrUnsupportedFormat indicates a recognized-but-unimplemented on-disk variant.
	ErrUnsupportedFormat = errors.New("unsupported CHD format variant")

	// ErrOutOfMemory indicates an output buffer length mismatch.
	ErrOutOfMemory = errors.New("output buffer size mismatch")
)
