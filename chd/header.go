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

// Package chd provides parsing for CHD (Compressed Hunks of Data) disc images.
package chd

import (
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
)

// CHD format magic word
var chdMagic = [8]byte{'M', 'C', 'o', 'm', 'p', 'r', 'H', 'D'}

// Header sizes for each CHD version.
const (
	headerSizeV1 = 76
	headerSizeV2 = 80
	headerSizeV3 = 120
	headerSizeV4 = 108
	headerSizeV5 = 124

	maxHeaderSize = headerSizeV5

	// legacyV1SectorBytes is the fixed sector size assumed for V1 images;
	// V2 stores it explicitly instead.
	legacyV1SectorBytes = 512

	// legacyFlagHasParent/legacyFlagUndefined are V1-V4 header flag bits.
	legacyFlagHasParent  = 0x00000001
	legacyFlagUndefined  = 0xfffffffc
	legacyMaxHunkBytes   = 65536 * 256
	cdFrameSizeFallback  = 2448
)

// Legacy (V1-V4) whole-file compression codes, distinct from the V5 FourCC tags.
const (
	legacyCompressionNone = 0
	legacyCompressionZlib = 1
	legacyCompressionZlib2 = 2 // "Zlib+", flagged UnsupportedFormat rather than guessed
	legacyCompressionAV   = 3
)

// Header represents a CHD file header, normalized across versions 1-5.
type Header struct {
	Magic        [8]byte
	HeaderSize   uint32
	Version      uint32
	Compressors  [4]uint32 // V5 FourCC codec tags; unused for V1-V4
	LogicalBytes uint64
	MapOffset    uint64
	MetaOffset   uint64 // absent (0) for V1/V2
	HunkBytes    uint32
	UnitBytes    uint32
	UnitCount    uint64
	RawSHA1      [20]byte
	SHA1         [20]byte
	ParentSHA1   [20]byte
	MD5          [16]byte
	ParentMD5    [16]byte

	// V1-V4 specific fields.
	Flags       uint32
	Compression uint32
	TotalHunks  uint32

	// V1/V2 geometry, used only to derive LogicalBytes/HunkBytes/UnitBytes.
	Cylinders    uint32
	Heads        uint32
	Sectors      uint32
	SectorBytes  uint32
}

// parseHeader reads and parses a CHD header from the given reader, which
// must also support seeking/reading at arbitrary offsets for the V3/V4
// unit_bytes guess (it re-reads the metadata chain).
func parseHeader(reader io.ReaderAt) (*Header, error) {
	raw := make([]byte, maxHeaderSize)
	n, err := reader.ReadAt(raw, 0)
	if err != nil && !(err == io.EOF && n >= 12) {
		return nil, newErr(KindInvalidFile, "parse header", err)
	}

	var header Header
	copy(header.Magic[:], raw[:8])
	if header.Magic != chdMagic {
		return nil, newErr(KindInvalidData, "parse header", ErrInvalidMagic)
	}

	header.HeaderSize = binary.BigEndian.Uint32(raw[8:12])
	header.Version = binary.BigEndian.Uint32(raw[12:16])

	switch header.Version {
	case 1:
		if header.HeaderSize != headerSizeV1 {
			return nil, newErr(KindInvalidData, "parse header", fmt.Errorf("bad V1 length %d", header.HeaderSize))
		}
		if err := parseHeaderV1(&header, raw, true); err != nil {
			return nil, err
		}
	case 2:
		if header.HeaderSize != headerSizeV2 {
			return nil, newErr(KindInvalidData, "parse header", fmt.Errorf("bad V2 length %d", header.HeaderSize))
		}
		if err := parseHeaderV1(&header, raw, false); err != nil {
			return nil, err
		}
	case 3:
		if header.HeaderSize != headerSizeV3 {
			return nil, newErr(KindInvalidData, "parse header", fmt.Errorf("bad V3 length %d", header.HeaderSize))
		}
		if err := parseHeaderV3(&header, raw); err != nil {
			return nil, err
		}
		header.UnitBytes = guessUnitBytes(reader, header.MetaOffset, header.HunkBytes)
		header.UnitCount = ceilDiv64(header.LogicalBytes, uint64(header.UnitBytes))
	case 4:
		if header.HeaderSize != headerSizeV4 {
			return nil, newErr(KindInvalidData, "parse header", fmt.Errorf("bad V4 length %d", header.HeaderSize))
		}
		if err := parseHeaderV4(&header, raw); err != nil {
			return nil, err
		}
		header.UnitBytes = guessUnitBytes(reader, header.MetaOffset, header.HunkBytes)
		header.UnitCount = ceilDiv64(header.LogicalBytes, uint64(header.UnitBytes))
	case 5:
		if header.HeaderSize != headerSizeV5 {
			return nil, newErr(KindInvalidData, "parse header", fmt.Errorf("bad V5 length %d", header.HeaderSize))
		}
		if err := parseHeaderV5(&header, raw); err != nil {
			return nil, err
		}
	default:
		return nil, newErr(KindUnsupportedVersion, "parse header", fmt.Errorf("version %d", header.Version))
	}

	if err := header.Validate(); err != nil {
		return nil, err
	}

	return &header, nil
}

func ceilDiv64(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// parseHeaderV1 parses a V1 or V2 header. V2 adds an explicit sector_length
// field at offset 76 (legacy chd-rs layout); V1 fixes it at 512 bytes.
//
//	Offset 0x00: Magic (8 bytes)          Offset 0x10: Flags (4)
//	Offset 0x08: Header size (4)          Offset 0x14: Compression (4)
//	Offset 0x0C: Version (4)              Offset 0x18: Hunk size (4)
//	Offset 0x1C: Total hunks (4)          Offset 0x20: Cylinders (4)
//	Offset 0x24: Heads (4)                Offset 0x28: Sectors (4)
//	Offset 0x2C: MD5 (16)                 Offset 0x3C: Parent MD5 (16)
//	Offset 0x4C: Sector length (4, V2 only)
func parseHeaderV1(header *Header, buf []byte, isV1 bool) error {
	if len(buf) < headerSizeV2 {
		return newErr(KindInvalidFile, "parse header v1/v2", fmt.Errorf("short buffer"))
	}
	header.Flags = binary.BigEndian.Uint32(buf[0x10:0x14])
	header.Compression = binary.BigEndian.Uint32(buf[0x14:0x18])
	hunkSize := binary.BigEndian.Uint32(buf[0x18:0x1C])
	header.TotalHunks = binary.BigEndian.Uint32(buf[0x1C:0x20])
	header.Cylinders = binary.BigEndian.Uint32(buf[0x20:0x24])
	header.Heads = binary.BigEndian.Uint32(buf[0x24:0x28])
	header.Sectors = binary.BigEndian.Uint32(buf[0x28:0x2C])
	copy(header.MD5[:], buf[0x2C:0x3C])
	copy(header.ParentMD5[:], buf[0x3C:0x4C])

	sectorBytes := uint32(legacyV1SectorBytes)
	if !isV1 {
		sectorBytes = binary.BigEndian.Uint32(buf[0x4C:0x50])
	}
	header.SectorBytes = sectorBytes

	if hunkSize == 0 {
		return newErr(KindInvalidData, "parse header v1/v2", fmt.Errorf("zero hunk size"))
	}
	header.LogicalBytes = uint64(header.Cylinders) * uint64(header.Heads) * uint64(header.Sectors) * uint64(sectorBytes)
	header.HunkBytes = sectorBytes * hunkSize
	header.UnitBytes = header.HunkBytes / hunkSize
	header.UnitCount = ceilDiv64(header.LogicalBytes, uint64(header.UnitBytes))
	// Map for legacy versions starts immediately after the declared header.
	header.MapOffset = uint64(header.HeaderSize)
	return nil
}

// parseHeaderV3 parses a V3 header (120 bytes total).
func parseHeaderV3(header *Header, buf []byte) error {
	if len(buf) < headerSizeV3 {
		return newErr(KindInvalidFile, "parse header v3", fmt.Errorf("%w: short buffer", ErrInvalidHeader))
	}
	header.Flags = binary.BigEndian.Uint32(buf[0x10:0x14])
	header.Compression = binary.BigEndian.Uint32(buf[0x14:0x18])
	header.TotalHunks = binary.BigEndian.Uint32(buf[0x18:0x1C])
	header.LogicalBytes = binary.BigEndian.Uint64(buf[0x1C:0x24])
	header.MetaOffset = binary.BigEndian.Uint64(buf[0x24:0x2C])
	copy(header.MD5[:], buf[0x2C:0x3C])
	copy(header.ParentMD5[:], buf[0x3C:0x4C])
	header.HunkBytes = binary.BigEndian.Uint32(buf[0x4C:0x50])
	copy(header.SHA1[:], buf[0x50:0x64])
	copy(header.ParentSHA1[:], buf[0x64:0x78])
	header.MapOffset = uint64(header.HeaderSize)
	return nil
}

// parseHeaderV4 parses a V4 header (108 bytes total).
func parseHeaderV4(header *Header, buf []byte) error {
	if len(buf) < headerSizeV4 {
		return newErr(KindInvalidFile, "parse header v4", fmt.Errorf("%w: short buffer", ErrInvalidHeader))
	}
	header.Flags = binary.BigEndian.Uint32(buf[0x10:0x14])
	header.Compression = binary.BigEndian.Uint32(buf[0x14:0x18])
	header.TotalHunks = binary.BigEndian.Uint32(buf[0x18:0x1C])
	header.LogicalBytes = binary.BigEndian.Uint64(buf[0x1C:0x24])
	header.MetaOffset = binary.BigEndian.Uint64(buf[0x24:0x2C])
	header.HunkBytes = binary.BigEndian.Uint32(buf[0x2C:0x30])
	copy(header.SHA1[:], buf[0x30:0x44])
	copy(header.ParentSHA1[:], buf[0x44:0x58])
	copy(header.RawSHA1[:], buf[0x58:0x6C])
	header.MapOffset = uint64(header.HeaderSize)
	return nil
}

// parseHeaderV5 parses a V5 header (124 bytes total).
func parseHeaderV5(header *Header, buf []byte) error {
	if len(buf) < headerSizeV5 {
		return newErr(KindInvalidFile, "parse header v5", fmt.Errorf("short buffer"))
	}
	header.Compressors[0] = binary.BigEndian.Uint32(buf[0x10:0x14])
	header.Compressors[1] = binary.BigEndian.Uint32(buf[0x14:0x18])
	header.Compressors[2] = binary.BigEndian.Uint32(buf[0x18:0x1C])
	header.Compressors[3] = binary.BigEndian.Uint32(buf[0x1C:0x20])
	header.LogicalBytes = binary.BigEndian.Uint64(buf[0x20:0x28])
	header.MapOffset = binary.BigEndian.Uint64(buf[0x28:0x30])
	header.MetaOffset = binary.BigEndian.Uint64(buf[0x30:0x38])
	header.HunkBytes = binary.BigEndian.Uint32(buf[0x38:0x3C])
	header.UnitBytes = binary.BigEndian.Uint32(buf[0x3C:0x40])
	copy(header.RawSHA1[:], buf[0x40:0x54])
	copy(header.SHA1[:], buf[0x54:0x68])
	copy(header.ParentSHA1[:], buf[0x68:0x7C])
	if header.UnitBytes > 0 {
		header.UnitCount = ceilDiv64(header.LogicalBytes, uint64(header.UnitBytes))
	}
	return nil
}

// bpsRegexp matches the BPS:<digits> hard-disk metadata field used by
// guessUnitBytes.
var bpsRegexp = regexp.MustCompile(`BPS:(\d+)`)

// guessUnitBytes implements the V3/V4 unit_bytes heuristic: a GDDD
// hard-disk metadata entry's BPS field, else the CD frame size if any
// CD-family metadata tag is present, else hunkBytes itself.
func guessUnitBytes(reader io.ReaderAt, metaOffset uint64, hunkBytes uint32) uint32 {
	entries, err := parseMetadata(reader, metaOffset)
	if err != nil {
		return hunkBytes
	}
	for _, e := range entries {
		if e.Tag != tagGDDD {
			continue
		}
		if m := bpsRegexp.FindSubmatch(e.Data); m != nil {
			var bps uint32
			if _, err := fmt.Sscanf(string(m[1]), "%d", &bps); err == nil && bps > 0 {
				return bps
			}
		}
	}
	for _, e := range entries {
		if isCDRomTag(e.Tag) {
			return cdFrameSizeFallback
		}
	}
	return hunkBytes
}

// NumHunks returns the total number of hunks in the CHD file.
func (h *Header) NumHunks() uint32 {
	if h.Version != 5 {
		return h.TotalHunks
	}
	if h.HunkBytes == 0 {
		return 0
	}
	//nolint:gosec // Safe: result bounded by file size, will not overflow for valid CHD files
	return uint32(ceilDiv64(h.LogicalBytes, uint64(h.HunkBytes)))
}

// IsCompressed returns true if the CHD uses compression.
func (h *Header) IsCompressed() bool {
	if h.Version == 5 {
		return h.Compressors[0] != 0
	}
	return h.Compression != 0
}

// HasParent reports whether this header declares a parent CHD.
func (h *Header) HasParent() bool {
	if h.Version == 5 {
		return h.ParentSHA1 != [20]byte{}
	}
	return h.Flags&legacyFlagHasParent != 0
}

// Validate applies the header-consistency checks from spec.md §4.1/§3: for
// V1-V4, reserved flag bits, hunk size bounds, non-zero hunk count, and (if
// has_parent) a non-zero parent hash slot; V5 gets only the length check
// already applied by the caller.
func (h *Header) Validate() error {
	if h.Version == 5 {
		return nil
	}

	if h.Flags&legacyFlagUndefined != 0 {
		return newErr(KindInvalidData, "validate header", fmt.Errorf("reserved flag bits set"))
	}
	if h.HunkBytes == 0 || h.HunkBytes >= legacyMaxHunkBytes {
		return newErr(KindInvalidData, "validate header", fmt.Errorf("hunk_bytes out of range: %d", h.HunkBytes))
	}
	if h.NumHunks() == 0 {
		return newErr(KindInvalidData, "validate header", fmt.Errorf("hunk_count is zero"))
	}

	if !h.HasParent() {
		return nil
	}

	switch h.Version {
	case 1, 2:
		if h.ParentMD5 == [16]byte{} {
			return newErr(KindInvalidData, "validate header", fmt.Errorf("has_parent but parent MD5 is zero"))
		}
	case 3:
		if h.ParentMD5 == [16]byte{} && h.ParentSHA1 == [20]byte{} {
			return newErr(KindInvalidData, "validate header", fmt.Errorf("has_parent but parent hashes are zero"))
		}
	case 4:
		if h.ParentSHA1 == [20]byte{} {
			return newErr(KindInvalidData, "validate header", fmt.Errorf("has_parent but parent SHA1 is zero"))
		}
	}
	return nil
}
