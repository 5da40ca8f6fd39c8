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
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Hunk compression types (V5 map entry types).
const (
	HunkCompTypeCodec0   = 0  // Compressed with compressor 0
	HunkCompTypeCodec1   = 1  // Compressed with compressor 1
	HunkCompTypeCodec2   = 2  // Compressed with compressor 2
	HunkCompTypeCodec3   = 3  // Compressed with compressor 3
	HunkCompTypeNone     = 4  // Uncompressed
	HunkCompTypeSelf     = 5  // Reference to another hunk in this CHD
	HunkCompTypeParent   = 6  // Reference to parent CHD
	HunkCompTypeRLESmall = 7  // RLE: repeat last compression type (small count)
	HunkCompTypeRLELarge = 8  // RLE: repeat last compression type (large count)
	HunkCompTypeSelf0    = 9  // Self reference to same hunk as last
	HunkCompTypeSelf1    = 10 // Self reference to last+1
	HunkCompTypeParSelf  = 11 // Parent reference to self
	HunkCompTypePar0     = 12 // Parent reference same as last
	HunkCompTypePar1     = 13 // Parent reference last+1

	// hunkCompTypeV5Raw marks an entry decoded from a V5 *uncompressed* map
	// (first codec slot 0). It never appears on disk; parseMapV5Uncompressed
	// assigns it so decompressHunk can tell an uncompressed-map entry apart
	// from a Huffman-coded-map entry of type HunkCompTypeNone.
	hunkCompTypeV5Raw = 0xFF
)

// Legacy (V1-V4) map entry types, packed into the low nibble of the flags
// byte of each 16-byte map entry.
const (
	legacyMapCompressed   = 0
	legacyMapUncompressed = 1
	legacyMapMini         = 2
	legacyMapSelfHunk     = 3
	legacyMapParentHunk   = 4

	legacyFlagNoCRC = 0x10
)

// HunkMapEntry represents a single entry in the hunk map, normalized across
// legacy (V1-V4) and V5 formats.
type HunkMapEntry struct {
	Offset     uint64
	CompLength uint32
	CRC16      uint16
	CRC32      uint32
	HasCRC     bool
	CompType   uint8
}

// HunkMap manages the hunk map, decompression, and caching for a CHD file.
// It optionally chains to a parent HunkMap to resolve parent-referenced
// hunks/units, matching the delta-CHD linkage described in spec.md §5.
type HunkMap struct {
	reader  io.ReaderAt
	header  *Header
	parent  *HunkMap
	entries []HunkMapEntry
	codecs  []Codec
	cache   *lru.Cache[uint32, []byte]

	readingMu sync.Mutex
	reading   map[uint32]bool
}

// defaultHunkCacheSize is the number of decompressed hunks kept resident;
// chosen to cover a handful of sequential reads without holding an entire
// disc image in memory.
const defaultHunkCacheSize = 16

// NewHunkMap creates a new hunk map from the CHD header and reader.
func NewHunkMap(reader io.ReaderAt, header *Header) (*HunkMap, error) {
	return NewHunkMapWithParent(reader, header, nil)
}

// NewHunkMapWithParent creates a hunk map that resolves Parent-type entries
// through parent. Pass nil for standalone (non-delta) CHDs.
func NewHunkMapWithParent(reader io.ReaderAt, header *Header, parent *HunkMap) (*HunkMap, error) {
	cache, err := lru.New[uint32, []byte](defaultHunkCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create hunk cache: %w", err)
	}

	hm := &HunkMap{
		reader:  reader,
		header:  header,
		parent:  parent,
		cache:   cache,
		reading: make(map[uint32]bool),
	}

	if header.HasParent() && parent == nil {
		return nil, newErr(KindRequiresParent, "new hunk map", ErrRequiresParent)
	}

	if header.Version == 5 {
		for _, tag := range header.Compressors {
			if tag == 0 {
				hm.codecs = append(hm.codecs, nil)
				continue
			}
			codec, codecErr := GetCodec(tag)
			if codecErr != nil {
				// Codec not available - continue without it. If a hunk actually
				// needs this codec, decompressWithCodec will return a clear error.
				hm.codecs = append(hm.codecs, nil)
				continue
			}
			hm.codecs = append(hm.codecs, codec)
		}
	}

	if err := hm.parseMap(); err != nil {
		return nil, fmt.Errorf("parse hunk map: %w", err)
	}

	return hm, nil
}

// parseMap parses the hunk map from the CHD file.
func (hm *HunkMap) parseMap() error {
	numHunks := hm.header.NumHunks()
	if numHunks > MaxNumHunks {
		return fmt.Errorf("%w: too many hunks (%d > %d)", ErrInvalidHeader, numHunks, MaxNumHunks)
	}
	hm.entries = make([]HunkMapEntry, numHunks)

	switch hm.header.Version {
	case 5:
		if hm.header.Compressors[0] == 0 {
			return hm.parseMapV5Uncompressed()
		}
		return hm.parseMapV5Compressed()
	case 1, 2, 3, 4:
		return hm.parseMapLegacy()
	default:
		return fmt.Errorf("%w: version %d", ErrUnsupportedVersion, hm.header.Version)
	}
}

// parseMapV5Uncompressed parses a V5 map whose first codec slot is 0: the
// map is hunk_count raw 4-byte big-endian entries rather than a Huffman-coded
// table. Entry i's on-disk offset is read_u32_be(map[4i..]) * hunk_bytes; the
// offset-0 cases (no data / parent splice) are resolved at read time in
// decompressHunk, since that is where parent availability is known.
func (hm *HunkMap) parseMapV5Uncompressed() error {
	numHunks := hm.header.NumHunks()
	mapData := make([]byte, int(numHunks)*4)
	//nolint:gosec // Safe: MapOffset validated during header parsing
	if _, err := hm.reader.ReadAt(mapData, int64(hm.header.MapOffset)); err != nil {
		return fmt.Errorf("read uncompressed map: %w", err)
	}

	for i := range numHunks {
		word := binary.BigEndian.Uint32(mapData[i*4 : i*4+4])
		hm.entries[i] = HunkMapEntry{
			CompType: hunkCompTypeV5Raw,
			Offset:   uint64(word) * uint64(hm.header.HunkBytes),
		}
	}
	return nil
}

// parseMapV5Compressed parses a V5 Huffman-RLE compressed hunk map.
// V5 map header (16 bytes):
//
//	Offset 0: Compressed map length (4 bytes)
//	Offset 4: First block offset (6 bytes, 48-bit)
//	Offset 10: CRC16 (2 bytes)
//	Offset 12: Bits for length (1 byte)
//	Offset 13: Bits for self-ref (1 byte)
//	Offset 14: Bits for parent-ref (1 byte)
//	Offset 15: Reserved (1 byte)
//
//nolint:gosec,gocyclo,cyclop,funlen,revive // Safe: MapOffset validated; complexity needed for CHD format
func (hm *HunkMap) parseMapV5Compressed() error {
	// Read map header
	mapHeader := make([]byte, 16)
	if _, err := hm.reader.ReadAt(mapHeader, int64(hm.header.MapOffset)); err != nil {
		return fmt.Errorf("read map header: %w", err)
	}

	compMapLen := binary.BigEndian.Uint32(mapHeader[0:4])
	if compMapLen > MaxCompMapLen {
		return fmt.Errorf("%w: compressed map too large (%d > %d)", ErrInvalidHeader, compMapLen, MaxCompMapLen)
	}
	firstOffs := uint64(mapHeader[4])<<40 | uint64(mapHeader[5])<<32 |
		uint64(mapHeader[6])<<24 | uint64(mapHeader[7])<<16 |
		uint64(mapHeader[8])<<8 | uint64(mapHeader[9])
	mapCRC := binary.BigEndian.Uint16(mapHeader[10:12])
	lengthBits := int(mapHeader[12])
	selfBits := int(mapHeader[13])
	parentBits := int(mapHeader[14])

	// Read compressed map data
	compMap := make([]byte, compMapLen)
	if _, err := hm.reader.ReadAt(compMap, int64(hm.header.MapOffset)+16); err != nil {
		return fmt.Errorf("read compressed map: %w", err)
	}

	// Create bit reader and Huffman decoder
	br := newBitReader(compMap)
	decoder := newHuffmanDecoder(16, 8) // 16 codes, 8-bit max

	if err := decoder.importTreeRLE(br); err != nil {
		return fmt.Errorf("import huffman tree: %w", err)
	}

	// Phase 1: Decode compression types with RLE
	numHunks := hm.header.NumHunks()
	compTypes := make([]uint8, numHunks)
	var lastComp uint8
	var repCount int

	for hunkNum := range numHunks {
		if repCount > 0 {
			compTypes[hunkNum] = lastComp
			repCount--
			continue
		}

		val := decoder.decode(br)
		switch val {
		case HunkCompTypeRLESmall:
			compTypes[hunkNum] = lastComp
			repCount = 2 + int(decoder.decode(br))
		case HunkCompTypeRLELarge:
			compTypes[hunkNum] = lastComp
			repCount = 2 + 16 + (int(decoder.decode(br)) << 4)
			repCount += int(decoder.decode(br))
		default:
			compTypes[hunkNum] = val
			lastComp = val
		}
	}

	// Phase 2: Read offsets/lengths based on compression type, rebuilding the
	// 12-byte-per-entry raw table (type, 24-bit length, 48-bit offset, 16-bit
	// crc) the map_crc in the preamble was computed over.
	curOffset := firstOffs
	var lastSelf uint32
	var lastParent uint64
	rawTable := make([]byte, int(numHunks)*12)

	for hunkNum := range numHunks {
		compType := compTypes[hunkNum]
		var length uint32
		var offset uint64
		var crc16 uint16

		switch compType {
		case HunkCompTypeCodec0, HunkCompTypeCodec1, HunkCompTypeCodec2, HunkCompTypeCodec3:
			length = br.read(lengthBits)
			offset = curOffset
			curOffset += uint64(length)
			crc16 = uint16(br.read(16))
		case HunkCompTypeNone:
			length = hm.header.HunkBytes
			offset = curOffset
			curOffset += uint64(length)
			crc16 = uint16(br.read(16))
		case HunkCompTypeSelf:
			lastSelf = br.read(selfBits)
			offset = uint64(lastSelf)
		case HunkCompTypeParent:
			lastParent = uint64(br.read(parentBits))
			offset = lastParent
		case HunkCompTypeSelf0:
			offset = uint64(lastSelf)
			compType = HunkCompTypeSelf
		case HunkCompTypeSelf1:
			lastSelf++
			offset = uint64(lastSelf)
			compType = HunkCompTypeSelf
		case HunkCompTypeParSelf:
			offset = uint64(hunkNum) * uint64(hm.header.HunkBytes) / uint64(hm.header.UnitBytes)
			lastParent = offset
			compType = HunkCompTypeParent
		case HunkCompTypePar0:
			offset = lastParent
			compType = HunkCompTypeParent
		case HunkCompTypePar1:
			lastParent += uint64(hm.header.HunkBytes) / uint64(hm.header.UnitBytes)
			offset = lastParent
			compType = HunkCompTypeParent
		}

		hm.entries[hunkNum] = HunkMapEntry{
			CompType:   compType,
			CompLength: length,
			Offset:     offset,
			CRC16:      crc16,
			HasCRC:     compType == HunkCompTypeCodec0 || compType == HunkCompTypeCodec1 ||
				compType == HunkCompTypeCodec2 || compType == HunkCompTypeCodec3 || compType == HunkCompTypeNone,
		}

		rawEntry := rawTable[hunkNum*12 : hunkNum*12+12]
		rawEntry[0] = compType
		rawEntry[1] = byte(length >> 16)
		rawEntry[2] = byte(length >> 8)
		rawEntry[3] = byte(length)
		rawEntry[4] = byte(offset >> 40)
		rawEntry[5] = byte(offset >> 32)
		rawEntry[6] = byte(offset >> 24)
		rawEntry[7] = byte(offset >> 16)
		rawEntry[8] = byte(offset >> 8)
		rawEntry[9] = byte(offset)
		rawEntry[10] = byte(crc16 >> 8)
		rawEntry[11] = byte(crc16)
	}

	if VerifyChecksums {
		if got := crc16(rawTable); got != mapCRC {
			return newErr(KindDecompressionError, "parse hunk map",
				fmt.Errorf("%w: map CRC16 mismatch (got %04x, want %04x)", ErrCorruptData, got, mapCRC))
		}
	}

	return nil
}

// parseMapLegacy parses a V1-V4 hunk map. V1/V2 and V3/V4 share the same
// 16-byte entry layout:
//
//	Offset 0: Offset (8 bytes) - literal 8-byte pattern for the Mini type
//	Offset 8: CRC32 (4 bytes)
//	Offset 12: Length low 16 bits (2 bytes)
//	Offset 14: Length high 8 bits (1 byte)
//	Offset 15: Flags (1 byte) - low nibble is the entry type, 0x10 means no CRC
func (hm *HunkMap) parseMapLegacy() error {
	numHunks := hm.header.NumHunks()
	const entrySize = 16
	mapData := make([]byte, int(numHunks)*entrySize)

	//nolint:gosec // Safe: MapOffset validated during header parsing, int64 conversion safe for valid CHD files
	if _, err := hm.reader.ReadAt(mapData, int64(hm.header.MapOffset)); err != nil {
		return fmt.Errorf("read legacy map: %w", err)
	}

	for i := range numHunks {
		off := int(i) * entrySize

		entryOffset := binary.BigEndian.Uint64(mapData[off : off+8])
		crc32Val := binary.BigEndian.Uint32(mapData[off+8 : off+12])
		lengthLo := binary.BigEndian.Uint16(mapData[off+12 : off+14])
		lengthHi := mapData[off+14]
		flags := mapData[off+15]

		length := uint32(lengthHi)<<16 | uint32(lengthLo)
		entryType := flags & 0x0f

		hm.entries[i] = HunkMapEntry{
			CompType:   entryType,
			CompLength: length,
			Offset:     entryOffset,
			CRC32:      crc32Val,
			HasCRC:     flags&legacyFlagNoCRC == 0,
		}
	}

	return nil
}

// ReadHunk reads and decompresses a hunk by index.
func (hm *HunkMap) ReadHunk(index uint32) ([]byte, error) {
	//nolint:gosec // Safe: len(entries) bounded by NumHunks which fits in uint32
	if index >= uint32(len(hm.entries)) {
		return nil, newErr(KindHunkOutOfRange, "read hunk", fmt.Errorf("%w: %d >= %d", ErrHunkOutOfRange, index, len(hm.entries)))
	}

	if data, ok := hm.cache.Get(index); ok {
		return data, nil
	}

	if err := hm.enterReading(index); err != nil {
		return nil, err
	}
	defer hm.exitReading(index)

	entry := hm.entries[index]
	data, err := hm.decompressHunk(index, entry)
	if err != nil {
		return nil, fmt.Errorf("decompress hunk %d: %w", index, err)
	}

	hm.cache.Add(index, data)

	return data, nil
}

// enterReading marks index as currently being resolved, returning an error
// if it is already on the call stack (a Self-reference cycle).
func (hm *HunkMap) enterReading(index uint32) error {
	hm.readingMu.Lock()
	defer hm.readingMu.Unlock()
	if hm.reading[index] {
		return newErr(KindInvalidData, "read hunk", fmt.Errorf("%w: cyclic self-reference at hunk %d", ErrInvalidHunk, index))
	}
	hm.reading[index] = true
	return nil
}

func (hm *HunkMap) exitReading(index uint32) {
	hm.readingMu.Lock()
	delete(hm.reading, index)
	hm.readingMu.Unlock()
}

// decompressHunk decompresses a single hunk. index is the hunk's own index,
// needed only to resolve a V5 uncompressed-map entry whose stored offset is 0
// and which has a parent (the splice target is the same hunk index in the
// parent, not a value recorded anywhere in the map).
func (hm *HunkMap) decompressHunk(index uint32, entry HunkMapEntry) ([]byte, error) {
	hunkSize := int(hm.header.HunkBytes)
	dst := make([]byte, hunkSize)

	if hm.header.Version == 5 {
		switch entry.CompType {
		case hunkCompTypeV5Raw:
			return hm.readV5RawHunk(dst, index, entry)
		case HunkCompTypeNone:
			return hm.readUncompressedHunk(dst, entry)
		case HunkCompTypeCodec0, HunkCompTypeCodec1, HunkCompTypeCodec2, HunkCompTypeCodec3:
			return hm.decompressWithCodec(dst, entry, hunkSize)
		case HunkCompTypeSelf:
			return hm.readSelfRefHunk(entry)
		case HunkCompTypeParent:
			return hm.readParentUnits(entry)
		default:
			return nil, newErr(KindUnsupportedFormat, "decompress hunk", fmt.Errorf("%w: compression type %d", ErrUnsupportedCodec, entry.CompType))
		}
	}

	switch entry.CompType {
	case legacyMapUncompressed:
		return hm.readUncompressedHunk(dst, entry)
	case legacyMapCompressed:
		return hm.decompressWithLegacyCodec(dst, entry)
	case legacyMapMini:
		return hm.readMiniHunk(dst, entry), nil
	case legacyMapSelfHunk:
		return hm.readSelfRefHunk(entry)
	case legacyMapParentHunk:
		return hm.readParentHunk(entry)
	default:
		return nil, newErr(KindUnsupportedFormat, "decompress hunk", fmt.Errorf("%w: legacy entry type %d", ErrUnsupportedCodec, entry.CompType))
	}
}

// readUncompressedHunk reads an uncompressed hunk directly.
func (hm *HunkMap) readUncompressedHunk(dst []byte, entry HunkMapEntry) ([]byte, error) {
	//nolint:gosec // Safe: entry.Offset from validated hunk map
	if _, err := hm.reader.ReadAt(dst, int64(entry.Offset)); err != nil {
		return nil, fmt.Errorf("read uncompressed: %w", err)
	}
	if VerifyChecksums && entry.HasCRC && hm.header.Version != 5 {
		if crc32ISOHDLC(dst) != entry.CRC32 {
			return nil, newErr(KindDecompressionError, "read uncompressed", fmt.Errorf("%w: CRC32 mismatch", ErrCorruptData))
		}
	}
	return dst, nil
}

// readV5RawHunk resolves a V5 uncompressed-map entry (spec.md §4.3's
// "V5 dispatch on uncompressed entries"): a stored offset of 0 means "no data"
// when there is no parent (output stays zeroed) or "splice from the parent at
// this same hunk index" when there is one; any other offset is a direct read
// of hunk_bytes from the file.
func (hm *HunkMap) readV5RawHunk(dst []byte, index uint32, entry HunkMapEntry) ([]byte, error) {
	if entry.Offset == 0 {
		if hm.parent == nil {
			return dst, nil
		}
		return hm.parent.ReadHunk(index)
	}
	//nolint:gosec // Safe: entry.Offset from validated hunk map
	if _, err := hm.reader.ReadAt(dst, int64(entry.Offset)); err != nil {
		return nil, fmt.Errorf("read uncompressed: %w", err)
	}
	return dst, nil
}

// readMiniHunk expands a legacy "mini" hunk: the 8-byte offset field is the
// literal pattern repeated to fill the hunk.
func (hm *HunkMap) readMiniHunk(dst []byte, entry HunkMapEntry) []byte {
	var pattern [8]byte
	binary.BigEndian.PutUint64(pattern[:], entry.Offset)
	for i := range dst {
		dst[i] = pattern[i%8]
	}
	return dst
}

// decompressWithCodec decompresses a V5 hunk using one of the four
// registered compressor slots.
func (hm *HunkMap) decompressWithCodec(dst []byte, entry HunkMapEntry, hunkSize int) ([]byte, error) {
	codecIdx := int(entry.CompType)
	if codecIdx >= len(hm.codecs) || hm.codecs[codecIdx] == nil {
		return nil, newErr(KindCodecError, "decompress hunk", fmt.Errorf("%w: codec %d not available", ErrUnsupportedCodec, codecIdx))
	}

	compData := make([]byte, entry.CompLength)
	//nolint:gosec // Safe: entry.Offset from validated hunk map
	if _, err := hm.reader.ReadAt(compData, int64(entry.Offset)); err != nil {
		return nil, fmt.Errorf("read compressed: %w", err)
	}

	if VerifyChecksums && entry.HasCRC {
		if crc16(compData) != entry.CRC16 {
			return nil, newErr(KindDecompressionError, "decompress hunk", fmt.Errorf("%w: CRC16 mismatch", ErrCorruptData))
		}
	}

	codec := hm.codecs[codecIdx]

	if cdCodec, ok := codec.(CDCodec); ok {
		unitBytes := int(hm.header.UnitBytes)
		if unitBytes == 0 {
			unitBytes = cdFrameSizeFallback
		}
		frames := hunkSize / unitBytes

		decompN, err := cdCodec.DecompressCD(dst, compData, hunkSize, frames)
		if err != nil {
			return nil, fmt.Errorf("decompress CD: %w", err)
		}
		return dst[:decompN], nil
	}

	decompN, err := codec.Decompress(dst, compData)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return dst[:decompN], nil
}

// decompressWithLegacyCodec decompresses a V1-V4 hunk using the single
// whole-file compression codec declared in the header.
func (hm *HunkMap) decompressWithLegacyCodec(dst []byte, entry HunkMapEntry) ([]byte, error) {
	compData := make([]byte, entry.CompLength)
	//nolint:gosec // Safe: entry.Offset from validated hunk map
	if _, err := hm.reader.ReadAt(compData, int64(entry.Offset)); err != nil {
		return nil, fmt.Errorf("read compressed: %w", err)
	}

	if VerifyChecksums && entry.HasCRC {
		if crc32ISOHDLC(compData) != entry.CRC32 {
			return nil, newErr(KindDecompressionError, "decompress hunk", fmt.Errorf("%w: CRC32 mismatch", ErrCorruptData))
		}
	}

	var tag uint32
	switch hm.header.Compression {
	case legacyCompressionZlib:
		tag = CodecZlib
	case legacyCompressionZlib2:
		return nil, newErr(KindUnsupportedFormat, "decompress hunk", fmt.Errorf("%w: Zlib+ legacy compression", ErrUnsupportedFormat))
	case legacyCompressionAV:
		tag = CodecAVHuff
	default:
		return nil, newErr(KindUnsupportedFormat, "decompress hunk", fmt.Errorf("%w: legacy compression code %d", ErrUnsupportedCodec, hm.header.Compression))
	}

	codec, err := GetCodec(tag)
	if err != nil {
		return nil, err
	}

	decompN, err := codec.Decompress(dst, compData)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return dst[:decompN], nil
}

// readSelfRefHunk reads a hunk that references another hunk in this archive.
func (hm *HunkMap) readSelfRefHunk(entry HunkMapEntry) ([]byte, error) {
	//nolint:gosec // Safe: entry.Offset used as hunk index, validated below
	refHunk := uint32(entry.Offset)
	//nolint:gosec // Safe: len(entries) bounded by NumHunks
	if refHunk >= uint32(len(hm.entries)) {
		return nil, newErr(KindHunkOutOfRange, "read hunk", fmt.Errorf("%w: self-ref %d", ErrInvalidHunk, refHunk))
	}
	return hm.ReadHunk(refHunk)
}

// readParentHunk reads a legacy (V1-V4) parent-referenced hunk: offset is a
// parent hunk index directly, copied verbatim (hunk sizes are required to
// match between parent and child for legacy delta CHDs).
func (hm *HunkMap) readParentHunk(entry HunkMapEntry) ([]byte, error) {
	if hm.parent == nil {
		return nil, newErr(KindRequiresParent, "read hunk", ErrRequiresParent)
	}
	//nolint:gosec // Safe: entry.Offset used as hunk index
	return hm.parent.ReadHunk(uint32(entry.Offset))
}

// readParentUnits reads a V5 parent-referenced hunk: offset is a unit index
// into the parent's logical byte stream, and hunk_bytes/unit_bytes
// consecutive units are spliced together to fill the current hunk.
func (hm *HunkMap) readParentUnits(entry HunkMapEntry) ([]byte, error) {
	if hm.parent == nil {
		return nil, newErr(KindRequiresParent, "read hunk", ErrRequiresParent)
	}
	byteOffset := entry.Offset * uint64(hm.header.UnitBytes)
	return hm.parent.ReadLogical(byteOffset, int(hm.header.HunkBytes))
}

// ReadLogical reads length decompressed bytes starting at byteOffset in this
// CHD's logical (uncompressed) byte stream, spanning hunk boundaries as
// needed. Used to splice parent data into a child delta CHD's hunks.
func (hm *HunkMap) ReadLogical(byteOffset uint64, length int) ([]byte, error) {
	out := make([]byte, length)
	read := 0
	hunkBytes := uint64(hm.header.HunkBytes)
	if hunkBytes == 0 {
		return nil, newErr(KindInvalidData, "read logical", fmt.Errorf("zero hunk_bytes"))
	}

	for read < length {
		hunkIdx := byteOffset / hunkBytes
		inHunk := byteOffset % hunkBytes
		//nolint:gosec // Safe: hunkIdx bounded by NumHunks for valid offsets
		data, err := hm.ReadHunk(uint32(hunkIdx))
		if err != nil {
			return nil, err
		}
		n := copy(out[read:], data[inHunk:])
		if n == 0 {
			break
		}
		read += n
		byteOffset += uint64(n)
	}

	return out, nil
}

// ReadRaw returns the raw (still-compressed, for codec'd entries) bytes
// backing a hunk along with its map entry, for tooling that wants to inspect
// compression ratios without paying the decompression cost (spec.md's
// extractraw / benchmark operations).
func (hm *HunkMap) ReadRaw(index uint32) (HunkMapEntry, []byte, error) {
	//nolint:gosec // Safe: len(entries) bounded by NumHunks which fits in uint32
	if index >= uint32(len(hm.entries)) {
		return HunkMapEntry{}, nil, newErr(KindHunkOutOfRange, "read raw hunk", ErrHunkOutOfRange)
	}
	entry := hm.entries[index]

	switch entry.CompType {
	case legacyMapSelfHunk, legacyMapParentHunk, HunkCompTypeSelf, HunkCompTypeParent:
		return entry, nil, nil
	case legacyMapMini:
		var pattern [8]byte
		binary.BigEndian.PutUint64(pattern[:], entry.Offset)
		return entry, pattern[:], nil
	case hunkCompTypeV5Raw:
		if entry.Offset == 0 {
			return entry, nil, nil
		}
		raw := make([]byte, hm.header.HunkBytes)
		//nolint:gosec // Safe: entry.Offset from validated hunk map
		if _, err := hm.reader.ReadAt(raw, int64(entry.Offset)); err != nil {
			return entry, nil, fmt.Errorf("read raw: %w", err)
		}
		return entry, raw, nil
	}

	raw := make([]byte, entry.CompLength)
	//nolint:gosec // Safe: entry.Offset from validated hunk map
	if _, err := hm.reader.ReadAt(raw, int64(entry.Offset)); err != nil {
		return entry, nil, fmt.Errorf("read raw: %w", err)
	}
	return entry, raw, nil
}

// NumHunks returns the total number of hunks.
func (hm *HunkMap) NumHunks() uint32 {
	//nolint:gosec // Safe: len(entries) bounded by NumHunks which fits in uint32
	return uint32(len(hm.entries))
}

// HunkBytes returns the size of each hunk in bytes.
func (hm *HunkMap) HunkBytes() uint32 {
	return hm.header.HunkBytes
}

// Entry returns the raw map entry for a hunk index, for verify/dumpmeta tooling.
func (hm *HunkMap) Entry(index uint32) (HunkMapEntry, error) {
	//nolint:gosec // Safe: len(entries) bounded by NumHunks which fits in uint32
	if index >= uint32(len(hm.entries)) {
		return HunkMapEntry{}, newErr(KindHunkOutOfRange, "hunk entry", ErrHunkOutOfRange)
	}
	return hm.entries[index], nil
}
