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
	"bytes"
	"compress/flate"
	"encoding/binary"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

// TestOpenNonExistent verifies error handling for missing files.
func TestOpenNonExistent(t *testing.T) {
	t.Parallel()

	_, err := Open("/nonexistent/path/to/file.chd")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
	if !os.IsNotExist(errors.Unwrap(err)) && !strings.Contains(err.Error(), "no such file") {
		t.Logf("Got error (acceptable): %v", err)
	}
}

// TestOpenInvalidMagic verifies error handling for non-CHD files.
func TestOpenInvalidMagic(t *testing.T) {
	t.Parallel()

	// Try opening a non-CHD file (use the test file itself as it's not a CHD)
	_, err := Open("chd_test.go")
	if err == nil {
		t.Fatal("expected error for invalid magic")
	}
	if !errors.Is(err, ErrInvalidMagic) && !strings.Contains(err.Error(), "invalid CHD magic") {
		t.Errorf("expected ErrInvalidMagic, got: %v", err)
	}
}

// TestTrackIsDataTrack verifies track type detection.
func TestTrackIsDataTrack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		trackType string
		want      bool
	}{
		{"MODE1", true},
		{"MODE1_RAW", true},
		{"MODE2_RAW", true},
		{"AUDIO", false},
		{"audio", false},
		{"Audio", false},
	}

	for _, tt := range tests {
		track := Track{Type: tt.trackType}
		if got := track.IsDataTrack(); got != tt.want {
			t.Errorf("Track{Type: %q}.IsDataTrack() = %v, want %v", tt.trackType, got, tt.want)
		}
	}
}

// TestTrackSectorSize verifies sector size calculation.
func TestTrackSectorSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		track    Track
		wantSize int
	}{
		{"default", Track{}, 2352},
		{"mode1_raw", Track{DataSize: 2352}, 2352},
		{"mode1_raw_sub", Track{DataSize: 2352, SubSize: 96}, 2448},
		{"mode1_2048", Track{DataSize: 2048}, 2048},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.track.SectorSize(); got != tt.wantSize {
				t.Errorf("SectorSize() = %d, want %d", got, tt.wantSize)
			}
		})
	}
}

// TestCodecTagToString verifies codec tag formatting.
func TestCodecTagToString(t *testing.T) {
	t.Parallel()

	//nolint:govet // fieldalignment not important in test structs
	tests := []struct {
		tag  uint32
		want string
	}{
		{CodecZlib, "zlib"},
		{CodecLZMA, "lzma"},
		{CodecFLAC, "flac"},
		{CodecZstd, "zstd"},
		{CodecCDZlib, "cdzl"},
		{CodecCDLZMA, "cdlz"},
		{CodecCDFLAC, "cdfl"},
		{CodecCDZstd, "cdzs"},
		{0, "none"},
	}

	for _, tt := range tests {
		if got := codecTagToString(tt.tag); got != tt.want {
			t.Errorf("codecTagToString(0x%x) = %q, want %q", tt.tag, got, tt.want)
		}
	}
}

// TestIsCDCodec verifies CD codec detection.
func TestIsCDCodec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tag  uint32
		want bool
	}{
		{CodecCDZlib, true},
		{CodecCDLZMA, true},
		{CodecCDFLAC, true},
		{CodecCDZstd, true},
		{CodecZlib, false},
		{CodecLZMA, false},
		{CodecFLAC, false},
		{CodecZstd, false},
		{0, false},
	}

	for _, tt := range tests {
		if got := IsCDCodec(tt.tag); got != tt.want {
			t.Errorf("IsCDCodec(0x%x) = %v, want %v", tt.tag, got, tt.want)
		}
	}
}

//nolint:gocognit,revive // Table-driven test with multiple assertions
func TestParseCHT2(t *testing.T) {
	t.Parallel()

	//nolint:govet // fieldalignment not important in test structs
	tests := []struct {
		name    string
		data    string
		wantErr bool
		wantNum int
		wantTyp string
		wantFrm int
	}{
		{
			name:    "standard",
			data:    "TRACK:1 TYPE:MODE1_RAW SUBTYPE:RW FRAMES:1000 PREGAP:150 POSTGAP:0",
			wantNum: 1,
			wantTyp: "MODE1_RAW",
			wantFrm: 1000,
		},
		{
			name:    "audio",
			data:    "TRACK:2 TYPE:AUDIO SUBTYPE:NONE FRAMES:5000",
			wantNum: 2,
			wantTyp: "AUDIO",
			wantFrm: 5000,
		},
		{
			name:    "invalid_track_number",
			data:    "TRACK:abc TYPE:MODE1",
			wantErr: true,
		},
		{
			name:    "invalid_frames",
			data:    "TRACK:1 FRAMES:notanumber",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseCHT2([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Number != tt.wantNum {
				t.Errorf("Number = %d, want %d", got.Number, tt.wantNum)
			}
			if got.Type != tt.wantTyp {
				t.Errorf("Type = %q, want %q", got.Type, tt.wantTyp)
			}
			if got.Frames != tt.wantFrm {
				t.Errorf("Frames = %d, want %d", got.Frames, tt.wantFrm)
			}
		})
	}
}

// TestTrackTypeToDataSize verifies track type to data size mapping.
func TestTrackTypeToDataSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		trackType string
		want      int
	}{
		{"MODE1/2048", 2048},
		{"MODE1/2352", 2352},
		{"MODE1_RAW", 2352},
		{"MODE2/2352", 2352},
		{"MODE2_RAW", 2352},
		{"AUDIO", 2352},
		{"unknown", 2352}, // Default
	}

	for _, tt := range tests {
		if got := trackTypeToDataSize(tt.trackType); got != tt.want {
			t.Errorf("trackTypeToDataSize(%q) = %d, want %d", tt.trackType, got, tt.want)
		}
	}
}

// TestSubTypeToSize verifies subtype to size mapping.
func TestSubTypeToSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		subType string
		want    int
	}{
		{"NONE", 0},
		{"RW", 96},
		{"RW_RAW", 96},
		{"unknown", 0}, // Default
	}

	for _, tt := range tests {
		if got := subTypeToSize(tt.subType); got != tt.want {
			t.Errorf("subTypeToSize(%q) = %d, want %d", tt.subType, got, tt.want)
		}
	}
}

// TestCDTypeToString verifies binary CD type conversion.
func TestCDTypeToString(t *testing.T) {
	t.Parallel()

	//nolint:govet // fieldalignment not important in test structs
	tests := []struct {
		cdType uint32
		want   string
	}{
		{0, "MODE1/2048"},
		{1, "MODE1/2352"},
		{2, "MODE2/2048"},
		{3, "MODE2/2336"},
		{4, "MODE2/2352"},
		{5, "AUDIO"},
		{99, "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := cdTypeToString(tt.cdType); got != tt.want {
			t.Errorf("cdTypeToString(%d) = %q, want %q", tt.cdType, got, tt.want)
		}
	}
}

// TestCDSubTypeToString verifies binary CD subtype conversion.
func TestCDSubTypeToString(t *testing.T) {
	t.Parallel()

	//nolint:govet // fieldalignment not important in test structs
	tests := []struct {
		subType uint32
		want    string
	}{
		{0, "RW"},
		{1, "RW_RAW"},
		{2, "NONE"},
		{99, "NONE"}, // Default
	}

	for _, tt := range tests {
		if got := cdSubTypeToString(tt.subType); got != tt.want {
			t.Errorf("cdSubTypeToString(%d) = %q, want %q", tt.subType, got, tt.want)
		}
	}
}

// TestGetCodecUnknown verifies error for unknown codec.
func TestGetCodecUnknown(t *testing.T) {
	t.Parallel()

	_, err := GetCodec(0x12345678)
	if err == nil {
		t.Error("expected error for unknown codec")
	}
	if !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("expected ErrUnsupportedCodec, got: %v", err)
	}
}

// TestZlibCodecDecompress verifies zlib codec decompression.
func TestZlibCodecDecompress(t *testing.T) {
	t.Parallel()

	codec := &zlibCodec{}

	// Create test data: compress "hello world" with deflate
	original := []byte("hello world hello world hello world hello world")
	var compressed bytes.Buffer
	writer, _ := flate.NewWriter(&compressed, flate.DefaultCompression)
	_, _ = writer.Write(original)
	_ = writer.Close()

	dst := make([]byte, len(original))
	decompLen, err := codec.Decompress(dst, compressed.Bytes())
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if decompLen != len(original) {
		t.Errorf("Decompress returned %d bytes, want %d", decompLen, len(original))
	}
	if !bytes.Equal(dst[:decompLen], original) {
		t.Error("Decompressed data mismatch")
	}
}

// TestZlibCodecDecompressInvalid verifies error handling for invalid data.
func TestZlibCodecDecompressInvalid(t *testing.T) {
	t.Parallel()

	codec := &zlibCodec{}
	dst := make([]byte, 100)
	_, err := codec.Decompress(dst, []byte{0x00, 0x01, 0x02, 0x03})
	// Invalid data should error
	if err == nil {
		t.Log("Note: deflate accepted invalid data (may have partial decode)")
	}
}

// TestCDZlibCodecSourceTooSmall verifies error for truncated source.
func TestCDZlibCodecSourceTooSmall(t *testing.T) {
	t.Parallel()

	codec := &cdZlibCodec{}
	dst := make([]byte, 2448)
	_, err := codec.DecompressCD(dst, []byte{0x00}, 2448, 1)
	if err == nil {
		t.Error("expected error for truncated source")
	}
	if !strings.Contains(err.Error(), "source too small") {
		t.Errorf("expected 'source too small' error, got: %v", err)
	}
}

// TestCDZlibCodecInvalidBaseLength verifies error for invalid base length.
func TestCDZlibCodecInvalidBaseLength(t *testing.T) {
	t.Parallel()

	codec := &cdZlibCodec{}
	dst := make([]byte, 2448)
	// Header: 1 byte ECC bitmap + 2 bytes length (0xFFFF = 65535, way too big)
	src := []byte{0x00, 0xFF, 0xFF}
	_, err := codec.DecompressCD(dst, src, 2448, 1)
	if err == nil {
		t.Error("expected error for invalid base length")
	}
	if !strings.Contains(err.Error(), "invalid base length") {
		t.Errorf("expected 'invalid base length' error, got: %v", err)
	}
}

// TestLZMADictSizeComputation verifies LZMA dictionary size calculation.
func TestLZMADictSizeComputation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hunkBytes uint32
		minDict   uint32
	}{
		{4096, 4096},       // Small hunk
		{8192, 8192},       // 8KB
		{19584, 24576},     // Typical CD hunk (19584 -> next 2<<i or 3<<i size, 3<<13)
		{1 << 20, 1 << 20}, // 1MB
	}

	for _, tt := range tests {
		got := computeLZMADictSize(tt.hunkBytes)
		if got < tt.hunkBytes {
			t.Errorf("computeLZMADictSize(%d) = %d, should be >= %d", tt.hunkBytes, got, tt.hunkBytes)
		}
	}
}

// TestLZMACodecEmptySource verifies error for empty source.
func TestLZMACodecEmptySource(t *testing.T) {
	t.Parallel()

	codec := &lzmaCodec{}
	dst := make([]byte, 100)
	_, err := codec.Decompress(dst, []byte{})
	if err == nil {
		t.Error("expected error for empty source")
	}
	if !strings.Contains(err.Error(), "empty source") {
		t.Errorf("expected 'empty source' error, got: %v", err)
	}
}

// TestCDLZMACodecSourceTooSmall verifies error for truncated source.
func TestCDLZMACodecSourceTooSmall(t *testing.T) {
	t.Parallel()

	codec := &cdLZMACodec{}
	dst := make([]byte, 2448)
	_, err := codec.DecompressCD(dst, []byte{0x00}, 2448, 1)
	if err == nil {
		t.Error("expected error for truncated source")
	}
	if !strings.Contains(err.Error(), "source too small") {
		t.Errorf("expected 'source too small' error, got: %v", err)
	}
}

// TestHeaderV4Parsing verifies V4 header parsing.
func TestHeaderV4Parsing(t *testing.T) {
	t.Parallel()

	// Construct a full V4 header buffer (108 bytes); parseHeaderV4 reads each
	// field at its absolute offset in the file.
	buf := make([]byte, headerSizeV4)

	// Flags at offset 0x10
	binary.BigEndian.PutUint32(buf[0x10:0x14], 0x00000001)
	// Compression at offset 0x14
	binary.BigEndian.PutUint32(buf[0x14:0x18], 0x00000005)
	// Total hunks at offset 0x18
	binary.BigEndian.PutUint32(buf[0x18:0x1C], 1000)
	// Logical bytes at offset 0x1C
	binary.BigEndian.PutUint64(buf[0x1C:0x24], 1000000)
	// Meta offset at offset 0x24
	binary.BigEndian.PutUint64(buf[0x24:0x2C], 500)
	// Hunk bytes at offset 0x2C
	binary.BigEndian.PutUint32(buf[0x2C:0x30], 4096)

	header := &Header{Version: 4}
	err := parseHeaderV4(header, buf)
	if err != nil {
		t.Fatalf("parseHeaderV4 failed: %v", err)
	}

	if header.Flags != 1 {
		t.Errorf("Flags = %d, want 1", header.Flags)
	}
	if header.Compression != 5 {
		t.Errorf("Compression = %d, want 5", header.Compression)
	}
	if header.TotalHunks != 1000 {
		t.Errorf("TotalHunks = %d, want 1000", header.TotalHunks)
	}
	if header.LogicalBytes != 1000000 {
		t.Errorf("LogicalBytes = %d, want 1000000", header.LogicalBytes)
	}
	if header.HunkBytes != 4096 {
		t.Errorf("HunkBytes = %d, want 4096", header.HunkBytes)
	}
	// V4 has no unit_bytes field; parseHeader fills it in via guessUnitBytes
	if header.UnitBytes != 0 {
		t.Errorf("UnitBytes = %d, want 0", header.UnitBytes)
	}
}

// TestHeaderV4TooSmall verifies error for truncated V4 buffer.
func TestHeaderV4TooSmall(t *testing.T) {
	t.Parallel()

	header := &Header{Version: 4}
	err := parseHeaderV4(header, make([]byte, 10))
	if err == nil {
		t.Error("expected error for truncated buffer")
	}
	if !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("expected ErrInvalidHeader, got: %v", err)
	}
}

// TestHeaderV3Parsing verifies V3 header parsing.
func TestHeaderV3Parsing(t *testing.T) {
	t.Parallel()

	// V3 header is 120 bytes; parseHeaderV3 reads each field at its absolute
	// offset in the file.
	buf := make([]byte, headerSizeV3)

	// Flags at offset 0x10
	binary.BigEndian.PutUint32(buf[0x10:0x14], 0x00000002)
	// Compression at offset 0x14
	binary.BigEndian.PutUint32(buf[0x14:0x18], 0x00000003)
	// Total hunks at offset 0x18
	binary.BigEndian.PutUint32(buf[0x18:0x1C], 500)
	// Logical bytes at offset 0x1C
	binary.BigEndian.PutUint64(buf[0x1C:0x24], 500000)
	// Meta offset at offset 0x24
	binary.BigEndian.PutUint64(buf[0x24:0x2C], 250)
	// MD5 hashes at offset 0x2C-0x4C (skip)
	// Hunk bytes at offset 0x4C
	binary.BigEndian.PutUint32(buf[0x4C:0x50], 8192)

	header := &Header{Version: 3}
	err := parseHeaderV3(header, buf)
	if err != nil {
		t.Fatalf("parseHeaderV3 failed: %v", err)
	}

	if header.Flags != 2 {
		t.Errorf("Flags = %d, want 2", header.Flags)
	}
	if header.Compression != 3 {
		t.Errorf("Compression = %d, want 3", header.Compression)
	}
	if header.TotalHunks != 500 {
		t.Errorf("TotalHunks = %d, want 500", header.TotalHunks)
	}
	if header.HunkBytes != 8192 {
		t.Errorf("HunkBytes = %d, want 8192", header.HunkBytes)
	}
}

// TestHeaderV3TooSmall verifies error for truncated V3 buffer.
func TestHeaderV3TooSmall(t *testing.T) {
	t.Parallel()

	header := &Header{Version: 3}
	err := parseHeaderV3(header, make([]byte, 50))
	if err == nil {
		t.Error("expected error for truncated buffer")
	}
	if !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("expected ErrInvalidHeader, got: %v", err)
	}
}

// TestNumHunksCalculation verifies hunk count calculation.
func TestNumHunksCalculation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		header       Header
		expectedHunk uint32
	}{
		{
			name:         "from_total_hunks",
			header:       Header{Version: 4, TotalHunks: 100, HunkBytes: 4096, LogicalBytes: 1000000},
			expectedHunk: 100, // V1-V4 use the header's TotalHunks
		},
		{
			name:         "calculated",
			header:       Header{Version: 5, TotalHunks: 0, HunkBytes: 4096, LogicalBytes: 16384},
			expectedHunk: 4, // exact fit: 16384 bytes at 4096 per hunk
		},
		{
			name:         "calculated_with_remainder",
			header:       Header{Version: 5, TotalHunks: 0, HunkBytes: 4096, LogicalBytes: 17000},
			expectedHunk: 5, // rounds up: 17000 bytes needs 5 hunks at 4096
		},
		{
			name:         "zero_hunk_bytes",
			header:       Header{Version: 5, TotalHunks: 0, HunkBytes: 0, LogicalBytes: 16384},
			expectedHunk: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.header.NumHunks()
			if got != tt.expectedHunk {
				t.Errorf("NumHunks() = %d, want %d", got, tt.expectedHunk)
			}
		})
	}
}

// TestParseCHTR verifies CHTR (v1 track) parsing.
func TestParseCHTR(t *testing.T) {
	t.Parallel()

	// CHTR uses same format as CHT2
	data := []byte("TRACK:1 TYPE:MODE1_RAW FRAMES:500")
	track, err := parseCHTR(data)
	if err != nil {
		t.Fatalf("parseCHTR failed: %v", err)
	}
	if track.Number != 1 {
		t.Errorf("Number = %d, want 1", track.Number)
	}
	if track.Type != "MODE1_RAW" {
		t.Errorf("Type = %q, want MODE1_RAW", track.Type)
	}
	if track.Frames != 500 {
		t.Errorf("Frames = %d, want 500", track.Frames)
	}
}

// TestParseCHCD verifies CHCD (binary track metadata) parsing.
func TestParseCHCD(t *testing.T) {
	t.Parallel()

	// Build a valid CHCD buffer
	// Format: numTracks (4 bytes) + track entries (24 bytes each)
	buf := make([]byte, 4+24*2) // 2 tracks

	// Number of tracks
	binary.BigEndian.PutUint32(buf[0:4], 2)

	// Track 1: MODE1/2048, RW subchannel, 1000 frames
	offset := 4
	binary.BigEndian.PutUint32(buf[offset:offset+4], 0)   // Type (0 = MODE1/2048)
	binary.BigEndian.PutUint32(buf[offset+4:offset+8], 0) // SubType = RW
	binary.BigEndian.PutUint32(buf[offset+8:offset+12], 2048)
	binary.BigEndian.PutUint32(buf[offset+12:offset+16], 96)
	binary.BigEndian.PutUint32(buf[offset+16:offset+20], 1000)
	binary.BigEndian.PutUint32(buf[offset+20:offset+24], 0) // Pad frames

	// Track 2: AUDIO
	offset = 4 + 24
	binary.BigEndian.PutUint32(buf[offset:offset+4], 5)   // Type (5 is AUDIO)
	binary.BigEndian.PutUint32(buf[offset+4:offset+8], 2) // SubType (2 is NONE)
	binary.BigEndian.PutUint32(buf[offset+8:offset+12], 2352)
	binary.BigEndian.PutUint32(buf[offset+12:offset+16], 0)
	binary.BigEndian.PutUint32(buf[offset+16:offset+20], 2000)
	binary.BigEndian.PutUint32(buf[offset+20:offset+24], 0)

	tracks, err := parseCHCD(buf)
	if err != nil {
		t.Fatalf("parseCHCD failed: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}

	// Check track 1
	if tracks[0].Number != 1 {
		t.Errorf("Track 1 Number = %d, want 1", tracks[0].Number)
	}
	if tracks[0].Type != "MODE1/2048" {
		t.Errorf("Track 1 Type = %q, want MODE1/2048", tracks[0].Type)
	}
	if tracks[0].Frames != 1000 {
		t.Errorf("Track 1 Frames = %d, want 1000", tracks[0].Frames)
	}

	// Check track 2
	if tracks[1].Number != 2 {
		t.Errorf("Track 2 Number = %d, want 2", tracks[1].Number)
	}
	if tracks[1].Type != "AUDIO" {
		t.Errorf("Track 2 Type = %q, want AUDIO", tracks[1].Type)
	}
}

// TestParseCHCDTooSmall verifies error for truncated CHCD.
func TestParseCHCDTooSmall(t *testing.T) {
	t.Parallel()

	// Buffer too small for header
	_, err := parseCHCD([]byte{0x00, 0x00})
	if err == nil {
		t.Error("expected error for truncated buffer")
	}
	if !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("expected ErrInvalidMetadata, got: %v", err)
	}
}

// TestParseCHCDTooManyTracks verifies error for excessive track count.
func TestParseCHCDTooManyTracks(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf[0:4], 1000) // Way more than MaxNumTracks
	_, err := parseCHCD(buf)
	if err == nil {
		t.Error("expected error for too many tracks")
	}
	if !strings.Contains(err.Error(), "too many tracks") {
		t.Errorf("expected 'too many tracks' error, got: %v", err)
	}
}

// TestParseCHCDInsufficientData verifies error when data too small for tracks.
func TestParseCHCDInsufficientData(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 4+10) // Header says 1 track but not enough data
	binary.BigEndian.PutUint32(buf[0:4], 1)
	_, err := parseCHCD(buf)
	if err == nil {
		t.Error("expected error for insufficient data")
	}
	if !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("expected ErrInvalidMetadata, got: %v", err)
	}
}

// TestMetadataCircularChain verifies detection of circular metadata chains.
func TestMetadataCircularChain(t *testing.T) {
	t.Parallel()

	// Create a mock reader that returns metadata entries pointing to each other
	// Entry at offset 100 points to offset 200, which points back to 100
	data := make([]byte, 300)

	// Entry at offset 100: Tag=CHT2, Next=200
	binary.BigEndian.PutUint32(data[100:104], MetaTagCHT2)
	data[104] = 0 // flags
	data[105] = 0
	data[106] = 0
	data[107] = 10                                 // length = 10
	binary.BigEndian.PutUint64(data[108:116], 200) // next = 200

	// Entry at offset 200: Tag=CHT2, Next=100 (circular!)
	binary.BigEndian.PutUint32(data[200:204], MetaTagCHT2)
	data[204] = 0 // flags
	data[205] = 0
	data[206] = 0
	data[207] = 10                                 // length = 10
	binary.BigEndian.PutUint64(data[208:216], 100) // next = 100 (circular)

	reader := bytes.NewReader(data)
	_, err := parseMetadata(reader, 100)
	if err == nil {
		t.Error("expected error for circular chain")
	}
	if !strings.Contains(err.Error(), "circular") {
		t.Errorf("expected 'circular' error, got: %v", err)
	}
}

// TestMetadataEntryTooLarge verifies MaxMetadataLen validation.
// Note: The CHD format uses 3 bytes for length (max 0xFFFFFF = 16,777,215)
// and MaxMetadataLen is 16*1024*1024 = 16,777,216. Since the max encodable
// value is less than the limit, this check can never trigger from valid format.
func TestMetadataEntryTooLarge(t *testing.T) {
	t.Parallel()

	t.Skip("MaxMetadataLen (16MB) exceeds 24-bit max (16MB-1), so this case cannot be triggered via format")
}

// TestRegisterAndGetCodec verifies codec registration.
func TestRegisterAndGetCodec(t *testing.T) {
	t.Parallel()

	// Test that registered codecs can be retrieved
	codecs := []uint32{
		CodecZlib, CodecLZMA, CodecFLAC, CodecZstd,
		CodecCDZlib, CodecCDLZMA, CodecCDFLAC, CodecCDZstd,
	}

	for _, tag := range codecs {
		codec, err := GetCodec(tag)
		if err != nil {
			t.Errorf("GetCodec(0x%x) failed: %v", tag, err)
			continue
		}
		if codec == nil {
			t.Errorf("GetCodec(0x%x) returned nil codec", tag)
		}
	}
}

// The tests below build whole CHD images in memory rather than relying on
// binary fixture files, directly exercising the seed-suite scenarios:
// magic/version rejection, a trivial uncompressed V5 round-trip, a legacy
// Mini hunk, a V5 self-reference cycle, and an unsatisfied parent reference.

// bitWriter packs bits MSB-first, the inverse of bitReader.read, so tests can
// hand-assemble the Huffman-coded V5 hunk map byte for byte.
type bitWriter struct {
	buf  []byte
	cur  byte
	nbit int
}

func (w *bitWriter) writeBits(value uint32, count int) {
	for i := count - 1; i >= 0; i-- {
		w.cur = (w.cur << 1) | byte((value>>i)&1)
		w.nbit++
		if w.nbit == 8 {
			w.buf = append(w.buf, w.cur)
			w.cur = 0
			w.nbit = 0
		}
	}
}

func (w *bitWriter) bytes() []byte {
	if w.nbit > 0 {
		w.cur <<= 8 - w.nbit
		w.buf = append(w.buf, w.cur)
		w.cur = 0
		w.nbit = 0
	}
	return w.buf
}

// v5UniformTreeHeader returns the RLE tree-import header for a 16-code
// Huffman tree where every symbol gets the same 4-bit code length: one raw
// 4-bit value per node (the RLE-escape value of 1 is avoided), two nodes per
// byte. With every code length equal, buildLookup's canonical assignment
// hands out sequential codes 0-15 in symbol order, so phase 1/2 below can
// emit each compression-type symbol as its literal 4-bit value.
func v5UniformTreeHeader() []byte {
	return bytes.Repeat([]byte{0x44}, 8)
}

// v5HeaderFields holds the handful of V5 header fields the synthetic
// fixtures below vary; everything else (compressors, MD5, SHA1) stays zero.
//
//nolint:govet // fieldalignment not important in test structs
type v5HeaderFields struct {
	logicalBytes uint64
	mapOffset    uint64
	hunkBytes    uint32
	unitBytes    uint32
	parentSHA1   [20]byte
}

func writeV5Header(buf []byte, f v5HeaderFields) {
	copy(buf[0:8], chdMagic[:])
	binary.BigEndian.PutUint32(buf[8:12], headerSizeV5)
	binary.BigEndian.PutUint32(buf[12:16], 5)
	binary.BigEndian.PutUint64(buf[0x20:0x28], f.logicalBytes)
	binary.BigEndian.PutUint64(buf[0x28:0x30], f.mapOffset)
	binary.BigEndian.PutUint32(buf[0x38:0x3C], f.hunkBytes)
	binary.BigEndian.PutUint32(buf[0x3C:0x40], f.unitBytes)
	copy(buf[0x68:0x7C], f.parentSHA1[:])
}

// writeV5MapHeader writes the 16-byte V5 map header at the start of dst.
func writeV5MapHeader(dst []byte, compMapLen int, firstOffs uint64, mapCRC uint16, lengthBits, selfBits, parentBits uint8) {
	binary.BigEndian.PutUint32(dst[0:4], uint32(compMapLen)) //nolint:gosec // test fixture sizes are tiny
	dst[4] = byte(firstOffs >> 40)
	dst[5] = byte(firstOffs >> 32)
	dst[6] = byte(firstOffs >> 24)
	dst[7] = byte(firstOffs >> 16)
	dst[8] = byte(firstOffs >> 8)
	dst[9] = byte(firstOffs)
	binary.BigEndian.PutUint16(dst[10:12], mapCRC)
	dst[12] = lengthBits
	dst[13] = selfBits
	dst[14] = parentBits
}

// v5RawMapEntry mirrors the 12-byte-per-hunk table parseMapV5Compressed
// rebuilds from the decoded map, so tests can compute the same map_crc the
// decoder checks against.
type v5RawMapEntry struct {
	offset   uint64
	length   uint32
	crc16    uint16
	compType uint8
}

// v5MapCRC reproduces parseMapV5Compressed's rawTable/crc16 computation, so
// synthetic compressed-map fixtures can carry a map_crc that actually
// verifies.
func v5MapCRC(entries []v5RawMapEntry) uint16 {
	table := make([]byte, len(entries)*12)
	for i, e := range entries {
		row := table[i*12 : i*12+12]
		row[0] = e.compType
		row[1] = byte(e.length >> 16)
		row[2] = byte(e.length >> 8)
		row[3] = byte(e.length)
		row[4] = byte(e.offset >> 40)
		row[5] = byte(e.offset >> 32)
		row[6] = byte(e.offset >> 24)
		row[7] = byte(e.offset >> 16)
		row[8] = byte(e.offset >> 8)
		row[9] = byte(e.offset)
		binary.BigEndian.PutUint16(row[10:12], e.crc16)
	}
	return crc16(table)
}

// buildTrivialV5Image assembles a two-hunk V5 image whose first codec slot is
// 0, i.e. a true *uncompressed* map (spec.md §4.2's "V5 uncompressed" shape:
// hunk_count raw 4-byte big-endian entries, offset = word*hunk_bytes), not a
// Huffman-coded map using HunkCompTypeNone entries. Hunk 0 is 0x00..0x0F,
// hunk 1 is 0xF0..0xFF.
func buildTrivialV5Image() []byte {
	const (
		hunkBytes = 16
		mapOffset = headerSizeV5
		numHunks  = 2
	)

	hunk0 := make([]byte, hunkBytes)
	hunk1 := make([]byte, hunkBytes)
	for i := range hunk0 {
		hunk0[i] = byte(i)
		hunk1[i] = byte(0xF0 + i)
	}

	// Data must start on a hunk_bytes boundary, since the map only stores
	// offset/hunk_bytes. Round the post-map offset up to the next multiple.
	mapBytes := uint64(numHunks) * 4
	dataStart := mapOffset + mapBytes
	if rem := dataStart % hunkBytes; rem != 0 {
		dataStart += hunkBytes - rem
	}
	word0 := dataStart / hunkBytes
	word1 := word0 + 1

	buf := make([]byte, dataStart+2*hunkBytes)
	writeV5Header(buf, v5HeaderFields{
		logicalBytes: 2 * hunkBytes,
		mapOffset:    mapOffset,
		hunkBytes:    hunkBytes,
		unitBytes:    hunkBytes,
	})
	binary.BigEndian.PutUint32(buf[mapOffset:mapOffset+4], uint32(word0))
	binary.BigEndian.PutUint32(buf[mapOffset+4:mapOffset+8], uint32(word1))
	copy(buf[dataStart:], hunk0)
	copy(buf[dataStart+hunkBytes:], hunk1)

	return buf
}

// TestSeedSuiteTrivialV5Uncompressed round-trips a two-hunk V5 image built
// with an uncompressed map exactly, byte for byte.
func TestSeedSuiteTrivialV5Uncompressed(t *testing.T) {
	t.Parallel()

	c, err := OpenSource(bytes.NewReader(buildTrivialV5Image()), nil)
	if err != nil {
		t.Fatalf("OpenSource failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	want0 := make([]byte, 16)
	want1 := make([]byte, 16)
	for i := range want0 {
		want0[i] = byte(i)
		want1[i] = byte(0xF0 + i)
	}

	got0, err := c.ReadHunk(0)
	if err != nil {
		t.Fatalf("ReadHunk(0) failed: %v", err)
	}
	if !bytes.Equal(got0, want0) {
		t.Errorf("hunk 0 = %x, want %x", got0, want0)
	}

	got1, err := c.ReadHunk(1)
	if err != nil {
		t.Fatalf("ReadHunk(1) failed: %v", err)
	}
	if !bytes.Equal(got1, want1) {
		t.Errorf("hunk 1 = %x, want %x", got1, want1)
	}
}

// buildCompressedNoneV5Image assembles a two-hunk V5 image whose map uses a
// real Huffman-RLE compressed table (first codec slot nonzero) with both
// entries typed HunkCompTypeNone, exercising the compressed-map decode path
// and its map_crc verification separately from the true-uncompressed-map
// scenario above.
func buildCompressedNoneV5Image() []byte {
	const hunkBytes = 16

	hunk0 := make([]byte, hunkBytes)
	hunk1 := make([]byte, hunkBytes)
	for i := range hunk0 {
		hunk0[i] = byte(i)
		hunk1[i] = byte(0xF0 + i)
	}

	var bw bitWriter
	bw.buf = append(bw.buf, v5UniformTreeHeader()...)
	bw.writeBits(HunkCompTypeNone, 4)
	bw.writeBits(HunkCompTypeNone, 4)
	bw.writeBits(uint32(crc16(hunk0)), 16)
	bw.writeBits(uint32(crc16(hunk1)), 16)
	compMap := bw.bytes()

	const mapOffset = headerSizeV5
	firstOffs := uint64(mapOffset) + 16 + uint64(len(compMap))

	mapCRC := v5MapCRC([]v5RawMapEntry{
		{compType: HunkCompTypeNone, length: hunkBytes, offset: firstOffs, crc16: crc16(hunk0)},
		{compType: HunkCompTypeNone, length: hunkBytes, offset: firstOffs + hunkBytes, crc16: crc16(hunk1)},
	})

	buf := make([]byte, firstOffs+2*hunkBytes)
	writeV5Header(buf, v5HeaderFields{
		logicalBytes: 2 * hunkBytes,
		mapOffset:    mapOffset,
		hunkBytes:    hunkBytes,
		unitBytes:    hunkBytes,
	})
	binary.BigEndian.PutUint32(buf[0x10:0x14], CodecZlib) // nonzero first codec slot: compressed map
	writeV5MapHeader(buf[mapOffset:], len(compMap), firstOffs, mapCRC, 0, 0, 0)
	copy(buf[mapOffset+16:], compMap)
	copy(buf[firstOffs:], hunk0)
	copy(buf[firstOffs+hunkBytes:], hunk1)

	return buf
}

// TestCompressedMapNoneRoundTrip round-trips a V5 image whose map is
// Huffman-RLE compressed (rather than the raw uncompressed shape), verifying
// both the decode and the map_crc check over the reconstructed table.
func TestCompressedMapNoneRoundTrip(t *testing.T) {
	t.Parallel()

	c, err := OpenSource(bytes.NewReader(buildCompressedNoneV5Image()), nil)
	if err != nil {
		t.Fatalf("OpenSource failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	want0 := make([]byte, 16)
	want1 := make([]byte, 16)
	for i := range want0 {
		want0[i] = byte(i)
		want1[i] = byte(0xF0 + i)
	}

	got0, err := c.ReadHunk(0)
	if err != nil {
		t.Fatalf("ReadHunk(0) failed: %v", err)
	}
	if !bytes.Equal(got0, want0) {
		t.Errorf("hunk 0 = %x, want %x", got0, want0)
	}

	got1, err := c.ReadHunk(1)
	if err != nil {
		t.Fatalf("ReadHunk(1) failed: %v", err)
	}
	if !bytes.Equal(got1, want1) {
		t.Errorf("hunk 1 = %x, want %x", got1, want1)
	}
}

// TestCompressedMapCRCMismatch verifies a corrupted map_crc is rejected
// rather than silently accepted.
func TestCompressedMapCRCMismatch(t *testing.T) {
	t.Parallel()

	buf := buildCompressedNoneV5Image()
	const mapOffset = headerSizeV5
	buf[mapOffset+10] ^= 0xFF // flip bits in the stored map_crc field

	_, err := OpenSource(bytes.NewReader(buf), nil)
	if err == nil {
		t.Fatal("expected error for corrupted map CRC16")
	}
	var chdErr *Error
	if !errors.As(err, &chdErr) || chdErr.Kind != KindDecompressionError {
		t.Errorf("expected KindDecompressionError, got: %v", err)
	}
}

// TestSeedSuiteMagicReject verifies that a buffer with no CHD magic is
// rejected as invalid data rather than, say, panicking on version dispatch.
func TestSeedSuiteMagicReject(t *testing.T) {
	t.Parallel()

	_, err := OpenSource(bytes.NewReader(make([]byte, 1024)), nil)
	if err == nil {
		t.Fatal("expected error for all-zero buffer")
	}
	var chdErr *Error
	if !errors.As(err, &chdErr) || chdErr.Kind != KindInvalidData {
		t.Errorf("expected KindInvalidData, got: %v", err)
	}
}

// TestSeedSuiteUnsupportedVersion verifies that a well-formed-looking header
// declaring an unknown version is rejected rather than silently guessed at.
func TestSeedSuiteUnsupportedVersion(t *testing.T) {
	t.Parallel()

	buf := make([]byte, headerSizeV5)
	copy(buf[0:8], chdMagic[:])
	binary.BigEndian.PutUint32(buf[8:12], headerSizeV5)
	binary.BigEndian.PutUint32(buf[12:16], 9)

	_, err := OpenSource(bytes.NewReader(buf), nil)
	if err == nil {
		t.Fatal("expected error for unsupported version")
	}
	var chdErr *Error
	if !errors.As(err, &chdErr) || chdErr.Kind != KindUnsupportedVersion {
		t.Errorf("expected KindUnsupportedVersion, got: %v", err)
	}
}

// buildLegacyMiniV3Image assembles a single-hunk V3 image whose one hunk map
// entry is a legacy Mini hunk: its 8-byte "offset" field is instead the
// literal pattern repeated to fill the hunk.
func buildLegacyMiniV3Image() []byte {
	const hunkBytes = 16

	buf := make([]byte, headerSizeV3+16)
	copy(buf[0:8], chdMagic[:])
	binary.BigEndian.PutUint32(buf[8:12], headerSizeV3)
	binary.BigEndian.PutUint32(buf[12:16], 3)
	binary.BigEndian.PutUint32(buf[0x18:0x1C], 1)
	binary.BigEndian.PutUint64(buf[0x1C:0x24], hunkBytes)
	binary.BigEndian.PutUint32(buf[0x4C:0x50], hunkBytes)

	entry := buf[headerSizeV3:]
	binary.BigEndian.PutUint64(entry[0:8], 0x0102030405060708)
	entry[15] = legacyMapMini

	return buf
}

// TestSeedSuiteLegacyMini verifies the legacy Mini hunk expands its 8-byte
// pattern to fill the hunk.
func TestSeedSuiteLegacyMini(t *testing.T) {
	t.Parallel()

	c, err := OpenSource(bytes.NewReader(buildLegacyMiniV3Image()), nil)
	if err != nil {
		t.Fatalf("OpenSource failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	got, err := c.ReadHunk(0)
	if err != nil {
		t.Fatalf("ReadHunk(0) failed: %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(got, want) {
		t.Errorf("hunk 0 = %x, want %x", got, want)
	}
}

// buildV5SelfCycleImage assembles a single-hunk V5 image whose only hunk is
// a Self reference to itself.
func buildV5SelfCycleImage() []byte {
	const hunkBytes = 16

	var bw bitWriter
	bw.buf = append(bw.buf, v5UniformTreeHeader()...)
	bw.writeBits(HunkCompTypeSelf, 4)
	bw.writeBits(0, 4) // selfBits=4, offset=0: hunk 0 refers to itself
	compMap := bw.bytes()

	mapCRC := v5MapCRC([]v5RawMapEntry{{compType: HunkCompTypeSelf, offset: 0}})

	const mapOffset = headerSizeV5
	buf := make([]byte, mapOffset+16+len(compMap))
	writeV5Header(buf, v5HeaderFields{
		logicalBytes: hunkBytes,
		mapOffset:    mapOffset,
		hunkBytes:    hunkBytes,
		unitBytes:    hunkBytes,
	})
	binary.BigEndian.PutUint32(buf[0x10:0x14], CodecZlib) // nonzero first codec slot: compressed map
	writeV5MapHeader(buf[mapOffset:], len(compMap), 0, mapCRC, 0, 4, 0)
	copy(buf[mapOffset+16:], compMap)

	return buf
}

// TestSeedSuiteSelfCycle verifies that a hunk which self-references its own
// index is rejected as invalid data instead of recursing forever.
func TestSeedSuiteSelfCycle(t *testing.T) {
	t.Parallel()

	c, err := OpenSource(bytes.NewReader(buildV5SelfCycleImage()), nil)
	if err != nil {
		t.Fatalf("OpenSource failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	type result struct {
		err error
	}
	done := make(chan result, 1)
	go func() {
		_, err := c.ReadHunk(0)
		done <- result{err: err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			t.Fatal("expected error for cyclic self-reference")
		}
		var chdErr *Error
		if !errors.As(r.err, &chdErr) || chdErr.Kind != KindInvalidData {
			t.Errorf("expected KindInvalidData, got: %v", r.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ReadHunk(0) did not return, likely looping on the self-reference")
	}
}

// TestSeedSuiteParentRequired verifies that a V5 image declaring a parent
// fails to open without one, with KindRequiresParent.
func TestSeedSuiteParentRequired(t *testing.T) {
	t.Parallel()

	const hunkBytes = 16

	var bw bitWriter
	bw.buf = append(bw.buf, v5UniformTreeHeader()...)
	bw.writeBits(HunkCompTypeParent, 4)
	bw.writeBits(0, 4) // parentBits=4, offset=0
	compMap := bw.bytes()

	mapCRC := v5MapCRC([]v5RawMapEntry{{compType: HunkCompTypeParent, offset: 0}})

	const mapOffset = headerSizeV5
	buf := make([]byte, mapOffset+16+len(compMap))
	var parentSHA1 [20]byte
	parentSHA1[0] = 1 // non-zero so HasParent() reports true
	writeV5Header(buf, v5HeaderFields{
		logicalBytes: hunkBytes,
		mapOffset:    mapOffset,
		hunkBytes:    hunkBytes,
		unitBytes:    hunkBytes,
		parentSHA1:   parentSHA1,
	})
	writeV5MapHeader(buf[mapOffset:], len(compMap), 0, mapCRC, 0, 0, 4)
	copy(buf[mapOffset+16:], compMap)

	_, err := OpenSource(bytes.NewReader(buf), nil)
	if err == nil {
		t.Fatal("expected error opening a has_parent image with no parent")
	}
	var chdErr *Error
	if !errors.As(err, &chdErr) || chdErr.Kind != KindRequiresParent {
		t.Errorf("expected KindRequiresParent, got: %v", err)
	}
}

