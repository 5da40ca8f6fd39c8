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

	"github.com/mewkiz/flac"
)

func init() {
	RegisterCodec(CodecAVHuff, func() Codec { return &avHuffCodec{} })
}

// avHuffCodec implements the AV Huff ("avhu") composite audio/video codec
// used by laserdisc-style CHDs. It decodes a variable-layout input (audio
// delta stream per channel plus a Huffman-coded 4:2:2 video frame) into a
// fixed "chav"-tagged output buffer.
type avHuffCodec struct{}

const (
	avHuffOutputHeaderSize = 12
	avHuffVideoCodes       = 272
	avHuffTreeNumCodes     = 256
	avHuffTreeMaxBits      = 16
	avHuffTreeSizeFLAC     = 0xFFFF
)

var avHuffMagic = [4]byte{'c', 'h', 'a', 'v'}

// Decompress decodes an AV Huff hunk per spec.md §4.4.1.
//
//nolint:gocognit,gocyclo,cyclop,funlen,revive // single-pass container parse, mirrors the on-disk layout
func (*avHuffCodec) Decompress(dst, src []byte) (int, error) {
	if len(src) < 10 {
		return 0, fmt.Errorf("%w: avhu: source too small", ErrDecompressFailed)
	}

	metaSize := int(src[0])
	channels := int(src[1])
	samples := int(binary.BigEndian.Uint16(src[2:4]))
	width := int(binary.BigEndian.Uint16(src[4:6]))
	height := int(binary.BigEndian.Uint16(src[6:8]))
	treeSize := binary.BigEndian.Uint16(src[8:10])

	cursor := 10
	if len(src) < cursor+channels*2 {
		return 0, fmt.Errorf("%w: avhu: truncated channel table", ErrDecompressFailed)
	}
	chanLens := make([]int, channels)
	for i := range channels {
		chanLens[i] = int(binary.BigEndian.Uint16(src[cursor : cursor+2]))
		cursor += 2
	}

	if len(src) < cursor+metaSize {
		return 0, fmt.Errorf("%w: avhu: truncated metadata", ErrDecompressFailed)
	}
	metadata := src[cursor : cursor+metaSize]
	cursor += metaSize

	var hiTree, loTree *huffmanDecoder
	if treeSize != avHuffTreeSizeFLAC && treeSize != 0 {
		br := newBitReader(src[cursor:])
		hiTree = newHuffmanDecoder(avHuffTreeNumCodes, avHuffTreeMaxBits)
		if err := hiTree.importTreeRLE(br); err != nil {
			return 0, fmt.Errorf("%w: avhu hi tree: %w", ErrDecompressFailed, err)
		}
		br.alignByte()
		loTree = newHuffmanDecoder(avHuffTreeNumCodes, avHuffTreeMaxBits)
		if err := loTree.importTreeRLE(br); err != nil {
			return 0, fmt.Errorf("%w: avhu lo tree: %w", ErrDecompressFailed, err)
		}
		br.alignByte()
		cursor += br.offset / 8
	}

	audioBytes := channels * 2 * samples
	videoBytes := width * height * 2
	required := avHuffOutputHeaderSize + metaSize + audioBytes + videoBytes
	if len(dst) < required {
		return 0, fmt.Errorf("%w: avhu: destination too small", ErrOutOfMemory)
	}

	copy(dst[0:4], avHuffMagic[:])
	dst[4] = byte(metaSize)
	dst[5] = byte(channels)
	binary.BigEndian.PutUint16(dst[6:8], uint16(samples))
	binary.BigEndian.PutUint16(dst[8:10], uint16(width))
	binary.BigEndian.PutUint16(dst[10:12], uint16(height))
	copy(dst[avHuffOutputHeaderSize:], metadata)

	audioOut := dst[avHuffOutputHeaderSize+metaSize:]
	for ch := range channels {
		if len(src) < cursor+chanLens[ch] {
			return 0, fmt.Errorf("%w: avhu: truncated channel %d", ErrDecompressFailed, ch)
		}
		chanData := src[cursor : cursor+chanLens[ch]]
		cursor += chanLens[ch]

		out := audioOut[ch*2*samples : (ch+1)*2*samples]
		switch treeSize {
		case avHuffTreeSizeFLAC:
			if err := decodeAVHuffFLACChannel(chanData, out, samples); err != nil {
				return 0, err
			}
		case 0:
			decodeAVHuffRawDeltaChannel(chanData, out, samples)
		default:
			decodeAVHuffHuffmanChannel(chanData, out, samples, hiTree, loTree)
		}
	}

	if width == 0 || height == 0 {
		return avHuffOutputHeaderSize + metaSize + audioBytes, nil
	}

	if cursor >= len(src) {
		return 0, fmt.Errorf("%w: avhu: missing video section", ErrDecompressFailed)
	}
	videoFlags := src[cursor]
	cursor++
	if videoFlags&0x80 == 0 {
		return 0, fmt.Errorf("%w: avhu: lossy video not supported", ErrUnsupportedFormat)
	}

	vbr := newBitReader(src[cursor:])
	yTree := newHuffmanDecoder(avHuffVideoCodes, avHuffTreeMaxBits)
	if err := yTree.importTreeRLE(vbr); err != nil {
		return 0, fmt.Errorf("%w: avhu Y tree: %w", ErrDecompressFailed, err)
	}
	vbr.alignByte()
	cbTree := newHuffmanDecoder(avHuffVideoCodes, avHuffTreeMaxBits)
	if err := cbTree.importTreeRLE(vbr); err != nil {
		return 0, fmt.Errorf("%w: avhu Cb tree: %w", ErrDecompressFailed, err)
	}
	vbr.alignByte()
	crTree := newHuffmanDecoder(avHuffVideoCodes, avHuffTreeMaxBits)
	if err := crTree.importTreeRLE(vbr); err != nil {
		return 0, fmt.Errorf("%w: avhu Cr tree: %w", ErrDecompressFailed, err)
	}
	vbr.alignByte()

	videoOut := audioOut[audioBytes:]
	decodeAVHuffVideo(vbr, videoOut, width, height, yTree, cbTree, crTree)

	return required, nil
}

// decodeAVHuffFLACChannel decodes one channel's audio via a raw FLAC stream,
// reusing the synthetic-header machinery built for the CD FLAC codec.
func decodeAVHuffFLACChannel(data, out []byte, samples int) error {
	blockSize := cdFLACBlockSize(samples * 2)
	header := buildFLACHeader(48000, 1, blockSize)
	cr := &countingReader{header: header, data: data}

	stream, err := flac.New(cr)
	if err != nil {
		return fmt.Errorf("%w: avhu flac init: %w", ErrDecompressFailed, err)
	}
	defer func() { _ = stream.Close() }()

	if _, err := decodeFLACFrames(stream, out); err != nil {
		return fmt.Errorf("%w: avhu flac channel: %w", ErrDecompressFailed, err)
	}
	return nil
}

// decodeAVHuffRawDeltaChannel decodes uncompressed 16-bit BE deltas against
// a running sum seeded at 0.
func decodeAVHuffRawDeltaChannel(data, out []byte, samples int) {
	var running uint16
	for i := range samples {
		var delta uint16
		if i*2+2 <= len(data) {
			delta = binary.BigEndian.Uint16(data[i*2 : i*2+2])
		}
		running += delta
		if i*2+2 <= len(out) {
			binary.BigEndian.PutUint16(out[i*2:i*2+2], running)
		}
	}
}

// decodeAVHuffHuffmanChannel decodes the split-byte Huffman audio mode: each
// sample's delta is coded as independent high/low bytes against shared
// hi/lo trees, accumulated into a running sum.
func decodeAVHuffHuffmanChannel(data, out []byte, samples int, hiTree, loTree *huffmanDecoder) {
	br := newBitReader(data)
	var running uint16
	for i := range samples {
		hi := hiTree.decode(br)
		lo := loTree.decode(br)
		delta := uint16(hi)<<8 | uint16(lo)
		running += delta
		if i*2+2 <= len(out) {
			binary.BigEndian.PutUint16(out[i*2:i*2+2], running)
		}
	}
}

// avHuffVideoContext tracks one of the three (Y, Cb, Cr) delta-RLE-Huffman
// decode contexts used by AVHuff video: a running accumulator byte plus a
// pending-repeat count.
type avHuffVideoContext struct {
	running byte
	pending int
}

// next emits the context's next output byte, consuming a new symbol from
// the bit stream only when no repeat is pending.
func (ctx *avHuffVideoContext) next(br *bitReader, tree *huffmanDecoder) byte {
	if ctx.pending > 0 {
		ctx.pending--
		return ctx.running
	}

	symbol, _ := tree.decodeWide(br)
	switch {
	case symbol < 256:
		ctx.running += byte(symbol)
	case symbol == 256:
		// repeat the running byte once; nothing further to queue
	case symbol <= 263:
		ctx.pending = 8 + int(symbol) - 256 - 1
	default:
		ctx.pending = 16<<(int(symbol)-264) - 1
	}
	return ctx.running
}

// decodeAVHuffVideo decodes a 4:2:2 YCbCr frame: each row of macropixels
// produces Y Cb Y Cr quadruplets, with RLE run state reset per row but the
// three running accumulator bytes preserved across rows.
func decodeAVHuffVideo(br *bitReader, out []byte, width, height int, yTree, cbTree, crTree *huffmanDecoder) {
	var yCtx, cbCtx, crCtx avHuffVideoContext
	macropixels := width / 2
	rowBytes := width * 2

	for row := range height {
		yCtx.pending = 0
		cbCtx.pending = 0
		crCtx.pending = 0

		rowStart := row * rowBytes
		if rowStart+rowBytes > len(out) {
			break
		}
		rowOut := out[rowStart : rowStart+rowBytes]

		for mp := range macropixels {
			y0 := yCtx.next(br, yTree)
			cb := cbCtx.next(br, cbTree)
			y1 := yCtx.next(br, yTree)
			cr := crCtx.next(br, crTree)

			off := mp * 4
			rowOut[off] = y0
			rowOut[off+1] = cb
			rowOut[off+2] = y1
			rowOut[off+3] = cr
		}
	}
}
