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

import "fmt"

func init() {
	RegisterCodec(CodecHuff, func() Codec { return &huffCodec{} })
}

// huffCodec implements the generic byte-wise Huffman codec ("huff"), used by
// non-CD CHDs (hard disk images) as an alternative to zlib/LZMA. The stream
// is a single RLE-encoded canonical Huffman tree over 256 byte values,
// followed by one symbol per decompressed byte.
type huffCodec struct{}

// huffNumCodes/huffMaxBits size the canonical tree to one code per possible
// byte value, matching the generic (non-map) Huffman tree used for hunk data.
const (
	huffNumCodes = 256
	huffMaxBits  = 16
)

// Decompress decompresses Huffman-compressed data.
func (*huffCodec) Decompress(dst, src []byte) (int, error) {
	br := newBitReader(src)
	decoder := newHuffmanDecoder(huffNumCodes, huffMaxBits)

	if err := decoder.importTreeRLE(br); err != nil {
		return 0, fmt.Errorf("%w: huff: import tree: %w", ErrDecompressFailed, err)
	}

	for i := range dst {
		dst[i] = decoder.decode(br)
	}

	return len(dst), nil
}
