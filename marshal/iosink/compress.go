// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package iosink

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Algo names a compression codec, the same role compr.Compression
// plays for ion blocks.
type Algo string

const (
	NoCompression Algo = "none"
	ZstdAlgo      Algo = "zstd"
	S2Algo        Algo = "s2"
)

// CompressWriter wraps w so that every byte written to the returned
// io.WriteCloser is compressed with algo before reaching w, mirroring
// how compr.Compression.WriteTo once framed ion blocks ahead of the
// underlying stream.
func CompressWriter(w io.Writer, algo Algo) (io.WriteCloser, error) {
	switch algo {
	case NoCompression, "":
		return nopCloser{w}, nil
	case ZstdAlgo:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("iosink: zstd writer: %w", err)
		}
		return zw, nil
	case S2Algo:
		return s2.NewWriter(w), nil
	default:
		return nil, fmt.Errorf("iosink: unknown compression algorithm %q", algo)
	}
}

// DecompressReader is the inverse of CompressWriter.
func DecompressReader(r io.Reader, algo Algo) (io.ReadCloser, error) {
	switch algo {
	case NoCompression, "":
		return io.NopCloser(r), nil
	case ZstdAlgo:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("iosink: zstd reader: %w", err)
		}
		return zstdReadCloser{zr}, nil
	case S2Algo:
		return io.NopCloser(s2.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("iosink: unknown compression algorithm %q", algo)
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
