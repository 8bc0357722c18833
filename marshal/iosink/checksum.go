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
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
)

// SigningWriter tees every byte written through it into a keyed
// blake2b digest, the same signature scheme appendSig once applied
// to packed index blocks: a caller-supplied key authenticates the
// stream instead of merely detecting accidental corruption.
type SigningWriter struct {
	w io.Writer
	h hash.Hash
}

// NewSigningWriter wraps w with a blake2b-256 digest keyed by key.
// A nil key produces an unkeyed (plain integrity) digest.
func NewSigningWriter(w io.Writer, key []byte) (*SigningWriter, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return nil, err
	}
	return &SigningWriter{w: w, h: h}, nil
}

func (s *SigningWriter) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if n > 0 {
		s.h.Write(p[:n])
	}
	return n, err
}

// Sum returns the running digest over every byte written so far.
func (s *SigningWriter) Sum() [32]byte {
	var out [32]byte
	copy(out[:], s.h.Sum(nil))
	return out
}

// SigningReader mirrors SigningWriter on the read path, accumulating
// a digest over every byte returned to the caller so the final Sum
// can be compared against a trailer or out-of-band signature.
type SigningReader struct {
	r io.Reader
	h hash.Hash
}

func NewSigningReader(r io.Reader, key []byte) (*SigningReader, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return nil, err
	}
	return &SigningReader{r: r, h: h}, nil
}

func (s *SigningReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.h.Write(p[:n])
	}
	return n, err
}

func (s *SigningReader) Sum() [32]byte {
	var out [32]byte
	copy(out[:], s.h.Sum(nil))
	return out
}
