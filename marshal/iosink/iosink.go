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

// Package iosink provides the byte-buffer and stream adapters
// spec.md §6 calls out as external collaborators: thin shims giving
// the codec a read(n)->bytes / write(bytes)->count surface over
// either a growable in-memory buffer or a user-supplied io.Reader/
// io.Writer, the same way ion.Buffer (writer.go) wraps a growable
// []byte and ion's chunker wraps an io.Writer.
package iosink

import (
	"io"

	"github.com/LanzaSchneider/mruby-marshal-go/marshal"
)

// BufferSink is a growable byte buffer, analogous to ion.Buffer's
// append-only backing array.
type BufferSink struct {
	buf []byte
}

// NewBufferSink returns an empty BufferSink.
func NewBufferSink() *BufferSink { return &BufferSink{} }

// Bytes returns the buffer's contents. The returned slice aliases
// the sink's storage and is invalidated by further writes.
func (b *BufferSink) Bytes() []byte { return b.buf }

// Write implements the marshal.Writer-compatible append call.
func (b *BufferSink) Write(src []byte, position int64) (int64, error) {
	need := position + int64(len(src))
	if need > int64(len(b.buf)) {
		grown := make([]byte, need)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[position:], src)
	return int64(len(src)), nil
}

// Read implements the marshal.Reader-compatible positional read.
func (b *BufferSink) Read(dest []byte, position int64) (int64, error) {
	if position >= int64(len(b.buf)) {
		return 0, nil
	}
	n := copy(dest, b.buf[position:])
	return int64(n), nil
}

// StreamSink adapts an io.Writer/io.Reader pair to the position-
// agnostic, sequential-only callback signatures spec.md §6 defines
// for dump/load (writer(src, dest, position) and
// reader(source, dest, size, position)): a marshal stream is always
// read and written in one sequential pass, so position is advisory
// bookkeeping rather than a seek target here.
type StreamSink struct {
	W io.Writer
	R io.Reader
}

func (s *StreamSink) Write(src []byte, position int64) (int64, error) {
	n, err := s.W.Write(src)
	return int64(n), err
}

func (s *StreamSink) Read(dest []byte, position int64) (int64, error) {
	n, err := io.ReadFull(s.R, dest)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return int64(n), nil
	}
	return int64(n), err
}

// Writer adapts b to marshal.Writer, discarding the dest argument
// (a BufferSink is its own destination).
func (b *BufferSink) Writer() marshal.Writer {
	return func(src []byte, _ any, position int64) (int64, error) {
		return b.Write(src, position)
	}
}

// Reader adapts b to marshal.Reader.
func (b *BufferSink) Reader() marshal.Reader {
	return func(_ any, dest []byte, position int64) (int64, error) {
		return b.Read(dest, position)
	}
}

// Writer adapts s to marshal.Writer.
func (s *StreamSink) Writer() marshal.Writer {
	return func(src []byte, _ any, position int64) (int64, error) {
		return s.Write(src, position)
	}
}

// Reader adapts s to marshal.Reader.
func (s *StreamSink) Reader() marshal.Reader {
	return func(_ any, dest []byte, position int64) (int64, error) {
		return s.Read(dest, position)
	}
}
