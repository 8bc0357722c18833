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

package marshal

import (
	"bytes"
	"testing"
)

func TestEncodeVarintLiterals(t *testing.T) {
	cases := []struct {
		x    int64
		want []byte
	}{
		{0, []byte{0}},
		{1, []byte{6}},
		{122, []byte{127}},
		{-1, []byte{0xfa}},
		{-123, []byte{0x80}},
		{123, []byte{1, 123}},
		{256, []byte{2, 0, 1}},
		{-124, []byte{0xff, 0x84}},
	}
	for _, c := range cases {
		got := EncodeVarint(nil, c.x)
		if !bytes.Equal(got, c.want) {
			t.Errorf("EncodeVarint(%d) = % x, want % x", c.x, got, c.want)
		}
	}
}

func TestVarintRoundTrip(t *testing.T) {
	vals := []int64{
		0, 1, -1, 122, -123, 123, -124, 255, -255, 256, -256,
		1 << 16, -(1 << 16), 1 << 24, -(1 << 24),
		1<<30 - 1, -(1 << 30), 1 << 40, -(1 << 40),
	}
	for _, x := range vals {
		enc := EncodeVarint(nil, x)
		got, rest, err := DecodeVarint(enc)
		if err != nil {
			t.Fatalf("DecodeVarint(%d) error: %v", x, err)
		}
		if len(rest) != 0 {
			t.Errorf("DecodeVarint(%d) left %d trailing bytes", x, len(rest))
		}
		if got != x {
			t.Errorf("round trip %d -> % x -> %d", x, enc, got)
		}
	}
}

func TestDecodeVarintShort(t *testing.T) {
	_, _, err := DecodeVarint([]byte{3, 1})
	if err == nil {
		t.Fatal("expected error decoding truncated varint")
	}
}
