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

// EncodeVarint appends the wire encoding of x to dst and returns
// the extended slice. This is the format's peculiar signed,
// length-prefixed integer scheme (ported from w_long in the
// reference mruby-marshal-c dump.c):
//
//	x == 0            -> one byte, 0
//	0 < x < 123        -> one byte, x+5
//	-124 < x < 0       -> one byte, (x-5)&0xff
//	otherwise          -> one byte n (byte count, signed by x's sign),
//	                      then |n| little-endian payload bytes
func EncodeVarint(dst []byte, x int64) []byte {
	if x == 0 {
		return append(dst, 0)
	}
	if x > 0 && x < 123 {
		return append(dst, byte(x+5))
	}
	if x < 0 && x > -124 {
		return append(dst, byte((x-5)&0xff))
	}
	var buf [8]byte
	v := x
	n := 0
	for n < 8 {
		buf[n] = byte(v & 0xff)
		v >>= 8
		n++
		if v == 0 {
			break
		}
		if v == -1 {
			break
		}
	}
	// n is the payload length; sign carried in the leading count byte.
	count := n
	if x < 0 {
		count = -n
	}
	dst = append(dst, byte(count))
	return append(dst, buf[:n]...)
}

// DecodeVarint reads a varint from the front of src and returns the
// decoded value plus the remaining bytes. Ported from r_long,
// including its small-negative fast path (-129 < c < -4 -> c+5) that
// mirrors EncodeVarint's -124 < x < 0 -> (x-5)&0xff single-byte case.
func DecodeVarint(src []byte) (int64, []byte, error) {
	if len(src) == 0 {
		return 0, nil, errf(KindIO, 0, "marshal data too short")
	}
	c := int8(src[0])
	rest := src[1:]
	if c == 0 {
		return 0, rest, nil
	}
	if c > 0 {
		if 4 < c && c < 128 {
			return int64(c) - 5, rest, nil
		}
		n := int(c)
		if n > 8 {
			return 0, nil, errf(KindType, 0, "integer too big")
		}
		if len(rest) < n {
			return 0, nil, errf(KindIO, 0, "marshal data too short")
		}
		var x int64
		for i := 0; i < n; i++ {
			x |= int64(rest[i]) << (8 * i)
		}
		return x, rest[n:], nil
	}
	if c > -129 && c < -4 {
		return int64(c) + 5, rest, nil
	}
	n := int(-c)
	if n > 8 {
		return 0, nil, errf(KindType, 0, "integer too big")
	}
	if len(rest) < n {
		return 0, nil, errf(KindIO, 0, "marshal data too short")
	}
	x := int64(-1)
	for i := 0; i < n; i++ {
		x &^= int64(0xff) << (8 * i)
		x |= int64(rest[i]) << (8 * i)
	}
	return x, rest[n:], nil
}

// sizeofVarint returns the number of bytes EncodeVarint(nil, x) would
// produce. Nothing in this package calls it.
func sizeofVarint(x int64) int {
	if x == 0 || (x > 0 && x < 123) || (x < 0 && x > -124) {
		return 1
	}
	var buf [8]byte
	v := x
	n := 0
	for n < 8 {
		buf[n] = byte(v & 0xff)
		v >>= 8
		n++
		if v == 0 || v == -1 {
			break
		}
	}
	return 1 + n
}
