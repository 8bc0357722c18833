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
	"errors"
	"testing"
)

func TestErrorKindOfDecodeFailures(t *testing.T) {
	cases := []struct {
		name string
		b    []byte
		want ErrorKind
	}{
		{"future major version", []byte{5, 0, '0'}, KindVersion},
		{"bignum not implemented", []byte{4, 8, 'l', '+', 0}, KindNotImplemented},
		{"unlinked reference", []byte{4, 8, '@', 6}, KindFormat},
		{"hash with default rejected", []byte{4, 8, '}', 0, '0'}, KindType},
		{"truncated stream", []byte{4}, KindIO},
	}
	for _, c := range cases {
		_, err := LoadFromBytes(c.b, emptyRegistry{})
		if err == nil {
			t.Errorf("%s: expected an error", c.name)
			continue
		}
		var me *Error
		if !errors.As(err, &me) {
			t.Errorf("%s: error %v is not a *marshal.Error", c.name, err)
			continue
		}
		if me.Kind != c.want {
			t.Errorf("%s: got kind %s, want %s", c.name, me.Kind, c.want)
		}
	}
}

func TestWrapfUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := wrapf(KindIO, 'x', inner, "reading failed")
	if !errors.Is(err, inner) {
		t.Fatal("wrapf-produced error does not unwrap to the original cause")
	}
}
