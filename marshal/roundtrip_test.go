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

type emptyRegistry struct{}

func (emptyRegistry) Resolve(name string) (Class, error) {
	return nil, errf(KindType, 0, "undefined class/module %s", name)
}

func roundTrip(t *testing.T, v *Value) *Value {
	t.Helper()
	b, err := DumpToBytes(v)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	got, err := LoadFromBytes(b, emptyRegistry{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return got
}

func TestRoundTripPrimitives(t *testing.T) {
	vals := []*Value{
		Nil(),
		Bool(true),
		Bool(false),
		Int(0),
		Int(1),
		Int(-1),
		Int(122),
		Int(123),
		Int(1 << 40),
		Float(3.25),
		Float(-0.5),
		Symbol("foo"),
		StringFrom("hello, world"),
	}
	for _, v := range vals {
		got := roundTrip(t, v)
		if !Equal(v, got) {
			t.Errorf("round trip mismatch for kind %s: got kind %s", v.Kind(), got.Kind())
		}
	}
}

func TestRoundTripArray(t *testing.T) {
	v := Array(Int(1), Int(2), StringFrom("three"))
	got := roundTrip(t, v)
	if !Equal(v, got) {
		t.Fatalf("array round trip mismatch")
	}
}

func TestRoundTripHash(t *testing.T) {
	h := Hash()
	h.HashSet(Symbol("a"), Int(1))
	h.HashSet(Symbol("b"), Int(2))
	got := roundTrip(t, h)
	if !Equal(h, got) {
		t.Fatalf("hash round trip mismatch")
	}
}

func TestRoundTripSharedString(t *testing.T) {
	s := StringFrom("shared")
	arr := Array(s, s)
	b, err := DumpToBytes(arr)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	got, err := LoadFromBytes(b, emptyRegistry{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Elems()[0] != got.Elems()[1] {
		t.Fatalf("decoded shared string did not round trip to a single shared instance")
	}
}

func TestRoundTripCycle(t *testing.T) {
	a := Array(Nil())
	a.Elems()[0] = a

	b, err := DumpToBytes(a)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	got, err := LoadFromBytes(b, emptyRegistry{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Kind() != KindArray || len(got.Elems()) != 1 {
		t.Fatalf("expected 1-element array, got %v", got)
	}
	if got.Elems()[0] != got {
		t.Fatalf("decoded self-referential array did not point back to itself")
	}
}

func TestDumpVersionPrefix(t *testing.T) {
	b, err := DumpToBytes(Nil())
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(b) < 2 || b[0] != MajorVersion || b[1] != MinorVersion {
		t.Fatalf("expected version prefix %d %d, got % x", MajorVersion, MinorVersion, b[:2])
	}
}

func TestLiteralScenarios(t *testing.T) {
	cases := []struct {
		name string
		v    *Value
		want []byte
	}{
		{"nil", Nil(), []byte{4, 8, '0'}},
		{"true", Bool(true), []byte{4, 8, 'T'}},
		{"false", Bool(false), []byte{4, 8, 'F'}},
		{"fixnum zero", Int(0), []byte{4, 8, 'i', 0}},
		{"fixnum one", Int(1), []byte{4, 8, 'i', 6}},
		{"string ab", StringFrom("ab"), []byte{4, 8, '"', 7, 'a', 'b'}},
	}
	for _, c := range cases {
		got, err := DumpToBytes(c.v)
		if err != nil {
			t.Fatalf("%s: Dump: %v", c.name, err)
		}
		if !bytes.Equal(got, c.want) {
			t.Errorf("%s: got % x, want % x", c.name, got, c.want)
		}
	}
}

func TestDepthLimitExceeded(t *testing.T) {
	inner := Array()
	cur := inner
	for i := 0; i < 200; i++ {
		next := Array(cur)
		cur = next
	}
	_, err := DumpToBytes(cur, 100)
	if err == nil {
		t.Fatal("expected depth-limit error")
	}
}

func TestDecoderRejectsFutureMajorVersion(t *testing.T) {
	_, err := LoadFromBytes([]byte{5, 0, '0'}, emptyRegistry{})
	if err == nil {
		t.Fatal("expected version error")
	}
}

func TestDecoderRejectsNewerMinorVersion(t *testing.T) {
	_, err := LoadFromBytes([]byte{4, 9, '0'}, emptyRegistry{})
	if err == nil {
		t.Fatal("expected version error")
	}
}

func TestDecoderRejectsUnlinkedReference(t *testing.T) {
	_, err := LoadFromBytes([]byte{4, 8, '@', 6}, emptyRegistry{})
	if err == nil {
		t.Fatal("expected unlinked-reference error")
	}
}

func TestDecoderRejectsHashWithDefault(t *testing.T) {
	_, err := LoadFromBytes([]byte{4, 8, '}', 0, '0'}, emptyRegistry{})
	if err == nil {
		t.Fatal("expected hash-with-default rejection")
	}
}

func TestDecoderRejectsBignum(t *testing.T) {
	_, err := LoadFromBytes([]byte{4, 8, 'l', '+', 0}, emptyRegistry{})
	if err == nil {
		t.Fatal("expected not-implemented error for bignum")
	}
}
