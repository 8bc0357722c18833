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

package registry

import (
	"testing"

	"github.com/LanzaSchneider/mruby-marshal-go/marshal"
)

func TestTableResolve(t *testing.T) {
	tab := New()
	tab.Register(NewPlainClass("Widget"))

	c, err := tab.Resolve("Widget")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if c.Name() != "Widget" {
		t.Fatalf("got class %q", c.Name())
	}

	if _, err := tab.Resolve("DoesNotExist"); err == nil {
		t.Fatal("expected error resolving unregistered class")
	}
}

func TestPlainClassAllocate(t *testing.T) {
	c := NewPlainClass("Widget")
	v, err := c.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if v.Kind() != marshal.KindObject || v.Class().Name() != "Widget" {
		t.Fatalf("unexpected allocated value: %+v", v)
	}
}

func TestStructDefRoundTrip(t *testing.T) {
	tab := New()
	sd := NewStructDef("Point", "x", "y")
	tab.Register(sd)

	v := marshal.Struct(sd, marshal.Int(1), marshal.Int(2))
	b, err := marshal.DumpToBytes(v)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	got, err := marshal.LoadFromBytes(b, tab)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !marshal.Equal(v, got) {
		t.Fatalf("struct round trip mismatch")
	}
}

func TestRespondsAndIdentityEqual(t *testing.T) {
	sd := NewStructDef("Point", "x", "y")
	if Responds(sd, "marshal_dump") {
		t.Fatal("StructDef should not respond to marshal_dump")
	}
	a, _ := sd.Allocate()
	b, _ := sd.Allocate()
	if IdentityEqual(a, b) {
		t.Fatal("two distinct allocations should not be identity-equal")
	}
	if !IdentityEqual(a, a) {
		t.Fatal("a value should be identity-equal to itself")
	}
}
