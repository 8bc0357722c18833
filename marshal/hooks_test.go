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

import "testing"

// pointClass backs a plain KindObject instance with two ivars, the
// same role a bare Ruby class with attr_accessor plays in spec.md's
// example stream.
type pointClass struct{ name string }

func (p *pointClass) Name() string { return p.name }
func (p *pointClass) Allocate() (*Value, error) {
	v := Object(p)
	v.SetIvar("@x", Int(0))
	v.SetIvar("@y", Int(0))
	return v, nil
}

func newPoint(x, y int64) *Value {
	p := &pointClass{name: "Point"}
	v, _ := p.Allocate()
	v.SetIvar("@x", Int(x))
	v.SetIvar("@y", Int(y))
	return v
}

type testRegistry map[string]Class

func (r testRegistry) Resolve(name string) (Class, error) {
	c, ok := r[name]
	if !ok {
		return nil, errf(KindType, 0, "undefined class/module %s", name)
	}
	return c, nil
}

func TestObjectRoundTrip(t *testing.T) {
	p := &pointClass{name: "Point"}
	v := newPoint(3, 4)
	reg := testRegistry{"Point": p}

	b, err := DumpToBytes(v)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	got, err := LoadFromBytes(b, reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Kind() != KindObject || got.Class().Name() != "Point" {
		t.Fatalf("unexpected decoded value: %+v", got)
	}
	x, _ := got.Ivar("@x")
	y, _ := got.Ivar("@y")
	if x.Int() != 3 || y.Int() != 4 {
		t.Fatalf("want x=3 y=4, got x=%d y=%d", x.Int(), y.Int())
	}
}

// timestampClass implements the user-marshal protocol
// (marshal_dump/marshal_load): it serializes to a plain integer
// payload instead of its own ivars.
type timestampClass struct{ unix int64 }

func (t *timestampClass) Name() string { return "Timestamp" }
func (t *timestampClass) Allocate() (*Value, error) {
	return Object(t), nil
}
func (t *timestampClass) MarshalDump(v *Value) (*Value, error) {
	return Int(t.unix), nil
}
func (t *timestampClass) MarshalLoad(v *Value, payload *Value) error {
	v.SetIvar("@unix", payload)
	return nil
}

func TestMarshalDumpLoadHook(t *testing.T) {
	tc := &timestampClass{unix: 1700000000}
	v := Object(tc)
	reg := testRegistry{"Timestamp": tc}

	b, err := DumpToBytes(v)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	got, err := LoadFromBytes(b, reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	unix, ok := got.Ivar("@unix")
	if !ok || unix.Int() != 1700000000 {
		t.Fatalf("marshal_load did not receive the dumped payload: %+v", got)
	}
}

// opaqueClass implements the user-dump protocol (_dump/_load): it
// serializes to raw bytes with no recursive structure at all.
type opaqueClass struct{ tag byte }

func (o *opaqueClass) Name() string { return "Opaque" }
func (o *opaqueClass) Allocate() (*Value, error) {
	return Object(o), nil
}
func (o *opaqueClass) Dump(v *Value, depthLimit int) ([]byte, error) {
	return []byte{o.tag}, nil
}
func (o *opaqueClass) Load(data []byte) (*Value, error) {
	v := Object(o)
	v.SetIvar("@tag", Int(int64(data[0])))
	return v, nil
}

func TestUserDumpLoadHook(t *testing.T) {
	oc := &opaqueClass{tag: 42}
	v := Object(oc)
	reg := testRegistry{"Opaque": oc}

	b, err := DumpToBytes(v)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	got, err := LoadFromBytes(b, reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tag, ok := got.Ivar("@tag")
	if !ok || tag.Int() != 42 {
		t.Fatalf("_load did not reconstruct the dumped byte: %+v", got)
	}
}

// dataClass implements the data-object protocol (_dump_data/_load_data).
type dataClass struct{}

func (dataClass) Name() string             { return "Blob" }
func (dataClass) Allocate() (*Value, error) { return Data(dataClass{}, Nil()), nil }
func (dataClass) DumpData(v *Value) (*Value, error) {
	return StringFrom("payload"), nil
}
func (dataClass) LoadData(v *Value, payload *Value) error {
	v.SetIvar("@payload", payload)
	return nil
}

func TestDataDumpLoadHook(t *testing.T) {
	dc := dataClass{}
	v := Data(dc, Nil())
	reg := testRegistry{"Blob": dc}

	b, err := DumpToBytes(v)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	got, err := LoadFromBytes(b, reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	payload, ok := got.Ivar("@payload")
	if !ok || string(payload.Bytes()) != "payload" {
		t.Fatalf("_load_data did not run: %+v", got)
	}
}

// reentrantDumper calls Dump on the same Encoder from inside its own
// MarshalDump hook, which must fail rather than corrupt the
// in-progress intern tables.
type reentrantDumper struct {
	enc *Encoder
}

func (r *reentrantDumper) Name() string               { return "Reentrant" }
func (r *reentrantDumper) Allocate() (*Value, error)   { return Object(r), nil }
func (r *reentrantDumper) MarshalDump(v *Value) (*Value, error) {
	err := r.enc.Dump(Nil())
	return nil, err
}

func TestEncoderRejectsReentry(t *testing.T) {
	var buf []byte
	w := func(src []byte, dest any, position int64) (int64, error) {
		buf = append(buf, src...)
		return int64(len(src)), nil
	}
	enc := NewEncoder(w, nil, 0)
	rd := &reentrantDumper{enc: enc}
	err := enc.Dump(Object(rd))
	if err == nil {
		t.Fatal("expected reentry error")
	}
}

func TestStructRoundTrip(t *testing.T) {
	sc := &testStructClass{name: "Point2D", members: []string{"x", "y"}}
	v := Struct(sc, Int(5), Int(6))
	reg := testRegistry{"Point2D": sc}

	b, err := DumpToBytes(v)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	got, err := LoadFromBytes(b, reg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !Equal(v, got) {
		t.Fatalf("struct round trip mismatch")
	}
}

func TestStructMemberMismatchRejected(t *testing.T) {
	writer := &testStructClass{name: "A", members: []string{"x", "y"}}
	reader := &testStructClass{name: "A", members: []string{"x", "z"}}
	v := Struct(writer, Int(1), Int(2))
	reg := testRegistry{"A": reader}

	b, err := DumpToBytes(v)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if _, err := LoadFromBytes(b, reg); err == nil {
		t.Fatal("expected struct member mismatch error")
	}
}

type testStructClass struct {
	name    string
	members []string
}

func (s *testStructClass) Name() string      { return s.name }
func (s *testStructClass) Members() []string { return s.members }
func (s *testStructClass) Allocate() (*Value, error) {
	vals := make([]*Value, len(s.members))
	for i := range vals {
		vals[i] = Nil()
	}
	return Struct(s, vals...), nil
}
