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

// Package registry is the default, in-process host-class registry:
// a name-keyed table of marshal.Class handles, the same shape as
// ion/marshal.go's structEncoders table but keyed by class name
// instead of reflect.Type, since the codec has no Go type to reflect
// on the decode side — only the name that came off the wire.
package registry

import (
	"fmt"
	"sync"

	"github.com/LanzaSchneider/mruby-marshal-go/marshal"
)

// Table is a mutable, concurrency-safe class registry.
type Table struct {
	mu      sync.RWMutex
	classes map[string]marshal.Class
}

// New returns an empty Table.
func New() *Table {
	return &Table{classes: make(map[string]marshal.Class)}
}

// Register adds c under its own Name(), overwriting any previous
// registration for that name.
func (t *Table) Register(c marshal.Class) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.classes[c.Name()] = c
}

// Resolve implements marshal.Registry.
func (t *Table) Resolve(name string) (marshal.Class, error) {
	t.mu.RLock()
	c, ok := t.classes[name]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("undefined class/module %s", name)
	}
	return c, nil
}

// PlainClass is the bare-minimum Class implementation: a name plus
// an allocator returning an empty KindObject Value on each call,
// suitable for host types that carry no hooks at all (the common
// case r_object0's TYPE_OBJECT branch expects).
type PlainClass struct {
	ClassName string
}

// NewPlainClass returns a PlainClass for name. It is not added to
// any Table; call Table.Register for that.
func NewPlainClass(name string) *PlainClass {
	return &PlainClass{ClassName: name}
}

func (p *PlainClass) Name() string { return p.ClassName }

func (p *PlainClass) Allocate() (*marshal.Value, error) {
	return marshal.Object(p), nil
}

// StructDef is a Class implementation for mruby/Ruby Struct-backed
// values: it carries its member list in declaration order, which the
// decoder's tagStruct branch validates one-for-one against the wire.
type StructDef struct {
	ClassName  string
	MemberList []string
}

// NewStructDef returns a StructDef for name with the given members.
// It is not added to any Table; call Table.Register for that.
func NewStructDef(name string, members ...string) *StructDef {
	return &StructDef{ClassName: name, MemberList: members}
}

func (s *StructDef) Name() string      { return s.ClassName }
func (s *StructDef) Members() []string { return s.MemberList }

func (s *StructDef) Allocate() (*marshal.Value, error) {
	vals := make([]*marshal.Value, len(s.MemberList))
	for i := range vals {
		vals[i] = marshal.Nil()
	}
	return marshal.Struct(s, vals...), nil
}

// Responds reports whether c implements the named hook, the Go
// stand-in for the host's respond_to? query spec.md's Design Notes
// steer implementers away from (dispatch is a type assertion here,
// not a dynamic method lookup).
func Responds(c marshal.Class, hook string) bool {
	switch hook {
	case "marshal_dump":
		_, ok := c.(marshal.MarshalDumper)
		return ok
	case "marshal_load":
		_, ok := c.(marshal.MarshalLoader)
		return ok
	case "_dump":
		_, ok := c.(marshal.Dumper)
		return ok
	case "_load":
		_, ok := c.(marshal.Loader)
		return ok
	case "_dump_data":
		_, ok := c.(marshal.DataDumper)
		return ok
	case "_load_data":
		_, ok := c.(marshal.DataLoader)
		return ok
	default:
		return false
	}
}

// IdentityEqual reports whether a and b are the same allocated
// instance, the Go stand-in for mrb_obj_id comparison: since Value
// is always handled through a *Value pointer, pointer identity is
// sufficient and no separate id table is needed.
func IdentityEqual(a, b *marshal.Value) bool {
	return a == b
}
