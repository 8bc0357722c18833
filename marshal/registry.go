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

// Class is the host runtime's handle on a class or module. It is
// the external collaborator spec.md §6 calls the "class & symbol
// registry interface": the codec only ever needs a name and an
// allocation strategy from it, and optionally asks (via the
// capability interfaces below, looked up with a type assertion) for
// user-hook behavior. This mirrors the reflection-free dispatch
// ion/marshal.go uses: a cached lookup table keyed by identity
// rather than a dynamic "does it respond to" runtime query.
type Class interface {
	// Name is the fully-qualified, dotted class/module path as it
	// appears on the wire (w_class/r_unique in the reference dump.c
	// and load.c).
	Name() string

	// Allocate returns a freshly allocated, zero-valued instance of
	// this class, used by the decoder before it has read any of
	// the instance's contents (obj_alloc_by_path in load.c).
	Allocate() (*Value, error)
}

// StructClass is implemented by a Class that backs mruby/Ruby
// Struct, in declaration order. The decoder compares this list
// against the symbols actually read from the stream, one-for-one,
// failing with "not compatible" on any mismatch (see the TYPE_STRUCT
// case in load.c).
type StructClass interface {
	Class
	Members() []string
}

// MarshalDumper is the user-marshal protocol's dump side
// (marshal_dump): a class that implements it replaces itself with
// another Value during Dump, taking priority over every other
// dispatch rule except an existing back-reference.
type MarshalDumper interface {
	MarshalDump(v *Value) (*Value, error)
}

// MarshalLoader is the user-marshal protocol's load side
// (marshal_load): invoked with the recursively-decoded payload
// after the instance has already been interned.
type MarshalLoader interface {
	MarshalLoad(v *Value, payload *Value) error
}

// Dumper is the user-dump protocol's dump side (_dump): a class that
// implements it serializes itself to an opaque byte string, given
// the remaining recursion budget.
type Dumper interface {
	Dump(v *Value, depthLimit int) ([]byte, error)
}

// Loader is the user-dump protocol's load side, a class-level _load
// hook that turns the opaque bytes back into a Value.
type Loader interface {
	Class
	Load(data []byte) (*Value, error)
}

// DataDumper is the data-object protocol's dump side (_dump_data):
// it returns a Value standing in for this object's native payload,
// which is then marshaled recursively like any other value.
type DataDumper interface {
	DumpData(v *Value) (*Value, error)
}

// DataLoader is the data-object protocol's load side (_load_data),
// invoked on an already-allocated-and-interned instance with the
// recursively decoded payload.
type DataLoader interface {
	LoadData(v *Value, payload *Value) error
}

// Registry resolves class/module names to Class handles. It is the
// other half of
// spec.md §6's registry collaborator; a codec-internal default is
// not provided because name resolution is inherently host-specific
// (package marshal/registry ships an in-process implementation
// suitable for tests and the CLI).
type Registry interface {
	// Resolve looks up a class or module by its fully-qualified
	// dotted name, returning a non-nil error if nothing is
	// registered under it; the decoder reports any such error as a
	// KindType error ("undefined class/module <name>").
	Resolve(name string) (Class, error)
}
