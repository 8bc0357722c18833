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

// Package marshal implements a binary object serializer and
// deserializer bit-compatible with the mruby/Ruby Marshal format
// (major version 4, minor version 8).
package marshal

// Kind discriminates the closed set of runtime value shapes this
// package can dump and load. Dispatch on Kind is a switch over this
// closed set rather than a type assertion on interface{}; the
// compiler does not check that a switch covers every Kind, so a new
// Kind needs its cases added by hand.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindSymbol
	KindString
	KindArray
	KindHash
	KindClass
	KindModule
	KindStruct
	KindObject
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindSymbol:
		return "symbol"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindHash:
		return "hash"
	case KindClass:
		return "class"
	case KindModule:
		return "module"
	case KindStruct:
		return "struct"
	case KindObject:
		return "object"
	case KindData:
		return "data"
	default:
		return "invalid"
	}
}

// Value is a runtime value from the host language: a tagged union
// of nil, true/false, a small integer, a float, a symbol, a byte
// string, an array, an insertion-ordered hash, a class/module
// reference, a struct, a plain object (class + named ivars), or an
// opaque data object tied to a native class.
//
// Composite values (everything but nil/bool/int/symbol) are always
// passed around as *Value: two references to the same *Value are
// the same object, which is exactly the identity the object intern
// table keys on. Never copy a *Value by dereferencing it — construct
// a fresh one with the constructor functions (Nil, Int, Array, ...)
// instead.
type Value struct {
	kind Kind

	b   bool
	i   int64
	f   float64
	sym string
	str []byte

	arr []*Value

	hashKeys []*Value
	hashVals []*Value

	// class is the class/module this value denotes (KindClass,
	// KindModule) or the class that owns this instance
	// (KindStruct, KindObject, KindData).
	class Class

	// ivarNames/ivarVals carry the instance-variable block that
	// may be attached to ANY value on the wire (the 'I' tag wraps
	// it), not just KindObject. KindObject always carries one;
	// other kinds carry one only when the host object actually had
	// extra ivars set on it.
	ivarNames []string
	ivarVals  []*Value

	// structVals holds KindStruct's positional member values, in
	// the same order as class.Members().
	structVals []*Value

	// data holds the KindData payload passed to Data. The encoder
	// does not read it (it encodes the result of
	// DataDumper.DumpData) and the decoder does not set it (the
	// decoded payload goes to DataLoader.LoadData).
	data *Value
}

func Nil() *Value                  { return &Value{kind: KindNil} }
func Bool(b bool) *Value           { return &Value{kind: KindBool, b: b} }
func Int(i int64) *Value           { return &Value{kind: KindInt, i: i} }
func Float(f float64) *Value       { return &Value{kind: KindFloat, f: f} }
func Symbol(name string) *Value    { return &Value{kind: KindSymbol, sym: name} }
func String(s []byte) *Value       { return &Value{kind: KindString, str: s} }
func StringFrom(s string) *Value   { return &Value{kind: KindString, str: []byte(s)} }
func Array(elems ...*Value) *Value { return &Value{kind: KindArray, arr: elems} }

func Hash() *Value { return &Value{kind: KindHash} }

func (v *Value) HashSet(key, val *Value) {
	v.hashKeys = append(v.hashKeys, key)
	v.hashVals = append(v.hashVals, val)
}

func ClassValue(c Class) *Value  { return &Value{kind: KindClass, class: c} }
func ModuleValue(c Class) *Value { return &Value{kind: KindModule, class: c} }

func Struct(c Class, members ...*Value) *Value {
	return &Value{kind: KindStruct, class: c, structVals: members}
}

func Object(c Class) *Value { return &Value{kind: KindObject, class: c} }

func Data(c Class, payload *Value) *Value {
	return &Value{kind: KindData, class: c, data: payload}
}

func (v *Value) Kind() Kind   { return v.kind }
func (v *Value) Bool() bool   { return v.b }
func (v *Value) Int() int64   { return v.i }
func (v *Value) Float() float64 { return v.f }
func (v *Value) Symbol() string { return v.sym }
func (v *Value) Bytes() []byte  { return v.str }
func (v *Value) Elems() []*Value { return v.arr }
func (v *Value) Class() Class    { return v.class }
func (v *Value) StructVals() []*Value { return v.structVals }
func (v *Value) DataPayload() *Value  { return v.data }

func (v *Value) HashLen() int { return len(v.hashKeys) }
func (v *Value) HashAt(i int) (key, val *Value) {
	return v.hashKeys[i], v.hashVals[i]
}

// SetIvar attaches an instance variable to any value. Used both for
// KindObject's own ivars and for the "extra ivars hung off a
// built-in value" case the 'I' wrapper tag exists for.
func (v *Value) SetIvar(name string, val *Value) {
	for i, n := range v.ivarNames {
		if n == name {
			v.ivarVals[i] = val
			return
		}
	}
	v.ivarNames = append(v.ivarNames, name)
	v.ivarVals = append(v.ivarVals, val)
}

func (v *Value) Ivar(name string) (*Value, bool) {
	for i, n := range v.ivarNames {
		if n == name {
			return v.ivarVals[i], true
		}
	}
	return nil, false
}

func (v *Value) IvarLen() int { return len(v.ivarNames) }
func (v *Value) IvarAt(i int) (name string, val *Value) {
	return v.ivarNames[i], v.ivarVals[i]
}

// isImmediate reports whether v never occupies an object intern
// slot (invariant 4 in spec.md §3): nil, booleans, fixnums, and
// symbols (symbols use the separate symbol table).
func (v *Value) isImmediate() bool {
	switch v.kind {
	case KindNil, KindBool, KindInt, KindSymbol:
		return true
	default:
		return false
	}
}

// Equal reports whether a and b are structurally equal: same kind,
// same leaf payload, and (for composites) recursively equal
// children, ignoring identity. Cyclic values are handled via a
// visited-pair set so Equal terminates on self-referential graphs.
func Equal(a, b *Value) bool {
	return equalRec(a, b, map[[2]*Value]bool{})
}

func equalRec(a, b *Value, seen map[[2]*Value]bool) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.kind != b.kind {
		return false
	}
	key := [2]*Value{a, b}
	if seen[key] {
		return true
	}
	seen[key] = true
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f || (a.f != a.f && b.f != b.f) // NaN == NaN for round-trip purposes
	case KindSymbol:
		return a.sym == b.sym
	case KindString:
		return string(a.str) == string(b.str) && ivarsEqual(a, b, seen)
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !equalRec(a.arr[i], b.arr[i], seen) {
				return false
			}
		}
		return true
	case KindHash:
		if len(a.hashKeys) != len(b.hashKeys) {
			return false
		}
		for i := range a.hashKeys {
			if !equalRec(a.hashKeys[i], b.hashKeys[i], seen) ||
				!equalRec(a.hashVals[i], b.hashVals[i], seen) {
				return false
			}
		}
		return true
	case KindClass, KindModule:
		return a.class != nil && b.class != nil && a.class.Name() == b.class.Name()
	case KindStruct:
		if a.class.Name() != b.class.Name() || len(a.structVals) != len(b.structVals) {
			return false
		}
		for i := range a.structVals {
			if !equalRec(a.structVals[i], b.structVals[i], seen) {
				return false
			}
		}
		return true
	case KindObject:
		return a.class.Name() == b.class.Name() && ivarsEqual(a, b, seen)
	case KindData:
		return a.class.Name() == b.class.Name() && equalRec(a.data, b.data, seen)
	default:
		return false
	}
}

func ivarsEqual(a, b *Value, seen map[[2]*Value]bool) bool {
	if len(a.ivarNames) != len(b.ivarNames) {
		return false
	}
	for i, n := range a.ivarNames {
		bv, ok := b.Ivar(n)
		if !ok || !equalRec(a.ivarVals[i], bv, seen) {
			return false
		}
	}
	return true
}
