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

import "io"

// DefaultDepthLimit is the recursion depth budget a fresh Encoder
// uses when none is specified. Decoding applies no depth limit.
const DefaultDepthLimit = 100

// Writer is the low-level sink callback: write size bytes of src to
// dest at position, returning the number of bytes actually written.
// A short write (n < len(src)) aborts the dump with a KindIO error.
type Writer func(src []byte, dest any, position int64) (int64, error)

// Encoder walks a Value graph and emits the tagged byte stream
// described in spec.md §4.3. One Encoder owns its intern tables for
// exactly one top-level Dump call; a nested Dump on the same Encoder
// made while that call is in progress (from a hook) is reentry and is
// rejected. An Encoder is not safe for concurrent use.
type Encoder struct {
	w    Writer
	dest any
	pos  int64

	syms *symEncTab
	objs *objEncTab

	depthLimit int

	active      bool
	currentHook string
}

// NewEncoder returns an Encoder that writes through w to dest. A
// depthLimit of 0 uses DefaultDepthLimit.
func NewEncoder(w Writer, dest any, depthLimit int) *Encoder {
	if depthLimit == 0 {
		depthLimit = DefaultDepthLimit
	}
	return &Encoder{w: w, dest: dest, depthLimit: depthLimit}
}

// Dump writes the version prefix followed by the tagged encoding of
// v. Dump is not reentrant: a hook invoked during this call that
// calls Dump again on the same Encoder fails with a runtime error
// naming the hook, rather than corrupting the in-progress intern
// tables.
func (e *Encoder) Dump(v *Value) error {
	if e.active {
		return errf(KindRuntime, 0, "Marshal.dump reentered at %s", e.currentHook)
	}
	e.active = true
	e.syms = newSymEncTab()
	e.objs = newObjEncTab()
	defer func() {
		e.active = false
		e.syms = nil
		e.objs = nil
	}()

	if err := e.wByte(MajorVersion); err != nil {
		return err
	}
	if err := e.wByte(MinorVersion); err != nil {
		return err
	}
	return e.encodeValue(v, e.depthLimit)
}

func (e *Encoder) wByte(b byte) error {
	_, err := e.wRaw([]byte{b})
	return err
}

func (e *Encoder) wRaw(p []byte) (int64, error) {
	n, err := e.w(p, e.dest, e.pos)
	e.pos += n
	if err != nil {
		return n, err
	}
	if n < int64(len(p)) {
		return n, errf(KindIO, 0, "writer short-wrote %d of %d bytes", n, len(p))
	}
	return n, nil
}

func (e *Encoder) wVarint(x int64) error {
	buf := EncodeVarint(nil, x)
	_, err := e.wRaw(buf)
	return err
}

func (e *Encoder) wBytes(p []byte) error {
	if err := e.wVarint(int64(len(p))); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	_, err := e.wRaw(p)
	return err
}

func (e *Encoder) wTag(tag byte) error { return e.wByte(tag) }

// encodeValue implements the mandatory dispatch order from
// spec.md §4.3.
func (e *Encoder) encodeValue(v *Value, depth int) error {
	if v == nil {
		v = Nil()
	}

	// 1. back-reference check, first, to preserve sharing.
	if !v.isImmediate() {
		if idx, ok := e.objs.lookup(v); ok {
			if err := e.wTag(tagLink); err != nil {
				return err
			}
			return e.wVarint(int64(idx))
		}
	}

	// 2. immediate values.
	switch v.kind {
	case KindNil:
		return e.wTag(tagNil)
	case KindBool:
		if v.b {
			return e.wTag(tagTrue)
		}
		return e.wTag(tagFalse)
	case KindInt:
		if err := e.wTag(tagFixnum); err != nil {
			return err
		}
		return e.wVarint(v.i)
	case KindSymbol:
		return e.encodeSymbol(v.sym)
	}

	if depth == 0 {
		return errf(KindDepth, 0, "exceed depth limit")
	}
	depth--

	// 3 & 4. user hooks, only meaningful when a host class is attached.
	if v.class != nil {
		caps := capsFor(v.class)
		if caps.dumper != nil {
			return e.encodeUserMarshal(v, caps, depth)
		}
		if caps.userDumper != nil {
			return e.encodeUserDef(v, caps, depth)
		}
	}

	// 5. built-in dispatch; each inserts into the object table
	// before recursing into children.
	switch v.kind {
	case KindClass:
		e.objs.insert(v)
		if err := e.wTag(tagClass); err != nil {
			return err
		}
		return e.wBytes([]byte(v.class.Name()))
	case KindModule:
		e.objs.insert(v)
		if err := e.wTag(tagModule); err != nil {
			return err
		}
		return e.wBytes([]byte(v.class.Name()))
	case KindFloat:
		return e.encodeLeafWithIvars(v, func() error {
			e.objs.insert(v)
			if err := e.wTag(tagFloat); err != nil {
				return err
			}
			return e.wBytes(formatFloat(v.f))
		})
	case KindString:
		return e.encodeLeafWithIvars(v, func() error {
			e.objs.insert(v)
			if err := e.encodeUClass(v); err != nil {
				return err
			}
			if err := e.wTag(tagString); err != nil {
				return err
			}
			return e.wBytes(v.str)
		})
	case KindArray:
		return e.encodeLeafWithIvars(v, func() error {
			e.objs.insert(v)
			if err := e.encodeUClass(v); err != nil {
				return err
			}
			if err := e.wTag(tagArray); err != nil {
				return err
			}
			if err := e.wVarint(int64(len(v.arr))); err != nil {
				return err
			}
			origLen := len(v.arr)
			for _, elem := range v.arr {
				if len(v.arr) != origLen {
					return errf(KindRuntime, 0, "array modified during dump")
				}
				if err := e.encodeValue(elem, depth); err != nil {
					return err
				}
			}
			return nil
		})
	case KindHash:
		return e.encodeLeafWithIvars(v, func() error {
			e.objs.insert(v)
			if err := e.encodeUClass(v); err != nil {
				return err
			}
			if err := e.wTag(tagHash); err != nil {
				return err
			}
			if err := e.wVarint(int64(len(v.hashKeys))); err != nil {
				return err
			}
			origLen := len(v.hashKeys)
			for i := range v.hashKeys {
				if len(v.hashKeys) != origLen {
					return errf(KindRuntime, 0, "container modified during dump")
				}
				if err := e.encodeValue(v.hashKeys[i], depth); err != nil {
					return err
				}
				if err := e.encodeValue(v.hashVals[i], depth); err != nil {
					return err
				}
			}
			return nil
		})
	case KindStruct:
		e.objs.insert(v)
		if err := e.wTag(tagStruct); err != nil {
			return err
		}
		if err := e.encodeSymbol(v.class.Name()); err != nil {
			return err
		}
		if err := e.wVarint(int64(len(v.structVals))); err != nil {
			return err
		}
		sc, ok := v.class.(StructClass)
		if !ok {
			return errf(KindType, 0, "class %s not compatible (struct size differs)", v.class.Name())
		}
		members := sc.Members()
		for i, val := range v.structVals {
			if err := e.encodeSymbol(members[i]); err != nil {
				return err
			}
			if err := e.encodeValue(val, depth); err != nil {
				return err
			}
		}
		return nil
	case KindObject:
		e.objs.insert(v)
		if err := e.wTag(tagObject); err != nil {
			return err
		}
		if err := e.encodeSymbol(v.class.Name()); err != nil {
			return err
		}
		return e.encodeIvarBlock(v, depth)
	case KindData:
		caps := capsFor(v.class)
		if caps.dataDumper == nil {
			return errf(KindType, 0, "no _dump_data is defined for class %s", v.class.Name())
		}
		e.objs.insert(v)
		if err := e.wTag(tagData); err != nil {
			return err
		}
		if err := e.encodeSymbol(v.class.Name()); err != nil {
			return err
		}
		payload, err := caps.dataDumper.DumpData(v)
		if err != nil {
			return err
		}
		return e.encodeValue(payload, depth)
	default:
		return errf(KindType, 0, "can't dump %s", v.kind)
	}
}

// encodeLeafWithIvars wraps body (which writes the value's normal
// tag and payload) with a leading 'I' tag and a trailing ivar block
// when v carries extra instance variables, per the ivar tag's
// definition in spec.md's tag table.
func (e *Encoder) encodeLeafWithIvars(v *Value, body func() error) error {
	hasIvars := len(v.ivarNames) > 0
	if hasIvars {
		if err := e.wTag(tagIvar); err != nil {
			return err
		}
	}
	if err := body(); err != nil {
		return err
	}
	if hasIvars {
		return e.writeIvarPairs(v)
	}
	return nil
}

// encodeIvarBlock writes a plain object's unconditional, unwrapped
// instance-variable block (no leading 'I' tag).
func (e *Encoder) encodeIvarBlock(v *Value, depth int) error {
	if err := e.wVarint(int64(len(v.ivarNames))); err != nil {
		return err
	}
	for i, name := range v.ivarNames {
		if err := e.encodeSymbol(name); err != nil {
			return err
		}
		if err := e.encodeValue(v.ivarVals[i], depth); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) writeIvarPairs(v *Value) error {
	return e.encodeIvarBlock(v, e.depthLimit)
}

// encodeUClass emits the optional 'C' tag + class name when v's
// class differs from the built-in default for its kind (w_uclass in
// dump.c). v.class == nil means "use the default", so nothing is
// emitted.
func (e *Encoder) encodeUClass(v *Value) error {
	if v.class == nil {
		return nil
	}
	if err := e.wTag(tagUClass); err != nil {
		return err
	}
	return e.encodeSymbol(v.class.Name())
}

func (e *Encoder) encodeSymbol(name string) error {
	idx, existed := e.syms.intern(name)
	if existed {
		if err := e.wTag(tagSymlink); err != nil {
			return err
		}
		return e.wVarint(int64(idx))
	}
	if err := e.wTag(tagSymbol); err != nil {
		return err
	}
	return e.wBytes([]byte(name))
}

func (e *Encoder) encodeUserMarshal(v *Value, caps *capabilities, depth int) error {
	e.objs.insert(v)
	prevHook := e.currentHook
	e.currentHook = "marshal_dump"
	replacement, err := caps.dumper.MarshalDump(v)
	e.currentHook = prevHook
	if err != nil {
		return err
	}
	hasIvars := len(v.ivarNames) > 0
	if hasIvars {
		if err := e.wTag(tagIvar); err != nil {
			return err
		}
	}
	if err := e.wTag(tagUsrMarsh); err != nil {
		return err
	}
	if err := e.encodeSymbol(v.class.Name()); err != nil {
		return err
	}
	if err := e.encodeValue(replacement, depth); err != nil {
		return err
	}
	if hasIvars {
		return e.writeIvarPairs(v)
	}
	return nil
}

func (e *Encoder) encodeUserDef(v *Value, caps *capabilities, depth int) error {
	prevHook := e.currentHook
	e.currentHook = "_dump"
	data, err := caps.userDumper.Dump(v, depth)
	e.currentHook = prevHook
	if err != nil {
		return err
	}
	hasIvars := len(v.ivarNames) > 0
	if hasIvars {
		if err := e.wTag(tagIvar); err != nil {
			return err
		}
	}
	if err := e.wTag(tagUserDef); err != nil {
		return err
	}
	if err := e.encodeSymbol(v.class.Name()); err != nil {
		return err
	}
	if err := e.wBytes(data); err != nil {
		return err
	}
	if hasIvars {
		if err := e.writeIvarPairs(v); err != nil {
			return err
		}
	}
	// the user-dump payload is opaque bytes and cannot self-
	// reference, so it is only safe to intern after writing.
	e.objs.insert(v)
	return nil
}

// formatFloat renders d the way w_float does in dump.c: "inf"/"-inf"/
// "nan"/"0"/"-0" for the special cases, otherwise a %lf-style decimal
// with trailing zeros (and a trailing '.') trimmed.
func formatFloat(d float64) []byte {
	return []byte(formatFloatString(d))
}

// DumpToBytes encodes v and returns the resulting byte stream.
func DumpToBytes(v *Value, depthLimit ...int) ([]byte, error) {
	limit := DefaultDepthLimit
	if len(depthLimit) > 0 {
		limit = depthLimit[0]
	}
	var buf []byte
	w := func(src []byte, dest any, position int64) (int64, error) {
		b := dest.(*[]byte)
		*b = append(*b, src...)
		return int64(len(src)), nil
	}
	enc := NewEncoder(w, &buf, limit)
	if err := enc.Dump(v); err != nil {
		return nil, err
	}
	return buf, nil
}

// DumpToStream encodes v and writes it to w.
func DumpToStream(v *Value, w io.Writer, depthLimit ...int) error {
	limit := DefaultDepthLimit
	if len(depthLimit) > 0 {
		limit = depthLimit[0]
	}
	writer := func(src []byte, dest any, position int64) (int64, error) {
		out := dest.(io.Writer)
		n, err := out.Write(src)
		return int64(n), err
	}
	enc := NewEncoder(writer, w, limit)
	return enc.Dump(v)
}
