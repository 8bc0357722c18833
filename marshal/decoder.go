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

// Reader is the low-level source callback: read up to len(dest)
// bytes from source at position into dest, returning the number of
// bytes actually read. Returning 0 with a nil error when more bytes
// were requested is treated as end-of-stream by this package.
type Reader func(source any, dest []byte, position int64) (int64, error)

// Decoder reads a tagged byte stream and reconstructs the Value
// graph it encodes. One Decoder owns its intern tables for exactly
// one top-level Load call.
type Decoder struct {
	r      Reader
	src    any
	pos    int64
	reg    Registry
	syms   *symDecTab
	objs   *objDecTab
	active bool

	currentHook string

	// Post, if set, is invoked on every materialized leaf and
	// composite value; its return value replaces the original
	// before interning visibility ends (r_leave in load.c).
	Post func(*Value) (*Value, error)
}

// NewDecoder returns a Decoder that reads through r from src,
// resolving class/module names against reg.
func NewDecoder(r Reader, src any, reg Registry) *Decoder {
	return &Decoder{r: r, src: src, reg: reg}
}

// Load reads the version prefix and one top-level tagged value.
func (d *Decoder) Load() (*Value, error) {
	if d.active {
		return nil, errf(KindRuntime, 0, "Marshal.load reentered at %s", d.currentHook)
	}
	d.active = true
	d.syms = &symDecTab{}
	d.objs = &objDecTab{}
	defer func() {
		d.active = false
		d.syms = nil
		d.objs = nil
	}()

	major, err := d.rByte()
	if err != nil {
		return nil, err
	}
	minor, err := d.rByte()
	if err != nil {
		return nil, err
	}
	if major != MajorVersion || minor > MinorVersion {
		return nil, errf(KindVersion, 0, "incompatible marshal file format (can't be read): stream version %d.%d, package version %d.%d", major, minor, MajorVersion, MinorVersion)
	}
	return d.decodeTag(nil)
}

func (d *Decoder) rByte() (byte, error) {
	var buf [1]byte
	n, err := d.r(d.src, buf[:], d.pos)
	if err != nil {
		return 0, wrapf(KindIO, 0, err, "marshal data too short")
	}
	if n == 0 {
		return 0, errf(KindIO, 0, "marshal data too short")
	}
	d.pos++
	return buf[0], nil
}

func (d *Decoder) rN(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	got, err := d.r(d.src, buf, d.pos)
	if err != nil {
		return nil, wrapf(KindIO, 0, err, "marshal data too short")
	}
	if int(got) < n {
		return nil, errf(KindIO, 0, "marshal data too short")
	}
	d.pos += int64(n)
	return buf, nil
}

func (d *Decoder) rVarint() (int64, error) {
	b, err := d.rByte()
	if err != nil {
		return 0, err
	}
	c := int8(b)
	if c == 0 {
		return 0, nil
	}
	if c > 0 {
		if 4 < c && c < 128 {
			return int64(c) - 5, nil
		}
		n := int(c)
		if n > 8 {
			return 0, errf(KindType, 0, "integer too big")
		}
		payload, err := d.rN(n)
		if err != nil {
			return 0, err
		}
		var x int64
		for i := 0; i < n; i++ {
			x |= int64(payload[i]) << (8 * i)
		}
		return x, nil
	}
	if c > -129 && c < -4 {
		return int64(c) + 5, nil
	}
	n := int(-c)
	if n > 8 {
		return 0, errf(KindType, 0, "integer too big")
	}
	payload, err := d.rN(n)
	if err != nil {
		return 0, err
	}
	x := int64(-1)
	for i := 0; i < n; i++ {
		x &^= int64(0xff) << (8 * i)
		x |= int64(payload[i]) << (8 * i)
	}
	return x, nil
}

func (d *Decoder) rBytes() ([]byte, error) {
	n, err := d.rVarint()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errf(KindFormat, 0, "negative length %d", n)
	}
	return d.rN(int(n))
}

// rSymbol reads one symbol occurrence: either a fresh 'symbol' tag
// or a 'symlink' back-reference. ivar-wrapped symbols (the mainstream
// encoding-marker convention) are tolerated for interop: the wrapper
// is unwrapped and its ivar pairs are discarded except that a bare
// 'E'/:encoding pair is the expected shape.
func (d *Decoder) rSymbol() (string, error) {
	tag, err := d.rByte()
	if err != nil {
		return "", err
	}
	switch tag {
	case tagIvar:
		name, err := d.rSymbol()
		if err != nil {
			return "", err
		}
		n, err := d.rVarint()
		if err != nil {
			return "", err
		}
		for i := int64(0); i < n; i++ {
			if _, err := d.rSymbol(); err != nil {
				return "", err
			}
			if _, err := d.decodeTag(nil); err != nil {
				return "", err
			}
		}
		return name, nil
	case tagSymbol:
		raw, err := d.rBytes()
		if err != nil {
			return "", err
		}
		name := string(raw)
		d.syms.push(name)
		return name, nil
	case tagSymlink:
		idx, err := d.rVarint()
		if err != nil {
			return "", err
		}
		name, ok := d.syms.at(idx)
		if !ok {
			return "", errf(KindFormat, tagSymlink, "bad symbol link")
		}
		return name, nil
	default:
		return "", errf(KindFormat, tag, "dump format error for symbol")
	}
}

func (d *Decoder) resolveClass(name string) (Class, error) {
	c, err := d.reg.Resolve(name)
	if err != nil {
		return nil, errf(KindType, 0, "undefined class/module %s", name)
	}
	return c, nil
}

// decodeTag reads one tag and dispatches, implementing spec.md
// §4.4's decode contract. extmod carries the modules named by
// enclosing 'e' (extended module) tags; each name must resolve, but
// the modules are not recorded on the decoded value.
func (d *Decoder) decodeTag(extmod []Class) (*Value, error) {
	tag, err := d.rByte()
	if err != nil {
		return nil, err
	}
	return d.decodeTagByte(tag, extmod)
}

func (d *Decoder) decodeTagByte(tag byte, extmod []Class) (*Value, error) {
	switch tag {
	case tagLink:
		idx, err := d.rVarint()
		if err != nil {
			return nil, err
		}
		v, ready := d.objs.at(idx)
		if !ready {
			// every composite branch reserves its slot and fills
			// it with the real pointer before recursing into its
			// children (that's how cycles survive the round trip),
			// so a link observed during a single depth-first decode
			// can only find an unready slot if the stream itself is
			// malformed.
			return nil, errf(KindFormat, tagLink, "dump format error (unlinked)")
		}
		return d.postprocess(v)

	case tagIvar:
		v, err := d.decodeTag(extmod)
		if err != nil {
			return nil, err
		}
		if err := d.readIvarBlock(v); err != nil {
			return nil, err
		}
		return v, nil

	case tagExtended:
		name, err := d.rSymbol()
		if err != nil {
			return nil, err
		}
		mod, err := d.resolveClass(name)
		if err != nil {
			return nil, err
		}
		v, err := d.decodeTag(append(extmod, mod))
		return v, err

	case tagUClass:
		name, err := d.rSymbol()
		if err != nil {
			return nil, err
		}
		c, err := d.resolveClass(name)
		if err != nil {
			return nil, err
		}
		v, err := d.decodeTag(extmod)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, errf(KindFormat, tagUClass, "dump format error (user class)")
		}
		if v.kind == KindObject || v.kind == KindClass || v.kind == KindModule {
			return nil, errf(KindFormat, tagUClass, "dump format error (user class)")
		}
		v.class = c
		return v, nil

	case tagNil:
		return d.postprocess(Nil())
	case tagTrue:
		return d.postprocess(Bool(true))
	case tagFalse:
		return d.postprocess(Bool(false))
	case tagFixnum:
		i, err := d.rVarint()
		if err != nil {
			return nil, err
		}
		return d.postprocess(Int(i))

	case tagFloat:
		raw, err := d.rBytes()
		if err != nil {
			return nil, err
		}
		f, err := parseFloatString(string(raw))
		if err != nil {
			return nil, err
		}
		v := Float(f)
		d.objs.push(v)
		return d.postprocess(v)

	case tagString:
		raw, err := d.rBytes()
		if err != nil {
			return nil, err
		}
		v := String(raw)
		d.objs.push(v)
		return d.postprocess(v)

	case tagArray:
		n, err := d.rVarint()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, errf(KindFormat, tagArray, "negative length %d", n)
		}
		v := &Value{kind: KindArray, arr: make([]*Value, 0, n)}
		d.objs.push(v)
		for i := int64(0); i < n; i++ {
			elem, err := d.decodeTag(nil)
			if err != nil {
				return nil, err
			}
			v.arr = append(v.arr, elem)
		}
		return d.postprocess(v)

	case tagHash, tagHashDef:
		if tag == tagHashDef {
			return nil, errf(KindType, tagHashDef, "can't load hash with default")
		}
		n, err := d.rVarint()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, errf(KindFormat, tagHash, "negative length %d", n)
		}
		v := &Value{kind: KindHash}
		d.objs.push(v)
		for i := int64(0); i < n; i++ {
			key, err := d.decodeTag(nil)
			if err != nil {
				return nil, err
			}
			val, err := d.decodeTag(nil)
			if err != nil {
				return nil, err
			}
			v.hashKeys = append(v.hashKeys, key)
			v.hashVals = append(v.hashVals, val)
		}
		return d.postprocess(v)

	case tagStruct:
		idx := d.objs.reserve()
		name, err := d.rSymbol()
		if err != nil {
			return nil, err
		}
		class, err := d.resolveClass(name)
		if err != nil {
			return nil, err
		}
		sc, ok := class.(StructClass)
		if !ok {
			return nil, errf(KindType, tagStruct, "class %s not a struct", name)
		}
		n, err := d.rVarint()
		if err != nil {
			return nil, err
		}
		members := sc.Members()
		if int64(len(members)) != n {
			return nil, errf(KindFormat, tagStruct, "struct %s not compatible (struct size differs)", name)
		}
		v := &Value{kind: KindStruct, class: class, structVals: make([]*Value, n)}
		d.objs.fill(idx, v)
		for i := int64(0); i < n; i++ {
			slot, err := d.rSymbol()
			if err != nil {
				return nil, err
			}
			if slot != members[i] {
				return nil, errf(KindFormat, tagStruct, "struct %s not compatible (:%s for :%s)", name, slot, members[i])
			}
			val, err := d.decodeTag(nil)
			if err != nil {
				return nil, err
			}
			v.structVals[i] = val
		}
		return d.postprocess(v)

	case tagUserDef:
		name, err := d.rSymbol()
		if err != nil {
			return nil, err
		}
		class, err := d.resolveClass(name)
		if err != nil {
			return nil, err
		}
		caps := capsFor(class)
		if caps.userLoader == nil {
			return nil, errf(KindType, tagUserDef, "class %s needs to have method `_load'", name)
		}
		data, err := d.rBytes()
		if err != nil {
			return nil, err
		}
		prevHook := d.currentHook
		d.currentHook = "_load"
		v, err := caps.userLoader.Load(data)
		d.currentHook = prevHook
		if err != nil {
			return nil, err
		}
		// opaque payload, cannot self-reference: intern after the
		// hook returns.
		d.objs.push(v)
		return d.postprocess(v)

	case tagUsrMarsh:
		name, err := d.rSymbol()
		if err != nil {
			return nil, err
		}
		class, err := d.resolveClass(name)
		if err != nil {
			return nil, err
		}
		v, err := class.Allocate()
		if err != nil {
			return nil, err
		}
		v.class = class
		idx := d.objs.reserve()
		d.objs.fill(idx, v)
		caps := capsFor(class)
		if caps.loader == nil {
			return nil, errf(KindType, tagUsrMarsh, "instance of %s needs to have method `marshal_load'", name)
		}
		payload, err := d.decodeTag(nil)
		if err != nil {
			return nil, err
		}
		prevHook := d.currentHook
		d.currentHook = "marshal_load"
		err = caps.loader.MarshalLoad(v, payload)
		d.currentHook = prevHook
		if err != nil {
			return nil, err
		}
		return d.postprocess(v)

	case tagObject:
		idx := d.objs.reserve()
		name, err := d.rSymbol()
		if err != nil {
			return nil, err
		}
		class, err := d.resolveClass(name)
		if err != nil {
			return nil, err
		}
		v, err := class.Allocate()
		if err != nil {
			return nil, err
		}
		v.kind = KindObject
		v.class = class
		d.objs.fill(idx, v)
		if err := d.readIvarBlock(v); err != nil {
			return nil, err
		}
		return d.postprocess(v)

	case tagData:
		name, err := d.rSymbol()
		if err != nil {
			return nil, err
		}
		class, err := d.resolveClass(name)
		if err != nil {
			return nil, err
		}
		v, err := class.Allocate()
		if err != nil {
			return nil, err
		}
		v.kind = KindData
		v.class = class
		d.objs.push(v)
		caps := capsFor(class)
		if caps.dataLoader == nil {
			return nil, errf(KindType, tagData, "class %s needs to have instance method `_load_data'", name)
		}
		payload, err := d.decodeTag(nil)
		if err != nil {
			return nil, err
		}
		prevHook := d.currentHook
		d.currentHook = "_load_data"
		err = caps.dataLoader.LoadData(v, payload)
		d.currentHook = prevHook
		if err != nil {
			return nil, err
		}
		return d.postprocess(v)

	case tagModOld:
		raw, err := d.rBytes()
		if err != nil {
			return nil, err
		}
		class, err := d.resolveClass(string(raw))
		if err != nil {
			return nil, err
		}
		v := ModuleValue(class)
		d.objs.push(v)
		return d.postprocess(v)

	case tagClass:
		raw, err := d.rBytes()
		if err != nil {
			return nil, err
		}
		class, err := d.resolveClass(string(raw))
		if err != nil {
			return nil, err
		}
		v := ClassValue(class)
		d.objs.push(v)
		return d.postprocess(v)

	case tagModule:
		raw, err := d.rBytes()
		if err != nil {
			return nil, err
		}
		class, err := d.resolveClass(string(raw))
		if err != nil {
			return nil, err
		}
		v := ModuleValue(class)
		d.objs.push(v)
		return d.postprocess(v)

	case tagSymbol, tagSymlink:
		name, err := d.rSymbolFromTag(tag)
		if err != nil {
			return nil, err
		}
		return d.postprocess(Symbol(name))

	case tagBignum:
		return nil, errf(KindNotImplemented, tagBignum, "bignum not implemented")

	default:
		return nil, errf(KindFormat, tag, "dump format error")
	}
}

// rSymbolFromTag continues symbol decoding after the tag byte has
// already been consumed by decodeTagByte's outer switch.
func (d *Decoder) rSymbolFromTag(tag byte) (string, error) {
	switch tag {
	case tagSymbol:
		raw, err := d.rBytes()
		if err != nil {
			return "", err
		}
		name := string(raw)
		d.syms.push(name)
		return name, nil
	case tagSymlink:
		idx, err := d.rVarint()
		if err != nil {
			return "", err
		}
		name, ok := d.syms.at(idx)
		if !ok {
			return "", errf(KindFormat, tagSymlink, "bad symbol link")
		}
		return name, nil
	}
	return "", errf(KindFormat, tag, "dump format error for symbol")
}

func (d *Decoder) readIvarBlock(v *Value) error {
	n, err := d.rVarint()
	if err != nil {
		return err
	}
	for i := int64(0); i < n; i++ {
		name, err := d.rSymbol()
		if err != nil {
			return err
		}
		val, err := d.decodeTag(nil)
		if err != nil {
			return err
		}
		v.SetIvar(name, val)
	}
	return nil
}

func (d *Decoder) postprocess(v *Value) (*Value, error) {
	if d.Post == nil || v == nil {
		return v, nil
	}
	prevHook := d.currentHook
	d.currentHook = "load_proc"
	out, err := d.Post(v)
	d.currentHook = prevHook
	return out, err
}

// LoadFromBytes decodes a value from b.
func LoadFromBytes(b []byte, reg Registry) (*Value, error) {
	r := func(src any, dest []byte, position int64) (int64, error) {
		buf := src.([]byte)
		if position >= int64(len(buf)) {
			return 0, nil
		}
		n := copy(dest, buf[position:])
		return int64(n), nil
	}
	dec := NewDecoder(r, b, reg)
	return dec.Load()
}

// LoadFromStream decodes a value read from r.
func LoadFromStream(r io.Reader, reg Registry) (*Value, error) {
	reader := func(source any, dest []byte, position int64) (int64, error) {
		in := source.(io.Reader)
		n, err := io.ReadFull(in, dest)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return int64(n), nil
		}
		return int64(n), err
	}
	dec := NewDecoder(reader, r, reg)
	return dec.Load()
}
