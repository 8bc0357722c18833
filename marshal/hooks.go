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

import "sync"

// capabilities records, for one Class, which optional hook
// interfaces it implements. Computed once per class and cached,
// the same way ion/marshal.go's structEncoders sync.Map memoizes a
// compiled encoder per reflect.Type instead of re-deriving it on
// every value of that type.
type capabilities struct {
	dumper       MarshalDumper
	loader       MarshalLoader
	userDumper   Dumper
	userLoader   Loader
	dataDumper   DataDumper
	dataLoader   DataLoader
	structClass  StructClass
}

var capCache sync.Map // class name -> *capabilities

func capsFor(c Class) *capabilities {
	name := c.Name()
	if v, ok := capCache.Load(name); ok {
		return v.(*capabilities)
	}
	caps := &capabilities{}
	if d, ok := c.(MarshalDumper); ok {
		caps.dumper = d
	}
	if l, ok := c.(MarshalLoader); ok {
		caps.loader = l
	}
	if d, ok := c.(Dumper); ok {
		caps.userDumper = d
	}
	if l, ok := c.(Loader); ok {
		caps.userLoader = l
	}
	if d, ok := c.(DataDumper); ok {
		caps.dataDumper = d
	}
	if l, ok := c.(DataLoader); ok {
		caps.dataLoader = l
	}
	if s, ok := c.(StructClass); ok {
		caps.structClass = s
	}
	actual, _ := capCache.LoadOrStore(name, caps)
	return actual.(*capabilities)
}
