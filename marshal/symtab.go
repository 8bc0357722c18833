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
	"github.com/dchest/siphash"
	"golang.org/x/exp/slices"
)

const symBucketBits = 4
const symBuckets = 1 << symBucketBits
const symBucketMask = symBuckets - 1

// symEncTab is the write-side symbol intern table: an ordered
// mapping from symbol name to a zero-based index, assigning the
// next index on first insertion (w_symbol in dump.c). It shadows
// the exact map lookup with a small sipHash-bucketed index, the
// same fan-out trick ion/zion's hash.go uses to spread symbols
// across 16 buckets before a linear scan, so that graphs with many
// thousands of distinct symbols don't pay for a full string compare
// against every previously-seen bucket collision when the common
// case is "this exact symbol was already interned".
type symEncTab struct {
	names   []string
	index   map[string]int
	buckets [symBuckets][]int // bucket -> indices into names, by first-seen order
}

func newSymEncTab() *symEncTab {
	return &symEncTab{index: make(map[string]int)}
}

func symBucket(name string) int {
	h := siphash.Hash(0, 0, []byte(name))
	return int(h & symBucketMask)
}

// lookup returns the interned index for name, or (0, false).
func (t *symEncTab) lookup(name string) (int, bool) {
	b := symBucket(name)
	if i := slices.IndexFunc(t.buckets[b], func(idx int) bool { return t.names[idx] == name }); i >= 0 {
		return t.buckets[b][i], true
	}
	// fall back to the exact map in case of a bucket miss due to a
	// hash collision class we didn't special-case; keeps the
	// accelerator purely additive, never a correctness dependency.
	idx, ok := t.index[name]
	return idx, ok
}

// intern returns (index, alreadyPresent).
func (t *symEncTab) intern(name string) (int, bool) {
	if idx, ok := t.lookup(name); ok {
		return idx, true
	}
	idx := len(t.names)
	t.names = append(t.names, name)
	t.index[name] = idx
	b := symBucket(name)
	t.buckets[b] = append(t.buckets[b], idx)
	return idx, false
}

// symDecTab is the read-side symbol intern table: an ordered vector
// of materialized symbol names, indexed positionally (r_symreal /
// r_symlink in load.c).
type symDecTab struct {
	names []string
}

func (t *symDecTab) push(name string) int {
	t.names = append(t.names, name)
	return len(t.names) - 1
}

func (t *symDecTab) at(idx int64) (string, bool) {
	if idx < 0 || idx >= int64(len(t.names)) {
		return "", false
	}
	return t.names[idx], true
}
