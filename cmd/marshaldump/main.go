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

// Command marshaldump is a small diagnostic tool for the marshal
// codec: it dumps a handful of canned demo values to a stream, or
// loads and pretty-prints a marshal stream from a file or stdin,
// mirroring the single-binary, flag-driven shape of cmd/dump.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/LanzaSchneider/mruby-marshal-go/marshal"
	"github.com/LanzaSchneider/mruby-marshal-go/marshal/iosink"
	"github.com/LanzaSchneider/mruby-marshal-go/marshal/registry"
)

func main() {
	var (
		mode     = flag.String("mode", "load", "operation: dump or load")
		out      = flag.String("o", "", "output file (dump) or - for stdout (default stdout)")
		in       = flag.String("i", "", "input file (load); default stdin")
		sample   = flag.String("sample", "greeting", "demo value to dump: nil, bool, int, float, string, array, hash, cycle, greeting")
		compress = flag.String("compress", "none", "stream compression: none, zstd, s2")
		sign     = flag.Bool("sign", false, "print a blake2b digest of the stream alongside the output")
		depth    = flag.Int("depth", marshal.DefaultDepthLimit, "maximum recursion depth")
	)
	flag.Parse()

	runID := uuid.New()
	logger := log.New(os.Stderr, fmt.Sprintf("marshaldump[%s] ", runID), log.LstdFlags)

	var err error
	switch *mode {
	case "dump":
		err = runDump(*sample, *out, iosink.Algo(*compress), *sign, *depth, logger)
	case "load":
		err = runLoad(*in, iosink.Algo(*compress), *sign, logger)
	default:
		err = fmt.Errorf("unknown -mode %q (want dump or load)", *mode)
	}
	if err != nil {
		logger.Fatalf("%v", err)
	}
}

func runDump(sample, out string, algo iosink.Algo, sign bool, depth int, logger *log.Logger) error {
	v, err := sampleValue(sample)
	if err != nil {
		return err
	}

	w, closeFn, err := openOutput(out)
	if err != nil {
		return err
	}
	defer closeFn()

	cw, err := iosink.CompressWriter(w, algo)
	if err != nil {
		return err
	}

	var sig *iosink.SigningWriter
	var dest io.Writer = cw
	if sign {
		sig, err = iosink.NewSigningWriter(cw, nil)
		if err != nil {
			return err
		}
		dest = sig
	}

	if err := marshal.DumpToStream(v, dest, depth); err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("dump: closing compressor: %w", err)
	}
	if sign {
		logger.Printf("stream digest: %x", sig.Sum())
	}
	return nil
}

func runLoad(in string, algo iosink.Algo, sign bool, logger *log.Logger) error {
	r, closeFn, err := openInput(in)
	if err != nil {
		return err
	}
	defer closeFn()

	dr, err := iosink.DecompressReader(r, algo)
	if err != nil {
		return err
	}

	var sig *iosink.SigningReader
	var src io.Reader = dr
	if sign {
		sig, err = iosink.NewSigningReader(dr, nil)
		if err != nil {
			return err
		}
		src = sig
	}

	reg := demoRegistry()
	v, err := marshal.LoadFromStream(src, reg)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if sign {
		logger.Printf("stream digest: %x", sig.Sum())
	}
	fmt.Println(inspect(v, 0, map[*marshal.Value]bool{}))
	return nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, f.Close, nil
}

func openInput(path string) (io.Reader, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdin, func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return f, f.Close, nil
}

// demoRegistry registers the same sample classes sampleValue can
// produce, so a stream dumped with -sample=greeting can round-trip
// back through -mode=load.
func demoRegistry() *registry.Table {
	t := registry.New()
	t.Register(registry.NewStructDef("Point", "x", "y"))
	return t
}

func sampleValue(name string) (*marshal.Value, error) {
	switch name {
	case "nil":
		return marshal.Nil(), nil
	case "bool":
		return marshal.Bool(true), nil
	case "int":
		return marshal.Int(42), nil
	case "float":
		return marshal.Float(3.25), nil
	case "string":
		return marshal.StringFrom("hello"), nil
	case "array":
		return marshal.Array(marshal.Int(1), marshal.Int(2), marshal.Int(3)), nil
	case "hash":
		h := marshal.Hash()
		h.HashSet(marshal.Symbol("a"), marshal.Int(1))
		h.HashSet(marshal.Symbol("b"), marshal.Int(2))
		return h, nil
	case "cycle":
		arr := marshal.Array(marshal.Nil())
		arr.Elems()[0] = arr
		return arr, nil
	case "greeting":
		reg := demoRegistry()
		pc, err := reg.Resolve("Point")
		if err != nil {
			return nil, err
		}
		p := pc.Allocate
		pv, err := p()
		if err != nil {
			return nil, err
		}
		sc := pv.StructVals()
		sc[0] = marshal.Int(1)
		sc[1] = marshal.Int(2)
		return pv, nil
	default:
		return nil, fmt.Errorf("unknown -sample %q", name)
	}
}

// inspect renders v as a compact Go-ish literal for quick manual
// review; it is intentionally not a serialization format of its own.
func inspect(v *marshal.Value, depth int, seen map[*marshal.Value]bool) string {
	if depth > 2*marshal.DefaultDepthLimit {
		return "..."
	}
	switch v.Kind() {
	case marshal.KindNil:
		return "nil"
	case marshal.KindBool:
		return fmt.Sprintf("%t", v.Bool())
	case marshal.KindInt:
		return fmt.Sprintf("%d", v.Int())
	case marshal.KindFloat:
		return fmt.Sprintf("%g", v.Float())
	case marshal.KindSymbol:
		return ":" + v.Symbol()
	case marshal.KindString:
		return fmt.Sprintf("%q", string(v.Bytes()))
	case marshal.KindArray:
		if seen[v] {
			return "[...self...]"
		}
		seen[v] = true
		parts := make([]string, len(v.Elems()))
		for i, e := range v.Elems() {
			parts[i] = inspect(e, depth+1, seen)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case marshal.KindHash:
		if seen[v] {
			return "{...self...}"
		}
		seen[v] = true
		parts := make([]string, v.HashLen())
		for i := 0; i < v.HashLen(); i++ {
			k, val := v.HashAt(i)
			parts[i] = inspect(k, depth+1, seen) + " => " + inspect(val, depth+1, seen)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case marshal.KindStruct:
		if seen[v] {
			return "#<...self...>"
		}
		seen[v] = true
		parts := make([]string, len(v.StructVals()))
		for i, e := range v.StructVals() {
			parts[i] = inspect(e, depth+1, seen)
		}
		return fmt.Sprintf("#<struct %s %s>", v.Class().Name(), strings.Join(parts, ", "))
	case marshal.KindObject:
		return fmt.Sprintf("#<%s>", v.Class().Name())
	case marshal.KindData:
		return fmt.Sprintf("#<%s data>", v.Class().Name())
	case marshal.KindClass:
		return "class " + v.Class().Name()
	case marshal.KindModule:
		return "module " + v.Class().Name()
	default:
		return "?"
	}
}
