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
	"math"
	"strconv"
	"strings"
)

// formatFloatString renders d the way w_float does in the reference
// dump.c: "inf"/"-inf"/"nan"/"0"/"-0" for the special cases,
// otherwise a %lf-style decimal with trailing zeros (and a trailing
// '.') trimmed.
func formatFloatString(d float64) string {
	switch {
	case math.IsInf(d, 1):
		return "inf"
	case math.IsInf(d, -1):
		return "-inf"
	case math.IsNaN(d):
		return "nan"
	case d == 0:
		if math.Signbit(d) {
			return "-0"
		}
		return "0"
	}
	s := strconv.FormatFloat(d, 'f', 6, 64)
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}

// parseFloatString is the inverse of formatFloatString, ported from
// the float branch of r_object0 in load.c.
func parseFloatString(s string) (float64, error) {
	switch s {
	case "nan":
		return math.NaN(), nil
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errf(KindFormat, tagFloat, "invalid float literal %q", s)
	}
	return f, nil
}
