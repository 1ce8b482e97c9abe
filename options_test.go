/*
Copyright © 2019 the boutload authors.
This file is part of boutload.

boutload is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

boutload is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with boutload.  If not, see <http://www.gnu.org/licenses/>.
*/

package boutload

import (
	"strings"
	"testing"
)

func TestParseOptions(t *testing.T) {
	const input = `
# Global settings
nout = 50       # number of output steps
timestep = 0.1

[mesh]
nx = 68
ny = 32         ; trailing comment

[mesh:ddx]
first = C2

[solver]
type = cvode
`
	o, err := parseOptions(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}

	if o["nout"] != "50" {
		t.Errorf("nout = %q; want 50", o["nout"])
	}
	if o["timestep"] != "0.1" {
		t.Errorf("timestep = %q; want 0.1", o["timestep"])
	}
	mesh := o.Section("mesh")
	if mesh == nil {
		t.Fatal("mesh section is missing")
	}
	if mesh["nx"] != "68" || mesh["ny"] != "32" {
		t.Errorf("mesh = %v; want nx=68 ny=32", mesh)
	}
	ddx := mesh.Section("ddx")
	if ddx == nil || ddx["first"] != "C2" {
		t.Errorf("mesh:ddx = %v; want first=C2", ddx)
	}
	if solver := o.Section("solver"); solver == nil || solver["type"] != "cvode" {
		t.Errorf("solver = %v; want type=cvode", solver)
	}
	if o.Section("nonexistent") != nil {
		t.Error("Section returned a value for a missing section")
	}
}

func TestParseOptionsErrors(t *testing.T) {
	cases := []struct {
		name, input string
	}{
		{"unterminated section", "[mesh\nnx = 4\n"},
		{"empty section name", "[]\n"},
		{"missing equals", "[mesh]\nnx 4\n"},
		{"empty key", "= 4\n"},
	}
	for _, c := range cases {
		if _, err := parseOptions(strings.NewReader(c.input)); err == nil {
			t.Errorf("%s: parse succeeded; want an error", c.name)
		}
	}
}

func TestParseOptionsFileMissing(t *testing.T) {
	if _, err := ParseOptionsFile("/no/such/BOUT.inp"); err == nil {
		t.Error("parsing a missing file succeeded")
	}
}
