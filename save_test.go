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
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/cdf"
)

func TestWriteExactExtent(t *testing.T) {
	dir := tempDir(t)
	path := filepath.Join(dir, "static.nc")
	h := cdf.NewHeader([]string{"x"}, []int{4})
	h.AddVariable("f", []string{"x"}, []float64{0.})
	h.Define()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	ff, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}

	// Filling a non-record variable to exactly its extent is the normal
	// case, not an error.
	if err := writeFull(ff.Writer("f", nil, nil), []float64{1, 2, 3, 4}); err != nil {
		t.Fatalf("writing a full non-record variable: %v", err)
	}
	// Writing past the extent still fails.
	if err := writeFull(ff.Writer("f", nil, nil), make([]float64, 5)); err == nil {
		t.Error("writing past the variable extent succeeded")
	}
	f.Close()

	arr, err := readTileSlab(path, "f", -1)
	if err != nil {
		t.Fatal(err)
	}
	if want := []float64{1, 2, 3, 4}; !reflect.DeepEqual(arr.Elements, want) {
		t.Errorf("f = %v; want %v", arr.Elements, want)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := tempDir(t)
	p := runParams{nxpe: 2, nype: 2, mxg: 2, myg: 1, mxsub: 3, mysub: 2, nz: 2, nt: 3}
	writeRun(t, dir, "BOUT.dmp", p)

	ds, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	out := filepath.Join(dir, "merged.nc")
	if err := ds.Save(out); err != nil {
		t.Fatal(err)
	}

	// The saved file is an unpartitioned run: re-opening it alone must
	// reproduce the reconstruction exactly.
	saved, err := Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer saved.Close()

	for _, d := range []string{"t", "x", "y", "z"} {
		if saved.DimLen(d) != ds.DimLen(d) {
			t.Errorf("dimension %s = %d after round trip; want %d", d, saved.DimLen(d), ds.DimLen(d))
		}
	}
	if !reflect.DeepEqual(saved.Variables(), ds.Variables()) {
		t.Errorf("variables %v after round trip; want %v", saved.Variables(), ds.Variables())
	}
	for _, n := range ds.Variables() {
		a, err := ds.Var(n).Compute()
		if err != nil {
			t.Fatal(err)
		}
		b, err := saved.Var(n).Compute()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(a.Elements, b.Elements) {
			t.Errorf("variable %s changed across the round trip", n)
		}
	}

	meta := saved.Metadata()
	if meta["NXPE"] != 1 || meta["NYPE"] != 1 {
		t.Errorf("saved file claims decomposition %vx%v; want 1x1", meta["NXPE"], meta["NYPE"])
	}
	if meta["MXG"] != 0 || meta["MYG"] != 0 {
		t.Errorf("saved file claims guards %v,%v; want 0,0", meta["MXG"], meta["MYG"])
	}
}

func TestSaveSeparateVars(t *testing.T) {
	dir := tempDir(t)
	p := runParams{nxpe: 2, nype: 1, mxg: 1, mxsub: 3, mysub: 2, nz: 2, nt: 2}
	writeRun(t, dir, "BOUT.dmp", p)

	ds, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	out := filepath.Join(dir, "out.nc")
	if err := ds.Save(out, SeparateVars(true)); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"out_n.nc", "out_T2.nc"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected output file %s: %v", name, err)
		}
	}
	if _, err := os.Stat(out); err == nil {
		t.Error("a combined output file was written in separate-vars mode")
	}

	nFile, err := Open(filepath.Join(dir, "out_n.nc"))
	if err != nil {
		t.Fatal(err)
	}
	defer nFile.Close()
	// Each file carries its evolving variable plus every
	// time-independent variable and the time coordinate.
	want := []string{"t_array", "g11", "n"}
	if !reflect.DeepEqual(nFile.Variables(), want) {
		t.Errorf("out_n.nc variables = %v; want %v", nFile.Variables(), want)
	}
	arr, err := nFile.Var("n").Compute()
	if err != nil {
		t.Fatal(err)
	}
	orig, err := ds.Var("n").Compute()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(arr.Elements, orig.Elements) {
		t.Error("n changed across the separate-vars round trip")
	}
}

func TestSaveVariables(t *testing.T) {
	dir := tempDir(t)
	p := runParams{nxpe: 1, nype: 1, mxsub: 3, mysub: 2, nz: 2, nt: 2}
	paths := writeRun(t, dir, "BOUT.dmp", p)

	ds, err := Open(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	out := filepath.Join(dir, "subset.nc")
	if err := ds.Save(out, SaveVariables("t_array", "T2")); err != nil {
		t.Fatal(err)
	}

	saved, err := Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer saved.Close()
	if want := []string{"t_array", "T2"}; !reflect.DeepEqual(saved.Variables(), want) {
		t.Errorf("variables = %v; want %v", saved.Variables(), want)
	}
	// Dimensions the kept variables do not use are dropped.
	if saved.DimLen("z") != 0 {
		t.Errorf("z dimension survived with length %d", saved.DimLen("z"))
	}

	if err := ds.Save(out, SaveVariables("no_such_var")); err == nil {
		t.Error("saving an unknown variable succeeded")
	}
}
