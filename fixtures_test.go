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
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/ctessum/cdf"
)

// fieldVal is the value the synthetic 3D field stores at one global
// point, chosen so every (t, x, y, z) combination is distinct.
func fieldVal(t, gx, gy, gz int) float64 {
	return float64(t)*1e6 + float64(gx)*1e4 + float64(gy)*1e2 + float64(gz)
}

// t2Val is the value of the synthetic 2D field.
func t2Val(t, gx, gy int) float64 { return fieldVal(t, gx, gy, 0) + 0.5 }

// gridVal is the value of the synthetic time-independent field.
func gridVal(gx, gy int) float64 { return 7e4 + float64(gx)*1e2 + float64(gy) }

// tileParams describes one synthetic dump tile. Global coordinates of
// local cell (ix, iy) are (xind*mxsub+ix, yind*mysub+iy), counted on a
// domain that includes the boundary guard cells.
type tileParams struct {
	nxpe, nype   int
	xind, yind   int
	mxg, myg     int
	mxsub, mysub int
	nz, nt, t0   int

	extraScalars map[string]interface{} // int or float64 values
	globalAttrs  map[string]interface{}
}

// writeTileFile writes one synthetic dump tile containing the fields
// n(t,x,y,z), T2(t,x,y), g11(x,y) and the time coordinate t_array.
func writeTileFile(t *testing.T, path string, p tileParams) {
	t.Helper()
	lx := p.mxsub + 2*p.mxg
	ly := p.mysub + 2*p.myg

	h := cdf.NewHeader([]string{"t", "x", "y", "z"}, []int{0, lx, ly, p.nz})
	attrKeys := make([]string, 0, len(p.globalAttrs))
	for k := range p.globalAttrs {
		attrKeys = append(attrKeys, k)
	}
	sort.Strings(attrKeys)
	for _, k := range attrKeys {
		h.AddAttribute("", k, p.globalAttrs[k])
	}

	intScalars := map[string]int{
		"NXPE": p.nxpe, "NYPE": p.nype,
		"MXG": p.mxg, "MYG": p.myg,
		"PE_XIND": p.xind, "PE_YIND": p.yind,
		"MYPE": p.yind*p.nxpe + p.xind,
	}
	floatScalars := make(map[string]float64)
	for k, v := range p.extraScalars {
		switch vv := v.(type) {
		case int:
			intScalars[k] = vv
		case float64:
			floatScalars[k] = vv
		default:
			t.Fatalf("unsupported scalar type %T for %s", v, k)
		}
	}
	var intOrder, floatOrder []string
	for k := range intScalars {
		intOrder = append(intOrder, k)
	}
	for k := range floatScalars {
		floatOrder = append(floatOrder, k)
	}
	sort.Strings(intOrder)
	sort.Strings(floatOrder)
	for _, k := range intOrder {
		h.AddVariable(k, nil, []int32{0})
	}
	for _, k := range floatOrder {
		h.AddVariable(k, nil, []float64{0.})
	}

	h.AddVariable("t_array", []string{"t"}, []float64{0.})
	h.AddVariable("n", []string{"t", "x", "y", "z"}, []float64{0.})
	h.AddVariable("T2", []string{"t", "x", "y"}, []float64{0.})
	h.AddVariable("g11", []string{"x", "y"}, []float64{0.})
	h.Define()
	for _, err := range h.Check() {
		if err != nil {
			t.Fatalf("building tile header: %v", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ff, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}

	for _, k := range intOrder {
		if err := writeFull(ff.Writer(k, nil, nil), []int32{int32(intScalars[k])}); err != nil {
			t.Fatalf("writing scalar %s: %v", k, err)
		}
	}
	for _, k := range floatOrder {
		if err := writeFull(ff.Writer(k, nil, nil), []float64{floatScalars[k]}); err != nil {
			t.Fatalf("writing scalar %s: %v", k, err)
		}
	}

	g11 := make([]float64, lx*ly)
	for ix := 0; ix < lx; ix++ {
		for iy := 0; iy < ly; iy++ {
			g11[ix*ly+iy] = gridVal(p.xind*p.mxsub+ix, p.yind*p.mysub+iy)
		}
	}
	if err := writeFull(ff.Writer("g11", nil, nil), g11); err != nil {
		t.Fatal(err)
	}

	for r := 0; r < p.nt; r++ {
		gt := p.t0 + r
		writeRecord(t, ff, "t_array", r, 1, []float64{float64(gt)})
		n := make([]float64, lx*ly*p.nz)
		t2 := make([]float64, lx*ly)
		for ix := 0; ix < lx; ix++ {
			gx := p.xind*p.mxsub + ix
			for iy := 0; iy < ly; iy++ {
				gy := p.yind*p.mysub + iy
				t2[ix*ly+iy] = t2Val(gt, gx, gy)
				for iz := 0; iz < p.nz; iz++ {
					n[(ix*ly+iy)*p.nz+iz] = fieldVal(gt, gx, gy, iz)
				}
			}
		}
		writeRecord(t, ff, "n", r, 4, n)
		writeRecord(t, ff, "T2", r, 3, t2)
	}

	if err := cdf.UpdateNumRecs(f); err != nil {
		t.Fatal(err)
	}
}

// writeRecord writes one time record of a record variable with ndims
// dimensions.
func writeRecord(t *testing.T, ff *cdf.File, name string, r, ndims int, buf []float64) {
	t.Helper()
	start := make([]int, ndims)
	end := make([]int, ndims)
	start[0], end[0] = r, r+1
	if err := writeFull(ff.Writer(name, start, end), buf); err != nil {
		t.Fatalf("writing %s record %d: %v", name, r, err)
	}
}

// runParams describes one synthetic run (one restart set).
type runParams struct {
	nxpe, nype   int
	mxg, myg     int
	mxsub, mysub int
	nz, nt, t0   int
}

// writeRun writes the full set of dump tiles for one run into dir and
// returns their paths in rank order.
func writeRun(t *testing.T, dir, prefix string, p runParams) []string {
	t.Helper()
	var paths []string
	for yind := 0; yind < p.nype; yind++ {
		for xind := 0; xind < p.nxpe; xind++ {
			rank := yind*p.nxpe + xind
			path := filepath.Join(dir, fmt.Sprintf("%s.%d.nc", prefix, rank))
			writeTileFile(t, path, tileParams{
				nxpe: p.nxpe, nype: p.nype, xind: xind, yind: yind,
				mxg: p.mxg, myg: p.myg, mxsub: p.mxsub, mysub: p.mysub,
				nz: p.nz, nt: p.nt, t0: p.t0,
			})
			paths = append(paths, path)
		}
	}
	return paths
}

func mkdir(path string) error { return os.MkdirAll(path, 0755) }

func writeFile(path, content string) error {
	return ioutil.WriteFile(path, []byte(content), 0644)
}

// tempDir creates a scratch directory that is removed when the test
// finishes.
func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "boutload")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}
