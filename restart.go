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
	"os"
	"path/filepath"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

type restartConfig struct {
	originalSplit bool
}

// A RestartOption adjusts how restart files are generated.
type RestartOption func(*restartConfig)

// OriginalSplitting reuses the processor decomposition the run was
// produced with, taken from the dataset metadata, instead of an
// explicitly requested one. It conflicts with nonzero nxpe or nype
// arguments to ToRestart.
func OriginalSplitting() RestartOption {
	return func(c *restartConfig) { c.originalSplit = true }
}

// ToRestart writes the final time record of the dataset as a set of
// BOUT.restart.<rank>.nc files under dir, decomposed onto an nxpe by
// nype processor grid, and returns the paths written. The guard widths
// of the original run are kept; guard cells between tiles are filled
// with zeros, as a restarted run exchanges them before use. Boundary
// guard values are copied where the dataset retained them at load time.
//
// Every time-dependent field must be defined on (t, x, y) or
// (t, x, y, z); anything else cannot be decomposed and returns an
// UnsupportedDimensionalityError. The interior x and y extents must
// divide evenly by nxpe and nype.
func (ds *Dataset) ToRestart(dir string, nxpe, nype int, opts ...RestartOption) ([]string, error) {
	var cfg restartConfig
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.originalSplit {
		if nxpe != 0 || nype != 0 {
			return nil, configurationErrorf(
				"boutload: OriginalSplitting conflicts with an explicit %dx%d decomposition", nxpe, nype)
		}
		nxpe = scalarIntDefault(ds.metadata, "NXPE", 1)
		nype = scalarIntDefault(ds.metadata, "NYPE", 1)
	}
	if nxpe <= 0 || nype <= 0 {
		return nil, configurationErrorf("boutload: invalid decomposition %dx%d", nxpe, nype)
	}
	nt := ds.TimeLen()
	if nt == 0 {
		return nil, inputErrorf("boutload: dataset has no time records to restart from")
	}

	mxg := scalarIntDefault(ds.metadata, "MXG", 0)
	myg := scalarIntDefault(ds.metadata, "MYG", 0)
	nx, ny := ds.dimLen[xDim], ds.dimLen[yDim]
	interiorX, interiorY := nx, ny
	if ds.keptX {
		interiorX -= 2 * mxg
	}
	if ds.keptY {
		interiorY -= 2 * myg
	}
	if interiorX%nxpe != 0 {
		return nil, inputErrorf("boutload: interior x extent %d does not divide into %d tiles", interiorX, nxpe)
	}
	if interiorY%nype != 0 {
		return nil, inputErrorf("boutload: interior y extent %d does not divide into %d tiles", interiorY, nype)
	}
	mxsub, mysub := interiorX/nxpe, interiorY/nype

	// Materialize the final record of every evolving field, and the
	// final simulation time for the tt scalar.
	fields := make(map[string]*sparse.DenseArray)
	var fieldOrder []string
	tt := 0.0
	for _, n := range ds.varOrder {
		v := ds.vars[n]
		if !v.hasT {
			continue
		}
		if len(v.Dims) == 1 {
			if n != timeVar {
				continue
			}
			arr, err := v.ComputeRange(nt-1, nt)
			if err != nil {
				return nil, err
			}
			tt = arr.Elements[0]
			continue
		}
		if !restartDims(v.Dims) {
			return nil, &UnsupportedDimensionalityError{Var: n, Dims: v.Dims, Op: "ToRestart"}
		}
		arr, err := v.ComputeRange(nt-1, nt)
		if err != nil {
			return nil, err
		}
		fields[n] = arr
		fieldOrder = append(fieldOrder, n)
	}
	if len(fieldOrder) == 0 {
		return nil, inputErrorf("boutload: dataset has no evolving fields to restart from")
	}

	var paths []string
	for yind := 0; yind < nype; yind++ {
		for xind := 0; xind < nxpe; xind++ {
			rank := yind*nxpe + xind
			path := filepath.Join(dir, fmt.Sprintf("BOUT.restart.%d.nc", rank))
			err := writeRestartTile(ds, path, fields, fieldOrder, tilePlacement{
				nxpe: nxpe, nype: nype, xind: xind, yind: yind,
				mxg: mxg, myg: myg, mxsub: mxsub, mysub: mysub, tt: tt,
			})
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	}
	logrus.Debugf("boutload: wrote %d restart files to %s", len(paths), dir)
	return paths, nil
}

// restartDims reports whether dims is (t, x, y) or (t, x, y, z).
func restartDims(dims []string) bool {
	switch len(dims) {
	case 3:
		return dims[0] == timeDim && dims[1] == xDim && dims[2] == yDim
	case 4:
		return dims[0] == timeDim && dims[1] == xDim && dims[2] == yDim && dims[3] == zDim
	}
	return false
}

// tilePlacement fixes one restart tile's place in the processor grid.
type tilePlacement struct {
	nxpe, nype   int
	xind, yind   int
	mxg, myg     int
	mxsub, mysub int
	tt           float64
}

// writeRestartTile writes one restart file: the tile's window of every
// evolving field, plus the scalar run metadata describing the new
// decomposition.
func writeRestartTile(ds *Dataset, path string, fields map[string]*sparse.DenseArray,
	order []string, place tilePlacement) error {

	lx := place.mxsub + 2*place.mxg
	ly := place.mysub + 2*place.myg
	nz := ds.dimLen[zDim]

	var dims []string
	var lens []int
	for _, d := range ds.dimOrder {
		switch d {
		case xDim:
			dims, lens = append(dims, d), append(lens, lx)
		case yDim:
			dims, lens = append(dims, d), append(lens, ly)
		case zDim:
			dims, lens = append(dims, d), append(lens, nz)
		}
	}

	h := cdf.NewHeader(dims, lens)

	scalars := restartScalars(ds, place)
	var scalarOrder []string
	for _, k := range sortedKeys(scalars) {
		switch scalars[k].(type) {
		case int:
			h.AddVariable(k, nil, []int32{0})
		case float64:
			h.AddVariable(k, nil, []float64{0.})
		default:
			// Strings and vectors travel as global attributes.
			if enc := encodeAttr(scalars[k]); enc != nil {
				h.AddAttribute("", k, enc)
			}
			continue
		}
		scalarOrder = append(scalarOrder, k)
	}
	for _, n := range order {
		h.AddVariable(n, ds.vars[n].Dims[1:], []float64{0.})
	}
	h.Define()
	for _, err := range h.Check() {
		if err != nil {
			return fmt.Errorf("boutload: building restart header for %s: %v", path, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("boutload: creating %s: %v", path, err)
	}
	defer f.Close()
	ff, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("boutload: writing restart header to %s: %v", path, err)
	}

	for _, k := range scalarOrder {
		var buf interface{}
		switch v := scalars[k].(type) {
		case int:
			buf = []int32{int32(v)}
		case float64:
			buf = []float64{v}
		}
		if err := writeFull(ff.Writer(k, nil, nil), buf); err != nil {
			return fmt.Errorf("boutload: writing %s to %s: %v", k, path, err)
		}
	}

	for _, n := range order {
		src := fields[n]
		local := tileWindow(ds, src, place, lx, ly, nz, len(ds.vars[n].Dims) == 4)
		if err := writeFull(ff.Writer(n, nil, nil), local.Elements); err != nil {
			return fmt.Errorf("boutload: writing %s to %s: %v", n, path, err)
		}
	}
	return cdf.UpdateNumRecs(f)
}

// restartScalars assembles the scalar metadata for one tile: the run's
// merged metadata with the decomposition keys rewritten for the new
// processor grid.
func restartScalars(ds *Dataset, place tilePlacement) map[string]interface{} {
	out := make(map[string]interface{}, len(ds.metadata)+8)
	for k, v := range ds.metadata {
		out[k] = v
	}
	out["NXPE"] = place.nxpe
	out["NYPE"] = place.nype
	out["MXG"] = place.mxg
	out["MYG"] = place.myg
	out["MXSUB"] = place.mxsub
	out["MYSUB"] = place.mysub
	out["PE_XIND"] = place.xind
	out["PE_YIND"] = place.yind
	out["MYPE"] = place.yind*place.nxpe + place.xind
	out["tt"] = place.tt
	out["hist_hi"] = 0
	return out
}

// tileWindow cuts one tile's local array out of a global final-record
// field. src has shape (1, nx, ny) or (1, nx, ny, nz); the result has
// the local shape with guards included. Guard cells are zero except at
// domain boundaries the dataset retained.
func tileWindow(ds *Dataset, src *sparse.DenseArray, place tilePlacement, lx, ly, nz int, has3d bool) *sparse.DenseArray {
	var local *sparse.DenseArray
	if has3d {
		local = sparse.ZerosDense(lx, ly, nz)
	} else {
		local = sparse.ZerosDense(lx, ly)
	}
	for ix := 0; ix < lx; ix++ {
		gx, ok := globalIndex(ix, place.xind, place.nxpe, place.mxsub, place.mxg, ds.keptX)
		if !ok {
			continue
		}
		for iy := 0; iy < ly; iy++ {
			gy, ok := globalIndex(iy, place.yind, place.nype, place.mysub, place.myg, ds.keptY)
			if !ok {
				continue
			}
			if !has3d {
				local.Set(src.Get(0, gx, gy), ix, iy)
				continue
			}
			for iz := 0; iz < nz; iz++ {
				local.Set(src.Get(0, gx, gy, iz), ix, iy, iz)
			}
		}
	}
	return local
}

// globalIndex maps a local tile index (guards included) to its global
// index, reporting false for guard cells with no global value: interior
// guards always, and boundary guards when the load trimmed them.
func globalIndex(i, ind, npe, sub, guard int, kept bool) (int, bool) {
	interior := i >= guard && i < guard+sub
	switch {
	case interior:
		// fall through to the mapping below
	case kept && ind == 0 && i < guard:
		// retained lower boundary guard
	case kept && ind == npe-1 && i >= guard+sub:
		// retained upper boundary guard
	default:
		return 0, false
	}
	if kept {
		return ind*sub + i, true
	}
	return ind*sub + i - guard, true
}
