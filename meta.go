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
	"reflect"

	"github.com/ctessum/cdf"
	"github.com/spf13/cast"
)

// Dimension names used by BOUT++ dump files.
const (
	timeDim = "t"
	xDim    = "x"
	yDim    = "y"
	zDim    = "z"
)

// perTileKeys are scalar metadata entries that legitimately differ
// between tiles of one set. They are dropped from the merged metadata
// record instead of being treated as conflicts.
var perTileKeys = map[string]bool{
	"PE_XIND": true,
	"PE_YIND": true,
	"MYPE":    true,
}

// varInfo describes one field variable as stored in a tile file.
type varInfo struct {
	Dims  []string
	Attrs map[string]interface{}
}

// A Tile is one processor's dump file, reduced to the header information
// needed for reconstruction. Field data stays on disk until a variable
// is materialized.
type Tile struct {
	Path  string
	Index int // processor index from the filename

	NXPE, NYPE int // processor-grid shape
	XInd, YInd int // this tile's position in the grid
	MXG, MYG   int // guard-cell widths

	Nt       int            // number of time records (0 if no time dimension)
	DimLen   map[string]int // local length of every dimension
	DimOrder []string       // dimensions in file order
	Vars     map[string]varInfo
	VarOrder []string // field variables in file order
	Scalars  map[string]interface{} // scalar run metadata
}

// readTile extracts reconstruction metadata from the dump file at path.
// index is the file's position in the filename ordering, used to infer
// processor coordinates when the file does not store them explicitly.
func readTile(path string, index int) (*Tile, error) {
	t := &Tile{
		Path:    path,
		Index:   index,
		DimLen:  make(map[string]int),
		Vars:    make(map[string]varInfo),
		Scalars: make(map[string]interface{}),
	}
	err := fileHandles.With(path, func(cf *cdf.File, size int64) error {
		dims := cf.Header.Dimensions("")
		lens := cf.Header.Lengths("")
		t.DimOrder = dims
		for i, d := range dims {
			if lens[i] == 0 { // the record dimension
				t.Nt = int(cf.Header.NumRecs(size))
				t.DimLen[d] = t.Nt
				continue
			}
			t.DimLen[d] = lens[i]
		}

		// Global attributes first; scalar variables override them below
		// because they are what the simulation itself wrote.
		for _, a := range cf.Header.Attributes("") {
			t.Scalars[a] = attrScalar(cf.Header.GetAttribute("", a))
		}
		for _, v := range cf.Header.Variables() {
			vdims := cf.Header.Dimensions(v)
			if len(vdims) == 0 {
				val, err := readScalarVar(cf, v)
				if err != nil {
					return err
				}
				t.Scalars[v] = val
				continue
			}
			attrs := make(map[string]interface{})
			for _, a := range cf.Header.Attributes(v) {
				attrs[a] = attrScalar(cf.Header.GetAttribute(v, a))
			}
			t.Vars[v] = varInfo{Dims: vdims, Attrs: attrs}
			t.VarOrder = append(t.VarOrder, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.NXPE = scalarIntDefault(t.Scalars, "NXPE", 1)
	t.NYPE = scalarIntDefault(t.Scalars, "NYPE", 1)
	t.MXG = scalarIntDefault(t.Scalars, "MXG", 0)
	t.MYG = scalarIntDefault(t.Scalars, "MYG", 0)

	if _, ok := t.Scalars["PE_XIND"]; ok {
		t.XInd = scalarIntDefault(t.Scalars, "PE_XIND", 0)
		t.YInd = scalarIntDefault(t.Scalars, "PE_YIND", 0)
	} else {
		// Row-major filename ordering: rank = yind*NXPE + xind.
		t.XInd = index % t.NXPE
		t.YInd = (index / t.NXPE) % t.NYPE
	}
	return t, nil
}

// readScalarVar reads the value of a zero-dimensional variable.
func readScalarVar(cf *cdf.File, name string) (interface{}, error) {
	r := cf.Reader(name, nil, nil)
	buf := r.Zero(1)
	if _, err := r.Read(buf); err != nil {
		return nil, metadataErrorf("boutload: reading scalar %s: %v", name, err)
	}
	return attrScalar(buf), nil
}

// attrScalar unwraps the single-element slices the netCDF library uses
// for scalar values. Multi-element attributes pass through unchanged.
func attrScalar(v interface{}) interface{} {
	switch vv := v.(type) {
	case []int32:
		if len(vv) == 1 {
			return int(vv[0])
		}
	case []int16:
		if len(vv) == 1 {
			return int(vv[0])
		}
	case []float32:
		if len(vv) == 1 {
			return float64(vv[0])
		}
	case []float64:
		if len(vv) == 1 {
			return vv[0]
		}
	case []uint8:
		if len(vv) == 1 {
			return int(vv[0])
		}
	}
	return v
}

func scalarIntDefault(scalars map[string]interface{}, key string, def int) int {
	v, ok := scalars[key]
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

// mergeSetsMetadata merges scalar metadata one restart set at a time.
// Disagreement within a set is a consistency violation, but per-episode
// counters such as hist_hi, iteration or tt legitimately differ between
// restart episodes; keys that differ across sets resolve to the
// earliest set's value.
func mergeSetsMetadata(sets [][]*Tile) (map[string]interface{}, error) {
	merged := make(map[string]interface{})
	for _, set := range sets {
		m, err := mergeMetadata(set)
		if err != nil {
			return nil, err
		}
		for k, v := range m {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

// mergeMetadata combines the scalar metadata of the tiles of one set
// into a single record. Keys that legitimately vary per tile are
// dropped; any other disagreement between tiles is a consistency
// violation.
func mergeMetadata(tiles []*Tile) (map[string]interface{}, error) {
	merged := make(map[string]interface{})
	for _, t := range tiles {
		for k, v := range t.Scalars {
			if perTileKeys[k] {
				continue
			}
			prev, ok := merged[k]
			if !ok {
				merged[k] = v
				continue
			}
			if !reflect.DeepEqual(prev, v) {
				return nil, metadataErrorf(
					"boutload: metadata %q differs between tiles (%v != %v in %s)",
					k, prev, v, t.Path)
			}
		}
	}
	return merged, nil
}

// checkTileConsistency verifies that every tile in a set has the same
// local layout as the reference tile: dimension lengths, guard widths,
// time-record count and variable inventory.
func checkTileConsistency(tiles []*Tile) error {
	ref := tiles[0]
	for _, t := range tiles[1:] {
		if t.MXG != ref.MXG || t.MYG != ref.MYG {
			return metadataErrorf("boutload: guard widths differ between %s (MXG=%d MYG=%d) and %s (MXG=%d MYG=%d)",
				ref.Path, ref.MXG, ref.MYG, t.Path, t.MXG, t.MYG)
		}
		if t.Nt != ref.Nt {
			return metadataErrorf("boutload: time length differs between %s (%d) and %s (%d)",
				ref.Path, ref.Nt, t.Path, t.Nt)
		}
		if !reflect.DeepEqual(t.DimLen, ref.DimLen) {
			return metadataErrorf("boutload: local dimension sizes differ between %s (%v) and %s (%v)",
				ref.Path, ref.DimLen, t.Path, t.DimLen)
		}
		if len(t.Vars) != len(ref.Vars) {
			return metadataErrorf("boutload: variable inventories differ between %s and %s",
				ref.Path, t.Path)
		}
		for name, info := range ref.Vars {
			ti, ok := t.Vars[name]
			if !ok {
				return metadataErrorf("boutload: variable %s is stored in %s but not in %s",
					name, ref.Path, t.Path)
			}
			if !reflect.DeepEqual(ti.Dims, info.Dims) {
				return metadataErrorf("boutload: variable %s has dimensions %v in %s and %v in %s",
					name, info.Dims, ref.Path, ti.Dims, t.Path)
			}
		}
	}
	return nil
}
