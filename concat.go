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

import "reflect"

// buildDataset assembles the lazy unified dataset from one or more
// restart sets. Tiles concatenate along x within each processor row,
// rows concatenate along y, and sets concatenate along time. Only slab
// plans are built here; no field data is read.
func buildDataset(sets [][]*Tile, keepX, keepY bool, cacheSize int) (*Dataset, error) {
	tops := make([]*Topology, len(sets))
	for i, set := range sets {
		tp, err := resolveTopology(set)
		if err != nil {
			return nil, err
		}
		tops[i] = tp
	}
	for _, tp := range tops[1:] {
		if !tp.sameShape(tops[0]) {
			return nil, inputErrorf(
				"boutload: restart sets have different decompositions (%dx%d guards %d,%d vs %dx%d guards %d,%d)",
				tops[0].NXPE, tops[0].NYPE, tops[0].MXG, tops[0].MYG,
				tp.NXPE, tp.NYPE, tp.MXG, tp.MYG)
		}
	}

	tp := tops[0]
	ref := tp.Tile(0, 0)
	xw, yw, xOff, yOff, nx, ny := tp.globalShape(keepX, keepY)

	// Every set must store the same structure: identical local dimension
	// sizes (the time length excepted) and an identical variable
	// inventory, or concatenation would misplace or truncate data.
	for i, o := range tops[1:] {
		if err := checkSetLayout(ref, o.Tile(0, 0), i+1); err != nil {
			return nil, err
		}
	}

	// Global time offsets of the sets.
	tOffs := make([]int, len(sets))
	totalT := 0
	for i, set := range sets {
		tOffs[i] = totalT
		totalT += set[0].Nt
	}

	ds := &Dataset{
		Attrs:     make(map[string]interface{}),
		vars:      make(map[string]*Variable),
		dimLen:    make(map[string]int),
		keptX:     keepX,
		keptY:     keepY,
		cacheSize: cacheSize,
	}
	for _, set := range sets {
		for _, t := range set {
			ds.paths = append(ds.paths, t.Path)
		}
	}
	for _, d := range ref.DimOrder {
		ds.dimOrder = append(ds.dimOrder, d)
		switch d {
		case timeDim:
			ds.dimLen[d] = totalT
		case xDim:
			ds.dimLen[d] = nx
		case yDim:
			ds.dimLen[d] = ny
		default:
			ds.dimLen[d] = ref.DimLen[d]
		}
	}

	for _, name := range ref.VarOrder {
		info := ref.Vars[name]
		v := planVariable(name, info, tops, tOffs, xw, yw, xOff, yOff, ds)
		ds.addVariable(v)
	}
	return ds, nil
}

// checkSetLayout verifies that the tiles of restart set setIdx store
// the same structure as the first set's, compared through their (0,0)
// tiles. Only the number of time records may differ.
func checkSetLayout(ref, o *Tile, setIdx int) error {
	if len(o.DimLen) != len(ref.DimLen) {
		return inputErrorf("boutload: restart set %d has %d dimensions; set 0 has %d",
			setIdx, len(o.DimLen), len(ref.DimLen))
	}
	for d, n := range ref.DimLen {
		if d == timeDim {
			continue
		}
		if o.DimLen[d] != n {
			return inputErrorf("boutload: restart set %d has %s length %d; set 0 has %d",
				setIdx, d, o.DimLen[d], n)
		}
	}
	if !reflect.DeepEqual(o.VarOrder, ref.VarOrder) {
		return inputErrorf("boutload: restart set %d stores variables %v; set 0 stores %v",
			setIdx, o.VarOrder, ref.VarOrder)
	}
	for name, info := range ref.Vars {
		if !reflect.DeepEqual(o.Vars[name].Dims, info.Dims) {
			return inputErrorf("boutload: variable %s has dimensions %v in restart set %d and %v in set 0",
				name, o.Vars[name].Dims, setIdx, info.Dims)
		}
	}
	return nil
}

// planVariable builds the slab plan for one variable across all sets.
func planVariable(name string, info varInfo, tops []*Topology, tOffs []int,
	xw, yw []axisWindow, xOff, yOff []int, ds *Dataset) *Variable {

	hasT := len(info.Dims) > 0 && info.Dims[0] == timeDim
	spatial := info.Dims
	if hasT {
		spatial = info.Dims[1:]
	}

	hasX, hasY := false, false
	for _, d := range spatial {
		switch d {
		case xDim:
			hasX = true
		case yDim:
			hasY = true
		}
	}

	shape := make([]int, len(info.Dims))
	for i, d := range info.Dims {
		shape[i] = ds.dimLen[d]
	}

	v := &Variable{
		Name:  name,
		Dims:  info.Dims,
		Shape: shape,
		Attrs: info.Attrs,
		hasT:  hasT,
	}

	for si, tp := range tops {
		if si > 0 && !hasT {
			// Time-independent fields are identical in every set;
			// the first representative is enough.
			break
		}
		// The tiles contributing to this variable: the full grid when
		// it spans both spatial axes, one row or column when it spans
		// only one, and the origin tile when it spans neither.
		ymax := 1
		if hasY {
			ymax = tp.NYPE
		}
		xmax := 1
		if hasX {
			xmax = tp.NXPE
		}
		for py := 0; py < ymax; py++ {
			for px := 0; px < xmax; px++ {
				t := tp.Tile(px, py)
				s := slab{
					path:   t.Path,
					srcVar: name,
					lo:     make([]int, len(spatial)),
					hi:     make([]int, len(spatial)),
					off:    make([]int, len(spatial)),
					tOff:   tOffs[si],
					tLen:   t.Nt,
				}
				for i, d := range spatial {
					switch d {
					case xDim:
						s.lo[i], s.hi[i] = xw[px].Lo, xw[px].Hi
						s.off[i] = xOff[px]
					case yDim:
						s.lo[i], s.hi[i] = yw[py].Lo, yw[py].Hi
						s.off[i] = yOff[py]
					default:
						s.lo[i], s.hi[i] = 0, t.DimLen[d]
						s.off[i] = 0
					}
				}
				v.slabs = append(v.slabs, s)
			}
		}
	}
	return v
}
