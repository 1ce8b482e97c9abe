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
	"github.com/sirupsen/logrus"
)

// mergeGridFile reads the grid file at path and merges its variables
// into ds. Grid variables must be defined on the dataset's spatial
// dimensions with matching lengths; anything else (an unrelated
// dimension, or a length that disagrees with the reconstructed domain)
// is dropped with a warning rather than failing the load, because grid
// files routinely carry auxiliary tables that have no place in the
// unified dataset.
//
// The grid's scalar metadata is attached under the "grid" attribute
// key.
func mergeGridFile(ds *Dataset, path string) error {
	grid, err := readTile(path, 0)
	if err != nil {
		return err
	}
	ds.paths = append(ds.paths, path)

	for _, name := range grid.VarOrder {
		if _, ok := ds.vars[name]; ok {
			// The dump files win; grid duplicates add nothing.
			continue
		}
		info := grid.Vars[name]
		if bad, ok := incompatibleDim(ds, grid, info.Dims); !ok {
			logrus.Warnf("boutload: dropping grid variable %q: dimension %q does not fit the dataset", name, bad)
			continue
		}
		s := slab{
			path:   path,
			srcVar: name,
			lo:     make([]int, len(info.Dims)),
			hi:     make([]int, len(info.Dims)),
			off:    make([]int, len(info.Dims)),
		}
		shape := make([]int, len(info.Dims))
		for i, d := range info.Dims {
			shape[i] = grid.DimLen[d]
			s.hi[i] = grid.DimLen[d]
		}
		attrs := make(map[string]interface{}, len(info.Attrs))
		for k, v := range info.Attrs {
			attrs[k] = v
		}
		ds.addVariable(&Variable{
			Name:  name,
			Dims:  info.Dims,
			Shape: shape,
			Attrs: attrs,
			slabs: []slab{s},
		})
	}

	setAttrOnAllVars(ds, GridAttr, grid.Scalars)
	return nil
}

// incompatibleDim checks a grid variable's dimensions against the
// dataset; it returns the first offending dimension name when the
// variable cannot be merged.
func incompatibleDim(ds *Dataset, grid *Tile, dims []string) (string, bool) {
	for _, d := range dims {
		if d == timeDim {
			return d, false
		}
		n, ok := ds.dimLen[d]
		if !ok || n != grid.DimLen[d] {
			return d, false
		}
	}
	return "", true
}
