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

// A Topology is the resolved 2D processor grid of one set of tiles.
// tiles is indexed [yind][xind].
type Topology struct {
	NXPE, NYPE int
	MXG, MYG   int
	tiles      [][]*Tile
}

// resolveTopology derives the processor grid from a set of tiles.
// Every (xind, yind) pair in [0,NXPE) x [0,NYPE) must occur exactly
// once, and the number of tiles must equal NXPE*NYPE.
func resolveTopology(set []*Tile) (*Topology, error) {
	if err := checkTileConsistency(set); err != nil {
		return nil, err
	}
	ref := set[0]
	nxpe, nype := ref.NXPE, ref.NYPE
	if len(set) != nxpe*nype {
		return nil, inputErrorf("boutload: found %d tiles but NXPE=%d NYPE=%d implies %d",
			len(set), nxpe, nype, nxpe*nype)
	}
	tp := &Topology{NXPE: nxpe, NYPE: nype, MXG: ref.MXG, MYG: ref.MYG,
		tiles: make([][]*Tile, nype)}
	for i := range tp.tiles {
		tp.tiles[i] = make([]*Tile, nxpe)
	}
	for _, t := range set {
		if t.NXPE != nxpe || t.NYPE != nype {
			return nil, inputErrorf("boutload: tile %s disagrees on the processor grid (%dx%d != %dx%d)",
				t.Path, t.NXPE, t.NYPE, nxpe, nype)
		}
		if t.XInd < 0 || t.XInd >= nxpe || t.YInd < 0 || t.YInd >= nype {
			return nil, inputErrorf("boutload: tile %s has position (%d,%d) outside the %dx%d grid",
				t.Path, t.XInd, t.YInd, nxpe, nype)
		}
		if tp.tiles[t.YInd][t.XInd] != nil {
			return nil, inputErrorf("boutload: tiles %s and %s both claim position (%d,%d)",
				tp.tiles[t.YInd][t.XInd].Path, t.Path, t.XInd, t.YInd)
		}
		tp.tiles[t.YInd][t.XInd] = t
	}
	return tp, nil
}

// Tile returns the tile at processor position (xind, yind).
func (tp *Topology) Tile(xind, yind int) *Tile { return tp.tiles[yind][xind] }

// sameShape reports whether two topologies describe the same
// decomposition, which is required for concatenating restart sets
// along time.
func (tp *Topology) sameShape(o *Topology) bool {
	return tp.NXPE == o.NXPE && tp.NYPE == o.NYPE &&
		tp.MXG == o.MXG && tp.MYG == o.MYG
}

// axisWindow is the kept index range [Lo, Hi) of one tile along one
// spatial axis after guard trimming.
type axisWindow struct {
	Lo, Hi int
}

func (w axisWindow) len() int { return w.Hi - w.Lo }

// trimAxis decides which cells of a tile survive along one axis.
// localN is the tile's stored length on the axis (sub-domain plus guard
// cells on both sides), guard the guard width, ind/npe the tile's
// position and the axis extent of the processor grid, and keepBounds
// whether guards touching the global domain boundary are retained.
//
// Guards between adjacent tiles are always trimmed so overlapping cells
// are not double counted. A tile that is both first and last on its
// axis (npe == 1) keeps or drops both of its guard regions purely by
// the boundary rule.
func trimAxis(localN, guard, ind, npe int, keepBounds bool) axisWindow {
	w := axisWindow{Lo: 0, Hi: localN}
	if !(ind == 0 && keepBounds) {
		w.Lo += guard
	}
	if !(ind == npe-1 && keepBounds) {
		w.Hi -= guard
	}
	return w
}

// xWindow returns the kept x range for the tile at xind.
func (tp *Topology) xWindow(xind int, keepBounds bool) axisWindow {
	t := tp.tiles[0][xind]
	return trimAxis(t.DimLen[xDim], tp.MXG, xind, tp.NXPE, keepBounds)
}

// yWindow returns the kept y range for the tile at yind.
func (tp *Topology) yWindow(yind int, keepBounds bool) axisWindow {
	t := tp.tiles[yind][0]
	return trimAxis(t.DimLen[yDim], tp.MYG, yind, tp.NYPE, keepBounds)
}

// axisOffsets computes, for each tile position along an axis, the
// global offset of its kept cells, plus the resulting global length.
func axisOffsets(windows []axisWindow) (offsets []int, total int) {
	offsets = make([]int, len(windows))
	for i, w := range windows {
		offsets[i] = total
		total += w.len()
	}
	return offsets, total
}

// globalShape returns the per-tile windows, per-tile global offsets and
// global lengths for both spatial axes under the given guard policy.
func (tp *Topology) globalShape(keepX, keepY bool) (xw, yw []axisWindow, xOff, yOff []int, nx, ny int) {
	xw = make([]axisWindow, tp.NXPE)
	for i := range xw {
		xw[i] = tp.xWindow(i, keepX)
	}
	yw = make([]axisWindow, tp.NYPE)
	for j := range yw {
		yw[j] = tp.yWindow(j, keepY)
	}
	xOff, nx = axisOffsets(xw)
	yOff, ny = axisOffsets(yw)
	return
}
