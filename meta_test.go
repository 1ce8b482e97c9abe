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
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func TestReadTile(t *testing.T) {
	dir := tempDir(t)
	path := filepath.Join(dir, "BOUT.dmp.3.nc")
	writeTileFile(t, path, tileParams{
		nxpe: 3, nype: 2, xind: 0, yind: 1,
		mxg: 2, myg: 1, mxsub: 4, mysub: 3, nz: 2, nt: 2,
		extraScalars: map[string]interface{}{"BOUT_VERSION": 4.3},
		globalAttrs:  map[string]interface{}{"title": "conduction example"},
	})

	tile, err := readTile(path, 3)
	if err != nil {
		t.Fatal(err)
	}
	if tile.NXPE != 3 || tile.NYPE != 2 {
		t.Errorf("grid %dx%d; want 3x2", tile.NXPE, tile.NYPE)
	}
	if tile.MXG != 2 || tile.MYG != 1 {
		t.Errorf("guards (%d,%d); want (2,1)", tile.MXG, tile.MYG)
	}
	// The stored processor position wins over the filename index.
	if tile.XInd != 0 || tile.YInd != 1 {
		t.Errorf("position (%d,%d); want (0,1)", tile.XInd, tile.YInd)
	}
	if tile.Nt != 2 {
		t.Errorf("Nt = %d; want 2", tile.Nt)
	}
	wantDims := map[string]int{"t": 2, "x": 8, "y": 5, "z": 2}
	if !reflect.DeepEqual(tile.DimLen, wantDims) {
		t.Errorf("DimLen = %v; want %v", tile.DimLen, wantDims)
	}
	if tile.Scalars["BOUT_VERSION"] != 4.3 {
		t.Errorf("BOUT_VERSION = %v; want 4.3", tile.Scalars["BOUT_VERSION"])
	}
	if tile.Scalars["title"] != "conduction example" {
		t.Errorf("title = %v; want the global attribute value", tile.Scalars["title"])
	}
	if want := []string{"t_array", "n", "T2", "g11"}; !reflect.DeepEqual(tile.VarOrder, want) {
		t.Errorf("VarOrder = %v; want %v", tile.VarOrder, want)
	}
	if dims := tile.Vars["n"].Dims; !reflect.DeepEqual(dims, []string{"t", "x", "y", "z"}) {
		t.Errorf("n dims = %v", dims)
	}
}

func TestReadTileInferredPosition(t *testing.T) {
	dir := tempDir(t)
	path := filepath.Join(dir, "BOUT.dmp.5.nc")
	writeTileFile(t, path, tileParams{
		nxpe: 3, nype: 2, xind: 2, yind: 1,
		mxsub: 2, mysub: 2, nz: 1, nt: 1,
	})

	// Strip the stored position by reading through a tile whose scalars
	// are manipulated: here we just verify the fallback arithmetic.
	tile := &Tile{Scalars: map[string]interface{}{"NXPE": 3, "NYPE": 2}}
	tile.NXPE = scalarIntDefault(tile.Scalars, "NXPE", 1)
	tile.NYPE = scalarIntDefault(tile.Scalars, "NYPE", 1)
	tile.XInd = 5 % tile.NXPE
	tile.YInd = (5 / tile.NXPE) % tile.NYPE
	if tile.XInd != 2 || tile.YInd != 1 {
		t.Errorf("rank 5 on a 3x2 grid maps to (%d,%d); want (2,1)", tile.XInd, tile.YInd)
	}

	// And that a real file with a stored position round trips.
	got, err := readTile(path, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got.XInd != 2 || got.YInd != 1 {
		t.Errorf("position (%d,%d); want (2,1)", got.XInd, got.YInd)
	}
}

func TestMergeMetadata(t *testing.T) {
	a := &Tile{Path: "a", Scalars: map[string]interface{}{
		"NXPE": 2, "MXG": 2, "PE_XIND": 0, "MYPE": 0, "BOUT_VERSION": 4.3,
	}}
	b := &Tile{Path: "b", Scalars: map[string]interface{}{
		"NXPE": 2, "MXG": 2, "PE_XIND": 1, "MYPE": 1, "BOUT_VERSION": 4.3,
	}}

	merged, err := mergeMetadata([]*Tile{a, b})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{"NXPE": 2, "MXG": 2, "BOUT_VERSION": 4.3}
	if !reflect.DeepEqual(merged, want) {
		t.Errorf("merged = %v; want %v", merged, want)
	}

	b.Scalars["BOUT_VERSION"] = 4.2
	_, err = mergeMetadata([]*Tile{a, b})
	var mErr *MetadataError
	if !errors.As(err, &mErr) {
		t.Fatalf("got %v; want a MetadataError", err)
	}
}

func TestTileConsistencyVarInventory(t *testing.T) {
	mk := func(path string, vars map[string]varInfo) *Tile {
		return &Tile{Path: path, DimLen: map[string]int{"x": 4}, Vars: vars}
	}
	ref := mk("a", map[string]varInfo{"n": {Dims: []string{"t", "x", "y", "z"}}})
	var mErr *MetadataError

	// Equal counts are not enough: the names must match.
	renamed := mk("b", map[string]varInfo{"T2": {Dims: []string{"t", "x", "y"}}})
	if err := checkTileConsistency([]*Tile{ref, renamed}); !errors.As(err, &mErr) {
		t.Errorf("renamed variable: got %v; want a MetadataError", err)
	}

	redim := mk("c", map[string]varInfo{"n": {Dims: []string{"t", "x", "y"}}})
	if err := checkTileConsistency([]*Tile{ref, redim}); !errors.As(err, &mErr) {
		t.Errorf("re-dimensioned variable: got %v; want a MetadataError", err)
	}

	same := mk("d", map[string]varInfo{"n": {Dims: []string{"t", "x", "y", "z"}}})
	if err := checkTileConsistency([]*Tile{ref, same}); err != nil {
		t.Errorf("identical inventories: %v", err)
	}
}

func TestAttrScalar(t *testing.T) {
	cases := []struct {
		in, want interface{}
	}{
		{[]int32{5}, 5},
		{[]int16{5}, 5},
		{[]float32{2.5}, 2.5},
		{[]float64{2.5}, 2.5},
		{[]uint8{7}, 7},
		{"text", "text"},
		{[]float64{1, 2, 3}, []float64{1, 2, 3}},
	}
	for _, c := range cases {
		if got := attrScalar(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("attrScalar(%v) = %v (%T); want %v (%T)", c.in, got, got, c.want, c.want)
		}
	}
}
