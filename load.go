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

// Package boutload reconstructs the output of a parallel BOUT++
// simulation run. BOUT++ writes one netCDF dump file per processor;
// boutload reassembles those tiles into a single logical dataset,
// trimming the guard cells that tiles carry along their interior edges,
// concatenating restart episodes along time, and carrying the run's
// scalar metadata, input options and grid context along with the data.
//
// Reconstruction is lazy: Open reads only headers and coordinates, and
// field values are read from disk when a variable is materialized with
// Compute, or streamed during Save and ToRestart.
package boutload

import (
	"github.com/gonum/floats"
	"github.com/sirupsen/logrus"
)

// Version gives the version number of this version of boutload.
const Version = "0.1.0"

// timeVar is the name of the time-coordinate variable in BOUT++ dumps.
const timeVar = "t_array"

type openConfig struct {
	inputFile   string
	gridFile    string
	geometry    string
	registry    *GeometryRegistry
	coordinates map[string]string
	keepX       bool
	keepY       bool
	cacheSize   int
}

// An Option adjusts how Open reconstructs a dataset.
type Option func(*openConfig)

// WithInputFile attaches the parsed BOUT.inp options file at path to
// the dataset under the "options" attribute key.
func WithInputFile(path string) Option {
	return func(c *openConfig) { c.inputFile = path }
}

// WithGridFile merges the grid file at path into the dataset.
func WithGridFile(path string) Option {
	return func(c *openConfig) { c.gridFile = path }
}

// WithGeometry applies the named registered geometry transform to the
// dataset after reconstruction.
func WithGeometry(name string) Option {
	return func(c *openConfig) { c.geometry = name }
}

// WithGeometryRegistry uses reg instead of the process-wide default
// registry for resolving the geometry name.
func WithGeometryRegistry(reg *GeometryRegistry) Option {
	return func(c *openConfig) { c.registry = reg }
}

// WithCoordinates overrides the coordinate names a geometry transform
// looks for.
func WithCoordinates(m map[string]string) Option {
	return func(c *openConfig) { c.coordinates = m }
}

// KeepXBoundaries retains the guard cells of tiles that touch the
// global x domain boundary. Guards between adjacent tiles are always
// trimmed; by default boundary guards are trimmed too.
func KeepXBoundaries(keep bool) Option {
	return func(c *openConfig) { c.keepX = keep }
}

// KeepYBoundaries retains the guard cells of tiles that touch the
// global y domain boundary.
func KeepYBoundaries(keep bool) Option {
	return func(c *openConfig) { c.keepY = keep }
}

// WithChunkCacheSize sets the number of tile slabs memoized during
// materialization.
func WithChunkCacheSize(n int) Option {
	return func(c *openConfig) { c.cacheSize = n }
}

// Open reconstructs the unified dataset for the run whose dump files
// match datapath. datapath may be a single file, a directory containing
// BOUT.dmp.*.nc files, or a glob pattern. Open reads headers, scalar
// metadata and the time coordinate; field data stays on disk.
//
// Open is idempotent: the same files yield the same logical structure,
// and its only side effect is pooling open file handles.
func Open(datapath string, opts ...Option) (*Dataset, error) {
	cfg := openConfig{
		registry:  DefaultGeometries,
		cacheSize: DefaultChunkCacheSize,
	}
	for _, o := range opts {
		o(&cfg)
	}

	paths, err := expandPaths(datapath)
	if err != nil {
		return nil, err
	}

	tiles := make([]*Tile, len(paths))
	for i, p := range paths {
		idx, ok := dumpIndex(p)
		if !ok {
			idx = i
		}
		t, err := readTile(p, idx)
		if err != nil {
			return nil, err
		}
		tiles[i] = t
	}

	sets := splitSets(tiles)
	ds, err := buildDataset(sets, cfg.keepX, cfg.keepY, cfg.cacheSize)
	if err != nil {
		return nil, err
	}

	meta, err := mergeSetsMetadata(sets)
	if err != nil {
		return nil, err
	}
	ds.metadata = meta
	setAttrOnAllVars(ds, MetadataAttr, meta)

	checkTimeCoordinate(ds)

	if cfg.inputFile != "" {
		options, err := ParseOptionsFile(cfg.inputFile)
		if err != nil {
			return nil, err
		}
		setAttrOnAllVars(ds, OptionsAttr, options)
	}

	if cfg.gridFile != "" {
		if err := mergeGridFile(ds, cfg.gridFile); err != nil {
			return nil, err
		}
	}

	if cfg.geometry != "" {
		ds, err = cfg.registry.Apply(cfg.geometry, ds, cfg.coordinates)
		if err != nil {
			return nil, err
		}
	}

	logrus.Debugf("boutload: read %d tiles in %d set(s) from %s", len(tiles), len(sets), datapath)
	return ds, nil
}

// setAttrOnAllVars attaches value under key on the dataset and on every
// variable, so the attachment survives variable-level selection that
// drops dataset-level attributes.
func setAttrOnAllVars(ds *Dataset, key string, value interface{}) {
	ds.Attrs[key] = value
	for _, n := range ds.varOrder {
		ds.vars[n].Attrs[key] = value
	}
}

// checkTimeCoordinate eagerly reads the time coordinate, if there is
// one, and warns when concatenated restart sets are out of
// chronological order. The coordinate is one value per record, so the
// eager read is cheap.
func checkTimeCoordinate(ds *Dataset) {
	v := ds.Var(timeVar)
	if v == nil || !v.hasT || len(v.Dims) != 1 {
		return
	}
	arr, err := v.Compute()
	if err != nil {
		logrus.Warnf("boutload: could not read time coordinate: %v", err)
		return
	}
	if len(arr.Elements) < 2 {
		return
	}
	diffs := make([]float64, len(arr.Elements)-1)
	for i := range diffs {
		diffs[i] = arr.Elements[i+1] - arr.Elements[i]
	}
	if floats.Min(diffs) <= 0 {
		logrus.Warnf("boutload: time coordinate is not strictly increasing; restart sets may be out of order")
	}
}
