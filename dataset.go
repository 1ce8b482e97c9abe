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
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/ctessum/cdf"
	"github.com/ctessum/requestcache"
	"github.com/ctessum/sparse"
)

// Attribute keys under which run context is attached to a Dataset and
// to each of its variables.
const (
	MetadataAttr = "metadata"
	OptionsAttr  = "options"
	GridAttr     = "grid"
)

// DefaultChunkCacheSize is the default number of tile slabs memoized
// during materialization.
const DefaultChunkCacheSize = 100

// A slab is one tile's contribution to a reconstructed variable: a
// window into the data stored in one file, plus the position that
// window occupies in the global array.
//
// The time axis, if the variable has one, is handled separately from
// the other dimensions: records tOff..tOff+tLen-1 of the global time
// axis come from records 0..tLen-1 of this file.
type slab struct {
	path   string
	srcVar string
	lo, hi []int // source window, per non-time dimension
	off    []int // global offset, per non-time dimension
	tOff   int
	tLen   int
}

// A Variable is one field of the reconstructed dataset. Until Compute
// is called it is only a plan: a shape, attributes and a list of slabs
// describing where on disk each part of it lives.
type Variable struct {
	Name  string
	Dims  []string
	Shape []int
	Attrs map[string]interface{}

	ds    *Dataset
	hasT  bool
	slabs []slab
	data  *sparse.DenseArray // set for fields added in memory (e.g. by geometry transforms)
}

// A Dataset is the reconstructed logical dataset of one simulation run:
// what a non-parallel run over the whole domain would have written.
// Field data stays on disk until a variable is materialized.
type Dataset struct {
	Attrs map[string]interface{}

	vars     map[string]*Variable
	varOrder []string
	dimLen   map[string]int
	dimOrder []string
	metadata map[string]interface{}
	keptX    bool
	keptY    bool
	paths    []string

	cacheSize int
	slabCache *requestcache.Cache
	slabOnce  sync.Once
}

// Variables returns the names of all variables, in a stable order.
func (ds *Dataset) Variables() []string {
	out := make([]string, len(ds.varOrder))
	copy(out, ds.varOrder)
	return out
}

// Var returns the named variable, or nil if it does not exist.
func (ds *Dataset) Var(name string) *Variable { return ds.vars[name] }

// Metadata returns the merged scalar run metadata.
func (ds *Dataset) Metadata() map[string]interface{} { return ds.metadata }

// DimLen returns the global length of the named dimension, or 0 if the
// dataset does not have it.
func (ds *Dataset) DimLen(dim string) int { return ds.dimLen[dim] }

// TimeLen returns the length of the time axis, or 0 if no variable is
// time dependent.
func (ds *Dataset) TimeLen() int { return ds.dimLen[timeDim] }

// addVariable registers v and keeps the insertion order stable.
func (ds *Dataset) addVariable(v *Variable) {
	v.ds = ds
	if _, ok := ds.vars[v.Name]; !ok {
		ds.varOrder = append(ds.varOrder, v.Name)
	}
	ds.vars[v.Name] = v
}

// AddField adds (or replaces) a variable whose values are already in
// memory, dims naming one dataset dimension per axis of data. It is the
// hook geometry transforms use to attach derived fields.
func (ds *Dataset) AddField(name string, dims []string, data *sparse.DenseArray) error {
	if len(dims) != len(data.Shape) {
		return &UnsupportedDimensionalityError{Var: name, Dims: dims, Op: "AddField"}
	}
	for i, d := range dims {
		if n, ok := ds.dimLen[d]; ok && n != data.Shape[i] {
			return inputErrorf("boutload: field %s has length %d on %s; dataset has %d",
				name, data.Shape[i], d, n)
		}
	}
	attrs := map[string]interface{}{MetadataAttr: ds.metadata}
	ds.addVariable(&Variable{
		Name: name, Dims: dims, Shape: data.Shape, Attrs: attrs, data: data,
		hasT: len(dims) > 0 && dims[0] == timeDim,
	})
	return nil
}

// AddConstant adds a dimensionless constant field named name.
func (ds *Dataset) AddConstant(name string, value float64) {
	data := sparse.ZerosDense()
	data.Elements[0] = value
	ds.AddField(name, nil, data)
}

// SelectVariables returns a dataset restricted to the named variables.
// The returned dataset shares slab plans and caches with the original.
func (ds *Dataset) SelectVariables(names ...string) (*Dataset, error) {
	sub := &Dataset{
		Attrs:     ds.Attrs,
		vars:      make(map[string]*Variable),
		dimLen:    ds.dimLen,
		dimOrder:  ds.dimOrder,
		metadata:  ds.metadata,
		keptX:     ds.keptX,
		keptY:     ds.keptY,
		paths:     ds.paths,
		cacheSize: ds.cacheSize,
	}
	for _, n := range names {
		v, ok := ds.vars[n]
		if !ok {
			return nil, inputErrorf("boutload: no variable %q in dataset", n)
		}
		sub.addVariable(v)
	}
	return sub, nil
}

// Close forgets this dataset's pooled file handles. Materializing a
// variable after Close reopens the files transparently.
func (ds *Dataset) Close() {
	for _, p := range ds.paths {
		fileHandles.Remove(p)
	}
}

// String summarizes the dataset: dimensions, variables and metadata.
func (ds *Dataset) String() string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "<boutload.Dataset>\nDimensions:\n")
	for _, d := range ds.dimOrder {
		fmt.Fprintf(&b, "\t%s = %d\n", d, ds.dimLen[d])
	}
	fmt.Fprintf(&b, "Variables:\n")
	for _, n := range ds.varOrder {
		v := ds.vars[n]
		fmt.Fprintf(&b, "\t%s %v\n", n, v.Dims)
	}
	keys := make([]string, 0, len(ds.metadata))
	for k := range ds.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(&b, "Metadata:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "\t%s = %v\n", k, ds.metadata[k])
	}
	return b.String()
}

// slabRequest identifies one deferred tile read.
type slabRequest struct {
	path   string
	name   string
	record int // -1 for a variable without a time dimension
}

func (ds *Dataset) initSlabCache() {
	ds.slabOnce.Do(func() {
		n := ds.cacheSize
		if n <= 0 {
			n = DefaultChunkCacheSize
		}
		ds.slabCache = requestcache.NewCache(
			func(ctx context.Context, request interface{}) (interface{}, error) {
				r := request.(slabRequest)
				return readTileSlab(r.path, r.name, r.record)
			}, runtime.GOMAXPROCS(-1),
			requestcache.Deduplicate(), requestcache.Memory(n))
	})
}

// readSlab reads one tile slab through the memoizing cache.
func (ds *Dataset) readSlab(path, name string, record int) (*sparse.DenseArray, error) {
	ds.initSlabCache()
	req := ds.slabCache.NewRequest(context.TODO(),
		slabRequest{path: path, name: name, record: record},
		fmt.Sprintf("%s|%s|%d", path, name, record))
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	return result.(*sparse.DenseArray), nil
}

// readTileSlab reads variable name from the tile at path. For a
// time-dependent variable, record selects one time record and the
// returned array has the remaining dimensions; record is -1 for
// variables without a time dimension.
func readTileSlab(path, name string, record int) (*sparse.DenseArray, error) {
	var out *sparse.DenseArray
	err := fileHandles.With(path, func(cf *cdf.File, size int64) error {
		lens := cf.Header.Lengths(name)
		if lens == nil {
			return inputErrorf("boutload: variable %s not in file %s", name, path)
		}
		var shape []int
		var r cdf.Reader
		if record >= 0 {
			shape = lens[1:]
			start := make([]int, len(lens))
			end := make([]int, len(lens))
			start[0], end[0] = record, record+1
			r = cf.Reader(name, start, end)
		} else {
			shape = lens
			r = cf.Reader(name, nil, nil)
		}
		n := 1
		for _, d := range shape {
			n *= d
		}
		buf := r.Zero(n)
		if _, err := r.Read(buf); err != nil {
			return fmt.Errorf("boutload: reading %s from %s: %v", name, path, err)
		}
		out = sparse.ZerosDense(shape...)
		if err := fillFloats(out.Elements, buf); err != nil {
			return fmt.Errorf("boutload: variable %s in %s: %v", name, path, err)
		}
		return nil
	})
	return out, err
}

// fillFloats copies a typed netCDF buffer into a float64 slice.
func fillFloats(dst []float64, buf interface{}) error {
	switch b := buf.(type) {
	case []float64:
		copy(dst, b)
	case []float32:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []int32:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			dst[i] = float64(v)
		}
	case []uint8:
		for i, v := range b {
			dst[i] = float64(v)
		}
	default:
		return fmt.Errorf("unsupported data type %T", buf)
	}
	return nil
}

// Compute materializes the whole variable. This is the only point at
// which field data is read from disk.
func (v *Variable) Compute() (*sparse.DenseArray, error) {
	if v.hasT {
		return v.ComputeRange(0, v.Shape[0])
	}
	return v.computeRange(0, 0)
}

// ComputeRange materializes time records [t0, t1) of a time-dependent
// variable. Callers processing long runs use it to bound memory to a
// window of records.
func (v *Variable) ComputeRange(t0, t1 int) (*sparse.DenseArray, error) {
	if !v.hasT {
		return nil, &UnsupportedDimensionalityError{Var: v.Name, Dims: v.Dims, Op: "ComputeRange"}
	}
	if t0 < 0 || t1 > v.Shape[0] || t0 >= t1 {
		return nil, inputErrorf("boutload: time range [%d,%d) outside variable %s (nt=%d)",
			t0, t1, v.Name, v.Shape[0])
	}
	return v.computeRange(t0, t1)
}

func (v *Variable) computeRange(t0, t1 int) (*sparse.DenseArray, error) {
	var shape []int
	if v.hasT {
		shape = append([]int{t1 - t0}, v.Shape[1:]...)
	} else {
		shape = v.Shape
	}
	if v.data != nil {
		if !v.hasT {
			return v.data, nil
		}
		// In-memory arrays are row major, so a time slice is one
		// contiguous run per record.
		rec := len(v.data.Elements) / v.Shape[0]
		out := sparse.ZerosDense(shape...)
		copy(out.Elements, v.data.Elements[t0*rec:t1*rec])
		return out, nil
	}
	out := sparse.ZerosDense(shape...)
	for _, s := range v.slabs {
		if !v.hasT {
			arr, err := v.ds.readSlab(s.path, s.srcVar, -1)
			if err != nil {
				return nil, err
			}
			copyWindow(out, s.off, arr, s.lo, s.hi)
			continue
		}
		rLo := s.tOff
		if t0 > rLo {
			rLo = t0
		}
		rHi := s.tOff + s.tLen
		if t1 < rHi {
			rHi = t1
		}
		for r := rLo; r < rHi; r++ {
			arr, err := v.ds.readSlab(s.path, s.srcVar, r-s.tOff)
			if err != nil {
				return nil, err
			}
			dstPos := append([]int{r - t0}, s.off...)
			copyWindow(out, dstPos, arr, s.lo, s.hi)
		}
	}
	return out, nil
}

// copyWindow copies the window [lo, hi) of src into dst. dstPos gives
// the destination index for each dst dimension; trailing entries of
// dstPos line up with the dimensions of src (leading entries, if any,
// fix extra outer dst dimensions such as time).
func copyWindow(dst *sparse.DenseArray, dstPos []int, src *sparse.DenseArray, lo, hi []int) {
	k := len(dstPos) - len(lo)
	srcIdx := make([]int, len(lo))
	dstIdx := make([]int, len(dstPos))
	copy(dstIdx, dstPos)
	var walk func(d int)
	walk = func(d int) {
		if d == len(lo) {
			dst.Set(src.Get(srcIdx...), dstIdx...)
			return
		}
		for i := lo[d]; i < hi[d]; i++ {
			srcIdx[d] = i
			dstIdx[k+d] = dstPos[k+d] + i - lo[d]
			walk(d + 1)
		}
	}
	walk(0)
}
