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
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
)

// writeFull writes values through w. The strided netCDF writer returns
// io.EOF whenever a write lands exactly on the end of a variable's
// extent, which for a whole non-record variable is every complete
// write; that is a success, not a failure.
func writeFull(w cdf.Writer, values interface{}) error {
	n, err := w.Write(values)
	if err == io.EOF && n == reflect.ValueOf(values).Len() {
		return nil
	}
	return err
}

type saveConfig struct {
	variables    []string
	separateVars bool
}

// A SaveOption adjusts how a dataset is written out.
type SaveOption func(*saveConfig)

// SaveVariables restricts the save to the named variables.
func SaveVariables(names ...string) SaveOption {
	return func(c *saveConfig) { c.variables = names }
}

// SeparateVars splits the save into one file per time-dependent
// variable, named <stem>_<variable><suffix>. The time coordinate and
// all time-independent variables are replicated into every file, so
// each file stands on its own.
func SeparateVars(separate bool) SaveOption {
	return func(c *saveConfig) { c.separateVars = separate }
}

// Save writes the dataset to one or more netCDF files rooted at path.
// Field data is streamed one time record at a time, so runs larger than
// memory can be written.
//
// The written file describes itself as an unpartitioned run (NXPE and
// NYPE of 1, no guard cells): guard trimming already happened at load
// time, and this keeps a saved file loadable as a plain single-tile
// dataset.
func (ds *Dataset) Save(path string, opts ...SaveOption) error {
	var cfg saveConfig
	for _, o := range opts {
		o(&cfg)
	}

	target := ds
	if cfg.variables != nil {
		var err error
		target, err = ds.SelectVariables(cfg.variables...)
		if err != nil {
			return err
		}
	}

	if !cfg.separateVars {
		return writeDataset(target, target.Variables(), path)
	}

	var evolving, static []string
	for _, n := range target.Variables() {
		if target.Var(n).hasT && n != timeVar {
			evolving = append(evolving, n)
		} else {
			static = append(static, n)
		}
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for _, n := range evolving {
		names := append(append([]string{}, static...), n)
		varPath := stem + "_" + n + ext
		logrus.Debugf("boutload: saving %s to %s", n, varPath)
		if err := writeDataset(target, names, varPath); err != nil {
			return err
		}
	}
	return nil
}

// writeDataset writes the named variables of ds to a single netCDF
// file at path.
func writeDataset(ds *Dataset, names []string, path string) error {
	// Only the dimensions the chosen variables use go in the header, in
	// dataset order. The time dimension becomes the record dimension.
	used := make(map[string]bool)
	for _, n := range names {
		for _, d := range ds.Var(n).Dims {
			used[d] = true
		}
	}
	var dims []string
	var lens []int
	for _, d := range ds.dimOrder {
		if !used[d] {
			continue
		}
		dims = append(dims, d)
		if d == timeDim {
			lens = append(lens, 0)
		} else {
			lens = append(lens, ds.dimLen[d])
		}
	}

	h := cdf.NewHeader(dims, lens)
	writeFileMetadata(h, ds.metadata)
	for _, n := range names {
		v := ds.Var(n)
		h.AddVariable(n, v.Dims, []float64{0.})
		for _, a := range sortedKeys(v.Attrs) {
			if a == MetadataAttr || a == OptionsAttr || a == GridAttr {
				continue
			}
			if enc := encodeAttr(v.Attrs[a]); enc != nil {
				h.AddAttribute(n, a, enc)
			}
		}
	}
	h.Define()
	for _, err := range h.Check() {
		if err != nil {
			return fmt.Errorf("boutload: building header for %s: %v", path, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("boutload: creating %s: %v", path, err)
	}
	defer f.Close()
	ff, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("boutload: writing header to %s: %v", path, err)
	}

	for _, n := range names {
		v := ds.Var(n)
		if v.hasT {
			continue
		}
		arr, err := v.Compute()
		if err != nil {
			return err
		}
		if err := writeFull(ff.Writer(n, nil, nil), arr.Elements); err != nil {
			return fmt.Errorf("boutload: writing %s to %s: %v", n, path, err)
		}
	}

	for r := 0; r < ds.TimeLen(); r++ {
		for _, n := range names {
			v := ds.Var(n)
			if !v.hasT {
				continue
			}
			arr, err := v.ComputeRange(r, r+1)
			if err != nil {
				return err
			}
			start := make([]int, len(v.Dims))
			end := make([]int, len(v.Dims))
			start[0], end[0] = r, r+1
			if err := writeFull(ff.Writer(n, start, end), arr.Elements); err != nil {
				return fmt.Errorf("boutload: writing %s record %d to %s: %v", n, r, path, err)
			}
		}
	}

	if err := cdf.UpdateNumRecs(f); err != nil {
		return fmt.Errorf("boutload: finalizing %s: %v", path, err)
	}
	return nil
}

// writeFileMetadata stores the merged run metadata as global
// attributes, overriding the decomposition keys to describe the file as
// written: a single tile with no guard cells.
func writeFileMetadata(h *cdf.Header, metadata map[string]interface{}) {
	override := map[string]interface{}{
		"NXPE": 1, "NYPE": 1, "MXG": 0, "MYG": 0,
	}
	written := make(map[string]bool)
	for _, k := range sortedKeys(metadata) {
		v := metadata[k]
		if o, ok := override[k]; ok {
			v = o
		}
		if enc := encodeAttr(v); enc != nil {
			h.AddAttribute("", k, enc)
			written[k] = true
		}
	}
	for _, k := range []string{"NXPE", "NYPE", "MXG", "MYG"} {
		if !written[k] {
			h.AddAttribute("", k, encodeAttr(override[k]))
		}
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// encodeAttr converts a metadata value to one of the types the netCDF
// format stores. Unrepresentable values encode as nil and are skipped.
func encodeAttr(v interface{}) interface{} {
	switch vv := v.(type) {
	case int:
		return []int32{int32(vv)}
	case int32:
		return []int32{vv}
	case int64:
		return []int32{int32(vv)}
	case float64:
		return []float64{vv}
	case float32:
		return []float32{vv}
	case string:
		return vv
	case []int16, []int32, []float32, []float64:
		return vv
	}
	return nil
}
