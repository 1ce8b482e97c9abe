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
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// defaultDumpPattern is the filename pattern BOUT++ uses for its
// per-processor dump files.
const defaultDumpPattern = "BOUT.dmp.*.nc"

// dumpIndex extracts the processor index from a dump filename of the
// form <prefix>.<index>.nc. The second return value reports whether the
// name carries an index at all.
func dumpIndex(path string) (int, bool) {
	base := filepath.Base(path)
	parts := strings.Split(base, ".")
	if len(parts) < 3 {
		return 0, false
	}
	i, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, false
	}
	return i, true
}

// expandPaths resolves datapath into an ordered list of dump files.
// datapath may be a single file, a directory (in which case the default
// BOUT++ dump pattern is applied inside it), or a glob pattern.
// Files are ordered by the numeric processor index embedded in their
// names, which is the order the simulation wrote them in.
func expandPaths(datapath string) ([]string, error) {
	pattern := datapath
	if fi, err := os.Stat(datapath); err == nil {
		if fi.IsDir() {
			pattern = filepath.Join(datapath, defaultDumpPattern)
		} else {
			return []string{datapath}, nil
		}
	}
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, inputErrorf("boutload: bad path pattern %q: %v", pattern, err)
	}
	if len(paths) == 0 {
		return nil, inputErrorf("boutload: no files found matching %q", pattern)
	}
	if len(paths) == 1 {
		return paths, nil
	}

	indexed := make(map[string]int, len(paths))
	stems := make(map[string]string, len(paths))
	for _, p := range paths {
		i, ok := dumpIndex(p)
		if !ok {
			// A multi-file match must consist solely of indexed dump
			// files; anything else means the pattern also caught
			// unrelated files and needs a tighter prefix.
			return nil, inputErrorf("boutload: %q matches %s, which has no processor index; "+
				"use a more specific pattern", pattern, p)
		}
		indexed[p] = i
		stems[p] = stemOf(p)
	}
	// Order by run (directory and prefix) first, then by processor
	// index, so the tiles of one restart episode stay together.
	sort.Slice(paths, func(a, b int) bool {
		pa, pb := paths[a], paths[b]
		if stems[pa] != stems[pb] {
			return stems[pa] < stems[pb]
		}
		return indexed[pa] < indexed[pb]
	})
	return paths, nil
}

// stemOf strips the processor index from a dump file path, leaving the
// part that identifies the run it belongs to.
func stemOf(path string) string {
	parts := strings.Split(path, ".")
	if len(parts) < 3 {
		return path
	}
	return strings.Join(append(parts[:len(parts)-2:len(parts)-2], parts[len(parts)-1]), ".")
}

// splitSets partitions the ordered tile list into restart sets.
// A new set begins whenever the (0,0) tile reappears: BOUT++ restarts
// write a fresh file for every processor, so a second rank-zero tile
// marks the start of the next output episode.
func splitSets(tiles []*Tile) [][]*Tile {
	var sets [][]*Tile
	for _, t := range tiles {
		if len(sets) == 0 || (t.XInd == 0 && t.YInd == 0 && len(sets[len(sets)-1]) > 0) {
			sets = append(sets, nil)
		}
		sets[len(sets)-1] = append(sets[len(sets)-1], t)
	}
	return sets
}
