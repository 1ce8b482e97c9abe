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

import "fmt"

// InputError indicates a problem with the input file set itself:
// no files matched the requested pattern, the processor topology is
// incomplete or ambiguous, or the topology differs between restart sets.
type InputError struct {
	msg string
}

func (e *InputError) Error() string { return e.msg }

func inputErrorf(format string, args ...interface{}) *InputError {
	return &InputError{msg: fmt.Sprintf(format, args...)}
}

// MetadataError indicates that scalar run metadata which must be
// identical across all tiles of a set (for example guard-cell widths)
// differs between tiles.
type MetadataError struct {
	msg string
}

func (e *MetadataError) Error() string { return e.msg }

func metadataErrorf(format string, args ...interface{}) *MetadataError {
	return &MetadataError{msg: fmt.Sprintf(format, args...)}
}

// UnsupportedDimensionalityError indicates that an operation was given a
// variable with a number or layout of dimensions it cannot handle, for
// example a restart export of a variable that is not (t,x,y) or (t,x,y,z).
type UnsupportedDimensionalityError struct {
	Var  string
	Dims []string
	Op   string
}

func (e *UnsupportedDimensionalityError) Error() string {
	return fmt.Sprintf("boutload: %s: unsupported dimensions %v for variable %s", e.Op, e.Dims, e.Var)
}

// ConfigurationError indicates mutually exclusive options were supplied,
// for example an explicit decomposition together with OriginalSplitting.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string { return e.msg }

func configurationErrorf(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{msg: fmt.Sprintf(format, args...)}
}
