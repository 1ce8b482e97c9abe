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
	"fmt"
	"sync"
)

// ErrGeometryNotRegistered is returned by Apply for unknown geometry
// names.
var ErrGeometryNotRegistered = errors.New("boutload: geometry not registered")

// A GeometryFunc augments a dataset with derived coordinate or geometry
// fields. coordinates optionally maps the field names the transform
// expects to the names actually present in the dataset.
type GeometryFunc func(ds *Dataset, coordinates map[string]string) (*Dataset, error)

// A GeometryRegistry is a name-indexed collection of geometry
// transforms. Registries are safe for concurrent use. Entries live for
// the lifetime of the process; nothing is persisted.
//
// Most callers use the package-level Default registry; tests and
// libraries that must not leak registrations into the process-wide
// namespace construct their own.
type GeometryRegistry struct {
	mu sync.RWMutex
	m  map[string]GeometryFunc
}

// NewGeometryRegistry returns an empty registry.
func NewGeometryRegistry() *GeometryRegistry {
	return &GeometryRegistry{m: make(map[string]GeometryFunc)}
}

// DefaultGeometries is the process-wide registry used by Open when no
// explicit registry is supplied.
var DefaultGeometries = NewGeometryRegistry()

// Register adds fn under name. Registering a name twice is an error
// unless overwrite is true.
func (r *GeometryRegistry) Register(name string, fn GeometryFunc, overwrite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[name]; ok && !overwrite {
		return fmt.Errorf("boutload: geometry %q is already registered", name)
	}
	r.m[name] = fn
	return nil
}

// Unregister removes name from the registry, if present.
func (r *GeometryRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, name)
}

// Apply looks up name and invokes the registered transform on ds.
func (r *GeometryRegistry) Apply(name string, ds *Dataset, coordinates map[string]string) (*Dataset, error) {
	r.mu.RLock()
	fn, ok := r.m[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGeometryNotRegistered, name)
	}
	return fn(ds, coordinates)
}

// RegisterGeometry adds fn to the default registry, failing on
// duplicate names.
func RegisterGeometry(name string, fn GeometryFunc) error {
	return DefaultGeometries.Register(name, fn, false)
}
