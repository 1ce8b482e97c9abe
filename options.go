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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Options holds the contents of a BOUT.inp options file as a nested
// mapping: section names map to nested Options, leaf keys map to their
// unparsed string values. Values are passed through unmodified;
// interpreting them is the caller's concern.
type Options map[string]interface{}

// Section returns the named subsection, or nil if it does not exist.
func (o Options) Section(name string) Options {
	if s, ok := o[name].(Options); ok {
		return s
	}
	return nil
}

// ParseOptionsFile reads a BOUT.inp options file from path.
func ParseOptionsFile(path string) (Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("boutload: opening options file: %v", err)
	}
	defer f.Close()
	o, err := parseOptions(f)
	if err != nil {
		return nil, fmt.Errorf("boutload: parsing options file %s: %v", path, err)
	}
	return o, nil
}

// parseOptions parses the flat key = value format used by BOUT++ input
// files. Lines before any [section] header belong to the root section.
// Comments start with '#' or ';' and run to end of line.
func parseOptions(r io.Reader) (Options, error) {
	root := make(Options)
	current := root
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexAny(line, "#;"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("line %d: malformed section header %q", lineNo, line)
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			if name == "" {
				return nil, fmt.Errorf("line %d: empty section name", lineNo)
			}
			// Colon-separated headers nest, e.g. [mesh:ddx].
			current = root
			for _, part := range strings.Split(name, ":") {
				part = strings.TrimSpace(part)
				sub, ok := current[part].(Options)
				if !ok {
					sub = make(Options)
					current[part] = sub
				}
				current = sub
			}
			continue
		}
		i := strings.Index(line, "=")
		if i < 0 {
			return nil, fmt.Errorf("line %d: expected key = value, got %q", lineNo, line)
		}
		key := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		if key == "" {
			return nil, fmt.Errorf("line %d: empty key", lineNo)
		}
		current[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return root, nil
}
