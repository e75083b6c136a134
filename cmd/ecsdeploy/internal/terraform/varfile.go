// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package terraform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// VarFile is a parsed terraform.<env>.tfvars file.
type VarFile struct {
	Path   string
	Values map[string]cty.Value
}

// LoadVarFile parses a tfvars file.
//
// # Description
//
// tfvars files are flat HCL attribute lists with literal values, so every
// attribute is evaluated without an evaluation context. Anything that needs
// variables or functions is rejected here as terraform would reject it.
//
// # Outputs
//
//   - *VarFile: Parsed values keyed by variable name
//   - error: ErrVarFileMissing if the file does not exist, or HCL diagnostics
func LoadVarFile(path string) (*VarFile, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrVarFileMissing, path)
		}
		return nil, fmt.Errorf("stat var file %s: %w", path, err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse var file %s: %w", path, diags)
	}

	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to read var file %s: %w", path, diags)
	}

	values := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("var file %s: %s: %w", path, name, diags)
		}
		values[name] = val
	}

	return &VarFile{Path: path, Values: values}, nil
}

// Has reports whether the file sets name.
func (f *VarFile) Has(name string) bool {
	_, ok := f.Values[name]
	return ok
}

// String returns the value of a string-typed variable.
func (f *VarFile) String(name string) (string, bool) {
	v, ok := f.Values[name]
	if !ok || v.IsNull() || !v.IsKnown() || !v.Type().Equals(cty.String) {
		return "", false
	}
	return v.AsString(), true
}

// Names returns the variable names in sorted order.
func (f *VarFile) Names() []string {
	names := make([]string, 0, len(f.Values))
	for name := range f.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
