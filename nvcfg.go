// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package nvcfg reads, writes, prints, and diffs Qualcomm radio
// calibration configurations stored as vendor XML (schema + master value
// file), QCN (an OLE2 compound file), or MBN (an ELF32 image wrapping an
// MCFG record stream), unifying all three under one in-memory Config tree.
package nvcfg

import (
	"path/filepath"
	"strings"

	"github.com/qcomnv/nvcfg/internal/log"
)

// Options carries the per-run knobs a caller may need to override. The
// zero value is not valid; use DefaultOptions.
type Options struct {
	// CompositeResolvePasses is the number of composite-substitution
	// passes applied to numbered items before an unresolved composite
	// reference is left literal and reported. One pass resolves a
	// single level of nesting; raised for schemas with deeper nesting.
	CompositeResolvePasses int

	// EfsCompositeResolvePasses is the number of composite-substitution
	// passes applied to EFS items, which in practice nest more deeply
	// than numbered items and so default higher.
	EfsCompositeResolvePasses int

	// LegacyProvisioningOrdinals, when true, formats
	// Provisioning_Item_Files ordinal keys as "%08d" instead of the
	// default "%08X", matching an older update-script generator some
	// downstream tooling still expects.
	LegacyProvisioningOrdinals bool

	// DiffTool is the external diff executable invoked by Diff. Default
	// "diff".
	DiffTool string

	// Verbosity controls the printer's EFS-store separation (>=1 prints
	// the three stores separately rather than merged).
	Verbosity int

	// Logger receives diagnostic/debug output. Defaults to a no-op
	// logger if nil.
	Logger *log.Helper
}

// DefaultOptions returns the options the CLI uses when no flags override
// them.
func DefaultOptions() *Options {
	return &Options{
		CompositeResolvePasses:    1,
		EfsCompositeResolvePasses: 5,
		LegacyProvisioningOrdinals: false,
		DiffTool:                  "diff",
		Logger:                    log.NewNop(),
	}
}

func (o *Options) logger() *log.Helper {
	if o == nil || o.Logger == nil {
		return log.NewNop()
	}
	return o.Logger
}

// Load reads path, dispatching on its file extension: ".qcn" to the QCN
// reader, ".xml" to the schema-driven XML path, ".mbn" to the MBN reader.
// Any other extension is a usage error. Schema-required operations (XML,
// and printing with richer output) use cat; cat may be nil for QCN/MBN
// inputs whose tree does not need schema-driven decoding.
func Load(path string, cat *Catalog, opts *Options) (*Config, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".qcn":
		return ReadQCN(path, opts)
	case ".xml":
		if cat == nil {
			return nil, fatal(SchemaError, "loading %s requires a schema (-s/--schema)", path)
		}
		return LoadMasterFile(path, cat, opts)
	case ".mbn":
		return ReadMBN(path, opts)
	default:
		return nil, fatal(FormatError, "unrecognised input extension %q for %s (expected .qcn, .xml, or .mbn)", filepath.Ext(path), path)
	}
}
