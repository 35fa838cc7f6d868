// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"bytes"
	"os"
)

// FuzzMcfg exercises the MCFG record-stream parser against an arbitrary
// byte slice passed directly as the PT_LOAD segment contents (no ELF
// image is built around it), the narrowest entry point that takes fully
// untrusted bytes.
func FuzzMcfg(data []byte) int {
	cfg := NewConfig()
	diags := &diagList{}
	if err := parseMcfg(data, cfg, DefaultOptions(), diags); err != nil {
		return 0
	}
	return 1
}

// FuzzSchema exercises the schema XML parser: malformed XML, duplicate
// ids, and unresolved composites must all be collected as diagnostics
// rather than panicking.
func FuzzSchema(data []byte) int {
	tmp, err := os.CreateTemp("", "nvcfg-fuzz-schema-*.xml")
	if err != nil {
		return 0
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0
	}
	tmp.Close()
	if _, err := ParseSchema(tmp.Name(), DefaultOptions(), nil); err != nil {
		return 0
	}
	return 1
}

// FuzzMasterFile exercises the master-value-file tokenizer/marshaller
// pipeline independent of any schema, using the schemaless fallback path.
func FuzzMasterFile(data []byte) int {
	if bytes.IndexByte(data, 0) >= 0 {
		return 0
	}
	tmp, err := os.CreateTemp("", "nvcfg-fuzz-master-*.xml")
	if err != nil {
		return 0
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0
	}
	tmp.Close()
	cat := &Catalog{NumberedItems: map[uint32]*NumberedItem{}, EfsItems: map[string]*EfsItem{}, DataTypes: map[string]*DataType{}}
	if _, err := LoadMasterFile(tmp.Name(), cat, DefaultOptions()); err != nil {
		return 0
	}
	return 1
}
