// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"fmt"

	"github.com/klauspost/compress/zlib"

	"bytes"
)

// Transform applies the marshaller to every parsed master-file value and
// partitions EFS items into the three EFS stores a QCN/MBN image carries:
// NV_Items (schema-declared, non-provisioning paths), Provisioning_Item_Files
// (useProvisioningStore="true"), and EFS_Backup (paths with no matching
// schema entry at all, kept verbatim for round-tripping).
func Transform(cat *Catalog, tree *masterTree, opts *Options) *Config {
	if opts == nil {
		opts = DefaultOptions()
	}
	cfg := NewConfig()
	diags := &diagList{}

	for id, nv := range tree.Numbered {
		item, known := cat.numberedItem(id)
		var members []Member
		if known {
			members = item.Members
		} else {
			diags.addf(SchemaError, "NvItem %d: no matching schema entry", id)
		}
		shape := tree.numberedShape[id]
		params, errs := MarshalItem(members, shape, nv.Encoding)
		nv.Params = params
		nv.Data = params.Bytes()
		nv.Errors = prefixedErrors(nv.Name, id, errs)
		cfg.NVItemArray[id] = nv
	}

	for path, ev := range tree.EFS {
		item, known := cat.efsItem(path)
		var members []Member
		if known {
			members = item.Members
		}
		shape := tree.efsShape[path]
		params, errs := MarshalItem(members, shape, ev.Encoding)
		if known && item.VariableSize {
			var trimDiags []Diagnostic
			params, trimDiags = trimTrailingAbsent(params)
			errs = append(errs, trimDiags...)
		}
		data := params.Bytes()
		if known && item.Compressed {
			compressed, err := deflateBytes(data)
			if err != nil {
				diags.addf(FormatError, "EFS item %s: compressing payload: %v", path, err)
			} else {
				data = compressed
			}
		}
		ev.Params = params
		ev.Data = data
		ev.Errors = errs

		switch {
		case !known:
			cfg.EFSBackup[path] = ev
		case ev.ProvisioningStore:
			cfg.ProvisioningItemFiles[path] = ev
		default:
			cfg.NVItems[path] = ev
		}
	}

	diags.extend(tree.diags.diagnostics())
	cfg.Errors = diags.diagnostics()
	return cfg
}

func prefixedErrors(name string, id uint32, errs []Diagnostic) []Diagnostic {
	label := name
	if label == "" {
		label = fmt.Sprintf("%d", id)
	}
	out := make([]Diagnostic, len(errs))
	for i, e := range errs {
		out[i] = newDiag(e.Kind, "NvItem %s: %s", label, e.Message)
	}
	return out
}

// deflateBytes compresses data with zlib/DEFLATE, the wire compression a
// "compressed" EFS item stores its payload under.
func deflateBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// inflateBytes decompresses a zlib/DEFLATE payload, the inverse of
// deflateBytes. The QCN and MBN readers keep EFS payloads as stored and do
// not call it.
func inflateBytes(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
