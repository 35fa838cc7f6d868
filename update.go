// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// bytesPerUpdateLine caps how many decimal byte values appear on one
// continuation line of an emitted update script, keeping lines readable.
const bytesPerUpdateLine = 12

// WriteUpdateScript emits a shell script that reconstructs cfg's items by
// invoking an external nvimgr command once per item: numbered items in
// ascending id order, then the NV_Items, Provisioning_Item_Files and
// EFS_Backup stores in turn, each sorted byte-wise by path.
func WriteUpdateScript(w io.Writer, cfg *Config, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	fmt.Fprintln(w, "#!/bin/sh")
	fmt.Fprintln(w, "set -e")
	fmt.Fprintln(w)

	ids := make([]uint32, 0, len(cfg.NVItemArray))
	for id := range cfg.NVItemArray {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		v := cfg.NVItemArray[id]
		writeUpdateLine(w, fmt.Sprintf("%d", v.ID), v.Data)
	}

	for _, store := range []map[string]*EfsValue{cfg.NVItems, cfg.ProvisioningItemFiles, cfg.EFSBackup} {
		paths := make([]string, 0, len(store))
		for p := range store {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			writeUpdateLine(w, store[p].Path, store[p].Data)
		}
	}
	return nil
}

func writeUpdateLine(w io.Writer, item string, data []byte) {
	fmt.Fprintf(w, "nvimgr --item %s %d \\\n", item, len(data))
	for i := 0; i < len(data); i += bytesPerUpdateLine {
		end := i + bytesPerUpdateLine
		if end > len(data) {
			end = len(data)
		}
		vals := make([]string, end-i)
		for j, b := range data[i:end] {
			vals[j] = fmt.Sprintf("%d", b)
		}
		line := "    " + strings.Join(vals, ", ")
		if end < len(data) {
			line += ", \\"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}
