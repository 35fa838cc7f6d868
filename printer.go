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

// Print writes a human-readable dump of cfg to w. At opts.Verbosity >= 1
// the three EFS stores are printed separately; otherwise they are merged
// into one flat listing, matching the teacher's own flat-by-default dump.
func Print(w io.Writer, cfg *Config, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	fmt.Fprintf(w, "file version: %d.%d.%d\n", cfg.FileVersion.Major, cfg.FileVersion.Minor, cfg.FileVersion.Release)
	fmt.Fprintf(w, "mobile phone number: %d\n", cfg.MobilePropertyInfo.MobileModelNo)
	fmt.Fprintf(w, "mobile sw version: %s\n", cfg.MobilePropertyInfo.SWVersion)
	fmt.Fprintf(w, "mobile qpst version: %s\n", cfg.MobilePropertyInfo.QPSTVersion)
	fmt.Fprintln(w)

	ids := make([]uint32, 0, len(cfg.NVItemArray))
	for id := range cfg.NVItemArray {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		printNumberedValue(w, cfg.NVItemArray[id])
	}

	if opts.Verbosity >= 1 {
		printEfsStore(w, "NV_Items", cfg.NVItems)
		printEfsStore(w, "Provisioning_Item_Files", cfg.ProvisioningItemFiles)
		printEfsStore(w, "EFS_Backup", cfg.EFSBackup)
	} else {
		merged := make(map[string]*EfsValue, len(cfg.NVItems)+len(cfg.ProvisioningItemFiles)+len(cfg.EFSBackup))
		for k, v := range cfg.NVItems {
			merged[k] = v
		}
		for k, v := range cfg.ProvisioningItemFiles {
			merged[k] = v
		}
		for k, v := range cfg.EFSBackup {
			merged[k] = v
		}
		printEfsStore(w, "EFS items", merged)
	}

	for key, data := range cfg.Unprocessed {
		fmt.Fprintf(w, "unprocessed %s: %d bytes\n", key, len(data))
	}
	for _, d := range cfg.Errors {
		fmt.Fprintf(w, "error: %s\n", d.Error())
	}
	return nil
}

func printNumberedValue(w io.Writer, v *NumberedValue) {
	label := v.Name
	if label == "" {
		label = fmt.Sprintf("%d", v.ID)
	}
	fmt.Fprintf(w, "NvItem %s (id=%d):\n", label, v.ID)
	if len(v.Params) > 0 {
		printParams(w, v.Params)
	} else {
		printHexDump(w, v.Data)
	}
	for _, e := range v.Errors {
		fmt.Fprintf(w, "  error: %s\n", e.Error())
	}
}

func printEfsStore(w io.Writer, label string, items map[string]*EfsValue) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", label)
	paths := make([]string, 0, len(items))
	for p := range items {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return strings.ToLower(paths[i]) < strings.ToLower(paths[j]) })
	for _, p := range paths {
		v := items[p]
		fmt.Fprintf(w, "  %s:\n", p)
		if len(v.Params) > 0 {
			printParams(w, v.Params)
		} else {
			printHexDump(w, v.Data)
		}
		for _, e := range v.Errors {
			fmt.Fprintf(w, "    error: %s\n", e.Error())
		}
	}
}

func printParams(w io.Writer, params Params) {
	for _, p := range params {
		name := p.Member.Name
		if name == "" {
			name = p.Member.Type
		}
		fmt.Fprintf(w, "  %s = %s\n", name, p.Val)
	}
}

// printHexDump renders buf as 16-byte lines of hex columns followed by the
// same bytes as decimal columns, the
// fallback the printer uses for any item with no member schema to decode
// it against. When the plain-ASCII heuristic fails but the buffer has an
// even length, it also tries a UTF-16LE decode before giving up, since
// some provisioning strings are carried that way.
func printHexDump(w io.Writer, buf []byte) {
	if isString, text, _ := Uint8OrASCII(len(buf), buf); isString {
		fmt.Fprintf(w, "    %q\n", text)
		return
	}
	if len(buf) > 2 && len(buf)%2 == 0 {
		if text, err := decodeUTF16LE(buf); err == nil && isPrintableText(text) {
			fmt.Fprintf(w, "    %q (utf-16le)\n", text)
			return
		}
	}
	const perLine = 16
	for off := 0; off < len(buf); off += perLine {
		end := off + perLine
		if end > len(buf) {
			end = len(buf)
		}
		chunk := buf[off:end]
		hex := make([]string, len(chunk))
		dec := make([]string, len(chunk))
		for i, b := range chunk {
			hex[i] = fmt.Sprintf("%02x", b)
			dec[i] = fmt.Sprintf("%3d", b)
		}
		fmt.Fprintf(w, "    %04x: %s  |  %s\n", off, strings.Join(hex, " "), strings.Join(dec, " "))
	}
}

func isPrintableText(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7E {
			return false
		}
	}
	return s != ""
}
