// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"encoding/binary"
	"testing"
)

func appendLenPrefixed(buf []byte, data []byte) []byte {
	buf = append(buf, 0, 0) // reserved
	lenBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBytes, uint16(len(data)))
	buf = append(buf, lenBytes...)
	buf = append(buf, data...)
	return buf
}

// buildMcfgSegment assembles a minimal, well-formed MCFG record stream:
// 16-byte header, 8-byte version record, then one 8-byte item prefix
// followed by its record body.
func buildMcfgSegment(t *testing.T, fmtVer byte, itemType uint16, recordBody []byte) []byte {
	t.Helper()
	seg := make([]byte, 0, 64)

	header := make([]byte, mcfgHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], mcfgMagic)
	header[4] = fmtVer
	binary.LittleEndian.PutUint32(header[8:12], 1) // num-items
	seg = append(seg, header...)

	seg = append(seg, make([]byte, mcfgVersionRecSize)...)

	prefix := make([]byte, mcfgItemPrefixSize)
	binary.LittleEndian.PutUint16(prefix[0:2], uint16(len(recordBody)))
	binary.LittleEndian.PutUint16(prefix[2:4], itemType)
	seg = append(seg, prefix...)
	seg = append(seg, recordBody...)
	return seg
}

// TestMcfgEfsIngest is end-to-end scenario 4: an MCFG header
// {magic 0x4753434D, fmt-ver 2, type 0, num-items 1} followed by a single
// EFS record for path "/nv/item_files/x" with content [0x01 0x02 0x03].
func TestMcfgEfsIngest(t *testing.T) {
	var rec []byte
	rec = appendLenPrefixed(rec, []byte("/nv/item_files/x"))
	rec = appendLenPrefixed(rec, []byte{0x01, 0x02, 0x03})

	seg := buildMcfgSegment(t, 2, mcfgItemTypeEFSFile, rec)

	cfg := NewConfig()
	diags := &diagList{}
	if err := parseMcfg(seg, cfg, DefaultOptions(), diags); err != nil {
		t.Fatalf("parseMcfg: %v", err)
	}
	if !diags.empty() {
		t.Fatalf("unexpected diagnostics: %v", diags.diagnostics())
	}

	v, ok := cfg.NVItems["/nv/item_files/x"]
	if !ok {
		t.Fatalf("expected NVItems[%q], got keys %v", "/nv/item_files/x", cfg.NVItems)
	}
	if v.Path != "/nv/item_files/x" {
		t.Errorf("Path = %q, want %q", v.Path, "/nv/item_files/x")
	}
	want := []byte{0x01, 0x02, 0x03}
	if len(v.Data) != len(want) {
		t.Fatalf("Data = %v, want %v", v.Data, want)
	}
	for i := range want {
		if v.Data[i] != want[i] {
			t.Errorf("Data[%d] = %#x, want %#x", i, v.Data[i], want[i])
		}
	}
}

func TestMcfgLegacyNvRecord(t *testing.T) {
	body := make([]byte, 0, 8)
	idBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(idBytes, 5)
	body = append(body, idBytes...)
	lenBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBytes, 2)
	body = append(body, lenBytes...)
	body = append(body, 0x01, 0x02)

	seg := buildMcfgSegment(t, 1, mcfgItemTypeNV, body)

	cfg := NewConfig()
	diags := &diagList{}
	if err := parseMcfg(seg, cfg, DefaultOptions(), diags); err != nil {
		t.Fatalf("parseMcfg: %v", err)
	}
	nv, ok := cfg.NVItemArray[5]
	if !ok {
		t.Fatalf("expected NVItemArray[5]")
	}
	if len(nv.Data) != 2 || nv.Data[0] != 0x01 || nv.Data[1] != 0x02 {
		t.Errorf("Data = %v, want [1 2]", nv.Data)
	}
	if nv.Index != 1 {
		t.Errorf("Index = %d, want 1 (first payload byte)", nv.Index)
	}
}

func TestMcfgRejectsBadMagic(t *testing.T) {
	seg := buildMcfgSegment(t, 2, mcfgItemTypeEFSFile, nil)
	binary.LittleEndian.PutUint32(seg[0:4], 0xDEADBEEF)
	cfg := NewConfig()
	diags := &diagList{}
	if err := parseMcfg(seg, cfg, DefaultOptions(), diags); err == nil {
		t.Fatalf("expected an error for a bad MCFG magic")
	}
}

func TestMcfgRejectsFormatVersionAboveCeiling(t *testing.T) {
	seg := buildMcfgSegment(t, mcfgMaxFormatVer+1, mcfgItemTypeEFSFile, nil)
	cfg := NewConfig()
	diags := &diagList{}
	if err := parseMcfg(seg, cfg, DefaultOptions(), diags); err == nil {
		t.Fatalf("expected an error for a format version above the ceiling")
	}
}

func TestMcfgUnsupportedRecordTypeIsSkippedNotFatal(t *testing.T) {
	seg := buildMcfgSegment(t, 2, 0xEE, []byte{0xAA})
	cfg := NewConfig()
	diags := &diagList{}
	if err := parseMcfg(seg, cfg, DefaultOptions(), diags); err != nil {
		t.Fatalf("parseMcfg: %v", err)
	}
	if len(cfg.NVItemArray) != 0 || len(cfg.NVItems) != 0 {
		t.Errorf("unsupported record type should be skipped, not populate any store")
	}
}

func TestParseElfIdentRejectsNonELF(t *testing.T) {
	_, err := parseElfIdent([]byte("not an elf file at all, way too short"))
	if err == nil {
		t.Fatalf("expected an error for non-ELF input")
	}
}
