// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"encoding/binary"
	"path/filepath"
	"testing"
)

func TestOrdinalKeyFormats(t *testing.T) {
	if got := ordinalKey(1, false); got != "00000001" {
		t.Errorf("ordinalKey(1, false) = %q, want %q", got, "00000001")
	}
	if got := ordinalKey(1, true); got != "00000001" {
		t.Errorf("ordinalKey(1, true) = %q, want %q", got, "00000001")
	}
	if got := ordinalKey(255, false); got != "000000FF" {
		t.Errorf("ordinalKey(255, false) = %q, want %q", got, "000000FF")
	}
	if got := ordinalKey(255, true); got != "00000255" {
		t.Errorf("ordinalKey(255, true) = %q, want %q", got, "00000255")
	}
}

func TestEfsBackupPathPrefixBytes(t *testing.T) {
	want := []byte{0x01, 0x00, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00}
	if len(efsBackupPrefix) != len(want) {
		t.Fatalf("len(efsBackupPrefix) = %d, want %d", len(efsBackupPrefix), len(want))
	}
	for i := range want {
		if efsBackupPrefix[i] != want[i] {
			t.Errorf("efsBackupPrefix[%d] = %#x, want %#x", i, efsBackupPrefix[i], want[i])
		}
	}

	items := map[string]*EfsValue{
		"/nv/item_files/rfnv/00020000": {Path: "/nv/item_files/rfnv/00020000", Data: []byte{1, 2}},
	}
	storage := buildEfsStoreStorage("EFS_Backup", items, false, true)
	var dirEntry *cfbEntry
	for _, c := range storage.children {
		if c.name == "EFS_Dir" {
			dirEntry = c
		}
	}
	if dirEntry == nil || len(dirEntry.children) != 1 {
		t.Fatalf("expected exactly one EFS_Dir entry")
	}
	got := dirEntry.children[0].data
	if len(got) < len(want) {
		t.Fatalf("EFS_Dir entry data too short: %d bytes", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stored path byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
	if string(got[len(want):]) != "nv/item_files/rfnv/00020000" {
		t.Errorf("stored path suffix = %q, want leading slash stripped", got[len(want):])
	}
}

// TestNumberedItemPacketSize is the numbered-item-packet-size property:
// every emitted packet in NV_ITEM_ARRAY is exactly 136 bytes.
func TestNumberedItemPacketSize(t *testing.T) {
	items := map[uint32]*NumberedValue{
		946: {ID: 946, Index: 1, Data: []byte{0x57, 0x04, 0x02, 0x00, 0xe3, 0x27}},
	}
	buf := encodeNvItemArray(items)
	if len(buf) != numberedItemPacketSize {
		t.Fatalf("len(buf) = %d, want %d", len(buf), numberedItemPacketSize)
	}
}

// TestNumberedItemStreamHeader checks the exact stream-header bytes for the
// worked item-946 example: stream-size 0x0088, index 1, id 946, padding 0.
func TestNumberedItemStreamHeader(t *testing.T) {
	items := map[uint32]*NumberedValue{
		946: {ID: 946, Index: 1, Data: []byte{0x57, 0x04, 0x02, 0x00, 0xe3, 0x27}},
	}
	buf := encodeNvItemArray(items)
	want := []byte{0x88, 0x00, 0x01, 0x00, 0xb2, 0x03, 0x00, 0x00}
	if len(buf) < len(want) {
		t.Fatalf("packet too short: %d bytes", len(buf))
	}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("header byte %d = %#x, want %#x", i, buf[i], want[i])
		}
	}
	if binary.LittleEndian.Uint16(buf[0:2]) != numberedItemPacketSize {
		t.Errorf("decoded stream-size = %d, want %d", binary.LittleEndian.Uint16(buf[0:2]), numberedItemPacketSize)
	}
}

func TestMobilePropertyInfoEncodeDecodeRoundTrip(t *testing.T) {
	m := MobilePropertyInfo{EFS: 1, MobileModelNo: 0, MajorRev: 2, MinorRev: 3, SWVersion: "", QPSTVersion: "2.7"}
	buf := encodeMobilePropertyInfo(m)
	cfg := NewConfig()
	diags := &diagList{}
	parseMobilePropertyInfoStream(buf, cfg, diags)
	if !diags.empty() {
		t.Fatalf("unexpected diagnostics: %v", diags.diagnostics())
	}
	if cfg.MobilePropertyInfo.MobileModelNo != 0 {
		t.Errorf("MobileModelNo = %d, want 0", cfg.MobilePropertyInfo.MobileModelNo)
	}
	if cfg.MobilePropertyInfo.SWVersion != "" {
		t.Errorf("SWVersion = %q, want empty", cfg.MobilePropertyInfo.SWVersion)
	}
	if cfg.MobilePropertyInfo.QPSTVersion != "2.7" {
		t.Errorf("QPSTVersion = %q, want %q", cfg.MobilePropertyInfo.QPSTVersion, "2.7")
	}
}

func TestQcnWriteReadRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.FileVersion = FileVersion{Major: 1, Minor: 2, Release: 3}
	cfg.MobilePropertyInfo = MobilePropertyInfo{MobileModelNo: 0, SWVersion: "", QPSTVersion: ""}
	cfg.NVItemArray[946] = &NumberedValue{ID: 946, Index: 1, Data: []byte{0x57, 0x04, 0x02, 0x00, 0xe3, 0x27}}
	cfg.NVItems["/nv/item_files/plain"] = &EfsValue{Path: "/nv/item_files/plain", Data: []byte{1, 2, 3, 4}}
	cfg.ProvisioningItemFiles["/nv/item_files/prov"] = &EfsValue{Path: "/nv/item_files/prov", Data: []byte{5, 6}}
	cfg.EFSBackup["/nv/item_files/rfnv/00020000"] = &EfsValue{Path: "/nv/item_files/rfnv/00020000", Data: []byte{7, 8, 9}}

	path := filepath.Join(t.TempDir(), "out.qcn")
	if err := WriteQCN(path, cfg, DefaultOptions()); err != nil {
		t.Fatalf("WriteQCN: %v", err)
	}

	got, err := ReadQCN(path, DefaultOptions())
	if err != nil {
		t.Fatalf("ReadQCN: %v", err)
	}

	if got.FileVersion != cfg.FileVersion {
		t.Errorf("FileVersion = %+v, want %+v", got.FileVersion, cfg.FileVersion)
	}
	nv, ok := got.NVItemArray[946]
	if !ok {
		t.Fatalf("item 946 missing after round trip")
	}
	if len(nv.Data) != numberedItemPacketSize-8 || nv.Data[0] != 0x57 {
		t.Errorf("item 946 Data = %v, want round-tripped 128-byte zero-padded payload starting 0x57", nv.Data)
	}

	if v, ok := got.NVItems["/nv/item_files/plain"]; !ok || len(v.Data) != 4 {
		t.Errorf("NVItems round trip failed: %+v", got.NVItems)
	}
	if v, ok := got.ProvisioningItemFiles["/nv/item_files/prov"]; !ok || !v.ProvisioningStore {
		t.Errorf("ProvisioningItemFiles round trip failed: %+v", got.ProvisioningItemFiles)
	}
	if v, ok := got.EFSBackup["/nv/item_files/rfnv/00020000"]; !ok || len(v.Data) != 3 {
		t.Errorf("EFSBackup round trip failed: %+v", got.EFSBackup)
	}
}
