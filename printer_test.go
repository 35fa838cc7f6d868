// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/text/encoding/unicode"
)

// TestPrintMobilePropertyInfo is end-to-end scenario 3: a Config with
// mobile-model-no = 0 and sw-version = "" prints "mobile phone number: 0"
// and "mobile sw version: ".
func TestPrintMobilePropertyInfo(t *testing.T) {
	cfg := NewConfig()
	cfg.MobilePropertyInfo = MobilePropertyInfo{MobileModelNo: 0, SWVersion: "", QPSTVersion: ""}

	var buf bytes.Buffer
	if err := Print(&buf, cfg, DefaultOptions()); err != nil {
		t.Fatalf("Print: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "mobile phone number: 0") {
		t.Errorf("output missing %q:\n%s", "mobile phone number: 0", out)
	}
	if !strings.Contains(out, "mobile sw version: \n") {
		t.Errorf("output missing empty sw-version line:\n%s", out)
	}
}

func TestPrintMergesEfsStoresByDefault(t *testing.T) {
	cfg := NewConfig()
	cfg.NVItems["/a"] = &EfsValue{Path: "/a", Data: []byte{1}}
	cfg.ProvisioningItemFiles["/b"] = &EfsValue{Path: "/b", Data: []byte{2}}
	cfg.EFSBackup["/c"] = &EfsValue{Path: "/c", Data: []byte{3}}

	opts := DefaultOptions()
	opts.Verbosity = 0
	var buf bytes.Buffer
	if err := Print(&buf, cfg, opts); err != nil {
		t.Fatalf("Print: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "NV_Items:") || strings.Contains(out, "Provisioning_Item_Files:") {
		t.Errorf("default verbosity should merge stores, got separated headers:\n%s", out)
	}
	if !strings.Contains(out, "EFS items:") {
		t.Errorf("expected a merged \"EFS items:\" section, got:\n%s", out)
	}
}

func TestPrintSeparatesEfsStoresAtHigherVerbosity(t *testing.T) {
	cfg := NewConfig()
	cfg.NVItems["/a"] = &EfsValue{Path: "/a", Data: []byte{1}}
	cfg.ProvisioningItemFiles["/b"] = &EfsValue{Path: "/b", Data: []byte{2}}

	opts := DefaultOptions()
	opts.Verbosity = 1
	var buf bytes.Buffer
	if err := Print(&buf, cfg, opts); err != nil {
		t.Fatalf("Print: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "NV_Items:") || !strings.Contains(out, "Provisioning_Item_Files:") {
		t.Errorf("verbosity >= 1 should separate stores, got:\n%s", out)
	}
}

func TestPrintHexDumpASCIIFallback(t *testing.T) {
	var buf bytes.Buffer
	printHexDump(&buf, []byte("hello world"))
	if !strings.Contains(buf.String(), `"hello world"`) {
		t.Errorf("expected quoted ASCII text, got %q", buf.String())
	}
}

func TestPrintHexDumpUTF16LEFallback(t *testing.T) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, err := encoder.Bytes([]byte("hi"))
	if err != nil {
		t.Fatalf("encoding test fixture: %v", err)
	}
	var buf bytes.Buffer
	printHexDump(&buf, encoded)
	if !strings.Contains(buf.String(), `"hi" (utf-16le)`) {
		t.Errorf("expected utf-16le decoded fallback, got %q", buf.String())
	}
}

func TestPrintHexDumpBinaryFallback(t *testing.T) {
	var buf bytes.Buffer
	printHexDump(&buf, []byte{0x00, 0x01, 0x02, 0xFF})
	out := buf.String()
	if !strings.Contains(out, "0000:") {
		t.Errorf("expected an offset-prefixed hex dump line, got %q", out)
	}
}
