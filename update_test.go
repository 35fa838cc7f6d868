// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteUpdateScriptShebangAndOrder(t *testing.T) {
	cfg := NewConfig()
	cfg.NVItemArray[946] = &NumberedValue{ID: 946, Data: []byte{1, 2, 3}}
	cfg.NVItemArray[5] = &NumberedValue{ID: 5, Data: []byte{4}}
	cfg.NVItems["/b"] = &EfsValue{Path: "/b", Data: []byte{5}}
	cfg.NVItems["/a"] = &EfsValue{Path: "/a", Data: []byte{6}}

	var buf bytes.Buffer
	if err := WriteUpdateScript(&buf, cfg, DefaultOptions()); err != nil {
		t.Fatalf("WriteUpdateScript: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "#!/bin/sh\n") {
		t.Errorf("script should start with a shebang, got %q", out[:min(len(out), 20)])
	}

	idx5 := strings.Index(out, "--item 5 ")
	idx946 := strings.Index(out, "--item 946 ")
	idxA := strings.Index(out, "--item /a ")
	idxB := strings.Index(out, "--item /b ")
	if idx5 < 0 || idx946 < 0 || idxA < 0 || idxB < 0 {
		t.Fatalf("missing expected item lines in:\n%s", out)
	}
	if idx5 > idx946 {
		t.Errorf("numbered items should be emitted in ascending id order: got 5 at %d after 946 at %d", idx5, idx946)
	}
	if idxA > idxB {
		t.Errorf("EFS items should be emitted in sorted path order: got /a at %d after /b at %d", idxA, idxB)
	}
}

func TestWriteUpdateLineByteCount(t *testing.T) {
	var buf bytes.Buffer
	writeUpdateLine(&buf, "5", []byte{1, 2, 3})
	out := buf.String()
	if !strings.Contains(out, "--item 5 3 \\\n") {
		t.Errorf("expected a byte-count header line, got %q", out)
	}
	if !strings.Contains(out, "1, 2, 3") {
		t.Errorf("expected the byte values rendered in the body, got %q", out)
	}
}

func TestWriteUpdateLineWrapsLongPayloads(t *testing.T) {
	data := make([]byte, bytesPerUpdateLine+1)
	for i := range data {
		data[i] = byte(i)
	}
	var buf bytes.Buffer
	writeUpdateLine(&buf, "x", data)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	// header + two body lines (one full, one with the remainder).
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasSuffix(lines[1], ", \\") {
		t.Errorf("first body line should have a line-continuation suffix, got %q", lines[1])
	}
}
