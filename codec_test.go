// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import "testing"

func TestPackUintRoundTrip(t *testing.T) {
	tests := []struct {
		bits  int
		value int64
	}{
		{8, 0}, {8, 255},
		{16, 0}, {16, 65535},
		{32, 0}, {32, 4294967295},
		{64, 0}, {64, 1 << 40},
	}
	for _, tt := range tests {
		b, err := PackUint(tt.bits, tt.value)
		if err != nil {
			t.Fatalf("PackUint(%d, %d) failed: %v", tt.bits, tt.value, err)
		}
		_, got, err := UnpackUint(b, tt.bits)
		if err != nil {
			t.Fatalf("UnpackUint: %v", err)
		}
		if int64(got) != tt.value {
			t.Errorf("round trip: got %d, want %d", got, tt.value)
		}
	}
}

func TestPackIntRoundTrip(t *testing.T) {
	tests := []struct {
		bits  int
		value int64
	}{
		{8, -128}, {8, 127},
		{16, -32768}, {16, 32767},
		{32, -2147483648}, {32, 2147483647},
		{64, -1 << 40}, {64, 1 << 40},
	}
	for _, tt := range tests {
		b, err := PackInt(tt.bits, tt.value)
		if err != nil {
			t.Fatalf("PackInt(%d, %d) failed: %v", tt.bits, tt.value, err)
		}
		_, got, err := UnpackInt(b, tt.bits)
		if err != nil {
			t.Fatalf("UnpackInt: %v", err)
		}
		if got != tt.value {
			t.Errorf("round trip: got %d, want %d", got, tt.value)
		}
	}
}

func TestPackUintBoundary(t *testing.T) {
	if _, err := PackUint(16, 65535); err != nil {
		t.Errorf("PackUint(16, 65535) should succeed, got %v", err)
	}
	if _, err := PackUint(16, 65536); err == nil {
		t.Errorf("PackUint(16, 65536) should fail with RangeError")
	}
}

func TestPackIntBoundary(t *testing.T) {
	if _, err := PackInt(16, -32768); err != nil {
		t.Errorf("PackInt(16, -32768) should succeed, got %v", err)
	}
	if _, err := PackInt(16, -32769); err == nil {
		t.Errorf("PackInt(16, -32769) should fail with RangeError")
	}
}

func TestPackStringFixed(t *testing.T) {
	got := PackStringFixed("ims", 30)
	if len(got) != 30 {
		t.Fatalf("len = %d, want 30", len(got))
	}
	if string(got[:3]) != "ims" {
		t.Errorf("prefix = %q, want %q", got[:3], "ims")
	}
	for _, b := range got[3:] {
		if b != 0 {
			t.Errorf("expected zero padding after byte 3, got %#x", b)
		}
	}

	truncated := PackStringFixed("abcdef", 3)
	if string(truncated) != "abc" {
		t.Errorf("truncated = %q, want %q", truncated, "abc")
	}
}

func TestUnpackCString(t *testing.T) {
	buf := []byte{'a', 'b', 'c', 0, 0, 0}
	rest, text, err := UnpackCString(buf, 6)
	if err != nil {
		t.Fatalf("UnpackCString: %v", err)
	}
	if text != "abc" {
		t.Errorf("text = %q, want %q", text, "abc")
	}
	if len(rest) != 0 {
		t.Errorf("rest = %v, want empty", rest)
	}
}

func TestUint8OrASCII(t *testing.T) {
	isString, text, _ := Uint8OrASCII(3, []byte("abc"))
	if !isString || text != "abc" {
		t.Errorf("got (%v, %q), want (true, %q)", isString, text, "abc")
	}

	isString, _, values := Uint8OrASCII(3, []byte{0x01, 0x02, 0x03})
	if isString {
		t.Errorf("expected non-ASCII bytes to be reported as values, got string")
	}
	if len(values) != 3 {
		t.Errorf("values len = %d, want 3", len(values))
	}
}
