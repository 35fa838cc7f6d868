// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"encoding/binary"
	"os"

	"github.com/edsrzf/mmap-go"
)

const (
	mcfgMagic           = 0x4753434D // "MCFG" little-endian
	mcfgMaxFormatVer    = 3
	elfPtLoad           = 1
	mcfgHeaderSize      = 16
	mcfgVersionRecSize  = 8
	mcfgItemPrefixSize  = 8
	mcfgItemTypeNV      = 0x01
	mcfgItemTypeEFSFile = 0x02
)

// ReadMBN extracts the single PT_LOAD segment from an ELF32 image, parses
// its MCFG record stream, and normalises the result into a Config, the
// same shape ReadQCN and LoadMasterFile produce.
func ReadMBN(path string, opts *Options) (*Config, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fatal(IoError, "opening %s: %v", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fatal(IoError, "stat %s: %v", path, err)
	}
	if info.Size() == 0 {
		return nil, fatal(FormatError, "%s is empty", path)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fatal(IoError, "mmap %s: %v", path, err)
	}
	defer m.Unmap()

	ident, err := parseElfIdent(m)
	if err != nil {
		return nil, err
	}
	segment, err := findPtLoadSegment(m, ident)
	if err != nil {
		return nil, err
	}

	cfg := NewConfig()
	cfg.Source = SourceMBN
	diags := &diagList{}
	if err := parseMcfg(segment, cfg, opts, diags); err != nil {
		return nil, err
	}
	cfg.Errors = diags.diagnostics()
	return cfg, nil
}

func parseElfIdent(m []byte) (ElfIdent, error) {
	if len(m) < 52 || m[0] != 0x7F || m[1] != 'E' || m[2] != 'L' || m[3] != 'F' {
		return ElfIdent{}, fatal(FormatError, "not an ELF image")
	}
	ident := ElfIdent{
		Class:        m[4],
		DataEncoding: m[5],
		Version:      m[6],
		OSABI:        m[7],
	}
	if ident.Class != 1 {
		return ident, fatal(FormatError, "expected ELF32 (class 1), got class %d", ident.Class)
	}
	return ident, nil
}

// elf32Header mirrors the fields of Elf32_Ehdr this reader needs.
type elf32Header struct {
	phoff     uint32
	phentsize uint16
	phnum     uint16
}

func parseElf32Header(m []byte) (elf32Header, error) {
	if len(m) < 52 {
		return elf32Header{}, fatal(FormatError, "ELF header truncated")
	}
	return elf32Header{
		phoff:     binary.LittleEndian.Uint32(m[28:32]),
		phentsize: binary.LittleEndian.Uint16(m[42:44]),
		phnum:     binary.LittleEndian.Uint16(m[44:46]),
	}, nil
}

// findPtLoadSegment reads the ELF32 program header table and returns the
// file bytes of the first PT_LOAD (p_type == 1) segment.
func findPtLoadSegment(m []byte, _ ElfIdent) ([]byte, error) {
	hdr, err := parseElf32Header(m)
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(hdr.phnum); i++ {
		off := int(hdr.phoff) + i*int(hdr.phentsize)
		if off+32 > len(m) {
			return nil, fatal(FormatError, "program header %d out of range", i)
		}
		pType := binary.LittleEndian.Uint32(m[off : off+4])
		if pType != elfPtLoad {
			continue
		}
		fileOff := binary.LittleEndian.Uint32(m[off+4 : off+8])
		fileSize := binary.LittleEndian.Uint32(m[off+16 : off+20])
		start := int(fileOff)
		end := start + int(fileSize)
		if start < 0 || end > len(m) || end < start {
			return nil, fatal(FormatError, "PT_LOAD segment %d out of range", i)
		}
		return m[start:end], nil
	}
	return nil, fatal(FormatError, "no PT_LOAD segment found")
}

// parseMcfg decodes the MCFG record stream inside a PT_LOAD segment into
// cfg's numbered/EFS item maps.
func parseMcfg(seg []byte, cfg *Config, opts *Options, diags *diagList) error {
	if len(seg) < mcfgHeaderSize {
		return fatal(FormatError, "MCFG segment shorter than the 16-byte header")
	}
	magic := binary.LittleEndian.Uint32(seg[0:4])
	if magic != mcfgMagic {
		return fatal(FormatError, "MCFG magic mismatch: got %#x, want %#x", magic, uint32(mcfgMagic))
	}
	fmtVer := seg[4]
	if fmtVer > mcfgMaxFormatVer {
		return fatal(FormatError, "MCFG format version %d exceeds supported ceiling %d", fmtVer, mcfgMaxFormatVer)
	}
	numItems := binary.LittleEndian.Uint32(seg[8:12])

	off := mcfgHeaderSize
	if off+mcfgVersionRecSize > len(seg) {
		return fatal(FormatError, "MCFG version record truncated")
	}
	off += mcfgVersionRecSize

	for i := uint32(0); i < numItems; i++ {
		if off+mcfgItemPrefixSize > len(seg) {
			diags.addf(FormatError, "MCFG item %d: prefix record truncated", i)
			break
		}
		length := binary.LittleEndian.Uint16(seg[off : off+2])
		typ := binary.LittleEndian.Uint16(seg[off+2 : off+4])
		off += mcfgItemPrefixSize
		recEnd := off + int(length)
		if recEnd > len(seg) {
			diags.addf(FormatError, "MCFG item %d: record of length %d overruns segment", i, length)
			break
		}
		rec := seg[off:recEnd]

		switch typ {
		case mcfgItemTypeNV:
			parseMcfgNvRecord(rec, cfg, diags)
		case mcfgItemTypeEFSFile:
			if err := parseMcfgEfsRecord(rec, cfg); err != nil {
				diags.addf(FormatError, "MCFG item %d: %v", i, err)
			}
		default:
			if opts.logger() != nil {
				opts.logger().Debugf("MCFG item %d: unsupported record type %#x, skipping", i, typ)
			}
		}
		off = recEnd
	}
	return nil
}

// parseMcfgNvRecord decodes a legacy-NV-item record:
// uint16 type, uint16 length, payload[length]; the payload's first byte is
// the item's numbered index, per the on-wire legacy format.
func parseMcfgNvRecord(rec []byte, cfg *Config, diags *diagList) {
	if len(rec) < 4 {
		diags.addf(FormatError, "legacy NV record truncated")
		return
	}
	id := binary.LittleEndian.Uint16(rec[0:2])
	length := binary.LittleEndian.Uint16(rec[2:4])
	payload := rec[4:]
	if int(length) > len(payload) {
		diags.addf(FormatError, "legacy NV record %d: declared length %d exceeds available %d bytes", id, length, len(payload))
		length = uint16(len(payload))
	}
	payload = payload[:length]
	index := 0
	if len(payload) > 0 {
		index = int(payload[0])
	}
	cfg.NVItemArray[uint32(id)] = &NumberedValue{
		ID:    uint32(id),
		Index: index,
		Data:  append([]byte(nil), payload...),
	}
}

// parseMcfgEfsRecord decodes an EFS-file record: a length-prefixed path
// sub-record followed by a length-prefixed content sub-record. Keyed by
// its path, same as the QCN reader and the master-file transformer, so
// every EFS store is keyed uniformly regardless of source format.
func parseMcfgEfsRecord(rec []byte, cfg *Config) error {
	path, rest, err := readMcfgLenPrefixed(rec)
	if err != nil {
		return err
	}
	content, _, err := readMcfgLenPrefixed(rest)
	if err != nil {
		return err
	}
	cfg.NVItems[string(path)] = &EfsValue{
		Path: string(path),
		Data: append([]byte(nil), content...),
	}
	return nil
}

func readMcfgLenPrefixed(buf []byte) (value, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, fatal(FormatError, "length-prefixed sub-record truncated")
	}
	length := binary.LittleEndian.Uint16(buf[2:4])
	if int(length)+4 > len(buf) {
		return nil, nil, fatal(FormatError, "length-prefixed sub-record declares %d bytes, have %d", length, len(buf)-4)
	}
	return buf[4 : 4+length], buf[4+length:], nil
}
