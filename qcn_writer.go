// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/google/renameio"
)

// No third-party library in the available ecosystem writes OLE2/CFB
// compound files (richardlehane/mscfb, the only compound-file library
// reachable here, is read-only) — see the design notes for the survey.
// This is therefore a from-scratch, minimal CFB version-3 writer: no mini
// stream (cutoff forced to zero, so every entry uses full 512-byte
// sectors), and sibling ordering within a storage is a simple sorted
// right-only chain rather than a balanced tree. Both are valid, legal CFB
// content; a conformant reader never depends on tree balance or on the
// mini stream being present.

const (
	cfbSectorSize   = 512
	cfbDirEntrySize = 128
	cfbDirsPerSect  = cfbSectorSize / cfbDirEntrySize
	cfbFreeSect     = 0xFFFFFFFF
	cfbEndOfChain   = 0xFFFFFFFE
	cfbFatSect      = 0xFFFFFFFD
	cfbNoStream     = 0xFFFFFFFF

	cfbObjUnknown = 0
	cfbObjStorage = 1
	cfbObjStream  = 2
	cfbObjRoot    = 5
)

var cfbSignature = [8]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// cfbEntry is one node of the compound-file tree being built: a storage
// (directory) with children, or a stream with data.
type cfbEntry struct {
	name     string
	storage  bool
	children []*cfbEntry
	data     []byte

	id           int
	leftSibling  int
	rightSibling int
	child        int
	startSector  int
}

// WriteQCN serialises cfg into the OLE2 compound-file layout a QCN reader
// expects, and atomically replaces path with the result.
func WriteQCN(path string, cfg *Config, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}
	root := buildQcnTree(cfg, opts)
	buf, err := renderCompoundFile(root)
	if err != nil {
		return fatal(FormatError, "building %s: %v", path, err)
	}
	if err := renameio.WriteFile(path, buf, 0o644); err != nil {
		return fatal(IoError, "writing %s: %v", path, err)
	}
	return nil
}

func buildQcnTree(cfg *Config, opts *Options) *cfbEntry {
	root := &cfbEntry{name: "Root Entry", storage: true}

	fv := make([]byte, 6)
	binary.LittleEndian.PutUint16(fv[0:2], cfg.FileVersion.Major)
	binary.LittleEndian.PutUint16(fv[2:4], cfg.FileVersion.Minor)
	binary.LittleEndian.PutUint16(fv[4:6], cfg.FileVersion.Release)
	root.children = append(root.children, &cfbEntry{name: "File_Version", data: fv})

	defaultStorage := &cfbEntry{name: "default", storage: true}
	defaultStorage.children = append(defaultStorage.children,
		&cfbEntry{name: "Mobile_Property_Info", data: encodeMobilePropertyInfo(cfg.MobilePropertyInfo)},
		buildEfsStoreStorage("Provisioning_Item_Files", cfg.ProvisioningItemFiles, opts.LegacyProvisioningOrdinals, false),
		buildEfsStoreStorage("NV_Items", cfg.NVItems, false, false),
		buildEfsStoreStorage("EFS_Backup", cfg.EFSBackup, false, true),
		&cfbEntry{
			name: "NV_NUMBERED_ITEMS", storage: true,
			children: []*cfbEntry{{name: "NV_ITEM_ARRAY", data: encodeNvItemArray(cfg.NVItemArray)}},
		},
	)

	outerStorage := &cfbEntry{name: "00000000", storage: true, children: []*cfbEntry{defaultStorage}}
	root.children = append(root.children, outerStorage)
	return root
}

func buildEfsStoreStorage(name string, items map[string]*EfsValue, legacyOrdinals, backup bool) *cfbEntry {
	storage := &cfbEntry{name: name, storage: true}
	efsDir := &cfbEntry{name: "EFS_Dir", storage: true}
	efsData := &cfbEntry{name: "EFS_Data", storage: true}

	paths := make([]string, 0, len(items))
	for p := range items {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for i, p := range paths {
		ordinal := ordinalKey(i+1, legacyOrdinals)
		v := items[p]
		pathBytes := []byte(p)
		if backup {
			trimmed := strings.TrimPrefix(p, "/")
			pathBytes = append(append([]byte(nil), efsBackupPrefix...), []byte(trimmed)...)
		}
		efsDir.children = append(efsDir.children, &cfbEntry{name: ordinal, data: pathBytes})
		efsData.children = append(efsData.children, &cfbEntry{name: ordinal, data: v.Data})
	}
	storage.children = append(storage.children, efsDir, efsData)
	return storage
}

func encodeMobilePropertyInfo(m MobilePropertyInfo) []byte {
	var buf bytes.Buffer
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], m.EFS)
	buf.Write(u32[:])
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], m.MobileModelNo)
	buf.Write(u16[:])
	buf.WriteByte(m.MajorRev)
	buf.WriteByte(m.MinorRev)
	binary.LittleEndian.PutUint16(u16[:], uint16(len(m.SWVersion)))
	buf.Write(u16[:])
	buf.WriteString(m.SWVersion)
	binary.LittleEndian.PutUint16(u16[:], uint16(len(m.QPSTVersion)))
	buf.Write(u16[:])
	buf.WriteString(m.QPSTVersion)
	return buf.Bytes()
}

func encodeNvItemArray(items map[uint32]*NumberedValue) []byte {
	ids := make([]uint32, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]byte, 0, len(ids)*numberedItemPacketSize)
	for _, id := range ids {
		v := items[id]
		packet := make([]byte, numberedItemPacketSize)
		binary.LittleEndian.PutUint16(packet[0:2], numberedItemPacketSize)
		index := v.Index
		if index == 0 {
			index = 1
		}
		binary.LittleEndian.PutUint16(packet[2:4], uint16(index))
		binary.LittleEndian.PutUint16(packet[4:6], uint16(id))
		copy(packet[8:], v.Data)
		out = append(out, packet...)
	}
	return out
}

// renderCompoundFile walks root, assigns stream ids and sector
// allocations, and serialises the whole tree to CFB bytes.
func renderCompoundFile(root *cfbEntry) ([]byte, error) {
	var entries []*cfbEntry
	var walk func(e *cfbEntry)
	walk = func(e *cfbEntry) {
		e.id = len(entries)
		entries = append(entries, e)
		sortSiblings(e.children)
		for _, c := range e.children {
			walk(c)
		}
		linkSiblings(e.children)
	}
	walk(root)
	for _, e := range entries {
		if e.storage {
			if len(e.children) > 0 {
				e.child = e.children[0].id
			} else {
				e.child = cfbNoStream
			}
		}
	}

	numDirSectors := (len(entries) + cfbDirsPerSect - 1) / cfbDirsPerSect
	if numDirSectors == 0 {
		numDirSectors = 1
	}

	streamSectorsFor := func(size int) int {
		if size == 0 {
			return 0
		}
		return (size + cfbSectorSize - 1) / cfbSectorSize
	}
	totalStreamSectors := 0
	for _, e := range entries {
		if !e.storage {
			totalStreamSectors += streamSectorsFor(len(e.data))
		}
	}

	numFatSectors := 1
	for {
		totalSectors := numFatSectors + numDirSectors + totalStreamSectors
		need := (totalSectors + 127) / 128
		if need <= numFatSectors {
			break
		}
		numFatSectors = need
	}
	if numFatSectors > 109 {
		return nil, fmt.Errorf("compound file too large: %d FAT sectors exceeds the 109-entry DIFAT the writer supports", numFatSectors)
	}

	// Physical sector layout: [FAT][Directory][Stream data...].
	fatStart := 0
	dirStart := fatStart + numFatSectors
	streamStart := dirStart + numDirSectors
	totalSectors := streamStart + totalStreamSectors

	fat := make([]uint32, totalSectors)
	for i := range fat {
		fat[i] = cfbFreeSect
	}
	for i := 0; i < numFatSectors; i++ {
		fat[fatStart+i] = cfbFatSect
	}
	chainSectors := func(start, count int) {
		for i := 0; i < count; i++ {
			if i == count-1 {
				fat[start+i] = cfbEndOfChain
			} else {
				fat[start+i] = uint32(start + i + 1)
			}
		}
	}
	chainSectors(dirStart, numDirSectors)

	cursor := streamStart
	for _, e := range entries {
		if e.storage {
			e.startSector = cfbNoStream
			continue
		}
		n := streamSectorsFor(len(e.data))
		if n == 0 {
			e.startSector = cfbEndOfChain
			continue
		}
		e.startSector = cursor
		chainSectors(cursor, n)
		cursor += n
	}

	out := make([]byte, cfbSectorSize+totalSectors*cfbSectorSize)
	writeHeader(out, numFatSectors, dirStart)
	for i := 0; i < numFatSectors; i++ {
		sectorOff := cfbSectorSize + (fatStart+i)*cfbSectorSize
		for j := 0; j < 128; j++ {
			idx := i*128 + j
			var v uint32 = cfbFreeSect
			if idx < len(fat) {
				v = fat[idx]
			}
			binary.LittleEndian.PutUint32(out[sectorOff+j*4:], v)
		}
	}
	writeDirectorySectors(out, cfbSectorSize+dirStart*cfbSectorSize, numDirSectors, entries)
	for _, e := range entries {
		if e.storage || len(e.data) == 0 {
			continue
		}
		off := cfbSectorSize + e.startSector*cfbSectorSize
		copy(out[off:], e.data)
	}
	return out, nil
}

func writeHeader(out []byte, numFatSectors, firstDirSector int) {
	copy(out[0:8], cfbSignature[:])
	binary.LittleEndian.PutUint16(out[24:26], 0x003E)
	binary.LittleEndian.PutUint16(out[26:28], 3)
	binary.LittleEndian.PutUint16(out[28:30], 0xFFFE)
	binary.LittleEndian.PutUint16(out[30:32], 9) // sector shift: 512-byte sectors
	binary.LittleEndian.PutUint16(out[32:34], 6) // mini sector shift: unused, cutoff is zero
	binary.LittleEndian.PutUint32(out[40:44], 0) // number of directory sectors (must be 0 pre-v4)
	binary.LittleEndian.PutUint32(out[44:48], uint32(numFatSectors))
	binary.LittleEndian.PutUint32(out[48:52], uint32(firstDirSector))
	binary.LittleEndian.PutUint32(out[52:56], 0) // transaction signature
	binary.LittleEndian.PutUint32(out[56:60], 0) // mini stream cutoff: forced to zero, no mini stream
	binary.LittleEndian.PutUint32(out[60:64], cfbEndOfChain)
	binary.LittleEndian.PutUint32(out[64:68], 0)
	binary.LittleEndian.PutUint32(out[68:72], cfbEndOfChain)
	binary.LittleEndian.PutUint32(out[72:76], 0)
	for i := 0; i < 109; i++ {
		v := uint32(cfbFreeSect)
		if i < numFatSectors {
			v = uint32(i)
		}
		binary.LittleEndian.PutUint32(out[76+i*4:], v)
	}
}

func writeDirectorySectors(out []byte, base int, numDirSectors int, entries []*cfbEntry) {
	for i := 0; i < numDirSectors*cfbDirsPerSect; i++ {
		off := base + i*cfbDirEntrySize
		if i >= len(entries) {
			// Unallocated slot: all-zero name, type 0 (unknown).
			continue
		}
		writeDirEntry(out[off:off+cfbDirEntrySize], entries[i])
	}
}

func writeDirEntry(buf []byte, e *cfbEntry) {
	name := e.name
	u16 := utf16Encode(name)
	nameLen := (len(u16) + 1) * 2
	if nameLen > 64 {
		nameLen = 64
		u16 = u16[:31]
	}
	for i, c := range u16 {
		binary.LittleEndian.PutUint16(buf[i*2:], c)
	}
	binary.LittleEndian.PutUint16(buf[64:66], uint16(nameLen))

	objType := byte(cfbObjStream)
	if e.storage {
		objType = cfbObjStorage
	}
	if e.id == 0 {
		objType = cfbObjRoot
	}
	buf[66] = objType
	buf[67] = 1 // color: black: the simplified right-chain never needs red nodes to stay valid.

	binary.LittleEndian.PutUint32(buf[68:72], uint32(cfbNoStream)) // left sibling: unused by the right-only chain
	binary.LittleEndian.PutUint32(buf[72:76], uint32(e.rightSibling))
	if e.storage {
		binary.LittleEndian.PutUint32(buf[76:80], uint32(e.child))
	} else {
		binary.LittleEndian.PutUint32(buf[76:80], uint32(cfbNoStream))
	}
	// CLSID (16 bytes), state bits, timestamps: left zero.
	start := uint32(cfbNoStream)
	size := uint64(0)
	if !e.storage {
		start = uint32(e.startSector)
		size = uint64(len(e.data))
	}
	binary.LittleEndian.PutUint32(buf[116:120], start)
	binary.LittleEndian.PutUint64(buf[120:128], size)
}

// sortSiblings orders children the way CFB's directory binary tree
// requires: by name length, then case-insensitive (upper-cased) content.
func sortSiblings(children []*cfbEntry) {
	sort.Slice(children, func(i, j int) bool {
		a, b := children[i].name, children[j].name
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return strings.ToUpper(a) < strings.ToUpper(b)
	})
}

// linkSiblings arranges children as a right-only chain: a legal, if
// unbalanced, binary search tree over sibling names. Called only after
// every child (and its subtree) has already been walked, so each child's
// id is final.
func linkSiblings(children []*cfbEntry) {
	for i, c := range children {
		c.leftSibling = cfbNoStream
		if i+1 < len(children) {
			c.rightSibling = children[i+1].id
		} else {
			c.rightSibling = cfbNoStream
		}
	}
}

func utf16Encode(s string) []uint16 {
	var out []uint16
	for _, r := range s {
		if r <= 0xFFFF {
			out = append(out, uint16(r))
		} else {
			r -= 0x10000
			out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
		}
	}
	return out
}
