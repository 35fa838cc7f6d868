// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/richardlehane/mscfb"
)

const (
	numberedItemPacketSize = 136
	mobilePropertyInfoSize = 12 // smallest valid stream: 10 fixed bytes plus the qpst length, both strings empty
)

// ReadQCN opens a QCN (OLE2 compound file) and normalises its directory
// tree into a Config. The file is memory-mapped rather than read whole,
// mirroring the teacher's own mmap-backed image reader.
func ReadQCN(path string, opts *Options) (*Config, error) {
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

	reader, err := mscfb.New(bytes.NewReader(m))
	if err != nil {
		return nil, fatal(FormatError, "%s is not a compound file: %v", path, err)
	}

	cfg := NewConfig()
	cfg.Source = SourceQCN
	diags := &diagList{}

	efsDirs := map[string]map[string][]byte{}  // store -> ordinal -> path bytes
	efsData := map[string]map[string][]byte{}  // store -> ordinal -> data bytes

	for entry, err := reader.Next(); err == nil; entry, err = reader.Next() {
		buf := make([]byte, entry.Size)
		if entry.Size > 0 {
			if _, rerr := io.ReadFull(entry, buf); rerr != nil {
				diags.addf(IoError, "reading stream %s: %v", entry.Name, rerr)
				continue
			}
		}
		parent := ""
		if len(entry.Path) > 0 {
			parent = entry.Path[len(entry.Path)-1]
		}
		switch {
		case entry.Name == "File_Version":
			parseFileVersionStream(buf, cfg, diags)
		case entry.Name == "Mobile_Property_Info":
			parseMobilePropertyInfoStream(buf, cfg, diags)
		case entry.Name == "NV_ITEM_ARRAY":
			parseNvItemArrayStream(buf, cfg, diags)
		case parent == "EFS_Dir":
			store := storeForPath(entry.Path)
			if efsDirs[store] == nil {
				efsDirs[store] = map[string][]byte{}
			}
			efsDirs[store][entry.Name] = buf
		case parent == "EFS_Data":
			store := storeForPath(entry.Path)
			if efsData[store] == nil {
				efsData[store] = map[string][]byte{}
			}
			efsData[store][entry.Name] = buf
		default:
			key := fmt.Sprintf(":unprocessed/%v/%s", entry.Path, entry.Name)
			cfg.Unprocessed[key] = buf
		}
	}

	for store, dirs := range efsDirs {
		dataByOrdinal := efsData[store]
		target := targetMapForStore(cfg, store)
		for ordinal, pathBytes := range dirs {
			data := dataByOrdinal[ordinal]
			path := string(pathBytes)
			if store == "EFS_Backup" {
				path = stripEfsBackupPrefix(pathBytes)
			}
			target[path] = &EfsValue{
				Path:              path,
				ProvisioningStore: store == "Provisioning_Item_Files",
				Data:              data,
			}
		}
	}

	cfg.Errors = diags.diagnostics()
	return cfg, nil
}

func targetMapForStore(cfg *Config, store string) map[string]*EfsValue {
	switch store {
	case "Provisioning_Item_Files":
		return cfg.ProvisioningItemFiles
	case "EFS_Backup":
		return cfg.EFSBackup
	default:
		return cfg.NVItems
	}
}

// storeForPath returns the EFS-store directory name (one of NV_Items,
// Provisioning_Item_Files, EFS_Backup) that an EFS_Dir/EFS_Data entry's
// parent path descends from.
func storeForPath(path []string) string {
	for _, p := range path {
		switch p {
		case "NV_Items", "Provisioning_Item_Files", "EFS_Backup":
			return p
		}
	}
	return "NV_Items"
}

func parseFileVersionStream(buf []byte, cfg *Config, diags *diagList) {
	if len(buf) < 6 {
		diags.addf(FormatError, "File_Version stream too short (%d bytes)", len(buf))
		return
	}
	cfg.FileVersion = FileVersion{
		Major:   binary.LittleEndian.Uint16(buf[0:2]),
		Minor:   binary.LittleEndian.Uint16(buf[2:4]),
		Release: binary.LittleEndian.Uint16(buf[4:6]),
	}
}

func parseMobilePropertyInfoStream(buf []byte, cfg *Config, diags *diagList) {
	if len(buf) < mobilePropertyInfoSize {
		diags.addf(FormatError, "Mobile_Property_Info stream too short (%d bytes)", len(buf))
		return
	}
	efs := binary.LittleEndian.Uint32(buf[0:4])
	modelNo := binary.LittleEndian.Uint16(buf[4:6])
	major := buf[6]
	minor := buf[7]
	off := 8
	swLen := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	if off+swLen > len(buf) {
		diags.addf(FormatError, "Mobile_Property_Info sw-version length overruns stream")
		return
	}
	sw := string(buf[off : off+swLen])
	off += swLen
	if off+2 > len(buf) {
		diags.addf(FormatError, "Mobile_Property_Info missing qpst-version length")
		return
	}
	qLen := int(binary.LittleEndian.Uint16(buf[off : off+2]))
	off += 2
	qpst := ""
	if off+qLen <= len(buf) {
		qpst = string(buf[off : off+qLen])
	} else {
		diags.addf(FormatError, "Mobile_Property_Info qpst-version length overruns stream")
	}
	cfg.MobilePropertyInfo = MobilePropertyInfo{
		EFS:           efs,
		MobileModelNo: modelNo,
		MajorRev:      major,
		MinorRev:      minor,
		SWVersion:     sw,
		QPSTVersion:   qpst,
	}
}

func parseNvItemArrayStream(buf []byte, cfg *Config, diags *diagList) {
	for off := 0; off+numberedItemPacketSize <= len(buf); off += numberedItemPacketSize {
		packet := buf[off : off+numberedItemPacketSize]
		size := binary.LittleEndian.Uint16(packet[0:2])
		index := binary.LittleEndian.Uint16(packet[2:4])
		id := binary.LittleEndian.Uint16(packet[4:6])
		if size != numberedItemPacketSize {
			diags.addf(FormatError, "NV_ITEM_ARRAY packet for id %d has stream-size %d, want %d", id, size, numberedItemPacketSize)
		}
		payload := append([]byte(nil), packet[8:]...)
		cfg.NVItemArray[uint32(id)] = &NumberedValue{
			ID:    uint32(id),
			Index: int(index),
			Data:  payload,
		}
	}
	if len(buf)%numberedItemPacketSize != 0 {
		diags.addf(FormatError, "NV_ITEM_ARRAY stream length %d is not a multiple of %d", len(buf), numberedItemPacketSize)
	}
}

// efsBackupPrefix is the eight-byte marker every EFS_Backup path carries in
// the compound file, ahead of the path text itself with its leading slash
// stripped. Its meaning is undocumented upstream; preserved verbatim so a
// round trip through QCN reproduces it byte-for-byte.
var efsBackupPrefix = []byte{0x01, 0x00, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00}

func stripEfsBackupPrefix(buf []byte) string {
	if len(buf) >= len(efsBackupPrefix) {
		buf = buf[len(efsBackupPrefix):]
	}
	return "/" + string(buf)
}

// ordinalKey formats n as the eight-digit ordinal QCN directory/data
// streams are named with. legacy selects the "%08d" form some
// provisioning writers used historically; the default is "%08X".
func ordinalKey(n int, legacy bool) string {
	if legacy {
		return fmt.Sprintf("%08d", n)
	}
	return fmt.Sprintf("%08X", n)
}

