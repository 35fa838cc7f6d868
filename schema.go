// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/qcomnv/nvcfg/internal/log"
)

// efsBackupRedirectThreshold is the numbered-item id at and above which a
// NvItem in the schema is redirected into the EFS item map, synthesised at
// efsSynthesizedPath(id).
const efsBackupRedirectThreshold = 20000

// ParseSchema reads an NV-definition schema XML file and builds the
// immutable Catalog: numbered items, EFS items, and named composite data
// types, with composites substituted down to primitive members.
func ParseSchema(path string, opts *Options, logger *log.Helper) (*Catalog, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fatal(IoError, "reading schema %s: %v", path, err)
	}
	return parseSchemaDoc(doc, opts, logger)
}

func parseSchemaDoc(doc *etree.Document, opts *Options, logger *log.Helper) (*Catalog, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	cat := &Catalog{
		NumberedItems: make(map[uint32]*NumberedItem),
		EfsItems:      make(map[string]*EfsItem),
		DataTypes:     make(map[string]*DataType),
	}
	diags := &diagList{}

	root := doc.Root()
	if root == nil {
		return nil, fatal(FormatError, "schema document has no root element")
	}

	for _, el := range root.ChildElements() {
		switch el.Tag {
		case "NvItem":
			parseNvItem(el, cat, diags)
		case "NvEfsItem":
			parseNvEfsItem(el, cat, diags)
		case "DataType":
			parseDataType(el, cat, diags)
		default:
			diags.addf(SchemaError, "unexpected top-level element %q", el.Tag)
		}
	}

	resolveComposites(cat, opts.CompositeResolvePasses, opts.EfsCompositeResolvePasses, diags)
	computeSizes(cat)

	cat.Errors = diags.diagnostics()
	if logger != nil {
		for _, d := range cat.Errors {
			logger.Debugf("schema: %s", d.Error())
		}
	}
	return cat, nil
}

func parseMembers(el *etree.Element, diags *diagList, context string) []Member {
	var members []Member
	for _, mel := range el.SelectElements("Member") {
		name := mel.SelectAttrValue("name", "")
		typ := mel.SelectAttrValue("type", "")
		sizeStr := mel.SelectAttrValue("sizeOf", "1")
		size, err := strconv.Atoi(sizeStr)
		if err != nil {
			diags.addf(SchemaError, "%s: member %q has non-numeric sizeOf %q", context, name, sizeStr)
			size = 1
		}
		members = append(members, Member{Name: name, Type: typ, Size: size})
	}
	return members
}

func parseNvItem(el *etree.Element, cat *Catalog, diags *diagList) {
	idStr := el.SelectAttrValue("id", "")
	id64, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		diags.addf(SchemaError, "NvItem has non-numeric id %q", idStr)
		return
	}
	id := uint32(id64)
	name := el.SelectAttrValue("name", "")
	perm := el.SelectAttrValue("permission", "")
	members := parseMembers(el, diags, "NvItem "+idStr)

	if id >= efsBackupRedirectThreshold {
		path := efsSynthesizedPath(id)
		if _, dup := cat.EfsItems[path]; dup {
			diags.addf(SchemaError, "duplicate EFS path (via redirected NvItem id %d): %s", id, path)
		}
		cat.EfsItems[path] = &EfsItem{Path: path, Permission: perm, Members: members}
		return
	}

	if _, dup := cat.NumberedItems[id]; dup {
		diags.addf(SchemaError, "duplicate NvItem id %d", id)
	}
	cat.NumberedItems[id] = &NumberedItem{ID: id, Name: name, Permission: perm, Members: members}
}

func parseNvEfsItem(el *etree.Element, cat *Catalog, diags *diagList) {
	path := el.SelectAttrValue("fullpathname", "")
	if path == "" {
		diags.addf(SchemaError, "NvEfsItem missing fullpathname")
		return
	}
	perm := el.SelectAttrValue("permission", "")
	compressed := el.SelectAttrValue("compressed", "false") == "true"
	variableSize := el.SelectAttrValue("variable-size", "false") == "true"
	members := parseMembers(el, diags, "NvEfsItem "+path)

	if _, dup := cat.EfsItems[path]; dup {
		diags.addf(SchemaError, "duplicate EFS path %s", path)
	}
	cat.EfsItems[path] = &EfsItem{
		Path: path, Permission: perm,
		Compressed: compressed, VariableSize: variableSize,
		Members: members,
	}
}

func parseDataType(el *etree.Element, cat *Catalog, diags *diagList) {
	name := el.SelectAttrValue("name", "")
	if name == "" {
		diags.addf(SchemaError, "DataType missing name")
		return
	}
	members := parseMembers(el, diags, "DataType "+name)
	if _, dup := cat.DataTypes[name]; dup {
		diags.addf(SchemaError, "duplicate DataType %s", name)
	}
	cat.DataTypes[name] = &DataType{Name: name, Members: members}
}

// resolveComposites replaces, in place, any Member whose Type names a
// DataType with that type's Members repeated Size times and flattened one
// level. It iterates up to maxPasses (numbered items) / maxEfsPasses (EFS
// items) times so nested composites collapse; a reference still
// unresolved after the last pass is left literal and recorded as a
// SchemaError rather than looped on forever (cycle guard).
func resolveComposites(cat *Catalog, maxPasses, maxEfsPasses int, diags *diagList) {
	for i := 0; i < maxPasses; i++ {
		anyChanged := false
		for _, item := range cat.NumberedItems {
			newMembers, changed := substituteWithFlag(item.Members, cat.DataTypes)
			item.Members = newMembers
			if changed {
				anyChanged = true
			}
		}
		if !anyChanged {
			break
		}
	}
	for i := 0; i < maxEfsPasses; i++ {
		anyChanged := false
		for _, item := range cat.EfsItems {
			newMembers, changed := substituteWithFlag(item.Members, cat.DataTypes)
			item.Members = newMembers
			if changed {
				anyChanged = true
			}
		}
		if !anyChanged {
			break
		}
	}
	// Record any alias still unresolved after the final pass.
	for id, item := range cat.NumberedItems {
		for _, m := range item.Members {
			if !validPrimitive(m.Type) {
				if _, ok := cat.DataTypes[m.Type]; ok {
					diags.addf(SchemaError, "NvItem %d: composite %q left unresolved after %d pass(es)", id, m.Type, maxPasses)
				}
			}
		}
	}
	for path, item := range cat.EfsItems {
		for _, m := range item.Members {
			if !validPrimitive(m.Type) {
				if _, ok := cat.DataTypes[m.Type]; ok {
					diags.addf(SchemaError, "EFS item %s: composite %q left unresolved after %d pass(es)", path, m.Type, maxEfsPasses)
				}
			}
		}
	}
}

func substituteWithFlag(members []Member, types map[string]*DataType) ([]Member, bool) {
	changed := false
	var out []Member
	for _, m := range members {
		dt, isComposite := types[m.Type]
		if !isComposite || validPrimitive(m.Type) {
			out = append(out, m)
			continue
		}
		changed = true
		for i := 0; i < m.Size; i++ {
			out = append(out, dt.Members...)
		}
	}
	return out, changed
}

func computeSizes(cat *Catalog) {
	for _, item := range cat.NumberedItems {
		item.Size = aggregateSize(item.Members)
	}
	for _, item := range cat.EfsItems {
		item.Size = aggregateSize(item.Members)
	}
}

func aggregateSize(members []Member) int {
	total := 0
	for _, m := range members {
		total += m.byteSize()
	}
	return total
}

// memberByName returns the index of the first named member whose name
// matches name case-insensitively, or (-1, false) if none does.
// marshalStructured performs its own by-name match and does not call it.
func memberByName(members []Member, name string) (int, bool) {
	for i, m := range members {
		if m.Name != "" && strings.EqualFold(m.Name, name) {
			return i, true
		}
	}
	return -1, false
}
