// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

var tokenSplitRE = regexp.MustCompile(`[ ,\t\n]+`)

// masterTree is the intermediate, unmarshalled result of parsing a master
// XML file (and any xi:include descendants): raw NumberedValue/EfsValue
// records plus the accumulated parse-time diagnostics. The Item
// Transformer applies the marshaller to turn this into a finished Config.
type masterTree struct {
	Numbered map[uint32]*NumberedValue
	EFS      map[string]*EfsValue
	// shapes mirrors Numbered/EFS, holding each item's decoded ValueShape
	// (the raw text is kept on the value struct for diagnostics/printing).
	numberedShape map[uint32]ValueShape
	efsShape      map[string]ValueShape
	diags         *diagList
}

func newMasterTree() *masterTree {
	return &masterTree{
		Numbered:      make(map[uint32]*NumberedValue),
		EFS:           make(map[string]*EfsValue),
		numberedShape: make(map[uint32]ValueShape),
		efsShape:      make(map[string]ValueShape),
		diags:         &diagList{},
	}
}

// LoadMasterFile parses a master value XML file against cat and returns
// the finished, marshalled Config.
func LoadMasterFile(path string, cat *Catalog, opts *Options) (*Config, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	tree := newMasterTree()
	if err := parseMasterFile(path, filepath.Dir(path), tree); err != nil {
		return nil, err
	}
	cfg := Transform(cat, tree, opts)
	cfg.Source = SourceXML
	return cfg, nil
}

// parseMasterFile parses one master XML document, resolving xi:include
// hrefs relative to baseDir (passed explicitly, never via process CWD),
// and merges results into tree with last-write-wins on id/path collision.
func parseMasterFile(path, baseDir string, tree *masterTree) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return fatal(IoError, "reading master file %s: %v", path, err)
	}
	root := doc.Root()
	if root == nil {
		return fatal(FormatError, "master file %s has no root element", path)
	}
	return parseMasterElement(root, baseDir, tree)
}

func parseMasterElement(root *etree.Element, baseDir string, tree *masterTree) error {
	for _, el := range root.ChildElements() {
		switch {
		case el.Tag == "include" && el.Space == "xi":
			href := el.SelectAttrValue("href", "")
			if href == "" {
				tree.diags.addf(SchemaError, "xi:include missing href")
				continue
			}
			includePath := href
			if !filepath.IsAbs(href) {
				includePath = filepath.Join(baseDir, href)
			}
			if err := parseMasterFile(includePath, filepath.Dir(includePath), tree); err != nil {
				tree.diags.addf(IoError, "xi:include %s: %v", href, err)
			}
		case el.Tag == "NvItem":
			parseMasterNvItem(el, tree)
		case el.Tag == "NvEfsItem":
			parseMasterNvEfsItem(el, tree)
		default:
			tree.diags.addf(SchemaError, "unexpected master-file element %q", el.Tag)
		}
	}
	return nil
}

func valueShapeFor(el *etree.Element) ValueShape {
	children := el.ChildElements()
	if len(children) == 0 {
		return scalarShape(strings.TrimSpace(el.Text()))
	}
	named := make([]NamedChild, 0, len(children))
	for _, c := range children {
		named = append(named, NamedChild{Tag: c.Tag, Content: strings.TrimSpace(c.Text())})
	}
	return listShape(named)
}

func parseMasterNvItem(el *etree.Element, tree *masterTree) {
	idStr := el.SelectAttrValue("id", "")
	id64, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		tree.diags.addf(SchemaError, "NvItem has non-numeric id %q", idStr)
		return
	}
	id := uint32(id64)
	shape := valueShapeFor(el)
	index, _ := strconv.Atoi(el.SelectAttrValue("index", "1"))
	if index == 0 {
		index = 1
	}

	if id >= efsBackupRedirectThreshold {
		path := efsSynthesizedPath(id)
		tree.EFS[path] = &EfsValue{
			Path:              path,
			Index:             index,
			Mapping:           el.SelectAttrValue("mapping", ""),
			Encoding:          el.SelectAttrValue("encoding", "dec"),
			ProvisioningStore: el.SelectAttrValue("useProvisioningStore", "false") == "true",
			RawChildren:       shape.Members,
		}
		tree.efsShape[path] = shape
		return
	}

	tree.Numbered[id] = &NumberedValue{
		ID:       id,
		Name:     el.SelectAttrValue("name", ""),
		Index:    index,
		Mapping:  el.SelectAttrValue("mapping", ""),
		Encoding: el.SelectAttrValue("encoding", "dec"),
		Raw:      shape.Scalar,
	}
	tree.numberedShape[id] = shape
}

func parseMasterNvEfsItem(el *etree.Element, tree *masterTree) {
	path := el.SelectAttrValue("fullpathname", "")
	if path == "" {
		tree.diags.addf(SchemaError, "NvEfsItem missing fullpathname")
		return
	}
	shape := valueShapeFor(el)
	index, _ := strconv.Atoi(el.SelectAttrValue("index", "1"))
	if index == 0 {
		index = 1
	}
	tree.EFS[path] = &EfsValue{
		Path:              path,
		Index:             index,
		Mapping:           el.SelectAttrValue("mapping", ""),
		Encoding:          el.SelectAttrValue("encoding", "dec"),
		ProvisioningStore: el.SelectAttrValue("useProvisioningStore", "false") == "true",
		RawChildren:       shape.Members,
	}
	tree.efsShape[path] = shape
}

// tokenize splits a flat scalar value on runs of spaces, commas, tabs and
// newlines, per the Value Marshaller's shape rules.
func tokenize(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := tokenSplitRE.Split(s, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
