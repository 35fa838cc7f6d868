// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nvcfg

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Diff normalises both a and b (compiling an XML input through a
// temporary QCN round trip first, so the comparison reflects the same
// byte-exact form a QCN write would produce rather than the source text)
// and runs them through opts.DiffTool. It returns the tool's exit code
// and any error that prevented the comparison from running at all.
func Diff(a, b string, cat *Catalog, opts *Options) (exitCode int, err error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	cfgA, err := loadForDiff(a, cat, opts)
	if err != nil {
		return -1, err
	}
	cfgB, err := loadForDiff(b, cat, opts)
	if err != nil {
		return -1, err
	}

	dumpA, err := dumpToTemp(cfgA, opts)
	if err != nil {
		return -1, err
	}
	defer os.Remove(dumpA)
	dumpB, err := dumpToTemp(cfgB, opts)
	if err != nil {
		return -1, err
	}
	defer os.Remove(dumpB)

	tool := opts.DiffTool
	if tool == "" {
		tool = "diff"
	}
	cmd := exec.Command(tool, dumpA, dumpB)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	runErr := cmd.Run()
	if runErr == nil {
		return 0, nil
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, fatal(IoError, "running diff tool %s: %v", tool, runErr)
}

// loadForDiff loads path, and when it is an XML master file, compiles it
// to a temporary QCN and reads that back instead — the diff must reflect
// the round-tripped form, not the XML text.
func loadForDiff(path string, cat *Catalog, opts *Options) (*Config, error) {
	if strings.ToLower(filepath.Ext(path)) != ".xml" {
		return Load(path, cat, opts)
	}
	cfg, err := LoadMasterFile(path, cat, opts)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp("", "nvcfg-diff-*.qcn")
	if err != nil {
		return nil, fatal(IoError, "creating temporary QCN: %v", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := WriteQCN(tmpPath, cfg, opts); err != nil {
		return nil, err
	}
	return ReadQCN(tmpPath, opts)
}

func dumpToTemp(cfg *Config, opts *Options) (string, error) {
	tmp, err := os.CreateTemp("", "nvcfg-dump-*.txt")
	if err != nil {
		return "", fatal(IoError, "creating temporary dump file: %v", err)
	}
	defer tmp.Close()
	if err := Print(tmp, cfg, opts); err != nil {
		return "", err
	}
	return tmp.Name(), nil
}
