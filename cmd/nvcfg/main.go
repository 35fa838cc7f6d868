// Copyright 2024 The nvcfg Authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/qcomnv/nvcfg"
	nvlog "github.com/qcomnv/nvcfg/internal/log"
)

var (
	schemaPath     string
	diffTool       string
	verbosity      int
	legacyOrdinals bool
)

func loadSchema(opts *nvcfg.Options) *nvcfg.Catalog {
	if schemaPath == "" {
		return nil
	}
	cat, err := nvcfg.ParseSchema(schemaPath, opts, opts.Logger)
	if err != nil {
		log.Fatalf("loading schema %s: %v", schemaPath, err)
	}
	return cat
}

func optsFromFlags() *nvcfg.Options {
	opts := nvcfg.DefaultOptions()
	opts.DiffTool = diffTool
	opts.Verbosity = verbosity
	opts.LegacyProvisioningOrdinals = legacyOrdinals
	if verbosity > 0 {
		opts.Logger = nvlog.NewDevelopment()
	}
	return opts
}

func runPrint(cmd *cobra.Command, args []string) {
	opts := optsFromFlags()
	cat := loadSchema(opts)
	for _, path := range args {
		cfg, err := nvcfg.Load(path, cat, opts)
		if err != nil {
			log.Fatalf("%s: %v", path, err)
		}
		if err := nvcfg.Print(os.Stdout, cfg, opts); err != nil {
			log.Fatalf("%s: %v", path, err)
		}
	}
}

func runUpdate(cmd *cobra.Command, args []string) {
	opts := optsFromFlags()
	cat := loadSchema(opts)
	path := args[0]
	cfg, err := nvcfg.Load(path, cat, opts)
	if err != nil {
		log.Fatalf("%s: %v", path, err)
	}
	out := os.Stdout
	if len(args) > 1 {
		f, err := os.Create(args[1])
		if err != nil {
			log.Fatalf("creating %s: %v", args[1], err)
		}
		defer f.Close()
		out = f
	}
	if err := nvcfg.WriteUpdateScript(out, cfg, opts); err != nil {
		log.Fatalf("%s: %v", path, err)
	}
}

func runCompile(cmd *cobra.Command, args []string) {
	opts := optsFromFlags()
	cat := loadSchema(opts)
	if cat == nil {
		log.Fatal("compile requires -s/--schema")
	}
	src, dst := args[0], args[1]
	if strings.ToLower(filepath.Ext(dst)) != ".qcn" {
		log.Fatalf("compile output %s must have a .qcn extension", dst)
	}
	cfg, err := nvcfg.LoadMasterFile(src, cat, opts)
	if err != nil {
		log.Fatalf("%s: %v", src, err)
	}
	if err := nvcfg.WriteQCN(dst, cfg, opts); err != nil {
		log.Fatalf("%s: %v", dst, err)
	}
}

func runDiff(cmd *cobra.Command, args []string) {
	opts := optsFromFlags()
	cat := loadSchema(opts)
	code, err := nvcfg.Diff(args[0], args[1], cat, opts)
	if err != nil {
		log.Fatalf("diff: %v", err)
	}
	os.Exit(code)
}

// runBatch drives §4.9's directory-scan mode: every recognised input file
// under a directory argument is loaded and printed concurrently, bounded
// by an errgroup so one bad file does not stop the rest from reporting.
func runBatch(cmd *cobra.Command, args []string) {
	opts := optsFromFlags()
	cat := loadSchema(opts)
	dir := args[0]

	var paths []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".qcn", ".xml", ".mbn":
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("walking %s: %v", dir, err)
	}

	var g errgroup.Group
	g.SetLimit(8)
	for _, p := range paths {
		p := p
		g.Go(func() error {
			cfg, err := nvcfg.Load(p, cat, opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", p, err)
				return nil
			}
			var buf strings.Builder
			if err := nvcfg.Print(&buf, cfg, opts); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", p, err)
				return nil
			}
			fmt.Printf("=== %s ===\n%s\n", p, buf.String())
			return nil
		})
	}
	_ = g.Wait()
}

func main() {
	rootCmd := &cobra.Command{
		Use:     "nvcfg",
		Short:   "Read, write, and diff Qualcomm NV calibration configurations",
		Version: "0.1.0",
	}
	rootCmd.PersistentFlags().StringVarP(&schemaPath, "schema", "s", "", "NV item schema XML (required for XML input and full decoding)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase verbosity; repeatable")
	rootCmd.PersistentFlags().BoolVar(&legacyOrdinals, "legacy-ordinals", false, "format Provisioning_Item_Files ordinal keys as %08d instead of %08X")

	printCmd := &cobra.Command{
		Use:   "print <file>...",
		Short: "Print one or more QCN, XML, or MBN files",
		Args:  cobra.MinimumNArgs(1),
		Run:   runPrint,
	}

	updateCmd := &cobra.Command{
		Use:   "update <file> [out.sh]",
		Short: "Emit a shell update script for a file",
		Args:  cobra.RangeArgs(1, 2),
		Run:   runUpdate,
	}

	compileCmd := &cobra.Command{
		Use:   "compile <master.xml> <out.qcn>",
		Short: "Compile a master XML file to QCN",
		Args:  cobra.ExactArgs(2),
		Run:   runCompile,
	}

	diffCmd := &cobra.Command{
		Use:   "diff <a> <b>",
		Short: "Diff two inputs after normalisation",
		Args:  cobra.ExactArgs(2),
		Run:   runDiff,
	}
	diffCmd.Flags().StringVarP(&diffTool, "diff-tool", "t", "diff", "external diff executable")

	batchCmd := &cobra.Command{
		Use:   "batch <directory>",
		Short: "Print every recognised file under a directory, concurrently",
		Args:  cobra.ExactArgs(1),
		Run:   runBatch,
	}

	rootCmd.AddCommand(printCmd, updateCmd, compileCmd, diffCmd, batchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(-1)
	}
}
