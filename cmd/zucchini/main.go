// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/spf13/cobra"

	"github.com/saferwall/zucchini"
	"github.com/saferwall/zucchini/internal/ensemble"
)

var imposedMatches string
var rawMode bool

func openMapped(path string) (mmap.MMap, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return m, f, nil
}

func runGenerate(cmd *cobra.Command, args []string) {
	oldPath, newPath, patchPath := args[0], args[1], args[2]

	oldMap, oldFile, err := openMapped(oldPath)
	if err != nil {
		log.Fatalf("opening old file %s: %v", oldPath, err)
	}
	defer oldFile.Close()
	defer oldMap.Unmap()

	newMap, newFile, err := openMapped(newPath)
	if err != nil {
		log.Fatalf("opening new file %s: %v", newPath, err)
	}
	defer newFile.Close()
	defer newMap.Unmap()

	out, err := os.Create(patchPath)
	if err != nil {
		log.Fatalf("creating patch file %s: %v", patchPath, err)
	}
	defer out.Close()

	var status zucchini.Status
	switch {
	case rawMode:
		status = zucchini.GenerateBufferRaw(oldMap, newMap, out)
	case imposedMatches != "":
		status = zucchini.GenerateBufferImposed(oldMap, newMap, imposedMatches, out)
	default:
		status = zucchini.GenerateBuffer(oldMap, newMap, out)
	}
	if status != zucchini.StatusSuccess {
		log.Fatalf("generate failed with status %d", status)
	}
}

func runApply(cmd *cobra.Command, args []string) {
	oldPath, patchPath, newPath := args[0], args[1], args[2]

	oldMap, oldFile, err := openMapped(oldPath)
	if err != nil {
		log.Fatalf("opening old file %s: %v", oldPath, err)
	}
	defer oldFile.Close()
	defer oldMap.Unmap()

	patchFile, err := os.Open(patchPath)
	if err != nil {
		log.Fatalf("opening patch file %s: %v", patchPath, err)
	}
	defer patchFile.Close()

	out, err := os.Create(newPath)
	if err != nil {
		log.Fatalf("creating new file %s: %v", newPath, err)
	}
	defer out.Close()

	status := zucchini.ApplyBuffer(oldMap, patchFile, out)
	if status != zucchini.StatusSuccess {
		log.Fatalf("apply failed with status %d", status)
	}
}

func runMatch(cmd *cobra.Command, args []string) {
	oldPath, newPath := args[0], args[1]

	oldMap, oldFile, err := openMapped(oldPath)
	if err != nil {
		log.Fatalf("opening old file %s: %v", oldPath, err)
	}
	defer oldFile.Close()
	defer oldMap.Unmap()

	newMap, newFile, err := openMapped(newPath)
	if err != nil {
		log.Fatalf("opening new file %s: %v", newPath, err)
	}
	defer newFile.Close()
	defer newMap.Unmap()

	oldElements, err := ensemble.FindElements(oldMap)
	if err != nil {
		log.Fatalf("detecting elements in old: %v", err)
	}
	newElements, err := ensemble.FindElements(newMap)
	if err != nil {
		log.Fatalf("detecting elements in new: %v", err)
	}
	matches := ensemble.Trim(ensemble.HeuristicMatch(oldMap, newMap, oldElements, newElements))

	for i, m := range matches {
		if i > 0 {
			fmt.Print(",")
		}
		fmt.Printf("%d+%d=%d+%d", m.Old.Offset, m.Old.Size, m.New.Offset, m.New.Size)
	}
	fmt.Println()
}

func runDump(cmd *cobra.Command, args []string) {
	path := args[0]
	m, f, err := openMapped(path)
	if err != nil {
		log.Fatalf("opening file %s: %v", path, err)
	}
	defer f.Close()
	defer m.Unmap()

	elements, err := ensemble.FindElements(m)
	if err != nil {
		log.Fatalf("detecting elements: %v", err)
	}
	for _, el := range elements {
		fmt.Printf("offset=%d size=%d exe_type=%s\n", el.Offset, el.Size, el.ExeType)
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use: "zucchini",
		Short: "A binary differential compression tool",
		Long: "zucchini produces and applies compact binary patches between executables, built for speed with malware-analysis and update-delivery use cases in mind",
	}

	versionCmd := &cobra.Command{
		Use: "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("You are using version 0.0.1")
		},
	}

	generateCmd := &cobra.Command{
		Use: "generate <old> <new> <patch>",
		Short: "Generate a patch from old to new",
		Args: cobra.ExactArgs(3),
		Run: runGenerate,
	}
	generateCmd.Flags().StringVarP(&imposedMatches, "impose", "i", "", "imposed match string \"#+#=#+#,...\"")
	generateCmd.Flags().BoolVarP(&rawMode, "raw", "r", false, "single-element raw patch, no reference detection")

	applyCmd := &cobra.Command{
		Use: "apply <old> <patch> <new>",
		Short: "Apply a patch to old, producing new",
		Args: cobra.ExactArgs(3),
		Run: runApply,
	}

	matchCmd := &cobra.Command{
		Use: "match <old> <new>",
		Short: "Run the ensemble match heuristic and print the resulting impose-string",
		Args: cobra.ExactArgs(2),
		Run: runMatch,
	}

	dumpCmd := &cobra.Command{
		Use: "dump <file>",
		Short: "Detect and print all embedded elements in a file",
		Args: cobra.ExactArgs(1),
		Run: runDump,
	}

	rootCmd.AddCommand(versionCmd, generateCmd, applyCmd, matchCmd, dumpCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
