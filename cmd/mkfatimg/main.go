// Command mkfatimg builds a read-only FAT16 disk image from a flat
// directory of host files, for cmd/kernel (or a real board) to boot
// from. Every regular file directly inside the given directory becomes
// one root-directory entry; subdirectories are skipped with a warning,
// since the kernel this image boots has no subdirectory support. FAT16 has no
// log and no incremental append, so the whole image is built in
// memory by fatfs.BuildImage and written out in one shot.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/tools/txtar"

	"polaris/fatfs"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: mkfatimg <output-image> <source-dir-or-txtar> [sectors-per-cluster]\n")
	os.Exit(1)
}

// loadFromTxtar reads a txtar archive (the same format go test fixtures
// use to pack several named files into one text file) and treats each
// archive file as one root-directory entry. Lets a CI job or a test
// ship a whole disk image's contents as a single checked-in file instead
// of a directory tree.
func loadFromTxtar(path string) ([]fatfs.ImageFile, error) {
	ar, err := txtar.ParseFile(path)
	if err != nil {
		return nil, err
	}
	files := make([]fatfs.ImageFile, 0, len(ar.Files))
	for _, f := range ar.Files {
		files = append(files, fatfs.ImageFile{Name: f.Name, Data: f.Data})
	}
	return files, nil
}

func loadFromDir(srcDir string) ([]fatfs.ImageFile, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(os.Stderr, "mkfatimg: skipping subdirectory %q (no subdirectory support)\n", e.Name())
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	files := make([]fatfs.ImageFile, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(srcDir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", name, err)
		}
		files = append(files, fatfs.ImageFile{Name: name, Data: data})
	}
	return files, nil
}

func main() {
	if len(os.Args) < 3 {
		usage()
	}
	outPath := os.Args[1]
	src := os.Args[2]
	spc := 4
	if len(os.Args) > 3 {
		fmt.Sscanf(os.Args[3], "%d", &spc)
	}

	var files []fatfs.ImageFile
	var err error
	if strings.HasSuffix(src, ".txtar") {
		files, err = loadFromTxtar(src)
	} else {
		files, err = loadFromDir(src)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkfatimg: %v\n", err)
		os.Exit(1)
	}

	img, err := fatfs.BuildImage(files, spc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkfatimg: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, img, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "mkfatimg: writing %q: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("mkfatimg: wrote %d bytes, %d files, to %s\n", len(img), len(files), outPath)
}
