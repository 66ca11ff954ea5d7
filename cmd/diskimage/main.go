// diskimage is a small CLI around internal/diskimage's host-file-backed
// block device, for preallocating and inspecting raw disk images without
// a real VirtIO transport — the same manual role biscuit's test fixtures
// play, exposed as a standalone tool instead of only as test helpers.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/aymanreza/sp25-ece391-group-77/internal/diskimage"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "create":
		cmdCreate(os.Args[2:])
	case "info":
		cmdInfo(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: diskimage create -out PATH -blocksize N -blocks N")
	fmt.Fprintln(os.Stderr, "       diskimage info -path PATH -blocksize N")
	os.Exit(1)
}

func cmdCreate(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	out := fs.String("out", "", "path to create")
	blockSize := fs.Int("blocksize", 512, "bytes per block")
	blockCount := fs.Int("blocks", 4096, "number of blocks")
	fs.Parse(args)

	if *out == "" {
		usage()
	}
	d, err := diskimage.Create(*out, *blockSize, *blockCount)
	if err != nil {
		log.Fatalf("diskimage: %v", err)
	}
	defer d.Close()
	fmt.Printf("diskimage: created %s (%d bytes)\n", *out, d.Size())
}

func cmdInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	path := fs.String("path", "", "image to inspect")
	blockSize := fs.Int("blocksize", 512, "bytes per block")
	fs.Parse(args)

	if *path == "" {
		usage()
	}
	d, err := diskimage.Open(*path, *blockSize)
	if err != nil {
		log.Fatalf("diskimage: %v", err)
	}
	defer d.Close()
	fmt.Printf("%s: %d bytes, %d-byte blocks\n", *path, d.Size(), d.BlockSize())
}
