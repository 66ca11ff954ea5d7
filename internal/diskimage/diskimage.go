// Package diskimage implements the host-side block device contract over a
// single host file: ReadAt/WriteAt/BlockSize/Size, the same surface
// devmgr.go's BlockDevice interface names. It stands in for the VirtIO
// transport this repository never implements, the role
// biscuit/biscuit/src/fs's fsrb.go/bdev.go play for fs_test.go — a
// file-backed block endpoint instead of the real thing, used by
// cmd/diskimage to read images back. cmd/mkfs writes its images with its
// own file I/O, and the kernel tests use in-memory fakes.
package diskimage

import "os"

type File struct {
	f         *os.File
	blockSize int
}

// Create makes a new zero-filled image file of sizeBlocks*blockSize bytes,
// truncating any existing file at path.
func Create(path string, blockSize, sizeBlocks int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(blockSize) * int64(sizeBlocks)); err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, blockSize: blockSize}, nil
}

// Open opens an existing image file for reading and writing.
func Open(path string, blockSize int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &File{f: f, blockSize: blockSize}, nil
}

func (d *File) ReadAt(pos uint64, buf []byte) (int, error) {
	return d.f.ReadAt(buf, int64(pos))
}

func (d *File) WriteAt(pos uint64, buf []byte) (int, error) {
	return d.f.WriteAt(buf, int64(pos))
}

func (d *File) BlockSize() int { return d.blockSize }

func (d *File) Size() uint64 {
	st, err := d.f.Stat()
	if err != nil {
		return 0
	}
	return uint64(st.Size())
}

func (d *File) Close() error { return d.f.Close() }
