// mkfs builds a KTFS disk image from the contents of a host directory.
// Host-side tool, so it leans on encoding/binary for the on-disk struct
// layout (the same superblock/inode/dirent codecs ktfs.go decodes at
// runtime, duplicated here rather than imported since the kernel package
// is not a library) and flag for its CLI surface, matching the plainness
// of biscuit's mkfs (itself flag/stdlib-only — no third-party CLI
// framework anywhere in the retrieval pack for a tool this size).
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
)

const (
	blkSize         = 512
	inoSize         = 32
	denSize         = 32
	maxFilenameLen  = denSize - 5
	numDirect       = 4
	numDindirect    = 1
	ptrSize         = 4
	ptrsPerBlock    = blkSize / ptrSize
	inodesPerBlock  = blkSize / inoSize
	dentsPerBlock   = blkSize / denSize
	superblockBytes = 16
)

type superblock struct {
	blockCount         uint32
	bitmapBlockCount   uint32
	inodeBlockCount    uint32
	rootDirectoryInode uint32
}

func (sb *superblock) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], sb.blockCount)
	binary.LittleEndian.PutUint32(buf[4:8], sb.bitmapBlockCount)
	binary.LittleEndian.PutUint32(buf[8:12], sb.inodeBlockCount)
	binary.LittleEndian.PutUint32(buf[12:16], sb.rootDirectoryInode)
}

type inode struct {
	size      uint32
	flags     uint32
	block     [numDirect]uint32
	indirect  uint32
	dindirect [numDindirect]uint32
}

func (ino *inode) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], ino.size)
	binary.LittleEndian.PutUint32(buf[4:8], ino.flags)
	off := 8
	for _, b := range ino.block {
		binary.LittleEndian.PutUint32(buf[off:off+4], b)
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], ino.indirect)
	off += 4
	for _, d := range ino.dindirect {
		binary.LittleEndian.PutUint32(buf[off:off+4], d)
		off += 4
	}
}

type dirent struct {
	name  [denSize - 2]byte
	inode uint16
}

func (de *dirent) encode(buf []byte) {
	copy(buf[:len(de.name)], de.name[:])
	binary.LittleEndian.PutUint16(buf[len(de.name):], de.inode)
}

// layout is everything the block-pointer arithmetic below needs to turn a
// global or data-area-relative block number into a byte offset, exactly
// the three region sizes ktfs.go's dataBlockOffset/inodeBlockOffset/
// bitmapBlockOffset derive from the superblock at boot.
type layout struct {
	sb         superblock
	metaBlocks uint32
}

func (l *layout) dataOffset(dataRelative uint32) int64 {
	return int64(1+l.sb.bitmapBlockCount+l.sb.inodeBlockCount+dataRelative) * blkSize
}

func (l *layout) inodeOffset(ino uint32) int64 {
	return int64(1+l.sb.bitmapBlockCount+ino/inodesPerBlock) * blkSize
}

func (l *layout) bitmapOffset(globalBlock uint32) int64 {
	return int64(1+globalBlock/(blkSize*8)) * blkSize
}

// builder assembles an image in memory, then writes it out in one shot.
type builder struct {
	img      []byte
	layout   layout
	nextData uint32 // bump allocator: fine for a freshly built image
}

func (b *builder) allocBlock() (uint32, error) {
	if b.nextData >= b.layout.sb.blockCount-b.layout.metaBlocks {
		return 0, fmt.Errorf("mkfs: image too small, out of data blocks")
	}
	blk := b.nextData
	b.nextData++
	global := b.layout.metaBlocks + blk
	byteOff := b.layout.bitmapOffset(global) + int64((global%(blkSize*8))/8)
	b.img[byteOff] |= 1 << (global % 8)
	return blk, nil
}

func (b *builder) writeInode(idx uint32, ino *inode) {
	off := b.layout.inodeOffset(idx) + int64(idx%inodesPerBlock)*inoSize
	ino.encode(b.img[off : off+inoSize])
}

func (b *builder) writePointer(block, idx, val uint32) {
	off := b.layout.dataOffset(block) + int64(idx)*ptrSize
	binary.LittleEndian.PutUint32(b.img[off:off+ptrSize], val)
}

func (b *builder) readPointer(block, idx uint32) uint32 {
	off := b.layout.dataOffset(block) + int64(idx)*ptrSize
	return binary.LittleEndian.Uint32(b.img[off : off+ptrSize])
}

// setBlockPointer resolves fileBlock the same way ktfs.go's
// getBlocknumForOffset does at read time, allocating indirect/
// double-indirect pointer blocks on demand, and records dataBlock at that
// slot.
func (b *builder) setBlockPointer(ino *inode, fileBlock, dataBlock uint32) error {
	if fileBlock < numDirect {
		ino.block[fileBlock] = dataBlock
		return nil
	}
	fileBlock -= numDirect

	if fileBlock < ptrsPerBlock {
		if ino.indirect == 0 {
			blk, err := b.allocBlock()
			if err != nil {
				return err
			}
			ino.indirect = blk
		}
		b.writePointer(ino.indirect, fileBlock, dataBlock)
		return nil
	}
	fileBlock -= ptrsPerBlock

	slot := fileBlock / ptrsPerBlock
	inner := fileBlock % ptrsPerBlock
	if slot >= numDindirect {
		return fmt.Errorf("mkfs: file exceeds maximum supported size")
	}
	if ino.dindirect[slot] == 0 {
		blk, err := b.allocBlock()
		if err != nil {
			return err
		}
		ino.dindirect[slot] = blk
	}
	sSlot := inner / ptrsPerBlock
	sIdx := inner % ptrsPerBlock
	single := b.readPointer(ino.dindirect[slot], sSlot)
	if single == 0 {
		blk, err := b.allocBlock()
		if err != nil {
			return err
		}
		single = blk
		b.writePointer(ino.dindirect[slot], sSlot, single)
	}
	b.writePointer(single, sIdx, dataBlock)
	return nil
}

func (b *builder) writeFileData(ino *inode, data []byte) error {
	nblocks := (len(data) + blkSize - 1) / blkSize
	for i := 0; i < nblocks; i++ {
		dataBlock, err := b.allocBlock()
		if err != nil {
			return err
		}
		if err := b.setBlockPointer(ino, uint32(i), dataBlock); err != nil {
			return err
		}
		off := b.layout.dataOffset(dataBlock)
		chunk := data[i*blkSize:]
		if len(chunk) > blkSize {
			chunk = chunk[:blkSize]
		}
		copy(b.img[off:], chunk)
	}
	ino.size = uint32(len(data))
	return nil
}

func main() {
	out := flag.String("out", "", "path to write the disk image to")
	srcDir := flag.String("dir", "", "host directory whose files become the root directory")
	blocks := flag.Int("blocks", 4096, "total block count of the image")
	inodeBlocks := flag.Int("inodeblocks", 8, "blocks reserved for inodes")
	flag.Parse()

	if *out == "" || *srcDir == "" {
		fmt.Fprintln(os.Stderr, "usage: mkfs -out IMAGE -dir SKELDIR [-blocks N] [-inodeblocks N]")
		os.Exit(1)
	}

	entries, err := ioutil.ReadDir(*srcDir)
	if err != nil {
		log.Fatalf("mkfs: reading %s: %v", *srcDir, err)
	}

	bitmapBlocks := (*blocks + blkSize*8 - 1) / (blkSize * 8)
	metaBlocks := uint32(1 + bitmapBlocks + *inodeBlocks)
	if uint32(*blocks) <= metaBlocks {
		log.Fatalf("mkfs: -blocks too small for -inodeblocks")
	}

	b := &builder{
		img: make([]byte, int64(*blocks)*blkSize),
		layout: layout{
			sb: superblock{
				blockCount:         uint32(*blocks),
				bitmapBlockCount:   uint32(bitmapBlocks),
				inodeBlockCount:    uint32(*inodeBlocks),
				rootDirectoryInode: 0,
			},
			metaBlocks: metaBlocks,
		},
		nextData: 1, // data block 0 stays unused: a block index of 0 means unallocated
	}
	b.layout.sb.encode(b.img[:superblockBytes])

	var root inode
	root.flags = 1 // ktfsFileInUse; findFreeInode must never hand out the root's own slot
	rootDirBlock, err := b.allocBlock()
	if err != nil {
		log.Fatal(err)
	}
	root.block[0] = rootDirBlock

	nextInode := uint32(1)
	nextDirSlot := 0
	curDirBlock := rootDirBlock
	curDirIdx := 0

	for _, fi := range entries {
		if fi.IsDir() {
			continue
		}
		if len(fi.Name()) > maxFilenameLen {
			log.Fatalf("mkfs: %s: name exceeds %d bytes", fi.Name(), maxFilenameLen)
		}
		data, err := ioutil.ReadFile(filepath.Join(*srcDir, fi.Name()))
		if err != nil {
			log.Fatal(err)
		}

		var fino inode
		fino.flags = 1 // ktfsFileInUse
		if err := b.writeFileData(&fino, data); err != nil {
			log.Fatal(err)
		}
		b.writeInode(nextInode, &fino)

		if curDirIdx == dentsPerBlock {
			nextDirSlot++
			if nextDirSlot >= numDirect {
				log.Fatalf("mkfs: root directory full (max %d entries per block x %d direct blocks)", dentsPerBlock, numDirect)
			}
			blk, err := b.allocBlock()
			if err != nil {
				log.Fatal(err)
			}
			root.block[nextDirSlot] = blk
			curDirBlock = blk
			curDirIdx = 0
		}

		var de dirent
		copy(de.name[:], fi.Name())
		de.inode = uint16(nextInode)
		deOff := b.layout.dataOffset(curDirBlock) + int64(curDirIdx)*denSize
		de.encode(b.img[deOff : deOff+denSize])
		curDirIdx++
		root.size += denSize

		nextInode++
		if nextInode >= uint32(*inodeBlocks)*inodesPerBlock {
			log.Fatalf("mkfs: ran out of inodes, pass a larger -inodeblocks")
		}
	}

	b.writeInode(0, &root)

	if err := ioutil.WriteFile(*out, b.img, 0o644); err != nil {
		log.Fatalf("mkfs: writing %s: %v", *out, err)
	}
	fmt.Printf("mkfs: wrote %s (%d blocks, %d files)\n", *out, *blocks, nextInode-1)
}
