package main

import (
	"encoding/binary"
	"unsafe"
)

// KTFS: a superblock-based filesystem with a single root directory, fixed
// 32-byte inodes (direct/single-indirect/double-indirect block pointers),
// and a bitmap-backed block allocator. Grounded on
// original_source/src/sys/ktfs.c for mount/lookup/readat/writeat/cntl/
// create/delete and get_blocknum_for_offset's block-resolution order. The
// C source never allocates a fresh data block — ktfs_create only reuses
// blocks the root inode already holds — so alloc_data_block/bitmap_set/
// bitmap_clear_bit and IOCTL_SETEND-driven growth below are supplemented
// from spec.md §4.7/§6, not translated from ktfs.c.
//
// On-disk layout (spec.md §6): block 0 is the superblock, four
// little-endian uint32 fields. The next sb.bitmapBlockCount blocks are
// the allocation bitmap (bit i <-> block i, covering every block in the
// filesystem). The next sb.inodeBlockCount blocks hold 16 32-byte inodes
// apiece. Everything after that is the data area; data-area-relative
// index i is global block 1+bitmapBlockCount+inodeBlockCount+i.

type ktfsSuperblock struct {
	blockCount        uint32
	bitmapBlockCount  uint32
	inodeBlockCount   uint32
	rootDirectoryInode uint32
}

const ktfsSuperblockSize = 16

func (sb *ktfsSuperblock) decode(buf []byte) {
	sb.blockCount = binary.LittleEndian.Uint32(buf[0:4])
	sb.bitmapBlockCount = binary.LittleEndian.Uint32(buf[4:8])
	sb.inodeBlockCount = binary.LittleEndian.Uint32(buf[8:12])
	sb.rootDirectoryInode = binary.LittleEndian.Uint32(buf[12:16])
}

func (sb *ktfsSuperblock) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], sb.blockCount)
	binary.LittleEndian.PutUint32(buf[4:8], sb.bitmapBlockCount)
	binary.LittleEndian.PutUint32(buf[8:12], sb.inodeBlockCount)
	binary.LittleEndian.PutUint32(buf[12:16], sb.rootDirectoryInode)
}

// ktfsInode is the 32-byte on-disk inode: size, flags, then
// KTFS_NUM_DIRECT_DATA_BLOCKS direct pointers, one single-indirect
// pointer, then KTFS_NUM_DINDIRECT_BLOCKS double-indirect pointers. All
// block indices are data-area-relative; 0 means unallocated.
type ktfsInode struct {
	size      uint32
	flags     uint32
	block     [KTFS_NUM_DIRECT_DATA_BLOCKS]uint32
	indirect  uint32
	dindirect [KTFS_NUM_DINDIRECT_BLOCKS]uint32
}

func (ino *ktfsInode) decode(buf []byte) {
	ino.size = binary.LittleEndian.Uint32(buf[0:4])
	ino.flags = binary.LittleEndian.Uint32(buf[4:8])
	off := 8
	for i := range ino.block {
		ino.block[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
	ino.indirect = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	for i := range ino.dindirect {
		ino.dindirect[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}
}

func (ino *ktfsInode) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], ino.size)
	binary.LittleEndian.PutUint32(buf[4:8], ino.flags)
	off := 8
	for i := range ino.block {
		binary.LittleEndian.PutUint32(buf[off:off+4], ino.block[i])
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], ino.indirect)
	off += 4
	for i := range ino.dindirect {
		binary.LittleEndian.PutUint32(buf[off:off+4], ino.dindirect[i])
		off += 4
	}
}

// ktfsDirEntry is the 32-byte on-disk directory entry: a NUL-padded name
// (30 bytes, leaving room for a terminator past KTFS_MAX_FILENAME_LEN)
// followed by a 16-bit inode number. Inode 0 means an empty slot.
type ktfsDirEntry struct {
	name  [KTFS_DENSZ - 2]byte
	inode uint16
}

func (de *ktfsDirEntry) decode(buf []byte) {
	copy(de.name[:], buf[:len(de.name)])
	de.inode = binary.LittleEndian.Uint16(buf[len(de.name):])
}

func (de *ktfsDirEntry) encode(buf []byte) {
	copy(buf[:len(de.name)], de.name[:])
	binary.LittleEndian.PutUint16(buf[len(de.name):], de.inode)
}

func (de *ktfsDirEntry) nameString() string {
	n := 0
	for n < len(de.name) && de.name[n] != 0 {
		n++
	}
	return string(de.name[:n])
}

func (de *ktfsDirEntry) setName(name string) kerrno {
	if len(name) > KTFS_MAX_FILENAME_LEN {
		return ENAMETOOLONG
	}
	for i := range de.name {
		de.name[i] = 0
	}
	copy(de.name[:], name)
	return EOK
}

const ktfsInodesPerBlock = KTFS_BLKSZ / KTFS_INOSZ
const ktfsDirEntsPerBlock = KTFS_BLKSZ / KTFS_DENSZ

// ktfs is the single mounted filesystem instance: a backing device, its
// superblock, the block cache layered over the device, and one global
// mutex serializing every operation. Grounded on ktfs.c's global fs
// struct ({bdev, sb, cache, fs_lock}).
type ktfs struct {
	bdev *kio
	sb   ktfsSuperblock
	cache *blockCache
	lock Lock
}

var rootFS ktfs

// ktfsBlockOffset converts a global block number to a byte offset on the
// backing device.
func ktfsBlockOffset(blockno uint32) uint64 { return uint64(blockno) * KTFS_BLKSZ }

func (fs *ktfs) dataBlockOffset(dataRelative uint32) uint64 {
	base := 1 + fs.sb.bitmapBlockCount + fs.sb.inodeBlockCount
	return ktfsBlockOffset(base + dataRelative)
}

func (fs *ktfs) inodeBlockOffset(ino uint32) uint64 {
	base := 1 + fs.sb.bitmapBlockCount
	return ktfsBlockOffset(base + ino/ktfsInodesPerBlock)
}

func (fs *ktfs) bitmapBlockOffset(bitIndex uint32) uint64 {
	return ktfsBlockOffset(1 + bitIndex/(KTFS_BLKSZ*8))
}

// ktfsMount initializes the global lock, takes a reference on the backing
// device, creates the cache over it, reads block 0, and sanity-checks the
// superblock's counts. Grounded on ktfs_mount.
func ktfsMount(bdev *kio) kerrno {
	lockInit(&rootFS.lock)
	rootFS.bdev = ioaddref(bdev)

	cache, err := createCache(rootFS.bdev)
	if err.isErr() {
		return err
	}
	rootFS.cache = cache

	blk, err := cacheGetBlock(rootFS.cache, 0)
	if err.isErr() {
		return err
	}
	rootFS.sb.decode(blk[:ktfsSuperblockSize])
	cacheReleaseBlock(rootFS.cache, blk, false)

	if rootFS.sb.blockCount == 0 || rootFS.sb.inodeBlockCount == 0 {
		return EINVAL
	}

	// The root directory's own inode slot must never be handed out by
	// findFreeInode; an image built with a zeroed (so flags-free) root
	// inode would otherwise look indistinguishable from an unused slot.
	var root ktfsInode
	if err := rootFS.readInode(rootFS.sb.rootDirectoryInode, &root); err.isErr() {
		return err
	}
	if root.flags == ktfsFileFree {
		root.flags = ktfsFileInUse
		if err := rootFS.writeInode(rootFS.sb.rootDirectoryInode, &root); err.isErr() {
			return err
		}
	}
	return EOK
}

func (fs *ktfs) readInode(ino uint32, out *ktfsInode) kerrno {
	blk, err := cacheGetBlock(fs.cache, fs.inodeBlockOffset(ino))
	if err.isErr() {
		return err
	}
	off := (ino % ktfsInodesPerBlock) * KTFS_INOSZ
	out.decode(blk[off : off+KTFS_INOSZ])
	cacheReleaseBlock(fs.cache, blk, false)
	return EOK
}

func (fs *ktfs) writeInode(ino uint32, in *ktfsInode) kerrno {
	blk, err := cacheGetBlock(fs.cache, fs.inodeBlockOffset(ino))
	if err.isErr() {
		return err
	}
	off := (ino % ktfsInodesPerBlock) * KTFS_INOSZ
	in.encode(blk[off : off+KTFS_INOSZ])
	cacheReleaseBlock(fs.cache, blk, true)
	return EOK
}

// getBlocknumForOffset resolves the data-area-relative block number
// holding file-block index fileBlock of ino, walking direct, then
// single-indirect, then double-indirect pointers in that order. Grounded
// on get_blocknum_for_offset.
func (fs *ktfs) getBlocknumForOffset(ino *ktfsInode, fileBlock uint32, out *uint32) kerrno {
	if fileBlock < KTFS_NUM_DIRECT_DATA_BLOCKS {
		if ino.block[fileBlock] == 0 {
			return ENOENT
		}
		*out = ino.block[fileBlock]
		return EOK
	}
	fileBlock -= KTFS_NUM_DIRECT_DATA_BLOCKS

	if fileBlock < ktfsPtrsPerBlock {
		if ino.indirect == 0 {
			return ENOENT
		}
		ptr, err := fs.readPointer(ino.indirect, fileBlock)
		if err.isErr() {
			return err
		}
		if ptr == 0 {
			return ENOENT
		}
		*out = ptr
		return EOK
	}
	fileBlock -= ktfsPtrsPerBlock

	dindirectSlot := fileBlock / ktfsPtrsPerBlock
	innerIdx := fileBlock % ktfsPtrsPerBlock
	if dindirectSlot >= KTFS_NUM_DINDIRECT_BLOCKS || ino.dindirect[dindirectSlot] == 0 {
		return ENOENT
	}
	// dindirect[slot] points at a block of pointers to single-indirect
	// blocks; resolve the outer pointer, then index into the
	// single-indirect block it names.
	return fs.getBlocknumDoubleIndirect(ino.dindirect[dindirectSlot], innerIdx, out)
}

func (fs *ktfs) getBlocknumDoubleIndirect(dindirectBlock uint32, innerIdx uint32, out *uint32) kerrno {
	slot := innerIdx / ktfsPtrsPerBlock
	idx := innerIdx % ktfsPtrsPerBlock
	singleIndirect, err := fs.readPointer(dindirectBlock, slot)
	if err.isErr() {
		return err
	}
	if singleIndirect == 0 {
		return ENOENT
	}
	ptr, err := fs.readPointer(singleIndirect, idx)
	if err.isErr() {
		return err
	}
	if ptr == 0 {
		return ENOENT
	}
	*out = ptr
	return EOK
}

func (fs *ktfs) readPointer(block uint32, idx uint32) (uint32, kerrno) {
	blk, err := cacheGetBlock(fs.cache, fs.dataBlockOffset(block))
	if err.isErr() {
		return 0, err
	}
	ptr := binary.LittleEndian.Uint32(blk[idx*ktfsPointerSize : idx*ktfsPointerSize+ktfsPointerSize])
	cacheReleaseBlock(fs.cache, blk, false)
	return ptr, EOK
}

func (fs *ktfs) writePointer(block uint32, idx uint32, val uint32) kerrno {
	blk, err := cacheGetBlock(fs.cache, fs.dataBlockOffset(block))
	if err.isErr() {
		return err
	}
	binary.LittleEndian.PutUint32(blk[idx*ktfsPointerSize:idx*ktfsPointerSize+ktfsPointerSize], val)
	cacheReleaseBlock(fs.cache, blk, true)
	return EOK
}

// --- bitmap allocator ---
//
// ktfs.c never allocates a fresh data block; this is the bitmap-backed
// allocator spec.md §4.7 calls for in full. The bitmap covers every block
// in the filesystem, starting at global block 1, one bit per block.

func (fs *ktfs) bitmapSet(globalBlock uint32) kerrno {
	return fs.bitmapWriteBit(globalBlock, true)
}

func (fs *ktfs) bitmapClearBit(globalBlock uint32) kerrno {
	return fs.bitmapWriteBit(globalBlock, false)
}

func (fs *ktfs) bitmapWriteBit(globalBlock uint32, set bool) kerrno {
	blk, err := cacheGetBlock(fs.cache, fs.bitmapBlockOffset(globalBlock))
	if err.isErr() {
		return err
	}
	byteIdx := (globalBlock % (KTFS_BLKSZ * 8)) / 8
	bitIdx := globalBlock % 8
	if set {
		blk[byteIdx] |= 1 << bitIdx
	} else {
		blk[byteIdx] &^= 1 << bitIdx
	}
	cacheReleaseBlock(fs.cache, blk, true)
	return EOK
}

func (fs *ktfs) bitmapTestBit(globalBlock uint32) (bool, kerrno) {
	blk, err := cacheGetBlock(fs.cache, fs.bitmapBlockOffset(globalBlock))
	if err.isErr() {
		return false, err
	}
	byteIdx := (globalBlock % (KTFS_BLKSZ * 8)) / 8
	bitIdx := globalBlock % 8
	set := blk[byteIdx]&(1<<bitIdx) != 0
	cacheReleaseBlock(fs.cache, blk, false)
	return set, EOK
}

// allocDataBlock linearly scans the bitmap starting past the metadata
// region for the first clear bit, sets it, and returns the data-area-
// relative index. Data block 0 is never handed out, since a block index
// of 0 means unallocated.
func (fs *ktfs) allocDataBlock(out *uint32) kerrno {
	metaBlocks := 1 + fs.sb.bitmapBlockCount + fs.sb.inodeBlockCount
	for g := metaBlocks + 1; g < fs.sb.blockCount; g++ {
		set, err := fs.bitmapTestBit(g)
		if err.isErr() {
			return err
		}
		if !set {
			if err := fs.bitmapSet(g); err.isErr() {
				return err
			}
			*out = g - metaBlocks
			return EOK
		}
	}
	return ENODATABLKS
}

func (fs *ktfs) freeDataBlock(dataRelative uint32) kerrno {
	metaBlocks := 1 + fs.sb.bitmapBlockCount + fs.sb.inodeBlockCount
	return fs.bitmapClearBit(metaBlocks + dataRelative)
}

func (fs *ktfs) zeroDataBlock(dataRelative uint32) kerrno {
	blk, err := cacheGetBlock(fs.cache, fs.dataBlockOffset(dataRelative))
	if err.isErr() {
		return err
	}
	for i := range blk {
		blk[i] = 0
	}
	cacheReleaseBlock(fs.cache, blk, true)
	return EOK
}

// --- ktfs_file: the concrete sub-type of kio backing an open file ---

type ktfsFile struct {
	io    kio
	ino   uint32
	size  uint64
}

var ktfsFileIntf = kioIntf{
	readAt:  ktfsFileReadAt,
	writeAt: ktfsFileWriteAt,
	cntl:    ktfsFileCntl,
}

func asKtfsFile(io *kio) *ktfsFile { return (*ktfsFile)(unsafe.Pointer(io)) }

// ktfsLookup reads the root inode, scans its direct blocks for a
// directory entry matching name, and wraps a fresh ktfs_file in a
// seekable IO object for the caller. Grounded on ktfs_open/lookup.
func ktfsLookup(name string) (*kio, kerrno) {
	lockAcquire(&rootFS.lock)
	defer lockRelease(&rootFS.lock)

	var root ktfsInode
	if err := rootFS.readInode(rootFS.sb.rootDirectoryInode, &root); err.isErr() {
		return nil, err
	}

	ino, size, err := rootFS.findDirEntry(&root, name)
	if err.isErr() {
		return nil, err
	}

	f := &ktfsFile{ino: ino, size: size}
	ioinit1(&f.io, &ktfsFileIntf)
	return createSeekableIO(&f.io), EOK
}

// findDirEntry scans dir's direct data blocks (KTFS_BLKSZ/KTFS_DENSZ
// entries per block) for a name match, returning its inode number and
// size.
func (fs *ktfs) findDirEntry(dir *ktfsInode, name string) (uint32, uint64, kerrno) {
	for i := uint32(0); i < KTFS_NUM_DIRECT_DATA_BLOCKS; i++ {
		if dir.block[i] == 0 {
			continue
		}
		blk, err := cacheGetBlock(fs.cache, fs.dataBlockOffset(dir.block[i]))
		if err.isErr() {
			return 0, 0, err
		}
		for j := 0; j < ktfsDirEntsPerBlock; j++ {
			var de ktfsDirEntry
			de.decode(blk[j*KTFS_DENSZ : (j+1)*KTFS_DENSZ])
			if de.inode != 0 && de.nameString() == name {
				cacheReleaseBlock(fs.cache, blk, false)
				var ino ktfsInode
				if err := fs.readInode(uint32(de.inode), &ino); err.isErr() {
					return 0, 0, err
				}
				return uint32(de.inode), uint64(ino.size), EOK
			}
		}
		cacheReleaseBlock(fs.cache, blk, false)
	}
	return 0, 0, ENOENT
}

// ktfsFileReadAt validates against the file's size, caps length, reads
// the inode, and loops over covered file blocks resolving and copying
// each through the cache. Grounded on ktfs_readat.
func ktfsFileReadAt(io *kio, pos uint64, buf []byte) (int, kerrno) {
	f := asKtfsFile(io)
	lockAcquire(&rootFS.lock)
	defer lockRelease(&rootFS.lock)

	var ino ktfsInode
	if err := rootFS.readInode(f.ino, &ino); err.isErr() {
		return 0, err
	}

	if pos >= uint64(ino.size) {
		return 0, EOK
	}
	length := uint64(len(buf))
	if pos+length > uint64(ino.size) {
		length = uint64(ino.size) - pos
	}

	var total uint64
	for total < length {
		fileBlock := uint32((pos + total) / KTFS_BLKSZ)
		blockOff := (pos + total) % KTFS_BLKSZ
		n := KTFS_BLKSZ - blockOff
		if n > length-total {
			n = length - total
		}

		var dataBlock uint32
		if err := rootFS.getBlocknumForOffset(&ino, fileBlock, &dataBlock); err.isErr() {
			return int(total), err
		}
		blk, err := cacheGetBlock(rootFS.cache, rootFS.dataBlockOffset(dataBlock))
		if err.isErr() {
			return int(total), err
		}
		copy(buf[total:total+n], blk[blockOff:blockOff+n])
		cacheReleaseBlock(rootFS.cache, blk, false)

		total += n
	}
	return int(total), EOK
}

// ktfsFileWriteAt grows the file first if the write extends past its
// current size, then loops through affected blocks the same way readat
// does, overwriting the requested slice and marking each entry dirty.
// Grounded on ktfs.c's writeat plus the IOCTL_SETEND growth path it
// defers to, supplemented with allocDataBlock since the source never
// allocates.
func ktfsFileWriteAt(io *kio, pos uint64, buf []byte) (int, kerrno) {
	f := asKtfsFile(io)
	newEnd := pos + uint64(len(buf))
	if newEnd > f.size {
		if err := ktfsGrowFile(f.ino, newEnd, &f.size); err.isErr() {
			return 0, err
		}
	}

	lockAcquire(&rootFS.lock)
	defer lockRelease(&rootFS.lock)

	var ino ktfsInode
	if err := rootFS.readInode(f.ino, &ino); err.isErr() {
		return 0, err
	}

	length := uint64(len(buf))
	var total uint64
	for total < length {
		fileBlock := uint32((pos + total) / KTFS_BLKSZ)
		blockOff := (pos + total) % KTFS_BLKSZ
		n := KTFS_BLKSZ - blockOff
		if n > length-total {
			n = length - total
		}

		var dataBlock uint32
		if err := rootFS.getBlocknumForOffset(&ino, fileBlock, &dataBlock); err.isErr() {
			return int(total), err
		}
		blk, err := cacheGetBlock(rootFS.cache, rootFS.dataBlockOffset(dataBlock))
		if err.isErr() {
			return int(total), err
		}
		copy(blk[blockOff:blockOff+n], buf[total:total+n])
		cacheReleaseBlock(rootFS.cache, blk, true)

		total += n
	}
	return int(total), EOK
}

// ktfsGrowFile allocates additional direct blocks up to newEnd (only
// direct growth is supported, matching the IOCTL_SETEND contract) and
// updates the inode's size.
func ktfsGrowFile(ino uint32, newEnd uint64, sizeOut *uint64) kerrno {
	lockAcquire(&rootFS.lock)
	defer lockRelease(&rootFS.lock)

	var inode ktfsInode
	if err := rootFS.readInode(ino, &inode); err.isErr() {
		return err
	}

	neededBlocks := (newEnd + KTFS_BLKSZ - 1) / KTFS_BLKSZ
	if neededBlocks > KTFS_NUM_DIRECT_DATA_BLOCKS {
		return ENODATABLKS
	}

	for i := uint32(0); uint64(i) < neededBlocks; i++ {
		if inode.block[i] == 0 {
			var blockno uint32
			if err := rootFS.allocDataBlock(&blockno); err.isErr() {
				return err
			}
			if err := rootFS.zeroDataBlock(blockno); err.isErr() {
				return err
			}
			inode.block[i] = blockno
		}
	}

	inode.size = uint32(newEnd)
	if err := rootFS.writeInode(ino, &inode); err.isErr() {
		return err
	}
	*sizeOut = newEnd
	return EOK
}

func ktfsFileCntl(io *kio, cmd int, arg unsafe.Pointer) (int, kerrno) {
	f := asKtfsFile(io)
	switch cmd {
	case IOCTL_GETBLKSZ:
		return 1, EOK
	case IOCTL_GETEND:
		*(*uint64)(arg) = f.size
		return 0, EOK
	case IOCTL_SETEND:
		newEnd := *(*uint64)(arg)
		if newEnd <= f.size {
			f.size = newEnd
			return 0, EOK
		}
		return 0, ktfsGrowFile(f.ino, newEnd, &f.size)
	default:
		return 0, ENOTSUP
	}
}

// ktfsCreate reads the root inode, allocates its first directory block if
// unallocated, rejects a duplicate name, finds the first empty directory
// slot and the first free inode, marks that inode in-use, writes the
// directory entry, and grows the root inode's recorded size by one entry.
// Grounded on ktfs_create, with alloc_data_block filling the gap the
// source leaves (it only ever reuses already-allocated direct blocks).
func ktfsCreate(name string) kerrno {
	if len(name) == 0 || len(name) > KTFS_MAX_FILENAME_LEN {
		return ENAMETOOLONG
	}

	lockAcquire(&rootFS.lock)
	defer lockRelease(&rootFS.lock)

	var root ktfsInode
	if err := rootFS.readInode(rootFS.sb.rootDirectoryInode, &root); err.isErr() {
		return err
	}

	if root.block[0] == 0 {
		var blockno uint32
		if err := rootFS.allocDataBlock(&blockno); err.isErr() {
			return err
		}
		if err := rootFS.zeroDataBlock(blockno); err.isErr() {
			return err
		}
		root.block[0] = blockno
		if err := rootFS.writeInode(rootFS.sb.rootDirectoryInode, &root); err.isErr() {
			return err
		}
	}

	var freeSlot = struct {
		dirBlock uint32
		entIdx   int
		found    bool
	}{}

	for i := uint32(0); i < KTFS_NUM_DIRECT_DATA_BLOCKS; i++ {
		if root.block[i] == 0 {
			continue
		}
		blk, err := cacheGetBlock(rootFS.cache, rootFS.dataBlockOffset(root.block[i]))
		if err.isErr() {
			return err
		}
		for j := 0; j < ktfsDirEntsPerBlock; j++ {
			var de ktfsDirEntry
			de.decode(blk[j*KTFS_DENSZ : (j+1)*KTFS_DENSZ])
			if de.inode != 0 && de.nameString() == name {
				cacheReleaseBlock(rootFS.cache, blk, false)
				return EEXIST
			}
			if de.inode == 0 && !freeSlot.found {
				freeSlot.dirBlock = root.block[i]
				freeSlot.entIdx = j
				freeSlot.found = true
			}
		}
		cacheReleaseBlock(rootFS.cache, blk, false)
	}

	if !freeSlot.found {
		return ENODATABLKS
	}

	freeIno, err := rootFS.findFreeInode()
	if err.isErr() {
		return err
	}

	newInode := ktfsInode{size: 0, flags: ktfsFileInUse}
	if err := rootFS.writeInode(freeIno, &newInode); err.isErr() {
		return err
	}

	blk, err := cacheGetBlock(rootFS.cache, rootFS.dataBlockOffset(freeSlot.dirBlock))
	if err.isErr() {
		return err
	}
	var de ktfsDirEntry
	if err := de.setName(name); err.isErr() {
		cacheReleaseBlock(rootFS.cache, blk, false)
		return err
	}
	de.inode = uint16(freeIno)
	de.encode(blk[freeSlot.entIdx*KTFS_DENSZ : (freeSlot.entIdx+1)*KTFS_DENSZ])
	cacheReleaseBlock(rootFS.cache, blk, true)

	root.size += KTFS_DENSZ
	return rootFS.writeInode(rootFS.sb.rootDirectoryInode, &root)
}

func (fs *ktfs) findFreeInode() (uint32, kerrno) {
	for ino := uint32(0); ino < fs.sb.inodeBlockCount*ktfsInodesPerBlock; ino++ {
		var candidate ktfsInode
		if err := fs.readInode(ino, &candidate); err.isErr() {
			return 0, err
		}
		if candidate.flags == ktfsFileFree {
			return ino, EOK
		}
	}
	return 0, ENOINODEBLKS
}

// ktfsDelete locates the named entry and its inode, frees every data
// block the inode references (direct, single-indirect, and both levels
// of double-indirect, plus the indirect pointer blocks themselves),
// zeros the inode slot, compacts the directory block, and shrinks the
// root inode's recorded size by one entry. Inode use is recorded only in
// the inode's flags; no bitmap bit is set or cleared for an inode.
// Grounded on ktfs_delete.
func ktfsDelete(name string) kerrno {
	lockAcquire(&rootFS.lock)
	defer lockRelease(&rootFS.lock)

	var root ktfsInode
	if err := rootFS.readInode(rootFS.sb.rootDirectoryInode, &root); err.isErr() {
		return err
	}

	for i := uint32(0); i < KTFS_NUM_DIRECT_DATA_BLOCKS; i++ {
		if root.block[i] == 0 {
			continue
		}
		blk, err := cacheGetBlock(rootFS.cache, rootFS.dataBlockOffset(root.block[i]))
		if err.isErr() {
			return err
		}

		for j := 0; j < ktfsDirEntsPerBlock; j++ {
			var de ktfsDirEntry
			de.decode(blk[j*KTFS_DENSZ : (j+1)*KTFS_DENSZ])
			if de.inode == 0 || de.nameString() != name {
				continue
			}

			ino := uint32(de.inode)
			var target ktfsInode
			if err := rootFS.readInode(ino, &target); err.isErr() {
				cacheReleaseBlock(rootFS.cache, blk, false)
				return err
			}
			if err := rootFS.freeInodeBlocks(&target); err.isErr() {
				cacheReleaseBlock(rootFS.cache, blk, false)
				return err
			}

			var cleared ktfsInode
			if err := rootFS.writeInode(ino, &cleared); err.isErr() {
				cacheReleaseBlock(rootFS.cache, blk, false)
				return err
			}

			rootFS.compactDirBlock(blk, j)
			cacheReleaseBlock(rootFS.cache, blk, true)

			root.size -= KTFS_DENSZ
			return rootFS.writeInode(rootFS.sb.rootDirectoryInode, &root)
		}
		cacheReleaseBlock(rootFS.cache, blk, false)
	}
	return ENOENT
}

// compactDirBlock shifts every entry after idx down by one slot and
// clears the now-vacated final slot, keeping in-use entries contiguous
// from the front of the block.
func (fs *ktfs) compactDirBlock(blk *[CACHE_BLKSZ]byte, idx int) {
	for j := idx; j < ktfsDirEntsPerBlock-1; j++ {
		copy(blk[j*KTFS_DENSZ:(j+1)*KTFS_DENSZ], blk[(j+1)*KTFS_DENSZ:(j+2)*KTFS_DENSZ])
	}
	last := ktfsDirEntsPerBlock - 1
	for k := last * KTFS_DENSZ; k < (last+1)*KTFS_DENSZ; k++ {
		blk[k] = 0
	}
}

func (fs *ktfs) freeInodeBlocks(ino *ktfsInode) kerrno {
	for _, b := range ino.block {
		if b != 0 {
			if err := fs.freeDataBlock(b); err.isErr() {
				return err
			}
		}
	}

	if ino.indirect != 0 {
		for i := uint32(0); i < ktfsPtrsPerBlock; i++ {
			ptr, err := fs.readPointer(ino.indirect, i)
			if err.isErr() {
				return err
			}
			if ptr != 0 {
				if err := fs.freeDataBlock(ptr); err.isErr() {
					return err
				}
			}
		}
		if err := fs.freeDataBlock(ino.indirect); err.isErr() {
			return err
		}
	}

	for _, dind := range ino.dindirect {
		if dind == 0 {
			continue
		}
		for s := uint32(0); s < ktfsPtrsPerBlock; s++ {
			single, err := fs.readPointer(dind, s)
			if err.isErr() {
				return err
			}
			if single == 0 {
				continue
			}
			for i := uint32(0); i < ktfsPtrsPerBlock; i++ {
				ptr, err := fs.readPointer(single, i)
				if err.isErr() {
					return err
				}
				if ptr != 0 {
					if err := fs.freeDataBlock(ptr); err.isErr() {
						return err
					}
				}
			}
			if err := fs.freeDataBlock(single); err.isErr() {
				return err
			}
		}
		if err := fs.freeDataBlock(dind); err.isErr() {
			return err
		}
	}
	return EOK
}

func ktfsFlush() kerrno {
	return cacheFlush(rootFS.cache)
}
