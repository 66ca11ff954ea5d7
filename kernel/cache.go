package main

// Bounded write-back block cache: a FIFO linked list of up to
// CACHE_CAPACITY entries. A cache miss evicts the head (oldest entry),
// writing it back first if dirty. Grounded on cache.c's create_cache/
// cache_get_block/cache_release_block/cache_flush.

type cacheEntry struct {
	blocknum uint64
	data     [CACHE_BLKSZ]byte
	valid    bool
	dirty    bool
	next     *cacheEntry
}

type blockCache struct {
	bdev *kio
	head *cacheEntry
	tail *cacheEntry
	lock Lock
	size int
}

func createCache(bdev *kio) (*blockCache, kerrno) {
	if bdev == nil {
		return nil, EINVAL
	}
	c := &blockCache{bdev: ioaddref(bdev)}
	lockInit(&c.lock)
	return c, EOK
}

// cacheGetBlock returns a pointer to the CACHE_BLKSZ-byte slot holding
// the block at byte offset pos on the backing device, reading it from
// disk on a miss and evicting the oldest entry (writing it back first if
// dirty) when the cache is already at capacity.
func cacheGetBlock(c *blockCache, pos uint64) (*[CACHE_BLKSZ]byte, kerrno) {
	if pos%CACHE_BLKSZ != 0 {
		return nil, EINVAL
	}

	lockAcquire(&c.lock)
	defer lockRelease(&c.lock)

	blocknum := pos / CACHE_BLKSZ

	for e := c.head; e != nil; e = e.next {
		if e.valid && e.blocknum == blocknum {
			return &e.data, EOK
		}
	}

	if c.size >= CACHE_CAPACITY {
		victim := c.head
		c.head = victim.next
		if c.head == nil {
			c.tail = nil
		}
		c.size--

		if victim.valid && victim.dirty {
			n, err := iowriteat(c.bdev, victim.blocknum*CACHE_BLKSZ, victim.data[:])
			if n != CACHE_BLKSZ {
				if err.isErr() {
					return nil, err
				}
				return nil, EIO
			}
		}
	}

	entry := &cacheEntry{blocknum: blocknum}
	n, err := ioreadat(c.bdev, pos, entry.data[:])
	if n != CACHE_BLKSZ {
		if err.isErr() {
			return nil, err
		}
		return nil, EIO
	}
	entry.valid = true
	entry.dirty = false

	if c.tail == nil {
		c.head = entry
	} else {
		c.tail.next = entry
	}
	c.tail = entry
	c.size++

	return &entry.data, EOK
}

// cacheReleaseBlock marks the entry backing pblk dirty when dirty is set.
// Identifying the entry by comparing the returned data pointer mirrors
// cache_release_block's pointer-equality check.
func cacheReleaseBlock(c *blockCache, pblk *[CACHE_BLKSZ]byte, dirty bool) {
	lockAcquire(&c.lock)
	defer lockRelease(&c.lock)

	for e := c.head; e != nil; e = e.next {
		if e.valid && &e.data == pblk {
			if dirty {
				e.dirty = true
			}
			return
		}
	}
}

// cacheFlush writes back every dirty entry and clears its dirty bit.
func cacheFlush(c *blockCache) kerrno {
	lockAcquire(&c.lock)
	defer lockRelease(&c.lock)

	for e := c.head; e != nil; e = e.next {
		if e.valid && e.dirty {
			n, err := iowriteat(c.bdev, e.blocknum*CACHE_BLKSZ, e.data[:])
			if n != CACHE_BLKSZ {
				if err.isErr() {
					return err
				}
				return EIO
			}
			e.dirty = false
		}
	}
	return EOK
}
