package main

import "unsafe"

// Physical page-frame allocator: a singly-linked list of free chunks, each
// chunk a run of consecutive pages whose header lives in the chunk's own
// first page. Ported from the teacher's kalloc.go (a flat single-page free
// list) and generalized to variable-length chunks and first-fit splitting,
// grounded on memory.c's page_chunk/alloc_phys_pages/free_phys_pages.
//
// The backing store is a plain Go byte slice (ramPool) rather than a region
// the linker placed at RAM_START. On real hardware ramBase is RAM_START and
// ramPool is never touched directly; tests call memoryInit with a small
// slice instead, so the chunk-splitting logic runs under go test without any
// hardware behind it.

type pageChunk struct {
	next    *pageChunk
	pagecnt uintptr
}

var (
	ramPool       []byte
	ramBase       uintptr
	freeChunkList *pageChunk
	pageLock      spinlock
)

// memoryInit carves pool into page-aligned physical memory starting at
// base and seeds the free chunk list with everything after the region
// [base, reservedEnd) that the caller has already claimed (kernel image,
// early heap).
func memoryInit(pool []byte, base uintptr, reservedEnd uintptr) {
	ramPool = pool
	ramBase = base
	pageLock.initlock("pagealloc")

	start := PGGROUNDUP(reservedEnd)
	end := base + uintptr(len(pool))
	if start >= end {
		panic("memoryInit: no free pages left after reserved region")
	}

	chunk := (*pageChunk)(ptrAt(start))
	chunk.pagecnt = (end - start) / PAGE_SIZE
	chunk.next = nil
	freeChunkList = chunk
}

// ptrAt converts a physical address within ramPool into a live Go pointer.
func ptrAt(pa uintptr) unsafe.Pointer {
	off := pa - ramBase
	if off >= uintptr(len(ramPool)) {
		panic("ptrAt: address outside physical memory pool")
	}
	return unsafe.Pointer(&ramPool[off])
}

func allocPhysPage() uintptr {
	return allocPhysPages(1)
}

func freePhysPage(pa uintptr) {
	freePhysPages(pa, 1)
}

// allocPhysPages removes the first chunk on the free list with at least cnt
// pages (first-fit), splitting off the remainder when the chunk is larger
// than requested, and returns the base physical address of the cnt pages
// taken from its head. Panics if no chunk is large enough, matching
// alloc_phys_pages's unconditional panic when physical memory is exhausted.
func allocPhysPages(cnt uintptr) uintptr {
	pageLock.acquire()
	defer pageLock.release()

	var prev *pageChunk
	curr := freeChunkList
	for curr != nil {
		if curr.pagecnt >= cnt {
			pa := ramBase + (uintptr(unsafe.Pointer(curr)) - uintptr(unsafe.Pointer(&ramPool[0])))
			if curr.pagecnt == cnt {
				if prev == nil {
					freeChunkList = curr.next
				} else {
					prev.next = curr.next
				}
			} else {
				newChunk := (*pageChunk)(ptrAt(pa + cnt*PAGE_SIZE))
				newChunk.pagecnt = curr.pagecnt - cnt
				newChunk.next = curr.next
				if prev == nil {
					freeChunkList = newChunk
				} else {
					prev.next = newChunk
				}
			}
			return pa
		}
		prev = curr
		curr = curr.next
	}
	panic("allocPhysPages: out of physical memory")
}

// freePhysPages returns cnt pages starting at pa to the free list by
// pushing a new chunk header onto the head, exactly as free_phys_pages does.
// It never coalesces with neighboring chunks; neither does the reference.
func freePhysPages(pa uintptr, cnt uintptr) {
	pageLock.acquire()
	defer pageLock.release()

	chunk := (*pageChunk)(ptrAt(pa))
	chunk.pagecnt = cnt
	chunk.next = freeChunkList
	freeChunkList = chunk
}

// freePhysPageCount walks the free list and sums pagecnt across every
// chunk; used by diagnostics and tests, never on a hot path.
func freePhysPageCount() uintptr {
	pageLock.acquire()
	defer pageLock.release()

	var count uintptr
	for c := freeChunkList; c != nil; c = c.next {
		count += c.pagecnt
	}
	return count
}

func zeroPage(pa uintptr) {
	memset(uintptr(ptrAt(pa)), 0, uint(PAGE_SIZE))
}
