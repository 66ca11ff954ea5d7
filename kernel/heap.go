package main

import "unsafe"

// Kernel heap: a first-fit free list over a pool obtained from the page
// allocator at boot, each block's header stored in place at its own
// start — the same chunk idiom pagealloc.go uses for physical pages.
// memory.c calls out to a heap_init(heap_start, heap_end) it treats as an
// external collaborator (heap.h, never retained in this pack); this is
// the allocator that fills that role, used by process_fork's heap copy
// of the trap frame the way kalloc/kfree are used in process.c.

type heapBlock struct {
	next *heapBlock
	size uintptr // usable bytes following this header
}

const heapBlockHeaderSize = unsafe.Sizeof(heapBlock{})

var (
	heapPool        []byte
	heapFreeList    *heapBlock
	heapLock        spinlock
	heapInitialized bool
)

// heapInit carves pool into one large free block. Called once at boot
// after memoryInit, with pool backed by pages taken from the physical
// allocator.
func heapInit(pool []byte) {
	heapLock.initlock("heap")
	if uintptr(len(pool)) <= heapBlockHeaderSize {
		panic("heapInit: pool too small")
	}

	first := (*heapBlock)(unsafe.Pointer(&pool[0]))
	first.size = uintptr(len(pool)) - heapBlockHeaderSize
	first.next = nil

	heapPool = pool
	heapFreeList = first
	heapInitialized = true
}

// kalloc returns size bytes from the heap, first-fit, splitting the
// chosen block when the remainder is large enough to host another
// header. Panics on exhaustion, matching the page allocator's own
// alloc_phys_pages behavior.
func kalloc(size uintptr) unsafe.Pointer {
	heapLock.acquire()
	defer heapLock.release()

	var prev *heapBlock
	curr := heapFreeList
	for curr != nil {
		if curr.size >= size {
			if curr.size <= size+heapBlockHeaderSize {
				unlinkHeapBlock(prev, curr)
			} else {
				remainder := (*heapBlock)(unsafe.Pointer(uintptr(unsafe.Pointer(curr)) + heapBlockHeaderSize + size))
				remainder.size = curr.size - size - heapBlockHeaderSize
				remainder.next = curr.next
				replaceHeapBlock(prev, curr, remainder)
				curr.size = size
			}
			return unsafe.Pointer(uintptr(unsafe.Pointer(curr)) + heapBlockHeaderSize)
		}
		prev = curr
		curr = curr.next
	}
	panic("kalloc: out of heap memory")
}

func unlinkHeapBlock(prev, curr *heapBlock) {
	if prev == nil {
		heapFreeList = curr.next
	} else {
		prev.next = curr.next
	}
}

func replaceHeapBlock(prev, curr, with *heapBlock) {
	if prev == nil {
		heapFreeList = with
	} else {
		prev.next = with
	}
}

// kfree returns the block backing ptr (as handed out by kalloc) to the
// head of the free list. Never coalesces with neighbors, matching the
// page allocator's free_phys_pages.
func kfree(ptr unsafe.Pointer) {
	hdr := (*heapBlock)(unsafe.Pointer(uintptr(ptr) - heapBlockHeaderSize))

	heapLock.acquire()
	defer heapLock.release()

	hdr.next = heapFreeList
	heapFreeList = hdr
}
