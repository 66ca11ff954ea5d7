package main

import "testing"

func newTestRAM(t *testing.T, pages uintptr) uintptr {
	t.Helper()
	const base = 0x10000
	pool := make([]byte, int(pages*PAGE_SIZE))
	memoryInit(pool, base, base)
	return base
}

func TestAllocPhysPagesFirstFit(t *testing.T) {
	base := newTestRAM(t, 4)

	a := allocPhysPages(1)
	if a != base {
		t.Fatalf("first allocation = %#x, want base %#x", a, base)
	}

	b := allocPhysPages(2)
	if b != base+PAGE_SIZE {
		t.Fatalf("second allocation = %#x, want %#x", b, base+PAGE_SIZE)
	}

	if got := freePhysPageCount(); got != 1 {
		t.Fatalf("freePhysPageCount = %d, want 1", got)
	}
}

func TestAllocPhysPagesExhaustion(t *testing.T) {
	newTestRAM(t, 2)
	allocPhysPages(2)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-memory allocation")
		}
	}()
	allocPhysPages(1)
}

func TestFreePhysPagesNoCoalesce(t *testing.T) {
	base := newTestRAM(t, 2)

	a := allocPhysPages(1)
	b := allocPhysPages(1)
	freePhysPages(a, 1)
	freePhysPages(b, 1)

	// Two independently-freed single-page chunks stay separate entries
	// even though they're adjacent; a subsequent 2-page request must
	// still fail since neither chunk alone is large enough.
	if freePhysPageCount() != 2 {
		t.Fatalf("freePhysPageCount = %d, want 2", freePhysPageCount())
	}
	if freeChunkList == nil || freeChunkList.pagecnt != 1 {
		t.Fatalf("expected head chunk of 1 page, got %+v", freeChunkList)
	}
	_ = base
}

func TestZeroPage(t *testing.T) {
	base := newTestRAM(t, 1)
	page := (*[PAGE_SIZE]byte)(ptrAt(base))
	for i := range page {
		page[i] = 0xAB
	}
	zeroPage(base)
	for i, b := range page {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %#x", i, b)
		}
	}
}
