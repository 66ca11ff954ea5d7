package main

import "unsafe"

// Sv39 address-space management. Generalizes the teacher's vm.go (a single
// flat kernel pagetable built by kvminit/mappages) to full per-process
// address spaces: clone/reset/discard, range operations, demand paging on
// user page faults, and the validate_vptr/validate_vstr primitives the
// syscall layer leans on. Grounded on memory.c's map_page family and the
// deep-copy clone/reset/discard semantics that file leaves as stubs.

var (
	kernelRoot pagetable_t
	kernelAsid = uint32(0)

	activeRoot pagetable_t
	activeAsid uint32
	asidNext   uint32 = 1

	vmLock spinlock
)

func addrPPN(pa uintptr) uintptr { return pa >> PGSHIFT }

func leafPTE(pa uintptr, flags uintptr) pte_t {
	return PA2PTE(pa) | pte_t(flags) | PTE_V | PTE_A | PTE_D
}

func ptabPTE(pa uintptr, gflag uintptr) pte_t {
	return PA2PTE(pa) | pte_t(gflag) | PTE_V
}

func nullPTE() pte_t { return 0 }

// pteEntry returns a pointer to the PTE at index idx of the table rooted
// at the physical address table, reaching into ramPool the same way
// pagealloc's ptrAt does.
func pteEntry(table pagetable_t, idx uintptr) *pte_t {
	return (*pte_t)(unsafe.Pointer(uintptr(ptrAt(uintptr(table))) + idx*8))
}

// walk3 descends the three-level Sv39 table rooted at root to the leaf PTE
// for va, allocating and zeroing intermediate tables along the way when
// alloc is set. globalFlag is propagated onto any intermediate table PTE
// this call creates, so a global leaf mapping keeps its whole path global
// while user mappings don't inadvertently mark shared subtrees global.
func walk3(root pagetable_t, va uintptr, alloc bool, globalFlag uintptr) *pte_t {
	if va >= MAXVA {
		panic("walk3: address out of range")
	}

	table := root
	for level := 2; level > 0; level-- {
		idx := PX(level, va)
		pte := pteEntry(table, idx)
		if *pte&PTE_V != 0 {
			table = pagetable_t(PTE2PA(*pte))
			continue
		}
		if !alloc {
			return nil
		}
		newTable := allocPhysPage()
		zeroPage(newTable)
		*pte = ptabPTE(newTable, globalFlag)
		table = pagetable_t(newTable)
	}

	return pteEntry(table, PX(0, va))
}

func activeMspace() mtag_t {
	return mkMtag(activeAsid, addrPPN(uintptr(activeRoot)))
}

// switchMspace installs mtag as the active address space and returns the
// previously active one, flushing the TLB the way a real SATP write would
// require. Hardware is only touched via csrrw_satp/sfence_vma; the
// page-table logic elsewhere in this file works off the activeRoot/
// activeAsid shadow so it can be exercised without a CSR to read back.
func switchMspace(mtag mtag_t) mtag_t {
	prev := activeMspace()
	activeAsid = mtag.asid()
	activeRoot = pagetable_t(mtag.rootPA())
	csrw_satp(mtag)
	sfence_vma()
	return prev
}

// cloneActiveMspace deep-copies the user half of the active address space:
// non-leaf entries recurse into freshly allocated tables, 4K leaves get a
// fresh page with copied contents, large-page leaves are shared directly,
// and global entries are copied verbatim without recursing. The clone gets
// a fresh asid from a rolling counter that skips 0 (reserved for the
// kernel space).
func cloneActiveMspace() mtag_t {
	vmLock.acquire()
	defer vmLock.release()

	newRoot := allocPhysPage()
	zeroPage(newRoot)
	cloneTable(activeRoot, pagetable_t(newRoot), 2)

	asid := asidNext
	asidNext++
	if asidNext == 0 {
		asidNext = 1
	}
	return mkMtag(asid, addrPPN(newRoot))
}

// cloneTable recursively copies one level of a page table. level 0 entries
// are leaves; levels 1 and 2 entries are either leaves (mega/gigapages) or
// pointers to the next level down.
func cloneTable(src, dst pagetable_t, level int) {
	for idx := uintptr(0); idx < 512; idx++ {
		srcPTE := pteEntry(src, idx)
		if *srcPTE&PTE_V == 0 {
			continue
		}

		if *srcPTE&PTE_G != 0 {
			*pteEntry(dst, idx) = *srcPTE
			continue
		}

		isLeaf := *srcPTE&(PTE_R|PTE_W|PTE_X) != 0
		if isLeaf {
			if level == 0 {
				newPage := allocPhysPage()
				copyPage(newPage, PTE2PA(*srcPTE))
				*pteEntry(dst, idx) = leafPTE(newPage, PTEFLAGS(*srcPTE)&^uintptr(PTE_A|PTE_D|PTE_V))
			} else {
				*pteEntry(dst, idx) = *srcPTE
			}
			continue
		}

		childSrc := pagetable_t(PTE2PA(*srcPTE))
		childDst := pagetable_t(allocPhysPage())
		zeroPage(uintptr(childDst))
		*pteEntry(dst, idx) = ptabPTE(uintptr(childDst), 0)
		cloneTable(childSrc, childDst, level-1)
	}
}

func copyPage(dst, src uintptr) {
	dstPage := (*[PAGE_SIZE]byte)(ptrAt(dst))
	srcPage := (*[PAGE_SIZE]byte)(ptrAt(src))
	copy(dstPage[:], srcPage[:])
}

// resetActiveMspace frees every non-global user data page and intermediate
// table in the active space, leaving the kernel half untouched, and
// flushes the TLB.
func resetActiveMspace() {
	vmLock.acquire()
	defer vmLock.release()

	resetTable(activeRoot, 2)
	sfence_vma()
}

func resetTable(table pagetable_t, level int) {
	for idx := uintptr(0); idx < 512; idx++ {
		pte := pteEntry(table, idx)
		if *pte&PTE_V == 0 || *pte&PTE_G != 0 {
			continue
		}

		isLeaf := *pte&(PTE_R|PTE_W|PTE_X) != 0
		if isLeaf {
			freePhysPage(PTE2PA(*pte))
			*pte = nullPTE()
			continue
		}

		child := pagetable_t(PTE2PA(*pte))
		if level > 0 {
			resetTable(child, level-1)
		}
		freePhysPage(uintptr(child))
		*pte = nullPTE()
	}
}

// discardActiveMspace resets the active space, switches to the kernel
// space, and frees the (now-empty) root table page.
func discardActiveMspace() mtag_t {
	resetActiveMspace()
	oldRoot := activeRoot
	prev := switchMspace(mkMtag(kernelAsid, addrPPN(uintptr(kernelRoot))))
	freePhysPage(uintptr(oldRoot))
	return prev
}

// mapPage installs a single leaf PTE for vma in the active space, allocating
// intermediate tables as needed, and flushes the TLB.
func mapPage(vma uintptr, pa uintptr, flags uintptr) uintptr {
	if vma%PAGE_SIZE != 0 {
		panic("map_page: misaligned address")
	}
	if !wellformed(vma) {
		panic("map_page: non-canonical address")
	}

	pte := walk3(activeRoot, vma, true, flags&PTE_G)
	*pte = leafPTE(pa, flags)
	sfence_vma()
	return vma
}

func mapRange(vma uintptr, size uintptr, pa uintptr, flags uintptr) uintptr {
	rounded := PGGROUNDUP(size)
	for off := uintptr(0); off < rounded; off += PAGE_SIZE {
		mapPage(vma+off, pa+off, flags)
	}
	return vma
}

// allocAndMapRange allocates fresh zeroed physical pages and maps them
// across [vma, vma+size).
func allocAndMapRange(vma uintptr, size uintptr, flags uintptr) uintptr {
	pageCount := PGGROUNDUP(size) / PAGE_SIZE
	pa := allocPhysPages(pageCount)
	for i := uintptr(0); i < pageCount; i++ {
		zeroPage(pa + i*PAGE_SIZE)
	}
	return mapRange(vma, size, pa, flags)
}

// setRangeFlags rewrites the permission bits of every leaf PTE covering
// [vp, vp+size) without touching its physical page.
func setRangeFlags(vp uintptr, size uintptr, flags uintptr) {
	rounded := PGGROUNDUP(size)
	for off := uintptr(0); off < rounded; off += PAGE_SIZE {
		pte := walk3(activeRoot, vp+off, false, 0)
		if pte == nil || *pte&PTE_V == 0 {
			continue
		}
		*pte = leafPTE(PTE2PA(*pte), flags)
	}
	sfence_vma()
}

// unmapAndFreeRange removes every leaf PTE covering [vp, vp+size) and frees
// its backing physical page.
func unmapAndFreeRange(vp uintptr, size uintptr) {
	rounded := PGGROUNDUP(size)
	for off := uintptr(0); off < rounded; off += PAGE_SIZE {
		pte := walk3(activeRoot, vp+off, false, 0)
		if pte == nil || *pte&PTE_V == 0 {
			continue
		}
		freePhysPage(PTE2PA(*pte))
		*pte = nullPTE()
	}
	sfence_vma()
}

// handleUmodePageFault services a demand-paging fault at vma: if the
// address falls inside the user region it is page-aligned, backed with a
// fresh zeroed page, and mapped with U, R, and W/X depending on the
// faulting access. Returns whether the fault was handled.
func handleUmodePageFault(scause uintptr, vma uintptr) bool {
	if vma < UMEM_START || vma >= UMEM_END {
		return false
	}

	vma = PGGROUNDDOWN(vma)

	flags := uintptr(PTE_R | PTE_U)
	if scause == scauseStorePageFault {
		flags |= PTE_W
	}
	if scause == scauseInstrPageFault {
		flags |= PTE_X
	}

	newPage := allocPhysPage()
	zeroPage(newPage)
	mapPage(vma, newPage, flags)
	return true
}

// validateVptr checks that every page covering [p, p+length) is mapped in
// the active space with at least the requested flags (which must include
// PTE_U, since user pointers are what this guards).
func validateVptr(p uintptr, length uintptr, flags uintptr) kerrno {
	if length == 0 {
		return EOK
	}
	if p+length < p || !wellformed(p) || !wellformed(p+length-1) {
		return EINVAL
	}

	start := PGGROUNDDOWN(p)
	end := PGGROUNDDOWN(p + length - 1)
	for va := start; ; va += PAGE_SIZE {
		pte := walk3(activeRoot, va, false, 0)
		if pte == nil || *pte&PTE_V == 0 {
			return EACCESS
		}
		if uintptr(*pte)&flags != flags {
			return EACCESS
		}
		if va == end {
			break
		}
	}
	return EOK
}

// validateVstr walks s page by page (requiring flags, typically PTE_U|
// PTE_R) until it finds a NUL byte, only dereferencing bytes on pages it
// has already confirmed are mapped with the right permissions.
func validateVstr(s uintptr, flags uintptr) kerrno {
	if !wellformed(s) {
		return EINVAL
	}

	va := PGGROUNDDOWN(s)
	for {
		pte := walk3(activeRoot, va, false, 0)
		if pte == nil || *pte&PTE_V == 0 {
			return EACCESS
		}
		if uintptr(*pte)&flags != flags {
			return EACCESS
		}

		pageBase := PTE2PA(*pte)
		start := uintptr(0)
		if va == PGGROUNDDOWN(s) {
			start = s - va
		}
		page := (*[PAGE_SIZE]byte)(ptrAt(pageBase))
		for i := start; i < PAGE_SIZE; i++ {
			if page[i] == 0 {
				return EOK
			}
		}
		va += PAGE_SIZE
		if !wellformed(va) {
			return EINVAL
		}
	}
}

// copyToUser copies src into the active address space starting at vaddr,
// translating each covered page to its physical address via walk3/ptrAt
// rather than dereferencing the user virtual address directly (this
// kernel has no virtual mapping of its own over user space — physical
// memory is only reachable through ramPool/ptrAt). Panics if any covered
// page isn't mapped; callers validate with validateVptr first when the
// range comes from an untrusted caller.
func copyToUser(vaddr uintptr, src []byte) {
	pos := uintptr(0)
	for pos < uintptr(len(src)) {
		va := vaddr + pos
		page := PGGROUNDDOWN(va)
		off := va - page

		pte := walk3(activeRoot, page, false, 0)
		if pte == nil || *pte&PTE_V == 0 {
			panic("copyToUser: page not mapped")
		}
		pa := PTE2PA(*pte) + off

		n := PAGE_SIZE - off
		if n > uintptr(len(src))-pos {
			n = uintptr(len(src)) - pos
		}
		dst := unsafe.Slice((*byte)(ptrAt(pa)), int(n))
		copy(dst, src[pos:pos+n])
		pos += n
	}
}

// copyFromUser is copyToUser's mirror image: it fills dst by reading from
// the active address space starting at vaddr.
func copyFromUser(dst []byte, vaddr uintptr) {
	pos := uintptr(0)
	for pos < uintptr(len(dst)) {
		va := vaddr + pos
		page := PGGROUNDDOWN(va)
		off := va - page

		pte := walk3(activeRoot, page, false, 0)
		if pte == nil || *pte&PTE_V == 0 {
			panic("copyFromUser: page not mapped")
		}
		pa := PTE2PA(*pte) + off

		n := PAGE_SIZE - off
		if n > uintptr(len(dst))-pos {
			n = uintptr(len(dst)) - pos
		}
		src := unsafe.Slice((*byte)(ptrAt(pa)), int(n))
		copy(dst[pos:pos+n], src)
		pos += n
	}
}

// zeroUser zeroes length bytes of the active address space starting at
// vaddr, page by page.
func zeroUser(vaddr uintptr, length uintptr) {
	pos := uintptr(0)
	for pos < length {
		va := vaddr + pos
		page := PGGROUNDDOWN(va)
		off := va - page

		pte := walk3(activeRoot, page, false, 0)
		if pte == nil || *pte&PTE_V == 0 {
			panic("zeroUser: page not mapped")
		}
		pa := PTE2PA(*pte) + off

		n := PAGE_SIZE - off
		if n > length-pos {
			n = length - pos
		}
		dst := unsafe.Slice((*byte)(ptrAt(pa)), int(n))
		for i := range dst {
			dst[i] = 0
		}
		pos += n
	}
}

// addrspaceInit builds the kernel's root table and identity-maps the
// device and RAM regions every address space shares, then switches to it.
// Mirrors the teacher's kvminit, generalized from a fixed gigapage region
// to the devices this kernel actually names (UART, VirtIO MMIO, PLIC).
func addrspaceInit() {
	vmLock.initlock("vm")

	root := allocPhysPage()
	zeroPage(root)
	kernelRoot = pagetable_t(root)
	activeRoot = kernelRoot
	activeAsid = kernelAsid

	mapRange(UART0, PAGE_SIZE, UART0, PTE_R|PTE_W|PTE_G)
	mapRange(VIRTIO0, PAGE_SIZE, VIRTIO0, PTE_R|PTE_W|PTE_G)
	mapRange(PLIC, 0x400000, PLIC, PTE_R|PTE_W|PTE_G)
	mapRange(RAM_START, RAM_SIZE, RAM_START, PTE_R|PTE_W|PTE_X|PTE_G)

	switchMspace(mkMtag(kernelAsid, addrPPN(root)))
}
