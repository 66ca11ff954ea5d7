package main

import "testing"

// newTestAddrSpace carves a small fake RAM pool and installs a fresh,
// empty root table as the active address space directly (bypassing
// addrspaceInit's real device identity-mapping and the csrw_satp/
// sfence_vma hardware writes switchMspace would otherwise require), so
// the page-table logic in vm.go can be exercised without a real board.
func newTestAddrSpace(t *testing.T, extraPages uintptr) {
	t.Helper()
	newTestRAM(t, extraPages+8)
	root := allocPhysPage()
	zeroPage(root)
	activeRoot = pagetable_t(root)
	activeAsid = 0
	kernelRoot = pagetable_t(root)
	kernelAsid = 0
}

func TestMapPageAndWalk(t *testing.T) {
	newTestAddrSpace(t, 4)

	pa := allocPhysPage()
	const va = uintptr(0x4000)
	mapPage(va, pa, PTE_R|PTE_W|PTE_U)

	pte := walk3(activeRoot, va, false, 0)
	if pte == nil || *pte&PTE_V == 0 {
		t.Fatal("expected mapped, valid leaf PTE")
	}
	if PTE2PA(*pte) != pa {
		t.Fatalf("leaf PA = %#x, want %#x", PTE2PA(*pte), pa)
	}
	if uintptr(*pte)&(PTE_R|PTE_W|PTE_U) != (PTE_R | PTE_W | PTE_U) {
		t.Fatalf("leaf flags missing R/W/U: %#x", *pte)
	}
}

func TestMapPageMisalignedPanics(t *testing.T) {
	newTestAddrSpace(t, 4)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on misaligned mapPage")
		}
	}()
	mapPage(0x4001, allocPhysPage(), PTE_R)
}

func TestAllocAndMapRangeThenCopy(t *testing.T) {
	newTestAddrSpace(t, 8)
	const va = uintptr(0x8000)
	const size = 3 * PAGE_SIZE

	if got := allocAndMapRange(va, size, PTE_R|PTE_W|PTE_U); got != va {
		t.Fatalf("allocAndMapRange returned %#x, want %#x", got, va)
	}

	src := make([]byte, size)
	for i := range src {
		src[i] = byte(i)
	}
	copyToUser(va, src)

	out := make([]byte, size)
	copyFromUser(out, va)
	for i := range src {
		if out[i] != src[i] {
			t.Fatalf("byte %d: got %#x, want %#x", i, out[i], src[i])
		}
	}
}

func TestZeroUser(t *testing.T) {
	newTestAddrSpace(t, 4)
	const va = uintptr(0x4000)
	allocAndMapRange(va, PAGE_SIZE, PTE_R|PTE_W|PTE_U)
	copyToUser(va, []byte{1, 2, 3, 4})
	zeroUser(va, 4)

	out := make([]byte, 4)
	copyFromUser(out, va)
	for i, b := range out {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %#x", i, b)
		}
	}
}

func TestValidateVptr(t *testing.T) {
	newTestAddrSpace(t, 4)
	const va = uintptr(0x4000)

	if err := validateVptr(va, PAGE_SIZE, PTE_U|PTE_R); err != EACCESS {
		t.Fatalf("unmapped range: got %v, want EACCESS", err)
	}

	allocAndMapRange(va, PAGE_SIZE, PTE_R|PTE_U)
	if err := validateVptr(va, PAGE_SIZE, PTE_U|PTE_R); err.isErr() {
		t.Fatalf("mapped range with matching flags: got %v, want EOK", err)
	}
	if err := validateVptr(va, PAGE_SIZE, PTE_U|PTE_W); err != EACCESS {
		t.Fatalf("mapped range missing W: got %v, want EACCESS", err)
	}
}

func TestValidateVstr(t *testing.T) {
	newTestAddrSpace(t, 4)
	const va = uintptr(0x4000)
	allocAndMapRange(va, PAGE_SIZE, PTE_R|PTE_U)
	copyToUser(va, []byte("hello\x00"))

	if err := validateVstr(va, PTE_U|PTE_R); err.isErr() {
		t.Fatalf("validateVstr on NUL-terminated string: got %v", err)
	}
}

func TestCloneAndResetActiveMspace(t *testing.T) {
	newTestAddrSpace(t, 8)
	const va = uintptr(0x4000)
	allocAndMapRange(va, PAGE_SIZE, PTE_R|PTE_W|PTE_U)
	copyToUser(va, []byte("parent"))

	origRoot := activeRoot
	cloned := cloneActiveMspace()
	if cloned.asid() == 0 {
		t.Fatal("cloned mspace reused the kernel asid (0)")
	}

	// Inspect the clone without switching to it (switchMspace needs
	// real CSR writes): walk the cloned root directly.
	pte := walk3(pagetable_t(cloned.rootPA()), va, false, 0)
	if pte == nil || *pte&PTE_V == 0 {
		t.Fatal("clone missing the parent's mapping")
	}
	if PTE2PA(*pte) == PTE2PA(*walk3(origRoot, va, false, 0)) {
		t.Fatal("clone shares the parent's physical page instead of copying it")
	}

	resetActiveMspace()
	if pte := walk3(activeRoot, va, false, 0); pte != nil && *pte&PTE_V != 0 {
		t.Fatal("resetActiveMspace left a user mapping behind")
	}
}

func TestSetRangeFlags(t *testing.T) {
	newTestAddrSpace(t, 4)
	const va = uintptr(0x4000)
	allocAndMapRange(va, PAGE_SIZE, PTE_R|PTE_W|PTE_U)

	setRangeFlags(va, PAGE_SIZE, PTE_R|PTE_U)
	pte := walk3(activeRoot, va, false, 0)
	if uintptr(*pte)&PTE_W != 0 {
		t.Fatal("setRangeFlags did not drop the W bit")
	}
}
