package main

import (
	"encoding/binary"
	"testing"
)

func TestReadUserStringUnmappedReturnsEACCESS(t *testing.T) {
	newTestAddrSpace(t, 4)
	if _, err := readUserString(0x4000, 16); err != EACCESS {
		t.Fatalf("unmapped: got %v, want EACCESS", err)
	}
}

func TestReadUserStringMappedButUnreadable(t *testing.T) {
	newTestAddrSpace(t, 4)
	const va = uintptr(0x4000)
	// Mapped for write only: validateVstr requires PTE_U|PTE_R.
	allocAndMapRange(va, PAGE_SIZE, PTE_W|PTE_U)

	if _, err := readUserString(va, 16); err != EACCESS {
		t.Fatalf("readable flag missing: got %v, want EACCESS", err)
	}
}

func TestReadUserStringHappyPath(t *testing.T) {
	newTestAddrSpace(t, 4)
	const va = uintptr(0x4000)
	allocAndMapRange(va, PAGE_SIZE, PTE_R|PTE_U)
	copyToUser(va, []byte("argument\x00"))

	s, err := readUserString(va, 32)
	if err.isErr() || s != "argument" {
		t.Fatalf("readUserString: s=%q err=%v", s, err)
	}
}

func TestReadUserStringWithoutNULReturnsEACCESS(t *testing.T) {
	newTestAddrSpace(t, 4)
	const va = uintptr(0x4000)
	allocAndMapRange(va, PAGE_SIZE, PTE_R|PTE_U)
	full := make([]byte, PAGE_SIZE)
	for i := range full {
		full[i] = 'a'
	}
	copyToUser(va, full)

	if _, err := readUserString(va, int(PAGE_SIZE)); err != EACCESS {
		t.Fatalf("no NUL terminator: got %v, want EACCESS", err)
	}
}

func TestReadUserPointersUnmappedReturnsEACCESS(t *testing.T) {
	newTestAddrSpace(t, 4)
	if _, err := readUserPointers(0x4000, 4); err != EACCESS {
		t.Fatalf("unmapped: got %v, want EACCESS", err)
	}
}

func TestReadUserPointersHappyPath(t *testing.T) {
	newTestAddrSpace(t, 4)
	const va = uintptr(0x4000)
	allocAndMapRange(va, PAGE_SIZE, PTE_R|PTE_U)

	raw := make([]byte, 24)
	binary.LittleEndian.PutUint64(raw[0:8], 0x1000)
	binary.LittleEndian.PutUint64(raw[8:16], 0x2000)
	binary.LittleEndian.PutUint64(raw[16:24], 0x3000)
	copyToUser(va, raw)

	ptrs, err := readUserPointers(va, 3)
	if err.isErr() {
		t.Fatalf("readUserPointers: %v", err)
	}
	want := []uintptr{0x1000, 0x2000, 0x3000}
	for i, p := range ptrs {
		if p != want[i] {
			t.Fatalf("ptr %d = %#x, want %#x", i, p, want[i])
		}
	}
}

func TestReadUserArgvDecodesEachString(t *testing.T) {
	newTestAddrSpace(t, 4)
	const argvVA = uintptr(0x4000)
	const str0VA = uintptr(0x5000)
	const str1VA = uintptr(0x6000)

	allocAndMapRange(argvVA, PAGE_SIZE, PTE_R|PTE_U)
	allocAndMapRange(str0VA, PAGE_SIZE, PTE_R|PTE_U)
	allocAndMapRange(str1VA, PAGE_SIZE, PTE_R|PTE_U)

	ptrBuf := make([]byte, 16)
	binary.LittleEndian.PutUint64(ptrBuf[0:8], uint64(str0VA))
	binary.LittleEndian.PutUint64(ptrBuf[8:16], uint64(str1VA))
	copyToUser(argvVA, ptrBuf)
	copyToUser(str0VA, []byte("first\x00"))
	copyToUser(str1VA, []byte("second\x00"))

	argv, err := readUserArgv(argvVA, 2)
	if err.isErr() {
		t.Fatalf("readUserArgv: %v", err)
	}
	if len(argv) != 2 || argv[0] != "first" || argv[1] != "second" {
		t.Fatalf("argv = %#v, want [first second]", argv)
	}
}

func TestReadUserArgvPropagatesBadPointer(t *testing.T) {
	newTestAddrSpace(t, 4)
	const argvVA = uintptr(0x4000)
	allocAndMapRange(argvVA, PAGE_SIZE, PTE_R|PTE_U)

	ptrBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(ptrBuf[0:8], 0xdeadbeef) // unmapped target
	copyToUser(argvVA, ptrBuf)

	if _, err := readUserArgv(argvVA, 1); err != EACCESS {
		t.Fatalf("bad argv[0] pointer: got %v, want EACCESS", err)
	}
}
