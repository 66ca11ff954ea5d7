package main

import (
	"encoding/binary"
	"testing"
)

func TestElfHeaderDecodeRoundTrip(t *testing.T) {
	buf := make([]byte, elf64EhdrSize)
	buf[0], buf[1], buf[2], buf[3] = elfMagic0, elfMagic1, elfMagic2, elfMagic3
	buf[4] = elfClass64
	buf[5] = elfData2LSB
	buf[6] = elfVersionCurrent
	binary.LittleEndian.PutUint16(buf[16:18], elfTypeExec)
	binary.LittleEndian.PutUint16(buf[18:20], elfMachineRISCV)
	binary.LittleEndian.PutUint64(buf[24:32], 0x80100000)
	binary.LittleEndian.PutUint64(buf[32:40], elf64EhdrSize)
	binary.LittleEndian.PutUint16(buf[54:56], elf64PhdrSize)
	binary.LittleEndian.PutUint16(buf[56:58], 1)

	var h elf64Ehdr
	h.decode(buf)

	if h.ident[0] != elfMagic0 || h.machine != elfMachineRISCV || h.etype != elfTypeExec {
		t.Fatalf("decoded header mismatch: %+v", h)
	}
	if h.entry != 0x80100000 || h.phoff != elf64EhdrSize || h.phentsize != elf64PhdrSize || h.phnum != 1 {
		t.Fatalf("decoded header offsets mismatch: %+v", h)
	}
}

func TestElfPhdrDecodeRoundTrip(t *testing.T) {
	buf := make([]byte, elf64PhdrSize)
	binary.LittleEndian.PutUint32(buf[0:4], elfPTLoad)
	binary.LittleEndian.PutUint32(buf[4:8], pfR|pfW|pfX)
	binary.LittleEndian.PutUint64(buf[16:24], 0x80100000)
	binary.LittleEndian.PutUint64(buf[32:40], 100)
	binary.LittleEndian.PutUint64(buf[40:48], 200)

	var p elf64Phdr
	p.decode(buf)

	if p.ptype != elfPTLoad || p.pflags != pfR|pfW|pfX {
		t.Fatalf("decoded phdr type/flags mismatch: %+v", p)
	}
	if p.vaddr != 0x80100000 || p.filesz != 100 || p.memsz != 200 {
		t.Fatalf("decoded phdr size fields mismatch: %+v", p)
	}
}

// buildFakeELF assembles a single-PT_LOAD RISC-V64 EXEC image: a header, one
// program header, then the segment's file contents.
func buildFakeELF(vaddr uint64, fileData []byte, memsz uint64, flags uint32) []byte {
	phOff := uint64(elf64EhdrSize)
	dataOff := phOff + elf64PhdrSize

	buf := make([]byte, int(dataOff)+len(fileData))

	buf[0], buf[1], buf[2], buf[3] = elfMagic0, elfMagic1, elfMagic2, elfMagic3
	buf[4] = elfClass64
	buf[5] = elfData2LSB
	buf[6] = elfVersionCurrent
	binary.LittleEndian.PutUint16(buf[16:18], elfTypeExec)
	binary.LittleEndian.PutUint16(buf[18:20], elfMachineRISCV)
	binary.LittleEndian.PutUint64(buf[24:32], vaddr)
	binary.LittleEndian.PutUint64(buf[32:40], phOff)
	binary.LittleEndian.PutUint16(buf[54:56], elf64PhdrSize)
	binary.LittleEndian.PutUint16(buf[56:58], 1)

	ph := buf[phOff : phOff+elf64PhdrSize]
	binary.LittleEndian.PutUint32(ph[0:4], elfPTLoad)
	binary.LittleEndian.PutUint32(ph[4:8], flags)
	binary.LittleEndian.PutUint64(ph[8:16], dataOff)
	binary.LittleEndian.PutUint64(ph[16:24], vaddr)
	binary.LittleEndian.PutUint64(ph[32:40], uint64(len(fileData)))
	binary.LittleEndian.PutUint64(ph[40:48], memsz)

	copy(buf[dataOff:], fileData)
	return buf
}

// elfSeekable wraps a fixed byte buffer in a byte-granular seekable IO:
// memioCntl reports a block size of 1, so createSeekableIO never rounds
// elfLoad's seeks/reads to a larger block boundary.
func elfSeekable(buf []byte) *kio {
	return createSeekableIO(createMemoryIO(buf))
}

func TestElfLoadMapsSegmentAndZerosBSS(t *testing.T) {
	newTestAddrSpace(t, 8)

	const vaddr = uint64(UMEM_START)
	fileData := []byte("hello, elf")
	img := buildFakeELF(vaddr, fileData, uint64(len(fileData))+16, pfR|pfW)

	var entry uintptr
	if err := elfLoad(elfSeekable(img), &entry); err.isErr() {
		t.Fatalf("elfLoad: %v", err)
	}
	if entry != uintptr(vaddr) {
		t.Fatalf("entry = %#x, want %#x", entry, vaddr)
	}

	out := make([]byte, len(fileData))
	copyFromUser(out, uintptr(vaddr))
	if string(out) != string(fileData) {
		t.Fatalf("segment contents = %q, want %q", out, fileData)
	}

	bss := make([]byte, 16)
	copyFromUser(bss, uintptr(vaddr)+uintptr(len(fileData)))
	for i, b := range bss {
		if b != 0 {
			t.Fatalf("bss byte %d not zeroed: %#x", i, b)
		}
	}

	pte := walk3(activeRoot, uintptr(vaddr), false, 0)
	if pte == nil || *pte&PTE_V == 0 {
		t.Fatal("segment range not mapped after load")
	}
	if uintptr(*pte)&PTE_X != 0 {
		t.Fatal("segment without PF_X ended up executable")
	}
}

func TestElfLoadRejectsBadMagic(t *testing.T) {
	newTestAddrSpace(t, 4)
	img := buildFakeELF(uint64(UMEM_START), []byte("x"), 1, pfR)
	img[0] = 0

	var entry uintptr
	if err := elfLoad(elfSeekable(img), &entry); err != EBADFMT {
		t.Fatalf("bad magic: got %v, want EBADFMT", err)
	}
}

func TestElfLoadRejectsWrongMachine(t *testing.T) {
	newTestAddrSpace(t, 4)
	img := buildFakeELF(uint64(UMEM_START), []byte("x"), 1, pfR)
	binary.LittleEndian.PutUint16(img[18:20], 0x3E) // x86-64, not RISC-V

	var entry uintptr
	if err := elfLoad(elfSeekable(img), &entry); err != EINVAL {
		t.Fatalf("wrong machine: got %v, want EINVAL", err)
	}
}

func TestElfLoadRejectsWrongType(t *testing.T) {
	newTestAddrSpace(t, 4)
	img := buildFakeELF(uint64(UMEM_START), []byte("x"), 1, pfR)
	binary.LittleEndian.PutUint16(img[16:18], 1) // ET_REL, not ET_EXEC

	var entry uintptr
	if err := elfLoad(elfSeekable(img), &entry); err != EINVAL {
		t.Fatalf("wrong type: got %v, want EINVAL", err)
	}
}

func TestElfLoadSegmentRejectsFileszOverflowingMemsz(t *testing.T) {
	newTestAddrSpace(t, 4)
	img := buildFakeELF(uint64(UMEM_START), []byte("hello"), 2, pfR)

	var entry uintptr
	if err := elfLoad(elfSeekable(img), &entry); err != EINVAL {
		t.Fatalf("filesz > memsz: got %v, want EINVAL", err)
	}
}

func TestElfLoadSegmentRejectsVaddrOutsideUmem(t *testing.T) {
	newTestAddrSpace(t, 4)
	img := buildFakeELF(uint64(UMEM_START)-uint64(PAGE_SIZE), []byte("x"), 1, pfR)

	var entry uintptr
	if err := elfLoad(elfSeekable(img), &entry); err != EINVAL {
		t.Fatalf("vaddr below UMEM_START: got %v, want EINVAL", err)
	}
}
