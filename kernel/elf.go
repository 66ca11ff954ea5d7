package main

import "encoding/binary"

// ELF64 loader for PT_LOAD-only executables. Header/program-header field
// layout and validation order are grounded on original_source/src/sys/
// elf.c. That source copies each segment directly into `(void*)p_vaddr`
// without ever mapping a page first, relying on an identity map that does
// not exist once paging is active; this implementation instead allocates
// and maps each segment's range with W added (to permit the copy), reads
// the segment in, zeros the BSS tail, then resets the range's permissions
// to exactly what the segment requested, per spec.md's corrected sequence.

const (
	elfMagic0, elfMagic1, elfMagic2, elfMagic3 = 0x7F, 'E', 'L', 'F'

	elfClass64   = 2
	elfData2LSB  = 1
	elfVersionCurrent = 1
	elfMachineRISCV  = 243
	elfTypeExec  = 2

	elfPTLoad = 1

	pfX = 0x1
	pfW = 0x2
	pfR = 0x4
)

const elf64EhdrSize = 64
const elf64PhdrSize = 56

type elf64Ehdr struct {
	ident   [16]byte
	etype   uint16
	machine uint16
	version uint32
	entry   uint64
	phoff   uint64
	shoff   uint64
	flags   uint32
	ehsize  uint16
	phentsize uint16
	phnum   uint16
	shentsize uint16
	shnum   uint16
	shstrndx uint16
}

func (h *elf64Ehdr) decode(buf []byte) {
	copy(h.ident[:], buf[0:16])
	h.etype = binary.LittleEndian.Uint16(buf[16:18])
	h.machine = binary.LittleEndian.Uint16(buf[18:20])
	h.version = binary.LittleEndian.Uint32(buf[20:24])
	h.entry = binary.LittleEndian.Uint64(buf[24:32])
	h.phoff = binary.LittleEndian.Uint64(buf[32:40])
	h.shoff = binary.LittleEndian.Uint64(buf[40:48])
	h.flags = binary.LittleEndian.Uint32(buf[48:52])
	h.ehsize = binary.LittleEndian.Uint16(buf[52:54])
	h.phentsize = binary.LittleEndian.Uint16(buf[54:56])
	h.phnum = binary.LittleEndian.Uint16(buf[56:58])
	h.shentsize = binary.LittleEndian.Uint16(buf[58:60])
	h.shnum = binary.LittleEndian.Uint16(buf[60:62])
	h.shstrndx = binary.LittleEndian.Uint16(buf[62:64])
}

type elf64Phdr struct {
	ptype  uint32
	pflags uint32
	offset uint64
	vaddr  uint64
	paddr  uint64
	filesz uint64
	memsz  uint64
	align  uint64
}

func (p *elf64Phdr) decode(buf []byte) {
	p.ptype = binary.LittleEndian.Uint32(buf[0:4])
	p.pflags = binary.LittleEndian.Uint32(buf[4:8])
	p.offset = binary.LittleEndian.Uint64(buf[8:16])
	p.vaddr = binary.LittleEndian.Uint64(buf[16:24])
	p.paddr = binary.LittleEndian.Uint64(buf[24:32])
	p.filesz = binary.LittleEndian.Uint64(buf[32:40])
	p.memsz = binary.LittleEndian.Uint64(buf[40:48])
	p.align = binary.LittleEndian.Uint64(buf[48:56])
}

// elfLoad validates elfio as a 64-bit little-endian RISC-V EXEC, maps and
// populates every PT_LOAD segment, and writes the entry virtual address
// out through entry.
func elfLoad(elfio *kio, entry *uintptr) kerrno {
	if err := ioseek(elfio, 0); err.isErr() {
		return err
	}

	hdrBuf := make([]byte, elf64EhdrSize)
	if n, err := iofill(elfio, hdrBuf); n != elf64EhdrSize {
		if err.isErr() {
			return err
		}
		return EIO
	}

	var ehdr elf64Ehdr
	ehdr.decode(hdrBuf)

	if ehdr.ident[0] != elfMagic0 || ehdr.ident[1] != elfMagic1 ||
		ehdr.ident[2] != elfMagic2 || ehdr.ident[3] != elfMagic3 {
		return EBADFMT
	}
	if ehdr.ident[4] != elfClass64 {
		return EINVAL
	}
	if ehdr.ident[5] != elfData2LSB {
		return EINVAL
	}
	if ehdr.ident[6] != elfVersionCurrent {
		return EINVAL
	}
	if ehdr.machine != elfMachineRISCV {
		return EINVAL
	}
	if ehdr.etype != elfTypeExec {
		return EINVAL
	}

	phdrBuf := make([]byte, elf64PhdrSize)
	for i := uint16(0); i < ehdr.phnum; i++ {
		if err := ioseek(elfio, ehdr.phoff+uint64(i)*uint64(ehdr.phentsize)); err.isErr() {
			return err
		}
		if n, err := iofill(elfio, phdrBuf); n != elf64PhdrSize {
			if err.isErr() {
				return err
			}
			return EIO
		}

		var phdr elf64Phdr
		phdr.decode(phdrBuf)

		if phdr.ptype != elfPTLoad {
			continue
		}
		if err := elfLoadSegment(elfio, &phdr); err.isErr() {
			return err
		}
	}

	*entry = uintptr(ehdr.entry)
	return EOK
}

func elfLoadSegment(elfio *kio, phdr *elf64Phdr) kerrno {
	if phdr.filesz > phdr.memsz {
		return EINVAL
	}
	if phdr.memsz > 0 && phdr.vaddr > uint64(UMEM_END)-phdr.memsz {
		return EINVAL
	}
	if phdr.vaddr < uint64(UMEM_START) || phdr.vaddr+phdr.memsz > uint64(UMEM_END) {
		return EINVAL
	}

	flags := uintptr(PTE_U)
	if phdr.pflags&pfR != 0 {
		flags |= PTE_R
	}
	if phdr.pflags&pfW != 0 {
		flags |= PTE_W
	}
	if phdr.pflags&pfX != 0 {
		flags |= PTE_X
	}

	vaddr := uintptr(phdr.vaddr)
	memsz := uintptr(phdr.memsz)
	segStart := PGGROUNDDOWN(vaddr)
	segEnd := PGGROUNDUP(vaddr + memsz)

	if allocAndMapRange(segStart, segEnd-segStart, flags|PTE_W) != segStart {
		return ENOMEM
	}

	if err := ioseek(elfio, phdr.offset); err.isErr() {
		return err
	}

	filesz := uintptr(phdr.filesz)
	if filesz > 0 {
		dst := make([]byte, filesz)
		n, err := iofill(elfio, dst)
		if n != int(filesz) {
			if err.isErr() {
				return err
			}
			return EIO
		}
		copyToUser(vaddr, dst)
	}

	if memsz > filesz {
		zeroUser(vaddr+filesz, memsz-filesz)
	}

	setRangeFlags(segStart, segEnd-segStart, flags)
	return EOK
}
