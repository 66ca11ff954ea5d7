package main

// Physical memory layout, generalized from the teacher's qemu -machine
// virt layout (hw/riscv/virt.c) to the device set spec.md names: UART,
// a real-time counter, a PLIC-style external interrupt controller, and a
// VirtIO MMIO block transport. Registers behind these addresses are never
// poked directly by this repository (spec.md §1 excludes the device
// register and VirtIO transport layers); they are only used to size the
// kernel's own identity map.
//
//	00001000 -- boot ROM, supplied by firmware
//	02000000 -- CLINT (RTC / timer compare)
//	0C000000 -- PLIC
//	10000000 -- uart0
//	10001000 -- virtio0 (block device)
//	80000000 -- RAM_START; firmware jumps here in machine mode
const (
	UART0     = uintptr(0x10000000)
	UART0_IRQ = 10
)

const (
	VIRTIO0     = uintptr(0x10001000)
	VIRTIO0_IRQ = 1
)

// Core-local interruptor: contains the real-time counter and its compare
// register for the single-hart timer interrupt.
const (
	CLINT       = uintptr(0x2000000)
	CLINT_MTIME = CLINT + 0xBFF8
)

func CLINT_MTIMECMP(hartid int) uintptr { return CLINT + 0x4000 + 8*uintptr(hartid) }

// Platform-level interrupt controller.
const (
	PLIC          = uintptr(0x0c000000)
	PLIC_PRIORITY = PLIC + 0x0
	PLIC_PENDING  = PLIC + 0x1000
)

func PLIC_SENABLE(hart int) uintptr  { return PLIC + 0x2080 + uintptr(hart)*0x100 }
func PLIC_SPRIORITY(hart int) uintptr { return PLIC + 0x201000 + uintptr(hart)*0x2000 }
func PLIC_SCLAIM(hart int) uintptr   { return PLIC + 0x201004 + uintptr(hart)*0x2000 }

// RAM window the kernel and user processes share. RAM_SIZE is the default
// used when booting on real hardware; memoryInit accepts an override so
// tests can run against a much smaller pool (see pagealloc.go).
const (
	RAM_START = uintptr(0x80000000)
	RAM_SIZE  = uintptr(128 * 1024 * 1024)
	RAM_END   = RAM_START + RAM_SIZE
)

// Kernel half vs. user half of every address space's virtual layout.
// UMEM spans [UMEM_START, UMEM_END); everything outside that range belongs
// to the kernel half and is mapped with PTE_G in every address space.
const (
	UMEM_START = uintptr(0x80100000)
	UMEM_END   = uintptr(0x81000000)
	UMEM_SIZE  = UMEM_END - UMEM_START
)
