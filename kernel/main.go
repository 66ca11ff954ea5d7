package main

import "unsafe"

// Boot entry. Generalizes the teacher's KMain (kmeminit -> kvminit ->
// kvminithart -> initlock -> trapinithart -> test routines) to the full
// dataflow spec.md §2.11/SPEC_FULL.md §2.11 names: memory_init -> heap_init
// -> devmgr_init -> intr_init -> thrmgr_init -> procmgr_init -> mount root ->
// spawn first user process. Grounded on original_source/src/sys/main.c for
// that ordering.

//go:linkname get_end get_end
func get_end() uintptr

// heapPages is how many physical pages the kernel heap carves out of RAM at
// boot, sized generously since nothing else competes with it for memory on
// this single-hart kernel.
const heapPages = 256

//export KMain
func KMain() {
	printf("memoryInit... ")
	ram := unsafe.Slice((*byte)(unsafe.Pointer(RAM_START)), int(RAM_SIZE))
	memoryInit(ram, RAM_START, get_end())
	printf("OK\n")

	printf("addrspaceInit... ")
	addrspaceInit()
	printf("OK\n")

	printf("heapInit... ")
	heapBase := allocPhysPages(heapPages)
	heapInit(unsafe.Slice((*byte)(ptrAt(heapBase)), int(heapPages*PAGE_SIZE)))
	printf("OK\n")

	printf("devmgrInit... ")
	devmgrInit()
	printf("OK\n")

	printf("intrInit... ")
	intrInit()
	printf("OK\n")

	printf("thrmgrInit... ")
	thrmgrInit()
	printf("OK\n")

	printf("trapinithart... ")
	trapinithart()
	printf("OK\n")

	printf("procmgrInit... ")
	procmgrInit()
	printf("OK\n")

	printf("timerInit... ")
	timerInit()
	printf("OK\n")

	mountRootAndSpawnInit()

	// processExec never returns on success. Reaching here means there was
	// nothing to exec into; park the boot thread rather than fall off the
	// end of KMain.
	for {
		wfi()
	}
}

// intrInit enables the supervisor timer interrupt and the top-level
// supervisor interrupt-enable bit. It never programs the PLIC or any
// VirtIO register directly — those stay behind the InterruptController/
// BlockDevice interfaces devmgr.go names, satisfied by a real driver or a
// test fake, never by this file.
func intrInit() {
	csrs_sie()
	csrs_sstatus(sstatusSIE)
}

const sstatusSIE = 1 << 1

// mountRootAndSpawnInit opens the registered root block device, mounts
// KTFS on it, looks up the "init" program, and execs it on the main
// thread. A real boot image wires devmgrRegister("blk0", ...) to a VirtIO
// driver before KMain runs this; with nothing registered (as in this
// repository, which implements no real transport) this just reports why
// it can't proceed and falls through to idling.
func mountRootAndSpawnInit() {
	printf("mount root... ")
	bdev, err := openDevice("blk0", 0)
	if err.isErr() {
		printf("no root block device (%s)\n", err.String())
		return
	}
	if err := ktfsMount(bdev); err.isErr() {
		printf("mount failed (%s)\n", err.String())
		return
	}
	printf("OK\n")

	printf("spawn init... ")
	initio, err := ktfsLookup("init")
	if err.isErr() {
		printf("lookup failed (%s)\n", err.String())
		return
	}
	if _, err := allocateFD(0, initio); err.isErr() {
		printf("allocate_fd failed (%s)\n", err.String())
		return
	}

	processExec(initio, []string{"init"})
}

func main() {}
