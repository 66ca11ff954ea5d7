package main

// Compile-time constants named in spec.md §6. Kept as a dedicated file,
// the way the teacher isolates memlayout.go from the rest of riscv.go,
// so every constant a reader needs to retune has one home.

const (
	// PROCESS_IOMAX is the number of fd slots per process.
	PROCESS_IOMAX = 16

	// NPROC is the number of process-table slots, including the static
	// main process at index 0.
	NPROC = 16

	// NTHR is the number of thread-table slots, including the main
	// thread (id 0) and the idle thread (id NTHR-1).
	NTHR = 16

	// STACK_SIZE is the size in bytes of a kernel thread stack.
	STACK_SIZE = 4096 * 2

	// TIMER_FREQ is the real-time counter frequency in Hz.
	TIMER_FREQ = 10000000
)

// Block cache parameters (spec.md §4.6).
const (
	CACHE_CAPACITY = 64
	CACHE_BLKSZ    = 512
)

// KTFS on-disk layout parameters (spec.md §6).
const (
	KTFS_BLKSZ              = 512
	KTFS_INOSZ              = 32
	KTFS_DENSZ              = 32
	KTFS_MAX_FILENAME_LEN   = 27
	KTFS_NUM_DIRECT_DATA_BLOCKS = 4
	KTFS_NUM_DINDIRECT_BLOCKS   = 1

	ktfsPointerSize = 4 // bytes per on-disk block pointer
	ktfsPtrsPerBlock = KTFS_BLKSZ / ktfsPointerSize

	ktfsFileFree  = 0
	ktfsFileInUse = 1
)

// IOCTL command set (spec.md §4.5). The slot set is closed.
const (
	IOCTL_GETBLKSZ = 1
	IOCTL_GETPOS   = 2
	IOCTL_SETPOS   = 3
	IOCTL_GETEND   = 4
	IOCTL_SETEND   = 5
)

// Syscall numbers (spec.md §4.9). a7 carries one of these at trap entry.
const (
	SYSCALL_EXIT = iota
	SYSCALL_EXEC
	SYSCALL_FORK
	SYSCALL_WAIT
	SYSCALL_PRINT
	SYSCALL_USLEEP
	SYSCALL_DEVOPEN
	SYSCALL_FSOPEN
	SYSCALL_CLOSE
	SYSCALL_READ
	SYSCALL_WRITE
	SYSCALL_IOCTL
	SYSCALL_PIPE
	SYSCALL_FSCREATE
	SYSCALL_FSDELETE
)

const nextRiscvInstruction = 4 // ecall is 4 bytes wide

// MAX_PRINT_LEN caps the number of bytes readUserString will copy while
// looking for a NUL terminator before giving up (syscall.c's MAX_PRINT_LEN).
const MAX_PRINT_LEN = 512
