package main

import (
	"encoding/binary"
	"unsafe"
)

// Process table and the exec/fork/exit paths that bind a thread to an
// address space and an I/O table. Grounded on process.c's process_exec/
// process_exit/build_stack (complete references); process_fork there is
// a one-line stub (`return 0`) so the fork implementation below follows
// spec.md's full description instead.

type process struct {
	idx     int
	tid     int
	mtag    mtag_t
	iotab   [PROCESS_IOMAX]*kio
}

var (
	mainProc process
	proctab  [NPROC]*process
	procmgrLock spinlock
	procmgrInitialized bool
)

func procmgrInit() {
	procmgrLock.initlock("procmgr")
	mainProc.idx = 0
	mainProc.tid = runningThread()
	mainProc.mtag = activeMspace()
	TP().process = &mainProc
	proctab[0] = &mainProc
	procmgrInitialized = true
}

func currentProcess() *process {
	t := TP()
	if t == nil {
		return nil
	}
	return t.process
}

// processGetIO returns the I/O object installed at fd in the current
// process's table, or nil if fd is out of range or the slot is empty.
func processGetIO(fd int) *kio {
	if fd < 0 || fd >= PROCESS_IOMAX {
		return nil
	}
	proc := currentProcess()
	if proc == nil {
		return nil
	}
	return proc.iotab[fd]
}

// allocateFD installs io at fd in the current process's I/O table, or in
// the first free slot when fd == -1. Grounded on syscall.c's
// allocate_fd.
func allocateFD(fd int, io *kio) (int, kerrno) {
	proc := currentProcess()

	if fd == -1 {
		for i := 0; i < PROCESS_IOMAX; i++ {
			if proc.iotab[i] == nil {
				proc.iotab[i] = io
				return i, EOK
			}
		}
		return -1, EMFILE
	}

	if fd < 0 || fd >= PROCESS_IOMAX {
		return -1, EBADFD
	}
	if proc.iotab[fd] != nil {
		return -1, EBADFD
	}
	proc.iotab[fd] = io
	return fd, EOK
}

// processExec replaces the current process's address space and thread
// state with a freshly loaded ELF program: reset the space, load the
// executable, map and build a user stack, then jump into user mode via
// the trap-frame machinery trapFrameJump owns. Grounded on process_exec;
// never returns on success.
func processExec(exeio *kio, argv []string) kerrno {
	proc := currentProcess()
	if proc == nil {
		panic("processExec: no current process")
	}

	resetActiveMspace()

	var entry uintptr
	if err := elfLoad(exeio, &entry); err.isErr() {
		threadExit()
		panic("unreachable")
	}

	stack := allocPhysPage()
	zeroPage(stack)
	mapPage(UMEM_END-PAGE_SIZE, stack, PTE_R|PTE_W|PTE_U)

	stksz, err := buildStack(stack, argv)
	if err.isErr() {
		threadExit()
		panic("unreachable")
	}

	var tf trapFrame
	tf.sp = UMEM_END - uintptr(stksz)
	tf.ra = entry
	tf.sepc = entry
	tf.a0 = uintptr(len(argv))
	tf.a1 = UMEM_END - uintptr(stksz)

	trapFrameJump(&tf)
	panic("processExec: trapFrameJump returned")
}

// buildStack lays out argv as a NULL-terminated array of pointers
// followed by the argument strings themselves in the single page at
// stack (the page that will be mapped at UMEM_END-PAGE_SIZE), returning
// the number of bytes used from the top of the page. Grounded on
// process.c's build_stack, generalized from a C-style argv to a Go
// []string.
func buildStack(stack uintptr, argv []string) (int, kerrno) {
	argc := len(argv)
	if int(PAGE_SIZE)/8-1 < argc {
		return 0, ENOMEM
	}

	stksz := uintptr(argc+1) * 8
	for _, s := range argv {
		argsz := uintptr(len(s) + 1)
		if PAGE_SIZE-stksz < argsz {
			return 0, ENOMEM
		}
		stksz += argsz
	}

	stksz = (stksz + 15) &^ 15
	if stksz > PAGE_SIZE {
		panic("buildStack: stack overflow after rounding")
	}

	page := (*[PAGE_SIZE]byte)(ptrAt(stack))
	argvOff := PAGE_SIZE - stksz
	strOff := argvOff + uintptr(argc+1)*8

	userBase := UMEM_END - PAGE_SIZE
	for i, s := range argv {
		userPtr := uint64(userBase + strOff)
		binary.LittleEndian.PutUint64(page[argvOff+uintptr(i)*8:], userPtr)
		copy(page[strOff:], s)
		page[strOff+uintptr(len(s))] = 0
		strOff += uintptr(len(s) + 1)
	}
	binary.LittleEndian.PutUint64(page[argvOff+uintptr(argc)*8:], 0)

	return int(stksz), EOK
}

// processFork clones the active address space and the current process's
// I/O table into a fresh process-table slot, spawns a child thread that
// enters user mode through tfr with a0 forced to 0, and has the parent
// wait (with interrupts disabled across the spawn) until the child signals
// it has copied everything it needs out of tfr. Grounded on spec.md
// §4.8's fork description, since process_fork in process.c is a stub.
func processFork(tfr *trapFrame) (int, kerrno) {
	parent := currentProcess()
	if parent == nil {
		return -1, EINVAL
	}

	slot := -1
	for i := 1; i < NPROC; i++ {
		if proctab[i] == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		return -1, ECHILD
	}

	child := &process{idx: slot}
	for i := 0; i < PROCESS_IOMAX; i++ {
		if parent.iotab[i] != nil {
			child.iotab[i] = ioaddref(parent.iotab[i])
		}
	}
	child.mtag = cloneActiveMspace()

	// Heap-allocated rather than a plain Go new(), matching process.c's
	// kalloc'd copy that the child thread runs from and the parent frees
	// once woken.
	childTF := (*trapFrame)(kalloc(unsafe.Sizeof(trapFrame{})))
	*childTF = *tfr
	childTF.a0 = 0

	var done condition
	done.init("fork")

	pie := disableInterrupts()

	tid, err := spawn("fork-child", func() {
		forkChildEntry(child, childTF, &done)
	})
	if err.isErr() {
		restoreInterrupts(pie)
		kfree(unsafe.Pointer(childTF))
		for i := 0; i < PROCESS_IOMAX; i++ {
			if child.iotab[i] != nil {
				ioclose(child.iotab[i])
			}
		}
		return -1, err
	}
	child.tid = tid
	proctab[slot] = child

	conditionWait(&done)
	restoreInterrupts(pie)

	// The child copies the trap frame into its own local storage before
	// it broadcasts done, so the heap copy is safe to release here.
	kfree(unsafe.Pointer(childTF))

	return tid, EOK
}

func forkChildEntry(child *process, tfr *trapFrame, done *condition) {
	TP().process = child
	switchMspace(child.mtag)
	tf := *tfr
	conditionBroadcast(done)
	trapFrameJump(&tf)
	panic("forkChildEntry: trapFrameJump returned")
}

// processExit flushes the filesystem, closes every open I/O slot,
// discards the address space, removes the process from proctab, frees
// its struct if it isn't the static main process, and exits the calling
// thread. Grounded on process_exit; panics if the calling thread is the
// main thread, exactly as the reference does.
func processExit() {
	proc := currentProcess()
	if proc == nil {
		threadExit()
		return
	}

	if runningThread() == mainTID {
		panic("processExit: main process exited")
	}

	ktfsFlush()

	for i := 0; i < PROCESS_IOMAX; i++ {
		if proc.iotab[i] != nil {
			ioclose(proc.iotab[i])
			proc.iotab[i] = nil
		}
	}

	discardActiveMspace()

	procmgrLock.acquire()
	if proc.idx >= 0 && proc.idx < NPROC {
		proctab[proc.idx] = nil
	}
	procmgrLock.release()

	threadExit()
}
