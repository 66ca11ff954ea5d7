package main

import _ "unsafe"

// Cooperative, timer-preemptible single-hart scheduler. Generalizes the
// teacher's proc.go (a flat KProc table scheduled round-robin by a
// scheduler() loop) to the fixed-table, FIFO-ready-list, idle-thread design
// of thread.c: a thread leaves the ready list only when chosen to run, and
// the scheduler itself is just "whoever's on the head of the ready list",
// not a polling loop.

type threadState int

const (
	threadUninitialized threadState = iota
	threadWaiting
	threadSelf
	threadReady
	threadExited
)

func (s threadState) String() string {
	switch s {
	case threadUninitialized:
		return "uninitialized"
	case threadWaiting:
		return "waiting"
	case threadSelf:
		return "self"
	case threadReady:
		return "ready"
	case threadExited:
		return "exited"
	default:
		return "undefined"
	}
}

// threadContext holds the callee-saved registers swtch restores across a
// context switch, same field order as the teacher's Context.
type threadContext struct {
	ra, sp uintptr
	s      [12]uintptr
}

type threadList struct {
	head, tail *Thread
}

// Thread is a statically-addressable slot in thrtab; its struct layout is
// only interesting up to ctx (must stay first so the swtch trampoline can
// find it without knowing about the rest of the struct).
type Thread struct {
	ctx         threadContext
	id          int
	state       threadState
	name        string
	stackLowest uintptr
	parent      *Thread
	listNext    *Thread
	waitCond    *condition
	childExit   condition
	lockList    *Lock
	entry       func()
	process     *process
}

const (
	mainTID = 0
	idleTID = NTHR - 1
)

var (
	thrtab        [NTHR]*Thread
	mainThread    Thread
	idleThread    Thread
	readyList     threadList
	currentThread *Thread
	thrmgrLock    spinlock
)

// TP returns the thread currently bound to this hart, mirroring the
// teacher's tp-register read via the TP macro in thread.c.
func TP() *Thread { return currentThread }

func thrmgrInit() {
	thrmgrLock.initlock("thrmgr")

	mainThread.id = mainTID
	mainThread.name = "main"
	mainThread.state = threadSelf
	mainThread.childExit.init("main.child_exit")

	idleStack := allocPhysPages(STACK_SIZE / PAGE_SIZE)
	idleThread.id = idleTID
	idleThread.name = "idle"
	idleThread.state = threadReady
	idleThread.parent = &mainThread
	idleThread.stackLowest = idleStack
	idleThread.ctx = threadContext{sp: idleStack + STACK_SIZE, ra: GetThreadStartupAddr()}
	idleThread.entry = idleThreadFunc
	idleThread.childExit.init("idle.child_exit")

	thrtab[mainTID] = &mainThread
	thrtab[idleTID] = &idleThread
	readyList = threadList{head: &idleThread, tail: &idleThread}

	currentThread = &mainThread
}

func runningThread() int { return TP().id }

func threadName(tid int) string {
	if tid < 0 || tid >= NTHR || thrtab[tid] == nil {
		return ""
	}
	return thrtab[tid].name
}

// spawn creates a thread running entry, places it on the ready list, and
// returns its id. Returns EMTHR when the thread table is full, grounded on
// create_thread's scan for the first nil slot.
func spawn(name string, entry func()) (int, kerrno) {
	child := createThread(name)
	if child == nil {
		return -1, EMTHR
	}
	child.entry = entry
	setThreadState(child, threadReady)

	pie := disableInterrupts()
	tlinsert(&readyList, child)
	restoreInterrupts(pie)

	return child.id, EOK
}

func createThread(name string) *Thread {
	thrmgrLock.acquire()
	defer thrmgrLock.release()

	tid := 0
	for {
		tid++
		if tid >= NTHR {
			return nil
		}
		if thrtab[tid] == nil {
			break
		}
	}

	stack := allocPhysPages(STACK_SIZE / PAGE_SIZE)
	thr := &Thread{
		id:          tid,
		name:        name,
		parent:      TP(),
		stackLowest: stack,
		ctx:         threadContext{sp: stack + STACK_SIZE, ra: GetThreadStartupAddr()},
	}
	thrtab[tid] = thr
	return thr
}

func setThreadState(t *Thread, s threadState) {
	t.state = s
}

// threadExit releases every lock the exiting thread still holds, marks it
// exited, wakes the parent, and suspends forever (a thread never returns
// from this call). Reclaiming its slot is the parent's job, via join.
func threadExit() {
	if TP().id == mainTID {
		panic("main thread exited")
	}

	for lk := TP().lockList; lk != nil; {
		next := lk.next
		lockRelease(lk)
		lk = next
	}

	setThreadState(TP(), threadExited)
	conditionBroadcast(&TP().parent.childExit)
	runningThreadSuspend()
	panic("thread_exit: control returned to an exited thread")
}

func threadYield() {
	runningThreadSuspend()
}

// join waits for a child thread to exit and reclaims its slot, returning
// its id. tid == 0 waits for any child. Returns EINVAL if the caller has
// no matching child.
func join(tid int) (int, kerrno) {
	pie := disableInterrupts()
	defer restoreInterrupts(pie)

	if tid == 0 {
		hasChildren := false
		for i := 0; i < NTHR; i++ {
			if thrtab[i] != nil && thrtab[i].parent == TP() {
				hasChildren = true
				break
			}
		}
		if !hasChildren {
			return -1, EINVAL
		}

		for {
			for i := 0; i < NTHR; i++ {
				if thrtab[i] != nil && thrtab[i].parent == TP() && thrtab[i].state == threadExited {
					threadReclaim(i)
					return i, EOK
				}
			}
			conditionWait(&TP().childExit)
		}
	}

	if tid < 0 || tid >= NTHR || thrtab[tid] == nil || thrtab[tid].parent != TP() {
		return -1, EINVAL
	}
	for thrtab[tid] != nil && thrtab[tid].state != threadExited {
		conditionWait(&TP().childExit)
	}
	threadReclaim(tid)
	return tid, EOK
}

// threadReclaim reparents an exited thread's children to its own parent
// (we don't track a child list, so this scans thrtab) and frees its slot.
func threadReclaim(tid int) {
	thr := thrtab[tid]
	for ctid := 1; ctid < NTHR; ctid++ {
		if thrtab[ctid] != nil && thrtab[ctid].parent == thr {
			thrtab[ctid].parent = thr.parent
		}
	}
	thrtab[tid] = nil
	freePhysPages(thr.stackLowest, STACK_SIZE/PAGE_SIZE)
}

// runningThreadSuspend switches away from the running thread, returning
// the next scheduled thread to THREAD_SELF and, when the caller itself
// becomes ready or exits, putting it through the appropriate ready-list
// transition before handing off. Only returns once TP() is rescheduled.
func runningThreadSuspend() {
	pie := disableInterrupts()
	defer restoreInterrupts(pie)

	switch TP().state {
	case threadWaiting:
		next := tlremove(&readyList)
		setThreadState(next, threadSelf)
		threadSwtch(next)
	case threadSelf:
		setThreadState(TP(), threadReady)
		tlinsert(&readyList, TP())
		next := tlremove(&readyList)
		setThreadState(next, threadSelf)
		threadSwtch(next)
	case threadExited:
		exited := TP()
		next := tlremove(&readyList)
		setThreadState(next, threadSelf)
		threadSwtch(next)
		_ = exited
	}
}

// swtch hands the hart off to next: it saves the caller's callee-saved
// registers and stack pointer into the caller's own ctx, loads next's ctx,
// and resumes at next.ctx.ra. Declared via go:linkname exactly as the
// teacher's swtch, and grounded on thread.c's single-argument
// _thread_swtch (the outgoing thread is always TP(), so only the
// destination needs to be named).
//
//go:linkname swtch swtch
func swtch(next *Thread) *Thread

// GetThreadStartupAddr returns the entry address a freshly created
// thread's ctx.ra is set to, mirroring the teacher's GetTaskStubAddr.
//
//go:linkname GetThreadStartupAddr GetThreadStartupAddr
func GetThreadStartupAddr() uintptr

// ThreadStartup is the landing point for a thread's first switch-in: swtch
// jumps here because createThread points a fresh thread's ctx.ra at
// GetThreadStartupAddr(). It runs the thread's entry closure once and then
// exits the thread, the Go-closure analogue of thread.c's ctx.s[8]/s[9]
// (thread_exit/entry) convention, mirroring the teacher's TaskStub.
//
//export ThreadStartup
func ThreadStartup() {
	if entry := TP().entry; entry != nil {
		TP().entry = nil
		entry()
	}
	threadExit()
}

// threadSwtch performs the context switch to next. Control returns to this
// call only once some later switch resumes the calling thread's own
// context; by then currentThread has already been set by whoever resumed
// it, so no bookkeeping is needed on the way back in.
func threadSwtch(next *Thread) {
	currentThread = next
	swtch(next)
}

func idleThreadFunc() {
	for {
		for !tlempty(&readyList) {
			threadYield()
		}
		disableInterrupts()
		if tlempty(&readyList) {
			wfi()
		}
		intr_on()
	}
}

//go:linkname wfi wfi
func wfi()

func tlclear(l *threadList) { l.head, l.tail = nil, nil }

func tlempty(l *threadList) bool { return l.head == nil }

func tlinsert(l *threadList, thr *Thread) {
	thr.listNext = nil
	if l.tail != nil {
		l.tail.listNext = thr
	} else {
		l.head = thr
	}
	l.tail = thr
}

func tlremove(l *threadList) *Thread {
	thr := l.head
	if thr == nil {
		return nil
	}
	l.head = thr.listNext
	if l.head == nil {
		l.tail = nil
	}
	thr.listNext = nil
	return thr
}

func disableInterrupts() bool {
	enabled := intr_enabled()
	intr_off()
	return enabled
}

func restoreInterrupts(wasEnabled bool) {
	if wasEnabled {
		intr_on()
	}
}
