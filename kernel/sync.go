package main

// Condition variables and reentrant locks, grounded directly on thread.c's
// condition_wait/condition_broadcast and lock_acquire/lock_release. A Lock
// tracks its own owner and recursion count and threads itself onto the
// owning thread's lockList so threadExit can release everything a thread
// still holds when it exits without calling Unlock.

type condition struct {
	name     string
	waitList threadList
}

func (c *condition) init(name string) {
	tlclear(&c.waitList)
	c.name = name
}

// conditionWait must be called by the running thread (TP's state must be
// threadSelf); it parks the thread on cond's wait list and does not return
// until another thread broadcasts on the same condition.
func conditionWait(cond *condition) {
	if TP().state != threadSelf {
		panic("condition_wait: caller is not the running thread")
	}

	setThreadState(TP(), threadWaiting)
	TP().waitCond = cond
	TP().listNext = nil

	pie := disableInterrupts()
	tlinsert(&cond.waitList, TP())
	restoreInterrupts(pie)

	runningThreadSuspend()
}

// conditionBroadcast moves every thread waiting on cond to the ready list.
func conditionBroadcast(cond *condition) {
	pie := disableInterrupts()
	defer restoreInterrupts(pie)

	for {
		thr := tlremove(&cond.waitList)
		if thr == nil {
			break
		}
		setThreadState(thr, threadReady)
		tlinsert(&readyList, thr)
	}
}

// Lock is a reentrant mutex: the owning thread can acquire it repeatedly
// and must release it the same number of times.
type Lock struct {
	owner        *Thread
	count        int
	next         *Lock
	lockRelease  condition
}

func lockInit(lk *Lock) {
	lk.owner = nil
	lk.count = 0
	lk.next = nil
	lk.lockRelease.init("lock_cond")
}

func lockAcquire(lk *Lock) {
	pie := disableInterrupts()
	defer restoreInterrupts(pie)

	if lk.owner == TP() {
		lk.count++
		return
	}

	for lk.owner != nil {
		conditionWait(&lk.lockRelease)
	}

	lk.owner = TP()
	lk.count = 1
	lk.next = TP().lockList
	TP().lockList = lk
}

func lockRelease(lk *Lock) {
	pie := disableInterrupts()
	defer restoreInterrupts(pie)

	if lk.owner != TP() {
		panic("lock_release: caller does not own lock")
	}

	if lk.count > 1 {
		lk.count--
		return
	}

	lk.owner = nil
	lk.count = 0

	var prev *Lock
	curr := TP().lockList
	for curr != nil {
		if curr == lk {
			if prev == nil {
				TP().lockList = curr.next
			} else {
				prev.next = curr.next
			}
			break
		}
		prev = curr
		curr = curr.next
	}
	lk.next = nil

	conditionBroadcast(&lk.lockRelease)
}
