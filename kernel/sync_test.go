package main

import "testing"

func TestLockReentrant(t *testing.T) {
	newTestRAM(t, 8)
	thrmgrInit()

	var lk Lock
	lockInit(&lk)

	lockAcquire(&lk)
	lockAcquire(&lk)
	if lk.owner != TP() || lk.count != 2 {
		t.Fatalf("after two acquires: owner=%v count=%d", lk.owner, lk.count)
	}

	lockRelease(&lk)
	if lk.owner == nil {
		t.Fatal("lock released too early")
	}
	lockRelease(&lk)
	if lk.owner != nil {
		t.Fatal("lock should be free after matching releases")
	}
}

func TestLockReleaseWithoutOwnershipPanics(t *testing.T) {
	newTestRAM(t, 8)
	thrmgrInit()

	var lk Lock
	lockInit(&lk)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic releasing an unheld lock")
		}
	}()
	lockRelease(&lk)
}

func TestLockThreadsItselfOntoLockList(t *testing.T) {
	newTestRAM(t, 8)
	thrmgrInit()

	var lk Lock
	lockInit(&lk)
	lockAcquire(&lk)

	found := false
	for l := TP().lockList; l != nil; l = l.next {
		if l == &lk {
			found = true
		}
	}
	if !found {
		t.Fatal("acquired lock not linked onto the owning thread's lockList")
	}

	lockRelease(&lk)
	for l := TP().lockList; l != nil; l = l.next {
		if l == &lk {
			t.Fatal("released lock still linked onto lockList")
		}
	}
}

func TestConditionBroadcastMovesWaitersToReady(t *testing.T) {
	newTestRAM(t, 8)
	thrmgrInit()

	var cond condition
	cond.init("test")

	waiter := &Thread{id: 5, state: threadWaiting, waitCond: &cond}
	tlinsert(&cond.waitList, waiter)

	conditionBroadcast(&cond)

	if !tlempty(&cond.waitList) {
		t.Fatal("broadcast did not drain the condition's wait list")
	}
	if waiter.state != threadReady {
		t.Fatalf("waiter state = %v, want ready", waiter.state)
	}

	found := false
	for r := readyList.head; r != nil; r = r.listNext {
		if r == waiter {
			found = true
		}
	}
	if !found {
		t.Fatal("broadcast did not move the waiter onto the ready list")
	}
}
