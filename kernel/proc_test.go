package main

import "testing"

func TestThreadListFIFOOrder(t *testing.T) {
	var l threadList
	a, b, c := &Thread{id: 1}, &Thread{id: 2}, &Thread{id: 3}

	tlinsert(&l, a)
	tlinsert(&l, b)
	tlinsert(&l, c)

	for _, want := range []*Thread{a, b, c} {
		got := tlremove(&l)
		if got != want {
			t.Fatalf("tlremove returned thread %d, want %d", got.id, want.id)
		}
	}
	if !tlempty(&l) {
		t.Fatal("list should be empty after draining every insert")
	}
	if tlremove(&l) != nil {
		t.Fatal("tlremove on an empty list should return nil")
	}
}

func TestThreadListClear(t *testing.T) {
	var l threadList
	tlinsert(&l, &Thread{id: 1})
	tlclear(&l)
	if !tlempty(&l) {
		t.Fatal("tlclear should leave the list empty")
	}
}

func TestThreadStateString(t *testing.T) {
	cases := map[threadState]string{
		threadUninitialized: "uninitialized",
		threadWaiting:       "waiting",
		threadSelf:          "self",
		threadReady:         "ready",
		threadExited:        "exited",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestSpawnExhaustsThreadTable(t *testing.T) {
	newTestRAM(t, 64)
	thrmgrInit()

	var spawned []int
	defer func() {
		for _, tid := range spawned {
			thrtab[tid] = nil
		}
	}()

	var err kerrno
	var tid int
	for {
		tid, err = spawn("filler", func() {})
		if err.isErr() {
			break
		}
		spawned = append(spawned, tid)
	}
	if err != EMTHR {
		t.Fatalf("spawn on a full table returned %v, want EMTHR", err)
	}
	// mainTID and idleTID are pre-occupied; every other slot should have
	// been claimed before exhaustion.
	if len(spawned) != NTHR-2 {
		t.Fatalf("spawned %d threads before exhaustion, want %d", len(spawned), NTHR-2)
	}
}
