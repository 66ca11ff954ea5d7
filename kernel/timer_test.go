package main

import "testing"

// The sleep list's own ordering and drain logic are pure list operations;
// exercising them without relying on exact rdtime() values means pinning
// alarms to the extremes of the uint64 range (0 and maxUint64) rather than
// values relative to "now" (an actual hardware timer read this package
// does not stub out for tests).

func TestAlarmInitSetsNameAndClearsNext(t *testing.T) {
	var al alarm
	al.next = &alarm{} // garbage from a previous use of the struct
	alarmInit(&al, "")

	if al.cond.name != "alarm" {
		t.Fatalf("alarmInit default name = %q, want %q", al.cond.name, "alarm")
	}
	if al.next != nil {
		t.Fatal("alarmInit did not clear next")
	}
}

func TestAlarmInitKeepsGivenName(t *testing.T) {
	var al alarm
	alarmInit(&al, "custom")
	if al.cond.name != "custom" {
		t.Fatalf("name = %q, want %q", al.cond.name, "custom")
	}
}

func TestHandleTimerInterruptDrainsExpiredKeepsFuture(t *testing.T) {
	var expired, future alarm
	expired.cond.init("expired")
	future.cond.init("future")
	expired.twake = 0
	future.twake = maxUint64
	expired.next = &future

	sleepList = &expired
	defer func() { sleepList = nil }()

	handleTimerInterrupt()

	if sleepList != &future {
		t.Fatalf("sleepList head = %v, want the still-future alarm", sleepList)
	}
	if future.next != nil {
		t.Fatal("surviving alarm's next pointer was not cleared")
	}
}

func TestHandleTimerInterruptEmptiesListWhenAllExpired(t *testing.T) {
	var a, b alarm
	a.cond.init("a")
	b.cond.init("b")
	a.twake, b.twake = 0, 0
	a.next = &b

	sleepList = &a
	defer func() { sleepList = nil }()

	handleTimerInterrupt()

	if sleepList != nil {
		t.Fatalf("sleepList = %v, want nil after draining everything", sleepList)
	}
}
