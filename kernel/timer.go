package main

const maxUint64 = ^uint64(0)

// Alarm/timer subsystem: a single sorted-by-wake-time sleep list drained by
// the timer ISR. Grounded directly on timer.c's alarm_sleep/
// handle_timer_interrupt; rdtime/set_stcmp/csrs_sie/csrc_sie stay as the
// go:linkname externs declared in riscv.go.

type alarm struct {
	cond  condition
	twake uint64
	next  *alarm
}

var sleepList *alarm

func timerInit() {
	set_stcmp(maxUint64)
}

func alarmInit(al *alarm, name string) {
	if name == "" {
		name = "alarm"
	}
	al.cond.init(name)
	al.twake = rdtime()
	al.next = nil
}

// alarmSleep blocks the calling thread until tcnt timer ticks from al's
// last wake time have elapsed, inserting al into sleepList in wake-time
// order and reprogramming the hardware timer compare register when al
// becomes the new head.
func alarmSleep(al *alarm, tcnt uint64) {
	now := rdtime()

	if maxUint64-al.twake < tcnt {
		al.twake = maxUint64
	} else {
		al.twake += tcnt
	}

	if al.twake < now {
		return
	}

	pie := disableInterrupts()
	defer restoreInterrupts(pie)

	switch {
	case sleepList == nil:
		al.next = nil
		sleepList = al
		set_stcmp(al.twake)
	case al.twake < sleepList.twake:
		al.next = sleepList
		sleepList = al
		set_stcmp(al.twake)
	default:
		var prev *alarm
		iter := sleepList
		for iter != nil && iter.twake < al.twake {
			prev = iter
			iter = iter.next
		}
		prev.next = al
		al.next = iter
	}

	csrs_sie()
	conditionWait(&al.cond)
}

func alarmReset(al *alarm) {
	al.twake = rdtime()
}

func alarmSleepSec(al *alarm, sec uint32)  { alarmSleep(al, uint64(sec)*TIMER_FREQ) }
func alarmSleepMs(al *alarm, ms uint64)    { alarmSleep(al, ms*(TIMER_FREQ/1000)) }
func alarmSleepUs(al *alarm, us uint64)    { alarmSleep(al, us*(TIMER_FREQ/1000/1000)) }

func sleepUs(us uint64) {
	var al alarm
	alarmInit(&al, "sleep")
	alarmSleepUs(&al, us)
}

// handleTimerInterrupt drains every alarm whose wake time has arrived,
// broadcasting each one's condition, then reprograms the timer for the new
// head or disables the timer interrupt entirely when the list empties.
func handleTimerInterrupt() {
	now := rdtime()

	pie := disableInterrupts()
	defer restoreInterrupts(pie)

	head := sleepList
	for head != nil && head.twake <= now {
		next := head.next
		conditionBroadcast(&head.cond)
		head.next = nil
		head = next
	}
	sleepList = head

	if sleepList != nil {
		set_stcmp(sleepList.twake)
	} else {
		csrc_sie()
		set_stcmp(maxUint64)
	}
}
