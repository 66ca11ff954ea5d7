package main

import _ "unsafe"

// Trap entry and the frame passed across the U-mode/S-mode boundary.
// Generalizes the teacher's Kerneltrap (which only recognized the timer
// cause and spun on anything else) to the full dispatch spec.md §5
// describes: a user ecall routes to the syscall layer, a user-mode page
// fault inside the demand-allocable region is serviced by
// handleUmodePageFault, anything else in user mode kills the offending
// process, and a timer interrupt always reaches handleTimerInterrupt and
// yields if a real thread (not idle) was running.
//
// trapFrame's exact field layout only matters to trapFrameJump,
// currentTrapFrame, and trapinithart — go:linkname externs into the
// assembly that actually flips to/from U-mode, the same "opaque
// collaborator" treatment riscv.go gives csrw_satp and swtch.

type trapFrame struct {
	ra, sp, gp, tp uintptr
	t0, t1, t2     uintptr
	s0, s1         uintptr
	a0, a1, a2, a3, a4, a5, a6, a7            uintptr
	s2, s3, s4, s5, s6, s7, s8, s9, s10, s11 uintptr
	t3, t4, t5, t6 uintptr
	sepc, sstatus  uintptr
}

//go:linkname trapinithart trapinithart
func trapinithart()

// trapFrameJump installs tf as the supervisor's saved U-mode context and
// switches to it; it does not return on success. Grounded on process.c's
// trap_frame_jump(&tf, get_scratch()) call.
//go:linkname trapFrameJump trap_frame_jump
func trapFrameJump(tf *trapFrame)

// currentTrapFrame returns the trap frame the assembly trap entry saved
// the faulting/trapping U-mode context into, the Go-side equivalent of
// the C reference's get_scratch().
//go:linkname currentTrapFrame current_trap_frame
func currentTrapFrame() *trapFrame

//go:nosplit
//export Kerneltrap
func Kerneltrap() {
	w_sip(r_sip() & ^uintptr(2))

	scause := r_scause()
	sepc := r_sepc()

	switch {
	case scause == scauseSupervisorTimer || scause == scauseMachineTimer:
		handleTimerInterrupt()
		if TP() != nil && TP().id != idleTID {
			threadYield()
		}

	case scause == scauseUserECall:
		tfr := currentTrapFrame()
		handleSyscall(tfr)

	case scause == scauseInstrPageFault || scause == scauseLoadPageFault || scause == scauseStorePageFault:
		vma := r_stval()
		if !handleUmodePageFault(scause, vma) {
			printf("unhandled page fault at %x, killing thread %d\n", vma, runningThread())
			processExit()
		}

	default:
		printf("Kerneltrap: unhandled scause %x at pc %x\n", scause, sepc)
		panic("Kerneltrap: unrecognized trap cause")
	}
}
