package main

import "testing"

// pipeHarness installs a bound thread so lockAcquire/disableInterrupts have
// a TP() to operate on, matching the pattern used by the sync/process
// tests. Every case below keeps the buffer non-empty-and-non-full enough
// that pipeEndRead/pipeEndWrite never reach conditionWait.
func pipeHarness(t *testing.T) {
	t.Helper()
	prevThread := currentThread
	currentThread = &Thread{state: threadSelf}
	t.Cleanup(func() { currentThread = prevThread })
}

func TestPipeWriteThenReadRoundTrip(t *testing.T) {
	pipeHarness(t)
	r, w := makePipe()

	n, err := iowrite(w, []byte("ping"))
	if err.isErr() || n != 4 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}

	out := make([]byte, 16)
	n, err = ioread(r, out)
	if err.isErr() || n != 4 || string(out[:n]) != "ping" {
		t.Fatalf("read: n=%d err=%v out=%q", n, err, out[:n])
	}
}

func TestPipeReadReturnsEOFAfterWriterCloses(t *testing.T) {
	pipeHarness(t)
	r, w := makePipe()

	ioclose(w)

	out := make([]byte, 4)
	n, err := ioread(r, out)
	if err.isErr() || n != 0 {
		t.Fatalf("read after writer close: n=%d err=%v, want EOF (0, EOK)", n, err)
	}
}

func TestPipeReadDrainsBufferedDataBeforeEOF(t *testing.T) {
	pipeHarness(t)
	r, w := makePipe()

	iowrite(w, []byte("buffered"))
	ioclose(w)

	out := make([]byte, 16)
	n, err := ioread(r, out)
	if err.isErr() || string(out[:n]) != "buffered" {
		t.Fatalf("read after close with buffered data: n=%d err=%v out=%q", n, err, out[:n])
	}
}

func TestPipeWriteReturnsEIOAfterReaderCloses(t *testing.T) {
	pipeHarness(t)
	r, w := makePipe()

	ioclose(r)

	if n, err := iowrite(w, []byte("x")); err != EIO || n != 0 {
		t.Fatalf("write after reader close: n=%d err=%v, want (0, EIO)", n, err)
	}
}

func TestPipeReadPartialFillsSmallerBuffer(t *testing.T) {
	pipeHarness(t)
	r, w := makePipe()

	iowrite(w, []byte("hello world"))

	out := make([]byte, 5)
	n, err := ioread(r, out)
	if err.isErr() || n != 5 || string(out) != "hello" {
		t.Fatalf("partial read: n=%d err=%v out=%q", n, err, out)
	}

	rest := make([]byte, 16)
	n, err = ioread(r, rest)
	if err.isErr() || string(rest[:n]) != " world" {
		t.Fatalf("remaining read: n=%d err=%v out=%q", n, err, rest[:n])
	}
}
