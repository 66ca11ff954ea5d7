package main

import (
	"errors"
	"testing"
	"unsafe"
)

type fakeBlockDevice struct {
	data    []byte
	failErr error
}

func (f *fakeBlockDevice) ReadAt(pos uint64, buf []byte) (int, error) {
	if f.failErr != nil {
		return 0, f.failErr
	}
	return copy(buf, f.data[pos:]), nil
}

func (f *fakeBlockDevice) WriteAt(pos uint64, buf []byte) (int, error) {
	if f.failErr != nil {
		return 0, f.failErr
	}
	return copy(f.data[pos:], buf), nil
}

func (f *fakeBlockDevice) BlockSize() int  { return 512 }
func (f *fakeBlockDevice) Size() uint64    { return uint64(len(f.data)) }

type fakeCharDevice struct {
	failErr error
	written []byte
}

func (f *fakeCharDevice) Read(buf []byte) (int, error) {
	if f.failErr != nil {
		return 0, f.failErr
	}
	return copy(buf, "hi"), nil
}

func (f *fakeCharDevice) Write(buf []byte) (int, error) {
	if f.failErr != nil {
		return 0, f.failErr
	}
	f.written = append(f.written, buf...)
	return len(buf), nil
}

func (f *fakeCharDevice) Cntl(cmd int, arg unsafe.Pointer) (int, error) {
	if f.failErr != nil {
		return 0, f.failErr
	}
	return 0, nil
}

func TestOpenDeviceUnknownNameReturnsENXIO(t *testing.T) {
	devmgrInit()
	if _, err := openDevice("nonexistent-device", 0); err != ENXIO {
		t.Fatalf("unknown device: got %v, want ENXIO", err)
	}
}

func TestDevmgrRegisterAndOpenRoundTrip(t *testing.T) {
	devmgrInit()
	dev := &fakeBlockDevice{data: make([]byte, 1024)}
	devmgrRegister("testblk", func(instno int) (*kio, kerrno) {
		return wrapBlockDevice(dev), EOK
	})

	io, err := openDevice("testblk", 0)
	if err.isErr() {
		t.Fatalf("openDevice: %v", err)
	}
	if n, err := ioctlOp(io, IOCTL_GETBLKSZ, nil); err.isErr() || n != 512 {
		t.Fatalf("GETBLKSZ: n=%d err=%v", n, err)
	}
}

func TestDevmgrRegisterOverwritesPriorFactory(t *testing.T) {
	devmgrInit()
	devmgrRegister("dup", func(instno int) (*kio, kerrno) { return nil, EIO })
	devmgrRegister("dup", func(instno int) (*kio, kerrno) { return wrapBlockDevice(&fakeBlockDevice{data: make([]byte, 8)}), EOK })

	if _, err := openDevice("dup", 0); err.isErr() {
		t.Fatalf("openDevice after overwrite: %v", err)
	}
}

func TestBlockDevAdapterTranslatesErrorToEIO(t *testing.T) {
	dev := &fakeBlockDevice{data: make([]byte, 512), failErr: errors.New("disk fault")}
	io := wrapBlockDevice(dev)

	buf := make([]byte, 16)
	if _, err := ioreadat(io, 0, buf); err != EIO {
		t.Fatalf("readAt on failing device: got %v, want EIO", err)
	}
	if _, err := iowriteat(io, 0, buf); err != EIO {
		t.Fatalf("writeAt on failing device: got %v, want EIO", err)
	}
}

func TestBlockDevAdapterCntlReportsSize(t *testing.T) {
	dev := &fakeBlockDevice{data: make([]byte, 2048)}
	io := wrapBlockDevice(dev)

	var end uint64
	if _, err := ioctlOp(io, IOCTL_GETEND, unsafe.Pointer(&end)); err.isErr() || end != 2048 {
		t.Fatalf("GETEND: end=%d err=%v", end, err)
	}
}

func TestCharDevAdapterTranslatesErrorToEIO(t *testing.T) {
	dev := &fakeCharDevice{failErr: errors.New("no carrier")}
	io := wrapCharDevice(dev)

	buf := make([]byte, 4)
	if _, err := ioread(io, buf); err != EIO {
		t.Fatalf("read on failing device: got %v, want EIO", err)
	}
	if _, err := iowrite(io, buf); err != EIO {
		t.Fatalf("write on failing device: got %v, want EIO", err)
	}
}

func TestCharDevAdapterReadWriteRoundTrip(t *testing.T) {
	dev := &fakeCharDevice{}
	io := wrapCharDevice(dev)

	buf := make([]byte, 2)
	n, err := ioread(io, buf)
	if err.isErr() || string(buf[:n]) != "hi" {
		t.Fatalf("read: n=%d err=%v buf=%q", n, err, buf[:n])
	}

	n, err = iowrite(io, []byte("out"))
	if err.isErr() || n != 3 || string(dev.written) != "out" {
		t.Fatalf("write: n=%d err=%v written=%q", n, err, dev.written)
	}
}
