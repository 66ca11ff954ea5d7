package main

import "unsafe"

// Device-facing interfaces: named, typed collaborator boundaries that
// this repository never programs against real registers (spec.md §1,
// SPEC_FULL.md §3). A real VirtIO/UART/PLIC driver would implement these
// and register itself with devmgrRegister; kernel tests and cmd/diskimage
// provide fakes instead. Unlike the unified kio object, these ARE plain
// Go interfaces — spec.md's "no language inheritance" note is scoped to
// the vtable-of-function-pointers I/O object in io.go, not this boundary.

type BlockDevice interface {
	ReadAt(pos uint64, buf []byte) (int, error)
	WriteAt(pos uint64, buf []byte) (int, error)
	BlockSize() int
	Size() uint64
}

type CharDevice interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Cntl(cmd int, arg unsafe.Pointer) (int, error)
}

type InterruptController interface {
	EnableSource(irq int, isr func())
	Claim() int
	Finish(irq int)
}

// devFactory produces a *kio wrapping instance instno of a named device.
type devFactory func(instno int) (*kio, kerrno)

var devRegistry = map[string]devFactory{}
var devmgrLock spinlock
var devmgrInitialized bool

func devmgrInit() {
	devmgrLock.initlock("devmgr")
	devmgrInitialized = true
}

// devmgrRegister installs a factory under name, overwriting any previous
// registration — used at boot to wire a concrete BlockDevice/CharDevice
// in behind the name user programs pass to devopen.
func devmgrRegister(name string, factory devFactory) {
	devmgrLock.acquire()
	defer devmgrLock.release()
	devRegistry[name] = factory
}

// openDevice looks name up in the registry and opens instance instno.
// Grounded on syscall.c's sysdevopen, which defers to an open_device the
// original source never defines a body for.
func openDevice(name string, instno int) (*kio, kerrno) {
	devmgrLock.acquire()
	factory, ok := devRegistry[name]
	devmgrLock.release()

	if !ok {
		return nil, ENXIO
	}
	return factory(instno)
}

// --- BlockDevice adapter ---

type blockDevIO struct {
	io  kio
	dev BlockDevice
}

var blockDevIntf = kioIntf{
	readAt:  blockDevReadAt,
	writeAt: blockDevWriteAt,
	cntl:    blockDevCntl,
}

func wrapBlockDevice(dev BlockDevice) *kio {
	b := &blockDevIO{dev: dev}
	return ioinit1(&b.io, &blockDevIntf)
}

func asBlockDevIO(io *kio) *blockDevIO { return (*blockDevIO)(unsafe.Pointer(io)) }

func blockDevReadAt(io *kio, pos uint64, buf []byte) (int, kerrno) {
	n, err := asBlockDevIO(io).dev.ReadAt(pos, buf)
	if err != nil {
		return n, EIO
	}
	return n, EOK
}

func blockDevWriteAt(io *kio, pos uint64, buf []byte) (int, kerrno) {
	n, err := asBlockDevIO(io).dev.WriteAt(pos, buf)
	if err != nil {
		return n, EIO
	}
	return n, EOK
}

func blockDevCntl(io *kio, cmd int, arg unsafe.Pointer) (int, kerrno) {
	b := asBlockDevIO(io)
	switch cmd {
	case IOCTL_GETBLKSZ:
		return b.dev.BlockSize(), EOK
	case IOCTL_GETEND:
		*(*uint64)(arg) = b.dev.Size()
		return 0, EOK
	default:
		return 0, ENOTSUP
	}
}

// --- CharDevice adapter ---

type charDevIO struct {
	io  kio
	dev CharDevice
}

var charDevIntf = kioIntf{
	read:  charDevRead,
	write: charDevWrite,
	cntl:  charDevCntl,
}

func wrapCharDevice(dev CharDevice) *kio {
	c := &charDevIO{dev: dev}
	return ioinit1(&c.io, &charDevIntf)
}

func asCharDevIO(io *kio) *charDevIO { return (*charDevIO)(unsafe.Pointer(io)) }

func charDevRead(io *kio, buf []byte) (int, kerrno) {
	n, err := asCharDevIO(io).dev.Read(buf)
	if err != nil {
		return n, EIO
	}
	return n, EOK
}

func charDevWrite(io *kio, buf []byte) (int, kerrno) {
	n, err := asCharDevIO(io).dev.Write(buf)
	if err != nil {
		return n, EIO
	}
	return n, EOK
}

func charDevCntl(io *kio, cmd int, arg unsafe.Pointer) (int, kerrno) {
	n, err := asCharDevIO(io).dev.Cntl(cmd, arg)
	if err != nil {
		return n, EIO
	}
	return n, EOK
}
