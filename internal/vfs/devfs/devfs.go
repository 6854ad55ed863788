// Package devfs provides the character-device vnodes spec.md §6's
// bootstrap sequence mounts at /dev: null, zero, and a single console tty.
// Device numbers are encoded with golang.org/x/sys/unix.Mkdev, the same
// helper gcsfuse's rlimit/device-adjacent code reaches for rather than
// hand-rolling the major/minor bit packing.
package devfs

import (
	"golang.org/x/sys/unix"

	"github.com/northernlights/weenix-go/internal/errno"
	"github.com/northernlights/weenix-go/internal/vfs"
)

// Well-known device numbers for this kernel's fixed device set, following
// the Linux major numbers for the real /dev/null, /dev/zero, and the
// first virtual console.
var (
	DevNull = vfs.DevID{Major: 1, Minor: 3}
	DevZero = vfs.DevID{Major: 1, Minor: 5}
	DevTTY0 = vfs.DevID{Major: 4, Minor: 0}
)

// rdev encodes a DevID the way unix.Mkdev packs a combined device number,
// for debug dumps and stat's st_rdev field.
func rdev(d vfs.DevID) uint64 { return unix.Mkdev(d.Major, d.Minor) }

// New returns a vnode whose VnodeOps implement the driver behavior for
// dev, or errno.NoDevice if dev names a device this kernel has no driver
// for. A directory's Mknod op calls it: ramfs.dirMknod builds the device
// vnode with New and installs it under the requested name, and
// internal/kernel's bootstrap reaches it only through that Mknod op.
func New(dev vfs.DevID) (*vfs.Vnode, error) {
	var vn *vfs.Vnode
	switch dev {
	case DevNull:
		vn = vfs.New(vfs.ModeCharDevice, nullOps, nil)
	case DevZero:
		vn = vfs.New(vfs.ModeCharDevice, zeroOps, nil)
	case DevTTY0:
		vn = vfs.New(vfs.ModeCharDevice, ttyOps(), nil)
	default:
		return nil, errno.NoDevice
	}
	vn.Dev = dev
	return vn, nil
}

var nullOps = vfs.Ops{
	Read:  func(vn *vfs.Vnode, off int64, buf []byte) (int, error) { return 0, nil },
	Write: func(vn *vfs.Vnode, off int64, buf []byte) (int, error) { return len(buf), nil },
	Stat:  statDev(DevNull, vfs.ModeCharDevice),
}

var zeroOps = vfs.Ops{
	Read: func(vn *vfs.Vnode, off int64, buf []byte) (int, error) {
		for i := range buf {
			buf[i] = 0
		}
		return len(buf), nil
	},
	Write: func(vn *vfs.Vnode, off int64, buf []byte) (int, error) { return len(buf), nil },
	Stat:  statDev(DevZero, vfs.ModeCharDevice),
}

// ttyOps backs /dev/tty0 with an in-memory line buffer rather than the
// host terminal: this kernel's console is a simulated device, not a
// window onto the process actually running it.
func ttyOps() vfs.Ops {
	buf := &ttyBuffer{}
	return vfs.Ops{
		Read:  buf.read,
		Write: buf.write,
		Stat:  statDev(DevTTY0, vfs.ModeCharDevice),
	}
}

type ttyBuffer struct {
	data []byte
}

func (b *ttyBuffer) read(vn *vfs.Vnode, off int64, out []byte) (int, error) {
	if len(b.data) == 0 {
		return 0, nil
	}
	n := copy(out, b.data)
	b.data = b.data[n:]
	return n, nil
}

func (b *ttyBuffer) write(vn *vfs.Vnode, off int64, in []byte) (int, error) {
	b.data = append(b.data, in...)
	return len(in), nil
}

func statDev(dev vfs.DevID, mode vfs.Mode) func(*vfs.Vnode, *vfs.Stat) error {
	return func(vn *vfs.Vnode, out *vfs.Stat) error {
		out.Mode = mode
		out.Dev = dev
		out.Rdev = rdev(dev)
		return nil
	}
}
