// Package vfs implements the VnodeOps capability table and the path-name
// resolution machinery (dir_namev/lookup/open_namev) described in spec.md
// §4.4 and §6. It is the Go analogue of gcsfuse's fs/inode package: a
// refcounted handle type (Vnode, modeled on inode.Inode plus the
// lookupCount helper in fs/inode/lookup_count.go) dispatched through a
// driver-provided ops table, rather than a single hard-coded backend.
package vfs

import (
	"sync"

	"github.com/northernlights/weenix-go/internal/errno"
)

// Mode is the kind of object a Vnode represents.
type Mode int

const (
	ModeRegular Mode = iota
	ModeDirectory
	ModeCharDevice
	ModeBlockDevice
)

// DevID identifies a device-special file's major/minor pair.
type DevID struct {
	Major, Minor uint32
}

// Dirent is one directory entry, the Go shape of the source's struct dirent.
type Dirent struct {
	Name  string
	Ino   uint64
	Mode  Mode
}

// Stat is the subset of POSIX struct stat this kernel core exposes.
type Stat struct {
	Mode   Mode
	Length int64
	Dev    DevID
	Rdev   uint64 // combined major/minor, set only for device-special vnodes
}

// Ops is the capability table each filesystem driver provides, per
// spec.md §6. A driver need not populate every field: a nil field means
// the capability is absent (e.g. Readdir nil on a non-directory backend),
// and callers translate that into NotDir (directory ops, Readdir) or
// Invalid (Read, Write, Stat).
type Ops struct {
	Lookup func(dir *Vnode, name string) (*Vnode, error)
	Create func(dir *Vnode, name string) (*Vnode, error)
	Mknod  func(dir *Vnode, name string, mode Mode, dev DevID) error
	Mkdir  func(dir *Vnode, name string) error
	Rmdir  func(dir *Vnode, name string) error
	Unlink func(dir *Vnode, name string) error
	Link   func(src *Vnode, dstDir *Vnode, name string) error

	Read    func(vn *Vnode, off int64, buf []byte) (int, error)
	Write   func(vn *Vnode, off int64, buf []byte) (int, error)
	Readdir func(vn *Vnode, off int64, out *Dirent) (int, error)
	Stat    func(vn *Vnode, out *Stat) error
	Truncate func(vn *Vnode, size int64) error
}

// Vnode is the abstract handle to an on-disk or in-memory object, per
// spec.md §3. Identity is preserved by reference: Ref bumps the
// refcount, Put drops it and triggers inactive-cleanup at zero, exactly
// like gcsfuse's lookupCount.Inc/Dec (fs/inode/lookup_count.go).
type Vnode struct {
	Ops  Ops
	Mode Mode
	Dev  DevID

	mu      sync.Mutex // GUARDED_BY below
	length  int64
	refcnt  uint64
	onZero  func(*Vnode) // driver cleanup hook run when refcnt hits zero

	// driver-private state (e.g. ramfs's *dirState or *fileState).
	Private any
}

// New constructs a Vnode with an initial refcount of 1 (the caller's own
// reference), the convention every VnodeOps.Lookup/Create implementation
// in this tree follows.
func New(mode Mode, ops Ops, onZero func(*Vnode)) *Vnode {
	return &Vnode{Mode: mode, Ops: ops, refcnt: 1, onZero: onZero}
}

// Ref increments the refcount. "vget"/"vref" in spec.md's vocabulary.
func (v *Vnode) Ref() *Vnode {
	v.mu.Lock()
	v.refcnt++
	v.mu.Unlock()
	return v
}

// Put decrements the refcount and runs the driver's inactive-cleanup when
// it reaches zero. "vput" in spec.md's vocabulary.
func (v *Vnode) Put() {
	v.mu.Lock()
	if v.refcnt == 0 {
		v.mu.Unlock()
		panic("vfs: Put of a Vnode with a zero refcount")
	}
	v.refcnt--
	zero := v.refcnt == 0
	v.mu.Unlock()

	if zero && v.onZero != nil {
		v.onZero(v)
	}
}

// Refcount is exposed for invariant checks and tests only.
func (v *Vnode) Refcount() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.refcnt
}

func (v *Vnode) IsDir() bool { return v.Mode == ModeDirectory }

// Length returns the vnode's observable length.
func (v *Vnode) Length() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.length
}

func (v *Vnode) SetLength(n int64) {
	v.mu.Lock()
	v.length = n
	v.mu.Unlock()
}

// Lookup resolves name within dir, per spec.md §4.4. dir must be a
// directory; the returned Vnode (on success) already carries the caller's
// reference, exactly as dir.ops.lookup is documented to in spec.md.
func Lookup(dir *Vnode, name string) (*Vnode, error) {
	if !dir.IsDir() {
		return nil, errno.NotDir
	}
	if dir.Ops.Lookup == nil {
		return nil, errno.NotDir
	}
	return dir.Ops.Lookup(dir, name)
}
