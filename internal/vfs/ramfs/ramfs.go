// Package ramfs is a small in-memory VnodeOps driver. It stands in for the
// concrete filesystem backends spec.md §1 declares out of scope (ramfs and
// s5fs in the source), giving the path-resolution and syscall layers a real
// backend to exercise in tests and at boot.
//
// Grounded on jacobsa-fuse's samples/memfs (an in-memory inode map behind
// fuseops, one mutex per directory, a stable offset-indexed entry slice for
// readdir) rather than on any GCS-specific gcsfuse code, since GCS object
// semantics have no analogue here.
package ramfs

import (
	"sync"

	"github.com/northernlights/weenix-go/internal/errno"
	"github.com/northernlights/weenix-go/internal/vfs"
	"github.com/northernlights/weenix-go/internal/vfs/devfs"
)

type dirState struct {
	mu      sync.Mutex
	entries []dirEntry // index i holds dirent offset i+1; a removed entry's vn is nil but the slot is kept
	parent  *vfs.Vnode // nil for the root (whose ".." is itself); owning reference otherwise
	self    *vfs.Vnode
}

type dirEntry struct {
	name string
	vn   *vfs.Vnode
}

type fileState struct {
	mu   sync.Mutex
	data []byte
}

// New constructs an empty root directory vnode whose ".." is itself.
func New() *vfs.Vnode {
	root := vfs.New(vfs.ModeDirectory, vfs.Ops{}, onZeroDir)
	ds := &dirState{self: root}
	root.Private = ds
	root.Ops = dirOps
	return root
}

var dirOps = vfs.Ops{
	Lookup: dirLookup,
	Create: dirCreate,
	Mknod:  dirMknod,
	Mkdir:  dirMkdir,
	Rmdir:  dirRmdir,
	Unlink: dirUnlink,
	Link:   dirLink,
	Readdir: dirReaddir,
	Stat:    dirStat,
}

var fileOps = vfs.Ops{
	Read:     fileRead,
	Write:    fileWrite,
	Stat:     fileStat,
	Truncate: fileTruncate,
}

func ds(v *vfs.Vnode) *dirState   { return v.Private.(*dirState) }
func fs(v *vfs.Vnode) *fileState  { return v.Private.(*fileState) }

func onZeroDir(v *vfs.Vnode) {
	d := ds(v)
	if d.parent != nil && d.parent != v {
		d.parent.Put()
	}
}

func findLocked(d *dirState, name string) (*dirEntry, int) {
	for i := range d.entries {
		if d.entries[i].vn != nil && d.entries[i].name == name {
			return &d.entries[i], i
		}
	}
	return nil, -1
}

func dirLookup(dir *vfs.Vnode, name string) (*vfs.Vnode, error) {
	d := ds(dir)
	d.mu.Lock()
	defer d.mu.Unlock()

	switch name {
	case ".":
		return dir.Ref(), nil
	case "..":
		if d.parent == nil {
			return dir.Ref(), nil
		}
		return d.parent.Ref(), nil
	}

	e, _ := findLocked(d, name)
	if e == nil {
		return nil, errno.NoEntry
	}
	return e.vn.Ref(), nil
}

// addChild appends a dirEntry for an already-referenced vnode (the
// directory table keeps the reference it is handed). Reuses a removed
// slot when one exists so offsets stay dense enough for readdir, but never
// renumbers an existing live slot (spec.md's own getdents needs stable
// offsets across concurrent mutation, the same invariant memfs documents).
func addChild(d *dirState, name string, vn *vfs.Vnode) {
	for i := range d.entries {
		if d.entries[i].vn == nil {
			d.entries[i] = dirEntry{name: name, vn: vn}
			return
		}
	}
	d.entries = append(d.entries, dirEntry{name: name, vn: vn})
}

func dirCreate(dir *vfs.Vnode, name string) (*vfs.Vnode, error) {
	d := ds(dir)
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, _ := findLocked(d, name); e != nil {
		return nil, errno.Exists
	}

	vn := vfs.New(vfs.ModeRegular, fileOps, nil)
	vn.Private = &fileState{}
	addChild(d, name, vn)
	return vn.Ref(), nil
}

// dirMknod looks the requested device up in the device-driver table
// (internal/vfs/devfs), the Go analogue of a filesystem's vfs_mknod
// consulting the kernel's bytedev/blockdev special-file-ops arrays rather
// than fabricating device behavior itself.
func dirMknod(dir *vfs.Vnode, name string, mode vfs.Mode, dev vfs.DevID) error {
	if mode != vfs.ModeCharDevice && mode != vfs.ModeBlockDevice {
		return errno.Invalid
	}

	d := ds(dir)
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, _ := findLocked(d, name); e != nil {
		return errno.Exists
	}

	vn, err := devfs.New(dev)
	if err != nil {
		return err
	}
	addChild(d, name, vn)
	return nil
}

func dirMkdir(dir *vfs.Vnode, name string) error {
	d := ds(dir)
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, _ := findLocked(d, name); e != nil {
		return errno.Exists
	}

	child := vfs.New(vfs.ModeDirectory, dirOps, onZeroDir)
	cd := &dirState{self: child, parent: dir.Ref()}
	child.Private = cd
	addChild(d, name, child)
	return nil
}

func dirRmdir(dir *vfs.Vnode, name string) error {
	d := ds(dir)
	d.mu.Lock()
	defer d.mu.Unlock()

	e, _ := findLocked(d, name)
	if e == nil {
		return errno.NoEntry
	}
	if !e.vn.IsDir() {
		return errno.NotDir
	}
	child := ds(e.vn)
	child.mu.Lock()
	empty := len(child.entries) == 0
	for _, ce := range child.entries {
		if ce.vn != nil {
			empty = false
			break
		}
	}
	child.mu.Unlock()
	if !empty {
		return errno.NotEmpty
	}

	vn := e.vn
	e.vn = nil
	vn.Put()
	return nil
}

func dirUnlink(dir *vfs.Vnode, name string) error {
	d := ds(dir)
	d.mu.Lock()
	defer d.mu.Unlock()

	e, _ := findLocked(d, name)
	if e == nil {
		return errno.NoEntry
	}
	if e.vn.IsDir() {
		return errno.IsDir
	}

	vn := e.vn
	e.vn = nil
	vn.Put()
	return nil
}

// dirLink adds name in dstDir pointing at the already-resolved src vnode.
// Existence-of-target and from/to reference lifetime are the syscall
// layer's job (spec.md §9 flags the source's do_link for releasing src/dst
// refs before the op call; this tree's fd.Link holds both across the call).
func dirLink(src *vfs.Vnode, dstDir *vfs.Vnode, name string) error {
	d := ds(dstDir)
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, _ := findLocked(d, name); e != nil {
		return errno.Exists
	}
	addChild(d, name, src.Ref())
	return nil
}

func dirReaddir(vn *vfs.Vnode, off int64, out *vfs.Dirent) (int, error) {
	d := ds(vn)
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := int(off)
	for idx < len(d.entries) {
		e := d.entries[idx]
		idx++
		if e.vn == nil {
			continue
		}
		*out = vfs.Dirent{Name: e.name, Mode: e.vn.Mode}
		return idx - int(off), nil
	}
	return 0, nil
}

func dirStat(vn *vfs.Vnode, out *vfs.Stat) error {
	out.Mode = vfs.ModeDirectory
	out.Length = vn.Length()
	return nil
}

func fileRead(vn *vfs.Vnode, off int64, buf []byte) (int, error) {
	f := fs(vn)
	f.mu.Lock()
	defer f.mu.Unlock()

	if off >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(buf, f.data[off:])
	return n, nil
}

func fileWrite(vn *vfs.Vnode, off int64, buf []byte) (int, error) {
	f := fs(vn)
	f.mu.Lock()
	defer f.mu.Unlock()

	end := off + int64(len(buf))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:end], buf)
	vn.SetLength(int64(len(f.data)))
	return len(buf), nil
}

func fileStat(vn *vfs.Vnode, out *vfs.Stat) error {
	out.Mode = vfs.ModeRegular
	out.Length = vn.Length()
	return nil
}

func fileTruncate(vn *vfs.Vnode, size int64) error {
	f := fs(vn)
	f.mu.Lock()
	defer f.mu.Unlock()

	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	}
	vn.SetLength(size)
	return nil
}
