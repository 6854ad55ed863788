// Package file implements the per-process open-file abstraction spec.md §5
// describes: a File that pairs a Vnode reference with a seek position and
// open mode, and a fixed-size fd Table that hands out small integers for
// them. It is a leaf package (only vfs and errno below it) so that
// internal/proc can embed a Table in Process without creating an import
// cycle with internal/fd, which needs both Process and Table.
package file

import (
	"fmt"
	"sync"

	"github.com/northernlights/weenix-go/internal/errno"
	"github.com/northernlights/weenix-go/internal/vfs"
)

// Mode bits, a small POSIX-flavored subset (spec.md §5).
const (
	ORead  = 1 << iota // O_RDONLY semantics
	OWrite             // O_WRONLY/O_RDWR contributes this bit
	OAppend
	OCreate
)

// File is an open file description: a vnode reference, a seek position, and
// the mode it was opened with. Several fds (via dup/dup2, or via fork in a
// fuller kernel) can share one File and therefore one position, exactly as
// POSIX dup semantics require.
type File struct {
	mu     sync.Mutex // GUARDED_BY below
	Vnode  *vfs.Vnode
	pos    int64 // GUARDED_BY(mu)
	Mode   int
	refcnt int // GUARDED_BY(mu)
}

// newFile constructs a File taking ownership of the caller's vnode
// reference (the File does not Ref it again).
func newFile(vn *vfs.Vnode, mode int) *File {
	return &File{Vnode: vn, Mode: mode, refcnt: 1}
}

// Ref bumps the File's reference count, for dup/dup2 sharing one File
// across two fd table slots.
func (f *File) Ref() *File {
	f.mu.Lock()
	f.refcnt++
	f.mu.Unlock()
	return f
}

// Put drops a reference; at zero it releases the underlying vnode
// reference. Mirrors vfs.Vnode.Put's refcounting shape one layer up.
func (f *File) Put() {
	f.mu.Lock()
	if f.refcnt == 0 {
		f.mu.Unlock()
		panic("file: Put of a File with a zero refcount")
	}
	f.refcnt--
	zero := f.refcnt == 0
	f.mu.Unlock()

	if zero {
		f.Vnode.Put()
	}
}

func (f *File) Pos() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *File) SetPos(p int64) {
	f.mu.Lock()
	f.pos = p
	f.mu.Unlock()
}

// Readable/Writable interpret Mode the way spec.md §5's open() flags do:
// O_RDONLY is the absence of OWrite, not a distinct bit.
func (f *File) Readable() bool { return f.Mode&OWrite == 0 || f.Mode&ORead != 0 }
func (f *File) Writable() bool { return f.Mode&OWrite != 0 }

// Table is a process's fixed-size fd table, per spec.md §5's NFILES limit.
// Slot 0 is never special-cased here (no implicit stdio wiring), and the
// kernel bootstrap in internal/kernel does not open anything onto fds 0-2
// for init either: every slot starts empty.
type Table struct {
	mu    sync.Mutex
	slots []*File
}

func NewTable(nfiles int) *Table {
	return &Table{slots: make([]*File, nfiles)}
}

// invariantCheck, when non-nil, runs after every fd-table slot mutation
// (Install, InstallAt, Close), the Go analogue of gcsfuse's
// checkInvariants running under its syncutil.InvariantMutex.
// internal/kernel.Bootstrap installs this from conf.Debug.InvariantPolicy.
// f must not itself lock the Table it is passed; it always runs after the
// mutation's own lock has been released.
var invariantCheck func(*Table)

// SetInvariantCheck installs f to run, passed the table just mutated,
// after every Install/InstallAt/Close. Pass nil to disable.
func SetInvariantCheck(f func(*Table)) { invariantCheck = f }

func (t *Table) checkInvariants() {
	if invariantCheck != nil {
		invariantCheck(t)
	}
}

// ValidateInvariants reports the first inconsistency found in t: a
// non-nil slot whose File holds a non-positive reference count. It is the
// check internal/kernel.Bootstrap wires into SetInvariantCheck.
func ValidateInvariants(t *Table) error {
	t.mu.Lock()
	slots := make([]*File, len(t.slots))
	copy(slots, t.slots)
	t.mu.Unlock()

	for fd, f := range slots {
		if f == nil {
			continue
		}
		f.mu.Lock()
		refcnt := f.refcnt
		f.mu.Unlock()
		if refcnt <= 0 {
			return fmt.Errorf("file: fd %d holds a File with non-positive refcount %d", fd, refcnt)
		}
	}
	return nil
}

// Install finds the lowest free fd and attaches f there, returning the fd
// number. f is referenced by exactly this one slot (no extra Ref: Install
// takes the caller's existing reference).
func (t *Table) Install(f *File) (int, error) {
	t.mu.Lock()
	for fd, slot := range t.slots {
		if slot == nil {
			t.slots[fd] = f
			t.mu.Unlock()
			t.checkInvariants()
			return fd, nil
		}
	}
	t.mu.Unlock()
	return 0, errno.MaxFiles
}

// InstallAt places f at an explicit fd (dup2 semantics), closing out
// whatever previously occupied that slot. Returns errno.Invalid if fd is
// out of range.
func (t *Table) InstallAt(fd int, f *File) error {
	t.mu.Lock()
	if fd < 0 || fd >= len(t.slots) {
		t.mu.Unlock()
		return errno.Invalid
	}
	old := t.slots[fd]
	t.slots[fd] = f
	t.mu.Unlock()
	t.checkInvariants()

	if old != nil {
		old.Put()
	}
	return nil
}

// Get returns the File at fd, or errno.BadFd.
func (t *Table) Get(fd int) (*File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fd < 0 || fd >= len(t.slots) || t.slots[fd] == nil {
		return nil, errno.BadFd
	}
	return t.slots[fd], nil
}

// Close releases the fd, Putting the underlying File if this was its last
// reference in the table.
func (t *Table) Close(fd int) error {
	t.mu.Lock()
	if fd < 0 || fd >= len(t.slots) || t.slots[fd] == nil {
		t.mu.Unlock()
		return errno.BadFd
	}
	f := t.slots[fd]
	t.slots[fd] = nil
	t.mu.Unlock()
	t.checkInvariants()

	f.Put()
	return nil
}

// Open constructs a new File around vn (taking ownership of that
// reference) and installs it at the lowest free fd.
func (t *Table) Open(vn *vfs.Vnode, mode int) (int, error) {
	return t.Install(newFile(vn, mode))
}

// CloseAll closes every open fd, in descending order, mirroring
// proc_cleanup's fd teardown in spec.md §3.
func (t *Table) CloseAll() {
	t.mu.Lock()
	slots := t.slots
	t.mu.Unlock()
	for fd := len(slots) - 1; fd >= 0; fd-- {
		t.Close(fd)
	}
}

// Len reports the table's fixed capacity (NFILES), not its occupancy.
func (t *Table) Len() int { return len(t.slots) }
