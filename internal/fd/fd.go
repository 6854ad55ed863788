// Package fd implements the syscall layer spec.md §5 describes: open,
// read, write, close, dup, dup2, mkdir, rmdir, unlink, link, rename,
// mknod, chdir, lseek, getdents, and stat, each operating on a
// proc.Process's fd table and the vfs path-resolution machinery.
//
// Every function here returns a Go error (an errno.Errno at the edge) the
// way gcsfuse's fs.go op handlers return a Go error for FUSE to translate,
// rather than Weenix's convention of returning a raw negative int.
package fd

import (
	"github.com/northernlights/weenix-go/internal/errno"
	"github.com/northernlights/weenix-go/internal/file"
	"github.com/northernlights/weenix-go/internal/metrics"
	"github.com/northernlights/weenix-go/internal/proc"
	"github.com/northernlights/weenix-go/internal/vfs"
)

func ctx(p *proc.Process, root *vfs.Vnode) vfs.ResolveContext {
	return vfs.ResolveContext{Root: root, Cwd: p.Cwd}
}

// Open resolves path and installs a File for it at the lowest free fd,
// creating the target if mode carries file.OCreate and it is absent, per
// spec.md §5's open() contract.
func Open(p *proc.Process, root *vfs.Vnode, path string, mode int) (int, error) {
	metrics.RecordSyscall()
	vn, err := vfs.OpenNamev(path, mode&file.OCreate != 0, ctx(p, root))
	if err != nil {
		return -1, err
	}
	if vn.IsDir() && mode&(file.OWrite) != 0 {
		vn.Put()
		return -1, errno.IsDir
	}
	return p.Files.Open(vn, mode)
}

// Read reads up to len(buf) bytes from fd's current position, advancing
// it by the number of bytes actually read.
func Read(p *proc.Process, fd int, buf []byte) (int, error) {
	metrics.RecordSyscall()
	f, err := p.Files.Get(fd)
	if err != nil {
		return -1, err
	}
	if !f.Readable() {
		return -1, errno.BadFd
	}
	if f.Vnode.Ops.Read == nil {
		return -1, errno.Invalid
	}
	n, err := f.Vnode.Ops.Read(f.Vnode, f.Pos(), buf)
	if err != nil {
		return -1, err
	}
	f.SetPos(f.Pos() + int64(n))
	return n, nil
}

// Write writes buf to fd's current position, advancing it by the number
// of bytes actually written. O_APPEND seeks to the vnode's current length
// before every write, per spec.md §5.
func Write(p *proc.Process, fd int, buf []byte) (int, error) {
	metrics.RecordSyscall()
	f, err := p.Files.Get(fd)
	if err != nil {
		return -1, err
	}
	if !f.Writable() {
		return -1, errno.BadFd
	}
	if f.Vnode.Ops.Write == nil {
		return -1, errno.Invalid
	}
	pos := f.Pos()
	if f.Mode&file.OAppend != 0 {
		pos = f.Vnode.Length()
	}
	n, err := f.Vnode.Ops.Write(f.Vnode, pos, buf)
	if err != nil {
		return -1, err
	}
	f.SetPos(pos + int64(n))
	return n, nil
}

// Close releases fd.
func Close(p *proc.Process, fd int) error {
	metrics.RecordSyscall()
	return p.Files.Close(fd)
}

// Dup installs a new fd sharing the same File (and so the same seek
// position) as fd.
func Dup(p *proc.Process, fd int) (int, error) {
	metrics.RecordSyscall()
	f, err := p.Files.Get(fd)
	if err != nil {
		return -1, err
	}
	return p.Files.Install(f.Ref())
}

// Dup2 installs oldfd's File at newfd exactly, closing whatever newfd held.
// A no-op (but still validated) if oldfd == newfd, per dup2(2)'s contract.
func Dup2(p *proc.Process, oldfd, newfd int) (int, error) {
	metrics.RecordSyscall()
	f, err := p.Files.Get(oldfd)
	if err != nil {
		return -1, err
	}
	if oldfd == newfd {
		return newfd, nil
	}
	if err := p.Files.InstallAt(newfd, f.Ref()); err != nil {
		return -1, err
	}
	return newfd, nil
}

// Mkdir creates an empty directory at path.
func Mkdir(p *proc.Process, root *vfs.Vnode, path string) error {
	metrics.RecordSyscall()
	parent, base, err := vfs.DirNamev(path, ctx(p, root))
	if err != nil {
		return err
	}
	defer parent.Put()
	if parent.Ops.Mkdir == nil {
		return errno.NotDir
	}
	return parent.Ops.Mkdir(parent, base)
}

// Rmdir removes the empty directory at path.
func Rmdir(p *proc.Process, root *vfs.Vnode, path string) error {
	metrics.RecordSyscall()
	parent, base, err := vfs.DirNamev(path, ctx(p, root))
	if err != nil {
		return err
	}
	defer parent.Put()
	if base == "." || base == ".." {
		return errno.Invalid
	}
	if parent.Ops.Rmdir == nil {
		return errno.NotDir
	}
	return parent.Ops.Rmdir(parent, base)
}

// Unlink removes the directory entry at path, which must not itself be a
// directory (use Rmdir for those).
func Unlink(p *proc.Process, root *vfs.Vnode, path string) error {
	metrics.RecordSyscall()
	parent, base, err := vfs.DirNamev(path, ctx(p, root))
	if err != nil {
		return err
	}
	defer parent.Put()
	if parent.Ops.Unlink == nil {
		return errno.NotDir
	}
	return parent.Ops.Unlink(parent, base)
}

// Link creates a new directory entry "to" pointing at the same vnode as
// the existing path "from". Per spec.md §9's Open Question decision, both
// the resolved source vnode and the destination parent are held for the
// entire call, fixing the source's use-after-release ordering bug: the
// source released its "from" reference before passing it to the driver's
// link op, so a concurrent unlink of "from" could free the vnode out from
// under the call.
func Link(p *proc.Process, root *vfs.Vnode, from, to string) error {
	metrics.RecordSyscall()
	srcParent, srcBase, err := vfs.DirNamev(from, ctx(p, root))
	if err != nil {
		return err
	}
	defer srcParent.Put()
	src, err := vfs.Lookup(srcParent, srcBase)
	if err != nil {
		return err
	}
	defer src.Put()
	if src.IsDir() {
		return errno.IsDir
	}

	dstParent, dstBase, err := vfs.DirNamev(to, ctx(p, root))
	if err != nil {
		return err
	}
	defer dstParent.Put()

	if _, err := vfs.Lookup(dstParent, dstBase); err == nil {
		return errno.Exists
	} else if err != errno.NoEntry {
		return err
	}

	if dstParent.Ops.Link == nil {
		return errno.NotDir
	}
	return dstParent.Ops.Link(src, dstParent, dstBase)
}

// Rename moves the entry at from to to. Per spec.md §9's Open Question
// decision this is preserved exactly as specified: a non-atomic link
// followed by an unlink of the original name, not a single atomic rename
// op, since no VnodeOps.Rename is in the capability table.
func Rename(p *proc.Process, root *vfs.Vnode, from, to string) error {
	if err := Link(p, root, from, to); err != nil {
		return err
	}
	return Unlink(p, root, from)
}

// Mknod creates a device-special file at path.
func Mknod(p *proc.Process, root *vfs.Vnode, path string, mode vfs.Mode, dev vfs.DevID) error {
	metrics.RecordSyscall()
	parent, base, err := vfs.DirNamev(path, ctx(p, root))
	if err != nil {
		return err
	}
	defer parent.Put()
	if parent.Ops.Mknod == nil {
		return errno.NotDir
	}
	return parent.Ops.Mknod(parent, base, mode, dev)
}

// Chdir changes p's working directory to path, which must resolve to a
// directory. The old Cwd's reference is released only after the new one
// is successfully acquired.
func Chdir(p *proc.Process, root *vfs.Vnode, path string) error {
	metrics.RecordSyscall()
	vn, err := vfs.OpenNamev(path, false, ctx(p, root))
	if err != nil {
		return err
	}
	if !vn.IsDir() {
		vn.Put()
		return errno.NotDir
	}
	old := p.Cwd
	p.Cwd = vn
	if old != nil {
		old.Put()
	}
	return nil
}

// Whence values for Lseek, matching io.Seeker's convention (and POSIX's).
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// Lseek repositions fd's offset and returns the resulting absolute offset.
func Lseek(p *proc.Process, fd int, offset int64, whence int) (int64, error) {
	metrics.RecordSyscall()
	f, err := p.Files.Get(fd)
	if err != nil {
		return -1, err
	}

	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = f.Pos()
	case SeekEnd:
		base = f.Vnode.Length()
	default:
		return -1, errno.Invalid
	}

	newPos := base + offset
	if newPos < 0 {
		return -1, errno.Invalid
	}
	f.SetPos(newPos)
	return newPos, nil
}

// Getdents reads one directory entry into out at fd's current offset,
// advancing the offset by however many raw units the driver reports it
// consumed (ramfs reports 1 per entry slot). It returns 0, nil at EOF —
// spec.md §13: do_getdents treats exhaustion as a normal zero return, not
// an error.
func Getdents(p *proc.Process, fd int, out *vfs.Dirent) (int, error) {
	metrics.RecordSyscall()
	f, err := p.Files.Get(fd)
	if err != nil {
		return 0, err
	}
	if !f.Vnode.IsDir() || f.Vnode.Ops.Readdir == nil {
		return 0, errno.NotDir
	}
	n, err := f.Vnode.Ops.Readdir(f.Vnode, f.Pos(), out)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		f.SetPos(f.Pos() + int64(n))
	}
	return n, nil
}

// Stat resolves path and fills out with its metadata.
func Stat(p *proc.Process, root *vfs.Vnode, path string, out *vfs.Stat) error {
	metrics.RecordSyscall()
	vn, err := vfs.OpenNamev(path, false, ctx(p, root))
	if err != nil {
		return err
	}
	defer vn.Put()
	if vn.Ops.Stat == nil {
		return errno.Invalid
	}
	return vn.Ops.Stat(vn, out)
}
