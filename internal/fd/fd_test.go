package fd_test

import (
	"testing"

	"github.com/northernlights/weenix-go/internal/errno"
	"github.com/northernlights/weenix-go/internal/fd"
	"github.com/northernlights/weenix-go/internal/file"
	"github.com/northernlights/weenix-go/internal/proc"
	"github.com/northernlights/weenix-go/internal/vfs"
	"github.com/northernlights/weenix-go/internal/vfs/ramfs"
)

func newTestProcess(t *testing.T) (*proc.Process, *vfs.Vnode) {
	t.Helper()
	root := ramfs.New()
	p, err := proc.Create("test", nil)
	if err != nil {
		t.Fatalf("proc.Create: %v", err)
	}
	p.Cwd = root.Ref()
	return p, root
}

func TestOpenCreateWriteReadRoundTrip(t *testing.T) {
	p, root := newTestProcess(t)

	wfd, err := fd.Open(p, root, "/greeting", file.OWrite|file.OCreate)
	if err != nil {
		t.Fatalf("Open create: %v", err)
	}
	if _, err := fd.Write(p, wfd, []byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fd.Close(p, wfd); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rfd, err := fd.Open(p, root, "/greeting", file.ORead)
	if err != nil {
		t.Fatalf("Open read: %v", err)
	}
	buf := make([]byte, 16)
	n, err := fd.Read(p, rfd, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("Read = %q, want hello", buf[:n])
	}
	fd.Close(p, rfd)
}

func TestOpenWithoutCreateOnMissingIsNoEntry(t *testing.T) {
	p, root := newTestProcess(t)
	if _, err := fd.Open(p, root, "/missing", file.ORead); err != errno.NoEntry {
		t.Fatalf("Open of a missing path error = %v, want NoEntry", err)
	}
}

func TestOpenDirectoryForWriteIsIsDir(t *testing.T) {
	p, root := newTestProcess(t)
	if err := fd.Mkdir(p, root, "/d"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := fd.Open(p, root, "/d", file.OWrite); err != errno.IsDir {
		t.Fatalf("Open of a directory for write error = %v, want IsDir", err)
	}
}

func TestReadOnWriteOnlyFdIsBadFd(t *testing.T) {
	p, root := newTestProcess(t)
	wfd, err := fd.Open(p, root, "/f", file.OWrite|file.OCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := fd.Read(p, wfd, make([]byte, 4)); err != errno.BadFd {
		t.Fatalf("Read on a write-only fd error = %v, want BadFd", err)
	}
}

func TestDupSharesPosition(t *testing.T) {
	p, root := newTestProcess(t)
	wfd, err := fd.Open(p, root, "/f", file.OWrite|file.OCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := fd.Write(p, wfd, []byte("abcdef")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	dupfd, err := fd.Dup(p, wfd)
	if err != nil {
		t.Fatalf("Dup: %v", err)
	}
	if _, err := fd.Write(p, dupfd, []byte("ghi")); err != nil {
		t.Fatalf("Write via dup: %v", err)
	}

	pos, err := fd.Lseek(p, wfd, 0, fd.SeekCur)
	if err != nil {
		t.Fatalf("Lseek: %v", err)
	}
	if pos != 9 {
		t.Fatalf("shared position after writing through both fds = %d, want 9", pos)
	}
}

func TestDup2ClosesExistingTarget(t *testing.T) {
	p, root := newTestProcess(t)
	afd, err := fd.Open(p, root, "/a", file.OWrite|file.OCreate)
	if err != nil {
		t.Fatalf("Open a: %v", err)
	}
	bfd, err := fd.Open(p, root, "/b", file.OWrite|file.OCreate)
	if err != nil {
		t.Fatalf("Open b: %v", err)
	}

	if _, err := fd.Dup2(p, afd, bfd); err != nil {
		t.Fatalf("Dup2: %v", err)
	}
	if _, err := fd.Write(p, bfd, []byte("x")); err != nil {
		t.Fatalf("Write through dup2'd fd: %v", err)
	}

	rfd, err := fd.Open(p, root, "/a", file.ORead)
	if err != nil {
		t.Fatalf("Open a for read: %v", err)
	}
	buf := make([]byte, 4)
	n, err := fd.Read(p, rfd, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "x" {
		t.Fatalf("/a contents = %q, want x (dup2 should alias bfd onto afd's file)", buf[:n])
	}
}

func TestMkdirRmdirUnlink(t *testing.T) {
	p, root := newTestProcess(t)
	if err := fd.Mkdir(p, root, "/d"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fd.Rmdir(p, root, "/d"); err != nil {
		t.Fatalf("Rmdir: %v", err)
	}
	if _, err := fd.Open(p, root, "/d", file.ORead); err != errno.NoEntry {
		t.Fatalf("Open of a removed directory error = %v, want NoEntry", err)
	}

	wfd, err := fd.Open(p, root, "/f", file.OWrite|file.OCreate)
	if err != nil {
		t.Fatalf("Open create: %v", err)
	}
	fd.Close(p, wfd)
	if err := fd.Unlink(p, root, "/f"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := fd.Open(p, root, "/f", file.ORead); err != errno.NoEntry {
		t.Fatalf("Open of an unlinked file error = %v, want NoEntry", err)
	}
}

func TestRmdirDotDotIsInvalid(t *testing.T) {
	p, root := newTestProcess(t)
	if err := fd.Rmdir(p, root, "/.."); err != errno.Invalid {
		t.Fatalf("Rmdir of \"..\" error = %v, want Invalid", err)
	}
}

func TestLinkCreatesSecondNameForSameVnode(t *testing.T) {
	p, root := newTestProcess(t)
	wfd, err := fd.Open(p, root, "/a", file.OWrite|file.OCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fd.Write(p, wfd, []byte("data"))
	fd.Close(p, wfd)

	if err := fd.Link(p, root, "/a", "/b"); err != nil {
		t.Fatalf("Link: %v", err)
	}

	rfd, err := fd.Open(p, root, "/b", file.ORead)
	if err != nil {
		t.Fatalf("Open b: %v", err)
	}
	buf := make([]byte, 8)
	n, err := fd.Read(p, rfd, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "data" {
		t.Fatalf("contents via the linked name = %q, want data", buf[:n])
	}
}

func TestLinkToExistingNameIsExists(t *testing.T) {
	p, root := newTestProcess(t)
	wfd, _ := fd.Open(p, root, "/a", file.OWrite|file.OCreate)
	fd.Close(p, wfd)
	wfd2, _ := fd.Open(p, root, "/b", file.OWrite|file.OCreate)
	fd.Close(p, wfd2)

	if err := fd.Link(p, root, "/a", "/b"); err != errno.Exists {
		t.Fatalf("Link onto an existing name error = %v, want Exists", err)
	}
}

func TestLinkOfDirectoryIsIsDir(t *testing.T) {
	p, root := newTestProcess(t)
	if err := fd.Mkdir(p, root, "/d"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fd.Link(p, root, "/d", "/d2"); err != errno.IsDir {
		t.Fatalf("Link of a directory error = %v, want IsDir", err)
	}
}

func TestRenameMovesEntry(t *testing.T) {
	p, root := newTestProcess(t)
	wfd, _ := fd.Open(p, root, "/old", file.OWrite|file.OCreate)
	fd.Write(p, wfd, []byte("v"))
	fd.Close(p, wfd)

	if err := fd.Rename(p, root, "/old", "/new"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := fd.Open(p, root, "/old", file.ORead); err != errno.NoEntry {
		t.Fatalf("Open of the old name after Rename error = %v, want NoEntry", err)
	}
	rfd, err := fd.Open(p, root, "/new", file.ORead)
	if err != nil {
		t.Fatalf("Open of the new name: %v", err)
	}
	fd.Close(p, rfd)
}

func TestChdirUpdatesCwdForRelativeResolution(t *testing.T) {
	p, root := newTestProcess(t)
	if err := fd.Mkdir(p, root, "/sub"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fd.Chdir(p, root, "/sub"); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	wfd, err := fd.Open(p, root, "file", file.OWrite|file.OCreate)
	if err != nil {
		t.Fatalf("Open relative to new cwd: %v", err)
	}
	fd.Close(p, wfd)

	if _, err := fd.Open(p, root, "/sub/file", file.ORead); err != nil {
		t.Fatalf("Open of /sub/file after relative create: %v", err)
	}
}

func TestChdirOnNonDirectoryIsNotDir(t *testing.T) {
	p, root := newTestProcess(t)
	wfd, _ := fd.Open(p, root, "/f", file.OWrite|file.OCreate)
	fd.Close(p, wfd)

	if err := fd.Chdir(p, root, "/f"); err != errno.NotDir {
		t.Fatalf("Chdir onto a regular file error = %v, want NotDir", err)
	}
}

func TestLseekWhenceVariants(t *testing.T) {
	p, root := newTestProcess(t)
	wfd, _ := fd.Open(p, root, "/f", file.OWrite|file.OCreate)
	fd.Write(p, wfd, []byte("0123456789"))

	if pos, err := fd.Lseek(p, wfd, 3, fd.SeekSet); err != nil || pos != 3 {
		t.Fatalf("Lseek SeekSet = (%d, %v), want (3, nil)", pos, err)
	}
	if pos, err := fd.Lseek(p, wfd, 2, fd.SeekCur); err != nil || pos != 5 {
		t.Fatalf("Lseek SeekCur = (%d, %v), want (5, nil)", pos, err)
	}
	if pos, err := fd.Lseek(p, wfd, 0, fd.SeekEnd); err != nil || pos != 10 {
		t.Fatalf("Lseek SeekEnd = (%d, %v), want (10, nil)", pos, err)
	}
	if _, err := fd.Lseek(p, wfd, -100, fd.SeekSet); err != errno.Invalid {
		t.Fatalf("Lseek to a negative offset error = %v, want Invalid", err)
	}
}

func TestGetdentsReturnsZeroAtEOF(t *testing.T) {
	p, root := newTestProcess(t)
	if err := fd.Mkdir(p, root, "/d"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	dfd, err := fd.Open(p, root, "/d", file.ORead)
	if err != nil {
		t.Fatalf("Open directory: %v", err)
	}

	var ent vfs.Dirent
	n, err := fd.Getdents(p, dfd, &ent)
	if err != nil {
		t.Fatalf("Getdents on an empty directory: %v", err)
	}
	if n != 0 {
		t.Fatalf("Getdents on an empty directory n = %d, want 0", n)
	}
}

func TestStatReportsRegularFileLength(t *testing.T) {
	p, root := newTestProcess(t)
	wfd, _ := fd.Open(p, root, "/f", file.OWrite|file.OCreate)
	fd.Write(p, wfd, []byte("abcd"))
	fd.Close(p, wfd)

	var st vfs.Stat
	if err := fd.Stat(p, root, "/f", &st); err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if st.Mode != vfs.ModeRegular || st.Length != 4 {
		t.Fatalf("Stat = %+v, want Mode=ModeRegular Length=4", st)
	}
}
