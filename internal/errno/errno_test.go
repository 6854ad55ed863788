package errno

import (
	"errors"
	"strings"
	"syscall"
	"testing"
)

func TestErrnoSyscallReturnsNegatedValue(t *testing.T) {
	if got := BadFd.Syscall(); got != -int(syscall.EBADF) {
		t.Fatalf("BadFd.Syscall() = %d, want %d", got, -int(syscall.EBADF))
	}
}

func TestErrnoErrorIncludesName(t *testing.T) {
	msg := NoEntry.Error()
	if !strings.Contains(msg, "NoEntry") {
		t.Fatalf("Error() = %q, want it to mention NoEntry", msg)
	}
}

func TestErrnoErrorOfUnnamedValueFallsBackToEUnknown(t *testing.T) {
	var unnamed Errno = Errno(syscall.Errno(0xDEAD))
	if !strings.Contains(unnamed.Error(), "EUNKNOWN") {
		t.Fatalf("Error() = %q, want it to contain EUNKNOWN", unnamed.Error())
	}
}

func TestErrnoImplementsError(t *testing.T) {
	var err error = NotDir
	if err != NotDir {
		t.Fatal("Errno value should compare equal to itself through the error interface")
	}
}

func TestIsMatchesEqualErrno(t *testing.T) {
	if !Is(IsDir, IsDir) {
		t.Fatal("Is(IsDir, IsDir) = false, want true")
	}
}

func TestIsRejectsDifferentErrnoOrForeignError(t *testing.T) {
	if Is(IsDir, NotDir) {
		t.Fatal("Is(IsDir, NotDir) = true, want false")
	}
	if Is(errors.New("boom"), IsDir) {
		t.Fatal("Is on a non-Errno error = true, want false")
	}
}
