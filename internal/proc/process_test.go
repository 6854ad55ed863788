package proc

import (
	"testing"

	"github.com/northernlights/weenix-go/internal/errno"
)

func TestCreateAssignsDistinctPidsAndLinksParent(t *testing.T) {
	Configure(64, 16)
	parent, err := Create("parent", nil)
	if err != nil {
		t.Fatalf("Create parent: %v", err)
	}
	child, err := Create("child", parent)
	if err != nil {
		t.Fatalf("Create child: %v", err)
	}

	if child.Pid == parent.Pid {
		t.Fatal("parent and child were assigned the same pid")
	}
	if child.Parent != parent {
		t.Fatal("child.Parent is not the process it was created under")
	}
	if parent.NumChildren() != 1 {
		t.Fatalf("NumChildren() = %d, want 1", parent.NumChildren())
	}
	got, ok := Lookup(child.Pid)
	if !ok || got != child {
		t.Fatal("Lookup did not return the created child")
	}
}

func TestProcExitMarksDeadAndReparentsChildrenToInit(t *testing.T) {
	Configure(64, 16)
	idleProc = bootstrapReservedForTest(t, PidIdle, "idle", nil)
	initProc = bootstrapReservedForTest(t, PidInit, "init", idleProc)

	parent, err := Create("parent", initProc)
	if err != nil {
		t.Fatalf("Create parent: %v", err)
	}
	grandchild, err := Create("grandchild", parent)
	if err != nil {
		t.Fatalf("Create grandchild: %v", err)
	}

	procExit(parent, 7)

	if parent.State() != Dead {
		t.Fatalf("State() after procExit = %v, want Dead", parent.State())
	}
	if parent.ExitStatus() != 7 {
		t.Fatalf("ExitStatus() = %d, want 7", parent.ExitStatus())
	}
	if grandchild.Parent != initProc {
		t.Fatal("procExit did not reparent the orphaned child to init")
	}

	found := false
	for _, c := range initProc.Children() {
		if c == grandchild {
			found = true
		}
	}
	if !found {
		t.Fatal("init's children list does not include the reparented grandchild")
	}
}

func TestWaitpidReapsAnAlreadyDeadChildImmediately(t *testing.T) {
	Configure(64, 16)
	parent, err := Create("parent", nil)
	if err != nil {
		t.Fatalf("Create parent: %v", err)
	}
	child, err := Create("child", parent)
	if err != nil {
		t.Fatalf("Create child: %v", err)
	}
	procExit(child, 3)

	pid, status, err := Waitpid(parent, -1)
	if err != nil {
		t.Fatalf("Waitpid: %v", err)
	}
	if pid != child.Pid || status != 3 {
		t.Fatalf("Waitpid = (%d, %d), want (%d, 3)", pid, status, child.Pid)
	}
	if parent.NumChildren() != 0 {
		t.Fatalf("NumChildren() after reaping = %d, want 0", parent.NumChildren())
	}
	if _, ok := Lookup(child.Pid); ok {
		t.Fatal("Waitpid did not remove the reaped child from the process table")
	}
}

func TestWaitpidWithNoChildrenIsNoChild(t *testing.T) {
	Configure(64, 16)
	parent, err := Create("lonely", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := Waitpid(parent, -1); err != errno.NoChild {
		t.Fatalf("Waitpid with no children error = %v, want NoChild", err)
	}
}

func TestWaitpidForSpecificPidNotAChildIsNoChild(t *testing.T) {
	Configure(64, 16)
	parent, err := Create("parent", nil)
	if err != nil {
		t.Fatalf("Create parent: %v", err)
	}
	if _, err := Create("child", parent); err != nil {
		t.Fatalf("Create child: %v", err)
	}

	if _, _, err := Waitpid(parent, 99999); err != errno.NoChild {
		t.Fatalf("Waitpid for an unrelated pid error = %v, want NoChild", err)
	}
}

func TestReparentUpdatesBothTrees(t *testing.T) {
	Configure(64, 16)
	a, err := Create("a", nil)
	if err != nil {
		t.Fatalf("Create a: %v", err)
	}
	b, err := Create("b", nil)
	if err != nil {
		t.Fatalf("Create b: %v", err)
	}
	child, err := Create("child", a)
	if err != nil {
		t.Fatalf("Create child: %v", err)
	}

	Reparent(child, b)

	if a.NumChildren() != 0 {
		t.Fatalf("a.NumChildren() after Reparent = %d, want 0", a.NumChildren())
	}
	if b.NumChildren() != 1 {
		t.Fatalf("b.NumChildren() after Reparent = %d, want 1", b.NumChildren())
	}
	if child.Parent != b {
		t.Fatal("child.Parent was not updated by Reparent")
	}
}

func TestKillSetsCancelledOnEveryThread(t *testing.T) {
	Configure(64, 16)
	p, err := Create("p", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t1 := NewThread(p, func(a1, a2 any) int { return 0 }, nil, nil)
	t2 := NewThread(p, func(a1, a2 any) int { return 0 }, nil, nil)

	Kill(p, 9)

	if !t1.Cancelled() || !t2.Cancelled() {
		t.Fatal("Kill did not mark every thread cancelled")
	}
	if t1.Retval() != 9 || t2.Retval() != 9 {
		t.Fatalf("Retval() after Kill = (%d, %d), want (9, 9)", t1.Retval(), t2.Retval())
	}
}

func TestKillAllSkipsIdleAndInit(t *testing.T) {
	Configure(64, 16)
	idleProc = bootstrapReservedForTest(t, PidIdle, "idle", nil)
	initProc = bootstrapReservedForTest(t, PidInit, "init", idleProc)

	idleT := NewThread(idleProc, func(a1, a2 any) int { return 0 }, nil, nil)
	initT := NewThread(initProc, func(a1, a2 any) int { return 0 }, nil, nil)
	other, err := Create("other", initProc)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	otherT := NewThread(other, func(a1, a2 any) int { return 0 }, nil, nil)

	KillAll(1)

	if idleT.Cancelled() || initT.Cancelled() {
		t.Fatal("KillAll cancelled idle or init")
	}
	if !otherT.Cancelled() {
		t.Fatal("KillAll did not cancel a non-bootstrap process's thread")
	}
}

func TestValidateInvariantsDetectsParentChildMismatch(t *testing.T) {
	Configure(64, 16)
	parent, err := Create("parent", nil)
	if err != nil {
		t.Fatalf("Create parent: %v", err)
	}
	child, err := Create("child", parent)
	if err != nil {
		t.Fatalf("Create child: %v", err)
	}

	if err := ValidateInvariants(); err != nil {
		t.Fatalf("ValidateInvariants on a consistent tree: %v", err)
	}

	child.Parent = nil // corrupt the link without going through Reparent

	if err := ValidateInvariants(); err == nil {
		t.Fatal("ValidateInvariants did not detect the corrupted Parent link")
	}
}

func TestCreateInvokesInstalledInvariantCheck(t *testing.T) {
	Configure(64, 16)
	var calls int
	SetInvariantCheck(func() { calls++ })
	defer SetInvariantCheck(nil)

	if _, err := Create("p", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if calls != 1 {
		t.Fatalf("invariant check ran %d times on Create, want 1", calls)
	}
}

// bootstrapReservedForTest wraps bootstrapReserved, returning the already
// registered process instead of panicking if the pid was reserved by an
// earlier test in this binary (idle/init are process-global singletons by
// design).
func bootstrapReservedForTest(t *testing.T, pid int, name string, parent *Process) *Process {
	t.Helper()
	if p, ok := Lookup(pid); ok {
		return p
	}
	return bootstrapReserved(pid, name, parent)
}
