// Package proc implements process and thread lifecycle: pid allocation,
// the parent/child tree, zombie reaping via waitpid, and reparenting
// orphans to init — spec.md §3.
package proc

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/northernlights/weenix-go/internal/errno"
	"github.com/northernlights/weenix-go/internal/file"
	"github.com/northernlights/weenix-go/internal/metrics"
	"github.com/northernlights/weenix-go/internal/sched"
	"github.com/northernlights/weenix-go/internal/vfs"
)

// init wires sched's generic "a thread woke up and discovers it was
// cancelled while asleep" checkpoint (spec.md §4.1/§5) into doExit. A
// thread can hit this checkpoint anywhere it calls a blocking sched
// primitive, deep inside arbitrary call frames — unlike the top-level
// cancellation-before-first-run case Thread.run handles directly, doExit
// returning here would leave the rest of that call stack still running on
// a goroutine that is supposed to be dead. runtime.Goexit terminates it
// unconditionally right after doExit's bookkeeping and handoff.
func init() {
	sched.SetCancelExitHook(func(r sched.Runnable) {
		t := r.(*Thread)
		doExit(t, t.Retval())
		runtime.Goexit()
	})
}

// ProcState is a process's coarse lifecycle state, per spec.md §3.
type ProcState int

const (
	Running ProcState = iota
	Dead                // all threads exited, zombie, waiting to be reaped
)

// Process is a Weenix-style process: a pid, a place in the parent/child
// tree, a thread group, an fd table, and a working directory. Unlike a
// Unix process it is not itself schedulable — its Thread(s) are.
type Process struct {
	Pid  int
	Name string

	mu       sync.Mutex
	Parent   *Process
	children list[*Process]
	parentLN *listNode[*Process]

	threads list[*Thread]

	waitQueue sched.WaitQueue // parent blocks here in Waitpid

	state      ProcState
	exitStatus int

	Files *file.Table
	Cwd   *vfs.Vnode
}

var (
	procsMu sync.Mutex
	procs   = map[int]*Process{}
	pids    = newPidPool(128)
	nfiles  = 32

	initProc *Process
	idleProc *Process

	invariantCheck func()
)

// SetInvariantCheck installs f to run after every process-list mutation
// (Create, procExit, Reparent, and a successful reap in Waitpid), the Go
// analogue of gcsfuse's checkInvariants running under its
// syncutil.InvariantMutex. internal/kernel.Bootstrap installs this from
// conf.Debug.InvariantPolicy; nil (the default) costs nothing. f must not
// itself hold procsMu or any Process's mu — it always runs after the
// mutation's own locks have been released.
func SetInvariantCheck(f func()) { invariantCheck = f }

func checkInvariants() {
	if invariantCheck != nil {
		invariantCheck()
	}
}

// ValidateInvariants reports the first process-list consistency violation
// found: more live pids than the configured PROC_MAX_COUNT, or a process
// whose parent doesn't agree it is one of that parent's children. It is
// the check internal/kernel.Bootstrap wires into SetInvariantCheck.
func ValidateInvariants() error {
	procsMu.Lock()
	all := make([]*Process, 0, len(procs))
	for _, p := range procs {
		all = append(all, p)
	}
	capacity := len(pids.inUse)
	procsMu.Unlock()

	if len(all) > capacity {
		return fmt.Errorf("proc: %d live processes exceeds configured capacity %d", len(all), capacity)
	}

	for _, p := range all {
		for _, c := range p.Children() {
			if c.Parent != p {
				return fmt.Errorf("proc: pid %d is listed as a child of pid %d but its own Parent field disagrees", c.Pid, p.Pid)
			}
		}
	}
	return nil
}

// Configure sets the process/file-table limits used by every subsequently
// created process. It must be called before Bootstrap, from cfg's
// validated configuration — spec.md §9's PROC_MAX_COUNT/NFILES knobs.
func Configure(maxProcs, filesPerProc int) {
	procsMu.Lock()
	defer procsMu.Unlock()
	pids = newPidPool(maxProcs)
	nfiles = filesPerProc
}

func newProcessLocked(pid int, name string, parent *Process) *Process {
	p := &Process{
		Pid:    pid,
		Name:   name,
		Parent: parent,
		Files:  file.NewTable(nfiles),
	}
	procs[pid] = p
	if parent != nil {
		p.parentLN = parent.children.PushBack(p)
	}
	return p
}

// Create allocates a pid and constructs a new, thread-less process as a
// child of parent. The caller is responsible for giving it a Cwd and for
// calling NewThread to give it something to run.
func Create(name string, parent *Process) (*Process, error) {
	procsMu.Lock()
	pid, err := pids.alloc()
	if err != nil {
		procsMu.Unlock()
		return nil, err
	}
	p := newProcessLocked(pid, name, parent)
	n := liveProcessCountLocked()
	procsMu.Unlock()

	metrics.RecordLiveProcesses(n)
	checkInvariants()
	return p, nil
}

// liveProcessCountLocked counts processes that have not yet gone Dead.
// Callers must hold procsMu.
func liveProcessCountLocked() int {
	n := 0
	for _, p := range procs {
		if p.State() != Dead {
			n++
		}
	}
	return n
}

// bootstrapReserved constructs idle or init with a hand-assigned pid,
// mirroring proc.c's special-casing of PID_IDLE and PID_INIT before the
// general allocator is used for anything else (spec.md §13/original
// Weenix kernel sources).
func bootstrapReserved(pid int, name string, parent *Process) *Process {
	procsMu.Lock()
	defer procsMu.Unlock()
	pids.reserve(pid)
	return newProcessLocked(pid, name, parent)
}

// Lookup finds a live or zombie process by pid.
func Lookup(pid int) (*Process, bool) {
	procsMu.Lock()
	defer procsMu.Unlock()
	p, ok := procs[pid]
	return p, ok
}

// Idle and Init return the two bootstrap processes once BootstrapIdle and
// BootstrapInit have run.
func Idle() *Process { return idleProc }
func Init() *Process { return initProc }

// BootstrapIdle constructs pid 0 with no parent and one thread running fn.
// Per spec.md §6, idle never exits; it is the thread the boot goroutine's
// own call to sched.Switch eventually lands back on whenever nothing else
// is runnable.
func BootstrapIdle(fn EntryFunc) *Thread {
	idleProc = bootstrapReserved(PidIdle, "idle", nil)
	return NewThread(idleProc, fn, nil, nil)
}

// BootstrapInit constructs pid 1, parented to idle only so the tree has a
// single root; init is reparented to itself implicitly by being the
// fallback target of Reparent.
func BootstrapInit(fn EntryFunc) *Thread {
	initProc = bootstrapReserved(PidInit, "init", idleProc)
	return NewThread(initProc, fn, nil, nil)
}

// NumChildren reports p's live-or-zombie child count, used by init's
// proc_cleanup spin-wait and by tests.
func (p *Process) NumChildren() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.children.Len()
}

func (p *Process) Children() []*Process {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.children.Values()
}

func (p *Process) State() ProcState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ExitStatus is valid once State() is Dead.
func (p *Process) ExitStatus() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitStatus
}

// NewProcessThread attaches an additional thread to an already-running
// process (spec.md's thread groups are not otherwise exercised by this
// kernel's single-threaded processes, but the hook is kept for parity).
func (p *Process) NewProcessThread(entry EntryFunc, arg1, arg2 any) *Thread {
	return NewThread(p, entry, arg1, arg2)
}

// doExit is called by a Thread's own goroutine (Thread.run) the moment its
// entry function returns or it discovers it was cancelled before ever
// running. It is the Go analogue of kthread_exit folded together with the
// last-thread-standing half of proc_cleanup (spec.md §3's "Thread
// Lifecycle" and "Process Lifecycle" sections, which the source keeps as
// two separate functions only because C can't express "the last thread to
// exit drives process cleanup" as cleanly).
func doExit(t *Thread, status int) {
	t.SetRetval(status)
	t.SetState(sched.Exited)

	p := t.Proc
	p.mu.Lock()
	p.threads.Remove(t.procLN)
	last := p.threads.Len() == 0
	p.mu.Unlock()

	if last {
		procExit(p, status)
	}

	sched.Exit()
}

// procExit runs once, when a process's last thread has exited: it records
// the exit status, reparents any children to init, and wakes whichever
// parent might be sitting in Waitpid, per spec.md §3's reaping and
// reparenting invariants.
//
// If p is init, it first spin-wait-yields until it has no children of its
// own left, per spec.md §4.3's proc_cleanup special case (unconditional at
// the top of the source's proc_cleanup,
// _examples/original_source/Weenix/weenix/kernel/proc/proc.c:171-186): init
// must never go Dead while any descendant still exists, regardless of
// whether whatever thread function init happened to run already looped on
// Waitpid(-1) itself. MakeRunnable-ing the current thread before each
// Switch is what makes this a yield rather than a one-shot park: Switch
// never re-enqueues its caller on its own (spec.md §4.2).
func procExit(p *Process, status int) {
	if p == initProc {
		for p.NumChildren() > 0 {
			sched.MakeRunnable(sched.Current())
			sched.Switch()
		}
	}

	children := p.Children()
	for _, c := range children {
		Reparent(c, initProc)
	}

	p.mu.Lock()
	p.state = Dead
	p.exitStatus = status
	p.mu.Unlock()

	procsMu.Lock()
	n := liveProcessCountLocked()
	procsMu.Unlock()
	metrics.RecordLiveProcesses(n)
	checkInvariants()

	if p.Parent != nil {
		sched.BroadcastOn(&p.Parent.waitQueue)
	}
}

// Reparent moves child from its current parent to newParent, per spec.md
// §3's "orphans are reparented to init" invariant. It is also used
// directly by procExit.
func Reparent(child *Process, newParent *Process) {
	child.mu.Lock()
	oldParent := child.Parent
	child.mu.Unlock()

	if oldParent != nil {
		oldParent.mu.Lock()
		oldParent.children.Remove(child.parentLN)
		oldParent.mu.Unlock()
	}

	child.mu.Lock()
	child.Parent = newParent
	child.mu.Unlock()

	if newParent != nil {
		newParent.mu.Lock()
		child.parentLN = newParent.children.PushBack(child)
		newParent.mu.Unlock()
	}

	checkInvariants()
}

// Waitpid blocks the calling thread's process until a child matching pid
// (or any child, if pid < 0) becomes a zombie, then reaps it: removes it
// from the tree, frees its pid, and returns its (pid, exit status). It
// returns errno.NoChild immediately if the process has no matching
// children at all.
func Waitpid(p *Process, pid int) (int, int, error) {
	for {
		p.mu.Lock()
		kids := p.children.Values()
		p.mu.Unlock()

		if len(kids) == 0 {
			return 0, 0, errno.NoChild
		}

		var match *Process
		found := false
		for _, c := range kids {
			if pid >= 0 && c.Pid != pid {
				continue
			}
			found = true
			if c.State() == Dead {
				match = c
				break
			}
		}
		if pid >= 0 && !found {
			return 0, 0, errno.NoChild
		}

		if match != nil {
			p.mu.Lock()
			p.children.Remove(match.parentLN)
			p.mu.Unlock()

			procsMu.Lock()
			delete(procs, match.Pid)
			pids.free(match.Pid)
			procsMu.Unlock()
			checkInvariants()

			return match.Pid, match.ExitStatus(), nil
		}

		sched.SleepOn(&p.waitQueue)
	}
}

// cancelAllThreads cancels every thread in p, the mechanism behind a
// process killing itself or another process, spec.md §3's
// proc_kill/proc_kill_all.
func (p *Process) cancelAllThreads() {
	p.mu.Lock()
	threads := p.threads.Values()
	p.mu.Unlock()

	for _, t := range threads {
		sched.Cancel(t)
	}
}

// Kill cancels every thread of p so that each, the next time it reaches a
// cancellation checkpoint (a cancellable sleep, or never having run at
// all), exits with status. Does not block for the process to actually
// finish dying — the caller is expected to Waitpid if it cares.
func Kill(p *Process, status int) {
	p.mu.Lock()
	for _, t := range p.threads.Values() {
		t.retval.Store(int32(status))
	}
	p.mu.Unlock()
	p.cancelAllThreads()
}

// KillAll cancels every thread of every process in the system except
// idle/init, per spec.md §3's proc_kill_all (used for emergency shutdown
// paths); idle and init are left to the bootstrap sequence's own halt.
func KillAll(status int) {
	procsMu.Lock()
	all := make([]*Process, 0, len(procs))
	for _, p := range procs {
		all = append(all, p)
	}
	procsMu.Unlock()

	for _, p := range all {
		if p == idleProc || p == initProc {
			continue
		}
		Kill(p, status)
	}
}
