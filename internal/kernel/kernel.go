// Package kernel reproduces kmain.c's bootstrap order — proc init, vfs
// init, driver init, idle, interrupts enabled, waitpid, halt — as a single
// Bootstrap call, per spec.md §6 and SPEC_FULL.md §13.
package kernel

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/northernlights/weenix-go/cfg"
	"github.com/northernlights/weenix-go/internal/errno"
	"github.com/northernlights/weenix-go/internal/file"
	"github.com/northernlights/weenix-go/internal/logger"
	"github.com/northernlights/weenix-go/internal/metrics"
	"github.com/northernlights/weenix-go/internal/proc"
	"github.com/northernlights/weenix-go/internal/sched"
	"github.com/northernlights/weenix-go/internal/vfs"
	"github.com/northernlights/weenix-go/internal/vfs/devfs"
	"github.com/northernlights/weenix-go/internal/vfs/ramfs"
)

// InstanceID is a fresh boot-instance identifier, logged once at the start
// of Bootstrap the way gcsfuse tags a mount session for log correlation
// (SPEC_FULL.md §12). It carries no semantics of its own.
var InstanceID = uuid.New

// Root is the mounted filesystem root, set once Bootstrap has run. Tests
// that only need a root vnode should build their own with ramfs.New
// instead of depending on kernel package state.
var Root *vfs.Vnode

// Bootstrap brings the kernel up and runs it to completion:
//
//  1. proc init — configure proc's process/fd-table limits from conf.
//  2. vfs init — mount an empty ramfs as root.
//  3. driver init — mknod /dev/null, /dev/zero, /dev/tty0 against the
//     device-driver table (internal/vfs/devfs), per spec.md §6.
//  4. idle — construct pid 0, whose thread spawns init and then idles.
//  5. interrupts enabled — nothing to do explicitly: sched's run queue is
//     already live the moment MakeRunnable is first called.
//  6. init runs entry, forks/execs whatever workload it was handed, then
//     waitpid-reaps every descendant before exiting.
//  7. halt — Bootstrap returns init's exit status once idle has reaped
//     init and signalled the goroutine that called Bootstrap.
//
// entry is the function init runs as its first and only thread; it is the
// kernel's analogue of the first user program a real Weenix boots.
func Bootstrap(conf cfg.Config, entry proc.EntryFunc) (int, error) {
	id := InstanceID()
	logger.Infof("kernel: boot %s (%s)", id, conf.AppName)

	if err := metrics.Register(); err != nil {
		return 0, fmt.Errorf("kernel: registering metrics: %w", err)
	}
	sched.SetSwitchHook(func(sched.Runnable) { metrics.RecordContextSwitch() })
	installInvariantChecks(conf.Debug)

	proc.Configure(conf.Kernel.ProcMaxCount, conf.Kernel.NFiles)

	root := ramfs.New()
	Root = root

	if err := mountDevices(root); err != nil {
		return 0, fmt.Errorf("kernel: mounting /dev: %w", err)
	}

	idleDone := make(chan struct{})
	var initStatus int
	var initErr error

	idleEntry := func(_, _ any) int {
		initT := proc.BootstrapInit(func(a1, a2 any) int {
			p := proc.Init()
			p.Cwd = root.Ref()

			status := entry(a1, a2)

			for {
				_, _, err := proc.Waitpid(p, -1)
				if err == errno.NoChild {
					break
				}
				if err != nil {
					initErr = err
					break
				}
			}
			return status
		})
		sched.MakeRunnable(initT)

		_, status, err := proc.Waitpid(proc.Idle(), initT.Proc.Pid)
		if err != nil {
			initErr = err
		} else {
			initStatus = status
		}
		close(idleDone)

		// Idle never exits (spec.md §6): blocking here for good keeps its
		// thread goroutine from ever reaching doExit/sched.Exit, which would
		// otherwise race the next Bootstrap call's fresh scheduler state.
		select {}
	}

	idleT := proc.BootstrapIdle(idleEntry)
	sched.MakeRunnable(idleT)
	// The boot goroutine is not a kernel thread: hand the CPU to idle
	// without parking on whatever an earlier Bootstrap left as current.
	sched.Exit()
	<-idleDone

	logger.Infof("kernel: halt (init exit status %d)", initStatus)
	return initStatus, initErr
}

// installInvariantChecks wires conf.Debug into proc.SetInvariantCheck and
// file.SetInvariantCheck, the debug-mode verification gcsfuse's
// syncutil.InvariantMutex runs under fs.checkInvariants: every
// process-list and fd-table mutation re-validates internal consistency,
// either panicking or logging according to conf.Debug.InvariantPolicy.
// LogMutex additionally traces every check that runs, violated or not,
// useful for narrowing down which mutation a violation followed.
func installInvariantChecks(d cfg.DebugConfig) {
	run := func(name string, validate func() error) {
		if d.LogMutex {
			logger.Debugf("kernel: invariant check: %s", name)
		}
		if err := validate(); err != nil {
			if d.InvariantPolicy == cfg.InvariantPanic {
				panic(err)
			}
			logger.Errorf("kernel: invariant violated: %v", err)
		}
	}

	proc.SetInvariantCheck(func() {
		run("process list", proc.ValidateInvariants)
	})
	file.SetInvariantCheck(func(t *file.Table) {
		run("fd table", func() error { return file.ValidateInvariants(t) })
	})
}

// mountDevices populates /dev with the character devices devfs knows how
// to drive, per spec.md §6's bootstrap and SPEC_FULL.md §13.
func mountDevices(root *vfs.Vnode) error {
	if root.Ops.Mkdir == nil {
		return errno.NotDir
	}
	if err := root.Ops.Mkdir(root, "dev"); err != nil {
		return err
	}
	devVn, err := root.Ops.Lookup(root, "dev")
	if err != nil {
		return err
	}
	defer devVn.Put()

	for name, dev := range map[string]vfs.DevID{
		"null": devfs.DevNull,
		"zero": devfs.DevZero,
		"tty0": devfs.DevTTY0,
	} {
		if err := devVn.Ops.Mknod(devVn, name, vfs.ModeCharDevice, dev); err != nil {
			return err
		}
	}
	return nil
}
