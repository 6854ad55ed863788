package proc

import "github.com/northernlights/weenix-go/internal/errno"

// pidPool is a bitmap free-list allocator for process ids, bounded at
// PROC_MAX_COUNT. spec.md §9 flags the source's linear-scan-with-wrap
// allocator and suggests "a higher-quality implementation is a small bitmap
// free-list" as the idiomatic replacement; this is that replacement, with
// a search cursor so repeated allocation after churn doesn't always rescan
// from pid 0.
type pidPool struct {
	inUse  []bool
	cursor int
}

func newPidPool(max int) *pidPool {
	return &pidPool{inUse: make([]bool, max)}
}

// alloc returns the first free pid at or after the cursor, wrapping around
// and skipping the reserved low pids, or errno.OutOfMemory if the pool is
// exhausted. Idle and init reserve pids 0 and 1 by calling
// reserve directly during bootstrap.
func (p *pidPool) alloc() (int, error) {
	n := len(p.inUse)
	for i := 0; i < n; i++ {
		pid := (p.cursor + i) % n
		if pid < PidReservedCount {
			continue
		}
		if !p.inUse[pid] {
			p.inUse[pid] = true
			p.cursor = pid + 1
			return pid, nil
		}
	}
	return 0, errno.OutOfMemory
}

// reserve claims an exact pid for the idle/init bootstrap processes.
func (p *pidPool) reserve(pid int) {
	if pid < 0 || pid >= len(p.inUse) {
		panic("proc: reserved pid out of range")
	}
	if p.inUse[pid] {
		panic("proc: pid already reserved")
	}
	p.inUse[pid] = true
}

func (p *pidPool) free(pid int) {
	if pid < 0 || pid >= len(p.inUse) {
		panic("proc: free of out-of-range pid")
	}
	if !p.inUse[pid] {
		panic("proc: double free of pid")
	}
	p.inUse[pid] = false
}

// PidReservedCount is the number of low pids handed out by bootstrap
// (PidIdle, PidInit) before the general allocator runs.
const PidReservedCount = 2

const (
	PidIdle = 0
	PidInit = 1
)
