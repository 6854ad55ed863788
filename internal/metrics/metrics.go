// Package metrics exposes a small set of in-process counters — context
// switches, live processes, syscalls issued — using go.opencensus.io/stats
// the way the teacher's metrics package instruments gcsfuse's FUSE ops.
// There is no exporter wired up: spec.md's kernel core has no long-running
// service surface for anything to scrape (see SPEC_FULL.md §12).
package metrics

import (
	"context"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

var (
	mContextSwitches = stats.Int64("weenix/context_switches", "Number of scheduler context switches", stats.UnitDimensionless)
	mLiveProcesses   = stats.Int64("weenix/live_processes", "Number of non-zombie processes", stats.UnitDimensionless)
	mSyscalls        = stats.Int64("weenix/syscalls", "Number of syscalls dispatched", stats.UnitDimensionless)

	ctx = context.Background()
)

// Views are the aggregations registered against the above measures.
// Register installs them; callers exercising this package outside a real
// opencensus exporter pipeline (e.g. unit tests) can call it once and then
// read view.RetrieveData.
var Views = []*view.View{
	{Name: "weenix/context_switches_total", Measure: mContextSwitches, Aggregation: view.Count()},
	{Name: "weenix/live_processes", Measure: mLiveProcesses, Aggregation: view.LastValue()},
	{Name: "weenix/syscalls_total", Measure: mSyscalls, Aggregation: view.Count()},
}

func Register() error {
	return view.Register(Views...)
}

// RecordContextSwitch increments the context-switch counter. Registered
// with internal/sched.SetSwitchHook by internal/kernel's bootstrap so
// internal/sched never has to import internal/metrics directly.
func RecordContextSwitch() {
	stats.Record(ctx, mContextSwitches.M(1))
}

// RecordLiveProcesses sets the current live-process gauge.
func RecordLiveProcesses(n int) {
	stats.Record(ctx, mLiveProcesses.M(int64(n)))
}

// RecordSyscall increments the syscall counter.
func RecordSyscall() {
	stats.Record(ctx, mSyscalls.M(1))
}
