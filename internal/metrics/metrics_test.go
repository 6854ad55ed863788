package metrics

import (
	"testing"

	"go.opencensus.io/stats/view"
)

func TestRegisterIsIdempotent(t *testing.T) {
	if err := Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := Register(); err != nil {
		t.Fatalf("second Register: %v", err)
	}
}

func TestRecordContextSwitchIncrementsCount(t *testing.T) {
	if err := Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}

	before := countRows("weenix/context_switches_total")
	RecordContextSwitch()
	RecordContextSwitch()
	after := countRows("weenix/context_switches_total")

	if after-before != 2 {
		t.Fatalf("context_switches_total increased by %d, want 2", after-before)
	}
}

func TestRecordLiveProcessesSetsGauge(t *testing.T) {
	if err := Register(); err != nil {
		t.Fatalf("Register: %v", err)
	}

	RecordLiveProcesses(5)
	rows, err := view.RetrieveData("weenix/live_processes")
	if err != nil {
		t.Fatalf("RetrieveData: %v", err)
	}
	if len(rows) == 0 {
		t.Fatal("no rows recorded for weenix/live_processes")
	}
}

func countRows(name string) int64 {
	rows, err := view.RetrieveData(name)
	if err != nil {
		return 0
	}
	var total int64
	for _, r := range rows {
		if cd, ok := r.Data.(*view.CountData); ok {
			total += cd.Value
		}
	}
	return total
}
