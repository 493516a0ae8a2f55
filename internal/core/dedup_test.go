package core_test

import (
	"BossRaid/internal/core"
	"fmt"
	"testing"
)

func TestDedupCache_RecordAndSeen(t *testing.T) {
	d := core.NewDedupCache(10, 5)

	if d.Seen("sig-1") {
		t.Error("empty cache should not have seen sig-1")
	}

	d.Record("sig-1")
	if !d.Seen("sig-1") {
		t.Error("sig-1 should be seen after Record")
	}
	if got := d.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestDedupCache_DuplicateRecordIsNoop(t *testing.T) {
	d := core.NewDedupCache(10, 5)

	d.Record("sig-1")
	d.Record("sig-1")
	d.Record("sig-1")

	if got := d.Len(); got != 1 {
		t.Errorf("Len() = %d after duplicate records, want 1", got)
	}
}

func TestDedupCache_BatchEviction(t *testing.T) {
	d := core.NewDedupCache(1000, 500)

	for i := 0; i < 1000; i++ {
		d.Record(fmt.Sprintf("sig-%d", i))
	}
	if got := d.Len(); got != 1000 {
		t.Fatalf("Len() = %d at capacity, want 1000", got)
	}

	// The insert that hits capacity evicts down to the 500 most recent,
	// then adds the new key.
	d.Record("sig-1000")
	if got := d.Len(); got != 501 {
		t.Errorf("Len() = %d after eviction, want 501", got)
	}

	if d.Seen("sig-0") {
		t.Error("sig-0 should have been evicted")
	}
	if d.Seen("sig-499") {
		t.Error("sig-499 should have been evicted")
	}
	if !d.Seen("sig-500") {
		t.Error("sig-500 should survive eviction (500 most recent kept)")
	}
	if !d.Seen("sig-999") {
		t.Error("sig-999 should survive eviction")
	}
	if !d.Seen("sig-1000") {
		t.Error("sig-1000 was just recorded")
	}
}

func TestDedupCache_RetainClampedBelowCapacity(t *testing.T) {
	// retain >= capacity falls back to capacity/2.
	d := core.NewDedupCache(10, 10)

	for i := 0; i < 11; i++ {
		d.Record(fmt.Sprintf("sig-%d", i))
	}
	if got := d.Len(); got != 6 {
		t.Errorf("Len() = %d, want 6 (5 retained + 1 new)", got)
	}
}
