package storage

import (
	"testing"
	"time"
)

func TestBuildSnapshotKey(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 4, 5, 6, 0, time.FixedZone("x", -5*3600))
	key, err := BuildSnapshotKey("sugar_spend", ts, "0123456789abcdef")
	if err != nil {
		t.Fatalf("BuildSnapshotKey() error = %v", err)
	}
	want := "datasets/sugar_spend/date=2026-02-19/snapshot-20260219T090506Z-0123456789ab.parquet"
	if key != want {
		t.Fatalf("BuildSnapshotKey() = %q, want %q", key, want)
	}
}

func TestBuildSnapshotKeyRejectsInvalidComponents(t *testing.T) {
	if _, err := BuildSnapshotKey("../etc", time.Now(), "abc"); err == nil {
		t.Fatal("expected error for invalid dataset name")
	}
	if _, err := BuildSnapshotKey("sales", time.Now(), ""); err == nil {
		t.Fatal("expected error for empty fingerprint")
	}
}
