package model

import (
	"testing"
	"time"
)

func TestCloneIsDeep(t *testing.T) {
	orig := UploadItem{ID: "a", Genres: []string{"Rock", "Jazz"}}
	cp := orig.Clone()

	cp.Genres[0] = "Pop"
	if orig.Genres[0] != "Rock" {
		t.Fatal("Clone shares the genre slice with the original")
	}
}

func TestFilterPersistable(t *testing.T) {
	items := []UploadItem{
		{ID: "1", Status: StatusPending},
		{ID: "2", Status: StatusUploading},
		{ID: "3", Status: StatusComplete},
		{ID: "4", Status: StatusFailed},
		{ID: "5", Status: StatusPaused},
	}

	got := FilterPersistable(items)
	if len(got) != 3 {
		t.Fatalf("kept %d items, want 3", len(got))
	}
	for _, it := range got {
		switch it.Status {
		case StatusUploading, StatusComplete:
			t.Fatalf("item %s with status %s must not be persisted", it.ID, it.Status)
		}
	}
}

func TestPersistedQueueStaleBoundary(t *testing.T) {
	now := time.Now()
	exactly := PersistedQueue{SavedAt: now.Add(-MaxSnapshotAge)}
	if exactly.Stale(now) {
		t.Fatal("snapshot exactly at the age limit should still load")
	}
}
