package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestNewStore(t *testing.T) {
	t.Run("creates store with default config", func(t *testing.T) {
		store := NewStore(DefaultStoreConfig(), time.Now())
		if store.cap != 100 {
			t.Errorf("expected capacity 100, got %d", store.cap)
		}
	})

	t.Run("handles zero capacity by defaulting to 100", func(t *testing.T) {
		store := NewStore(StoreConfig{HistoryCapacity: 0}, time.Now())
		if store.cap != 100 {
			t.Errorf("expected default capacity 100, got %d", store.cap)
		}
	})
}

func TestStore_JobMetrics(t *testing.T) {
	store := NewStore(DefaultStoreConfig(), time.Now())

	records := []JobRecord{
		{ID: "1", Model: "cunet", Status: JobStatusDone, Duration: 2 * time.Second, OutputPixels: 4_000_000},
		{ID: "2", Model: "cunet", Status: JobStatusDone, Duration: 2 * time.Second, OutputPixels: 4_000_000},
		{ID: "3", Model: "cunet", Status: JobStatusFailed, Duration: time.Second, ErrorMsg: "boom"},
		{Model: "cunet", Status: JobStatusSkipped},
		{ID: "4", Model: "upconv7-photo", Status: JobStatusCancelled},
	}
	for _, r := range records {
		store.RecordJob(r)
	}

	m := store.JobMetrics()
	if m.TotalProcessed != 5 || m.Done != 2 || m.Failed != 1 || m.Skipped != 1 || m.Cancelled != 1 {
		t.Errorf("totals = %+v", m)
	}

	cunet := m.ByModel["cunet"]
	if cunet == nil {
		t.Fatal("missing cunet metrics")
	}
	if cunet.Count != 4 {
		t.Errorf("Count = %d, want 4", cunet.Count)
	}
	if got := cunet.SuccessRate; got < 66.6 || got > 66.7 {
		t.Errorf("SuccessRate = %v, want 66.67", got)
	}
	if cunet.AvgDuration != 2*time.Second {
		t.Errorf("AvgDuration = %v, want 2s", cunet.AvgDuration)
	}
	if cunet.MegapixelsPerSecond != 2 {
		t.Errorf("MegapixelsPerSecond = %v, want 2", cunet.MegapixelsPerSecond)
	}

	photo := m.ByModel["upconv7-photo"]
	if photo == nil || photo.SuccessRate != 0 || photo.AvgDuration != 0 {
		t.Errorf("upconv7-photo = %+v, want zero rates", photo)
	}
}

func TestStore_RecentJobs(t *testing.T) {
	store := NewStore(StoreConfig{HistoryCapacity: 3}, time.Now())

	if got := store.RecentJobs(5); len(got) != 0 {
		t.Errorf("empty store returned %d jobs", len(got))
	}

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		store.RecordJob(JobRecord{ID: id, Status: JobStatusDone})
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"wraps to newest three", 10, []string{"c", "d", "e"}},
		{"limited", 2, []string{"d", "e"}},
		{"zero", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := store.RecentJobs(tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("job %d = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}

	if m := store.JobMetrics(); m.TotalProcessed != 5 {
		t.Errorf("TotalProcessed = %d, want 5 after wrap", m.TotalProcessed)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore(StoreConfig{HistoryCapacity: 10}, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.RecordJob(JobRecord{Model: "cunet", Status: JobStatusDone, Duration: time.Millisecond})
				_ = store.JobMetrics()
				_ = store.RecentJobs(5)
			}
		}()
	}
	wg.Wait()

	if m := store.JobMetrics(); m.Done != 800 {
		t.Errorf("Done = %d, want 800", m.Done)
	}
}

func TestStore_Uptime(t *testing.T) {
	store := NewStore(DefaultStoreConfig(), time.Now().Add(-time.Minute))
	if store.Uptime() < time.Minute {
		t.Errorf("Uptime() = %v, want at least 1m", store.Uptime())
	}
}
