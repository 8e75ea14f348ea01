package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func sampleJob(id string, started time.Time) (JobRecord, []FileRecord) {
	job := JobRecord{
		ID: id, ModelID: "realesrgan-4x", FileCount: 2, DoneCount: 1,
		StartedAt: started, FinishedAt: started.Add(3 * time.Second),
	}
	files := []FileRecord{
		{JobID: id, FileIndex: 0, InputPath: "/in/a.png", OutputPath: "/out/a_4x.png",
			Status: "done", Stage: "saving", Duration: 1200 * time.Millisecond},
		{JobID: id, FileIndex: 1, InputPath: "/in/b.png",
			Status: "failed", Stage: "tiling", Error: "decode failed", Duration: 40 * time.Millisecond},
	}
	return job, files
}

func TestRecordAndReadBack(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer store.Close()

	started := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	job, files := sampleJob("job-1", started)
	if err := store.RecordJob(job, files); err != nil {
		t.Fatalf("RecordJob() error: %v", err)
	}

	jobs, err := store.RecentJobs(10)
	if err != nil {
		t.Fatalf("RecentJobs() error: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	got := jobs[0]
	if got.ID != "job-1" || got.ModelID != "realesrgan-4x" || got.FileCount != 2 || got.DoneCount != 1 {
		t.Errorf("job = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}

	back, err := store.JobFiles("job-1")
	if err != nil {
		t.Fatalf("JobFiles() error: %v", err)
	}
	if len(back) != 2 {
		t.Fatalf("got %d file records, want 2", len(back))
	}
	if back[0].Status != "done" || back[0].OutputPath != "/out/a_4x.png" {
		t.Errorf("file 0 = %+v", back[0])
	}
	if back[1].Status != "failed" || back[1].Error != "decode failed" || back[1].Stage != "tiling" {
		t.Errorf("file 1 = %+v", back[1])
	}
	if back[0].Duration != 1200*time.Millisecond {
		t.Errorf("file 0 duration = %v", back[0].Duration)
	}
}

func TestRecentJobsOrdersNewestFirst(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		job, files := sampleJob(id, base.Add(time.Duration(i)*time.Hour))
		if err := store.RecordJob(job, files); err != nil {
			t.Fatalf("RecordJob(%s) error: %v", id, err)
		}
	}

	jobs, err := store.RecentJobs(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 || jobs[0].ID != "new" || jobs[1].ID != "mid" {
		ids := make([]string, len(jobs))
		for i, j := range jobs {
			ids[i] = j.ID
		}
		t.Errorf("RecentJobs(2) = %v, want [new mid]", ids)
	}
}

func TestJobFilesUnknownJob(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.JobFiles("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("JobFiles(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer store.Close()

	job, files := sampleJob("job-x", time.Now().UTC().Truncate(time.Second))
	if err := store.RecordJob(job, files); err != nil {
		t.Fatalf("RecordJob() error: %v", err)
	}
}

func TestDuplicateJobIDRejected(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	job, files := sampleJob("dup", time.Now().UTC())
	if err := store.RecordJob(job, files); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordJob(job, files); err == nil {
		t.Error("expected primary key violation for duplicate job id")
	}
}
