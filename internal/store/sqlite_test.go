package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/yourorg/trainlink/pkg/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trainlink.db"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	run, err := s.StartRun("100101_2_1700000000", 100101, 2, 1700000000, "/tmp/a.gz")
	if err != nil {
		t.Fatal(err)
	}
	if run.ID == "" || run.Status != types.RunRunning {
		t.Fatalf("unexpected run %+v", run)
	}

	if err := s.UpdateRunStatus(run.ID, types.RunEnded); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.RunEnded || got.EndedAt == nil {
		t.Fatalf("expected ended run with end time, got %+v", got)
	}

	again, err := s.StartRun("100101_2_1700000000", 100101, 2, 1700000000, "/tmp/a.gz")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != run.ID {
		t.Fatalf("expected same run for same key, got %s vs %s", again.ID, run.ID)
	}
	if again.Status != types.RunRunning || again.EndedAt != nil {
		t.Fatalf("expected run reopened, got %+v", again)
	}

	runs, err := s.ListRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}

	if err := s.DeleteRun(run.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRun(run.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows after delete, got %v", err)
	}
}

func TestRunIDsIncrement(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	a, err := s.StartRun("a", 1, 1, 1, "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.StartRun("b", 2, 1, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Fatalf("expected distinct ids")
	}
	if b.ID[len(b.ID)-3:] != "002" {
		t.Fatalf("expected second id to end in 002, got %s", b.ID)
	}
}

func TestSkippedFiles(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if ok, err := s.IsSkipped("/c/1.msgpack"); err != nil || ok {
		t.Fatalf("expected not skipped, got %v %v", ok, err)
	}
	if err := s.AddSkipped("/c/1.msgpack", "remove failed"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSkipped("/c/1.msgpack", "remove failed again"); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.IsSkipped("/c/1.msgpack"); err != nil || !ok {
		t.Fatalf("expected skipped, got %v %v", ok, err)
	}
	list, err := s.ListSkipped()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Reason != "remove failed again" {
		t.Fatalf("unexpected skip list %+v", list)
	}
}

func TestConcurrentSkips(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.AddSkipped(filepath.Join("c", string(rune('a'+i))), "x")
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.ListRuns()
		}()
	}
	wg.Wait()

	list, err := s.ListSkipped()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) == 0 {
		t.Fatalf("expected skipped files")
	}
}
