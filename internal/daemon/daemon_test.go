package daemon

import (
	"context"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/gomapp/trialfield/internal/store"
	"github.com/gomapp/trialfield/internal/sync"
)

func setupTestStore(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return db
}

// stubEngine records Run invocations without touching the network.
type stubEngine struct {
	mu     gosync.Mutex
	runs   int
	owners []string
	block  chan struct{}
}

func (s *stubEngine) Run(ctx context.Context, owner string) sync.Report {
	s.mu.Lock()
	s.runs++
	s.owners = append(s.owners, owner)
	block := s.block
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	return sync.Report{Started: time.Now()}
}

func (s *stubEngine) UploadTrials(ctx context.Context, owner string) sync.PhaseResult {
	return sync.PhaseResult{Phase: sync.PhaseUploadTrials}
}

func (s *stubEngine) UploadAssessments(ctx context.Context) sync.PhaseResult {
	return sync.PhaseResult{Phase: sync.PhaseUploadAssessments}
}

func (s *stubEngine) Download(ctx context.Context) sync.PhaseResult {
	return sync.PhaseResult{Phase: sync.PhaseDownload}
}

func (s *stubEngine) SetNotifier(n sync.Notifier) {}

func (s *stubEngine) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func TestSyncNow_ResolvesActiveUser(t *testing.T) {
	db := setupTestStore(t)
	user, err := db.CreateAndActivateUser("Alice Field", "alice@example.com", "alice_f")
	if err != nil {
		t.Fatalf("CreateAndActivateUser failed: %v", err)
	}

	engine := &stubEngine{}
	d, err := New(db, engine, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	d.SyncNow(context.Background())

	if engine.runCount() != 1 {
		t.Fatalf("engine ran %d times, want 1", engine.runCount())
	}
	// Ownership is attributed by username, not by the profile uuid.
	if engine.owners[0] != user.Username {
		t.Errorf("cycle ran as %q, want active username %q", engine.owners[0], user.Username)
	}
	if engine.owners[0] == user.UserUUID {
		t.Error("cycle ran with the profile uuid instead of the username")
	}
}

func TestSyncNow_SkipsWithoutActiveUser(t *testing.T) {
	db := setupTestStore(t)
	engine := &stubEngine{}
	d, err := New(db, engine, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	d.SyncNow(context.Background())

	if engine.runCount() != 0 {
		t.Errorf("engine ran %d times with no active user, want 0", engine.runCount())
	}
}

// TestSyncNow_NoOverlap tests that a tick arriving while a cycle is in
// flight is dropped instead of queueing a second cycle.
func TestSyncNow_NoOverlap(t *testing.T) {
	db := setupTestStore(t)
	if _, err := db.CreateAndActivateUser("Alice Field", "", "alice_f"); err != nil {
		t.Fatalf("CreateAndActivateUser failed: %v", err)
	}

	engine := &stubEngine{block: make(chan struct{})}
	d, err := New(db, engine, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		d.SyncNow(context.Background())
		close(done)
	}()

	// Wait for the first cycle to reach the engine.
	deadline := time.After(2 * time.Second)
	for engine.runCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first cycle never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// A second call while the first is blocked must be a no-op.
	d.SyncNow(context.Background())
	if engine.runCount() != 1 {
		t.Errorf("overlapping call started another cycle, runs = %d", engine.runCount())
	}

	close(engine.block)
	<-done
}

func TestStartStop(t *testing.T) {
	db := setupTestStore(t)
	if _, err := db.CreateAndActivateUser("Alice Field", "", "alice_f"); err != nil {
		t.Fatalf("CreateAndActivateUser failed: %v", err)
	}

	engine := &stubEngine{}
	d, err := New(db, engine, &Config{SyncInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	// The initial cycle plus at least one tick should land.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}

	if engine.runCount() < 2 {
		t.Errorf("engine ran %d times, want at least 2", engine.runCount())
	}
}

func TestNew_Validation(t *testing.T) {
	db := setupTestStore(t)

	if _, err := New(nil, &stubEngine{}, nil); err == nil {
		t.Error("New accepted a nil db")
	}
	if _, err := New(db, nil, nil); err == nil {
		t.Error("New accepted a nil engine")
	}
}
