package lock

import (
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Ning0612/Syncenum/internal/testutil"
)

func TestNewDirLock(t *testing.T) {
	if _, err := NewDirLock(""); err == nil {
		t.Error("expected error for empty directory")
	}

	dir := testutil.TempDir(t)
	lock, err := NewDirLock(dir + "/nested")
	if err != nil {
		t.Fatalf("NewDirLock failed: %v", err)
	}
	if lock.staleTimeout != DefaultStaleTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultStaleTimeout, lock.staleTimeout)
	}
	if _, err := os.Stat(dir + "/nested"); err != nil {
		t.Errorf("lock directory not created: %v", err)
	}
}

func TestAcquireRelease(t *testing.T) {
	lock, err := NewDirLock(testutil.TempDir(t))
	if err != nil {
		t.Fatalf("NewDirLock failed: %v", err)
	}

	if lock.Holder() != nil {
		t.Error("directory should be free initially")
	}

	if err := lock.Acquire("watch"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	h := lock.Holder()
	if h == nil {
		t.Fatal("expected a holder after acquire")
	}
	if h.PID != os.Getpid() || h.Command != "watch" {
		t.Errorf("holder = %+v", h)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Error("lock file still exists after release")
	}

	// Releasing twice is a no-op
	if err := lock.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}
}

// TestReacquire_UpdatesCommand checks that re-acquiring keeps ownership so a
// later Release still succeeds
func TestReacquire_UpdatesCommand(t *testing.T) {
	lock, _ := NewDirLock(testutil.TempDir(t))

	if err := lock.Acquire("enumerate"); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if err := lock.Acquire("watch"); err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}

	if h := lock.Holder(); h == nil || h.Command != "watch" {
		t.Errorf("holder = %+v, want command watch", h)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release after re-acquire failed: %v", err)
	}
}

func TestAcquire_HeldByOther(t *testing.T) {
	dir := testutil.TempDir(t)
	first, _ := NewDirLock(dir)
	second, _ := NewDirLock(dir)

	if err := first.Acquire("watch"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer first.Release()

	err := second.Acquire("watch")
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	var held *HeldError
	if !errors.As(err, &held) || held.Holder == nil || held.Holder.PID != os.Getpid() {
		t.Errorf("expected HeldError with holder info, got %v", err)
	}
}

func TestConcurrentAcquire(t *testing.T) {
	dir := testutil.TempDir(t)

	const goroutines = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired, locked := 0, 0

	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := NewDirLock(dir)
			if err != nil {
				return
			}
			<-start
			err = lock.Acquire("race")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				acquired++
			} else if errors.Is(err, ErrLocked) {
				locked++
			}
		}()
	}
	close(start)
	wg.Wait()

	if acquired != 1 {
		t.Errorf("expected exactly 1 acquire, got %d", acquired)
	}
	if locked != goroutines-1 {
		t.Errorf("expected %d lock errors, got %d", goroutines-1, locked)
	}
}

func TestStale_DeadProcess(t *testing.T) {
	lock, _ := NewDirLock(testutil.TempDir(t))

	hostname, _ := os.Hostname()
	dead := &Holder{PID: 999999, Hostname: hostname, StartTime: time.Now().Add(-time.Hour)}
	if err := lock.write(dead); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if lock.Holder() != nil {
		t.Error("dead holder should be reported as free")
	}
	if err := lock.Acquire("watch"); err != nil {
		t.Fatalf("should take over a dead holder's lock: %v", err)
	}
	defer lock.Release()
}

func TestStale_LiveProcessNeverExpires(t *testing.T) {
	dir := testutil.TempDir(t)
	lock, _ := NewDirLock(dir)
	lock.SetStaleTimeout(10 * time.Millisecond)

	if err := lock.Acquire("watch"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()
	time.Sleep(30 * time.Millisecond)

	other, _ := NewDirLock(dir)
	other.SetStaleTimeout(10 * time.Millisecond)
	if err := other.Acquire("watch"); !errors.Is(err, ErrLocked) {
		t.Errorf("live holder must not go stale, got %v", err)
	}
}

func TestStale_ForeignHostTimeout(t *testing.T) {
	lock, _ := NewDirLock(testutil.TempDir(t))
	lock.SetStaleTimeout(100 * time.Millisecond)

	foreign := &Holder{PID: 12345, Hostname: "other-host.invalid", StartTime: time.Now().Add(-time.Hour)}
	if err := lock.write(foreign); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := lock.Acquire("watch"); err != nil {
		t.Fatalf("should take over an expired foreign lock: %v", err)
	}
	defer lock.Release()

	fresh := &Holder{PID: 12345, Hostname: "other-host.invalid", StartTime: time.Now()}
	if !lock.isStale(&Holder{PID: fresh.PID, Hostname: fresh.Hostname, StartTime: time.Now().Add(-time.Hour)}) {
		t.Error("old foreign lock should be stale")
	}
	if lock.isStale(fresh) {
		t.Error("fresh foreign lock should not be stale")
	}
}

func TestRelease_TakenOver(t *testing.T) {
	lock, _ := NewDirLock(testutil.TempDir(t))
	if err := lock.Acquire("watch"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	lock.write(&Holder{PID: os.Getpid() + 1, Hostname: "x", StartTime: time.Now()})
	if err := lock.Release(); err == nil {
		t.Error("expected error when lock file was replaced")
	}
}
