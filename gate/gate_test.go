package gate

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAwaitBlocksUntilInitCompletes(t *testing.T) {
	release := make(chan struct{})
	g := New(func() error {
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- g.Await() }()

	select {
	case <-done:
		t.Fatal("Await returned before init completed")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Await() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Await did not unblock after init completed")
	}
}

func TestFailedInitIsTerminal(t *testing.T) {
	wantErr := errors.New("init failed")
	g := New(func() error { return wantErr })

	for i := 0; i < 3; i++ {
		if err := g.Await(); err != wantErr {
			t.Fatalf("Await() call %d = %v, want %v", i, err, wantErr)
		}
	}
}

func TestConcurrentAwaitersAllSeeSameResult(t *testing.T) {
	g := New(func() error { return nil })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Await(); err != nil {
				t.Errorf("Await() = %v, want nil", err)
			}
		}()
	}
	wg.Wait()
}
