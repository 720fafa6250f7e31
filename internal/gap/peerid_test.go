package gap_test

import (
	"testing"

	"github.com/dantte-lp/gogap/internal/gap"
)

func TestPeerIdAllocatorAllocateIsUniqueAndNonZero(t *testing.T) {
	t.Parallel()

	a := gap.NewPeerIdAllocator()
	seen := make(map[gap.PeerId]struct{})

	for i := 0; i < 1000; i++ {
		id, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if id == 0 {
			t.Fatal("Allocate returned the reserved zero id")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("Allocate returned duplicate id %v", id)
		}
		seen[id] = struct{}{}
		if !a.IsAllocated(id) {
			t.Fatalf("IsAllocated(%v) = false right after Allocate", id)
		}
	}
}

func TestPeerIdAllocatorReleaseFreesId(t *testing.T) {
	t.Parallel()

	a := gap.NewPeerIdAllocator()
	id, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	a.Release(id)
	if a.IsAllocated(id) {
		t.Fatal("IsAllocated still true after Release")
	}
}

func TestPeerIdAllocatorConcurrentAllocate(t *testing.T) {
	t.Parallel()

	a := gap.NewPeerIdAllocator()
	const goroutines = 50
	const perGoroutine = 20

	results := make(chan gap.PeerId, goroutines*perGoroutine)
	errs := make(chan error, goroutines*perGoroutine)

	for g := 0; g < goroutines; g++ {
		go func() {
			for i := 0; i < perGoroutine; i++ {
				id, err := a.Allocate()
				if err != nil {
					errs <- err
					continue
				}
				results <- id
			}
		}()
	}

	seen := make(map[gap.PeerId]struct{})
	for i := 0; i < goroutines*perGoroutine; i++ {
		select {
		case err := <-errs:
			t.Fatalf("Allocate: %v", err)
		case id := <-results:
			if _, dup := seen[id]; dup {
				t.Fatalf("concurrent Allocate produced duplicate id %v", id)
			}
			seen[id] = struct{}{}
		}
	}
}
