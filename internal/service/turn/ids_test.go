package turn

import (
	"strconv"
	"strings"
	"sync"
	"testing"
)

func TestGenerator_Next(t *testing.T) {
	gen := NewGenerator()

	if id := gen.Next("sess-123"); id != "sess-123-turn-1" {
		t.Errorf("expected 'sess-123-turn-1', got %s", id)
	}
	if id := gen.Next("sess-123"); id != "sess-123-turn-2" {
		t.Errorf("expected 'sess-123-turn-2', got %s", id)
	}
}

func TestGenerator_ThreadSafety(t *testing.T) {
	gen := NewGenerator()
	numGoroutines := 100
	perGoroutine := 10

	var wg sync.WaitGroup
	results := make(chan string, numGoroutines*perGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				results <- gen.Next("sess")
			}
		}()
	}

	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for id := range results {
		if seen[id] {
			t.Errorf("duplicate turn ID generated: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != numGoroutines*perGoroutine {
		t.Errorf("expected %d unique IDs, got %d", numGoroutines*perGoroutine, len(seen))
	}
}

func TestGenerator_CounterMonotonic(t *testing.T) {
	gen := NewGenerator()

	var prev uint64
	for i := 0; i < 100; i++ {
		id := gen.Next("sess")
		n, err := strconv.ParseUint(id[strings.LastIndex(id, "-")+1:], 10, 64)
		if err != nil {
			t.Fatalf("failed to parse turn ID: %s", id)
		}
		if n <= prev {
			t.Errorf("counter not monotonic: %d <= %d", n, prev)
		}
		prev = n
	}
}
