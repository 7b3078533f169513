package ids

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func TestCreateULIDIsSortable(t *testing.T) {
	first := CreateULID()
	second := CreateULID()

	if len(first) != 26 || len(second) != 26 {
		t.Fatalf("expected 26 character ids, got %q and %q", first, second)
	}
	if first >= second {
		t.Fatalf("expected monotonic ids, got %s then %s", first, second)
	}
}

func TestGeneratorUniqueUnderConcurrency(t *testing.T) {
	const (
		goroutines   = 16
		perGoroutine = 250
	)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
		gen  = NewGenerator(nil)
	)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := gen.New()
				mu.Lock()
				if _, ok := seen[id]; ok {
					t.Errorf("duplicate id generated: %s", id)
				}
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != goroutines*perGoroutine {
		t.Fatalf("expected %d unique ids, got %d", goroutines*perGoroutine, len(seen))
	}
}

func TestIssuedAt(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000).UTC()
	gen := NewGenerator(bytes.NewReader(bytes.Repeat([]byte{7}, 64)))
	gen.now = func() time.Time { return fixed }

	id := gen.New()
	issued, err := IssuedAt(id)
	if err != nil {
		t.Fatalf("IssuedAt: %v", err)
	}
	if !issued.Equal(fixed) {
		t.Fatalf("expected %s, got %s", fixed, issued)
	}

	if _, err := IssuedAt("not-a-ulid"); err == nil {
		t.Fatal("expected parse error for malformed id")
	}
}

func TestNewCorrelationID(t *testing.T) {
	if a, b := NewCorrelationID(), NewCorrelationID(); a == b {
		t.Fatalf("expected distinct correlation ids, got %s twice", a)
	}
}
