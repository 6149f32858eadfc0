package cmap

import (
	"sync"
	"testing"
)

func TestSetIfAbsent(t *testing.T) {
	m := New[string, *int]()
	a, b := new(int), new(int)

	if !m.SetIfAbsent("k", a) {
		t.Fatal("expected first SetIfAbsent to store")
	}
	if m.SetIfAbsent("k", b) {
		t.Fatal("expected second SetIfAbsent to refuse")
	}
	got, ok := m.Get("k")
	if !ok || got != a {
		t.Fatalf("expected stored value to stay %p, got %p", a, got)
	}
}

func TestCompareAndSwap(t *testing.T) {
	m := New[string, *int]()
	a, b, c := new(int), new(int), new(int)
	m.Set("k", a)

	if m.CompareAndSwap("k", b, c) {
		t.Fatal("swap with stale snapshot must fail")
	}
	if !m.CompareAndSwap("k", a, b) {
		t.Fatal("swap with current snapshot must succeed")
	}
	if got, _ := m.Get("k"); got != b {
		t.Fatalf("expected %p after swap, got %p", b, got)
	}
	if m.CompareAndSwap("missing", a, b) {
		t.Fatal("swap on absent key must fail")
	}
}

func TestCompareAndDelete(t *testing.T) {
	m := New[string, *int]()
	a, b := new(int), new(int)
	m.Set("k", a)

	if m.CompareAndDelete("k", b) {
		t.Fatal("delete with stale snapshot must fail")
	}
	if !m.CompareAndDelete("k", a) {
		t.Fatal("delete with current snapshot must succeed")
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty map, len=%d", m.Len())
	}
}

func TestUpsertReportsCreation(t *testing.T) {
	m := New[string, *int]()
	if !m.Upsert("k", new(int)) {
		t.Fatal("first upsert should report created")
	}
	if m.Upsert("k", new(int)) {
		t.Fatal("second upsert should report replaced")
	}
}

func TestRangeAllowsReentry(t *testing.T) {
	m := New[string, *int]()
	m.Set("a", new(int))
	m.Set("b", new(int))

	var visited int
	m.Range(func(key string, _ *int) bool {
		visited++
		// reentrant calls must not deadlock
		m.Get(key)
		m.Set(key+"-copy", new(int))
		return true
	})
	if visited != 2 {
		t.Fatalf("expected 2 visits, got %d", visited)
	}
	if m.Len() != 4 {
		t.Fatalf("expected 4 entries after range, got %d", m.Len())
	}
}

func TestConcurrentSetIfAbsentSingleWinner(t *testing.T) {
	m := New[int, *int]()
	const workers = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.SetIfAbsent(1, new(int)) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
