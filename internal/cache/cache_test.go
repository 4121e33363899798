package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestCacheFIFOEviction(t *testing.T) {
	c := New(3, time.Minute)

	for i := 0; i < 4; i++ {
		c.Put(NewKey(KindCompletion, fmt.Sprintf("prompt %d", i), ""), []byte{byte(i)})
	}

	// Exactly the first-inserted key is gone.
	if _, ok := c.Get(NewKey(KindCompletion, "prompt 0", "")); ok {
		t.Fatalf("expected prompt 0 evicted")
	}
	for i := 1; i < 4; i++ {
		if _, ok := c.Get(NewKey(KindCompletion, fmt.Sprintf("prompt %d", i), "")); !ok {
			t.Fatalf("expected prompt %d resident", i)
		}
	}
}

func TestCacheReadDoesNotRefreshAge(t *testing.T) {
	c := New(2, time.Minute)

	c.Put(NewKey(KindCompletion, "a", ""), []byte("1"))
	c.Put(NewKey(KindCompletion, "b", ""), []byte("2"))

	// Access the oldest; FIFO must still evict it.
	if _, ok := c.Get(NewKey(KindCompletion, "a", "")); !ok {
		t.Fatalf("expected a resident")
	}
	c.Put(NewKey(KindCompletion, "c", ""), []byte("3"))

	if _, ok := c.Get(NewKey(KindCompletion, "a", "")); ok {
		t.Fatalf("expected a evicted despite recent read")
	}
	if _, ok := c.Get(NewKey(KindCompletion, "b", "")); !ok {
		t.Fatalf("expected b resident")
	}
}

func TestCacheTTLTreatedAsAbsent(t *testing.T) {
	c := New(10, time.Minute)
	now := time.Unix(1000, 0)
	c.clock = func() time.Time { return now }

	key := NewKey(KindSynthesis, "hello there", "rate=0%")
	c.Put(key, []byte("audio"))

	now = now.Add(59 * time.Second)
	if _, ok := c.Get(key); !ok {
		t.Fatalf("expected entry before TTL")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected entry absent after TTL")
	}
	// Still resident until capacity pressure.
	if c.Len() != 1 {
		t.Fatalf("expected 1 resident entry, got %d", c.Len())
	}
}

func TestCacheKeyNormalization(t *testing.T) {
	c := New(10, time.Minute)
	c.Put(NewKey(KindCompletion, "  hello   world ", ""), []byte("x"))
	if _, ok := c.Get(NewKey(KindCompletion, "hello world", "")); !ok {
		t.Fatalf("expected normalized keys to match")
	}
}

func TestCacheOptionsSeparateEntries(t *testing.T) {
	c := New(10, time.Minute)
	c.Put(NewKey(KindSynthesis, "hi", "voice=luna"), []byte("a"))
	c.Put(NewKey(KindSynthesis, "hi", "voice=alice"), []byte("b"))

	v, ok := c.Get(NewKey(KindSynthesis, "hi", "voice=luna"))
	if !ok || string(v) != "a" {
		t.Fatalf("expected luna entry, got %q ok=%v", v, ok)
	}
	v, ok = c.Get(NewKey(KindSynthesis, "hi", "voice=alice"))
	if !ok || string(v) != "b" {
		t.Fatalf("expected alice entry, got %q ok=%v", v, ok)
	}
}
