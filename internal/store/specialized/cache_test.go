package specialized

import (
	"fmt"
	"testing"

	"github.com/mikispag/dnscache/internal/engine"
)

// entry builds a distinguishable *engine.CacheEntry, the Value this
// cache actually holds once wired into internal/store.Store.
func entry(ip byte) *engine.CacheEntry {
	return &engine.CacheEntry{A4: &engine.RecordSet{A: []engine.AddrTtl{{IP: []byte{ip, ip, ip, ip}, Ttl: 60}}}}
}

func TestCache(t *testing.T) {
	const (
		get = false
		put = true
	)
	type testOp struct {
		op bool
		k  string
		v  *engine.CacheEntry
	}

	foo, fooffa := entry(1), entry(2)
	foo1, foo2, foo3, foo4, foo5 := entry(1), entry(2), entry(3), entry(4), entry(5)
	bar := entry(9)

	tests := []struct {
		name        string
		size        int
		ops         []testOp
		wantMetrics CacheMetrics
		wantErr     bool
	}{
		{
			name: "negative",
			size: -42,
			ops: []testOp{
				{get, "example.com", nil},
				{put, "example.com", foo},
				{get, "example.com", nil},
			},
		},
		{
			name: "empty",
			size: 0,
			ops: []testOp{
				{get, "example.com", nil},
				{put, "example.com", foo},
				{get, "example.com", nil},
			},
		},
		{
			name:    "put get",
			size:    1,
			wantErr: true,
			ops: []testOp{
				{get, "example.com", nil},
				{put, "example.com", foo},
				{get, "example.com", foo},
			},
			wantMetrics: CacheMetrics{HitMFA: 1, MissMFA: 1, MissLRU: 1, Miss: 1},
		},
		{
			name: "put get",
			size: 2,
			ops: []testOp{
				{get, "example.com", nil},
				{put, "example.com", foo},
				{get, "example.com", foo},
			},
			wantMetrics: CacheMetrics{MissMFA: 2, MissLRU: 1, HitLRU: 1, Miss: 1},
		},
		{
			name: "put get put get",
			size: 2,
			ops: []testOp{
				{get, "example.com", nil},
				{put, "example.com", foo},
				{get, "example.com", foo},
				{put, "cdn.example.net", fooffa},
				{get, "cdn.example.net", fooffa},
				{get, "example.com", foo},
			},
			wantMetrics: CacheMetrics{HitMFA: 1, MissMFA: 3, MissLRU: 1, HitLRU: 2, Miss: 1},
		},
		{
			name: "put put get get",
			size: 4,
			ops: []testOp{
				{put, "example.com", foo},
				{put, "cdn.example.net", fooffa},
				{get, "example.com", foo},
				{get, "cdn.example.net", fooffa},
			},
			wantMetrics: CacheMetrics{MissMFA: 2, HitLRU: 2},
		},
		{
			name: "use all store",
			size: 4,
			ops: []testOp{
				{put, "a1.example.com", foo1},
				{put, "a2.example.com", foo2},
				{put, "a3.example.com", foo3},
				{put, "a4.example.com", foo4},

				{get, "a1.example.com", foo1},
				{get, "a2.example.com", foo2},
				{get, "a3.example.com", foo3},
				{get, "a4.example.com", foo4},
			},
			wantMetrics: CacheMetrics{HitMFA: 2, MissMFA: 2, HitLRU: 2},
		},
		{
			name: "use all store check MFA",
			size: 4,
			ops: []testOp{
				{put, "a1.example.com", foo1},
				{get, "a1.example.com", foo1},
				{put, "a2.example.com", foo2},
				{put, "a3.example.com", foo3},
				{put, "a4.example.com", foo4},
				{put, "a5.example.com", foo5},

				{get, "a1.example.com", foo1},
				{get, "a2.example.com", nil},
				{get, "a3.example.com", foo3},
				{get, "a4.example.com", foo4},
				{get, "a5.example.com", foo5},
			},
			wantMetrics: CacheMetrics{
				HitMFA:              2,
				MissMFA:             4,
				HitLRU:              3,
				MissLRU:             1,
				Miss:                1,
				RecentlyEvictedMiss: 1,
			},
		},
		{
			name: "evict from MFA to LRU",
			size: 4,
			ops: []testOp{
				// Add a1 to LRU and make it a MFA candidate.
				{put, "a1.example.com", foo1},
				{get, "a1.example.com", foo1},
				{get, "a1.example.com", foo1},

				// Add a2 to LRU and make it a MFA candidate.
				{put, "a2.example.com", foo2},
				{get, "a2.example.com", foo2},
				{get, "a2.example.com", foo2},
				{get, "a2.example.com", foo2},

				// Add a3 to LRU, make it a MFA candidate, promote a1 to MFA.
				{put, "a3.example.com", foo3},
				{get, "a3.example.com", foo3},
				{get, "a3.example.com", foo3},
				{get, "a3.example.com", foo3},
				{get, "a3.example.com", foo3},

				// Add a4 to LRU, promote a2 to MFA.
				{put, "a4.example.com", foo4},

				// Cache is now full.

				// Add a5 to LRU, promote a3 to MFA, demote a1 to LRU, evict a4.
				{put, "a5.example.com", foo5},

				{get, "a1.example.com", foo1},
				{get, "a2.example.com", foo2},
				{get, "a3.example.com", foo3},
				{get, "a4.example.com", nil},
				{put, "a5.example.com", foo5},
			},
			wantMetrics: CacheMetrics{
				HitMFA:              2,
				MissMFA:             11,
				HitLRU:              10,
				MissLRU:             1,
				Miss:                1,
				RecentlyEvictedMiss: 1,
			},
		},
		{
			name: "push out of evict ring",
			size: 2,
			ops: []testOp{
				{put, "a1.example.com", bar},
				{put, "a2.example.com", bar},
				{put, "a3.example.com", bar},
				{put, "a4.example.com", bar},
				{put, "a5.example.com", bar},
				{get, "a1.example.com", nil},
			},
			wantMetrics: CacheMetrics{
				MissMFA: 1,
				MissLRU: 1,
				Miss:    1,
			},
		},
	}
	for _, tt := range tests {
		// Every test will be run with both evict metrics and without.
		evictm := true
		tester := func(t *testing.T) {
			c, err := NewCache(tt.size, evictm)
			if err != nil != tt.wantErr {
				t.Fatalf("err: got %v want %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			for k, v := range tt.ops {
				switch v.op {
				case put:
					c.Put(v.k, v.v)
				case get:
					got, ok := c.Get(v.k)
					if !ok != (v.v == nil) {
						t.Errorf("%d get(%q): got %v want %v", k, v.k, got, v.v)
						continue
					}
					if v.v != nil && got.(*engine.CacheEntry) != v.v {
						t.Errorf("%d get(%q): got %v want %v", k, v.k, got, v.v)
					}
				}
			}
			if got := c.Metrics(); got != tt.wantMetrics {
				t.Errorf("metrics: got \n%+v\nwant\n%+v", got, tt.wantMetrics)
			}
		}
		t.Run(fmt.Sprintf("%s size %d evict metrics", tt.name, tt.size), tester)
		evictm = false
		tt.wantMetrics.RecentlyEvictedMiss = 0
		t.Run(fmt.Sprintf("%s size %d", tt.name, tt.size), tester)
	}
}

func preloadCache(b *testing.B) *Cache {
	b.Helper()
	c, err := NewCache(65535, false)
	if err != nil {
		b.Fatalf("Cannot construct cache: %v", err)
	}
	for i := 0; i < 256; i++ {
		c.Put(fmt.Sprintf("h%d.example.com", i), entry(byte(i)))
	}
	b.ReportAllocs()
	b.ResetTimer()
	return c
}

func BenchmarkHit(b *testing.B) {
	c := preloadCache(b)
	for i := 0; i < b.N; i++ {
		k := i % 256
		_, ok := c.Get(fmt.Sprintf("h%d.example.com", k))
		if !ok {
			b.Fatalf("Unexpected miss: %v", k)
		}
	}
}

func BenchmarkMiss(b *testing.B) {
	c := preloadCache(b)
	for i := 0; i < b.N; i++ {
		k := i%256 + 256
		_, ok := c.Get(fmt.Sprintf("h%d.example.com", k))
		if ok {
			b.Fatalf("Unexpected hit: %v", k)
		}
	}
}

func BenchmarkUpdate(b *testing.B) {
	var keys [256]string
	for i := 0; i < 256; i++ {
		keys[i] = fmt.Sprintf("h%d.example.com", i)
	}
	c := preloadCache(b)
	for i := 0; i < b.N; i++ {
		k := keys[i%256]
		c.Put(k, entry(byte(i)))
	}
}

func BenchmarkMix(b *testing.B) {
	var keys [256]string
	for i := 0; i < 256; i++ {
		keys[i] = fmt.Sprintf("h%d.example.com", i)
	}
	c := preloadCache(b)
	for i := 0; i < b.N; i++ {
		// Get
		{
			k := i % 256
			_, ok := c.Get(fmt.Sprintf("h%d.example.com", k))
			if !ok {
				b.Fatalf("Unexpected miss: %v", k)
			}
		}
		// Update
		{
			k := keys[i%256]
			c.Put(k, entry(byte(i)))
		}
		// Miss
		{
			k := i%256 + 256
			_, ok := c.Get(fmt.Sprintf("h%d.example.com", k))
			if ok {
				b.Fatalf("Unexpected hit: %v", k)
			}
		}
	}
}
