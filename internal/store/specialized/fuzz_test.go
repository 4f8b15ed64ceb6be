package specialized

// Native go test fuzzing replacement for the dns-over-tls-forwarder
// project's old go-fuzz harness: randomized put/get sequences must
// never grow the cache past its capacity, and any live key must read
// back the value most recently put for it.

import "testing"

func FuzzCachePutGet(f *testing.F) {
	f.Add(4, []byte{0, 'a', 'b', 0, 'a', 'c', 1, 'a', 0})

	f.Fuzz(func(t *testing.T, size int, ops []byte) {
		if size < 2 || size > 1<<16 {
			return
		}
		c, err := NewCache(size, false)
		if err != nil {
			t.Fatalf("NewCache(%d): %v", size, err)
		}

		exp := make(map[string]string)
		for len(ops) >= 3 {
			isPut := ops[0]%2 == 0
			k := string(ops[1])
			v := string(ops[2])
			ops = ops[3:]

			if isPut {
				c.Put(k, v)
				exp[k] = v
				if c.Len() > c.Cap() {
					t.Fatalf("cache grew to %d, over capacity %d", c.Len(), c.Cap())
				}
				continue
			}

			got, ok := c.Get(k)
			want, wantOk := exp[k]
			if ok && wantOk && got.(string) != want {
				t.Fatalf("Get(%q) = %q, want %q (last value put for this key)", k, got, want)
			}
			if ok && !wantOk {
				t.Fatalf("Get(%q) hit %q but key was never put", k, got)
			}
		}
	})
}
