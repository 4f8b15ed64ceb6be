package store

import (
	"encoding/json"
	"time"

	"github.com/mikispag/dnscache/internal/engine"
)

// wireAddrTtl / wireRecordSet / wireCacheEntry are the on-disk shapes
// for engine.CacheEntry. §6 requires the encoding to be "self-describing
// enough that adding future fields is backward-compatible"; a JSON
// object with named, omittable fields satisfies that directly, and no
// example repo in this corpus carries a grounded self-describing binary
// codec (CBOR/MessagePack) used for exactly this kind of small
// structured record — see DESIGN.md.
type wireAddrTtl struct {
	IP  []byte `json:"ip"`
	Ttl uint32 `json:"ttl"`
}

type wireRecordSet struct {
	T int64         `json:"t"`
	A []wireAddrTtl `json:"a"`
}

type wireCacheEntry struct {
	A4 *wireRecordSet `json:"a4,omitempty"`
	A6 *wireRecordSet `json:"a6,omitempty"`
}

func encodeEntry(ce *engine.CacheEntry) ([]byte, error) {
	w := wireCacheEntry{
		A4: encodeRecordSet(ce.A4),
		A6: encodeRecordSet(ce.A6),
	}
	return json.Marshal(w)
}

func encodeRecordSet(rs *engine.RecordSet) *wireRecordSet {
	if rs == nil {
		return nil
	}
	out := &wireRecordSet{T: rs.T.Unix(), A: make([]wireAddrTtl, len(rs.A))}
	for i, a := range rs.A {
		out.A[i] = wireAddrTtl{IP: a.IP, Ttl: a.Ttl}
	}
	return out
}

func decodeEntry(buf []byte) (*engine.CacheEntry, error) {
	var w wireCacheEntry
	if err := json.Unmarshal(buf, &w); err != nil {
		return nil, err
	}
	return &engine.CacheEntry{
		A4: decodeRecordSet(w.A4),
		A6: decodeRecordSet(w.A6),
	}, nil
}

func decodeRecordSet(w *wireRecordSet) *engine.RecordSet {
	if w == nil {
		return nil
	}
	out := &engine.RecordSet{T: time.Unix(w.T, 0).UTC(), A: make([]engine.AddrTtl, len(w.A))}
	for i, a := range w.A {
		out.A[i] = engine.AddrTtl{IP: a.IP, Ttl: a.Ttl}
	}
	return out
}
