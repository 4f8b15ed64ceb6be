// Package engine implements the caching DNS forwarding proxy: the
// request-coalescing state machine that decides when a client query is
// answered from cache versus forwarded upstream, and the persistent
// cache entry model it reads and writes.
package engine

import "time"

// Ttl is a resource record time-to-live, in seconds.
type Ttl = uint32

// AddrTtl is one resource record: an IPv4 (4-byte) or IPv6 (16-byte)
// address with its TTL in seconds. Stored records keep the TTL the
// upstream supplied; the Cache Read Path clamps it per Options when it
// adjusts it for elapsed time.
type AddrTtl struct {
	IP  []byte
	Ttl Ttl
}

// RecordSet is the per-family answer for a domain: the unix-seconds
// timestamp the records were acquired at, and the ordered record list.
// An empty list is a negative answer (name exists, no record of this
// family); RecordSet itself being absent from a CacheEntry means the
// domain was never queried for that family.
type RecordSet struct {
	T time.Time
	A []AddrTtl
}

// CacheEntry is the value stored in the Database, keyed by the
// lowercased FQDN. A4 present means the domain has been queried for A
// records; A6 similarly for AAAA. A4.A holds only 4-byte IPs, A6.A only
// 16-byte IPs.
type CacheEntry struct {
	A4 *RecordSet
	A6 *RecordSet
}

// SimplifiedQuestion is a normalized client question: a domain and
// which address families were requested. At least one of WantsA /
// WantsAAAA is true.
type SimplifiedQuestion struct {
	Dom       string
	WantsA    bool
	WantsAAAA bool
}

// SimplifiedRequest is a client request the engine could not answer
// immediately, registered in the PendingTable while awaiting an
// upstream reply.
//
// InhibitSend marks a background refresh: the request exists only to
// drive an upstream query. When it is eventually resolved from cache it
// must not produce a client-visible reply, because the stale answer
// already went out.
type SimplifiedRequest struct {
	ID          uint16
	ClientID    ClientID
	Q           []SimplifiedQuestion
	InhibitSend bool
}
