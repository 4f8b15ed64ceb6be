package engine

import "time"

// AdjustStatus is the outcome of adjusting one family's RecordSet for
// elapsed time.
type AdjustStatus int

const (
	// StatusOk means every record in the set still has a positive TTL.
	StatusOk AdjustStatus = iota
	// StatusExpired means at least one record's adjusted TTL hit zero.
	StatusExpired
	// StatusNegative means the set is empty (a negative answer); the
	// payload is the age of the negative answer, in seconds.
	StatusNegative
)

// AdjustResult is the status plus, for StatusNegative, the age.
type AdjustResult struct {
	Status AdjustStatus
	Age    uint64
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func clampTTL(ttl, min, max Ttl) Ttl {
	if ttl < min {
		return min
	}
	if ttl > max {
		return max
	}
	return ttl
}

// adjustTTL recomputes the TTLs of v for the elapsed time between then
// and now, clamping each record's original TTL into [minTTL, maxTTL]
// first. It never mutates v; it returns a fresh, order-preserving copy.
// An empty v is reported as a negative answer whose age is now-then.
func adjustTTL(v []AddrTtl, now, then time.Time, maxTTL, minTTL Ttl) (AdjustResult, []AddrTtl) {
	nowSec := uint64(now.Unix())
	thenSec := uint64(then.Unix())
	delta := saturatingSub(nowSec, thenSec)

	if len(v) == 0 {
		return AdjustResult{Status: StatusNegative, Age: delta}, nil
	}

	out := make([]AddrTtl, len(v))
	status := StatusOk
	for i, rec := range v {
		ttl := clampTTL(rec.Ttl, minTTL, maxTTL)
		var newTTL Ttl
		if delta >= uint64(ttl) {
			newTTL = 0
			status = StatusExpired
		} else {
			newTTL = ttl - Ttl(delta)
		}
		ip := make([]byte, len(rec.IP))
		copy(ip, rec.IP)
		out[i] = AddrTtl{IP: ip, Ttl: newTTL}
	}
	return AdjustResult{Status: status}, out
}

// TryAnswerStatus is the aggregate result of the Cache Read Path over
// all of a request's questions.
type TryAnswerStatus int

const (
	// ResolvedFresh: every question resolved with no expired or
	// negative record among them.
	ResolvedFresh TryAnswerStatus = iota
	// ResolvedExpired: every question resolved, and the first non-Ok
	// family encountered (in question order, A before AAAA) had an
	// expired record.
	ResolvedExpired
	// ResolvedNegative: every question resolved, and the first non-Ok
	// family encountered was a negative answer; a later family may still
	// be expired. Age is that negative answer's age.
	ResolvedNegative
	// UnknownsRemain: at least one requested family has never been
	// queried. Count is how many (question, family) pairs are unknown.
	UnknownsRemain
)

// TryAnswerResult is what the Cache Read Path reports for one request.
type TryAnswerResult struct {
	Status TryAnswerStatus
	Age    uint64
	Count  int
	AnsA   []DomainAnswers
	AnsA6  []DomainAnswers
}

// DomainAnswers pairs a domain with the adjusted record list the Cache
// Read Path produced for it.
type DomainAnswers struct {
	Dom string
	A   []AddrTtl
}

// tryAnswer is the Cache Read Path (§4.2). now is the single wall-clock
// sample used for every TTL adjustment this call performs.
func tryAnswer(db Database, now time.Time, r *SimplifiedRequest, maxTTL, minTTL Ttl) (TryAnswerResult, error) {
	var unknowns int
	var ansA, ansA6 []DomainAnswers
	status := StatusOk
	var negAge uint64

	// The aggregate status is the first non-Ok status encountered across
	// questions, in the order they were asked (A before AAAA within a
	// question), mirroring the original's "if ttl_status == Ok { ttl_status
	// = tr }" accumulation.
	takeFirst := func(s AdjustStatus, age uint64) {
		if status != StatusOk {
			return
		}
		status = s
		if s == StatusNegative {
			negAge = age
		}
	}

	for _, q := range r.Q {
		entry, err := db.Get(q.Dom)
		if err != nil {
			return TryAnswerResult{}, err
		}
		if entry == nil {
			unknowns++
			continue
		}
		if q.WantsA {
			if entry.A4 == nil {
				unknowns++
			} else {
				res, adj := adjustTTL(entry.A4.A, now, entry.A4.T, maxTTL, minTTL)
				takeFirst(res.Status, res.Age)
				ansA = append(ansA, DomainAnswers{Dom: q.Dom, A: adj})
			}
		}
		if q.WantsAAAA {
			if entry.A6 == nil {
				unknowns++
			} else {
				res, adj := adjustTTL(entry.A6.A, now, entry.A6.T, maxTTL, minTTL)
				takeFirst(res.Status, res.Age)
				ansA6 = append(ansA6, DomainAnswers{Dom: q.Dom, A: adj})
			}
		}
	}

	if unknowns > 0 {
		return TryAnswerResult{Status: UnknownsRemain, Count: unknowns}, nil
	}

	switch status {
	case StatusExpired:
		return TryAnswerResult{Status: ResolvedExpired, AnsA: ansA, AnsA6: ansA6}, nil
	case StatusNegative:
		return TryAnswerResult{Status: ResolvedNegative, Age: negAge, AnsA: ansA, AnsA6: ansA6}, nil
	default:
		return TryAnswerResult{Status: ResolvedFresh, AnsA: ansA, AnsA6: ansA6}, nil
	}
}
