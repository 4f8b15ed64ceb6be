package engine

import (
	"time"

	"github.com/mikispag/dnscache/internal/wire"
)

// stageResult tells the pipeline driver whether to continue to the next
// stage or abort processing of this datagram without error (§4.4: "any
// stage may return EarlyReturn to abort further processing without
// error"). This replaces the original Rust source's macro-generated
// early-return chain with plain control flow.
type stageResult int

const (
	goOn stageResult = iota
	earlyReturn
)

// resolvedAnswer is one A/AAAA RR after CNAME-chain resolution back to
// the originally queried name (§4.4 stage 4).
type resolvedAnswer struct {
	dom string
	kind wire.RRKind
	ip   []byte
	ttl  uint32
}

// handleUpstream runs the eight-stage Upstream Reply Pipeline (§4.4)
// against a datagram whose source address matched the configured
// upstream.
func (e *Engine) handleUpstream(buf []byte) error {
	p, err := wire.Parse(buf)
	if err != nil {
		return err
	}

	// Stage 1 — direct reply.
	if res, err := e.stageDirectReply(buf, p); err != nil || res == earlyReturn {
		return err
	}

	// Stage 2 — question validation.
	if e.stageCheckQuestions(p) == earlyReturn {
		e.log.Debugf("upstream reply for id %d rejected: question/subscription mismatch", p.ID)
		return nil
	}

	// Stage 3 — CNAME map (target -> owner).
	cnames := buildCnameMap(p)

	// Stage 4 — resolve A/AAAA owners through the CNAME map.
	resolved, res := resolveAnswers(p, cnames)
	if res == earlyReturn {
		e.log.Debugf("upstream reply for id %d rejected: cname chain too long", p.ID)
		return nil
	}

	// Stage 5 — answer validation.
	if e.stageCheckAnswers(p, resolved) == earlyReturn {
		e.log.Debugf("upstream reply for id %d rejected: answer/subscription mismatch", p.ID)
		return nil
	}

	now := time.Now()

	// Stage 6 — assemble candidate CacheEntries.
	candidates := buildCandidateEntries(p, resolved, now)

	// Stage 7 — merge with store and persist.
	if err := e.saveCandidates(candidates); err != nil {
		return err
	}

	// Stage 8 — dispatch to subscribers.
	return e.dispatchSubscribers(candidates, now)
}

func (e *Engine) stageDirectReply(buf []byte, p *wire.Packet) (stageResult, error) {
	client, ok := e.directForward[p.ID]
	if !ok {
		return goOn, nil
	}
	delete(e.directForward, p.ID)
	if err := e.net.SendToClient(buf, client); err != nil {
		return earlyReturn, err
	}
	return earlyReturn, nil
}

// checkDom implements the anti-spoofing check shared by stages 2 and 5:
// dom must be subscribed, and at least one subscriber must have
// requested with this id.
func (e *Engine) checkDom(dom string, id uint16) bool {
	toks := e.subs.Get(dom)
	if len(toks) == 0 {
		return false
	}
	good := false
	for _, tok := range toks {
		req := e.pending.Get(tok)
		if req == nil {
			e.log.Warnf("invariant violation: subscription for %q points to a vanished pending token", dom)
			return false
		}
		if req.ID == id {
			good = true
		}
	}
	return good
}

func (e *Engine) stageCheckQuestions(p *wire.Packet) stageResult {
	for _, q := range p.Questions {
		if !e.checkDom(q.Name, p.ID) {
			return earlyReturn
		}
	}
	return goOn
}

func buildCnameMap(p *wire.Packet) map[string]string {
	m := make(map[string]string)
	for _, a := range p.Answers {
		if a.Kind == wire.KindCNAME {
			m[a.Target] = a.Name
		}
	}
	return m
}

const maxCnameHops = 10

func resolveAnswers(p *wire.Packet, cnames map[string]string) ([]resolvedAnswer, stageResult) {
	var out []resolvedAnswer
	for _, a := range p.Answers {
		if a.Class != wire.ClassIN {
			continue
		}
		if a.Kind != wire.KindA && a.Kind != wire.KindAAAA {
			continue
		}
		dom := a.Name
		hops := 0
		for {
			owner, ok := cnames[dom]
			if !ok {
				break
			}
			dom = owner
			hops++
			if hops > maxCnameHops {
				return nil, earlyReturn
			}
		}
		out = append(out, resolvedAnswer{dom: dom, kind: a.Kind, ip: a.IP, ttl: a.TTL})
	}
	return out, goOn
}

func (e *Engine) stageCheckAnswers(p *wire.Packet, resolved []resolvedAnswer) stageResult {
	for _, a := range resolved {
		if !e.checkDom(a.dom, p.ID) {
			return earlyReturn
		}
	}
	return goOn
}

func buildCandidateEntries(p *wire.Packet, resolved []resolvedAnswer, now time.Time) map[string]*CacheEntry {
	tmp := make(map[string]*CacheEntry)

	entryFor := func(dom string) *CacheEntry {
		ce, ok := tmp[dom]
		if !ok {
			ce = &CacheEntry{}
			tmp[dom] = ce
		}
		return ce
	}

	for _, q := range p.Questions {
		if q.Class != wire.ClassIN {
			continue
		}
		ce := entryFor(q.Name)
		if q.Type == wire.TypeA || q.Type == wire.TypeALL {
			ce.A4 = &RecordSet{T: now}
		}
		if q.Type == wire.TypeAAAA || q.Type == wire.TypeALL {
			ce.A6 = &RecordSet{T: now}
		}
	}

	for _, a := range resolved {
		ce := entryFor(a.dom)
		switch a.kind {
		case wire.KindA:
			if ce.A4 == nil {
				ce.A4 = &RecordSet{T: now}
			}
			ce.A4.A = append(ce.A4.A, AddrTtl{IP: a.ip, Ttl: a.ttl})
		case wire.KindAAAA:
			if ce.A6 == nil {
				ce.A6 = &RecordSet{T: now}
			}
			ce.A6.A = append(ce.A6.A, AddrTtl{IP: a.ip, Ttl: a.ttl})
		}
	}

	return tmp
}

// saveCandidates is §4.4 stage 7: merge each candidate with whatever is
// already stored, refusing to ever regress a present non-empty family
// to absent or empty, then persist and flush once.
func (e *Engine) saveCandidates(candidates map[string]*CacheEntry) error {
	for dom, entry := range candidates {
		old, err := e.db.Get(dom)
		if err != nil {
			return err
		}
		if old == nil {
			old = &CacheEntry{}
		}
		mergeEntry(entry, old)
		if err := e.db.Put(dom, entry); err != nil {
			return err
		}
		e.log.Debugf("saved to store: %s", dom)
	}
	return e.db.Flush()
}

func mergeEntry(new, old *CacheEntry) {
	if new.A4 == nil && old.A4 != nil {
		new.A4 = old.A4
	} else if new.A4 != nil && len(new.A4.A) == 0 && old.A4 != nil && len(old.A4.A) != 0 {
		new.A4 = old.A4
	}
	if new.A6 == nil && old.A6 != nil {
		new.A6 = old.A6
	} else if new.A6 != nil && len(new.A6.A) == 0 && old.A6 != nil && len(old.A6.A) != 0 {
		new.A6 = old.A6
	}
}

// dispatchSubscribers is §4.4 stage 8.
func (e *Engine) dispatchSubscribers(candidates map[string]*CacheEntry, now time.Time) error {
	for dom := range candidates {
		toks := e.subs.Take(dom)
		var happy, unhappy []Token
		for _, tok := range toks {
			req := e.pending.Get(tok)
			if req == nil {
				continue
			}
			dummy := req.InhibitSend
			result, err := tryAnswer(e.db, now, req, e.maxTTL, e.minTTL)
			if err != nil {
				return err
			}
			switch result.Status {
			case ResolvedFresh:
				if !dummy {
					if err := e.sendReply(req, result); err != nil {
						return err
					}
				}
				happy = append(happy, tok)
			case ResolvedExpired:
				if !dummy {
					if err := e.sendReply(req, result); err != nil {
						return err
					}
					happy = append(happy, tok)
				} else {
					unhappy = append(unhappy, tok)
				}
			case ResolvedNegative:
				if err := e.sendReply(req, result); err != nil {
					return err
				}
				happy = append(happy, tok)
			case UnknownsRemain:
				unhappy = append(unhappy, tok)
			}
		}
		for _, tok := range happy {
			e.pending.Remove(tok)
		}
		e.subs.Reinstall(dom, unhappy)
	}
	return nil
}
