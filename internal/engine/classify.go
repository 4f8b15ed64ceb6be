package engine

import "github.com/mikispag/dnscache/internal/wire"

// classify reduces a parsed client packet to either a normalized list
// of questions (§4.1 "normal") or flags it pass-through. A question is
// normal iff qclass is IN or ANY and qtype is A or AAAA. qtype=ALL is
// deliberately treated as non-normal: upstream responses to ALL have
// been observed to omit one family, which the merge rule (§4.4 stage 7)
// would then treat as a regression.
func classify(p *wire.Packet) (questions []SimplifiedQuestion, passThrough bool) {
	questions = make([]SimplifiedQuestion, 0, len(p.Questions))
	for _, q := range p.Questions {
		if !(q.Class == wire.ClassIN || q.Class == wire.ClassANY) {
			return nil, true
		}
		switch q.Type {
		case wire.TypeA:
			questions = append(questions, SimplifiedQuestion{Dom: q.Name, WantsA: true})
		case wire.TypeAAAA:
			questions = append(questions, SimplifiedQuestion{Dom: q.Name, WantsAAAA: true})
		default:
			return nil, true
		}
	}
	return questions, false
}
