package engine

import (
	"context"
	"time"

	"github.com/mikispag/dnscache/internal/wire"
	"github.com/sirupsen/logrus"
)

// Options bounds the TTL arithmetic the Cache Read Path performs and
// sets the negative-answer refresh threshold (§6 CLI flags).
type Options struct {
	// NegTTL is the age, in seconds, beyond which a negative cache
	// entry triggers a background refresh.
	NegTTL uint64
	// MaxTTL / MinTTL clamp record TTLs read from the store.
	MaxTTL Ttl
	MinTTL Ttl
}

// DefaultOptions mirrors the CLI defaults in §6.
func DefaultOptions() Options {
	return Options{NegTTL: 30, MaxTTL: 0xFFFFFFFF, MinTTL: 0}
}

// Engine is the single-threaded request-coalescing cache engine (§1).
// All its mutable state is unexported fields of this value; there is no
// process-wide mutable state (§9).
type Engine struct {
	db  Database
	net Network
	log logrus.FieldLogger

	negTTL uint64
	maxTTL Ttl
	minTTL Ttl

	directForward map[uint16]ClientID
	pending       *PendingTable
	subs          *DomainSubscriptionIndex
}

// New constructs an Engine. db and net are the external collaborators
// (§6); nothing here starts network I/O.
func New(db Database, net Network, opts Options, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		db:            db,
		net:           net,
		log:           log,
		negTTL:        opts.NegTTL,
		maxTTL:        opts.MaxTTL,
		minTTL:        opts.MinTTL,
		directForward: make(map[uint16]ClientID),
		pending:       NewPendingTable(),
		subs:          NewDomainSubscriptionIndex(),
	}
}

// Run loops receiving and processing datagrams until ctx is canceled.
// Per §5, processing of one datagram (including any store I/O and any
// outgoing send) completes before the next is received; no locking is
// required on the engine's tables.
func (e *Engine) Run(ctx context.Context) error {
	buf := make([]byte, 1600)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.ServeOne(buf); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Warnf("error: %v", err)
		}
	}
}

// ServeOne receives and processes exactly one datagram (§6
// "serve_one_packet" shape). Per-datagram parse/IO/validation errors
// are the caller's to log and continue past (§7); startup errors are
// not returned from here.
func (e *Engine) ServeOne(buf []byte) error {
	n, res, err := e.net.Recv(buf)
	if err != nil {
		return err
	}
	datagram := buf[:n]
	switch res.Kind {
	case FromUpstream:
		return e.handleUpstream(datagram)
	default:
		return e.handleClient(res.ID, datagram)
	}
}

// handleClient implements the Classifier and the client-side branch of
// §4.1.
func (e *Engine) handleClient(client ClientID, buf []byte) error {
	p, err := wire.Parse(buf)
	if err != nil {
		return err
	}

	questions, passThrough := classify(p)
	if passThrough {
		e.directForward[p.ID] = client
		return e.net.SendToUpstream(buf)
	}

	req := &SimplifiedRequest{ID: p.ID, ClientID: client, Q: questions}
	now := time.Now()

	result, err := tryAnswer(e.db, now, req, e.maxTTL, e.minTTL)
	if err != nil {
		return err
	}

	switch result.Status {
	case ResolvedFresh:
		return e.sendReply(req, result)
	case ResolvedExpired:
		if err := e.sendReply(req, result); err != nil {
			return err
		}
		req.InhibitSend = true
	case ResolvedNegative:
		if result.Age < e.negTTL {
			return e.sendReply(req, result)
		}
		req.InhibitSend = true
	case UnknownsRemain:
		// fall through to registration below
	}

	e.register(req)
	return e.net.SendToUpstream(buf)
}

// register inserts req into the PendingTable and subscribes it under
// every one of its questions' domains.
func (e *Engine) register(req *SimplifiedRequest) {
	tok := e.pending.Insert(req)
	for _, q := range req.Q {
		e.subs.Subscribe(q.Dom, tok)
	}
}

// sendReply is the Reply Encoder entry point (§4.3).
func (e *Engine) sendReply(req *SimplifiedRequest, result TryAnswerResult) error {
	questions := make([]wire.ReplyQuestion, len(req.Q))
	for i, q := range req.Q {
		questions[i] = wire.ReplyQuestion{Dom: q.Dom, WantsA: q.WantsA, WantsAAAA: q.WantsAAAA}
	}
	ansA := flattenAnswers(result.AnsA)
	ansAAAA := flattenAnswers(result.AnsA6)

	buf, err := wire.EncodeReply(req.ID, questions, ansA, ansAAAA)
	if err != nil {
		return err
	}
	return e.net.SendToClient(buf, req.ClientID)
}

func flattenAnswers(das []DomainAnswers) []wire.ReplyRecord {
	var out []wire.ReplyRecord
	for _, da := range das {
		for _, rec := range da.A {
			out = append(out, wire.ReplyRecord{Dom: da.Dom, IP: rec.IP, Ttl: rec.Ttl})
		}
	}
	return out
}
