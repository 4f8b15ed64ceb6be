// Package wire adapts the miekg/dns wire-format parser into the
// structured view the engine expects (§1, §6: "an external parser
// produces a structured view — questions with qname/qtype/qclass,
// answers with name/class/ttl/rdata variants A/AAAA/CNAME — and a
// header with a 16-bit id"), and provides the Reply Encoder (§4.3),
// which packs a dns.Msg with name compression turned off to get the
// exact non-compressed byte layout.
package wire

import "github.com/miekg/dns"

// DNS class and type values the engine cares about (§4.1, §4.4).
const (
	ClassIN  = dns.ClassINET
	ClassANY = dns.ClassANY

	TypeA     = dns.TypeA
	TypeAAAA  = dns.TypeAAAA
	TypeCNAME = dns.TypeCNAME
	TypeALL   = dns.TypeANY
)

// Question is one parsed question-section entry.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// RRKind distinguishes the resource record variants the engine
// understands; anything else decodes as KindOther and is ignored by the
// pipeline except insofar as it is skipped.
type RRKind int

const (
	KindOther RRKind = iota
	KindA
	KindAAAA
	KindCNAME
)

// Answer is one parsed answer-section resource record.
type Answer struct {
	Name  string
	Class uint16
	TTL   uint32
	Kind  RRKind
	// IP holds the 4 or 16 byte address for KindA / KindAAAA.
	IP []byte
	// Target holds the alias target for KindCNAME.
	Target string
}

// Packet is the structured view of a parsed DNS datagram.
type Packet struct {
	ID        uint16
	Questions []Question
	Answers   []Answer
}

// Parse decodes a raw DNS datagram into its structured view. Clients
// are not expected to send answers, but the parser is permissive about
// it, same as dns_parser was in the original.
func Parse(buf []byte) (*Packet, error) {
	m := new(dns.Msg)
	if err := m.Unpack(buf); err != nil {
		return nil, &ParseError{Err: err}
	}
	p := &Packet{
		ID:        m.Id,
		Questions: make([]Question, 0, len(m.Question)),
		Answers:   make([]Answer, 0, len(m.Answer)),
	}
	for _, q := range m.Question {
		p.Questions = append(p.Questions, Question{
			Name:  normalizeName(q.Name),
			Type:  q.Qtype,
			Class: q.Qclass,
		})
	}
	for _, rr := range m.Answer {
		hdr := rr.Header()
		a := Answer{
			Name:  normalizeName(hdr.Name),
			Class: hdr.Class,
			TTL:   hdr.Ttl,
		}
		switch rec := rr.(type) {
		case *dns.A:
			a.Kind = KindA
			a.IP = rec.A.To4()
		case *dns.AAAA:
			a.Kind = KindAAAA
			a.IP = rec.AAAA.To16()
		case *dns.CNAME:
			a.Kind = KindCNAME
			a.Target = normalizeName(rec.Target)
		default:
			a.Kind = KindOther
		}
		p.Answers = append(p.Answers, a)
	}
	return p, nil
}

// normalizeName strips the trailing root dot dns.Msg leaves on FQDNs
// and lowercases, matching the spec's "keyed by lowercased FQDN" (§3).
func normalizeName(name string) string {
	if len(name) > 0 && name[len(name)-1] == '.' {
		name = name[:len(name)-1]
	}
	return toLower(name)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// ParseError wraps a malformed-datagram failure (§7 kind Parse).
type ParseError struct{ Err error }

func (e *ParseError) Error() string { return "dns: parse: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }
