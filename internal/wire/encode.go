package wire

import (
	"errors"
	"net"

	"github.com/miekg/dns"
)

// ReplyFlags documents the fixed flag word every generated reply
// carries: QR=1, opcode 0 QUERY, AA=0, TC=0, RD=1, RA=1, RCODE 0
// (§4.3, §6). EncodeReply gets there by leaving Opcode/Rcode/AA/TC at
// their zero values and setting Response/RecursionDesired/
// RecursionAvailable, rather than writing this word directly.
const ReplyFlags uint16 = 0x8180

// ReplyQuestion is one question-section entry for EncodeReply, derived
// from a SimplifiedQuestion's WantsA/WantsAAAA pair.
type ReplyQuestion struct {
	Dom       string
	WantsA    bool
	WantsAAAA bool
}

// ReplyRecord is one answer to emit for a domain.
type ReplyRecord struct {
	Dom string
	IP  []byte
	Ttl uint32
}

// ErrBadRdata is returned when a record's IP is not 4 or 16 bytes for
// its family, per §4.3 "RDATA length mismatches fail the send".
var ErrBadRdata = errors.New("wire: rdata length mismatch")

// EncodeReply builds a DNS response datagram (§4.3) by assembling a
// *dns.Msg with Compress left false and calling Pack, the same
// miekg/dns library internal/wire already uses for parsing (and the
// teacher's own reply path, proxy/server.go's ServeDNS/WriteMsg and
// server/server.go, builds and writes replies through). Compress=false
// is what gives the "no name compression, full label sequence at every
// occurrence" layout the spec requires — every other pack repo in the
// corpus that needs exactly this sets the same field.
func EncodeReply(id uint16, questions []ReplyQuestion, ansA, ansAAAA []ReplyRecord) ([]byte, error) {
	m := new(dns.Msg)
	m.Id = id
	m.Response = true
	m.RecursionDesired = true
	m.RecursionAvailable = true
	m.Compress = false

	for _, q := range questions {
		var qtype uint16
		switch {
		case q.WantsA && q.WantsAAAA:
			qtype = uint16(TypeALL)
		case q.WantsA:
			qtype = uint16(TypeA)
		case q.WantsAAAA:
			qtype = uint16(TypeAAAA)
		}
		m.Question = append(m.Question, dns.Question{
			Name:   dns.Fqdn(q.Dom),
			Qtype:  qtype,
			Qclass: uint16(ClassIN),
		})
	}

	if err := appendA(m, ansA); err != nil {
		return nil, err
	}
	if err := appendAAAA(m, ansAAAA); err != nil {
		return nil, err
	}

	return m.Pack()
}

func appendA(m *dns.Msg, recs []ReplyRecord) error {
	for _, r := range recs {
		if len(r.IP) != 4 {
			return ErrBadRdata
		}
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: dns.Fqdn(r.Dom), Rrtype: uint16(TypeA), Class: uint16(ClassIN), Ttl: r.Ttl},
			A:   net.IP(r.IP),
		})
	}
	return nil
}

func appendAAAA(m *dns.Msg, recs []ReplyRecord) error {
	for _, r := range recs {
		if len(r.IP) != 16 {
			return ErrBadRdata
		}
		m.Answer = append(m.Answer, &dns.AAAA{
			Hdr:  dns.RR_Header{Name: dns.Fqdn(r.Dom), Rrtype: uint16(TypeAAAA), Class: uint16(ClassIN), Ttl: r.Ttl},
			AAAA: net.IP(r.IP),
		})
	}
	return nil
}
