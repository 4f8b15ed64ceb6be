package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/miekg/dns"
)

func TestEncodeReplyHeader(t *testing.T) {
	buf, err := EncodeReply(0x1234,
		[]ReplyQuestion{{Dom: "example.com", WantsA: true}},
		[]ReplyRecord{{Dom: "example.com", IP: []byte{1, 2, 3, 4}, Ttl: 300}},
		nil,
	)
	if err != nil {
		t.Fatalf("EncodeReply: %v", err)
	}
	if len(buf) < 12 {
		t.Fatalf("reply too short: %d bytes", len(buf))
	}
	if got := binary.BigEndian.Uint16(buf[0:2]); got != 0x1234 {
		t.Fatalf("id = %#x, want 0x1234", got)
	}
	if got := binary.BigEndian.Uint16(buf[2:4]); got != ReplyFlags {
		t.Fatalf("flags = %#x, want %#x", got, ReplyFlags)
	}
	if got := binary.BigEndian.Uint16(buf[4:6]); got != 1 {
		t.Fatalf("qdcount = %d, want 1", got)
	}
	if got := binary.BigEndian.Uint16(buf[6:8]); got != 1 {
		t.Fatalf("ancount = %d, want 1", got)
	}
	if got := binary.BigEndian.Uint16(buf[8:10]); got != 0 {
		t.Fatalf("nscount = %d, want 0", got)
	}
	if got := binary.BigEndian.Uint16(buf[10:12]); got != 0 {
		t.Fatalf("arcount = %d, want 0", got)
	}
}

func TestEncodeReplyNameHasNoCompression(t *testing.T) {
	buf, err := EncodeReply(1,
		[]ReplyQuestion{{Dom: "a.example.com", WantsA: true}},
		[]ReplyRecord{
			{Dom: "a.example.com", IP: []byte{1, 1, 1, 1}, Ttl: 60},
			{Dom: "a.example.com", IP: []byte{2, 2, 2, 2}, Ttl: 60},
		},
		nil,
	)
	if err != nil {
		t.Fatalf("EncodeReply: %v", err)
	}
	// Each occurrence of a.example.com is spelled out in full as
	// length-prefixed labels; a compressed encoding would replace the
	// second and third occurrences with a two-byte pointer, shrinking
	// the message well below three full label sequences.
	want := encodedName(t, "a.example.com")
	if got := bytes.Count(buf, want); got != 3 {
		t.Fatalf("name occurrences = %d, want 3 (question + 2 answers, each spelled out in full, no compression)", got)
	}
}

func TestEncodeReplyAOrderedBeforeAAAA(t *testing.T) {
	buf, err := EncodeReply(1, nil,
		[]ReplyRecord{{Dom: "a.com", IP: []byte{1, 1, 1, 1}, Ttl: 60}},
		[]ReplyRecord{{Dom: "a.com", IP: make([]byte, 16), Ttl: 60}},
	)
	if err != nil {
		t.Fatalf("EncodeReply: %v", err)
	}
	aIdx := bytes.Index(buf, []byte{1, 1, 1, 1})
	aaaaIdx := bytes.LastIndex(buf, make([]byte, 16))
	if aIdx < 0 || aaaaIdx < 0 || aIdx > aaaaIdx {
		t.Fatalf("A record must be encoded before AAAA records")
	}
}

func TestEncodeReplyBadRdataLength(t *testing.T) {
	_, err := EncodeReply(1, nil,
		[]ReplyRecord{{Dom: "a.com", IP: []byte{1, 2, 3}, Ttl: 60}},
		nil,
	)
	if err != ErrBadRdata {
		t.Fatalf("err = %v, want ErrBadRdata", err)
	}
}

func TestEncodeReplyAAAABadRdataLength(t *testing.T) {
	_, err := EncodeReply(1, nil, nil,
		[]ReplyRecord{{Dom: "a.com", IP: []byte{1, 2, 3, 4}, Ttl: 60}},
	)
	if err != ErrBadRdata {
		t.Fatalf("err = %v, want ErrBadRdata", err)
	}
}

func TestEncodeReplyRoundTripsThroughParse(t *testing.T) {
	buf, err := EncodeReply(7,
		[]ReplyQuestion{{Dom: "example.com", WantsA: true}},
		[]ReplyRecord{{Dom: "example.com", IP: []byte{9, 9, 9, 9}, Ttl: 120}},
		nil,
	)
	if err != nil {
		t.Fatalf("EncodeReply: %v", err)
	}
	p, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse(EncodeReply(...)): %v", err)
	}
	if p.ID != 7 {
		t.Fatalf("ID = %d, want 7", p.ID)
	}
	if len(p.Answers) != 1 || p.Answers[0].Kind != KindA {
		t.Fatalf("Answers = %+v, want one KindA answer", p.Answers)
	}
	if got := p.Answers[0].IP; len(got) != 4 || got[0] != 9 {
		t.Fatalf("IP = %v, want 9.9.9.9", got)
	}
}

func encodedName(t *testing.T, dom string) []byte {
	t.Helper()
	buf := make([]byte, 64)
	n, err := dns.PackDomainName(dns.Fqdn(dom), buf, 0, nil, false)
	if err != nil {
		t.Fatalf("PackDomainName(%q): %v", dom, err)
	}
	return buf[:n]
}
