package dnswire

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/miekg/dns"
)

const DefaultReplyTTL = 60

// NewQuery creates a recursion-desired query with a random id.
func NewQuery(name string, qtype uint16) *dns.Msg {
	msg := &dns.Msg{}
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true
	return msg
}

func BuildQuery(name string, qtype uint16) ([]byte, error) {
	b, err := NewQuery(name, qtype).Pack()
	if err != nil {
		return nil, fmt.Errorf("dnswire: failed to pack query for %q: %w", name, err)
	}
	return b, nil
}

// BuildAddressReply produces a NOERROR response with the question section
// copied verbatim and a single A answer pointing back at the question name.
func BuildAddressReply(id uint16, question []byte, addr netip.Addr, ttl uint32) ([]byte, error) {
	if !addr.Is4() {
		return nil, fmt.Errorf("dnswire: address reply needs an IPv4 address, got %s", addr)
	}
	if err := checkQuestionSection(question); err != nil {
		return nil, err
	}

	b := make([]byte, 0, headerLen+len(question)+16)
	b = binary.BigEndian.AppendUint16(b, id)
	b = binary.BigEndian.AppendUint16(b, 0x8180) // QR, RD, RA, NOERROR
	b = binary.BigEndian.AppendUint16(b, 1)      // qdcount
	b = binary.BigEndian.AppendUint16(b, 1)      // ancount
	b = binary.BigEndian.AppendUint16(b, 0)
	b = binary.BigEndian.AppendUint16(b, 0)
	b = append(b, question...)

	b = binary.BigEndian.AppendUint16(b, 0xc000|headerLen) // pointer to the question name
	b = binary.BigEndian.AppendUint16(b, dns.TypeA)
	b = binary.BigEndian.AppendUint16(b, dns.ClassINET)
	b = binary.BigEndian.AppendUint32(b, ttl)
	b = binary.BigEndian.AppendUint16(b, 4)
	ip := addr.As4()
	return append(b, ip[:]...), nil
}

func checkQuestionSection(question []byte) error {
	msg := make([]byte, headerLen, headerLen+len(question))
	msg[5] = 1 // qdcount
	q, err := ParseQuestion(append(msg, question...))
	if err != nil {
		return err
	}
	if len(q.Raw) != len(question) {
		return &ParseError{Reason: "trailing bytes after question"}
	}
	return nil
}

// FirstAddress returns the first A record of the answer section.
func FirstAddress(msg *dns.Msg) (netip.Addr, bool) {
	for _, rr := range msg.Answer {
		if a, ok := rr.(*dns.A); ok {
			if ip, ok := netip.AddrFromSlice(a.A.To4()); ok {
				return ip, true
			}
		}
	}
	return netip.Addr{}, false
}

// Addresses returns all A records found in the given records, in order.
func Addresses(rrs []dns.RR) []netip.Addr {
	var res []netip.Addr
	for _, rr := range rrs {
		if a, ok := rr.(*dns.A); ok {
			if ip, ok := netip.AddrFromSlice(a.A.To4()); ok {
				res = append(res, ip)
			}
		}
	}
	return res
}

// Referral holds the delegation carried by a response without answers.
type Referral struct {
	Names []string
	Glue  []netip.Addr
}

func ParseReferral(msg *dns.Msg) Referral {
	var ref Referral
	for _, rr := range msg.Ns {
		if ns, ok := rr.(*dns.NS); ok {
			ref.Names = append(ref.Names, ns.Ns)
		}
	}
	ref.Glue = Addresses(msg.Extra)
	return ref
}
