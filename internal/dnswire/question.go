package dnswire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

const headerLen = 12

var ErrMalformed = errors.New("dnswire: malformed message")

// ParseError describes why a message could not be turned into a Question.
// It always matches ErrMalformed with errors.Is.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dnswire: %s: %v", e.Reason, e.Err)
	}
	return "dnswire: " + e.Reason
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformed, e.Err}
	}
	return []error{ErrMalformed}
}

type Question struct {
	ID    uint16
	Name  string // fully qualified, with the trailing root dot
	Type  uint16
	Class uint16
	// Raw holds the first question section exactly as received.
	Raw []byte
}

// Domain returns the queried name without the trailing root dot.
func (q Question) Domain() string {
	return strings.TrimSuffix(q.Name, ".")
}

func (q Question) String() string {
	return q.Name + " " + dns.Type(q.Type).String()
}

// ParseQuestion reads the header and the first question of a DNS message.
func ParseQuestion(b []byte) (Question, error) {
	if len(b) < headerLen {
		return Question{}, &ParseError{Reason: fmt.Sprintf("short message: %d bytes", len(b))}
	}
	if qdcount := binary.BigEndian.Uint16(b[4:6]); qdcount == 0 {
		return Question{}, &ParseError{Reason: "no question"}
	}

	name, off, err := dns.UnpackDomainName(b, headerLen)
	if err != nil {
		return Question{}, &ParseError{Reason: "bad question name", Err: err}
	}
	if name == "." {
		return Question{}, &ParseError{Reason: "empty question name"}
	}
	if off+4 > len(b) {
		return Question{}, &ParseError{Reason: "truncated question"}
	}

	q := Question{
		ID:    binary.BigEndian.Uint16(b[0:2]),
		Name:  name,
		Type:  binary.BigEndian.Uint16(b[off : off+2]),
		Class: binary.BigEndian.Uint16(b[off+2 : off+4]),
	}
	if q.Type == 0 {
		return Question{}, &ParseError{Reason: "invalid question type"}
	}
	q.Raw = append([]byte(nil), b[headerLen:off+4]...)
	return q, nil
}
