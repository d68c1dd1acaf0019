package iterative

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"

	"github.com/miekg/dns"

	"github.com/mikhailv/iterdns/internal/dnswire"
)

type Kind int

const (
	KindAnswer Kind = iota
	KindReferral
	KindTimeout
	KindTransportError
	KindProtocolError
)

func (k Kind) String() string {
	switch k {
	case KindAnswer:
		return "answer"
	case KindReferral:
		return "referral"
	case KindTimeout:
		return "timeout"
	case KindTransportError:
		return "transport_error"
	case KindProtocolError:
		return "protocol_error"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Outcome is the classified result of a single upstream exchange.
type Outcome struct {
	Kind     Kind
	Answers  []netip.Addr
	Referral dnswire.Referral
	Rcode    int
	Err      error
}

// Classify folds the result of an exchange into an Outcome. It never fails.
func Classify(resp *dns.Msg, err error) Outcome {
	switch {
	case err != nil && isTimeout(err):
		return Outcome{Kind: KindTimeout, Err: err}
	case err != nil:
		return Outcome{Kind: KindTransportError, Err: err}
	case resp == nil:
		return Outcome{Kind: KindTransportError, Err: errors.New("iterative: empty response")}
	case resp.Rcode != dns.RcodeSuccess:
		return Outcome{Kind: KindProtocolError, Rcode: resp.Rcode}
	}
	if answers := dnswire.Addresses(resp.Answer); len(answers) > 0 {
		return Outcome{Kind: KindAnswer, Answers: answers}
	}
	return Outcome{Kind: KindReferral, Referral: dnswire.ParseReferral(resp)}
}

// Usable reports whether the outcome ends the current round.
// Every other outcome advances to the next candidate server.
func (o Outcome) Usable() bool {
	return o.Kind == KindAnswer || o.Kind == KindReferral
}

func (o Outcome) Address() (netip.Addr, bool) {
	if o.Kind != KindAnswer || len(o.Answers) == 0 {
		return netip.Addr{}, false
	}
	return o.Answers[0], true
}

// ResultType names the outcome in trace output.
func (o Outcome) ResultType() string {
	switch o.Kind {
	case KindAnswer:
		return "Answer"
	case KindReferral:
		if len(o.Referral.Names) == 0 && len(o.Referral.Glue) == 0 {
			return "Empty"
		}
		return "Referral"
	case KindTimeout:
		return "Timeout"
	default:
		return "Error"
	}
}

// Info is a short human readable description of the outcome.
func (o Outcome) Info() string {
	switch o.Kind {
	case KindAnswer:
		return fmt.Sprintf("%d answer(s)", len(o.Answers))
	case KindReferral:
		if o.ResultType() == "Empty" {
			return "-"
		}
		return fmt.Sprintf("%d NS (authority) record(s), %d glue", len(o.Referral.Names), len(o.Referral.Glue))
	case KindProtocolError:
		return "RCODE " + dns.RcodeToString[o.Rcode]
	default:
		if o.Err != nil {
			return o.Err.Error()
		}
		return o.Kind.String()
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
