package iterative

// Phase tags how deep in the delegation chain a query round is. It is
// informational only and does not change how servers are queried.
type Phase int

const (
	PhaseRoot Phase = iota
	PhaseTLD
	PhaseAuth
)

func (p Phase) String() string {
	switch p {
	case PhaseRoot:
		return "root"
	case PhaseTLD:
		return "tld"
	default:
		return "auth"
	}
}

func (p Phase) next() Phase {
	if p < PhaseAuth {
		return p + 1
	}
	return PhaseAuth
}
