package mpc

// Kind selects the controller variant. It is supplied explicitly at
// construction; nothing is derived from type names.
type Kind int

const (
	// Naive runs the horizon with obstacle constraints only.
	Naive Kind = iota
	// Receding enforces the viability margin at a stage index that
	// recedes as the horizon rolls forward.
	Receding
	// SoftTerminal enforces the viability margin as a slack-penalized
	// terminal constraint.
	SoftTerminal
)

func (k Kind) String() string {
	switch k {
	case Naive:
		return "naive"
	case Receding:
		return "receding"
	case SoftTerminal:
		return "soft_terminal"
	default:
		return "unknown"
	}
}

// ParseKind maps a config/CLI name onto a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "naive":
		return Naive, true
	case "receding":
		return Receding, true
	case "soft_terminal":
		return SoftTerminal, true
	default:
		return 0, false
	}
}
