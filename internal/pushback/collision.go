package pushback

import "sort"

// CollisionState is the state of a CollisionPolicy decision.
// Undecided is the only non-terminal state.
type CollisionState int

const (
	CollisionUndecided CollisionState = iota
	CollisionUpdateExisting
	CollisionCreateNew
	CollisionAbort
)

func (s CollisionState) String() string {
	switch s {
	case CollisionUpdateExisting:
		return "update"
	case CollisionCreateNew:
		return "create"
	case CollisionAbort:
		return "abort"
	default:
		return "undecided"
	}
}

// CollisionChoice is an answer from the collision prompt.
type CollisionChoice string

const (
	ChoiceUpdate CollisionChoice = "update"
	ChoiceCreate CollisionChoice = "create"
	ChoiceAbort  CollisionChoice = "abort"
)

// CollisionDecider gathers a human answer for a set of conflicting sibling
// directory names. Implementations do the I/O; the policy only interprets.
type CollisionDecider interface {
	DecideCollision(candidates []string) (CollisionChoice, error)
}

// CollisionResult is the terminal state plus, for an update, the directory
// that will be reused.
type CollisionResult struct {
	State  CollisionState
	Target string
}

// CollisionPolicy resolves "same project name, different fingerprint"
// conflicts. When both force flags are set CreateNew wins, since it never
// writes into another project's directory.
type CollisionPolicy struct {
	ForceNew    bool
	ForceUpdate bool
	Decider     CollisionDecider
}

// Resolve moves from Undecided to a terminal state. A nil decider, a decider
// error, or an unrecognised answer all yield Abort.
func (p CollisionPolicy) Resolve(candidates []string) CollisionResult {
	switch {
	case p.ForceNew:
		return CollisionResult{State: CollisionCreateNew}
	case p.ForceUpdate:
		return p.update(candidates)
	case p.Decider == nil:
		return CollisionResult{State: CollisionAbort}
	}

	choice, err := p.Decider.DecideCollision(append([]string(nil), candidates...))
	if err != nil {
		return CollisionResult{State: CollisionAbort}
	}
	switch choice {
	case ChoiceUpdate:
		return p.update(candidates)
	case ChoiceCreate:
		return CollisionResult{State: CollisionCreateNew}
	default:
		return CollisionResult{State: CollisionAbort}
	}
}

// update picks the lexicographically greatest candidate. Remote listing order
// is not stable across hosts, so the candidates are sorted first.
func (p CollisionPolicy) update(candidates []string) CollisionResult {
	if len(candidates) == 0 {
		return CollisionResult{State: CollisionAbort}
	}
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	return CollisionResult{State: CollisionUpdateExisting, Target: sorted[len(sorted)-1]}
}

// ParseCollisionChoice maps prompt input to a choice; anything else is abort.
func ParseCollisionChoice(s string) CollisionChoice {
	switch s {
	case "u", "update":
		return ChoiceUpdate
	case "c", "create":
		return ChoiceCreate
	default:
		return ChoiceAbort
	}
}
