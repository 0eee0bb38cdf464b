package core

import "fmt"

var (
	lendingChain = []Status{
		StatusCreated,
		StatusOpen,
		StatusAwaitingPickup,
		StatusItemCheckedOut,
		StatusItemCheckedIn,
	}
	borrowingChain = []Status{
		StatusCreated,
		StatusOpen,
		StatusAwaitingPickup,
		StatusItemCheckedOut,
		StatusItemCheckedIn,
		StatusClosed,
	}
	cancellableStatuses = map[Status]struct{}{
		StatusCreated:        {},
		StatusOpen:           {},
		StatusAwaitingPickup: {},
	}
)

// TransitionError names the rejected hop. It matches ErrInvalidTransition.
type TransitionError struct {
	Current Status
	Target  Status
	Role    Role
	Reason  string
}

func (e *TransitionError) Error() string {
	if e == nil {
		return ErrInvalidTransition.Error()
	}
	msg := fmt.Sprintf("%s: %s -> %s (%s)", ErrInvalidTransition.Error(), e.Current, e.Target, e.Role)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// StatusTransitionPlanner expands a requested status jump into every
// intermediate status of the role chain.
type StatusTransitionPlanner struct{}

// Chain returns the forward status chain for role.
func (StatusTransitionPlanner) Chain(role Role) ([]Status, error) {
	switch role {
	case RoleLender:
		return append([]Status(nil), lendingChain...), nil
	case RoleBorrower, RolePickup, RoleBorrowingPickup:
		return append([]Status(nil), borrowingChain...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
}

// Plan returns the statuses strictly after current up to and including
// target, in traversal order.
func (p StatusTransitionPlanner) Plan(current Status, target Status, role Role) ([]Status, error) {
	chain, err := p.Chain(role)
	if err != nil {
		return nil, err
	}
	reject := func(reason string) error {
		return &TransitionError{Current: current, Target: target, Role: role, Reason: reason}
	}

	switch {
	case target == current:
		return nil, reject("target equals current status")
	case target == StatusExpired:
		return nil, reject("expired is only reachable from the event feed")
	case current.Terminal():
		return nil, reject("transaction is terminal")
	case target == StatusCancelled:
		if _, ok := cancellableStatuses[current]; !ok {
			return nil, reject("cancellation is not allowed after pickup")
		}
		return []Status{StatusCancelled}, nil
	}

	currentIdx := indexOfStatus(chain, current)
	if currentIdx < 0 {
		return nil, reject("current status is not on the role chain")
	}
	targetIdx := indexOfStatus(chain, target)
	if targetIdx < 0 {
		return nil, reject("target status is not on the role chain")
	}
	if targetIdx <= currentIdx {
		return nil, reject("target status is behind current status")
	}
	return append([]Status(nil), chain[currentIdx+1:targetIdx+1]...), nil
}

func indexOfStatus(chain []Status, status Status) int {
	for idx, candidate := range chain {
		if candidate == status {
			return idx
		}
	}
	return -1
}
