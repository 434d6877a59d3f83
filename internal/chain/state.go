package chain

import "fmt"

// State is the deploy-or-update state of one index within a cycle.
type State int

const (
	// StateUnknown: existence not yet checked, or the check failed.
	StateUnknown State = iota
	// StateNotDeployed: the registry reports no such index.
	StateNotDeployed
	// StateDeployed: the index exists on-chain; weights may still be stale.
	StateDeployed
	// StateConfirmed: the registry holds the weights of this cycle.
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateNotDeployed:
		return "NOT_DEPLOYED"
	case StateDeployed:
		return "DEPLOYED"
	case StateConfirmed:
		return "CONFIRMED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var allowedTransitions = map[State][]State{
	StateUnknown:     {StateNotDeployed, StateDeployed},
	StateNotDeployed: {StateDeployed},
	StateDeployed:    {StateConfirmed},
}

// Transition validates a state change. Deploying is only reachable from
// StateNotDeployed, and StateNotDeployed only from a successful existence check.
func Transition(from, to State) (State, error) {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return to, nil
		}
	}
	return from, fmt.Errorf("invalid state transition %s -> %s", from, to)
}

// CanDeploy reports whether a fund may be deployed in state s.
func CanDeploy(s State) bool {
	return s == StateNotDeployed
}
