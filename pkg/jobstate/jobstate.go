// Package jobstate defines the fixed set of job lifecycle states and the
// triggers that move a job between them.
package jobstate

// State is one of the five lifecycle states a Job can occupy. The string
// values are title-case to match the job store's CHECK constraint.
type State string

const (
	Requested State = "Requested"
	Created   State = "Created"
	Deployed  State = "Deployed"
	Succeeded State = "Succeeded"
	Failed    State = "Failed"
)

// Trigger is a named event that may cause a state transition.
type Trigger string

const (
	TriggerCreate  Trigger = "create"
	TriggerDeploy  Trigger = "deploy"
	TriggerSucceed Trigger = "succeed"
	TriggerError   Trigger = "error"
)

// Terminal reports whether a state accepts no further transitions.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// Active is the complement of Terminal.
func (s State) Active() bool {
	return !s.Terminal()
}

// RemoteStatus is the status vocabulary reported by the external workflow
// platform, distinct from State because it carries values (Submitted,
// Unknown) that never appear as a local job state.
type RemoteStatus string

const (
	RemoteSubmitted RemoteStatus = "Submitted"
	RemoteRunning   RemoteStatus = "Running"
	RemoteSucceeded RemoteStatus = "Succeeded"
	RemoteFailed    RemoteStatus = "Failed"
	RemoteUnknown   RemoteStatus = "Unknown"
)

// TargetState maps a remote platform status to the local state it implies.
// Submitted carries no implication and reports ok=false.
func TargetState(status RemoteStatus) (state State, ok bool) {
	switch status {
	case RemoteSucceeded:
		return Succeeded, true
	case RemoteFailed, RemoteUnknown:
		return Failed, true
	case RemoteRunning:
		return Deployed, true
	default:
		return "", false
	}
}

// triggerForState is the fixed map from a target state to the trigger that
// reaches it, used by the notification bridge once it has decided the job's
// state needs to change.
var triggerForState = map[State]Trigger{
	Failed:    TriggerError,
	Succeeded: TriggerSucceed,
	Deployed:  TriggerDeploy,
}

// TriggerFor returns the trigger that drives a job towards target, and
// false if target is not reachable via a single bridge-issued trigger.
func TriggerFor(target State) (Trigger, bool) {
	t, ok := triggerForState[target]
	return t, ok
}
