package fleet

import "time"

// ActionKind is the kind of an in-flight user command.
type ActionKind int

const (
	// ActionStarting marks an unconfirmed start command.
	ActionStarting ActionKind = iota
	// ActionStopping marks an unconfirmed stop command.
	ActionStopping
)

func (k ActionKind) String() string {
	if k == ActionStopping {
		return "stopping"
	}
	return "starting"
}

// goal is the terminal status that confirms the action completed.
func (k ActionKind) goal() Status {
	if k == ActionStopping {
		return StatusStopped
	}
	return StatusRunning
}

// transitional is the provider status that confirms the action is underway.
func (k ActionKind) transitional() Status {
	if k == ActionStopping {
		return StatusStopping
	}
	return StatusPending
}

// consistent reports whether an observed status is plausible progress toward
// the action's goal rather than evidence of a conflicting change.
func (k ActionKind) consistent(s Status) bool {
	if k == ActionStopping {
		return s == StatusRunning || s == StatusStopping
	}
	return s == StatusStopped || s == StatusPending
}

// PendingAction is a user-issued start/stop whose completion has not yet
// been confirmed by observation. Token orders successive commands on the
// same instance so stale poll results can be discarded.
type PendingAction struct {
	Kind     ActionKind
	Token    uint64
	IssuedAt time.Time
}

// InstanceState is the authoritative view of one instance. All mutation goes
// through the Controller; everything handed out is a copy.
type InstanceState struct {
	// ID is the provider instance id, one state per registry entry.
	ID string
	// Name is the provider's name tag, falling back to the registry display
	// name until a poll supplies one.
	Name string
	// Status is the current lifecycle status.
	Status Status
	// PublicAddress is set exactly when Status is StatusRunning.
	PublicAddress string
	// LaunchedAt is the provider-reported launch time of the current boot.
	LaunchedAt time.Time
	// LastObservedAt is when the most recent successful poll was applied.
	LastObservedAt time.Time
	// Pending is the in-flight command, if any.
	Pending *PendingAction
	// LastError is the most recent failure for this instance, cleared by
	// the next successful observation.
	LastError string
}

// Uptime returns how long the instance has been running, or zero when it is
// not running or the launch time is unknown.
func (s InstanceState) Uptime(now time.Time) time.Duration {
	if s.Status != StatusRunning || s.LaunchedAt.IsZero() {
		return 0
	}
	return now.Sub(s.LaunchedAt)
}

// observablyEqual compares the fields observers can see. LastObservedAt is
// deliberately excluded: a poll that changes nothing else is not an event.
func observablyEqual(a, b InstanceState) bool {
	if a.ID != b.ID || a.Name != b.Name || a.Status != b.Status ||
		a.PublicAddress != b.PublicAddress || !a.LaunchedAt.Equal(b.LaunchedAt) ||
		a.LastError != b.LastError {
		return false
	}
	if (a.Pending == nil) != (b.Pending == nil) {
		return false
	}
	if a.Pending != nil && (a.Pending.Kind != b.Pending.Kind || a.Pending.Token != b.Pending.Token) {
		return false
	}
	return true
}

// clone returns a deep copy safe to hand to observers.
func (s InstanceState) clone() InstanceState {
	out := s
	if s.Pending != nil {
		pending := *s.Pending
		out.Pending = &pending
	}
	return out
}
