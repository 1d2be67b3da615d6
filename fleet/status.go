package fleet

// Status is the lifecycle status of a tracked instance.
type Status int

const (
	// StatusUnknown means no successful observation has happened yet.
	StatusUnknown Status = iota
	// StatusPending means the instance is booting.
	StatusPending
	// StatusRunning means the instance is up; a public address is attached.
	StatusRunning
	// StatusStopping means the instance is shutting down.
	StatusStopping
	// StatusStopped means the instance is powered off but still exists.
	StatusStopped
	// StatusTerminated means the instance is gone for good.
	StatusTerminated
	// StatusError means the last command or observation failed for this
	// instance. Start is allowed from here so the user can retry.
	StatusError
)

// String returns the display name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	case StatusTerminated:
		return "terminated"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// statusFromProvider maps an EC2 state string onto the local status enum.
// "shutting-down" is the transition into terminated; it renders as stopping.
func statusFromProvider(state string) Status {
	switch state {
	case "pending":
		return StatusPending
	case "running":
		return StatusRunning
	case "stopping", "shutting-down":
		return StatusStopping
	case "stopped":
		return StatusStopped
	case "terminated":
		return StatusTerminated
	default:
		return StatusUnknown
	}
}
