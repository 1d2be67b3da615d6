// Package fleet owns the authoritative state of every tracked instance. The
// Controller is the single writer: the poller and the command paths feed it
// through Reconcile, RequestStart and RequestStop, and observers watch it
// through Subscribe. Nobody else touches InstanceState.
package fleet

import (
	"context"
	"ec2switch/config"
	"ec2switch/log"
	"ec2switch/provider"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidTransition is returned when a start/stop is not valid for the
// instance's current status.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrNotReachable is returned when a connect is attempted on an instance
// that is not running with a public address.
var ErrNotReachable = errors.New("instance not reachable")

// ErrUnknownInstance is returned for ids not present in the registry.
var ErrUnknownInstance = errors.New("unknown instance")

// TransitionError reports a rejected command. The instance state is left
// untouched.
type TransitionError struct {
	ID     string
	From   Status
	Action ActionKind
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot begin %s of %s while %s", e.Action, e.ID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Event is a state-change notification. State is a snapshot taken at
// emission time.
type Event struct {
	State InstanceState
}

// eventBufferSize is per subscriber. A subscriber that falls this far behind
// starts losing events rather than stalling reconciliation.
const eventBufferSize = 100

const defaultGracePeriod = 2 * time.Minute

// record pairs an instance's state with its command ordering counter.
// lastToken is bumped on every accepted command; reconciles carrying an
// older token snapshot are discarded as stale.
type record struct {
	state     InstanceState
	lastToken uint64
}

// Options tunes a Controller.
type Options struct {
	// GracePeriod is how long a pending action may go without observed
	// progress before it is demoted to StatusError.
	GracePeriod time.Duration
	// Now substitutes the clock in tests.
	Now func() time.Time
}

// Controller serializes all reads and writes of instance state.
type Controller struct {
	gateway     provider.Gateway
	gracePeriod time.Duration
	now         func() time.Time

	mu          sync.Mutex
	order       []string
	records     map[string]*record
	nextToken   uint64
	subscribers []chan Event
	onCommand   func()
}

// NewController seeds one Unknown state per registry entry, in registry
// order.
func NewController(registry *config.Registry, gateway provider.Gateway, opts Options) *Controller {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = defaultGracePeriod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Controller{
		gateway:     gateway,
		gracePeriod: opts.GracePeriod,
		now:         opts.Now,
		records:     make(map[string]*record),
	}
	for _, cfg := range registry.All() {
		c.order = append(c.order, cfg.ID)
		c.records[cfg.ID] = &record{state: InstanceState{
			ID:     cfg.ID,
			Name:   cfg.DisplayName,
			Status: StatusUnknown,
		}}
	}
	return c
}

// SetOnCommand registers a callback invoked after every accepted start/stop
// command. The poller uses it to switch into burst polling.
func (c *Controller) SetOnCommand(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommand = fn
}

// Subscribe returns a channel of state-change events. Delivery is
// best-effort: a full subscriber channel drops events instead of blocking
// the controller.
func (c *Controller) Subscribe() <-chan Event {
	ch := make(chan Event, eventBufferSize)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

// State returns a snapshot of one instance's state.
func (c *Controller) State(id string) (InstanceState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	if !ok {
		return InstanceState{}, false
	}
	return rec.state.clone(), true
}

// States returns snapshots of all instance states in registry order.
func (c *Controller) States() []InstanceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]InstanceState, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.records[id].state.clone())
	}
	return out
}

// Tokens returns the current command counter per instance. The poller takes
// this snapshot before a describe round-trip and passes it back to
// Reconcile, which uses it to detect results that predate a newer command.
func (c *Controller) Tokens() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	tokens := make(map[string]uint64, len(c.records))
	for id, rec := range c.records {
		tokens[id] = rec.lastToken
	}
	return tokens
}

// RequestStart issues a start command. Allowed only from Stopped or Error
// with no action already pending; anything else fails fast without touching
// state. The status moves to Pending optimistically; the gateway call runs
// outside the state lock and a rejection reverts the transition.
func (c *Controller) RequestStart(ctx context.Context, id string) error {
	return c.request(ctx, id, ActionStarting)
}

// RequestStop issues a stop command, allowed only from Running.
func (c *Controller) RequestStop(ctx context.Context, id string) error {
	return c.request(ctx, id, ActionStopping)
}

func (c *Controller) request(ctx context.Context, id string, kind ActionKind) error {
	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}

	st := &rec.state
	if st.Pending != nil || !startableFrom(kind, st.Status) {
		from := st.Status
		c.mu.Unlock()
		return &TransitionError{ID: id, From: from, Action: kind}
	}

	prev := st.clone()
	c.nextToken++
	token := c.nextToken
	rec.lastToken = token

	st.Pending = &PendingAction{Kind: kind, Token: token, IssuedAt: c.now()}
	st.LastError = ""
	if kind == ActionStarting {
		st.Status = StatusPending
	} else {
		st.Status = StatusStopping
	}
	st.PublicAddress = ""
	c.publishLocked(prev, *st)
	onCommand := c.onCommand
	c.mu.Unlock()

	var err error
	if kind == ActionStarting {
		err = c.gateway.Start(ctx, id)
	} else {
		err = c.gateway.Stop(ctx, id)
	}
	if err != nil {
		c.revert(id, token, prev, err)
		return fmt.Errorf("%s %s: %w", kind, id, err)
	}

	log.InfoLog.Printf("%s of %s accepted (token %d)", kind, id, token)
	if onCommand != nil {
		onCommand()
	}
	return nil
}

func startableFrom(kind ActionKind, s Status) bool {
	if kind == ActionStopping {
		return s == StatusRunning
	}
	return s == StatusStopped || s == StatusError
}

// revert undoes an optimistic transition after the gateway rejected the
// command. A reconcile may have already superseded the token; in that case
// the rejection only leaves a trace in LastError.
func (c *Controller) revert(id string, token uint64, prev InstanceState, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		return
	}
	st := &rec.state
	old := st.clone()
	if st.Pending != nil && st.Pending.Token == token {
		restored := prev.clone()
		restored.LastError = cause.Error()
		rec.state = restored
		c.publishLocked(old, rec.state)
		return
	}
	st.LastError = cause.Error()
	c.publishLocked(old, *st)
}

// Reconcile merges one observed status into the authoritative state. token
// is the poller's pre-describe snapshot for this id; results that predate a
// newer command are discarded.
func (c *Controller) Reconcile(id string, obs provider.Observation, token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		return
	}
	if token < rec.lastToken {
		log.Debug("discarding stale observation for %s (token %d < %d)", id, token, rec.lastToken)
		return
	}

	st := &rec.state
	prev := st.clone()
	now := c.now()

	st.LastObservedAt = now
	st.LastError = ""
	if obs.Name != "" {
		st.Name = obs.Name
	}
	if !obs.LaunchedAt.IsZero() {
		st.LaunchedAt = obs.LaunchedAt
	}

	observed := statusFromProvider(obs.State)
	switch {
	case st.Pending == nil:
		// No command in flight: adopt the provider's view directly. This is
		// how externally initiated starts and stops show up.
		st.Status = observed

	case observed == st.Pending.Kind.goal():
		st.Status = observed
		st.Pending = nil

	case now.Sub(st.Pending.IssuedAt) > c.gracePeriod:
		st.LastError = fmt.Sprintf("%s did not complete within %s", st.Pending.Kind, c.gracePeriod)
		st.Status = StatusError
		st.Pending = nil

	case st.Pending.Kind.consistent(observed):
		// The optimistic transition wins over observations of the old
		// status. Seeing the provider's own transitional status confirms
		// the command took effect and restarts the grace clock.
		if observed == st.Pending.Kind.transitional() {
			st.Status = observed
			st.Pending.IssuedAt = now
		}

	default:
		// An inconsistent status (e.g. stopping while we wait for a start)
		// means something else took control of the instance. The pending
		// action is moot; believe the provider.
		log.WarningLog.Printf("observed %s for %s while %s pending, dropping pending action",
			observed, id, st.Pending.Kind)
		st.Status = observed
		st.Pending = nil
	}

	if st.Status == StatusRunning {
		st.PublicAddress = obs.PublicAddress
	} else {
		st.PublicAddress = ""
	}

	c.publishLocked(prev, *st)
}

// ReportError records a permanent per-instance poll failure. With a command
// in flight the status is left alone (the grace period owns the outcome);
// otherwise the instance is marked Error.
func (c *Controller) ReportError(id string, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		return
	}
	st := &rec.state
	prev := st.clone()
	st.LastError = cause.Error()
	if st.Pending == nil {
		st.Status = StatusError
		st.PublicAddress = ""
	}
	c.publishLocked(prev, *st)
}

// Connectable returns the instance's state if an editor session may be
// opened against it right now.
func (c *Controller) Connectable(id string) (InstanceState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		return InstanceState{}, fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}
	st := rec.state
	if st.Status != StatusRunning || st.PublicAddress == "" {
		return InstanceState{}, fmt.Errorf("%w: %s is %s", ErrNotReachable, id, st.Status)
	}
	return st.clone(), nil
}

// publishLocked emits an event if anything observable changed. Must be
// called with c.mu held; sends never block.
func (c *Controller) publishLocked(prev, curr InstanceState) {
	if observablyEqual(prev, curr) {
		return
	}
	event := Event{State: curr.clone()}
	for _, ch := range c.subscribers {
		select {
		case ch <- event:
		default:
			log.WarningLog.Printf("dropped state change event for %s (subscriber channel full)", curr.ID)
		}
	}
}
