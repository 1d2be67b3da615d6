package fleet

import (
	"context"
	"ec2switch/config"
	"ec2switch/log"
	"ec2switch/provider"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func init() {
	log.Initialize(false)
}

// fakeGateway implements provider.Gateway for tests.
type fakeGateway struct {
	mu           sync.Mutex
	observations map[string]provider.Observation
	describeErr  error
	startErr     error
	stopErr      error
	startCalls   []string
	stopCalls    []string

	// onStart, when set, runs inside Start before the error is returned.
	// Used to race a reconcile against a command in flight.
	onStart func(id string)
}

func (g *fakeGateway) Describe(_ context.Context, ids []string) (map[string]provider.Observation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.describeErr != nil {
		return nil, g.describeErr
	}
	out := make(map[string]provider.Observation)
	for _, id := range ids {
		if obs, ok := g.observations[id]; ok {
			out[id] = obs
		}
	}
	return out, nil
}

func (g *fakeGateway) Start(_ context.Context, id string) error {
	g.mu.Lock()
	g.startCalls = append(g.startCalls, id)
	onStart := g.onStart
	err := g.startErr
	g.mu.Unlock()
	if onStart != nil {
		onStart(id)
	}
	return err
}

func (g *fakeGateway) Stop(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopCalls = append(g.stopCalls, id)
	return g.stopErr
}

// fakeClock is a manually advanced clock for grace period tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func writeRegistry(t *testing.T, content string) *config.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instances.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	registry, err := config.LoadRegistry(path, "ec2-user")
	require.NoError(t, err)
	return registry
}

func twoInstanceRegistry(t *testing.T) *config.Registry {
	t.Helper()
	return writeRegistry(t, `
[alpha]
id = i-aaa

[bravo]
id = i-bbb
`)
}

func obsStopped(id string) provider.Observation {
	return provider.Observation{InstanceID: id, State: "stopped"}
}

func obsRunning(id, addr string) provider.Observation {
	return provider.Observation{
		InstanceID:    id,
		State:         "running",
		PublicAddress: addr,
		LaunchedAt:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newTestController(t *testing.T, gw *fakeGateway, clock *fakeClock) *Controller {
	t.Helper()
	opts := Options{GracePeriod: 2 * time.Minute}
	if clock != nil {
		opts.Now = clock.now
	}
	return NewController(twoInstanceRegistry(t), gw, opts)
}

func TestNewControllerSeedsUnknown(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)

	states := c.States()
	require.Len(t, states, 2)
	require.Equal(t, "i-aaa", states[0].ID)
	require.Equal(t, "alpha", states[0].Name)
	require.Equal(t, StatusUnknown, states[0].Status)
	require.Equal(t, "i-bbb", states[1].ID)
}

func TestRequestStartOptimisticTransition(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(t, gw, nil)
	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)

	require.NoError(t, c.RequestStart(context.Background(), "i-aaa"))

	st, ok := c.State("i-aaa")
	require.True(t, ok)
	require.Equal(t, StatusPending, st.Status)
	require.NotNil(t, st.Pending)
	require.Equal(t, ActionStarting, st.Pending.Kind)
	require.Empty(t, st.PublicAddress)
	require.Equal(t, []string{"i-aaa"}, gw.startCalls)
}

func TestRequestStopOptimisticTransition(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(t, gw, nil)
	c.Reconcile("i-aaa", obsRunning("i-aaa", "10.0.0.5"), 0)

	require.NoError(t, c.RequestStop(context.Background(), "i-aaa"))

	st, _ := c.State("i-aaa")
	require.Equal(t, StatusStopping, st.Status)
	require.NotNil(t, st.Pending)
	require.Equal(t, ActionStopping, st.Pending.Kind)
	require.Empty(t, st.PublicAddress)
	require.Equal(t, []string{"i-aaa"}, gw.stopCalls)
}

func TestRequestStartFromRunningRejected(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(t, gw, nil)
	c.Reconcile("i-aaa", obsRunning("i-aaa", "10.0.0.5"), 0)
	before, _ := c.State("i-aaa")

	err := c.RequestStart(context.Background(), "i-aaa")
	require.ErrorIs(t, err, ErrInvalidTransition)

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "i-aaa", te.ID)
	require.Equal(t, StatusRunning, te.From)

	after, _ := c.State("i-aaa")
	require.Equal(t, before.Status, after.Status)
	require.Equal(t, before.PublicAddress, after.PublicAddress)
	require.Empty(t, gw.startCalls)
}

func TestRequestStopFromStoppedRejected(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(t, gw, nil)
	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)

	err := c.RequestStop(context.Background(), "i-aaa")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Empty(t, gw.stopCalls)
}

func TestRequestWhilePendingFailsFast(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(t, gw, nil)
	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)
	require.NoError(t, c.RequestStart(context.Background(), "i-aaa"))

	err := c.RequestStart(context.Background(), "i-aaa")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Len(t, gw.startCalls, 1)
}

func TestRequestUnknownInstance(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)

	err := c.RequestStart(context.Background(), "i-nope")
	require.ErrorIs(t, err, ErrUnknownInstance)
}

func TestRequestStartGatewayRejectionReverts(t *testing.T) {
	gw := &fakeGateway{startErr: errors.New("UnauthorizedOperation: nope")}
	c := newTestController(t, gw, nil)
	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)

	err := c.RequestStart(context.Background(), "i-aaa")
	require.Error(t, err)

	st, _ := c.State("i-aaa")
	require.Equal(t, StatusStopped, st.Status)
	require.Nil(t, st.Pending)
	require.Contains(t, st.LastError, "UnauthorizedOperation")
}

func TestRevertAfterReconcileOnlyRecordsError(t *testing.T) {
	// The reconcile lands between the optimistic transition and the gateway
	// rejection. The newer token wins; the rejection only leaves a trace.
	gw := &fakeGateway{startErr: errors.New("RequestLimitExceeded")}
	c := newTestController(t, gw, nil)
	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)

	gw.onStart = func(id string) {
		c.Reconcile(id, obsRunning(id, "10.0.0.5"), c.Tokens()[id])
	}

	err := c.RequestStart(context.Background(), "i-aaa")
	require.Error(t, err)

	st, _ := c.State("i-aaa")
	require.Equal(t, StatusRunning, st.Status)
	require.Equal(t, "10.0.0.5", st.PublicAddress)
	require.Contains(t, st.LastError, "RequestLimitExceeded")
}

func TestReconcileCompletesStart(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(t, gw, nil)
	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)
	require.NoError(t, c.RequestStart(context.Background(), "i-aaa"))

	c.Reconcile("i-aaa", obsRunning("i-aaa", "10.0.0.5"), c.Tokens()["i-aaa"])

	st, _ := c.State("i-aaa")
	require.Equal(t, StatusRunning, st.Status)
	require.Nil(t, st.Pending)
	require.Equal(t, "10.0.0.5", st.PublicAddress)
	require.Empty(t, st.LastError)
}

func TestReconcileStaleTokenDiscarded(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(t, gw, nil)
	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)

	// Snapshot from before the command.
	stale := c.Tokens()["i-aaa"]
	require.NoError(t, c.RequestStart(context.Background(), "i-aaa"))

	// A describe that raced the command still reports stopped. It must not
	// clobber the optimistic transition.
	c.Reconcile("i-aaa", obsStopped("i-aaa"), stale)

	st, _ := c.State("i-aaa")
	require.Equal(t, StatusPending, st.Status)
	require.NotNil(t, st.Pending)
}

func TestReconcileConsistentObservationKeepsOptimism(t *testing.T) {
	// A fresh describe may still see the old status for a while. Same token
	// generation, but the optimistic status wins.
	gw := &fakeGateway{}
	c := newTestController(t, gw, nil)
	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)
	require.NoError(t, c.RequestStart(context.Background(), "i-aaa"))

	c.Reconcile("i-aaa", obsStopped("i-aaa"), c.Tokens()["i-aaa"])

	st, _ := c.State("i-aaa")
	require.Equal(t, StatusPending, st.Status)
	require.NotNil(t, st.Pending)
}

func TestReconcileGraceTimeoutMarksError(t *testing.T) {
	clock := newFakeClock()
	gw := &fakeGateway{}
	c := newTestController(t, gw, clock)
	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)
	require.NoError(t, c.RequestStart(context.Background(), "i-aaa"))

	clock.advance(3 * time.Minute)
	c.Reconcile("i-aaa", obsStopped("i-aaa"), c.Tokens()["i-aaa"])

	st, _ := c.State("i-aaa")
	require.Equal(t, StatusError, st.Status)
	require.Nil(t, st.Pending)
	require.Contains(t, st.LastError, "did not complete")
}

func TestReconcileProgressResetsGraceClock(t *testing.T) {
	clock := newFakeClock()
	gw := &fakeGateway{}
	c := newTestController(t, gw, clock)
	c.Reconcile("i-aaa", obsRunning("i-aaa", "10.0.0.5"), 0)
	require.NoError(t, c.RequestStop(context.Background(), "i-aaa"))
	token := c.Tokens()["i-aaa"]

	// 90s in, the provider reports the stop is underway. That progress
	// restarts the grace clock.
	clock.advance(90 * time.Second)
	c.Reconcile("i-aaa", provider.Observation{InstanceID: "i-aaa", State: "stopping"}, token)

	clock.advance(90 * time.Second)
	c.Reconcile("i-aaa", provider.Observation{InstanceID: "i-aaa", State: "stopping"}, token)

	st, _ := c.State("i-aaa")
	require.Equal(t, StatusStopping, st.Status)
	require.NotNil(t, st.Pending)

	// Completion still lands normally.
	c.Reconcile("i-aaa", obsStopped("i-aaa"), token)
	st, _ = c.State("i-aaa")
	require.Equal(t, StatusStopped, st.Status)
	require.Nil(t, st.Pending)
}

func TestReconcileInconsistentObservationDropsPending(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(t, gw, nil)
	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)
	require.NoError(t, c.RequestStart(context.Background(), "i-aaa"))

	// Something else is stopping the instance while our start waits.
	c.Reconcile("i-aaa", provider.Observation{InstanceID: "i-aaa", State: "stopping"}, c.Tokens()["i-aaa"])

	st, _ := c.State("i-aaa")
	require.Equal(t, StatusStopping, st.Status)
	require.Nil(t, st.Pending)
}

func TestReconcileAdoptsExternalChanges(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)
	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)

	// Someone started the instance from the console.
	c.Reconcile("i-aaa", obsRunning("i-aaa", "10.0.0.5"), 0)

	st, _ := c.State("i-aaa")
	require.Equal(t, StatusRunning, st.Status)
	require.Equal(t, "10.0.0.5", st.PublicAddress)
}

func TestReconcileAdoptsNameTag(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)

	obs := obsRunning("i-aaa", "10.0.0.5")
	obs.Name = "dev-box"
	c.Reconcile("i-aaa", obs, 0)

	st, _ := c.State("i-aaa")
	require.Equal(t, "dev-box", st.Name)

	// A later observation without a name tag keeps the adopted one.
	c.Reconcile("i-aaa", obsRunning("i-aaa", "10.0.0.5"), 0)
	st, _ = c.State("i-aaa")
	require.Equal(t, "dev-box", st.Name)
}

func TestAddressOnlyWhileRunning(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)

	// The provider can report a lingering address on a non-running instance.
	obs := provider.Observation{InstanceID: "i-aaa", State: "stopping", PublicAddress: "10.0.0.5"}
	c.Reconcile("i-aaa", obs, 0)

	st, _ := c.State("i-aaa")
	require.Equal(t, StatusStopping, st.Status)
	require.Empty(t, st.PublicAddress)
}

func TestAddressInvariantAcrossRandomObservations(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)

	states := []string{"pending", "running", "stopping", "stopped", "shutting-down", "terminated"}
	for i := 0; i < 200; i++ {
		id := "i-aaa"
		if i%2 == 1 {
			id = "i-bbb"
		}
		obs := provider.Observation{
			InstanceID:    id,
			State:         states[i%len(states)],
			PublicAddress: fmt.Sprintf("10.0.0.%d", i%7),
		}
		c.Reconcile(id, obs, c.Tokens()[id])

		for _, st := range c.States() {
			if st.Status == StatusRunning {
				require.NotEmpty(t, st.PublicAddress)
			} else {
				require.Empty(t, st.PublicAddress)
			}
		}
	}
}

func TestReportError(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)
	c.Reconcile("i-aaa", obsRunning("i-aaa", "10.0.0.5"), 0)

	c.ReportError("i-aaa", errors.New("instance missing from describe result"))

	st, _ := c.State("i-aaa")
	require.Equal(t, StatusError, st.Status)
	require.Empty(t, st.PublicAddress)
	require.Contains(t, st.LastError, "missing")
}

func TestReportErrorKeepsPendingStatus(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(t, gw, nil)
	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)
	require.NoError(t, c.RequestStart(context.Background(), "i-aaa"))

	c.ReportError("i-aaa", errors.New("describe hiccup"))

	st, _ := c.State("i-aaa")
	require.Equal(t, StatusPending, st.Status)
	require.NotNil(t, st.Pending)
	require.Contains(t, st.LastError, "hiccup")
}

func TestConnectable(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)
	c.Reconcile("i-aaa", obsRunning("i-aaa", "10.0.0.5"), 0)
	c.Reconcile("i-bbb", obsStopped("i-bbb"), 0)

	st, err := c.Connectable("i-aaa")
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5", st.PublicAddress)

	_, err = c.Connectable("i-bbb")
	require.ErrorIs(t, err, ErrNotReachable)

	_, err = c.Connectable("i-nope")
	require.ErrorIs(t, err, ErrUnknownInstance)
}

func TestSubscribePublishesOnChange(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)
	events := c.Subscribe()

	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)

	select {
	case ev := <-events:
		require.Equal(t, "i-aaa", ev.State.ID)
		require.Equal(t, StatusStopped, ev.State.Status)
	default:
		t.Fatal("expected an event after a status change")
	}

	// The same observation again changes nothing observable, so no event.
	c.Reconcile("i-aaa", obsStopped("i-aaa"), 0)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event: %+v", ev.State)
	default:
	}
}

func TestSubscribeDoesNotBlockWhenFull(t *testing.T) {
	c := newTestController(t, &fakeGateway{}, nil)
	_ = c.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2*eventBufferSize; i++ {
			state := "stopped"
			if i%2 == 0 {
				state = "running"
			}
			obs := provider.Observation{InstanceID: "i-aaa", State: state}
			if state == "running" {
				obs.PublicAddress = "10.0.0.5"
			}
			c.Reconcile("i-aaa", obs, 0)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("controller blocked on a full subscriber channel")
	}
}
