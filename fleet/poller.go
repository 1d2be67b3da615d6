package fleet

import (
	"context"
	"ec2switch/log"
	"ec2switch/provider"
	"fmt"
	"sync"
	"time"
)

// PollerOptions tunes a Poller.
type PollerOptions struct {
	// Interval is the idle polling interval.
	Interval time.Duration
	// BurstInterval is the faster interval used while a recently issued
	// command is settling.
	BurstInterval time.Duration
	// BurstPolls is how many fast polls a command arms.
	BurstPolls int
	// DescribeTimeout bounds a single describe call.
	DescribeTimeout time.Duration
}

func (o *PollerOptions) fillDefaults() {
	if o.Interval <= 0 {
		o.Interval = 60 * time.Second
	}
	if o.BurstInterval <= 0 {
		o.BurstInterval = 6 * time.Second
	}
	if o.BurstPolls <= 0 {
		o.BurstPolls = 10
	}
	if o.DescribeTimeout <= 0 {
		o.DescribeTimeout = 30 * time.Second
	}
}

// Poller periodically asks the gateway for the live state of every
// registered instance and feeds the results to the controller. Start/stop
// commands arm a burst of fast polls so their effect shows up quickly,
// mirroring how slowly instances actually move between states the rest of
// the time.
type Poller struct {
	controller *Controller
	gateway    provider.Gateway
	ids        []string
	opts       PollerOptions

	mu         sync.Mutex
	burstsLeft int

	poke chan struct{}
}

// NewPoller creates a poller for the given ids. It registers itself for
// command notifications on the controller.
func NewPoller(controller *Controller, gateway provider.Gateway, ids []string, opts PollerOptions) *Poller {
	opts.fillDefaults()
	p := &Poller{
		controller: controller,
		gateway:    gateway,
		ids:        ids,
		opts:       opts,
		poke:       make(chan struct{}, 1),
	}
	controller.SetOnCommand(p.NoteCommand)
	return p
}

// NoteCommand arms burst polling and schedules an immediate poll.
func (p *Poller) NoteCommand() {
	p.mu.Lock()
	p.burstsLeft = p.opts.BurstPolls
	p.mu.Unlock()
	p.Poke()
}

// Poke requests an immediate poll without waiting for the next tick.
func (p *Poller) Poke() {
	select {
	case p.poke <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-p.poke:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		p.PollOnce(ctx)
		timer.Reset(p.nextInterval())
	}
}

// PollOnce performs a single describe round-trip and reconciles the results.
// A transient gateway failure keeps all previous state and is retried on the
// next tick; per-id problems are isolated to the affected instance.
func (p *Poller) PollOnce(ctx context.Context) {
	tokens := p.controller.Tokens()

	describeCtx, cancel := context.WithTimeout(ctx, p.opts.DescribeTimeout)
	observations, err := p.gateway.Describe(describeCtx, p.ids)
	cancel()

	if err != nil {
		if provider.IsTransient(err) {
			log.WarningLog.Printf("describe failed, keeping previous state: %v", err)
			return
		}
		// A permanent failure of the whole describe (bad credentials, an id
		// the provider refuses) is surfaced per instance so one poisoned id
		// cannot silently hide the others.
		log.ErrorLog.Printf("describe failed permanently: %v", err)
		for _, id := range p.ids {
			p.controller.ReportError(id, err)
		}
		return
	}

	for _, id := range p.ids {
		obs, ok := observations[id]
		if !ok {
			p.controller.ReportError(id, fmt.Errorf("instance %s missing from describe result", id))
			continue
		}
		p.controller.Reconcile(id, obs, tokens[id])
	}
}

func (p *Poller) nextInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.burstsLeft > 0 {
		p.burstsLeft--
		return p.opts.BurstInterval
	}
	return p.opts.Interval
}
