package poller

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/deskwatchhq/deskwatch/internal/events"
	"github.com/deskwatchhq/deskwatch/internal/metrics"
	"github.com/deskwatchhq/deskwatch/internal/tracker"
	"github.com/deskwatchhq/deskwatch/pkg/types"
)

const (
	defaultInterval     = 60 * time.Second
	defaultFetchTimeout = 10 * time.Second
)

// StatusProvider supplies the current snapshot of trackable agents.
type StatusProvider interface {
	Fetch(ctx context.Context) ([]types.AgentRecord, error)
}

// Notifier delivers a threshold alert for a named agent.
type Notifier interface {
	Send(ctx context.Context, agentID int64, agentName string, duration time.Duration) error
}

// Poller drives the tracker on a fixed interval. One cycle runs fully
// before the next begins; a failed fetch skips the cycle and leaves the
// tracked state untouched.
type Poller struct {
	provider StatusProvider
	notifier Notifier
	tracker  *tracker.Tracker

	interval     time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *log.Logger
	events       events.Recorder
	metrics      metrics.PollRecorder
	observePoll  func(ts time.Time, err error)
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.fetchTimeout = d
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithEventRecorder(rec events.Recorder) Option {
	return func(p *Poller) {
		if rec != nil {
			p.events = rec
		}
	}
}

func WithMetrics(rec metrics.PollRecorder) Option {
	return func(p *Poller) {
		if rec != nil {
			p.metrics = rec
		}
	}
}

// WithPollObserver registers a callback invoked with each cycle's fetch
// outcome; readiness checking hangs off this.
func WithPollObserver(observe func(ts time.Time, err error)) Option {
	return func(p *Poller) {
		if observe != nil {
			p.observePoll = observe
		}
	}
}

func New(provider StatusProvider, notifier Notifier, tr *tracker.Tracker, opts ...Option) *Poller {
	p := &Poller{
		provider:     provider,
		notifier:     notifier,
		tracker:      tr,
		interval:     defaultInterval,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		logger:       log.New(io.Discard, "", 0),
		events:       events.NoopRecorder{},
		metrics:      metrics.NoopPollRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until the context is cancelled. The first cycle executes
// immediately; subsequent cycles are wall-clock spaced by the interval.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Printf("status monitor started (interval=%s)", p.interval)

	p.cycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("status monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	now := p.now()
	p.metrics.IncPollCycles()

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	records, err := p.provider.Fetch(fetchCtx)
	cancel()
	if p.observePoll != nil {
		p.observePoll(now, err)
	}
	if err != nil {
		// Transient provider outage: keep every episode as-is rather
		// than treating silence as all-clear.
		p.metrics.IncFetchFailures()
		p.logger.Printf("provider fetch failed, skipping cycle: %v", err)
		return
	}
	if len(records) == 0 {
		// The roster lists every agent regardless of status, so an
		// empty snapshot is a provider glitch, not an all-clear.
		p.metrics.IncFetchFailures()
		p.logger.Printf("provider returned an empty roster, skipping cycle")
		return
	}

	report := p.tracker.Update(now, records)
	p.metrics.ObserveActiveEpisodes(len(report.Active))
	for i := 0; i < report.Skipped; i++ {
		p.metrics.IncRecordsSkipped()
	}

	for _, standing := range report.ToAlert {
		if err := p.notifier.Send(ctx, standing.AgentID, standing.AgentName, standing.Duration); err != nil {
			p.metrics.IncNotifyFailures()
			p.logger.Printf("alert delivery failed for agent %d (%s): %v", standing.AgentID, standing.AgentName, err)
			continue
		}
		p.metrics.IncAlertsSent()
		p.events.Record(types.Event{
			Type:      types.EventAlertSent,
			Timestamp: now,
			AgentID:   standing.AgentID,
			AgentName: standing.AgentName,
		})
	}

	p.logger.Printf("cycle complete: %d agents in watched status, %d alerted", len(report.Active), len(report.ToAlert))
}
