package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/deskwatchhq/deskwatch/internal/events"
	"github.com/deskwatchhq/deskwatch/pkg/types"
)

const defaultThreshold = 600 * time.Second

// Standing is one agent currently in the watched status, with the time
// accumulated so far in the current episode.
type Standing struct {
	AgentID   int64
	AgentName string
	Duration  time.Duration
}

// Report is the outcome of one update cycle. Active lists every live
// episode sorted by duration descending; ToAlert lists the episodes that
// crossed the threshold this cycle and have not been alerted before.
// Skipped counts malformed records dropped from the snapshot.
type Report struct {
	Active  []Standing
	ToAlert []Standing
	Skipped int
}

type episode struct {
	agentName string
	startedAt time.Time
}

// Tracker owns the per-agent episode map and the outstanding-alert ledger.
// Ledger membership is the single source of truth for alert suppression: an
// agent alerts at most once per episode, and the entry lives until the
// episode ends. The value marks whether a human has acknowledged the alert.
type Tracker struct {
	watched   types.AgentStatus
	threshold time.Duration
	excluded  map[int64]struct{}
	events    events.Recorder

	mu       sync.Mutex
	episodes map[int64]*episode
	ledger   map[int64]bool
}

type Option func(*Tracker)

func WithWatchedStatus(status types.AgentStatus) Option {
	return func(t *Tracker) {
		if status != "" {
			t.watched = status
		}
	}
}

func WithExcluded(ids map[int64]struct{}) Option {
	return func(t *Tracker) {
		if ids != nil {
			t.excluded = ids
		}
	}
}

func WithEventRecorder(rec events.Recorder) Option {
	return func(t *Tracker) {
		if rec != nil {
			t.events = rec
		}
	}
}

func New(threshold time.Duration, opts ...Option) *Tracker {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	t := &Tracker{
		watched:   types.StatusTransfersOnly,
		threshold: threshold,
		excluded:  map[int64]struct{}{},
		events:    events.NoopRecorder{},
		episodes:  make(map[int64]*episode),
		ledger:    make(map[int64]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Update applies one full status snapshot. Agents absent from the snapshot
// are treated as having left the watched status. Records missing an id or
// name are skipped individually and never abort the cycle; a skipped record
// that still carries an id, like an unknown-status record, counts as
// presence, so a single-field glitch cannot end a live episode.
func (t *Tracker) Update(now time.Time, records []types.AgentRecord) Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	var skipped int
	seen := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		if !rec.Valid() {
			skipped++
			// A glitched record that still names the agent must not
			// end a live episode; only unidentifiable records fall
			// through to the absence sweep.
			if rec.ID != 0 {
				seen[rec.ID] = struct{}{}
			}
			continue
		}
		if _, skip := t.excluded[rec.ID]; skip {
			continue
		}
		seen[rec.ID] = struct{}{}

		if rec.Status == types.StatusUnknown {
			// Roster listed the agent but availability was not
			// observed this cycle; leave any episode untouched.
			continue
		}

		if rec.Status == t.watched {
			ep, ok := t.episodes[rec.ID]
			if !ok {
				t.episodes[rec.ID] = &episode{agentName: rec.Name, startedAt: now}
				// Stale suppression from a previous run of this id
				// must not silence the fresh episode.
				delete(t.ledger, rec.ID)
				t.events.Record(types.Event{Type: types.EventEpisodeStarted, Timestamp: now, AgentID: rec.ID, AgentName: rec.Name})
				continue
			}
			ep.agentName = rec.Name
			continue
		}
		t.endEpisodeLocked(now, rec.ID)
	}

	for id := range t.episodes {
		if _, ok := seen[id]; !ok {
			t.endEpisodeLocked(now, id)
		}
	}

	report := Report{Active: make([]Standing, 0, len(t.episodes)), Skipped: skipped}
	for id, ep := range t.episodes {
		standing := Standing{
			AgentID:   id,
			AgentName: ep.agentName,
			Duration:  now.Sub(ep.startedAt),
		}
		report.Active = append(report.Active, standing)

		if standing.Duration >= t.threshold {
			if _, alerted := t.ledger[id]; !alerted {
				t.ledger[id] = false
				report.ToAlert = append(report.ToAlert, standing)
			}
		}
	}
	sortStandings(report.Active)
	sortStandings(report.ToAlert)
	return report
}

// Acknowledge marks an outstanding alert as handled by a human. It reports
// whether a fresh entry was marked; acknowledging an agent with no
// outstanding alert, or one already acknowledged, is a no-op. The episode
// itself is untouched and stays silent until the agent leaves and re-enters
// the status.
func (t *Tracker) Acknowledge(agentID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	acked, ok := t.ledger[agentID]
	if !ok || acked {
		return false
	}
	t.ledger[agentID] = true
	return true
}

// Snapshot returns the live episodes at the given instant, sorted by
// duration descending.
func (t *Tracker) Snapshot(now time.Time) []Standing {
	t.mu.Lock()
	defer t.mu.Unlock()

	active := make([]Standing, 0, len(t.episodes))
	for id, ep := range t.episodes {
		active = append(active, Standing{
			AgentID:   id,
			AgentName: ep.agentName,
			Duration:  now.Sub(ep.startedAt),
		})
	}
	sortStandings(active)
	return active
}

func (t *Tracker) endEpisodeLocked(now time.Time, id int64) {
	ep, ok := t.episodes[id]
	if !ok {
		return
	}
	delete(t.episodes, id)
	delete(t.ledger, id)
	t.events.Record(types.Event{Type: types.EventEpisodeEnded, Timestamp: now, AgentID: id, AgentName: ep.agentName})
}

func sortStandings(s []Standing) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Duration != s[j].Duration {
			return s[i].Duration > s[j].Duration
		}
		return s[i].AgentName < s[j].AgentName
	})
}
