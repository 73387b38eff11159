package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/deskwatchhq/deskwatch/internal/events"
	"github.com/deskwatchhq/deskwatch/pkg/types"
)

// Store maintains in-memory gauges and counters for monitor telemetry.
type Store struct {
	pollCycles      atomic.Uint64
	fetchFailures   atomic.Uint64
	recordsSkipped  atomic.Uint64
	alertsSent      atomic.Uint64
	notifyFailures  atomic.Uint64
	acknowledgments atomic.Uint64
	escalations     atomic.Uint64
	episodesStarted atomic.Uint64
	episodesEnded   atomic.Uint64
	activeEpisodes  atomic.Int64

	readinessState      atomic.Int64
	readinessReason     atomic.Value
	readyTransitions    atomic.Uint64
	notReadyTransitions atomic.Uint64
}

// NewStore constructs a Store with zeroed metrics.
func NewStore() *Store {
	store := &Store{}
	store.readinessReason.Store("")
	return store
}

// Snapshot captures the current metric values in a plain struct.
type Snapshot struct {
	PollCycles          uint64
	FetchFailures       uint64
	RecordsSkipped      uint64
	AlertsSent          uint64
	NotifyFailures      uint64
	Acknowledgments     uint64
	Escalations         uint64
	EpisodesStarted     uint64
	EpisodesEnded       uint64
	ActiveEpisodes      int64
	Ready               bool
	ReadyReason         string
	ReadyTransitions    uint64
	NotReadyTransitions uint64
}

// Snapshot returns a point-in-time copy of the metrics.
func (s *Store) Snapshot() Snapshot {
	reason, _ := s.readinessReason.Load().(string)
	return Snapshot{
		PollCycles:          s.pollCycles.Load(),
		FetchFailures:       s.fetchFailures.Load(),
		RecordsSkipped:      s.recordsSkipped.Load(),
		AlertsSent:          s.alertsSent.Load(),
		NotifyFailures:      s.notifyFailures.Load(),
		Acknowledgments:     s.acknowledgments.Load(),
		Escalations:         s.escalations.Load(),
		EpisodesStarted:     s.episodesStarted.Load(),
		EpisodesEnded:       s.episodesEnded.Load(),
		ActiveEpisodes:      s.activeEpisodes.Load(),
		Ready:               s.readinessState.Load() == 1,
		ReadyReason:         reason,
		ReadyTransitions:    s.readyTransitions.Load(),
		NotReadyTransitions: s.notReadyTransitions.Load(),
	}
}

// PollRecorder receives observations from the poll loop.
type PollRecorder interface {
	IncPollCycles()
	IncFetchFailures()
	IncRecordsSkipped()
	IncAlertsSent()
	IncNotifyFailures()
	ObserveActiveEpisodes(n int)
}

// ActionRecorder receives observations from inbound action handling.
type ActionRecorder interface {
	IncAcknowledgments()
	IncEscalations()
}

type NoopPollRecorder struct{}

func (NoopPollRecorder) IncPollCycles()            {}
func (NoopPollRecorder) IncFetchFailures()         {}
func (NoopPollRecorder) IncRecordsSkipped()        {}
func (NoopPollRecorder) IncAlertsSent()            {}
func (NoopPollRecorder) IncNotifyFailures()        {}
func (NoopPollRecorder) ObserveActiveEpisodes(int) {}

type NoopActionRecorder struct{}

func (NoopActionRecorder) IncAcknowledgments() {}
func (NoopActionRecorder) IncEscalations()     {}

// PollRecorder returns an implementation of PollRecorder backed by the store.
func (s *Store) PollRecorder() PollRecorder {
	return pollRecorder{store: s}
}

// ActionRecorder returns an implementation of ActionRecorder backed by the store.
func (s *Store) ActionRecorder() ActionRecorder {
	return actionRecorder{store: s}
}

type pollRecorder struct {
	store *Store
}

func (r pollRecorder) IncPollCycles()     { r.store.pollCycles.Add(1) }
func (r pollRecorder) IncFetchFailures()  { r.store.fetchFailures.Add(1) }
func (r pollRecorder) IncRecordsSkipped() { r.store.recordsSkipped.Add(1) }
func (r pollRecorder) IncAlertsSent()     { r.store.alertsSent.Add(1) }
func (r pollRecorder) IncNotifyFailures() { r.store.notifyFailures.Add(1) }

func (r pollRecorder) ObserveActiveEpisodes(n int) {
	if n < 0 {
		n = 0
	}
	r.store.activeEpisodes.Store(int64(n))
}

type actionRecorder struct {
	store *Store
}

func (r actionRecorder) IncAcknowledgments() { r.store.acknowledgments.Add(1) }
func (r actionRecorder) IncEscalations()     { r.store.escalations.Add(1) }

// EventRecorder returns an events.Recorder that counts episode starts and
// ends in the store. Other event types are ignored; their counters are
// already fed by the poll and action recorders.
func (s *Store) EventRecorder() events.Recorder {
	return eventRecorder{store: s}
}

type eventRecorder struct {
	store *Store
}

func (r eventRecorder) Record(evt types.Event) {
	switch evt.Type {
	case types.EventEpisodeStarted:
		r.store.episodesStarted.Add(1)
	case types.EventEpisodeEnded:
		r.store.episodesEnded.Add(1)
	}
}

// ObserveReadiness records the readiness gauge and transition counters.
func (s *Store) ObserveReadiness(ready bool, reason string) {
	prev := s.readinessState.Load()
	if ready {
		if prev == 0 {
			s.readyTransitions.Add(1)
		}
		s.readinessState.Store(1)
		s.readinessReason.Store("")
		return
	}
	if prev == 1 {
		s.notReadyTransitions.Add(1)
	}
	s.readinessState.Store(0)
	s.readinessReason.Store(reason)
}

// WritePrometheus renders the current metrics using the Prometheus text format.
func (s *Store) WritePrometheus(w io.Writer) error {
	snap := s.Snapshot()
	readyValue := 0
	if snap.Ready {
		readyValue = 1
	}
	reason := snap.ReadyReason
	if snap.Ready && reason == "" {
		reason = "ready"
	}
	if !snap.Ready && reason == "" {
		reason = "unknown"
	}
	lines := []string{
		"# HELP deskwatch_poll_cycles_total Total completed poll cycles, including failed fetches.",
		"# TYPE deskwatch_poll_cycles_total counter",
		fmt.Sprintf("deskwatch_poll_cycles_total %d", snap.PollCycles),
		"# HELP deskwatch_fetch_failures_total Total provider fetches that failed and skipped the cycle.",
		"# TYPE deskwatch_fetch_failures_total counter",
		fmt.Sprintf("deskwatch_fetch_failures_total %d", snap.FetchFailures),
		"# HELP deskwatch_records_skipped_total Total malformed provider records skipped.",
		"# TYPE deskwatch_records_skipped_total counter",
		fmt.Sprintf("deskwatch_records_skipped_total %d", snap.RecordsSkipped),
		"# HELP deskwatch_alerts_sent_total Total threshold alerts delivered.",
		"# TYPE deskwatch_alerts_sent_total counter",
		fmt.Sprintf("deskwatch_alerts_sent_total %d", snap.AlertsSent),
		"# HELP deskwatch_notify_failures_total Total alert deliveries that failed.",
		"# TYPE deskwatch_notify_failures_total counter",
		fmt.Sprintf("deskwatch_notify_failures_total %d", snap.NotifyFailures),
		"# HELP deskwatch_acknowledgments_total Total alert acknowledgments received.",
		"# TYPE deskwatch_acknowledgments_total counter",
		fmt.Sprintf("deskwatch_acknowledgments_total %d", snap.Acknowledgments),
		"# HELP deskwatch_escalations_total Total help requests escalated to a human.",
		"# TYPE deskwatch_escalations_total counter",
		fmt.Sprintf("deskwatch_escalations_total %d", snap.Escalations),
		"# HELP deskwatch_episodes_started_total Total watched-status episodes opened.",
		"# TYPE deskwatch_episodes_started_total counter",
		fmt.Sprintf("deskwatch_episodes_started_total %d", snap.EpisodesStarted),
		"# HELP deskwatch_episodes_ended_total Total watched-status episodes closed.",
		"# TYPE deskwatch_episodes_ended_total counter",
		fmt.Sprintf("deskwatch_episodes_ended_total %d", snap.EpisodesEnded),
		"# HELP deskwatch_active_episodes Current number of agents in the watched status.",
		"# TYPE deskwatch_active_episodes gauge",
		fmt.Sprintf("deskwatch_active_episodes %d", snap.ActiveEpisodes),
		"# HELP deskwatch_ready Whether the monitor considers itself ready (1=ready).",
		"# TYPE deskwatch_ready gauge",
		fmt.Sprintf("deskwatch_ready %d", readyValue),
		"# HELP deskwatch_ready_info Reason associated with the most recent readiness evaluation.",
		"# TYPE deskwatch_ready_info gauge",
		fmt.Sprintf("deskwatch_ready_info{reason=%q} 1", reason),
		"# HELP deskwatch_ready_transitions_total Count of readiness state transitions by resulting state.",
		"# TYPE deskwatch_ready_transitions_total counter",
		fmt.Sprintf("deskwatch_ready_transitions_total{state=%q} %d", "ready", snap.ReadyTransitions),
		fmt.Sprintf("deskwatch_ready_transitions_total{state=%q} %d", "not_ready", snap.NotReadyTransitions),
		"",
	}
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// NewHTTPHandler returns an http.Handler that serves Prometheus formatted metrics.
func NewHTTPHandler(store *Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if r.Method == http.MethodHead {
			return
		}
		if err := store.WritePrometheus(w); err != nil {
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
		}
	})
}
