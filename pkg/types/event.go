package types

import "time"

type EventType string

const (
	EventEpisodeStarted   EventType = "EpisodeStarted"
	EventEpisodeEnded     EventType = "EpisodeEnded"
	EventAlertSent        EventType = "AlertSent"
	EventAlertAcked       EventType = "AlertAcked"
	EventEscalationRaised EventType = "EscalationRaised"
)

type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"ts"`
	AgentID   int64          `json:"agent_id,omitempty"`
	AgentName string         `json:"agent_name,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}
