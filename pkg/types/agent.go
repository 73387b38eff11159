package types

// AgentStatus is the availability state reported for a support agent.
type AgentStatus string

const (
	StatusTransfersOnly AgentStatus = "transfers_only"
	StatusAvailable     AgentStatus = "available"
	StatusNotAvailable  AgentStatus = "not_available"
	StatusOnCall        AgentStatus = "on_call"
	StatusOther         AgentStatus = "other"

	// StatusUnknown marks an agent present in the roster whose
	// availability could not be observed this cycle. Unknown is not a
	// status change: tracking state for the agent is left untouched.
	StatusUnknown AgentStatus = "unknown"
)

// AgentRecord is one agent as reported by the status provider. Records are
// ephemeral; a fresh set is supplied each poll.
type AgentRecord struct {
	ID     int64       `json:"id"`
	Name   string      `json:"name"`
	Status AgentStatus `json:"status"`
}

// Valid reports whether the record carries the fields tracking requires.
// Provider glitches occasionally yield partial records; those are skipped,
// never fatal.
func (r AgentRecord) Valid() bool {
	return r.ID != 0 && r.Name != ""
}
