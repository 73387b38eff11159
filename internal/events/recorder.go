package events

import (
	"log"

	"github.com/deskwatchhq/deskwatch/pkg/types"
)

type Recorder interface {
	Record(event types.Event)
}

type NoopRecorder struct{}

func (NoopRecorder) Record(event types.Event) {}

type Multi struct {
	recorders []Recorder
}

func NewMulti(recorders ...Recorder) Multi {
	return Multi{recorders: recorders}
}

func (m Multi) Record(event types.Event) {
	for _, rec := range m.recorders {
		if rec != nil {
			rec.Record(event)
		}
	}
}

// LogRecorder writes monitor events to the operator log.
type LogRecorder struct {
	logger *log.Logger
}

func NewLogRecorder(logger *log.Logger) LogRecorder {
	return LogRecorder{logger: logger}
}

func (r LogRecorder) Record(event types.Event) {
	if r.logger == nil {
		return
	}
	if event.AgentName != "" {
		r.logger.Printf("event %s agent=%d (%s)", event.Type, event.AgentID, event.AgentName)
		return
	}
	r.logger.Printf("event %s", event.Type)
}
