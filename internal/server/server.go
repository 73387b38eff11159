// Package server exposes the inbound webhook surface: Slack event and
// interaction endpoints plus health and metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/deskwatchhq/deskwatch/internal/events"
	"github.com/deskwatchhq/deskwatch/internal/health"
	"github.com/deskwatchhq/deskwatch/internal/metrics"
	"github.com/deskwatchhq/deskwatch/internal/slack"
	"github.com/deskwatchhq/deskwatch/pkg/types"
)

const maxBodyBytes = 1 << 20

// MessageHandler consumes inbound channel messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, event slack.MessageEvent) error
}

// ActionRouter consumes feedback and escalation button clicks.
type ActionRouter interface {
	Route(ctx context.Context, payload slack.InteractionPayload) error
}

// Acknowledger silences an active alert episode.
type Acknowledger interface {
	Acknowledge(agentID int64) bool
}

// Messenger posts replies and rewrites previously posted messages.
type Messenger interface {
	PostMessage(ctx context.Context, msg slack.Message) (string, string, error)
	UpdateMessage(ctx context.Context, channel, ts string, msg slack.Message) error
}

// Config controls HTTP server settings.
type Config struct {
	Addr          string
	SigningSecret string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

// Dependencies holds external collaborators required by the server.
type Dependencies struct {
	Logger     *log.Logger
	Bot        MessageHandler
	Escalation ActionRouter
	Tracker    Acknowledger
	Messenger  Messenger
	Health     *health.Checker
	Metrics    *metrics.Store
	Events     events.Recorder
	Now        func() time.Time
}

// Server wraps http.Server for convenience.
type Server struct {
	*http.Server
	cfg  Config
	deps Dependencies
}

// New constructs the webhook HTTP server.
func New(cfg Config, deps Dependencies) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := mux.NewRouter()
	r.HandleFunc("/slack/events", eventsHandler(cfg, deps)).Methods(http.MethodPost)
	r.HandleFunc("/slack/actions", actionsHandler(cfg, deps)).Methods(http.MethodPost)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.HandleFunc("/readyz", readyHandler(deps)).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", metrics.NewHTTPHandler(deps.Metrics)).Methods(http.MethodGet, http.MethodHead)
	}

	s := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return &Server{Server: s, cfg: cfg, deps: deps}
}

// readSignedBody reads the request body and checks its Slack signature.
func readSignedBody(cfg Config, deps Dependencies, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	ts := r.Header.Get("X-Slack-Request-Timestamp")
	sig := r.Header.Get("X-Slack-Signature")
	if !slack.VerifySignature(cfg.SigningSecret, ts, sig, body, deps.Now()) {
		return nil, fmt.Errorf("signature verification failed")
	}
	return body, nil
}

func eventsHandler(cfg Config, deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readSignedBody(cfg, deps, r)
		if err != nil {
			deps.Logger.Printf("events: %v", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var callback slack.EventCallback
		if err := json.Unmarshal(body, &callback); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		if callback.Type == "url_verification" {
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, callback.Challenge)
			return
		}

		if callback.Event.Type == "message" && deps.Bot != nil {
			if err := deps.Bot.HandleMessage(r.Context(), callback.Event); err != nil {
				deps.Logger.Printf("events: handle message from %s: %v", callback.Event.User, err)
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

func actionsHandler(cfg Config, deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readSignedBody(cfg, deps, r)
		if err != nil {
			deps.Logger.Printf("actions: %v", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		form, err := url.ParseQuery(string(body))
		if err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		var payload slack.InteractionPayload
		if err := json.Unmarshal([]byte(form.Get("payload")), &payload); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if len(payload.Actions) == 0 {
			w.WriteHeader(http.StatusOK)
			return
		}

		switch payload.Actions[0].ActionID {
		case slack.ActionAcknowledgeAlert:
			handleAcknowledge(r.Context(), deps, payload)
		default:
			if deps.Escalation != nil {
				if err := deps.Escalation.Route(r.Context(), payload); err != nil {
					deps.Logger.Printf("actions: route %s: %v", payload.Actions[0].ActionID, err)
				}
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

func handleAcknowledge(ctx context.Context, deps Dependencies, payload slack.InteractionPayload) {
	agentID, err := strconv.ParseInt(payload.Actions[0].Value, 10, 64)
	if err != nil {
		deps.Logger.Printf("actions: malformed acknowledge value %q", payload.Actions[0].Value)
		return
	}

	if deps.Tracker == nil || !deps.Tracker.Acknowledge(agentID) {
		deps.Logger.Printf("actions: acknowledge for agent %d matched no active alert", agentID)
		return
	}
	if deps.Metrics != nil {
		deps.Metrics.ActionRecorder().IncAcknowledgments()
	}
	if deps.Events != nil {
		deps.Events.Record(types.Event{
			Type:      types.EventAlertAcked,
			Timestamp: deps.Now(),
			AgentID:   agentID,
			Details:   map[string]any{"acknowledged_by": payload.User.ID},
		})
	}

	if deps.Messenger != nil {
		text := fmt.Sprintf("✅ Alert acknowledged by <@%s>.", payload.User.ID)
		// Thread the confirmation under the alert so the channel keeps a
		// record, then strip the button from the original.
		if _, _, err := deps.Messenger.PostMessage(ctx, slack.Message{
			Channel:  payload.Channel.ID,
			ThreadTS: payload.Message.TS,
			Text:     text,
		}); err != nil {
			deps.Logger.Printf("actions: post acknowledgment reply: %v", err)
		}
		err := deps.Messenger.UpdateMessage(ctx, payload.Channel.ID, payload.Message.TS, slack.Message{
			Text:   text,
			Blocks: []slack.Block{slack.SectionBlock(text)},
		})
		if err != nil {
			deps.Logger.Printf("actions: update acknowledged message: %v", err)
		}
	}
}

func readyHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if deps.Health == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		ready, reasons := deps.Health.Ready(deps.Now())
		if ready {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, strings.Join(reasons, "; "), http.StatusServiceUnavailable)
	}
}
