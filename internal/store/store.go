package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskwatchhq/deskwatch/pkg/types"
)

// ErrInteractionNotFound signals the absence of a logged interaction for the
// requested user and question.
var ErrInteractionNotFound = errors.New("interaction not found")

// Store exposes persistence operations for support interactions.
type Store interface {
	// LogInteraction persists a new interaction. A repeat of the same
	// question by the same user returns the existing record instead of
	// creating a duplicate.
	LogInteraction(ctx context.Context, in types.Interaction) (types.Interaction, error)
	// UpdateFeedback records the user's verdict and the manager (if any)
	// who picked up the escalation.
	UpdateFeedback(ctx context.Context, userID, question, feedback, manager string) error
	// ListInteractions returns the most recent interactions, newest first.
	ListInteractions(ctx context.Context, limit int) ([]types.Interaction, error)
}

// NewMemoryStore returns an in-memory implementation useful for testing and
// single-node deployments.
func NewMemoryStore() Store {
	return &memoryStore{}
}

type memoryStore struct {
	mu           sync.RWMutex
	interactions []types.Interaction
}

func (m *memoryStore) LogInteraction(ctx context.Context, in types.Interaction) (types.Interaction, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return types.Interaction{}, errors.New("user id required")
	}
	if strings.TrimSpace(in.Question) == "" {
		return types.Interaction{}, errors.New("question required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if idx := m.findLocked(in.UserID, in.Question); idx >= 0 {
		return m.interactions[idx], nil
	}

	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	if in.Feedback == "" {
		in.Feedback = types.FeedbackPending
	}
	if in.Manager == "" {
		in.Manager = types.ManagerNone
	}
	m.interactions = append(m.interactions, in)
	return in, nil
}

func (m *memoryStore) UpdateFeedback(ctx context.Context, userID, question, feedback, manager string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.findLocked(userID, question)
	if idx < 0 {
		return ErrInteractionNotFound
	}
	m.interactions[idx].Feedback = feedback
	if manager != "" {
		m.interactions[idx].Manager = manager
	}
	return nil
}

func (m *memoryStore) ListInteractions(ctx context.Context, limit int) ([]types.Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]types.Interaction, len(m.interactions))
	copy(results, m.interactions)
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// findLocked matches on user plus case-insensitive question text.
func (m *memoryStore) findLocked(userID, question string) int {
	q := strings.ToLower(strings.TrimSpace(question))
	for i, in := range m.interactions {
		if in.UserID == userID && strings.ToLower(strings.TrimSpace(in.Question)) == q {
			return i
		}
	}
	return -1
}
