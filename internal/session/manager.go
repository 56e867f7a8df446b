package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-docsync/internal/metrics"
	"github.com/ryanbastic/go-docsync/internal/storage"
	"github.com/ryanbastic/go-docsync/internal/table"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// Manager owns the open sessions of one process.
type Manager struct {
	catalog  storage.Catalog
	opts     Options
	normOpts []table.NormalizerOption
	notifier Notifier
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. normOpts configure the normalizer of every
// new session; notifier may be nil.
func NewManager(catalog storage.Catalog, opts Options, normOpts []table.NormalizerOption, notifier Notifier, logger *slog.Logger) *Manager {
	return &Manager{
		catalog:  catalog,
		opts:     opts,
		normOpts: normOpts,
		notifier: notifier,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Open creates a session over database/container.
func (m *Manager) Open(ctx context.Context, database, container string) (*Session, error) {
	c, err := m.catalog.Container(ctx, database, container)
	if err != nil {
		return nil, err
	}
	meta, err := c.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("container metadata: %w", err)
	}

	norm := table.NewNormalizer(meta.Layout, m.normOpts...)
	s, err := New(uuid.NewString(), c, meta, norm, m.opts, m.notifier, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	metrics.SessionOpened()

	m.logger.Info("session opened", "session", s.ID(), "database", database, "container", container)
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close forgets the session with id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	metrics.SessionClosed()
	m.logger.Info("session closed", "session", id)
	return nil
}

// List returns every open session, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Created().Before(out[j].Created()) })
	return out
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Expire closes sessions unused since before cutoff and returns how many
// it closed.
func (m *Manager) Expire(cutoff time.Time) int {
	var stale []string
	for _, s := range m.List() {
		if s.LastUsed().Before(cutoff) {
			stale = append(stale, s.ID())
		}
	}
	n := 0
	for _, id := range stale {
		if m.Close(id) == nil {
			n++
		}
	}
	return n
}

// Sweep expires idle sessions every interval until ctx is cancelled.
func (m *Manager) Sweep(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		m.logger.Info("session expiry disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Expire(now.Add(-idle)); n > 0 {
				m.logger.Info("expired idle sessions", "count", n, "open", m.Len())
			}
		}
	}
}
