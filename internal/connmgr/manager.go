// Package connmgr owns the lifecycle of venue connections: bring-up,
// circuit-gated lookup, and teardown.
package connmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"crossarb/internal/domain"
	"crossarb/internal/resilience"
)

// VenueConnection is one live venue: its client plus the instrument metadata
// loaded at connect time. Instruments carry the venue's taker fees.
type VenueConnection struct {
	Name        string
	Client      domain.VenueClient
	Instruments map[string]domain.InstrumentMeta
}

// Manager holds all venue connections. Lookups go through the circuit
// breaker: a venue whose circuit is open is invisible to callers until the
// breaker permits a probe again.
type Manager struct {
	breaker *resilience.Breaker
	logger  *slog.Logger

	mu    sync.RWMutex
	conns map[string]*VenueConnection
}

// New creates an empty Manager.
func New(breaker *resilience.Breaker, logger *slog.Logger) *Manager {
	return &Manager{
		breaker: breaker,
		logger:  logger.With(slog.String("component", "connmgr")),
		conns:   make(map[string]*VenueConnection),
	}
}

// InitializeAll connects every client concurrently. A venue that fails to
// come up is logged, counted against its circuit and skipped; the rest
// proceed. The startup decision of whether enough venues survived belongs to
// the caller.
func (m *Manager) InitializeAll(ctx context.Context, clients map[string]domain.VenueClient) {
	g, ctx := errgroup.WithContext(ctx)
	for name, client := range clients {
		name, client := name, client
		g.Go(func() error {
			if err := m.connect(ctx, name, client); err != nil {
				m.breaker.RecordFailure(name)
				m.logger.Error("venue initialization failed",
					slog.String("venue", name),
					slog.Any("error", err))
				return nil
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Add connects a single venue and registers it.
func (m *Manager) Add(ctx context.Context, name string, client domain.VenueClient) error {
	if err := m.connect(ctx, name, client); err != nil {
		m.breaker.RecordFailure(name)
		return err
	}
	return nil
}

func (m *Manager) connect(ctx context.Context, name string, client domain.VenueClient) error {
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connmgr: connect %s: %w", name, err)
	}
	instruments, err := client.LoadInstruments(ctx)
	if err != nil {
		return fmt.Errorf("connmgr: load instruments %s: %w", name, err)
	}

	m.mu.Lock()
	m.conns[name] = &VenueConnection{Name: name, Client: client, Instruments: instruments}
	m.mu.Unlock()

	m.breaker.RecordSuccess(name)
	m.logger.Info("venue connected",
		slog.String("venue", name),
		slog.Int("instruments", len(instruments)))
	return nil
}

// Get returns the venue connection, or false when the venue is unknown or
// its circuit is open. Callers must treat a missing venue as temporarily
// gone, not as an error.
func (m *Manager) Get(name string) (*VenueConnection, bool) {
	m.mu.RLock()
	conn, ok := m.conns[name]
	m.mu.RUnlock()
	if !ok || m.breaker.IsOpen(name) {
		return nil, false
	}
	return conn, true
}

// Client returns just the venue client, circuit-gated like Get.
func (m *Manager) Client(name string) (domain.VenueClient, bool) {
	conn, ok := m.Get(name)
	if !ok {
		return nil, false
	}
	return conn.Client, true
}

// Names returns the currently available venue names, sorted. Venues with an
// open circuit are excluded.
func (m *Manager) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.conns))
	for name := range m.conns {
		names = append(names, name)
	}
	m.mu.RUnlock()

	out := names[:0]
	for _, name := range names {
		if !m.breaker.IsOpen(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// All returns every registered connection, including venues whose circuit is
// open. Liquidation uses this: a tripped circuit is no reason to leave a
// position stranded.
func (m *Manager) All() []*VenueConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*VenueConnection, 0, len(m.conns))
	for _, conn := range m.conns {
		out = append(out, conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered venues regardless of circuit state.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// CloseAll tears down every connection concurrently and waits for all of
// them. Errors are logged and swallowed so one bad venue cannot block or
// delay shutdown of the rest.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*VenueConnection)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for name, conn := range conns {
		name, conn := name, conn
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := conn.Client.Close(); err != nil {
				m.logger.Warn("venue close failed",
					slog.String("venue", name),
					slog.Any("error", err))
			}
		}()
	}
	wg.Wait()
}
