package netmon

import (
	"context"
	"sync"
	"time"

	"finqueue/internal/events"

	"github.com/rs/zerolog"
)

// Prober answers whether the delivery backend is currently reachable. The
// delivery client implements it with its health endpoint.
type Prober interface {
	Healthy(ctx context.Context) bool
}

// Monitor keeps a boolean connectivity signal and publishes transitions.
// Reconnecting is the primary background trigger for a sync pass, so the
// offline-to-online edge also fires the registered trigger.
type Monitor struct {
	prober   Prober
	bus      *events.Bus
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.RWMutex
	online  bool
	trigger func()
}

// NewMonitor reads the initial connectivity state synchronously and returns
// a monitor that will follow transitions once Run is started.
func NewMonitor(prober Prober, bus *events.Bus, interval time.Duration, logger *zerolog.Logger) *Monitor {
	m := &Monitor{
		prober:   prober,
		bus:      bus,
		interval: interval,
	}
	if logger != nil {
		m.logger = logger.With().Str("component", "netmon").Logger()
	}
	m.online = prober.Healthy(context.Background())
	return m
}

// OnOnline registers the function invoked on every offline-to-online
// transition. Must be called before Run.
func (m *Monitor) OnOnline(trigger func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trigger = trigger
}

// IsOnline returns the current connectivity reading.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Run probes connectivity until ctx is done. A missed transition
// self-corrects on the next probe.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info().Bool("online", m.IsOnline()).Dur("interval", m.interval).Msg("network monitor started")
	defer m.logger.Info().Msg("network monitor stopped")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(m.prober.Healthy(ctx))
		}
	}
}

// SetOnline records a connectivity reading, publishing an event and firing
// the sync trigger only on an actual transition. External signal sources
// may call it directly instead of relying on the probe loop.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	trigger := m.trigger
	m.mu.Unlock()

	if online {
		m.logger.Info().Msg("back online")
		m.bus.Publish(events.Event{Type: events.TypeOnline})
		if trigger != nil {
			trigger()
		}
		return
	}

	m.logger.Info().Msg("gone offline")
	m.bus.Publish(events.Event{Type: events.TypeOffline})
}
