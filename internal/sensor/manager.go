package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Manager is a reference-counted owner of one adapter session. The first
// Acquire walks the adapter through request/connect/subscribe; the last
// Release disconnects. It replaces the ambient global sensor manager pattern:
// construct one, inject it into whatever owns the recording session.
type Manager struct {
	adapter   Adapter
	onReading DataHandler
	onBattery BatteryHandler
	logger    *slog.Logger

	mu   sync.Mutex
	refs int
}

func NewManager(adapter Adapter, onReading DataHandler, onBattery BatteryHandler, logger *slog.Logger) *Manager {
	return &Manager{
		adapter:   adapter,
		onReading: onReading,
		onBattery: onBattery,
		logger:    logger,
	}
}

// Acquire takes a reference; the session is started on the 0→1 transition.
// On startup failure the adapter is torn down and the reference not taken.
func (m *Manager) Acquire(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs > 0 {
		m.refs++
		m.logger.Debug("sensor session reference added", "refs", m.refs)
		return nil
	}

	if err := m.adapter.RequestDevice(ctx); err != nil {
		return err
	}
	if err := m.adapter.Connect(ctx); err != nil {
		_ = m.adapter.Disconnect()
		return err
	}
	if err := m.adapter.InitializeNotifications(ctx, m.onReading, m.onBattery); err != nil {
		_ = m.adapter.Disconnect()
		return err
	}

	m.refs = 1
	m.logger.Info("sensor session started", "vendor", m.adapter.Vendor())
	return nil
}

// Release drops a reference; the session stops on the 1→0 transition.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs == 0 {
		return fmt.Errorf("sensor: release without matching acquire")
	}
	m.refs--
	if m.refs > 0 {
		m.logger.Debug("sensor session reference dropped", "refs", m.refs)
		return nil
	}

	m.logger.Info("sensor session stopped", "vendor", m.adapter.Vendor())
	return m.adapter.Disconnect()
}

// Adapter exposes the managed adapter for live-reading queries.
func (m *Manager) Adapter() Adapter { return m.adapter }
