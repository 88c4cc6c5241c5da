// Package pmscan implements the sensor adapter for PMScan particulate
// sensors. Unlike Atmotube, PMScan delivers a complete sample in a single
// real-time frame, so every data notification yields a full reading.
package pmscan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/david-ria/pmscanv2-sub007/internal/ble"
	"github.com/david-ria/pmscanv2-sub007/internal/decode"
	"github.com/david-ria/pmscanv2-sub007/internal/sensor"
	"github.com/david-ria/pmscanv2-sub007/internal/utils"
)

const (
	Vendor     = "pmscan"
	NamePrefix = "PMScan"

	ServiceUUID = "f3641900-00b0-4240-ba50-05ca45bf8abc"

	dataCharUUID    = "f3641901-00b0-4240-ba50-05ca45bf8abc"
	batteryCharUUID = "f3641904-00b0-4240-ba50-05ca45bf8abc"
)

// Descriptor returns the registry entry for PMScan devices.
func Descriptor() sensor.Descriptor {
	return sensor.Descriptor{
		Vendor:      Vendor,
		NamePrefix:  NamePrefix,
		ServiceUUID: ServiceUUID,
		New: func(central ble.Central, logger *slog.Logger) sensor.Adapter {
			return New(central, logger)
		},
	}
}

type state int

const (
	stateIdle state = iota
	stateDeviceSelected
	stateConnected
	stateStreaming
)

// Adapter is the PMScan implementation of sensor.Adapter. Same locking
// discipline as the Atmotube adapter: blocking transport calls run outside
// the mutex and are validated against a generation counter afterwards.
type Adapter struct {
	central ble.Central
	logger  *slog.Logger

	mu        sync.Mutex
	state     state
	gen       uint64
	device    ble.Device
	session   ble.Session
	label     string
	onReading sensor.DataHandler
	onBattery sensor.BatteryHandler
	frame     *decode.PMScanFrame
	battery   *int
	charging  bool
	last      *sensor.Reading
}

func New(central ble.Central, logger *slog.Logger) *Adapter {
	return &Adapter{
		central: central,
		logger:  logger.With("vendor", Vendor),
	}
}

func (a *Adapter) Vendor() string         { return Vendor }
func (a *Adapter) SupportsTVOC() bool     { return false }
func (a *Adapter) SupportsPressure() bool { return false }

func (a *Adapter) RequestDevice(ctx context.Context) error {
	a.mu.Lock()
	if a.state != stateIdle {
		a.mu.Unlock()
		return sensor.ErrInvalidState
	}
	gen := a.gen
	a.mu.Unlock()

	device, err := a.central.RequestDevice(ctx, ble.Filter{
		NamePrefix:  NamePrefix,
		ServiceUUID: ServiceUUID,
	})
	if err != nil {
		return &sensor.DeviceNotFoundError{Vendor: Vendor, Err: err}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen || a.state != stateIdle {
		return sensor.ErrSessionTornDown
	}
	a.device = device
	a.label = device.Name()
	if a.label == "" {
		a.label = "PMScan"
	}
	a.state = stateDeviceSelected
	a.logger.Info("device selected", "name", a.label, "addr", device.Address())
	return nil
}

func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.state != stateDeviceSelected {
		a.mu.Unlock()
		return sensor.ErrInvalidState
	}
	gen := a.gen
	device := a.device
	a.mu.Unlock()

	session, err := device.Connect(ctx, func() { a.handleTransportDisconnect(gen) })
	if err != nil {
		return &sensor.ConnectionError{Vendor: Vendor, Device: device.Address(), Err: err}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen || a.state != stateDeviceSelected {
		_ = session.Close()
		return sensor.ErrSessionTornDown
	}
	a.session = session
	a.state = stateConnected
	a.logger.Info("connected", "addr", device.Address())
	return nil
}

func (a *Adapter) InitializeNotifications(ctx context.Context, onReading sensor.DataHandler, onBattery sensor.BatteryHandler) error {
	a.mu.Lock()
	if a.state != stateConnected {
		a.mu.Unlock()
		return sensor.ErrInvalidState
	}
	gen := a.gen
	session := a.session
	a.onReading = onReading
	a.onBattery = onBattery
	a.mu.Unlock()

	dataChar, err := session.Characteristic(dataCharUUID)
	if err == nil {
		err = dataChar.Subscribe(a.guarded("data", a.onData))
	}
	if err != nil {
		return &sensor.NotificationSetupError{Vendor: Vendor, Characteristic: "data", Err: err}
	}

	// Battery is optional on older hardware revisions.
	batteryChar, err := session.Characteristic(batteryCharUUID)
	if err == nil {
		err = batteryChar.Subscribe(a.guarded("battery", a.onBatteryNotification))
	}
	if err != nil {
		a.logger.Warn("battery characteristic unavailable; battery state will be absent", "error", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen || a.state != stateConnected {
		return sensor.ErrSessionTornDown
	}
	a.state = stateStreaming
	a.logger.Info("streaming", "source", a.label)
	return nil
}

func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	if a.state == stateIdle {
		a.mu.Unlock()
		return nil
	}
	session := a.session
	a.resetLocked()
	a.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			a.logger.Warn("session close", "error", err)
		}
	}
	a.logger.Info("disconnected")
	return nil
}

func (a *Adapter) LiveReading() *sensor.Reading {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return nil
	}
	r := *a.last
	return &r
}

func (a *Adapter) handleTransportDisconnect(gen uint64) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.resetLocked()
	a.mu.Unlock()
	a.logger.Warn("transport disconnected; adapter reset (no auto-reconnect)")
}

func (a *Adapter) resetLocked() {
	a.gen++
	a.state = stateIdle
	a.device = nil
	a.session = nil
	a.label = ""
	a.onReading = nil
	a.onBattery = nil
	a.frame = nil
	a.battery = nil
	a.charging = false
	a.last = nil
}

func (a *Adapter) guarded(name string, handler func([]byte)) func([]byte) {
	return func(buf []byte) {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("notification handler panicked", "characteristic", name, "panic", r)
			}
		}()
		handler(buf)
	}
}

func (a *Adapter) onData(buf []byte) {
	frame, err := decode.DecodePMScanFrame(buf)
	if err != nil {
		a.logger.Warn("dropping undecodable notification",
			"characteristic", "data",
			"payload", utils.BytesToHex(buf),
			"error", err,
		)
		return
	}

	a.mu.Lock()
	if a.state != stateStreaming {
		a.mu.Unlock()
		return
	}
	a.frame = &frame
	r, emit := a.snapshotLocked()
	a.mu.Unlock()

	if emit != nil {
		emit(r)
	}
}

// snapshotLocked builds a reading from the last data frame and battery state.
// Battery-only notifications before the first data frame produce a reading
// with nil measurement fields. Callers hold a.mu.
func (a *Adapter) snapshotLocked() (sensor.Reading, sensor.DataHandler) {
	r := sensor.Reading{
		BatteryPct:  cloneInt(a.battery),
		Charging:    a.charging,
		Timestamp:   time.Now(),
		SourceLabel: a.label,
	}
	if a.frame != nil {
		r.PM1 = ptr(a.frame.PM.PM1)
		r.PM25 = ptr(a.frame.PM.PM25)
		r.PM10 = ptr(a.frame.PM.PM10)
		r.TemperatureC = ptr(a.frame.TemperatureC)
		r.HumidityPct = ptr(a.frame.HumidityPct)
	}
	a.last = &r
	return r, a.onReading
}

func (a *Adapter) onBatteryNotification(buf []byte) {
	status, err := decode.DecodePMScanBattery(buf)
	if err != nil {
		a.logger.Warn("dropping undecodable notification",
			"characteristic", "battery",
			"payload", utils.BytesToHex(buf),
			"error", err,
		)
		return
	}

	a.mu.Lock()
	if a.state != stateStreaming {
		a.mu.Unlock()
		return
	}
	a.battery = ptr(status.BatteryPct)
	a.charging = status.Charging
	onBattery := a.onBattery
	r, emit := a.snapshotLocked()
	a.mu.Unlock()

	if onBattery != nil {
		onBattery(status.BatteryPct, status.Charging)
	}
	if emit != nil {
		emit(r)
	}
}

func ptr[T any](v T) *T { return &v }

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
