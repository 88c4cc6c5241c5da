// Package atmotube implements the sensor adapter for Atmotube air-quality
// devices. Atmotube spreads one logical sample over four GATT
// characteristics (PM, environmental, VOC, status), so the adapter keeps a
// partial frame and emits a full reading on every notification, carrying
// forward the last known value for the slices that did not change.
package atmotube

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
	Vendor     = "atmotube"
	NamePrefix = "ATMO"

	ServiceUUID = "db450001-8e9a-4818-add7-6ed94a328ab4"

	vocCharUUID    = "db450002-8e9a-4818-add7-6ed94a328ab4"
	envCharUUID    = "db450003-8e9a-4818-add7-6ed94a328ab4"
	statusCharUUID = "db450004-8e9a-4818-add7-6ed94a328ab4"
	pmCharUUID     = "db450005-8e9a-4818-add7-6ed94a328ab4"
)

// Descriptor returns the registry entry for Atmotube devices.
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

// partialFrame accumulates values arriving on separate characteristics.
// nil means the slice has not been seen since the last (re)connect.
type partialFrame struct {
	pm1, pm25, pm10 *float64
	temperature     *float64
	humidity        *float64
	pressure        *float64
	tvoc            *float64
}

// Adapter is the Atmotube implementation of sensor.Adapter. All mutable state
// is guarded by mu; blocking transport calls are made outside the lock and
// validated against a generation counter afterwards, so a disconnect issued
// mid-connect wins and the late result is discarded.
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
	frame     partialFrame
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
func (a *Adapter) SupportsTVOC() bool     { return true }
func (a *Adapter) SupportsPressure() bool { return true }

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
		a.label = "Atmotube"
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
		// Disconnect won; discard the late session.
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

	mandatory := []struct {
		uuid    string
		name    string
		handler func([]byte)
	}{
		{pmCharUUID, "pm", a.onPM},
		{envCharUUID, "environmental", a.onEnvironmental},
		{vocCharUUID, "voc", a.onVOC},
	}
	for _, c := range mandatory {
		char, err := session.Characteristic(c.uuid)
		if err == nil {
			err = char.Subscribe(a.guarded(c.name, c.handler))
		}
		if err != nil {
			return &sensor.NotificationSetupError{Vendor: Vendor, Characteristic: c.name, Err: err}
		}
	}

	// Status (battery/charging) is optional; some firmware revisions omit it.
	statusChar, err := session.Characteristic(statusCharUUID)
	if err == nil {
		err = statusChar.Subscribe(a.guarded("status", a.onStatus))
	}
	if err != nil {
		a.logger.Warn("status characteristic unavailable; battery state will be absent", "error", err)
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

// Disconnect tears down the session and resets all per-connection state.
// Safe to call from any state, any number of times.
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

// handleTransportDisconnect resets to idle when the platform drops the link
// out from under us. The generation check ignores events for sessions we
// already tore down locally.
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

// resetLocked bumps the generation and clears every per-connection field.
// Callers hold a.mu.
func (a *Adapter) resetLocked() {
	a.gen++
	a.state = stateIdle
	a.device = nil
	a.session = nil
	a.label = ""
	a.onReading = nil
	a.onBattery = nil
	a.frame = partialFrame{}
	a.battery = nil
	a.charging = false
	a.last = nil
}

// guarded wraps a notification handler so a panic can never escape into the
// platform's event dispatch (which could silently deregister the listener).
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

func (a *Adapter) onPM(buf []byte) {
	v, err := decode.DecodePM(buf)
	if err != nil {
		a.dropNotification("pm", buf, err)
		return
	}
	a.mu.Lock()
	if a.state != stateStreaming {
		a.mu.Unlock()
		return
	}
	a.frame.pm1 = ptr(v.PM1)
	a.frame.pm25 = ptr(v.PM25)
	a.frame.pm10 = ptr(v.PM10)
	reading, emit := a.snapshotLocked()
	a.mu.Unlock()
	a.deliver(reading, emit, nil)
}

func (a *Adapter) onEnvironmental(buf []byte) {
	v, err := decode.DecodeEnvironmental(buf)
	if err != nil {
		a.dropNotification("environmental", buf, err)
		return
	}
	a.mu.Lock()
	if a.state != stateStreaming {
		a.mu.Unlock()
		return
	}
	a.frame.temperature = ptr(v.TemperatureC)
	a.frame.humidity = ptr(v.HumidityPct)
	a.frame.pressure = ptr(v.PressureHpa)
	reading, emit := a.snapshotLocked()
	a.mu.Unlock()
	a.deliver(reading, emit, nil)
}

func (a *Adapter) onVOC(buf []byte) {
	v, err := decode.DecodeVOC(buf)
	if err != nil {
		a.dropNotification("voc", buf, err)
		return
	}
	a.mu.Lock()
	if a.state != stateStreaming {
		a.mu.Unlock()
		return
	}
	a.frame.tvoc = ptr(v)
	reading, emit := a.snapshotLocked()
	a.mu.Unlock()
	a.deliver(reading, emit, nil)
}

func (a *Adapter) onStatus(buf []byte) {
	v, err := decode.DecodeStatus(buf)
	if err != nil {
		a.dropNotification("status", buf, err)
		return
	}
	a.mu.Lock()
	if a.state != stateStreaming {
		a.mu.Unlock()
		return
	}
	a.battery = ptr(v.BatteryPct)
	a.charging = v.Charging
	reading, emit := a.snapshotLocked()
	onBattery := a.onBattery
	a.mu.Unlock()

	var battery func()
	if onBattery != nil {
		battery = func() { onBattery(v.BatteryPct, v.Charging) }
	}
	a.deliver(reading, emit, battery)
}

// snapshotLocked copies the entire current partial frame into a fresh
// reading. Emission never waits for a complete frame: slices that have not
// arrived yet stay nil, slices from earlier notifications are carried
// forward. Callers hold a.mu.
func (a *Adapter) snapshotLocked() (sensor.Reading, sensor.DataHandler) {
	r := sensor.Reading{
		PM1:          cloneFloat(a.frame.pm1),
		PM25:         cloneFloat(a.frame.pm25),
		PM10:         cloneFloat(a.frame.pm10),
		TemperatureC: cloneFloat(a.frame.temperature),
		HumidityPct:  cloneFloat(a.frame.humidity),
		PressureHpa:  cloneFloat(a.frame.pressure),
		TVOCPpb:      cloneFloat(a.frame.tvoc),
		BatteryPct:   cloneInt(a.battery),
		Charging:     a.charging,
		Timestamp:    time.Now(),
		SourceLabel:  a.label,
	}
	a.last = &r
	return r, a.onReading
}

// deliver invokes callbacks outside the lock so they may call back into the
// adapter (e.g. LiveReading) without deadlocking.
func (a *Adapter) deliver(reading sensor.Reading, emit sensor.DataHandler, battery func()) {
	if battery != nil {
		battery()
	}
	if emit != nil {
		emit(reading)
	}
}

func (a *Adapter) dropNotification(name string, buf []byte, err error) {
	a.logger.Warn("dropping undecodable notification",
		"characteristic", name,
		"payload", utils.BytesToHex(buf),
		"error", err,
	)
}

func ptr[T any](v T) *T { return &v }

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
