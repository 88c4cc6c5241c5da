package pmscan

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/david-ria/pmscanv2-sub007/internal/ble"
	"github.com/david-ria/pmscanv2-sub007/internal/decode"
	"github.com/david-ria/pmscanv2-sub007/internal/sensor"
)

type fakeCentral struct {
	device *fakeDevice
	err    error
}

func (c *fakeCentral) RequestDevice(_ context.Context, _ ble.Filter) (ble.Device, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.device, nil
}

type fakeDevice struct {
	name    string
	session *fakeSession

	// When set, Connect signals connectStarted and parks until
	// connectRelease is closed.
	connectStarted chan struct{}
	connectRelease chan struct{}
}

func (d *fakeDevice) Name() string    { return d.name }
func (d *fakeDevice) Address() string { return "11:22:33:44:55:66" }

func (d *fakeDevice) Connect(_ context.Context, _ func()) (ble.Session, error) {
	if d.connectStarted != nil {
		close(d.connectStarted)
		<-d.connectRelease
	}
	return d.session, nil
}

type fakeSession struct {
	chars  map[string]*fakeCharacteristic
	closed int
}

func (s *fakeSession) Characteristic(uuid string) (ble.Characteristic, error) {
	ch, ok := s.chars[uuid]
	if !ok {
		return nil, ble.ErrCharacteristicNotFound
	}
	return ch, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type fakeCharacteristic struct {
	handler func([]byte)
}

func (c *fakeCharacteristic) Subscribe(handler func([]byte)) error {
	c.handler = handler
	return nil
}

func (c *fakeCharacteristic) notify(t *testing.T, buf []byte) {
	t.Helper()
	if c.handler == nil {
		t.Fatal("characteristic has no subscriber")
	}
	c.handler(buf)
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func startStreaming(t *testing.T, session *fakeSession) (*Adapter, *[]sensor.Reading) {
	t.Helper()
	device := &fakeDevice{name: "PMScan-A1", session: session}
	a := New(&fakeCentral{device: device}, discard())

	var readings []sensor.Reading
	ctx := context.Background()
	if err := a.RequestDevice(ctx); err != nil {
		t.Fatalf("RequestDevice: %v", err)
	}
	if err := a.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	err := a.InitializeNotifications(ctx, func(r sensor.Reading) {
		readings = append(readings, r)
	}, nil)
	if err != nil {
		t.Fatalf("InitializeNotifications: %v", err)
	}
	return a, &readings
}

func TestAdapter_dataFrameEmitsFullReading(t *testing.T) {
	session := &fakeSession{chars: map[string]*fakeCharacteristic{
		dataCharUUID:    {},
		batteryCharUUID: {},
	}}
	a, readings := startStreaming(t, session)

	session.chars[dataCharUUID].notify(t, decode.EncodePMScanFrame(decode.PMScanFrame{
		UptimeSec:    1200,
		PM:           decode.PMValues{PM1: 4.2, PM25: 8.5, PM10: 12.0},
		TemperatureC: 21.5,
		HumidityPct:  48.0,
	}))

	if len(*readings) != 1 {
		t.Fatalf("got %d readings, want 1", len(*readings))
	}
	r := (*readings)[0]
	if r.PM25 == nil || *r.PM25 != 8.5 {
		t.Errorf("PM25 = %v, want 8.5", r.PM25)
	}
	if r.TemperatureC == nil || *r.TemperatureC != 21.5 {
		t.Errorf("temperature = %v, want 21.5", r.TemperatureC)
	}
	if r.TVOCPpb != nil || r.PressureHpa != nil {
		t.Error("PMScan readings must not carry TVOC or pressure")
	}
	if r.SourceLabel != "PMScan-A1" {
		t.Errorf("source label = %q", r.SourceLabel)
	}

	if a.SupportsTVOC() || a.SupportsPressure() {
		t.Error("capability flags should both be false")
	}
}

func TestAdapter_batteryNotificationEmitsAndFlowsIntoReadings(t *testing.T) {
	session := &fakeSession{chars: map[string]*fakeCharacteristic{
		dataCharUUID:    {},
		batteryCharUUID: {},
	}}
	device := &fakeDevice{name: "PMScan-A1", session: session}
	a := New(&fakeCentral{device: device}, discard())

	var readings []sensor.Reading
	var battery int
	var charging bool
	ctx := context.Background()
	if err := a.RequestDevice(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	err := a.InitializeNotifications(ctx,
		func(r sensor.Reading) { readings = append(readings, r) },
		func(pct int, chg bool) { battery, charging = pct, chg },
	)
	if err != nil {
		t.Fatal(err)
	}

	// bit7 set: charging, level = low 7 bits.
	session.chars[batteryCharUUID].notify(t, []byte{0x80 | 42})
	if battery != 42 || !charging {
		t.Errorf("battery callback = (%d, %v), want (42, true)", battery, charging)
	}
	if len(readings) != 1 {
		t.Fatalf("battery notification should emit a reading, got %d", len(readings))
	}
	if readings[0].PM1 != nil {
		t.Error("battery-only reading before any data frame should have nil PM fields")
	}

	session.chars[dataCharUUID].notify(t, decode.EncodePMScanFrame(decode.PMScanFrame{
		PM: decode.PMValues{PM1: 1, PM25: 2, PM10: 3},
	}))
	if len(readings) != 2 {
		t.Fatalf("got %d readings, want 2", len(readings))
	}
	r := readings[1]
	if r.BatteryPct == nil || *r.BatteryPct != 42 || !r.Charging {
		t.Errorf("data reading battery = %v charging = %v, want 42/true", r.BatteryPct, r.Charging)
	}
}

func TestAdapter_shortFrameIsDropped(t *testing.T) {
	session := &fakeSession{chars: map[string]*fakeCharacteristic{
		dataCharUUID: {},
	}}
	_, readings := startStreaming(t, session)

	session.chars[dataCharUUID].notify(t, make([]byte, 13))
	if len(*readings) != 0 {
		t.Fatalf("13-byte frame emitted %d readings, want 0", len(*readings))
	}
}

func TestAdapter_missingBatteryCharacteristicIsTolerated(t *testing.T) {
	session := &fakeSession{chars: map[string]*fakeCharacteristic{
		dataCharUUID: {},
	}}
	_, readings := startStreaming(t, session)

	session.chars[dataCharUUID].notify(t, decode.EncodePMScanFrame(decode.PMScanFrame{
		PM: decode.PMValues{PM25: 7},
	}))
	if len(*readings) != 1 {
		t.Fatalf("got %d readings, want 1", len(*readings))
	}
	if (*readings)[0].BatteryPct != nil {
		t.Error("battery should be nil when the characteristic is absent")
	}
}

func TestAdapter_missingDataCharacteristicFails(t *testing.T) {
	session := &fakeSession{chars: map[string]*fakeCharacteristic{
		batteryCharUUID: {},
	}}
	device := &fakeDevice{name: "PMScan-A1", session: session}
	a := New(&fakeCentral{device: device}, discard())

	ctx := context.Background()
	if err := a.RequestDevice(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	err := a.InitializeNotifications(ctx, func(sensor.Reading) {}, nil)
	var setupErr *sensor.NotificationSetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("err = %v, want *NotificationSetupError", err)
	}
	if setupErr.Characteristic != "data" {
		t.Errorf("failed characteristic = %q, want data", setupErr.Characteristic)
	}
}

func TestAdapter_disconnectDuringConnectDiscardsLateSession(t *testing.T) {
	session := &fakeSession{chars: map[string]*fakeCharacteristic{
		dataCharUUID: {},
	}}
	device := &fakeDevice{
		name:           "PMScan-A1",
		session:        session,
		connectStarted: make(chan struct{}),
		connectRelease: make(chan struct{}),
	}
	a := New(&fakeCentral{device: device}, discard())

	ctx := context.Background()
	if err := a.RequestDevice(ctx); err != nil {
		t.Fatal(err)
	}

	connectErr := make(chan error, 1)
	go func() { connectErr <- a.Connect(ctx) }()

	<-device.connectStarted
	if err := a.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	close(device.connectRelease)

	if err := <-connectErr; !errors.Is(err, sensor.ErrSessionTornDown) {
		t.Fatalf("Connect = %v, want ErrSessionTornDown", err)
	}
	if session.closed != 1 {
		t.Errorf("late session closed %d times, want 1", session.closed)
	}
	device.connectStarted = nil
	if err := a.RequestDevice(ctx); err != nil {
		t.Fatalf("RequestDevice after torn-down connect: %v", err)
	}
}

func TestAdapter_disconnectIsIdempotentAndResets(t *testing.T) {
	session := &fakeSession{chars: map[string]*fakeCharacteristic{
		dataCharUUID: {},
	}}
	a, _ := startStreaming(t, session)

	session.chars[dataCharUUID].notify(t, decode.EncodePMScanFrame(decode.PMScanFrame{
		PM: decode.PMValues{PM1: 1},
	}))
	if a.LiveReading() == nil {
		t.Fatal("LiveReading should be set after a data frame")
	}

	if err := a.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := a.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	if session.closed != 1 {
		t.Errorf("session closed %d times, want 1", session.closed)
	}
	if a.LiveReading() != nil {
		t.Error("LiveReading should be nil after disconnect")
	}
}
