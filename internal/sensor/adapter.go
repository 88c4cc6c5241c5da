package sensor

import (
	"context"
	"errors"
	"fmt"
)

// Adapter owns one physical device session and turns its notification stream
// into Reading values. Implementations follow the state machine
// Idle → RequestDevice → DeviceSelected → Connect → Connected →
// InitializeNotifications → Streaming, with Disconnect returning to Idle from
// any state (idempotently). Adapters never auto-reconnect; that policy
// belongs to whoever owns the adapter.
type Adapter interface {
	// Vendor identifies the protocol implementation ("atmotube", "pmscan").
	Vendor() string

	// RequestDevice scans for a matching physical device and binds it.
	// Fails with *DeviceNotFoundError if the platform finds none.
	RequestDevice(ctx context.Context) error

	// Connect establishes the transport session with the bound device.
	// Fails with *ConnectionError on transport refusal.
	Connect(ctx context.Context) error

	// InitializeNotifications subscribes to the device's characteristics and
	// starts emitting readings through onReading (and battery updates through
	// onBattery, which may be nil). A missing mandatory characteristic fails
	// with *NotificationSetupError; missing optional ones only log a warning.
	InitializeNotifications(ctx context.Context, onReading DataHandler, onBattery BatteryHandler) error

	// Disconnect tears down the session and resets all parse state. Calling
	// it when already idle is a no-op.
	Disconnect() error

	// LiveReading returns a copy of the most recently emitted reading, or nil
	// when idle or nothing has been emitted yet.
	LiveReading() *Reading

	SupportsTVOC() bool
	SupportsPressure() bool
}

// ErrSessionTornDown reports that a disconnect superseded an in-flight
// connect/initialize; the late result was discarded.
var ErrSessionTornDown = errors.New("sensor: session torn down during operation")

// ErrInvalidState reports a state-machine operation called out of order.
var ErrInvalidState = errors.New("sensor: operation invalid in current adapter state")

// DeviceNotFoundError means the platform's device scan rejected or found no
// device matching the adapter's filter.
type DeviceNotFoundError struct {
	Vendor string
	Err    error
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("sensor %s: device not found: %v", e.Vendor, e.Err)
}
func (e *DeviceNotFoundError) Unwrap() error { return e.Err }

// ConnectionError means the transport refused or dropped the connection attempt.
type ConnectionError struct {
	Vendor string
	Device string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("sensor %s: connect %s: %v", e.Vendor, e.Device, e.Err)
}
func (e *ConnectionError) Unwrap() error { return e.Err }

// NotificationSetupError means a mandatory characteristic was missing or its
// subscription failed.
type NotificationSetupError struct {
	Vendor         string
	Characteristic string
	Err            error
}

func (e *NotificationSetupError) Error() string {
	return fmt.Sprintf("sensor %s: subscribe %s: %v", e.Vendor, e.Characteristic, e.Err)
}
func (e *NotificationSetupError) Unwrap() error { return e.Err }
