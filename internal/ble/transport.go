// Package ble abstracts the platform BLE central role behind small interfaces
// so sensor adapters can be driven by real hardware (BlueZ via tinygo
// bluetooth), the built-in simulator, or test fakes.
package ble

import (
	"context"
	"errors"
)

// ErrNoDeviceFound is returned by RequestDevice when scanning ends without a
// device matching the filter.
var ErrNoDeviceFound = errors.New("ble: no matching device found")

// ErrCharacteristicNotFound is returned by Session.Characteristic for a UUID
// the connected device does not expose.
var ErrCharacteristicNotFound = errors.New("ble: characteristic not found")

// Filter selects a device during scanning. NamePrefix matches the advertised
// local name; ServiceUUID matches an advertised service. Either may be empty;
// a device must satisfy all non-empty criteria.
type Filter struct {
	NamePrefix  string
	ServiceUUID string
}

// Central scans for and hands out devices.
type Central interface {
	// RequestDevice scans until a device matches the filter, the context is
	// canceled, or the platform gives up.
	RequestDevice(ctx context.Context, filter Filter) (Device, error)
}

// Device is a discovered, not-yet-connected peripheral.
type Device interface {
	Name() string
	Address() string
	// Connect establishes a GATT session. onDisconnect fires once if the
	// transport drops the link; it is not called for a local Close.
	Connect(ctx context.Context, onDisconnect func()) (Session, error)
}

// Session is an established GATT connection.
type Session interface {
	// Characteristic looks up a characteristic by UUID within the service
	// the device was filtered on.
	Characteristic(uuid string) (Characteristic, error)
	Close() error
}

// Characteristic is a single GATT characteristic supporting notifications.
type Characteristic interface {
	// Subscribe enables notifications; handler is invoked with the raw payload
	// of each notification, in delivery order.
	Subscribe(handler func(buf []byte)) error
}
