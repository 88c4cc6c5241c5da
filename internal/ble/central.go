package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// BlueZCentral implements Central on top of tinygo bluetooth. One instance
// owns one HCI adapter ("hci0" by default).
type BlueZCentral struct {
	adapter *bluetooth.Adapter
	logger  *slog.Logger

	enableOnce sync.Once
	enableErr  error

	mu           sync.Mutex
	onDisconnect map[string]func() // keyed by device address
	handlerSet   bool
}

func NewBlueZCentral(adapterID string, logger *slog.Logger) *BlueZCentral {
	if adapterID == "" {
		adapterID = "hci0"
	}
	return &BlueZCentral{
		adapter:      bluetooth.NewAdapter(adapterID),
		logger:       logger,
		onDisconnect: make(map[string]func()),
	}
}

func (c *BlueZCentral) enable() error {
	c.enableOnce.Do(func() {
		c.logger.Info("ble: enabling adapter")
		c.enableErr = c.adapter.Enable()
	})
	return c.enableErr
}

// RequestDevice scans until the filter matches. It blocks the calling
// goroutine; cancel ctx to abort the scan.
func (c *BlueZCentral) RequestDevice(ctx context.Context, filter Filter) (Device, error) {
	if err := c.enable(); err != nil {
		return nil, fmt.Errorf("ble enable: %w", err)
	}

	var serviceUUID bluetooth.UUID
	haveService := filter.ServiceUUID != ""
	if haveService {
		var err error
		serviceUUID, err = bluetooth.ParseUUID(filter.ServiceUUID)
		if err != nil {
			return nil, fmt.Errorf("ble parse service uuid %q: %w", filter.ServiceUUID, err)
		}
	}

	go func() {
		<-ctx.Done()
		_ = c.adapter.StopScan()
	}()

	c.logger.Info("ble: scanning started",
		"name_prefix", filter.NamePrefix,
		"service_uuid", filter.ServiceUUID,
	)

	var found *bluezDevice
	// adapter.Scan blocks until StopScan() or error.
	err := c.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		if filter.NamePrefix != "" && !strings.HasPrefix(r.LocalName(), filter.NamePrefix) {
			return
		}
		if haveService && !r.HasServiceUUID(serviceUUID) {
			return
		}
		found = &bluezDevice{
			central:     c,
			address:     r.Address,
			name:        r.LocalName(),
			serviceUUID: serviceUUID,
			haveService: haveService,
		}
		_ = a.StopScan()
	})

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("ble scan: %w", err)
	}
	if found == nil {
		return nil, ErrNoDeviceFound
	}

	c.logger.Info("ble: device found", "name", found.name, "addr", found.Address())
	return found, nil
}

// notifyDisconnect dispatches a BlueZ connection-lost event to the session
// that owns the address.
func (c *BlueZCentral) notifyDisconnect(addr string) {
	c.mu.Lock()
	cb := c.onDisconnect[addr]
	delete(c.onDisconnect, addr)
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *BlueZCentral) registerDisconnect(addr string, cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect[addr] = cb
	if c.handlerSet {
		return
	}
	c.handlerSet = true
	c.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		go c.notifyDisconnect(device.Address.String())
	})
}

func (c *BlueZCentral) unregisterDisconnect(addr string) {
	c.mu.Lock()
	delete(c.onDisconnect, addr)
	c.mu.Unlock()
}

type bluezDevice struct {
	central     *BlueZCentral
	address     bluetooth.Address
	name        string
	serviceUUID bluetooth.UUID
	haveService bool
}

func (d *bluezDevice) Name() string    { return d.name }
func (d *bluezDevice) Address() string { return d.address.String() }

func (d *bluezDevice) Connect(ctx context.Context, onDisconnect func()) (Session, error) {
	if onDisconnect != nil {
		d.central.registerDisconnect(d.Address(), onDisconnect)
	}

	dev, err := d.central.adapter.Connect(d.address, bluetooth.ConnectionParams{})
	if err != nil {
		d.central.unregisterDisconnect(d.Address())
		return nil, fmt.Errorf("ble connect %s: %w", d.Address(), err)
	}

	var filterUUIDs []bluetooth.UUID
	if d.haveService {
		filterUUIDs = []bluetooth.UUID{d.serviceUUID}
	}
	services, err := dev.DiscoverServices(filterUUIDs)
	if err != nil || len(services) == 0 {
		_ = dev.Disconnect()
		d.central.unregisterDisconnect(d.Address())
		if err == nil {
			err = fmt.Errorf("service %s not present", d.serviceUUID.String())
		}
		return nil, fmt.Errorf("ble discover services %s: %w", d.Address(), err)
	}

	chars := make(map[string]bluetooth.DeviceCharacteristic)
	for _, svc := range services {
		discovered, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			_ = dev.Disconnect()
			d.central.unregisterDisconnect(d.Address())
			return nil, fmt.Errorf("ble discover characteristics %s: %w", d.Address(), err)
		}
		for _, ch := range discovered {
			chars[strings.ToLower(ch.UUID().String())] = ch
		}
	}

	return &bluezSession{device: d, conn: dev, chars: chars}, nil
}

type bluezSession struct {
	device *bluezDevice
	conn   bluetooth.Device
	chars  map[string]bluetooth.DeviceCharacteristic
}

func (s *bluezSession) Characteristic(uuid string) (Characteristic, error) {
	ch, ok := s.chars[strings.ToLower(uuid)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCharacteristicNotFound, uuid)
	}
	return &bluezCharacteristic{char: ch}, nil
}

func (s *bluezSession) Close() error {
	s.device.central.unregisterDisconnect(s.device.Address())
	return s.conn.Disconnect()
}

type bluezCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *bluezCharacteristic) Subscribe(handler func(buf []byte)) error {
	return c.char.EnableNotifications(handler)
}
