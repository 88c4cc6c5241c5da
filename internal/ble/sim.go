package ble

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/david-ria/pmscanv2-sub007/internal/decode"
)

// SimulatedCentral is a hardware-free Central that hands out one fake
// Atmotube-style device emitting plausible payloads on a fixed interval.
// It backs SENSOR_SIMULATE=1 and the e2e smoke test.
type SimulatedCentral struct {
	interval time.Duration
	logger   *slog.Logger
}

func NewSimulatedCentral(interval time.Duration, logger *slog.Logger) *SimulatedCentral {
	if interval <= 0 {
		interval = time.Second
	}
	return &SimulatedCentral{interval: interval, logger: logger}
}

func (c *SimulatedCentral) RequestDevice(ctx context.Context, filter Filter) (Device, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	c.logger.Info("ble-sim: device requested", "name_prefix", filter.NamePrefix)
	return &simDevice{central: c, name: filter.NamePrefix + "-SIM"}, nil
}

type simDevice struct {
	central *SimulatedCentral
	name    string
}

func (d *simDevice) Name() string    { return d.name }
func (d *simDevice) Address() string { return "00:11:22:33:44:55" }

func (d *simDevice) Connect(ctx context.Context, onDisconnect func()) (Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s := &simSession{
		logger:   d.central.logger,
		interval: d.central.interval,
		handlers: make(map[string]func([]byte)),
		stopCh:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// simSession emits one full characteristic cycle (PM, environmental, VOC,
// status) per tick, with slowly wandering values.
type simSession struct {
	logger   *slog.Logger
	interval time.Duration

	mu       sync.Mutex
	handlers map[string]func([]byte)

	stopCh   chan struct{}
	stopOnce sync.Once
}

func (s *simSession) Characteristic(uuid string) (Characteristic, error) {
	return &simCharacteristic{session: s, uuid: uuid}, nil
}

func (s *simSession) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

func (s *simSession) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var tick int
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			tick++
			s.emitCycle(tick)
		}
	}
}

func (s *simSession) emitCycle(tick int) {
	phase := float64(tick) / 20

	pm25 := 8 + 4*math.Sin(phase)
	pm := decode.EncodePM(decode.PMValues{
		PM1:  pm25 * 0.6,
		PM25: pm25,
		PM10: pm25 * 1.8,
	})

	env := make([]byte, 6)
	env[0] = byte(int(21+2*math.Sin(phase/3)) + 40)
	env[1] = byte(45 + int(5*math.Cos(phase/2)))
	binary.LittleEndian.PutUint32(env[2:6], uint32((1013.25+3*math.Sin(phase/5))*100))

	voc := make([]byte, 2)
	binary.LittleEndian.PutUint16(voc, uint16(120+100*math.Abs(math.Sin(phase/4))))

	status := []byte{byte(100 - tick/600%100), 0x00}

	s.notify("db450005-8e9a-4818-add7-6ed94a328ab4", pm)
	s.notify("db450003-8e9a-4818-add7-6ed94a328ab4", env)
	s.notify("db450002-8e9a-4818-add7-6ed94a328ab4", voc)
	s.notify("db450004-8e9a-4818-add7-6ed94a328ab4", status)
}

func (s *simSession) notify(uuid string, buf []byte) {
	s.mu.Lock()
	handler := s.handlers[uuid]
	s.mu.Unlock()
	if handler != nil {
		handler(buf)
	}
}

type simCharacteristic struct {
	session *simSession
	uuid    string
}

func (c *simCharacteristic) Subscribe(handler func(buf []byte)) error {
	if handler == nil {
		return fmt.Errorf("ble-sim: nil handler for %s", c.uuid)
	}
	c.session.mu.Lock()
	c.session.handlers[c.uuid] = handler
	c.session.mu.Unlock()
	return nil
}
