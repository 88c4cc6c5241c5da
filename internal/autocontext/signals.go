package autocontext

import "time"

// SignalSource produces the live signal snapshot for one evaluation pass.
type SignalSource interface {
	Snapshot() Snapshot
}

// ClockSignals is the default signal source for headless deployments: it
// knows only the wall-clock hour. Speed stays nil and GPS reports no fix, so
// only time-of-day rules (and the unknown sentinel) can fire until a richer
// source is plugged in.
type ClockSignals struct {
	// Now defaults to time.Now; tests override it.
	Now func() time.Time
}

func (c ClockSignals) Snapshot() Snapshot {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return Snapshot{
		GPSQuality: GPSNone,
		Hour:       now().Hour(),
	}
}
