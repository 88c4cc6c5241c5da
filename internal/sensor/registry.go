package sensor

import (
	"log/slog"
	"strings"

	"github.com/david-ria/pmscanv2-sub007/internal/ble"
)

// Descriptor declares how one vendor's devices are recognized and how to
// construct an adapter for them. Vendor packages export a Descriptor and the
// application composes them into a Registry; there is no global registration.
type Descriptor struct {
	Vendor      string
	NamePrefix  string
	ServiceUUID string
	New         func(central ble.Central, logger *slog.Logger) Adapter
}

// Registry selects a vendor adapter by vendor name or advertised device name.
type Registry struct {
	descriptors []Descriptor
}

func NewRegistry(descriptors ...Descriptor) *Registry {
	return &Registry{descriptors: descriptors}
}

// ByVendor returns the descriptor registered under the given vendor name.
func (r *Registry) ByVendor(vendor string) (Descriptor, bool) {
	for _, d := range r.descriptors {
		if strings.EqualFold(d.Vendor, vendor) {
			return d, true
		}
	}
	return Descriptor{}, false
}

// MatchName returns the first descriptor whose advertised-name prefix matches.
func (r *Registry) MatchName(deviceName string) (Descriptor, bool) {
	for _, d := range r.descriptors {
		if d.NamePrefix != "" && strings.HasPrefix(deviceName, d.NamePrefix) {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Descriptors returns the registered descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}
