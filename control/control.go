// Package control maps MIDI control-change messages onto module parameters.
// A Surface owns the mapping table and writes scaled values through the
// parameter bridge; the real-time audio path picks them up on its next
// block without any coordination here.
package control

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/shaban/dsphost/param"
)

// MIDI status nibble for control change.
const statusControlChange = 0xB0

// Mapping binds one controller to one parameter. When Min == Max the
// parameter's own range from its spec is used.
type Mapping struct {
	Channel int     `json:"channel" yaml:"channel"` // 1-16
	CC      int     `json:"cc" yaml:"cc"`           // 0-127
	ParamID string  `json:"paramId" yaml:"paramId"`
	Min     float32 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     float32 `json:"max,omitempty" yaml:"max,omitempty"`
}

type mappingKey struct {
	channel int
	cc      int
}

// Surface routes control changes into a parameter bridge.
type Surface struct {
	bridge   *param.Bridge
	mappings map[mappingKey]Mapping
	logger   *zap.Logger
}

// NewSurface validates the mappings against the bridge's parameter listing
// and resolves unset target ranges from the specs.
func NewSurface(bridge *param.Bridge, mappings []Mapping, logger *zap.Logger) (*Surface, error) {
	if bridge == nil {
		return nil, fmt.Errorf("surface requires a parameter bridge")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	specs := make(map[string]param.Spec, bridge.Len())
	for _, spec := range bridge.Specs() {
		specs[spec.ID] = spec
	}

	s := &Surface{
		bridge:   bridge,
		mappings: make(map[mappingKey]Mapping, len(mappings)),
		logger:   logger,
	}
	for _, m := range mappings {
		if m.Channel < 1 || m.Channel > 16 {
			return nil, fmt.Errorf("mapping for %q: channel %d out of range 1-16", m.ParamID, m.Channel)
		}
		if m.CC < 0 || m.CC > 127 {
			return nil, fmt.Errorf("mapping for %q: controller %d out of range 0-127", m.ParamID, m.CC)
		}
		spec, ok := specs[m.ParamID]
		if !ok {
			return nil, fmt.Errorf("mapping targets unknown parameter %q", m.ParamID)
		}
		if m.Min == m.Max {
			m.Min, m.Max = spec.Min, spec.Max
		}
		key := mappingKey{channel: m.Channel, cc: m.CC}
		if prev, dup := s.mappings[key]; dup {
			return nil, fmt.Errorf("channel %d cc %d mapped to both %q and %q",
				m.Channel, m.CC, prev.ParamID, m.ParamID)
		}
		s.mappings[key] = m
	}
	return s, nil
}

// Apply decodes one MIDI message and, when it is a mapped control change,
// writes the scaled value through the bridge. It returns the parameter and
// value written, or ok=false when the message was not consumed.
func (s *Surface) Apply(status, data1, data2 int64) (string, float32, bool) {
	if status&0xF0 != statusControlChange {
		return "", 0, false
	}
	channel := int(status&0x0F) + 1
	m, ok := s.mappings[mappingKey{channel: channel, cc: int(data1)}]
	if !ok {
		return "", 0, false
	}
	value := scale(m, data2)
	s.bridge.Write(m.ParamID, value)
	return m.ParamID, value, true
}

// scale maps a 0-127 controller value onto the mapping's target range.
func scale(m Mapping, data2 int64) float32 {
	if data2 < 0 {
		data2 = 0
	} else if data2 > 127 {
		data2 = 127
	}
	return m.Min + (m.Max-m.Min)*float32(data2)/127
}

// Mappings returns the active mapping count.
func (s *Surface) Mappings() int { return len(s.mappings) }
