// Package param carries parameter values from the control side to the audio
// callback without locks. The bridge is an immutable index built once from
// discovered parameter metadata; only the leaf cells mutate afterwards.
//
// Both sides touch a cell with a single atomic load or store. Nothing else is
// ordered relative to a parameter update, so no stronger ordering is needed;
// the audio thread observes a write within one processing block and that
// propagation delay is accepted.
package param

import (
	"math"
	"sync/atomic"
)

// Spec describes one parameter as reported by module discovery.
type Spec struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Min     float32 `json:"min"`
	Max     float32 `json:"max"`
	Default float32 `json:"default"`
}

// Cell is an independently mutable float32 value shared between exactly one
// writer context and one reader context.
type Cell struct {
	bits atomic.Uint32
}

// Load returns the current value.
func (c *Cell) Load() float32 {
	return math.Float32frombits(c.bits.Load())
}

// Store replaces the current value.
func (c *Cell) Store(v float32) {
	c.bits.Store(math.Float32bits(v))
}

// Bridge maps parameter identifiers to their cells. The mapping itself never
// changes after construction; Read on the audio thread is a map lookup plus
// one atomic load and performs no allocation.
type Bridge struct {
	cells map[string]*Cell
	specs []Spec
}

// NewBridge builds a bridge from discovered parameter specs. Each cell starts
// at its default value. Duplicate identifiers keep the first spec seen.
func NewBridge(specs []Spec) *Bridge {
	b := &Bridge{
		cells: make(map[string]*Cell, len(specs)),
		specs: make([]Spec, 0, len(specs)),
	}
	for _, s := range specs {
		if _, exists := b.cells[s.ID]; exists {
			continue
		}
		c := &Cell{}
		c.Store(s.Default)
		b.cells[s.ID] = c
		b.specs = append(b.specs, s)
	}
	return b
}

// Write stores a value from the control side. An unknown identifier is a
// no-op: the identifier set is fixed at construction, so an unknown id is a
// caller bug the hot path does not need to diagnose.
func (b *Bridge) Write(id string, v float32) {
	if c, ok := b.cells[id]; ok {
		c.Store(v)
	}
}

// Read returns the current value for id. The second return is false for
// identifiers the bridge was not built with.
func (b *Bridge) Read(id string) (float32, bool) {
	c, ok := b.cells[id]
	if !ok {
		return 0, false
	}
	return c.Load(), true
}

// Cell returns the shared cell for id so a reader can keep a direct
// reference and skip the map lookup on the hot path.
func (b *Bridge) Cell(id string) (*Cell, bool) {
	c, ok := b.cells[id]
	return c, ok
}

// Specs returns the parameter metadata the bridge was built from, in
// construction order.
func (b *Bridge) Specs() []Spec {
	out := make([]Spec, len(b.specs))
	copy(out, b.specs)
	return out
}

// Snapshot returns the current value of every parameter. Control side only;
// it allocates.
func (b *Bridge) Snapshot() map[string]float32 {
	out := make(map[string]float32, len(b.specs))
	for _, s := range b.specs {
		out[s.ID] = b.cells[s.ID].Load()
	}
	return out
}

// Len returns the number of parameters.
func (b *Bridge) Len() int {
	return len(b.specs)
}
