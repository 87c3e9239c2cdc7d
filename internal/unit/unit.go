// Package unit tracks the external backend units (model instances) that
// execute pipeline stages and hands them out to workers.
package unit

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Capabilities used by the report pipelines.
const (
	// CapabilityPredictor recognizes artifacts.
	CapabilityPredictor = "predictor"
	// CapabilityNarrator writes narrative text.
	CapabilityNarrator = "narrator"
)

// Common registry errors
var (
	ErrDuplicateUnit   = errors.New("unit already registered")
	ErrUnitNotFound    = errors.New("unit not found")
	ErrEmptyCapability = errors.New("unit capability cannot be empty")
	ErrEmptyInstance   = errors.New("unit instance cannot be empty")
)

// Unit is one backend instance of a capability. For Gemini-backed units the
// instance is the model name.
//
// Leases replace a plain running flag: an idle claim only succeeds when no
// lease is held, and a fallback user adds its own lease, so releasing never
// clears someone else's claim.
type Unit struct {
	capability string
	instance   string
	leases     atomic.Int32
	retired    atomic.Bool
}

// Capability returns the capability class of the unit.
func (u *Unit) Capability() string { return u.capability }

// Instance returns the instance name of the unit.
func (u *Unit) Instance() string { return u.instance }

// Busy reports whether any lease is held.
func (u *Unit) Busy() bool { return u.leases.Load() > 0 }

// Leases returns the number of leases currently held.
func (u *Unit) Leases() int { return int(u.leases.Load()) }

// Release returns a lease taken by Allocator.Acquire.
func (u *Unit) Release() {
	if u.leases.Add(-1) < 0 {
		u.leases.Store(0)
	}
}

func (u *Unit) claimIdle() bool {
	return !u.retired.Load() && u.leases.CompareAndSwap(0, 1)
}

func (u *Unit) claimShared() {
	u.leases.Add(1)
}

// String implements fmt.Stringer.
func (u *Unit) String() string {
	return u.capability + "/" + u.instance
}

// Info is a read-only view of a unit.
type Info struct {
	Capability string `json:"capability"`
	Instance   string `json:"instance"`
	Busy       bool   `json:"busy"`
	Leases     int    `json:"leases"`
}

// Registry holds the live units per capability. Units may be registered and
// deregistered while the scheduler runs.
type Registry struct {
	mu    sync.RWMutex
	units map[string][]*Unit
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{units: make(map[string][]*Unit)}
}

// Register adds a unit.
func (r *Registry) Register(capability, instance string) (*Unit, error) {
	capability = strings.TrimSpace(capability)
	instance = strings.TrimSpace(instance)
	if capability == "" {
		return nil, ErrEmptyCapability
	}
	if instance == "" {
		return nil, ErrEmptyInstance
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.units[capability] {
		if u.instance == instance {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateUnit, capability, instance)
		}
	}

	u := &Unit{capability: capability, instance: instance}
	r.units[capability] = append(r.units[capability], u)
	return u, nil
}

// Deregister removes a unit. Workers holding a lease keep using it until
// they release it, but it is never handed out again.
func (r *Registry) Deregister(capability, instance string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	units := r.units[capability]
	for i, u := range units {
		if u.instance != instance {
			continue
		}
		u.retired.Store(true)
		r.units[capability] = append(units[:i:i], units[i+1:]...)
		if len(r.units[capability]) == 0 {
			delete(r.units, capability)
		}
		return nil
	}
	return fmt.Errorf("%w: %s/%s", ErrUnitNotFound, capability, instance)
}

// LiveCount returns the number of registered units of a capability.
func (r *Registry) LiveCount(capability string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units[capability])
}

// claimIdle leases the first idle unit of a capability.
func (r *Registry) claimIdle(capability string) *Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.units[capability] {
		if u.claimIdle() {
			return u
		}
	}
	return nil
}

// claimAny leases the least loaded unit of a capability, idle or not.
func (r *Registry) claimAny(capability string) *Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Unit
	for _, u := range r.units[capability] {
		if best == nil || u.leases.Load() < best.leases.Load() {
			best = u
		}
	}
	if best != nil {
		best.claimShared()
	}
	return best
}

// List returns every registered unit ordered by capability and instance.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0)
	for _, units := range r.units {
		for _, u := range units {
			infos = append(infos, Info{
				Capability: u.capability,
				Instance:   u.instance,
				Busy:       u.Busy(),
				Leases:     u.Leases(),
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Capability != infos[j].Capability {
			return infos[i].Capability < infos[j].Capability
		}
		return infos[i].Instance < infos[j].Instance
	})
	return infos
}
