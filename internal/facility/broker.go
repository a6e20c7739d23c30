// Package facility implements the facility state broker: it consumes
// inbound facility-status and crowd-density updates and exposes them to
// the route planner as a cost-affecting signal, without mutating the
// navigation graph's structural invariants.
package facility

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StatusUpdate is an inbound message on the facility-status topic,
// reporting a temporary closure or reopening of a graph edge (e.g. a
// gate closed for maintenance).
type StatusUpdate struct {
	EdgeID string `json:"edgeId"`
	Open   bool   `json:"open"`
	At     time.Time `json:"at"`
}

// DensityUpdate is an inbound message on the crowd-density topic,
// reporting an observed crowd density in [0,1] for an edge.
type DensityUpdate struct {
	EdgeID  string    `json:"edgeId"`
	Density float64   `json:"density"`
	At      time.Time `json:"at"`
}

// StaleAfter is how long a density or status reading is trusted before
// Broker treats the edge as having no signal.
const StaleAfter = 2 * time.Minute

type densityEntry struct {
	density float64
	at      time.Time
}

type statusEntry struct {
	open bool
	at   time.Time
}

// Broker holds the live facility-status and crowd-density state fed by
// MQTT, independent of and patched alongside the navigation graph.
type Broker struct {
	logger *zap.Logger

	mu         sync.RWMutex
	density    map[string]densityEntry
	edgeStatus map[string]statusEntry
}

// New builds an empty Broker.
func New(logger *zap.Logger) *Broker {
	return &Broker{
		logger:     logger,
		density:    map[string]densityEntry{},
		edgeStatus: map[string]statusEntry{},
	}
}

// HandleStatusMessage decodes and applies an inbound status payload.
func (b *Broker) HandleStatusMessage(payload []byte) error {
	var update StatusUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return err
	}
	if update.At.IsZero() {
		update.At = time.Now().UTC()
	}
	b.mu.Lock()
	b.edgeStatus[update.EdgeID] = statusEntry{open: update.Open, at: update.At}
	b.mu.Unlock()
	return nil
}

// HandleDensityMessage decodes and applies an inbound density payload.
func (b *Broker) HandleDensityMessage(payload []byte) error {
	var update DensityUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return err
	}
	if update.Density < 0 {
		update.Density = 0
	}
	if update.Density > 1 {
		update.Density = 1
	}
	if update.At.IsZero() {
		update.At = time.Now().UTC()
	}
	b.mu.Lock()
	b.density[update.EdgeID] = densityEntry{density: update.Density, at: update.At}
	b.mu.Unlock()
	return nil
}

// Density returns the current crowd-density factor for edgeID, or 0 if
// no fresh signal exists. Implements planner.DensityLookup.
func (b *Broker) Density(edgeID string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.density[edgeID]
	if !ok || time.Since(entry.at) > StaleAfter {
		return 0
	}
	return entry.density
}

// IsOpen reports whether edgeID is currently reported open. Edges with
// no status signal, or a stale one, default to open.
func (b *Broker) IsOpen(edgeID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.edgeStatus[edgeID]
	if !ok || time.Since(entry.at) > StaleAfter {
		return true
	}
	return entry.open
}

// Reconcile drops density and status entries older than StaleAfter,
// intended to be called periodically by the scheduling wheel so stale
// facility signals do not linger and silently continue influencing
// routing after a feed goes quiet.
func (b *Broker) Reconcile(now time.Time) (droppedDensity, droppedStatus int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, e := range b.density {
		if now.Sub(e.at) > StaleAfter {
			delete(b.density, id)
			droppedDensity++
		}
	}
	for id, e := range b.edgeStatus {
		if now.Sub(e.at) > StaleAfter {
			delete(b.edgeStatus, id)
			droppedStatus++
		}
	}
	return
}
