// Package ports defines the capability interfaces injected into core
// components, so each component can be tested against a fake without
// reaching for a global or a concrete transport/storage type.
package ports

import (
	"context"
	"time"

	"github.com/airwayfind/wayfinding-core/internal/models"
)

// MQTTPublisher publishes a message to a topic. Implemented by
// internal/transport/mqtt and by fakes in tests.
type MQTTPublisher interface {
	Publish(topic string, payload []byte) error
}

// FacilityMapLoader loads the authoritative facility map from the
// external read-only store at startup.
type FacilityMapLoader interface {
	LoadNodes(ctx context.Context) ([]models.NavigationNode, error)
	LoadEdges(ctx context.Context) ([]models.NavigationEdge, error)
	LoadTransitionZones(ctx context.Context) ([]models.TransitionZone, error)
	LoadRestrictedAreas(ctx context.Context) ([]models.RestrictedArea, error)
}

// HazardWAL persists runtime-created hazard zones so they survive a
// restart.
type HazardWAL interface {
	Append(zone models.HazardZone) error
	Delete(zoneID string) error
	ReplayAll() ([]models.HazardZone, error)
}

// Clock abstracts wall-clock time so scheduling and expiry logic can be
// tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
