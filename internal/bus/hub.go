package bus

import (
	"sync"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/models"
	"go.uber.org/zap"
)

// Hub is the process-wide registry of per-user actors.
type Hub struct {
	logger *zap.Logger

	mu     sync.RWMutex
	actors map[string]*Actor
}

// NewHub builds an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{logger: logger, actors: map[string]*Actor{}}
}

// GetOrCreate returns the actor for userID, starting one if none exists.
func (h *Hub) GetOrCreate(userID string, building models.BuildingID) *Actor {
	h.mu.RLock()
	a, ok := h.actors[userID]
	h.mu.RUnlock()
	if ok {
		return a
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if a, ok := h.actors[userID]; ok {
		return a
	}
	a = NewActor(userID, building, h.logger)
	h.actors[userID] = a
	return a
}

// Get returns the actor for userID without creating one.
func (h *Hub) Get(userID string) (*Actor, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.actors[userID]
	return a, ok
}

// End stops and removes the actor for userID.
func (h *Hub) End(userID string) error {
	h.mu.Lock()
	a, ok := h.actors[userID]
	if ok {
		delete(h.actors, userID)
	}
	h.mu.Unlock()
	if !ok {
		return apierr.New(apierr.CodeInvalidInput, "no active session for user")
	}
	a.Stop()
	return nil
}

// Count returns the number of active user sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.actors)
}

// Shutdown stops every active actor, used during graceful server
// shutdown.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	actors := make([]*Actor, 0, len(h.actors))
	for _, a := range h.actors {
		actors = append(actors, a)
	}
	h.actors = map[string]*Actor{}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, a := range actors {
		wg.Add(1)
		go func(a *Actor) {
			defer wg.Done()
			a.Stop()
		}(a)
	}
	wg.Wait()
}
