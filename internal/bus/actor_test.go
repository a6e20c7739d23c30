package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestActor_PublishDeliversToSubscriber(t *testing.T) {
	a := NewActor("u1", "default", zap.NewNop())
	defer a.Stop()

	sub := a.Subscribe("conn1")
	a.Publish(Event{Kind: EventPose, At: time.Now()})

	select {
	case ev := <-sub.Outbox():
		require.Equal(t, EventPose, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected event within 1s")
	}
}

func TestActor_UnsubscribeClosesChannel(t *testing.T) {
	a := NewActor("u1", "default", zap.NewNop())
	defer a.Stop()

	sub := a.Subscribe("conn1")
	a.Unsubscribe("conn1")

	_, ok := <-sub.Outbox()
	require.False(t, ok)
}

func TestHub_GetOrCreateIsIdempotent(t *testing.T) {
	h := NewHub(zap.NewNop())
	a1 := h.GetOrCreate("u1", "default")
	a2 := h.GetOrCreate("u1", "default")
	require.Same(t, a1, a2)
	h.Shutdown()
}

func TestHub_EndRemovesActor(t *testing.T) {
	h := NewHub(zap.NewNop())
	h.GetOrCreate("u1", "default")
	require.NoError(t, h.End("u1"))
	_, ok := h.Get("u1")
	require.False(t, ok)
}
