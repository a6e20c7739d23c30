package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWheel_RunsJobPeriodically(t *testing.T) {
	var count int32
	w := New(zap.NewNop(), Job{
		Name:     "counter",
		Interval: 10 * time.Millisecond,
		Run:      func(time.Time) { atomic.AddInt32(&count, 1) },
	})
	w.Start()
	time.Sleep(55 * time.Millisecond)
	w.Stop()

	require.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))
}

func TestWheel_RecoversFromPanickingJob(t *testing.T) {
	var ran int32
	w := New(zap.NewNop(),
		Job{Name: "panics", Interval: 10 * time.Millisecond, Run: func(time.Time) { panic("boom") }},
		Job{Name: "fine", Interval: 10 * time.Millisecond, Run: func(time.Time) { atomic.AddInt32(&ran, 1) }},
	)
	w.Start()
	time.Sleep(35 * time.Millisecond)
	w.Stop()

	require.Greater(t, atomic.LoadInt32(&ran), int32(0))
}
