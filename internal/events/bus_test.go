package events_test

import (
	"testing"

	"github.com/openedx/edx-platform-sub027/internal/events"
	"github.com/openedx/edx-platform-sub027/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_RegistrationOrder(t *testing.T) {
	b := events.NewBus()
	var order []string
	b.On(events.Handlers{events.Play: events.Simple(func() { order = append(order, "first") })})
	b.On(events.Handlers{events.Play: events.Simple(func() { order = append(order, "second") })})
	b.On(events.Handlers{events.Play: events.Simple(func() { order = append(order, "third") })})

	b.Trigger(events.Play, nil)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBus_OffRemovesExactlyTheBinding(t *testing.T) {
	b := events.NewBus()
	keep := b.On(events.Handlers{events.Pause: func(events.Event) {}})
	bd := b.On(events.Handlers{
		events.Pause:   func(events.Event) {},
		events.Destroy: func(events.Event) {},
	})
	assert.Equal(t, 2, b.Count(events.Pause))
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []events.Name{events.Destroy, events.Pause}, bd.Names())

	assert.True(t, b.Off(bd))
	assert.False(t, bd.Active())
	assert.Equal(t, 1, b.Count(events.Pause))
	assert.Zero(t, b.Count(events.Destroy))

	assert.False(t, b.Off(bd), "second Off is a no-op")
	assert.Equal(t, 1, b.Len())
	assert.True(t, keep.Active())
}

func TestBus_UnbindDuringDispatch(t *testing.T) {
	b := events.NewBus()
	var second *events.Binding
	calls := 0
	b.On(events.Handlers{events.Ended: func(events.Event) { b.Off(second) }})
	second = b.On(events.Handlers{events.Ended: func(events.Event) { calls++ }})

	b.Trigger(events.Ended, nil)
	assert.Zero(t, calls)
}

func TestBus_BindDuringDispatchWaitsForNextTrigger(t *testing.T) {
	b := events.NewBus()
	calls := 0
	b.On(events.Handlers{events.Play: func(events.Event) {
		b.On(events.Handlers{events.Play: func(events.Event) { calls++ }})
	}})
	b.Trigger(events.Play, nil)
	assert.Zero(t, calls)
	b.Trigger(events.Play, nil)
	assert.Equal(t, 1, calls)
}

func TestBus_PanicIsRecovered(t *testing.T) {
	b := events.NewBus()
	ran := false
	b.On(events.Handlers{events.Skip: func(events.Event) { panic("boom") }})
	b.On(events.Handlers{events.Skip: func(events.Event) { ran = true }})

	require.NotPanics(t, func() { b.Trigger(events.Skip, nil) })
	assert.True(t, ran)
}

func TestTyped(t *testing.T) {
	b := events.NewBus()
	var got string
	b.On(events.Handlers{events.SpeedChange: events.Typed(func(p events.SpeedChangePayload) { got = p.Speed })})

	b.Trigger(events.SpeedChange, "not a payload")
	assert.Empty(t, got)
	b.Trigger(events.SpeedChange, events.SpeedChangePayload{Speed: "1.50"})
	assert.Equal(t, "1.50", got)
	b.Trigger(events.SpeedChange, &events.SpeedChangePayload{Speed: "2.0"})
	assert.Equal(t, "2.0", got)
}

func TestBus_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := events.NewBus(events.WithMetrics(metrics.NewPrometheus(reg)))
	b.Trigger(events.Play, nil)
	b.Trigger(events.Play, nil)
	b.Trigger(events.Pause, nil)

	n, err := testutil.GatherAndCount(reg, "videoplayer_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
