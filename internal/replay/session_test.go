package replay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/salespulse/internal/dataset"
	"github.com/wonny/salespulse/internal/sales"
	"github.com/wonny/salespulse/internal/window"
	"github.com/wonny/salespulse/pkg/config"
	"github.com/wonny/salespulse/pkg/logger"
)

func strp(s string) *string { return &s }

// workedExample is two accepted UK rows followed by two rejects
func workedExample() *dataset.Dataset {
	return dataset.New("test", []sales.RawRecord{
		{Row: 0, CustomerID: strp("C1"), Country: strp("UK"), Description: strp("Widget"), Quantity: "2", UnitPrice: "5.0"},
		{Row: 1, CustomerID: strp("C2"), Country: strp("uk"), Description: strp("Widget"), Quantity: "3", UnitPrice: "5.0"},
		{Row: 2, CustomerID: strp("C3"), Country: nil, Description: strp("Gadget"), Quantity: "1", UnitPrice: "10.0"},
		{Row: 3, CustomerID: strp("C4"), Country: strp("FR"), Description: strp("Gadget"), Quantity: "-1", UnitPrice: "5.0"},
	})
}

func newTestSession(data *dataset.Dataset, updateEvery int) *Session {
	return NewSession("s1", data, Options{
		Retention:   window.RetentionSliding,
		WindowSize:  200,
		UpdateEvery: updateEvery,
	}, logger.Nop())
}

func drain(t *testing.T, s *Session) []*Tick {
	t.Helper()
	var ticks []*Tick
	for {
		tick, err := s.Step()
		if errors.Is(err, ErrExhausted) {
			return ticks
		}
		require.NoError(t, err)
		if tick != nil {
			ticks = append(ticks, tick)
		}
	}
}

func TestSession_StepWorkedExample(t *testing.T) {
	s := newTestSession(workedExample(), 1)

	ticks := drain(t, s)
	require.Len(t, ticks, 4)

	last := ticks[len(ticks)-1]
	assert.Equal(t, 3, last.Row)
	assert.Equal(t, "s1", last.SessionID)
	require.Len(t, last.Snapshot.Countries, 1)
	assert.Equal(t, "Uk", last.Snapshot.Countries[0].Country)
	assert.InDelta(t, 25.0, last.Snapshot.Countries[0].TotalRevenue, 1e-9)
	assert.Equal(t, 2, last.Snapshot.Countries[0].Orders)
	assert.InDelta(t, 100.0, last.Snapshot.Countries[0].PercentageOfRevenue, 1e-9)
	assert.False(t, last.Snapshot.ComputedAt.IsZero())

	st := s.Status()
	assert.Equal(t, 4, st.Position)
	assert.Equal(t, 2, st.Accepted)
	assert.Equal(t, 2, st.Rejected)
	assert.Equal(t, map[string]int{
		string(sales.ReasonMissingCountry):  1,
		string(sales.ReasonInvalidQuantity): 1,
	}, st.RejectedBy)
	assert.Equal(t, 2, st.BufferLen)
	assert.True(t, st.Exhausted)
	assert.Equal(t, 4, st.Ticks)

	_, err := s.Step()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestSession_UpdateCadence(t *testing.T) {
	s := newTestSession(workedExample(), 2)

	ticks := drain(t, s)
	require.Len(t, ticks, 2)
	assert.Equal(t, 0, ticks[0].Row)
	assert.Equal(t, 2, ticks[1].Row)
	assert.InDelta(t, 10.0, ticks[0].Snapshot.Summary.Revenue, 1e-9)
	assert.InDelta(t, 25.0, ticks[1].Snapshot.Summary.Revenue, 1e-9)
}

func TestSession_NoTickOnEmptyBuffer(t *testing.T) {
	data := dataset.New("test", []sales.RawRecord{
		{CustomerID: nil, Country: strp("UK"), Quantity: "1", UnitPrice: "1"},
		{CustomerID: strp("C1"), Country: strp("UK"), Quantity: "1", UnitPrice: "1"},
	})
	s := newTestSession(data, 1)

	tick, err := s.Step()
	require.NoError(t, err)
	assert.Nil(t, tick, "row 0 is rejected so the buffer is still empty")

	_, ok := s.Latest()
	assert.False(t, ok)

	tick, err = s.Step()
	require.NoError(t, err)
	require.NotNil(t, tick)
	assert.Equal(t, 1, tick.Row)
}

func TestSession_SlidingWindowBoundsBuffer(t *testing.T) {
	rows := make([]sales.RawRecord, 12)
	for i := range rows {
		rows[i] = sales.RawRecord{Row: i, CustomerID: strp("C"), Country: strp("UK"), Description: strp("W"), Quantity: "1", UnitPrice: "2"}
	}
	s := NewSession("s", dataset.New("test", rows), Options{Retention: window.RetentionSliding, WindowSize: 5, UpdateEvery: 1}, logger.Nop())

	drain(t, s)

	snap, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 5, s.Status().BufferLen)
	assert.Equal(t, 5, snap.Summary.Records)
	assert.InDelta(t, 10.0, snap.Summary.Revenue, 1e-9)
}

func TestSession_Reset(t *testing.T) {
	s := newTestSession(workedExample(), 1)
	drain(t, s)

	s.Reset()

	st := s.Status()
	assert.Equal(t, 0, st.Position)
	assert.Equal(t, 0, st.Accepted)
	assert.Equal(t, 0, st.Rejected)
	assert.Empty(t, st.RejectedBy)
	assert.Equal(t, 0, st.BufferLen)
	assert.Equal(t, 0, st.Ticks)
	assert.False(t, st.Exhausted)

	_, ok := s.Latest()
	assert.False(t, ok)

	// replays the same ticks after a reset
	assert.Len(t, drain(t, s), 4)
}

func TestSession_SetSpeed(t *testing.T) {
	s := newTestSession(workedExample(), 1)

	require.NoError(t, s.SetSpeed(0.3))
	assert.Equal(t, 0.3, s.Status().Speed)

	assert.ErrorIs(t, s.SetSpeed(-1), ErrInvalidSpeed)
	assert.Equal(t, 0.3, s.Status().Speed)
}

func TestSession_Run(t *testing.T) {
	s := newTestSession(workedExample(), 1)

	var mu sync.Mutex
	var rows []int
	sink := SinkFunc(func(_ context.Context, tick Tick) error {
		mu.Lock()
		defer mu.Unlock()
		rows = append(rows, tick.Row)
		return nil
	})

	require.NoError(t, s.Run(context.Background(), sink))
	assert.Equal(t, []int{0, 1, 2, 3}, rows)
}

func TestSession_RunSinkErrorDoesNotStop(t *testing.T) {
	s := newTestSession(workedExample(), 1)

	calls := 0
	sink := SinkFunc(func(context.Context, Tick) error {
		calls++
		return errors.New("sink down")
	})

	require.NoError(t, s.Run(context.Background(), sink))
	assert.Equal(t, 4, calls)
}

func TestSession_StartStop(t *testing.T) {
	s := newTestSession(workedExample(), 1)
	require.NoError(t, s.SetSpeed(10))

	assert.True(t, s.Start(context.Background(), nil))
	assert.False(t, s.Start(context.Background(), nil), "already running")
	assert.True(t, s.Running())

	s.Stop()
	assert.False(t, s.Running())
	assert.Less(t, s.Status().Position, 4)
}

func TestSession_StartFinishes(t *testing.T) {
	s := newTestSession(workedExample(), 1)

	s.Start(context.Background(), nil)

	require.Eventually(t, func() bool {
		st := s.Status()
		return st.Exhausted && !st.Running
	}, time.Second, 5*time.Millisecond)
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(config.ReplayConfig{Retention: "Unbounded", UpdateEvery: 0, Speed: 0.5})
	require.NoError(t, err)
	assert.Equal(t, window.RetentionUnbounded, opts.Retention)
	assert.Equal(t, window.DefaultSize, opts.WindowSize)
	assert.Equal(t, 1, opts.UpdateEvery)
	assert.Equal(t, 0.5, opts.Speed)

	_, err = OptionsFromConfig(config.ReplayConfig{Retention: "forever"})
	assert.Error(t, err)
}

func TestFanout(t *testing.T) {
	var got []string
	ok := SinkFunc(func(context.Context, Tick) error {
		got = append(got, "ok")
		return nil
	})
	bad := SinkFunc(func(context.Context, Tick) error {
		got = append(got, "bad")
		return errors.New("bad sink")
	})

	err := Fanout{bad, nil, ok}.Publish(context.Background(), Tick{})
	assert.EqualError(t, err, "bad sink")
	assert.Equal(t, []string{"bad", "ok"}, got)
}

func TestSession_LatestTick(t *testing.T) {
	s := newTestSession(workedExample(), 2)

	_, ok := s.LatestTick()
	assert.False(t, ok)

	drain(t, s)

	tick, ok := s.LatestTick()
	require.True(t, ok)
	assert.Equal(t, 2, tick.Row)
	assert.Equal(t, 4, tick.Status.Position)
	assert.InDelta(t, 25.0, tick.Snapshot.Summary.Revenue, 1e-9)
}
