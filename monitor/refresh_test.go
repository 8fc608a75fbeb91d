package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type viewEvent struct {
	kind string // loading, idle, flight, notfound, neterr
	view FlightView
}

type recordingView struct {
	mu      sync.Mutex
	events  []viewEvent
	updates chan viewEvent
}

func newRecordingView() *recordingView {
	return &recordingView{updates: make(chan viewEvent, 256)}
}

func (v *recordingView) add(e viewEvent) {
	v.mu.Lock()
	v.events = append(v.events, e)
	v.mu.Unlock()
	select {
	case v.updates <- e:
	default:
	}
}

func (v *recordingView) SetLoading(loading bool) {
	if loading {
		v.add(viewEvent{kind: "loading"})
	} else {
		v.add(viewEvent{kind: "idle"})
	}
}
func (v *recordingView) ShowFlight(fv FlightView)   { v.add(viewEvent{kind: "flight", view: fv}) }
func (v *recordingView) ShowNotFound(string)        { v.add(viewEvent{kind: "notfound"}) }
func (v *recordingView) ShowNetworkError(err error) { v.add(viewEvent{kind: "neterr"}) }

func (v *recordingView) kinds() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []string
	for _, e := range v.events {
		out = append(out, e.kind)
	}
	return out
}

func (v *recordingView) next(t *testing.T) viewEvent {
	t.Helper()
	select {
	case e := <-v.updates:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for view update")
		return viewEvent{}
	}
}

func testRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
		Lookup:   tableLookup,
		Now:      func() time.Time { return collectNow },
	}
}

func trackedFlight() Flight { return providerFlight(23, "JFK", "LAX") }

func TestNewRefresherRejectsBadFlightNumber(t *testing.T) {
	p := &fakeProvider{}
	_, err := NewRefresher("A1", p, &memWriter{}, newRecordingView(), testRefreshConfig())
	assert.ErrorIs(t, err, ErrInvalidFlightNumber)
	assert.Zero(t, p.callCount())
}

func TestRefresherShowsFlightAndStoresRecord(t *testing.T) {
	p := &fakeProvider{byNumber: map[string][]Flight{"AA123": {trackedFlight()}}}
	w := &memWriter{}
	view := newRecordingView()
	r, err := NewRefresher("AA123", p, w, view, testRefreshConfig())
	require.NoError(t, err)

	r.Show()
	assert.Equal(t, Polling, r.State())

	assert.Equal(t, "loading", view.next(t).kind)
	e := view.next(t)
	require.Equal(t, "flight", e.kind)
	assert.Equal(t, "JFK", e.view.Departure)
	assert.Equal(t, "6h 0m", e.view.Duration)
	assert.NotNil(t, e.view.Overlay)
	assert.Equal(t, "idle", view.next(t).kind)

	// re-armed: a second pass follows on its own
	assert.Equal(t, "loading", view.next(t).kind)
	assert.Equal(t, "flight", view.next(t).kind)

	r.Hide()
	assert.Equal(t, Idle, r.State())
	assert.GreaterOrEqual(t, len(w.all()), 2)
}

func TestRefresherNotFoundAndNetworkError(t *testing.T) {
	cases := []struct {
		name     string
		provider *fakeProvider
		want     string
	}{
		{"empty result", &fakeProvider{}, "notfound"},
		{"provider failure", &fakeProvider{err: errors.New("HTTP 503")}, "neterr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := &memWriter{}
			view := newRecordingView()
			r, err := NewRefresher("AA123", tc.provider, w, view, testRefreshConfig())
			require.NoError(t, err)

			r.Show()
			defer r.Hide()

			assert.Equal(t, "loading", view.next(t).kind)
			assert.Equal(t, tc.want, view.next(t).kind)
			assert.Equal(t, "idle", view.next(t).kind, "loading cleared on every outcome")
			assert.Empty(t, w.all())
		})
	}
}

func TestRefresherHideDiscardsLatePass(t *testing.T) {
	block := make(chan struct{})
	p := &fakeProvider{byNumber: map[string][]Flight{"AA123": {trackedFlight()}}, block: block}
	w := &memWriter{}
	view := newRecordingView()
	r, err := NewRefresher("AA123", p, w, view, testRefreshConfig())
	require.NoError(t, err)

	r.Show()
	assert.Equal(t, "loading", view.next(t).kind)

	r.Hide()
	close(block)

	// the in-flight pass completes and stores, shows no result, and
	// clears the loading it set
	require.Eventually(t, func() bool { return len(w.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "idle", view.next(t).kind)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"loading", "idle"}, view.kinds())
	assert.Equal(t, 1, p.callCount(), "no pass after Hide")
}

func TestRefresherStalePassLeavesNewerLoadingAlone(t *testing.T) {
	block := make(chan struct{})
	p := &fakeProvider{byNumber: map[string][]Flight{"AA123": {trackedFlight()}}, block: block}
	cfg := testRefreshConfig()
	cfg.Interval = time.Hour
	view := newRecordingView()
	r, err := NewRefresher("AA123", p, &memWriter{}, view, cfg)
	require.NoError(t, err)

	r.Show()
	assert.Equal(t, "loading", view.next(t).kind)
	r.Hide()
	r.Show()
	defer r.Hide()
	assert.Equal(t, "loading", view.next(t).kind)
	require.Eventually(t, func() bool { return p.callCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	close(block)

	assert.Equal(t, "flight", view.next(t).kind)
	assert.Equal(t, "idle", view.next(t).kind)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"loading", "loading", "flight", "idle"}, view.kinds())
}

func TestRefresherShowIsIdempotent(t *testing.T) {
	p := &fakeProvider{byNumber: map[string][]Flight{"AA123": {trackedFlight()}}}
	cfg := testRefreshConfig()
	cfg.Interval = time.Hour
	view := newRecordingView()
	r, err := NewRefresher("AA123", p, &memWriter{}, view, cfg)
	require.NoError(t, err)

	r.Show()
	r.Show()
	defer r.Hide()

	for i := 0; i < 3; i++ {
		view.next(t)
	}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, p.callCount())
}

func TestRefreshOnce(t *testing.T) {
	p := &fakeProvider{byNumber: map[string][]Flight{"AA123": {trackedFlight()}}}
	w := &memWriter{}
	r, err := NewRefresher("AA123", p, w, nil, testRefreshConfig())
	require.NoError(t, err)

	v, err := r.RefreshOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AA123", v.FlightNumber)
	assert.Len(t, w.all(), 1)

	r2, err := NewRefresher("UA987", p, w, nil, testRefreshConfig())
	require.NoError(t, err)
	_, err = r2.RefreshOnce(context.Background())
	assert.ErrorIs(t, err, ErrFlightNotFound)
}
