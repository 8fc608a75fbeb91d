package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrFlightNotFound is returned when the provider answered with no result.
var ErrFlightNotFound = errors.New("flight not found")

// ═══════════════════════════════════════════════════════════════════════════
// Configuration
// ═══════════════════════════════════════════════════════════════════════════

type RefreshConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	Lookup   CoordinateLookup
	Now      func() time.Time
}

func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		Now:      time.Now,
	}
}

// View receives the effects of refresh passes. Its methods are called
// with the refresher's lock held and must not call back into it.
type View interface {
	SetLoading(loading bool)
	ShowFlight(v FlightView)
	ShowNotFound(flightNumber string)
	ShowNetworkError(err error)
}

// State is the refresher's polling state.
type State int

const (
	Idle State = iota
	Polling
)

func (s State) String() string {
	if s == Polling {
		return "polling"
	}
	return "idle"
}

// ═══════════════════════════════════════════════════════════════════════════
// Refresher
// ═══════════════════════════════════════════════════════════════════════════

// Refresher keeps one flight's view current while it is shown. Each pass
// fetches, stores and renders; the next pass is armed only after the
// previous one finishes, so passes of one cycle never overlap.
type Refresher struct {
	number   string
	provider Provider
	store    RecordWriter
	view     View
	cfg      RefreshConfig
	log      zerolog.Logger

	mu    sync.Mutex
	state State
	gen   uint64 // bumped by Show and Hide; stale passes compare against it
	timer *time.Timer

	loadingGen uint64 // generation of the pass that last set loading

}

// NewRefresher validates flightNumber before anything touches the network.
func NewRefresher(flightNumber string, provider Provider, store RecordWriter, view View, cfg RefreshConfig) (*Refresher, error) {
	if err := ValidateFlightNumber(flightNumber); err != nil {
		return nil, err
	}
	def := DefaultRefreshConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &Refresher{
		number:   flightNumber,
		provider: provider,
		store:    store,
		view:     view,
		cfg:      cfg,
		log:      log.With().Str("module", "refresh").Str("flight", flightNumber).Logger(),
	}, nil
}

func (r *Refresher) FlightNumber() string { return r.number }

func (r *Refresher) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Show enters Polling and starts a pass immediately. Calling it while
// already polling does nothing.
func (r *Refresher) Show() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Polling {
		return
	}
	r.state = Polling
	r.gen++
	gen := r.gen
	r.log.Debug().Uint64("gen", gen).Msg("polling")
	go r.pass(gen)
}

// Hide cancels the pending pass and returns to Idle. A pass already in
// flight completes, but none of its effects reach the view after Hide
// returns.
func (r *Refresher) Hide() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Idle {
		return
	}
	r.state = Idle
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.log.Debug().Msg("idle")
}

func (r *Refresher) current(gen uint64) bool {
	return r.state == Polling && r.gen == gen
}

func (r *Refresher) pass(gen uint64) {
	r.mu.Lock()
	if !r.current(gen) {
		r.mu.Unlock()
		return
	}
	r.view.SetLoading(true)
	r.loadingGen = gen
	r.mu.Unlock()

	// Not tied to Hide: a late pass still stores its record.
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	v, err := r.fetch(ctx)
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.current(gen) {
		r.log.Debug().Uint64("gen", gen).Msg("discarding stale pass")
		if r.loadingGen == gen {
			r.view.SetLoading(false)
		}
		return
	}

	switch {
	case errors.Is(err, ErrFlightNotFound):
		r.view.ShowNotFound(r.number)
	case err != nil:
		r.view.ShowNetworkError(err)
	default:
		r.view.ShowFlight(v)
	}
	r.view.SetLoading(false)

	r.timer = time.AfterFunc(r.cfg.Interval, func() { r.pass(gen) })
}

// RefreshOnce runs a single pass without a view.
func (r *Refresher) RefreshOnce(ctx context.Context) (FlightView, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return r.fetch(ctx)
}

func (r *Refresher) fetch(ctx context.Context) (FlightView, error) {
	flights, err := r.provider.LookupByNumber(ctx, r.number)
	if err != nil {
		r.log.Warn().Err(err).Msg("lookup failed")
		return FlightView{}, err
	}
	if len(flights) == 0 {
		return FlightView{}, ErrFlightNotFound
	}

	v := NewFlightView(flights[0], r.cfg.Lookup, r.cfg.Now())
	rec := v.Record
	if err := r.store.InsertOrReplace(ctx, &rec); err != nil {
		r.log.Error().Err(err).Msg("store write failed")
	} else {
		v.Record = rec
	}
	return v, nil
}
