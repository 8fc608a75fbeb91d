package monitor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"flighttrack/storage"
)

const (
	// StatusSynthetic tags records fabricated when a route returned nothing.
	StatusSynthetic = "synthetic"

	// MaxRecordsPerRoute caps how many provider results one route keeps per run.
	MaxRecordsPerRoute = 3

	// SyntheticWindow is how far back synthetic records reach.
	SyntheticWindow = 7 * 24 * time.Hour
)

// ═══════════════════════════════════════════════════════════════════════════
// Routes
// ═══════════════════════════════════════════════════════════════════════════

// Route is an ordered departure/arrival pair of IATA codes.
type Route struct {
	Departure string `yaml:"departure"`
	Arrival   string `yaml:"arrival"`
}

func (r Route) String() string { return r.Departure + "-" + r.Arrival }

// Valid reports whether both codes are well-formed and differ.
func (r Route) Valid() bool { return IsValidRoute(r.Departure, r.Arrival) }

// ParseRoute reads "JFK-LAX". The result is validated.
func ParseRoute(s string) (Route, error) {
	dep, arr, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Route{}, fmt.Errorf("%w %q: expected DEP-ARR, e.g. JFK-LAX", ErrInvalidRoute, s)
	}
	r := Route{Departure: strings.TrimSpace(dep), Arrival: strings.TrimSpace(arr)}
	if err := ValidateRoute(r.Departure, r.Arrival); err != nil {
		return Route{}, err
	}
	return r, nil
}

// DefaultRoutes are monitored when nothing else is configured.
func DefaultRoutes() []Route {
	return []Route{
		{"JFK", "LAX"},
		{"LAX", "SFO"},
		{"ORD", "MIA"},
		{"ATL", "DEN"},
		{"DFW", "SEA"},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Collector
// ═══════════════════════════════════════════════════════════════════════════

// RouteReport describes what one route contributed to a run.
type RouteReport struct {
	Route       Route
	Skipped     bool  // route failed validation
	ProviderErr error // nil when the provider answered
	Fetched     int   // provider results before the cap
	Synthetic   bool
	Written     int
	Failed      int
}

// Attempted is the number of writes tried for this route.
func (r RouteReport) Attempted() int { return r.Written + r.Failed }

// RunSummary is the result of the most recent Run.
type RunSummary struct {
	Started  time.Time
	Finished time.Time
	Outcome  Outcome
	Reports  []RouteReport
}

// CollectorConfig tunes a Collector. Zero fields take defaults.
type CollectorConfig struct {
	Routes []Route
	Rand   *rand.Rand
	Now    func() time.Time
}

// Collector fills the store with per-route samples. Routes are processed
// one at a time so at most one provider request is outstanding.
type Collector struct {
	provider Provider
	store    RecordWriter
	routes   []Route
	now      func() time.Time
	log      zerolog.Logger

	// runMu serializes runs. mu guards rng and last and is never held
	// across a provider call.
	runMu sync.Mutex
	mu    sync.Mutex
	rng   *rand.Rand
	last  *RunSummary
}

func NewCollector(provider Provider, store RecordWriter, cfg CollectorConfig) *Collector {
	if len(cfg.Routes) == 0 {
		cfg.Routes = DefaultRoutes()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Collector{
		provider: provider,
		store:    store,
		routes:   cfg.Routes,
		rng:      cfg.Rand,
		now:      cfg.Now,
		log:      log.With().Str("module", "collector").Logger(),
	}
}

// Routes returns the monitored routes.
func (c *Collector) Routes() []Route { return append([]Route(nil), c.routes...) }

// Run collects every route once.
//
// It reports OutcomeRetry when ctx ends before all routes are done, or
// when every write it attempted failed. Provider failures never fail a
// run; they fall back to synthetic data.
func (c *Collector) Run(ctx context.Context) Outcome {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	sum := RunSummary{Started: c.now()}
	c.log.Info().Int("routes", len(c.routes)).Msg("collection started")

	attempted, failed := 0, 0
	sum.Outcome = OutcomeCompleted
	for _, route := range c.routes {
		if err := ctx.Err(); err != nil {
			c.log.Warn().Err(err).Str("route", route.String()).Msg("collection interrupted")
			sum.Outcome = OutcomeRetry
			break
		}
		rep := c.collectRoute(ctx, route)
		sum.Reports = append(sum.Reports, rep)
		attempted += rep.Attempted()
		failed += rep.Failed
	}
	if sum.Outcome == OutcomeCompleted && attempted > 0 && failed == attempted {
		c.log.Error().Int("failed", failed).Msg("every write failed")
		sum.Outcome = OutcomeRetry
	}

	sum.Finished = c.now()
	c.mu.Lock()
	c.last = &sum
	c.mu.Unlock()
	c.log.Info().
		Stringer("outcome", sum.Outcome).
		Int("written", attempted-failed).
		Int("failed", failed).
		Dur("took", sum.Finished.Sub(sum.Started)).
		Msg("collection finished")
	return sum.Outcome
}

// LastRun returns the summary of the most recent Run.
func (c *Collector) LastRun() (RunSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return RunSummary{}, false
	}
	return *c.last, true
}

// CollectRoute collects a single route outside of a full run.
func (c *Collector) CollectRoute(ctx context.Context, route Route) RouteReport {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.collectRoute(ctx, route)
}

func (c *Collector) collectRoute(ctx context.Context, route Route) RouteReport {
	rep := RouteReport{Route: route}
	rl := c.log.With().Str("route", route.String()).Logger()

	if !route.Valid() {
		rl.Warn().Msg("invalid route skipped")
		rep.Skipped = true
		return rep
	}

	flights, err := c.provider.LookupByRoute(ctx, route.Departure, route.Arrival)
	if err != nil {
		rl.Warn().Err(err).Msg("provider lookup failed, treating as empty")
		rep.ProviderErr = err
		flights = nil
	}
	rep.Fetched = len(flights)

	now := c.now().UTC()
	var records []storage.FlightRecord
	if len(flights) == 0 {
		rep.Synthetic = true
		records = c.synthesize(route, now)
		rl.Debug().Int("records", len(records)).Msg("no provider data, synthesizing")
	} else {
		if len(flights) > MaxRecordsPerRoute {
			flights = flights[:MaxRecordsPerRoute]
		}
		for _, f := range flights {
			records = append(records, RecordFromFlight(f, now))
		}
	}

	for i := range records {
		if err := c.store.InsertOrReplace(ctx, &records[i]); err != nil {
			rl.Error().Err(err).Str("flight", records[i].FlightNumber).Msg("write failed")
			rep.Failed++
			continue
		}
		rep.Written++
	}
	return rep
}

// synthesize produces one record per day over [now-SyntheticWindow, now):
// a 1-6 hour flight with departure and arrival delays in [0, 30) minutes.
func (c *Collector) synthesize(route Route, now time.Time) []storage.FlightRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []storage.FlightRecord
	for day := now.Add(-SyntheticWindow); day.Before(now); day = day.Add(24 * time.Hour) {
		schedDep := day
		schedArr := schedDep.Add(time.Duration(c.rng.IntN(6)+1) * time.Hour)
		depDelay := c.rng.IntN(30)
		arrDelay := c.rng.IntN(30)
		actDep := schedDep.Add(time.Duration(depDelay) * time.Minute)
		actArr := schedArr.Add(time.Duration(arrDelay) * time.Minute)
		actual := DurationMinutes(actDep, actArr)

		out = append(out, storage.FlightRecord{
			FlightNumber:       fmt.Sprintf("SYN%d", c.rng.IntN(1000)),
			FlightDate:         schedDep,
			DepartureAirport:   route.Departure,
			ArrivalAirport:     route.Arrival,
			ScheduledDeparture: schedDep,
			ScheduledArrival:   schedArr,
			ActualDeparture:    &actDep,
			ActualArrival:      &actArr,
			DepartureDelay:     &depDelay,
			ArrivalDelay:       &arrDelay,
			ScheduledDuration:  DurationMinutes(schedDep, schedArr),
			ActualDuration:     &actual,
			Status:             StatusSynthetic,
			CollectedAt:        now,
		})
	}
	return out
}

// DemoRecords are the two sample flights shown before any collection has
// produced statistics.
func DemoRecords(now time.Time) []storage.FlightRecord {
	now = now.UTC()
	demo := func(number string, route Route, sched, actual, depDelay, arrDelay int) storage.FlightRecord {
		schedDep := now.Add(-24 * time.Hour).Truncate(time.Hour)
		schedArr := schedDep.Add(time.Duration(sched) * time.Minute)
		actDep := schedDep.Add(time.Duration(depDelay) * time.Minute)
		actArr := actDep.Add(time.Duration(actual) * time.Minute)
		return storage.FlightRecord{
			FlightNumber:       number,
			FlightDate:         schedDep,
			DepartureAirport:   route.Departure,
			ArrivalAirport:     route.Arrival,
			ScheduledDeparture: schedDep,
			ScheduledArrival:   schedArr,
			ActualDeparture:    &actDep,
			ActualArrival:      &actArr,
			DepartureDelay:     &depDelay,
			ArrivalDelay:       &arrDelay,
			ScheduledDuration:  sched,
			ActualDuration:     &actual,
			Status:             StatusSynthetic,
			CollectedAt:        now,
		}
	}
	return []storage.FlightRecord{
		demo("DEMO001", Route{"JFK", "LAX"}, 360, 370, 15, 10),
		demo("DEMO002", Route{"ORD", "MIA"}, 180, 185, 20, 5),
	}
}
