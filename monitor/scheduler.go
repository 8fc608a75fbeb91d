package monitor

import (
	"context"
	"math/rand/v2"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Well-known job names.
const (
	JobFlightDataCollection = "flight_data_collection"
	JobRecordPurge          = "record_purge"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) Outcome

// PeriodicRequest describes a named repeating job. The job runs once on
// registration and then every Interval minus a random jitter in [0, Flex).
type PeriodicRequest struct {
	Name            string
	Interval        time.Duration
	Flex            time.Duration
	RequiresNetwork bool
	Job             Job
}

// NetworkProbe reports whether a network path is currently available.
type NetworkProbe func(ctx context.Context) bool

// DialProbe succeeds when a TCP connection to addr can be opened.
func DialProbe(addr string, timeout time.Duration) NetworkProbe {
	return func(ctx context.Context) bool {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Configuration
// ═══════════════════════════════════════════════════════════════════════════

type SchedulerConfig struct {
	Probe         NetworkProbe
	ProbeInterval time.Duration
	RetryInitial  time.Duration
	RetryMax      time.Duration
	Rand          *rand.Rand
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ProbeInterval: 30 * time.Second,
		RetryInitial:  30 * time.Second,
		RetryMax:      30 * time.Minute,
	}
}

// JobInfo is a read-only view of a registered job.
type JobInfo struct {
	Name        string
	Interval    time.Duration
	Runs        int
	LastRun     time.Time
	LastOutcome Outcome
	Running     bool
	Waiting     bool // blocked on the network constraint
}

// ═══════════════════════════════════════════════════════════════════════════
// Scheduler
// ═══════════════════════════════════════════════════════════════════════════

type periodicJob struct {
	req    PeriodicRequest
	runNow chan struct{}
	cancel context.CancelFunc

	mu   sync.Mutex
	info JobInfo
}

func (j *periodicJob) update(fn func(*JobInfo)) {
	j.mu.Lock()
	fn(&j.info)
	j.mu.Unlock()
}

// Scheduler runs named periodic jobs, each on its own goroutine.
type Scheduler struct {
	cfg SchedulerConfig
	log zerolog.Logger

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	jobs   map[string]*periodicJob
	closed bool
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = def.RetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = def.RetryMax
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:  cfg,
		log:  log.With().Str("module", "scheduler").Logger(),
		ctx:  ctx,
		stop: stop,
		jobs: make(map[string]*periodicJob),
	}
}

// EnqueueUniquePeriodic registers req unless a job with the same name is
// already registered, in which case the existing job is kept and false
// is returned.
func (s *Scheduler) EnqueueUniquePeriodic(req PeriodicRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, ok := s.jobs[req.Name]; ok {
		s.log.Debug().Str("job", req.Name).Msg("already scheduled, keeping existing")
		return false
	}

	ctx, cancel := context.WithCancel(s.ctx)
	j := &periodicJob{
		req:    req,
		runNow: make(chan struct{}, 1),
		cancel: cancel,
		info:   JobInfo{Name: req.Name, Interval: req.Interval},
	}
	s.jobs[req.Name] = j

	s.wg.Add(1)
	go s.loop(ctx, j)

	s.log.Info().
		Str("job", req.Name).
		Dur("interval", req.Interval).
		Dur("flex", req.Flex).
		Bool("network", req.RequiresNetwork).
		Msg("scheduled")
	return true
}

// RunNow wakes the named job early. It returns false for unknown jobs.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case j.runNow <- struct{}{}:
	default:
	}
	return true
}

// Cancel stops and forgets the named job. A later enqueue with the same
// name registers it afresh.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	delete(s.jobs, name)
	s.mu.Unlock()
	if ok {
		j.cancel()
		s.log.Info().Str("job", name).Msg("cancelled")
	}
	return ok
}

// Jobs lists registered jobs by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		j.mu.Lock()
		out = append(out, j.info)
		j.mu.Unlock()
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Stop cancels every job and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()
	s.log.Info().Msg("stopped")
}

func (s *Scheduler) loop(ctx context.Context, j *periodicJob) {
	defer s.wg.Done()

	for {
		s.runWithRetry(ctx, j)

		wait := j.req.Interval - s.jitter(j.req.Flex)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-j.runNow:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) jitter(flex time.Duration) time.Duration {
	if flex <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.cfg.Rand.Int64N(int64(flex)))
}

// runWithRetry runs the job until it stops asking for a retry. Retries
// back off exponentially and give up once a full interval has elapsed;
// the next period then starts over.
func (s *Scheduler) runWithRetry(ctx context.Context, j *periodicJob) {
	jl := s.log.With().Str("job", j.req.Name).Logger()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.RetryInitial
	eb.MaxInterval = s.cfg.RetryMax
	eb.MaxElapsedTime = j.req.Interval
	eb.Reset()
	b := backoff.WithContext(eb, ctx)

	for {
		if j.req.RequiresNetwork && !s.waitForNetwork(ctx, j) {
			return
		}

		j.update(func(i *JobInfo) { i.Running = true })
		out := j.req.Job(ctx)
		j.update(func(i *JobInfo) {
			i.Running = false
			i.Runs++
			i.LastRun = time.Now()
			i.LastOutcome = out
		})

		switch out {
		case OutcomeCompleted:
			jl.Debug().Msg("run completed")
			return
		case OutcomeFailed:
			jl.Warn().Msg("run failed, waiting for next period")
			return
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			jl.Warn().Msg("retries exhausted, waiting for next period")
			return
		}
		jl.Info().Dur("in", next).Msg("retry scheduled")

		timer := time.NewTimer(next)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// waitForNetwork blocks until the probe succeeds. It returns false when
// ctx ends first.
func (s *Scheduler) waitForNetwork(ctx context.Context, j *periodicJob) bool {
	if s.cfg.Probe == nil || s.cfg.Probe(ctx) {
		return true
	}
	s.log.Info().Str("job", j.req.Name).Msg("waiting for network")
	j.update(func(i *JobInfo) { i.Waiting = true })
	defer j.update(func(i *JobInfo) { i.Waiting = false })

	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if s.cfg.Probe(ctx) {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}
