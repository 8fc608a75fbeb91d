package monitor

import (
	"context"
	"math/rand/v2"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScheduler(probe NetworkProbe) *Scheduler {
	return NewScheduler(SchedulerConfig{
		Probe:         probe,
		ProbeInterval: 5 * time.Millisecond,
		RetryInitial:  time.Millisecond,
		RetryMax:      5 * time.Millisecond,
		Rand:          rand.New(rand.NewPCG(3, 4)),
	})
}

func countingJob(n *atomic.Int32, outcomes ...Outcome) Job {
	return func(context.Context) Outcome {
		i := int(n.Add(1)) - 1
		if i < len(outcomes) {
			return outcomes[i]
		}
		return OutcomeCompleted
	}
}

func TestEnqueueUniquePeriodicKeepsExisting(t *testing.T) {
	s := testScheduler(nil)
	defer s.Stop()

	var first, second atomic.Int32
	ok := s.EnqueueUniquePeriodic(PeriodicRequest{Name: JobFlightDataCollection, Interval: time.Hour, Job: countingJob(&first)})
	assert.True(t, ok)
	ok = s.EnqueueUniquePeriodic(PeriodicRequest{Name: JobFlightDataCollection, Interval: time.Hour, Job: countingJob(&second)})
	assert.False(t, ok)

	require.Eventually(t, func() bool { return first.Load() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, second.Load())
	assert.Len(t, s.Jobs(), 1)
}

func TestSchedulerRepeatsEveryInterval(t *testing.T) {
	s := testScheduler(nil)
	defer s.Stop()

	var n atomic.Int32
	s.EnqueueUniquePeriodic(PeriodicRequest{Name: "tick", Interval: 10 * time.Millisecond, Flex: 5 * time.Millisecond, Job: countingJob(&n)})

	require.Eventually(t, func() bool { return n.Load() >= 3 }, 2*time.Second, time.Millisecond)
}

func TestSchedulerRetriesWithBackoff(t *testing.T) {
	s := testScheduler(nil)
	defer s.Stop()

	var n atomic.Int32
	s.EnqueueUniquePeriodic(PeriodicRequest{
		Name:     "collect",
		Interval: time.Hour,
		Job:      countingJob(&n, OutcomeRetry, OutcomeRetry),
	})

	require.Eventually(t, func() bool { return n.Load() == 3 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		jobs := s.Jobs()
		return len(jobs) == 1 && jobs[0].Runs == 3 && jobs[0].LastOutcome == OutcomeCompleted
	}, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), n.Load(), "completed run waits for the next period")
}

func TestSchedulerFailedWaitsForNextPeriod(t *testing.T) {
	s := testScheduler(nil)
	defer s.Stop()

	var n atomic.Int32
	s.EnqueueUniquePeriodic(PeriodicRequest{Name: "purge", Interval: time.Hour, Job: countingJob(&n, OutcomeFailed)})

	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
}

func TestSchedulerWaitsForNetwork(t *testing.T) {
	var online atomic.Bool
	s := testScheduler(func(context.Context) bool { return online.Load() })
	defer s.Stop()

	var n atomic.Int32
	s.EnqueueUniquePeriodic(PeriodicRequest{Name: "collect", Interval: time.Hour, RequiresNetwork: true, Job: countingJob(&n)})

	require.Eventually(t, func() bool { return s.Jobs()[0].Waiting }, time.Second, time.Millisecond)
	assert.Zero(t, n.Load())

	online.Store(true)
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)
}

func TestSchedulerRunNowAndCancel(t *testing.T) {
	s := testScheduler(nil)
	defer s.Stop()

	var n atomic.Int32
	s.EnqueueUniquePeriodic(PeriodicRequest{Name: "collect", Interval: time.Hour, Job: countingJob(&n)})
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)

	assert.True(t, s.RunNow("collect"))
	require.Eventually(t, func() bool { return n.Load() == 2 }, time.Second, time.Millisecond)

	assert.False(t, s.RunNow("missing"))
	assert.True(t, s.Cancel("collect"))
	assert.False(t, s.Cancel("collect"))
	assert.Empty(t, s.Jobs())

	assert.True(t, s.EnqueueUniquePeriodic(PeriodicRequest{Name: "collect", Interval: time.Hour, Job: countingJob(&n)}))
}

func TestSchedulerStopEndsJobs(t *testing.T) {
	s := testScheduler(nil)

	started := make(chan struct{})
	s.EnqueueUniquePeriodic(PeriodicRequest{Name: "slow", Interval: time.Hour, Job: func(ctx context.Context) Outcome {
		close(started)
		<-ctx.Done()
		return OutcomeRetry
	}})
	<-started

	done := make(chan struct{})
	go func() { s.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.False(t, s.EnqueueUniquePeriodic(PeriodicRequest{Name: "late", Interval: time.Hour, Job: countingJob(new(atomic.Int32))}))
}

func TestDialProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	assert.True(t, DialProbe(addr, time.Second)(context.Background()))
	ln.Close()
	assert.False(t, DialProbe(addr, 100*time.Millisecond)(context.Background()))
}
