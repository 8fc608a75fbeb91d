package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, policy UniquePolicy) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), Options{Unique: policy})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func intPtr(v int) *int { return &v }

func timePtr(v time.Time) *time.Time { return &v }

var base = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func record(number, dep, arr string, day int, actual, depDelay, arrDelay *int) *FlightRecord {
	sched := base.AddDate(0, 0, day)
	return &FlightRecord{
		FlightNumber:       number,
		FlightDate:         sched,
		DepartureAirport:   dep,
		ArrivalAirport:     arr,
		ScheduledDeparture: sched,
		ScheduledArrival:   sched.Add(2 * time.Hour),
		ScheduledDuration:  120,
		ActualDuration:     actual,
		DepartureDelay:     depDelay,
		ArrivalDelay:       arrDelay,
		Status:             "landed",
	}
}

func TestInsertOrReplaceAccumulatesByID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, UniqueByID)

	require.NoError(t, s.InsertOrReplace(ctx, record("AA100", "JFK", "LAX", 0, nil, nil, nil)))
	require.NoError(t, s.InsertOrReplace(ctx, record("AA100", "JFK", "LAX", 0, nil, nil, nil)))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestInsertOrReplaceDedupesByFlightDate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, UniqueByFlightDate)

	first := record("AA100", "JFK", "LAX", 0, nil, nil, nil)
	require.NoError(t, s.InsertOrReplace(ctx, first))

	second := record("AA100", "JFK", "LAX", 0, intPtr(130), intPtr(5), intPtr(15))
	second.Status = "active"
	require.NoError(t, s.InsertOrReplace(ctx, second))

	// A different day is a different logical flight.
	require.NoError(t, s.InsertOrReplace(ctx, record("AA100", "JFK", "LAX", 1, nil, nil, nil)))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := s.RecordByNumberAndDate(ctx, "AA100", base)
	require.NoError(t, err)
	assert.Equal(t, "active", got.Status)
	require.NotNil(t, got.ActualDuration)
	assert.Equal(t, 130, *got.ActualDuration)
}

func TestFlightDateKeyIncludesRoute(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, UniqueByFlightDate)

	// The same synthetic label drawn for two routes on one day.
	require.NoError(t, s.InsertOrReplace(ctx, record("SYN42", "JFK", "LAX", 0, intPtr(300), intPtr(0), intPtr(0))))
	require.NoError(t, s.InsertOrReplace(ctx, record("SYN42", "ORD", "MIA", 0, intPtr(180), intPtr(0), intPtr(0))))

	jfk, err := s.QueryByRoute(ctx, "JFK", "LAX")
	require.NoError(t, err)
	assert.Len(t, jfk, 1)
	ord, err := s.QueryByRoute(ctx, "ORD", "MIA")
	require.NoError(t, err)
	assert.Len(t, ord, 1)

	stats, err := s.AverageAdjustedDurationByRoute(ctx)
	require.NoError(t, err)
	assert.Len(t, stats, 2)

	assert.Equal(t, "SYN42|JFK-LAX|2025-03-14", NaturalKey("SYN42", "JFK", "LAX", base))
}

func TestInsertDefaultsStatusAndCollectionTime(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, UniqueByID)

	r := record("UA987", "ORD", "MIA", 0, nil, nil, nil)
	r.Status = ""
	require.NoError(t, s.InsertOrReplace(ctx, r))
	assert.NotZero(t, r.ID)

	got, err := s.RecordByNumberAndDate(ctx, "UA987", base)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, got.Status)
	assert.False(t, got.CollectedAt.IsZero())
	assert.Nil(t, got.ActualDeparture)
	assert.Nil(t, got.DepartureDelay)
}

func TestQueryByRouteNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, UniqueByID)

	for day := 0; day < 3; day++ {
		require.NoError(t, s.InsertOrReplace(ctx, record("DL200", "ATL", "DEN", day, nil, nil, nil)))
	}
	require.NoError(t, s.InsertOrReplace(ctx, record("DL201", "DEN", "ATL", 0, nil, nil, nil)))

	list, err := s.QueryByRoute(ctx, "ATL", "DEN")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[0].FlightDate.Equal(base.AddDate(0, 0, 2)))
	assert.True(t, list[2].FlightDate.Equal(base))
}

func TestAverageAdjustedDurationByRoute(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, UniqueByID)

	require.NoError(t, s.InsertOrReplace(ctx, record("AA1", "JFK", "LAX", 0, intPtr(360), intPtr(10), intPtr(20))))
	require.NoError(t, s.InsertOrReplace(ctx, record("AA2", "JFK", "LAX", 1, intPtr(300), intPtr(0), intPtr(10))))
	// Missing actual duration: does not contribute.
	require.NoError(t, s.InsertOrReplace(ctx, record("AA3", "JFK", "LAX", 2, nil, intPtr(5), intPtr(5))))
	// Route with no contributing rows is omitted.
	require.NoError(t, s.InsertOrReplace(ctx, record("UA4", "LAX", "SFO", 0, nil, nil, nil)))

	stats, err := s.AverageAdjustedDurationByRoute(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "JFK", stats[0].Departure)
	assert.Equal(t, "LAX", stats[0].Arrival)
	assert.InDelta(t, 350.0, stats[0].AverageMinutes, 0.001) // (390 + 310) / 2
	assert.EqualValues(t, 2, stats[0].Samples)
}

func TestAverageActualDuration(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, UniqueByID)

	_, ok, err := s.AverageActualDuration(ctx, "JFK", "LAX")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.InsertOrReplace(ctx, record("AA1", "JFK", "LAX", 0, intPtr(100), nil, nil)))
	require.NoError(t, s.InsertOrReplace(ctx, record("AA2", "JFK", "LAX", 0, intPtr(200), nil, nil)))
	require.NoError(t, s.InsertOrReplace(ctx, record("AA3", "JFK", "LAX", 0, intPtr(0), nil, nil)))

	avg, ok, err := s.AverageActualDuration(ctx, "JFK", "LAX")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 150.0, avg, 0.001)
}

func TestRoutesAndRecordsBetween(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, UniqueByID)

	require.NoError(t, s.InsertOrReplace(ctx, record("AA1", "JFK", "LAX", 0, nil, nil, nil)))
	require.NoError(t, s.InsertOrReplace(ctx, record("AA2", "JFK", "LAX", 3, nil, nil, nil)))
	require.NoError(t, s.InsertOrReplace(ctx, record("DL1", "ATL", "DEN", 5, nil, nil, nil)))

	routes, err := s.Routes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []RouteKey{{"ATL", "DEN"}, {"JFK", "LAX"}}, routes)

	list, err := s.RecordsBetween(ctx, base.AddDate(0, 0, 1), base.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "AA2", list[0].FlightNumber)
	assert.Equal(t, "DL1", list[1].FlightNumber)
}

func TestRecordByNumberAndDateNotFound(t *testing.T) {
	s := openTestStore(t, UniqueByID)
	_, err := s.RecordByNumberAndDate(context.Background(), "ZZ999", base)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClearAllAndPurge(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, UniqueByID)

	old := record("AA1", "JFK", "LAX", 0, nil, nil, nil)
	old.CollectedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.InsertOrReplace(ctx, old))
	require.NoError(t, s.InsertOrReplace(ctx, record("AA2", "JFK", "LAX", 0, nil, nil, nil)))

	purged, err := s.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	cleared, err := s.ClearAll(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cleared)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWatchRouteSeesNewRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := openTestStore(t, UniqueByID)

	ch := s.WatchRoute(ctx, "JFK", "LAX")

	select {
	case list := <-ch:
		assert.Empty(t, list)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	// Other routes do not matter to this watcher.
	require.NoError(t, s.InsertOrReplace(ctx, record("DL1", "ATL", "DEN", 0, nil, nil, nil)))
	require.NoError(t, s.InsertOrReplace(ctx, record("AA1", "JFK", "LAX", 0, nil, nil, nil)))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case list := <-ch:
			if len(list) == 1 {
				assert.Equal(t, "AA1", list[0].FlightNumber)
				return
			}
		case <-deadline:
			t.Fatal("route update not delivered")
		}
	}
}

func TestWatchStatisticsClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := openTestStore(t, UniqueByID)

	ch := s.WatchStatistics(ctx)
	<-ch

	require.NoError(t, s.InsertOrReplace(ctx, record("AA1", "JFK", "LAX", 0, intPtr(300), intPtr(0), intPtr(0))))

	deadline := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case stats := <-ch:
			done = len(stats) == 1
		case <-deadline:
			t.Fatal("statistics update not delivered")
		}
	}

	cancel()
	deadline = time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed")
		}
	}
}

func TestInvalidateSeesOtherConnectionWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "shared.db")
	reader, err := Open(path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close() })
	writer, err := Open(path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	ch := reader.WatchRoute(ctx, "JFK", "LAX")
	assert.Empty(t, <-ch)

	require.NoError(t, writer.InsertOrReplace(ctx, record("AA1", "JFK", "LAX", 0, nil, nil, nil)))
	reader.Invalidate()

	select {
	case list := <-ch:
		assert.Len(t, list, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("invalidate did not re-run the query")
	}
}

func TestTrackingSessions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, UniqueByID)

	require.NoError(t, s.SaveTracking(ctx, 42, "AA123"))
	require.NoError(t, s.SaveTracking(ctx, 42, "DL4567"))
	require.NoError(t, s.SaveTracking(ctx, 7, "UA987"))

	list, err := s.ListTracking(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(7), list[0].ChatID)
	assert.Equal(t, "DL4567", list[1].FlightNumber)

	require.NoError(t, s.RemoveTracking(ctx, 42))
	assert.ErrorIs(t, s.RemoveTracking(ctx, 42), ErrNotFound)
}

func TestParseUniquePolicy(t *testing.T) {
	p, err := ParseUniquePolicy("flight_date")
	require.NoError(t, err)
	assert.Equal(t, UniqueByFlightDate, p)

	p, err = ParseUniquePolicy("")
	require.NoError(t, err)
	assert.Equal(t, UniqueByID, p)

	_, err = ParseUniquePolicy("hash")
	assert.Error(t, err)
}

func TestComputeDailySummaries(t *testing.T) {
	recs := []FlightRecord{
		*record("AA1", "JFK", "LAX", 0, intPtr(130), intPtr(10), intPtr(20)),
		*record("SYN1", "JFK", "LAX", 0, intPtr(110), intPtr(0), intPtr(0)),
		*record("AA2", "JFK", "LAX", 1, nil, nil, nil),
	}
	recs[1].Status = "synthetic"
	recs[0].ActualDeparture = timePtr(base.Add(10 * time.Minute))

	got := ComputeDailySummaries(recs, "synthetic")
	require.Len(t, got, 2)

	assert.Equal(t, "2025-03-14", got[0].Date)
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, 1, got[0].Synthetic)
	assert.InDelta(t, 120.0, got[0].AvgActual, 0.001)
	assert.InDelta(t, 5.0, got[0].AvgDepartureDelay, 0.001)
	assert.InDelta(t, 10.0, got[0].AvgArrivalDelay, 0.001)
	assert.Equal(t, 20, got[0].MaxArrivalDelay)

	assert.Equal(t, 1, got[1].Count)
	assert.Zero(t, got[1].ActualN)
}
