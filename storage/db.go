package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// StatusUnknown is stored when the provider does not report a status.
const StatusUnknown = "unknown"

// ErrNotFound is returned by single-record lookups that match nothing.
var ErrNotFound = errors.New("storage: not found")

// ═══════════════════════════════════════════════════════════════════════════
// Models
// ═══════════════════════════════════════════════════════════════════════════

// FlightRecord is one observed (or synthesized) flight. Durations are in
// whole minutes. Optional fields stay nil until observed.
//
//	ScheduledDuration = ScheduledArrival − ScheduledDeparture
//	ActualDuration    = ActualArrival − ActualDeparture (only when both are set)
type FlightRecord struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"                       json:"id"`
	FlightNumber     string    `gorm:"column:flight_number;size:16;not null;index"    json:"flight_number"`
	FlightDate       time.Time `gorm:"column:flight_date;not null;index"              json:"flight_date"`
	DepartureAirport string    `gorm:"column:departure_airport;size:3;not null"       json:"departure_airport"`
	ArrivalAirport   string    `gorm:"column:arrival_airport;size:3;not null"         json:"arrival_airport"`

	ScheduledDeparture time.Time  `gorm:"column:scheduled_departure;not null" json:"scheduled_departure"`
	ScheduledArrival   time.Time  `gorm:"column:scheduled_arrival;not null"   json:"scheduled_arrival"`
	ActualDeparture    *time.Time `gorm:"column:actual_departure"             json:"actual_departure,omitempty"`
	ActualArrival      *time.Time `gorm:"column:actual_arrival"               json:"actual_arrival,omitempty"`

	DepartureDelay    *int `gorm:"column:departure_delay"             json:"departure_delay,omitempty"` // minutes
	ArrivalDelay      *int `gorm:"column:arrival_delay"               json:"arrival_delay,omitempty"`   // minutes
	ScheduledDuration int  `gorm:"column:scheduled_duration;not null" json:"scheduled_duration"`
	ActualDuration    *int `gorm:"column:actual_duration"             json:"actual_duration,omitempty"`

	Status      string    `gorm:"column:status;size:32;not null;default:unknown" json:"status"`
	CollectedAt time.Time `gorm:"column:collected_at;not null;index"             json:"collected_at"`

	// NaturalKey is only populated under UniqueByFlightDate.
	NaturalKey *string `gorm:"column:natural_key;size:48;uniqueIndex" json:"-"`
}

func (FlightRecord) TableName() string { return "flight_records" }

// TrackedFlight remembers which flight a chat is following so tracking
// survives a restart.
type TrackedFlight struct {
	ChatID       int64  `gorm:"column:chat_id;primaryKey;autoIncrement:false" json:"chat_id"`
	FlightNumber string `gorm:"column:flight_number;size:16;not null"         json:"flight_number"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TrackedFlight) TableName() string { return "tracked_flights" }

// RouteStatistic is the average adjusted duration over every record of
// one route. It is computed on demand and never stored.
type RouteStatistic struct {
	Departure      string  `gorm:"column:departure"       json:"departure"`
	Arrival        string  `gorm:"column:arrival"         json:"arrival"`
	AverageMinutes float64 `gorm:"column:average_minutes" json:"average_minutes"`
	Samples        int64   `gorm:"column:samples"         json:"samples"`
}

// RouteKey identifies a route: an ordered departure/arrival pair.
type RouteKey struct {
	Departure string `gorm:"column:departure_airport"`
	Arrival   string `gorm:"column:arrival_airport"`
}

func (k RouteKey) String() string { return k.Departure + "-" + k.Arrival }

// ═══════════════════════════════════════════════════════════════════════════
// Uniqueness policy
// ═══════════════════════════════════════════════════════════════════════════

// UniquePolicy decides which writes replace an existing row.
type UniquePolicy int

const (
	// UniqueByID only conflicts on the auto-assigned identifier, so every
	// ingestion run adds new rows for the same logical flight.
	UniqueByID UniquePolicy = iota

	// UniqueByFlightDate keys records on flight number, route and UTC
	// flight date, and replaces the previous row for that triple.
	UniqueByFlightDate
)

func (p UniquePolicy) String() string {
	switch p {
	case UniqueByFlightDate:
		return "flight_date"
	default:
		return "id"
	}
}

// ParseUniquePolicy accepts "id" or "flight_date".
func ParseUniquePolicy(s string) (UniquePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "id":
		return UniqueByID, nil
	case "flight_date", "flight-date":
		return UniqueByFlightDate, nil
	default:
		return UniqueByID, fmt.Errorf("storage: unknown uniqueness policy %q", s)
	}
}

// NaturalKey builds the dedup key used by UniqueByFlightDate. The route
// is part of the key so equal labels on different routes never replace
// each other.
func NaturalKey(flightNumber, dep, arr string, flightDate time.Time) string {
	return flightNumber + "|" + dep + "-" + arr + "|" + flightDate.UTC().Format("2006-01-02")
}

// ═══════════════════════════════════════════════════════════════════════════
// Store
// ═══════════════════════════════════════════════════════════════════════════

// Options configures Open.
type Options struct {
	Unique UniquePolicy
}

// Store owns every FlightRecord. One instance is constructed at start-up
// and handed to each component that needs it.
type Store struct {
	db     *gorm.DB
	policy UniquePolicy
	log    zerolog.Logger

	// writers are serialized; SQLite allows one at a time anyway.
	mu sync.Mutex

	watchMu  sync.Mutex
	watchers map[*watcher]struct{}
}

// Open opens (or creates) the SQLite file at path and migrates the schema.
func Open(path string, opts Options) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("storage: enable WAL: %w", err)
	}
	if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
		return nil, fmt.Errorf("storage: busy timeout: %w", err)
	}

	if err := db.AutoMigrate(&FlightRecord{}, &TrackedFlight{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}

	// Composite index for route queries and statistics.
	db.Exec("CREATE INDEX IF NOT EXISTS idx_fr_route_date ON flight_records(departure_airport, arrival_airport, flight_date)")

	return &Store{
		db:       db,
		policy:   opts.Unique,
		log:      log.With().Str("module", "store").Logger(),
		watchers: make(map[*watcher]struct{}),
	}, nil
}

// Policy reports the uniqueness policy the store was opened with.
func (s *Store) Policy() UniquePolicy { return s.policy }

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	return sqlDB.Close()
}

// ═══════════════════════════════════════════════════════════════════════════
// Flight record writes
// ═══════════════════════════════════════════════════════════════════════════

// InsertOrReplace writes r, replacing any row it conflicts with under the
// store's uniqueness policy. r.ID is set on return.
func (s *Store) InsertOrReplace(ctx context.Context, r *FlightRecord) error {
	normalize(r)

	r.NaturalKey = nil
	conflict := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}
	if s.policy == UniqueByFlightDate {
		key := NaturalKey(r.FlightNumber, r.DepartureAirport, r.ArrivalAirport, r.FlightDate)
		r.NaturalKey = &key
		conflict = clause.OnConflict{Columns: []clause.Column{{Name: "natural_key"}}, UpdateAll: true}
	}

	s.mu.Lock()
	err := s.db.WithContext(ctx).Clauses(conflict).Create(r).Error
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("storage: insert %s: %w", r.FlightNumber, err)
	}

	s.notify(r.DepartureAirport, r.ArrivalAirport)
	return nil
}

// ClearAll deletes every flight record and returns how many were removed.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	r := s.db.WithContext(ctx).Where("1 = 1").Delete(&FlightRecord{})
	s.mu.Unlock()
	if r.Error != nil {
		return 0, fmt.Errorf("storage: clear: %w", r.Error)
	}
	s.notifyAll()
	return r.RowsAffected, nil
}

// PurgeOlderThan deletes records collected more than age ago.
func (s *Store) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)

	s.mu.Lock()
	r := s.db.WithContext(ctx).Where("collected_at < ?", cutoff).Delete(&FlightRecord{})
	s.mu.Unlock()
	if r.Error != nil {
		return 0, fmt.Errorf("storage: purge: %w", r.Error)
	}
	if r.RowsAffected > 0 {
		s.notifyAll()
	}
	return r.RowsAffected, nil
}

func normalize(r *FlightRecord) {
	if r.Status == "" {
		r.Status = StatusUnknown
	}
	if r.CollectedAt.IsZero() {
		r.CollectedAt = time.Now()
	}
	r.CollectedAt = r.CollectedAt.UTC()
	r.FlightDate = r.FlightDate.UTC()
	r.ScheduledDeparture = r.ScheduledDeparture.UTC()
	r.ScheduledArrival = r.ScheduledArrival.UTC()
	if r.ActualDeparture != nil {
		t := r.ActualDeparture.UTC()
		r.ActualDeparture = &t
	}
	if r.ActualArrival != nil {
		t := r.ActualArrival.UTC()
		r.ActualArrival = &t
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Flight record queries
// ═══════════════════════════════════════════════════════════════════════════

// QueryByRoute returns the records of one route, most recent flight date first.
func (s *Store) QueryByRoute(ctx context.Context, dep, arr string) ([]FlightRecord, error) {
	var list []FlightRecord
	err := s.db.WithContext(ctx).
		Where("departure_airport = ? AND arrival_airport = ?", dep, arr).
		Order("flight_date DESC").Order("id DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("storage: route %s-%s: %w", dep, arr, err)
	}
	return list, nil
}

// RecordByNumberAndDate returns the newest record of a flight on the
// UTC calendar day of date.
func (s *Store) RecordByNumberAndDate(ctx context.Context, flightNumber string, date time.Time) (*FlightRecord, error) {
	d := date.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)

	var rec FlightRecord
	err := s.db.WithContext(ctx).
		Where("flight_number = ? AND flight_date >= ? AND flight_date < ?", flightNumber, start, start.Add(24*time.Hour)).
		Order("id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", flightNumber, err)
	}
	return &rec, nil
}

// RecordsBetween returns records whose flight date lies in [start, end].
func (s *Store) RecordsBetween(ctx context.Context, start, end time.Time) ([]FlightRecord, error) {
	var list []FlightRecord
	err := s.db.WithContext(ctx).
		Where("flight_date BETWEEN ? AND ?", start.UTC(), end.UTC()).
		Order("flight_date ASC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("storage: between: %w", err)
	}
	return list, nil
}

// AllRecords returns up to limit records, newest collection first.
func (s *Store) AllRecords(ctx context.Context, limit int) ([]FlightRecord, error) {
	var list []FlightRecord
	err := s.db.WithContext(ctx).Order("collected_at DESC").Order("id DESC").Limit(limit).Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return list, nil
}

// Routes lists every route that has at least one record.
func (s *Store) Routes(ctx context.Context) ([]RouteKey, error) {
	var keys []RouteKey
	err := s.db.WithContext(ctx).Model(&FlightRecord{}).
		Distinct("departure_airport", "arrival_airport").
		Order("departure_airport").Order("arrival_airport").
		Scan(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("storage: routes: %w", err)
	}
	return keys, nil
}

// Count returns the number of stored flight records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&FlightRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("storage: count: %w", err)
	}
	return n, nil
}

// CountByStatus returns the number of records tagged with status.
func (s *Store) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&FlightRecord{}).Where("status = ?", status).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("storage: count %s: %w", status, err)
	}
	return n, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Aggregation
// ═══════════════════════════════════════════════════════════════════════════

const adjustedExpr = "actual_duration + departure_delay + arrival_delay"

// AverageAdjustedDurationByRoute averages actual duration plus both delays
// per route. Records missing any of the three do not contribute, and
// routes with no contributing record are left out.
func (s *Store) AverageAdjustedDurationByRoute(ctx context.Context) ([]RouteStatistic, error) {
	var stats []RouteStatistic
	err := s.db.WithContext(ctx).Model(&FlightRecord{}).
		Select("departure_airport AS departure, arrival_airport AS arrival, " +
			"AVG(" + adjustedExpr + ") AS average_minutes, " +
			"COUNT(" + adjustedExpr + ") AS samples").
		Group("departure_airport, arrival_airport").
		Having("COUNT(" + adjustedExpr + ") > 0").
		Order("departure_airport").Order("arrival_airport").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("storage: route statistics: %w", err)
	}
	return stats, nil
}

// AverageActualDuration averages the positive actual durations of a
// route. ok is false when no record qualifies.
func (s *Store) AverageActualDuration(ctx context.Context, dep, arr string) (avg float64, ok bool, err error) {
	var v sql.NullFloat64
	err = s.db.WithContext(ctx).Model(&FlightRecord{}).
		Select("AVG(actual_duration)").
		Where("departure_airport = ? AND arrival_airport = ? AND actual_duration > 0", dep, arr).
		Scan(&v).Error
	if err != nil {
		return 0, false, fmt.Errorf("storage: average %s-%s: %w", dep, arr, err)
	}
	return v.Float64, v.Valid, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Tracked flights
// ═══════════════════════════════════════════════════════════════════════════

// SaveTracking records that chatID follows flightNumber, replacing any
// previous flight for that chat.
func (s *Store) SaveTracking(ctx context.Context, chatID int64, flightNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.db.WithContext(ctx).
		Where(TrackedFlight{ChatID: chatID}).
		Assign(TrackedFlight{FlightNumber: flightNumber}).
		FirstOrCreate(&TrackedFlight{})
	if r.Error != nil {
		return fmt.Errorf("storage: track %d: %w", chatID, r.Error)
	}
	return nil
}

// RemoveTracking forgets the tracked flight of chatID.
func (s *Store) RemoveTracking(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.db.WithContext(ctx).Delete(&TrackedFlight{}, "chat_id = ?", chatID)
	if r.Error != nil {
		return fmt.Errorf("storage: untrack %d: %w", chatID, r.Error)
	}
	if r.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTracking returns every persisted tracking session.
func (s *Store) ListTracking(ctx context.Context) ([]TrackedFlight, error) {
	var list []TrackedFlight
	if err := s.db.WithContext(ctx).Order("chat_id").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("storage: list tracking: %w", err)
	}
	return list, nil
}
