package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"flighttrack/monitor"
	"flighttrack/services"
	"flighttrack/storage"
)

// ═══════════════════════════════════════════════════════════════════════════
// Bot application
// ═══════════════════════════════════════════════════════════════════════════

type App struct {
	cfg       *Config
	store     *storage.Store
	bot       *tele.Bot
	provider  monitor.Provider
	collector *monitor.Collector
	scheduler *monitor.Scheduler
	log       zerolog.Logger
	started   time.Time

	sessionsMu sync.Mutex
	sessions   map[int64]*monitor.Refresher

	statsMu sync.RWMutex
	stats   []storage.RouteStatistic

	stop context.CancelFunc
}

func NewApp(cfg *Config, store *storage.Store, provider monitor.Provider) (*App, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.TelegramToken,
		Poller: &tele.LongPoller{Timeout: 30 * time.Second},
		OnError: func(err error, c tele.Context) {
			ev := log.Error().Err(err).Str("module", "bot")
			if c != nil && c.Chat() != nil {
				ev = ev.Int64("chat", c.Chat().ID)
			}
			ev.Msg("handler error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	app := &App{
		cfg:       cfg,
		store:     store,
		bot:       bot,
		provider:  provider,
		collector: newCollector(cfg, provider, store),
		scheduler: monitor.NewScheduler(monitor.SchedulerConfig{
			Probe: monitor.DialProbe(cfg.NetworkProbe, 10*time.Second),
		}),
		log:      log.With().Str("module", "bot").Logger(),
		sessions: make(map[int64]*monitor.Refresher),
	}

	app.registerHandlers()
	return app, nil
}

func newCollector(cfg *Config, provider monitor.Provider, store *storage.Store) *monitor.Collector {
	return monitor.NewCollector(provider, store, monitor.CollectorConfig{Routes: cfg.Routes})
}

// Run starts the scheduler, statistics watch and bot, and blocks until ctx ends.
func (app *App) Run(ctx context.Context) error {
	app.started = time.Now()
	ctx, app.stop = context.WithCancel(ctx)

	if err := prepareStore(ctx, app.cfg, app.store); err != nil {
		return err
	}

	// ── Statistics snapshot ─────────────────────────────────────────────

	go func() {
		for stats := range app.store.WatchStatistics(ctx) {
			app.statsMu.Lock()
			app.stats = stats
			app.statsMu.Unlock()
		}
	}()

	// ── Scheduled jobs ──────────────────────────────────────────────────

	registerJobs(app.scheduler, app.cfg, app.collector, app.store)

	// ── Resume tracking sessions ────────────────────────────────────────

	app.resumeSessions(ctx)

	// ── Start bot (non-blocking) ────────────────────────────────────────

	go func() {
		app.log.Info().Msg("telegram bot polling")
		app.bot.Start()
	}()

	for _, chatID := range app.cfg.ChatIDs {
		app.sendToChat(chatID, "🟢 *Flight tracker online*\n\nType /help for commands.")
	}
	app.log.Info().Msg("all systems operational")

	<-ctx.Done()
	return app.Shutdown()
}

// Shutdown stops every component in reverse start order.
func (app *App) Shutdown() error {
	for _, chatID := range app.cfg.ChatIDs {
		app.sendToChat(chatID, "🔴 *Flight tracker shutting down*")
	}

	app.bot.Stop()
	app.log.Info().Msg("bot stopped")

	app.sessionsMu.Lock()
	for _, r := range app.sessions {
		r.Hide()
	}
	app.sessionsMu.Unlock()

	app.scheduler.Stop()
	if app.stop != nil {
		app.stop()
	}
	return nil
}

// prepareStore applies the start-up clear and demo seed.
func prepareStore(ctx context.Context, cfg *Config, store *storage.Store) error {
	if cfg.ClearOnStart {
		n, err := store.ClearAll(ctx)
		if err != nil {
			return fmt.Errorf("clear on start: %w", err)
		}
		log.Info().Int64("deleted", n).Msg("flight records cleared")
	}

	if !cfg.SeedDemo {
		return nil
	}
	stats, err := store.AverageAdjustedDurationByRoute(ctx)
	if err != nil {
		return fmt.Errorf("seed demo: %w", err)
	}
	if len(stats) > 0 {
		return nil
	}
	for _, r := range monitor.DemoRecords(time.Now()) {
		if err := store.InsertOrReplace(ctx, &r); err != nil {
			return fmt.Errorf("seed demo: %w", err)
		}
	}
	log.Info().Msg("demo records inserted")
	return nil
}

// registerJobs enqueues the periodic collection and, when retention is
// configured, the purge job.
func registerJobs(s *monitor.Scheduler, cfg *Config, c *monitor.Collector, store *storage.Store) {
	s.EnqueueUniquePeriodic(monitor.PeriodicRequest{
		Name:            monitor.JobFlightDataCollection,
		Interval:        cfg.CollectInterval,
		Flex:            cfg.CollectFlex,
		RequiresNetwork: true,
		Job:             c.Run,
	})

	if cfg.Retention <= 0 {
		return
	}
	s.EnqueueUniquePeriodic(monitor.PeriodicRequest{
		Name:     monitor.JobRecordPurge,
		Interval: 24 * time.Hour,
		Job: func(ctx context.Context) monitor.Outcome {
			n, err := store.PurgeOlderThan(ctx, cfg.Retention)
			if err != nil {
				log.Error().Err(err).Msg("purge failed")
				return monitor.OutcomeRetry
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Dur("older_than", cfg.Retention).Msg("purged records")
			}
			return monitor.OutcomeCompleted
		},
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// Tracking sessions
// ═══════════════════════════════════════════════════════════════════════════

func (app *App) startSession(chatID int64, flightNumber string) (*monitor.Refresher, error) {
	view := newTelegramView(app.bot, &tele.Chat{ID: chatID}, flightNumber)
	r, err := monitor.NewRefresher(flightNumber, app.provider, app.store, view, monitor.RefreshConfig{
		Interval: app.cfg.RefreshInterval,
		Timeout:  app.cfg.ProviderTimeout,
		Lookup:   services.LookupCoordinate,
	})
	if err != nil {
		return nil, err
	}

	app.sessionsMu.Lock()
	if prev, ok := app.sessions[chatID]; ok {
		prev.Hide()
	}
	app.sessions[chatID] = r
	app.sessionsMu.Unlock()

	r.Show()
	return r, nil
}

func (app *App) stopSession(chatID int64) (string, bool) {
	app.sessionsMu.Lock()
	r, ok := app.sessions[chatID]
	delete(app.sessions, chatID)
	app.sessionsMu.Unlock()
	if !ok {
		return "", false
	}
	r.Hide()
	return r.FlightNumber(), true
}

func (app *App) resumeSessions(ctx context.Context) {
	tracked, err := app.store.ListTracking(ctx)
	if err != nil {
		app.log.Error().Err(err).Msg("list tracked flights")
		return
	}
	for _, t := range tracked {
		if !app.cfg.Allowed(t.ChatID) {
			continue
		}
		if _, err := app.startSession(t.ChatID, t.FlightNumber); err != nil {
			app.log.Warn().Err(err).Int64("chat", t.ChatID).Msg("resume tracking")
			continue
		}
		app.log.Info().Int64("chat", t.ChatID).Str("flight", t.FlightNumber).Msg("tracking resumed")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Telegram view
// ═══════════════════════════════════════════════════════════════════════════

// telegramView shows refresh results in one chat, editing its last
// message in place instead of posting a new one each pass.
type telegramView struct {
	bot    *tele.Bot
	chat   *tele.Chat
	flight string
	last   *tele.Message
	log    zerolog.Logger
}

func newTelegramView(bot *tele.Bot, chat *tele.Chat, flight string) *telegramView {
	return &telegramView{
		bot:    bot,
		chat:   chat,
		flight: flight,
		log:    log.With().Str("module", "bot").Int64("chat", chat.ID).Str("flight", flight).Logger(),
	}
}

func (v *telegramView) SetLoading(loading bool) {
	if !loading {
		return
	}
	if err := v.bot.Notify(v.chat, tele.Typing); err != nil {
		v.log.Debug().Err(err).Msg("typing action")
	}
}

func (v *telegramView) ShowFlight(fv monitor.FlightView) {
	v.show(fv.Markdown())
}

func (v *telegramView) ShowNotFound(flightNumber string) {
	v.show(fmt.Sprintf("❌ Flight *%s* not found.", flightNumber))
}

func (v *telegramView) ShowNetworkError(err error) {
	var se *services.StatusError
	if errors.As(err, &se) {
		v.show(fmt.Sprintf("⚠️ Provider error (HTTP %d). Please check your network connection.", se.Code))
		return
	}
	v.show("⚠️ Network error. Will retry on the next refresh.")
}

func (v *telegramView) show(text string) {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, DisableWebPagePreview: true}
	if v.last != nil {
		msg, err := v.bot.Edit(v.last, text, opts)
		switch {
		case err == nil:
			v.last = msg
			return
		case errors.Is(err, tele.ErrSameMessageContent), errors.Is(err, tele.ErrMessageNotModified):
			return
		default:
			v.log.Debug().Err(err).Msg("edit failed, sending new message")
		}
	}
	msg, err := v.bot.Send(v.chat, text, opts)
	if err != nil {
		v.log.Warn().Err(err).Msg("send")
		return
	}
	v.last = msg
}

// ═══════════════════════════════════════════════════════════════════════════
// Command handlers
// ═══════════════════════════════════════════════════════════════════════════

func (app *App) registerHandlers() {
	app.bot.Use(app.allowedChats)

	app.bot.Handle("/start", app.handleStart)
	app.bot.Handle("/help", app.handleStart)
	app.bot.Handle("/track", app.handleTrack)
	app.bot.Handle("/stop", app.handleStop)
	app.bot.Handle("/stats", app.handleStats)
	app.bot.Handle("/route", app.handleRoute)
	app.bot.Handle("/collect", app.handleCollect)
	app.bot.Handle("/export", app.handleExport)
	app.bot.Handle("/status", app.handleStatus)
}

// allowedChats drops updates from chats outside TELEGRAM_CHAT_IDS.
func (app *App) allowedChats(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Chat() == nil || !app.cfg.Allowed(c.Chat().ID) {
			return nil
		}
		return next(c)
	}
}

// ── /start & /help ──────────────────────────────────────────────────────

func (app *App) handleStart(c tele.Context) error {
	text := `✈️ *Flight Tracker*

Look up a flight, follow it live, and see average route times.

*Commands:*
• /track FLIGHT — Follow a flight (e.g. /track AA123)
• /stop — Stop following
• /stats — Average time per route
• /route DEP ARR — Records of one route (e.g. /route JFK LAX)
• /collect — Collect route data now
• /export — Download Excel report
• /status — Bot status
• /help — This message`

	return c.Send(text, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
}

// ── /track FLIGHT ───────────────────────────────────────────────────────

func (app *App) handleTrack(c tele.Context) error {
	args := c.Args()
	if len(args) == 0 {
		return c.Send("Usage: /track FLIGHT\nExample: /track AA123")
	}

	flight := strings.TrimSpace(args[0])
	if err := monitor.ValidateFlightNumber(flight); err != nil {
		return c.Send("❌ Invalid flight number. Use two uppercase letters and 3-4 digits, e.g. AA123.")
	}

	if _, err := app.startSession(c.Chat().ID, flight); err != nil {
		return c.Send(fmt.Sprintf("❌ %v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.store.SaveTracking(ctx, c.Chat().ID, flight); err != nil {
		app.log.Error().Err(err).Msg("save tracking")
	}

	return c.Send(fmt.Sprintf("📡 Tracking *%s*, refreshing every %s.", flight, app.cfg.RefreshInterval),
		&tele.SendOptions{ParseMode: tele.ModeMarkdown})
}

// ── /stop ───────────────────────────────────────────────────────────────

func (app *App) handleStop(c tele.Context) error {
	flight, ok := app.stopSession(c.Chat().ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.store.RemoveTracking(ctx, c.Chat().ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		app.log.Error().Err(err).Msg("remove tracking")
	}

	if !ok {
		return c.Send("ℹ️ Nothing is being tracked.")
	}
	return c.Send(fmt.Sprintf("⏹ Stopped tracking *%s*.", flight), &tele.SendOptions{ParseMode: tele.ModeMarkdown})
}

// ── /stats ──────────────────────────────────────────────────────────────

func (app *App) handleStats(c tele.Context) error {
	app.statsMu.RLock()
	stats := app.stats
	app.statsMu.RUnlock()

	return c.Send(monitor.FormatRouteStatistics(stats), &tele.SendOptions{ParseMode: tele.ModeMarkdown})
}

// ── /route DEP ARR ──────────────────────────────────────────────────────

func (app *App) handleRoute(c tele.Context) error {
	args := c.Args()
	if len(args) < 2 {
		return c.Send("Usage: /route DEP ARR\nExample: /route JFK LAX")
	}
	dep, arr := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
	if err := monitor.ValidateRoute(dep, arr); err != nil {
		return c.Send(fmt.Sprintf("❌ %v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, err := app.store.QueryByRoute(ctx, dep, arr)
	if err != nil {
		return c.Send(fmt.Sprintf("❌ Database error: %v", err))
	}

	msg := monitor.FormatRouteRecords(dep, arr, records, 15)
	if avg, ok, err := app.store.AverageActualDuration(ctx, dep, arr); err == nil && ok {
		msg += fmt.Sprintf("\n\n⏱ Average actual duration: *%s*", monitor.FormatAverage(avg))
	}
	return c.Send(msg, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
}

// ── /collect ────────────────────────────────────────────────────────────

func (app *App) handleCollect(c tele.Context) error {
	if !app.scheduler.RunNow(monitor.JobFlightDataCollection) {
		return c.Send("❌ Collection job is not scheduled.")
	}
	return c.Send("🔄 Collection started. Results appear in /stats as they arrive.")
}

// ── /export ─────────────────────────────────────────────────────────────

func (app *App) handleExport(c tele.Context) error {
	_ = c.Send("📊 Generating Excel report...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records, err := app.store.AllRecords(ctx, 5000)
	if err != nil {
		return c.Send(fmt.Sprintf("❌ Database error: %v", err))
	}
	if len(records) == 0 {
		return c.Send("ℹ️ No flight records yet. Wait for the first collection.")
	}
	stats, err := app.store.AverageAdjustedDurationByRoute(ctx)
	if err != nil {
		return c.Send(fmt.Sprintf("❌ Database error: %v", err))
	}

	f, err := services.GenerateReport(records, stats)
	if err != nil {
		return c.Send(fmt.Sprintf("❌ Report generation failed: %v", err))
	}
	defer func() {
		_ = f.Close()
	}()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return c.Send(fmt.Sprintf("❌ Failed to write Excel buffer: %v", err))
	}

	doc := &tele.Document{
		File:     tele.FromReader(buf),
		FileName: fmt.Sprintf("flighttrack_%s.xlsx", time.Now().UTC().Format("2006-01-02_1504")),
		Caption:  fmt.Sprintf("📊 Flight report — %d records", len(records)),
	}
	return c.Send(doc)
}

// ── /status ─────────────────────────────────────────────────────────────

func (app *App) handleStatus(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st := statusInfo{
		Routes:          len(app.collector.Routes()),
		Policy:          app.store.Policy().String(),
		DBSize:          "unknown",
		RefreshInterval: app.cfg.RefreshInterval,
		Uptime:          time.Since(app.started).Truncate(time.Second),
		Jobs:            app.scheduler.Jobs(),
	}
	st.Total, _ = app.store.Count(ctx)
	st.Synthetic, _ = app.store.CountByStatus(ctx, monitor.StatusSynthetic)

	app.sessionsMu.Lock()
	st.Tracking = len(app.sessions)
	app.sessionsMu.Unlock()

	if info, err := os.Stat(app.cfg.DBPath); err == nil {
		st.DBSize = fmt.Sprintf("%.2f MB", float64(info.Size())/1024/1024)
	}
	if sum, ok := app.collector.LastRun(); ok {
		st.LastRun = &sum
	}

	return c.Send(formatStatus(st), &tele.SendOptions{ParseMode: tele.ModeMarkdown})
}

// statusInfo is what /status reports.
type statusInfo struct {
	Total           int64
	Synthetic       int64
	Tracking        int
	Routes          int
	Policy          string
	DBSize          string
	RefreshInterval time.Duration
	Uptime          time.Duration
	LastRun         *monitor.RunSummary
	Jobs            []monitor.JobInfo
}

// formatStatus renders st as legacy Markdown. Identifiers go in code
// spans so underscores in them do not open italics.
func formatStatus(st statusInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Flight Tracker Status*\n\n")
	fmt.Fprintf(&b, "• Records: %d (%d synthetic)\n", st.Total, st.Synthetic)
	fmt.Fprintf(&b, "• Tracked flights: %d\n", st.Tracking)
	fmt.Fprintf(&b, "• Routes: %d\n", st.Routes)
	fmt.Fprintf(&b, "• Unique policy: `%s`\n", st.Policy)
	fmt.Fprintf(&b, "• DB size: %s\n", st.DBSize)
	fmt.Fprintf(&b, "• Refresh interval: %s\n", st.RefreshInterval)
	fmt.Fprintf(&b, "• Uptime: %s\n", st.Uptime)

	if st.LastRun != nil {
		fmt.Fprintf(&b, "• Last collection: %s UTC (%s)\n", st.LastRun.Finished.UTC().Format("02 Jan 15:04"), st.LastRun.Outcome)
	}
	for _, j := range st.Jobs {
		state := "idle"
		switch {
		case j.Running:
			state = "running"
		case j.Waiting:
			state = "waiting for network"
		}
		fmt.Fprintf(&b, "• Job `%s`: %d runs, %s\n", j.Name, j.Runs, state)
	}
	return b.String()
}

// ═══════════════════════════════════════════════════════════════════════════
// Helpers
// ═══════════════════════════════════════════════════════════════════════════

// sendToChat delivers a message to a chat ID.
func (app *App) sendToChat(chatID int64, msg string) {
	_, err := app.bot.Send(&tele.Chat{ID: chatID}, msg, &tele.SendOptions{
		ParseMode:             tele.ModeMarkdown,
		DisableWebPagePreview: true,
	})
	if err != nil {
		app.log.Warn().Err(err).Int64("chat", chatID).Msg("send")
	}
}
