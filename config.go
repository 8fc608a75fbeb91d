package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"flighttrack/monitor"
	"flighttrack/storage"
)

// ═══════════════════════════════════════════════════════════════════════════
// Configuration
// ═══════════════════════════════════════════════════════════════════════════

type Config struct {
	TelegramToken string
	ChatIDs       []int64

	AviationStackKey string
	AviationStackURL string
	ProviderTimeout  time.Duration
	ProviderRate     int // requests per minute

	DBPath       string
	Unique       storage.UniquePolicy
	ClearOnStart bool
	SeedDemo     bool
	Retention    time.Duration // 0 disables purging

	RefreshInterval time.Duration
	CollectInterval time.Duration
	CollectFlex     time.Duration
	Routes          []monitor.Route
	NetworkProbe    string
}

// LoadConfig reads the environment (and .env via godotenv autoload).
// Bot credentials are checked separately by RequireBot since only the
// run command needs them.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		AviationStackKey: os.Getenv("AVIATIONSTACK_KEY"),
		AviationStackURL: envString("AVIATIONSTACK_URL", "https://api.aviationstack.com/v1"),
		ProviderTimeout:  time.Duration(envInt("PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,
		ProviderRate:     envInt("PROVIDER_RATE_PER_MINUTE", 30),
		DBPath:           envString("DB_PATH", "flighttrack.db"),
		ClearOnStart:     envBool("CLEAR_ON_START", true),
		SeedDemo:         envBool("SEED_DEMO", true),
		Retention:        time.Duration(envInt("RETENTION_DAYS", 0)) * 24 * time.Hour,
		RefreshInterval:  time.Duration(envInt("REFRESH_INTERVAL_SECONDS", 60)) * time.Second,
		CollectInterval:  time.Duration(envInt("COLLECT_INTERVAL_HOURS", 8)) * time.Hour,
		CollectFlex:      time.Duration(envInt("COLLECT_FLEX_MINUTES", 30)) * time.Minute,
		NetworkProbe:     envString("NETWORK_PROBE", "api.aviationstack.com:443"),
	}

	ids, err := parseChatIDs(os.Getenv("TELEGRAM_CHAT_IDS"))
	if err != nil {
		return nil, err
	}
	cfg.ChatIDs = ids

	cfg.Unique, err = storage.ParseUniquePolicy(os.Getenv("STORE_UNIQUE"))
	if err != nil {
		return nil, err
	}

	if path := os.Getenv("ROUTES_FILE"); path != "" {
		cfg.Routes, err = loadRoutesFile(path)
	} else {
		cfg.Routes, err = parseRoutes(envString("ROUTES", "JFK-LAX,LAX-SFO,ORD-MIA,ATL-DEN,DFW-SEA"))
	}
	if err != nil {
		return nil, err
	}

	if cfg.CollectFlex >= cfg.CollectInterval {
		return nil, fmt.Errorf("COLLECT_FLEX_MINUTES (%s) must be shorter than COLLECT_INTERVAL_HOURS (%s)",
			cfg.CollectFlex, cfg.CollectInterval)
	}
	return cfg, nil
}

// RequireBot checks the settings the Telegram bot cannot run without.
func (c *Config) RequireBot() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if len(c.ChatIDs) == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_IDS is required")
	}
	return c.RequireProvider()
}

// RequireProvider checks the provider credential.
func (c *Config) RequireProvider() error {
	if c.AviationStackKey == "" {
		return fmt.Errorf("AVIATIONSTACK_KEY is required")
	}
	return nil
}

// Allowed reports whether chatID may use the bot.
func (c *Config) Allowed(chatID int64) bool {
	for _, id := range c.ChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

// ── parsing helpers ─────────────────────────────────────────────────────

func parseChatIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat ID %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseRoutes(raw string) ([]monitor.Route, error) {
	var routes []monitor.Route
	for _, s := range strings.Split(raw, ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		r, err := monitor.ParseRoute(s)
		if err != nil {
			return nil, fmt.Errorf("ROUTES: %w", err)
		}
		routes = append(routes, r)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("ROUTES: at least one route required")
	}
	return routes, nil
}

// routesFile is the YAML layout of ROUTES_FILE:
//
//	routes:
//	  - departure: JFK
//	    arrival: LAX
type routesFile struct {
	Routes []monitor.Route `yaml:"routes"`
}

func loadRoutesFile(path string) ([]monitor.Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routes file: %w", err)
	}
	var rf routesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("routes file %s: %w", path, err)
	}
	if len(rf.Routes) == 0 {
		return nil, fmt.Errorf("routes file %s: no routes", path)
	}
	for i, r := range rf.Routes {
		if err := monitor.ValidateRoute(r.Departure, r.Arrival); err != nil {
			return nil, fmt.Errorf("routes file %s: entry %d: %w", path, i+1, err)
		}
	}
	return rf.Routes, nil
}

func envString(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(name)))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func envBool(name string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(name)))
	if err != nil {
		return def
	}
	return v
}
