// Package config loads and validates environment variables at startup.
// A malformed value is reported instead of silently replaced by its default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rossigee/slot-rank-tracker/internal/browser"
	"github.com/rossigee/slot-rank-tracker/internal/jobs"
	"github.com/rossigee/slot-rank-tracker/internal/rank"
	"github.com/rossigee/slot-rank-tracker/internal/registry"
	"github.com/rossigee/slot-rank-tracker/internal/retry"
	"github.com/rossigee/slot-rank-tracker/internal/scheduler"
	"github.com/rossigee/slot-rank-tracker/internal/storage"
)

// Database selects the registry store
type Database struct {
	Driver string
	DSN    string
}

// Server holds configuration for the registry and slot API
type Server struct {
	Host            string
	Port            string
	Database        Database
	RedisURL        string
	RecheckSchedule string
	RetryAfter      time.Duration
	MaxAttempts     int
	APITokensFile   string
	ClientCAFile    string
	TLSCertFile     string
	TLSKeyFile      string
}

// Addr is the listen address
func (s *Server) Addr() string {
	return s.Host + ":" + s.Port
}

// TLSEnabled reports whether a server certificate was configured
func (s *Server) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

// Resolver holds configuration for the rank resolver
type Resolver struct {
	RegistryURL   string
	RegistryToken string
	Database      Database
	RedisURL      string
	MetricsAddr   string
	SearchURL     string
	MaxPages      int
	SelectorsFile string
	RetryAfter    time.Duration
	MaxAttempts   int
	Browser       browser.Config
	Worker        jobs.Config
}

// LoadServer reads the server environment
func LoadServer() (*Server, error) {
	var p parser
	cfg := &Server{
		Host:            p.str("HOST", "0.0.0.0"),
		Port:            p.str("PORT", "8080"),
		Database:        p.database(),
		RedisURL:        os.Getenv("REDIS_URL"),
		RetryAfter:      p.duration("RETRY_AFTER", registry.DefaultRetryAfter),
		MaxAttempts:     p.positiveInt("MAX_ATTEMPTS", registry.DefaultMaxAttempts),
		APITokensFile:   os.Getenv("API_TOKENS_FILE"),
		ClientCAFile:    os.Getenv("CLIENT_CA_CERT"),
		TLSCertFile:     os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:      os.Getenv("TLS_KEY_FILE"),
		RecheckSchedule: scheduler.DefaultSpec,
	}
	// An explicitly empty schedule disables rechecks
	if spec, ok := os.LookupEnv("RECHECK_SCHEDULE"); ok {
		cfg.RecheckSchedule = strings.TrimSpace(spec)
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		p.fail("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if cfg.ClientCAFile != "" && !cfg.TLSEnabled() {
		p.fail("CLIENT_CA_CERT requires TLS_CERT_FILE and TLS_KEY_FILE")
	}
	return cfg, p.err()
}

// LoadResolver reads the resolver environment
func LoadResolver() (*Resolver, error) {
	var p parser

	b := browser.DefaultConfig()
	b.Bin = os.Getenv("CHROME_BIN")
	b.Headless = p.boolean("HEADLESS", b.Headless)
	b.NoSandbox = p.boolean("NO_SANDBOX", b.NoSandbox)
	b.NavTimeout = p.duration("NAV_TIMEOUT", b.NavTimeout)
	b.ReadyTimeout = p.duration("READY_TIMEOUT", b.ReadyTimeout)
	b.Launch = retry.ParseConfig(os.Getenv("LAUNCH_RETRY_ATTEMPTS"), os.Getenv("LAUNCH_RETRY_BACKOFF_MS"), b.Launch)

	w := jobs.DefaultConfig()
	w.SlotType = os.Getenv("SLOT_TYPE")
	w.BusyInterval = p.duration("BUSY_INTERVAL", w.BusyInterval)
	w.IdleInterval = p.duration("IDLE_INTERVAL", w.IdleInterval)
	w.ErrorInterval = p.duration("ERROR_INTERVAL", w.ErrorInterval)
	w.BatchPause = p.duration("BATCH_PAUSE", w.BatchPause)
	w.Lease = p.duration("CLAIM_LEASE", w.Lease)

	cfg := &Resolver{
		RegistryURL:   strings.TrimRight(p.str("REGISTRY_URL", "http://localhost:8080"), "/"),
		RegistryToken: os.Getenv("REGISTRY_TOKEN"),
		Database:      p.database(),
		RedisURL:      os.Getenv("REDIS_URL"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		SearchURL:     p.str("SEARCH_URL", rank.DefaultSearchURL),
		MaxPages:      p.positiveInt("MAX_PAGES", rank.DefaultMaxPages),
		SelectorsFile: os.Getenv("SELECTORS_FILE"),
		RetryAfter:    p.duration("RETRY_AFTER", registry.DefaultRetryAfter),
		MaxAttempts:   p.positiveInt("MAX_ATTEMPTS", registry.DefaultMaxAttempts),
		Browser:       b,
		Worker:        w,
	}
	return cfg, p.err()
}

// NewRankResolver builds a resolver from the search settings, loading selector
// strategies from SelectorsFile when set. The browser waits on the strategies' union.
func (r *Resolver) NewRankResolver() (*rank.Resolver, error) {
	resolver := rank.NewResolver()
	resolver.SearchURL = r.SearchURL
	resolver.MaxPages = r.MaxPages

	if r.SelectorsFile != "" {
		strategies, err := rank.LoadStrategies(r.SelectorsFile)
		if err != nil {
			return nil, err
		}
		resolver.Strategies = strategies
	}
	r.Browser.ReadySelector = rank.ReadySelector(resolver.Strategies)
	return resolver, nil
}

// SetupLogging configures the standard logrus logger from LOG_LEVEL and LOG_FORMAT
func SetupLogging() error {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	logrus.SetLevel(parsed)

	switch format := os.Getenv("LOG_FORMAT"); format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", format)
	}
	return nil
}

// parser collects every malformed variable so they are reported together
type parser struct {
	problems []string
}

func (p *parser) fail(format string, args ...interface{}) {
	p.problems = append(p.problems, fmt.Sprintf(format, args...))
}

func (p *parser) err() error {
	if len(p.problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(p.problems, "; "))
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) positiveInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 1 {
		p.fail("%s must be a positive integer, got %q", key, s)
		return def
	}
	return v
}

// duration accepts Go durations ("90s", "10m") or a bare number of seconds
func (p *parser) duration(key string, def time.Duration) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def
	}
	if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		p.fail("%s must be a positive duration, got %q", key, s)
		return def
	}
	return d
}

func (p *parser) boolean(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		p.fail("%s must be a boolean, got %q", key, s)
		return def
	}
	return v
}

func (p *parser) database() Database {
	db := Database{
		Driver: p.str("DATABASE_DRIVER", storage.DriverSQLite),
		DSN:    p.str("DATABASE_DSN", "rank-registry.db"),
	}
	if db.Driver != storage.DriverSQLite && db.Driver != storage.DriverPostgres {
		p.fail("DATABASE_DRIVER must be %s or %s, got %q", storage.DriverSQLite, storage.DriverPostgres, db.Driver)
	}
	return db
}
