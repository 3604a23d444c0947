package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"certprep"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Database  Database
	Redis     Redis
	Security  Security
	Session   Session
	Question  Question
	Report    Report
	RateLimit RateLimit
	CORS      CORS
}

// Database selects and configures the document store backend.
type Database struct {
	Driver       string `env:"DB_DRIVER" envDefault:"postgres"`
	AutoMigrate  bool   `env:"DB_AUTO_MIGRATE" envDefault:"false"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"certprep.db"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`

	Postgres Postgres
}

// Postgres captures connection info for the SQL database. Required when DB_DRIVER=postgres.
type Postgres struct {
	Host     string `env:"PG_HOST" envDefault:""`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER" envDefault:""`
	Password string `env:"PG_PASSWORD" envDefault:""`
	Database string `env:"PG_DATABASE" envDefault:""`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// DSN renders a pgx connection URL.
func (p Postgres) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     p.Database,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// Redis holds cache + lock configuration. Redis is optional; leave REDIS_ADDR empty to run without it.
type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:""`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Enabled reports whether a Redis address was configured.
func (r Redis) Enabled() bool {
	return r.Addr != ""
}

// Security stores secrets for signing and auth.
type Security struct {
	JWTSecret   string `env:"JWT_SECRET,notEmpty"`
	TokenIssuer string `env:"JWT_ISSUER" envDefault:"certprep"`
}

// Session groups timed test defaults.
type Session struct {
	TickInterval       time.Duration `env:"SESSION_TICK_INTERVAL" envDefault:"1s"`
	SecondsPerQuestion int           `env:"SESSION_SECONDS_PER_QUESTION" envDefault:"60"`
	TestLengths        []int         `env:"SESSION_TEST_LENGTHS" envSeparator:"," envDefault:"10,25,40"`
	EasyPercent        int           `env:"SESSION_EASY_PERCENT" envDefault:"50"`
	MediumPercent      int           `env:"SESSION_MEDIUM_PERCENT" envDefault:"30"`
}

// Question governs pool loading.
type Question struct {
	PoolCacheTTL time.Duration `env:"QUESTION_POOL_CACHE_TTL" envDefault:"5m"`
	PageSize     int           `env:"QUESTION_PAGE_SIZE" envDefault:"100"`

	// PrefetchModules are warmed into the pool cache at boot.
	PrefetchModules []string `env:"QUESTION_PREFETCH_MODULES" envSeparator:"," envDefault:""`
}

// Report governs one-time report views.
type Report struct {
	ViewTTL       time.Duration `env:"REPORT_VIEW_TTL" envDefault:"30m"`
	SweepInterval time.Duration `env:"REPORT_SWEEP_INTERVAL" envDefault:"1m"`
	LockTTL       time.Duration `env:"REPORT_LOCK_TTL" envDefault:"30m"`
	HistoryLimit  int           `env:"REPORT_HISTORY_LIMIT" envDefault:"20"`
}

// RateLimit bounds how often one user may start tests.
type RateLimit struct {
	StartsPerMinute float64 `env:"RATE_LIMIT_STARTS_PER_MINUTE" envDefault:"6"`
	Burst           int     `env:"RATE_LIMIT_BURST" envDefault:"3"`
}

// CORS holds Cross-Origin Resource Sharing configuration.
type CORS struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *App) validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres":
		p := c.Database.Postgres
		if p.Host == "" || p.User == "" || p.Database == "" {
			errs = append(errs, errors.New("PG_HOST, PG_USER and PG_DATABASE are required for the postgres driver"))
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver))
	}

	if len(c.Session.TestLengths) == 0 {
		errs = append(errs, errors.New("SESSION_TEST_LENGTHS must list at least one length"))
	}
	for _, n := range c.Session.TestLengths {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("test length %d must be positive", n))
		}
	}
	if c.Session.EasyPercent < 0 || c.Session.MediumPercent < 0 || c.Session.EasyPercent+c.Session.MediumPercent > 100 {
		errs = append(errs, errors.New("easy and medium percentages must be non-negative and sum to at most 100"))
	}
	if c.Session.SecondsPerQuestion <= 0 {
		errs = append(errs, errors.New("SESSION_SECONDS_PER_QUESTION must be positive"))
	}

	return errors.Join(errs...)
}
