// Package config reads the service configuration from command-line flags,
// falling back to IZPOSOJA_* environment variables and then to defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/erazemk/izposoja/internal/reservation"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "IZPOSOJA_"

// Config is the full service configuration.
type Config struct {
	DBPath    string
	Addr      string
	AdminUser string
	LogPath   string

	TimeZone           string
	OpenHour           int
	CloseHour          int
	SlotMinutes        int
	MinDuration        int
	MaxDuration        int
	AdvanceBookingDays int
	SweepInterval      time.Duration

	DiscordWebhook string
	AMQPURL        string
	AMQPExchange   string
}

// Usage is printed for -h.
const Usage = `Usage: izposoja [flags]

Flags (environment fallback in brackets):
  -d, -db <path>          SQLite database path [IZPOSOJA_DB] (default: izposoja.sqlite3)
  -a, -addr <host:port>   listen address [IZPOSOJA_ADDR] (default: :8080)
  -u, -user <name>        admin username on first run [IZPOSOJA_USER] (default: Admin)
  -l, -log <path>         log file path [IZPOSOJA_LOG] (default: stdout/stderr only)
  -tz <name>              IANA time zone of the lending office [IZPOSOJA_TZ] (default: UTC)
  -open <hour>            opening hour [IZPOSOJA_OPEN] (default: 8)
  -close <hour>           closing hour [IZPOSOJA_CLOSE] (default: 17)
  -slot <minutes>         slot granularity [IZPOSOJA_SLOT] (default: 30)
  -min <minutes>          shortest reservation [IZPOSOJA_MIN] (default: 30)
  -max <minutes>          longest reservation [IZPOSOJA_MAX] (default: 480)
  -advance <days>         booking horizon when none is stored [IZPOSOJA_ADVANCE] (default: 30)
  -sweep <duration>       expiry sweep interval [IZPOSOJA_SWEEP] (default: 5m)
  -discord <url>          Discord webhook for notifications [IZPOSOJA_DISCORD]
  -amqp <url>             AMQP broker for lifecycle events [IZPOSOJA_AMQP]
  -exchange <name>        AMQP topic exchange [IZPOSOJA_EXCHANGE] (default: izposoja.events)
  -h, -help               show this help and exit
`

// Load parses args (without the program name) on top of the environment
// looked up through getenv. A nil getenv means os.Getenv.
func Load(args []string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := func(key, def string) string {
		if v := getenv(EnvPrefix + key); v != "" {
			return v
		}
		return def
	}

	defaults := reservation.DefaultRules()
	var cfg Config
	var errs []error
	envInt := func(key string, def int) int {
		s := env(key, "")
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return def
		}
		return n
	}
	sweep := 5 * time.Minute
	if s := env("SWEEP", ""); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSWEEP: %w", EnvPrefix, err))
		} else {
			sweep = d
		}
	}

	fs := flag.NewFlagSet("izposoja", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	stringVar := func(p *string, long, short, def string) {
		fs.StringVar(p, long, def, "")
		if short != "" {
			fs.StringVar(p, short, def, "")
		}
	}
	stringVar(&cfg.DBPath, "db", "d", env("DB", "izposoja.sqlite3"))
	stringVar(&cfg.Addr, "addr", "a", env("ADDR", ":8080"))
	stringVar(&cfg.AdminUser, "user", "u", env("USER", "Admin"))
	stringVar(&cfg.LogPath, "log", "l", env("LOG", ""))
	stringVar(&cfg.TimeZone, "tz", "", env("TZ", "UTC"))
	stringVar(&cfg.DiscordWebhook, "discord", "", env("DISCORD", ""))
	stringVar(&cfg.AMQPURL, "amqp", "", env("AMQP", ""))
	stringVar(&cfg.AMQPExchange, "exchange", "", env("EXCHANGE", "izposoja.events"))

	fs.IntVar(&cfg.OpenHour, "open", envInt("OPEN", defaults.OpenHour), "")
	fs.IntVar(&cfg.CloseHour, "close", envInt("CLOSE", defaults.CloseHour), "")
	fs.IntVar(&cfg.SlotMinutes, "slot", envInt("SLOT", defaults.SlotMinutes), "")
	fs.IntVar(&cfg.MinDuration, "min", envInt("MIN", defaults.MinDuration), "")
	fs.IntVar(&cfg.MaxDuration, "max", envInt("MAX", defaults.MaxDuration), "")
	fs.IntVar(&cfg.AdvanceBookingDays, "advance", envInt("ADVANCE", defaults.AdvanceBookingDays), "")
	fs.DurationVar(&cfg.SweepInterval, "sweep", sweep, "")
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.OpenHour < 0 || c.CloseHour > 24 || c.OpenHour >= c.CloseHour:
		return fmt.Errorf("invalid business hours %d-%d", c.OpenHour, c.CloseHour)
	case c.SlotMinutes <= 0:
		return fmt.Errorf("slot length must be positive, got %d", c.SlotMinutes)
	case c.MinDuration <= 0 || c.MaxDuration < c.MinDuration:
		return fmt.Errorf("invalid duration bounds %d-%d", c.MinDuration, c.MaxDuration)
	case c.AdvanceBookingDays < 0:
		return fmt.Errorf("advance booking days must not be negative, got %d", c.AdvanceBookingDays)
	case c.SweepInterval <= 0:
		return fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("loading time zone: %w", err)
	}
	return nil
}

// Rules converts the configuration into reservation rules.
func (c *Config) Rules() (reservation.Rules, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return reservation.Rules{}, fmt.Errorf("loading time zone: %w", err)
	}
	return reservation.Rules{
		Location:           loc,
		OpenHour:           c.OpenHour,
		CloseHour:          c.CloseHour,
		SlotMinutes:        c.SlotMinutes,
		MinDuration:        c.MinDuration,
		MaxDuration:        c.MaxDuration,
		AdvanceBookingDays: c.AdvanceBookingDays,
	}, nil
}
