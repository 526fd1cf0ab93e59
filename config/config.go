// Package config loads server settings from a TOML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/warp/timesheet-engine/cycle"
	"github.com/warp/timesheet-engine/timesheet"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "TIMESHEET_"

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Server   ServerConfig       `toml:"server"`
	Database DatabaseConfig     `toml:"database"`
	Cycle    CycleConfig        `toml:"cycle"`
	Autosave AutosaveConfig     `toml:"autosave"`
	Sessions SessionsConfig     `toml:"sessions"`
	People   []timesheet.Person `toml:"people"`
}

type ServerConfig struct {
	Port           int      `toml:"port" env:"PORT"`
	AllowedOrigins []string `toml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

type DatabaseConfig struct {
	// Path of the SQLite file, or ":memory:".
	Path string `toml:"path" env:"DB"`
}

type CycleConfig struct {
	DefaultType         cycle.Type `toml:"default_type" env:"DEFAULT_CYCLE"`
	BiWeeklyAnchor      cycle.Date `toml:"biweekly_anchor" env:"BIWEEKLY_ANCHOR"`
	SemiMonthlySplitDay int        `toml:"semimonthly_split_day" env:"SEMIMONTHLY_SPLIT_DAY"`
}

type AutosaveConfig struct {
	FieldDelay    Duration `toml:"field_delay" env:"FIELD_DELAY"`
	DurationDelay Duration `toml:"duration_delay" env:"DURATION_DELAY"`
}

type SessionsConfig struct {
	// IdleTTL is how long an untouched sheet stays open before the sweeper
	// flushes and closes it.
	IdleTTL       Duration `toml:"idle_ttl" env:"SESSION_IDLE_TTL"`
	SweepInterval Duration `toml:"sweep_interval" env:"SESSION_SWEEP_INTERVAL"`
}

// Duration reads and writes "1.5s"-style strings.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func DefaultConfig() *Config {
	cycles := cycle.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{Path: filepath.Join("data", "timesheets.db")},
		Cycle: CycleConfig{
			DefaultType:         cycle.Weekly,
			BiWeeklyAnchor:      cycles.BiWeeklyAnchor,
			SemiMonthlySplitDay: cycles.SemiMonthlySplitDay,
		},
		Autosave: AutosaveConfig{
			FieldDelay:    Duration{timesheet.DefaultFieldDelay},
			DurationDelay: Duration{timesheet.DefaultDurationDelay},
		},
		Sessions: SessionsConfig{
			IdleTTL:       Duration{30 * time.Minute},
			SweepInterval: Duration{time.Minute},
		},
	}
}

// Load reads path over the defaults, then applies TIMESHEET_* environment
// overrides. A missing file is not an error. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		_, err := toml.DecodeFile(path, cfg)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any TIMESHEET_* variables that are set.
func ApplyEnv(cfg *Config) error {
	opts := env.Options{Prefix: EnvPrefix}
	// People is file-only, so each section is parsed on its own.
	for _, section := range []any{&cfg.Server, &cfg.Database, &cfg.Cycle, &cfg.Autosave, &cfg.Sessions} {
		if err := env.ParseWithOptions(section, opts); err != nil {
			return fmt.Errorf("parse env: %w", err)
		}
	}
	return nil
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalid)
	}
	if _, err := cycle.ParseType(string(c.Cycle.DefaultType)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.Calendar().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Autosave.FieldDelay.Duration <= 0 || c.Autosave.DurationDelay.Duration <= 0 {
		return fmt.Errorf("%w: autosave delays must be positive", ErrInvalid)
	}
	if c.Sessions.IdleTTL.Duration <= 0 || c.Sessions.SweepInterval.Duration <= 0 {
		return fmt.Errorf("%w: session durations must be positive", ErrInvalid)
	}
	for _, p := range c.People {
		if err := timesheet.ValidateEmail(p.ID); err != nil {
			return fmt.Errorf("%w: people: %w", ErrInvalid, err)
		}
		switch p.Role {
		case "", timesheet.RoleEmployee, timesheet.RoleManager:
		default:
			return fmt.Errorf("%w: people: %s has unknown role %q", ErrInvalid, p.ID, p.Role)
		}
	}
	return nil
}

// Calendar returns the cycle calculator settings.
func (c *Config) Calendar() cycle.Config {
	return cycle.Config{
		BiWeeklyAnchor:      c.Cycle.BiWeeklyAnchor,
		SemiMonthlySplitDay: c.Cycle.SemiMonthlySplitDay,
	}
}

// CycleType returns the default cycle type in canonical form.
func (c *Config) CycleType() cycle.Type {
	t, err := cycle.ParseType(string(c.Cycle.DefaultType))
	if err != nil {
		return cycle.Weekly
	}
	return t
}
