package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/config"
	"github.com/warp/timesheet-engine/cycle"
	"github.com/warp/timesheet-engine/timesheet"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, cycle.Weekly, cfg.CycleType())
	assert.Equal(t, cycle.DefaultConfig(), cfg.Calendar())
	assert.Equal(t, timesheet.DefaultFieldDelay, cfg.Autosave.FieldDelay.Duration)
	assert.Equal(t, timesheet.DefaultDurationDelay, cfg.Autosave.DurationDelay.Duration)
}

func TestLoad_FileThenEnv(t *testing.T) {
	// GIVEN: A TOML file and an environment override for the port
	// WHEN: Loading
	// THEN: File values win over defaults and env wins over the file

	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = 9000
allowed_origins = ["http://localhost:3000"]

[cycle]
default_type = "semi-monthly"
biweekly_anchor = "2024-01-14"
semimonthly_split_day = 10

[autosave]
field_delay = "500ms"

[[people]]
id = "boss@b.com"
name = "Boss"
role = "manager"
`), 0o644))

	t.Setenv("TIMESHEET_PORT", "9100")
	t.Setenv("TIMESHEET_SESSION_IDLE_TTL", "5m")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, cycle.SemiMonthly, cfg.CycleType())
	assert.Equal(t, cycle.NewDate(2024, time.January, 14), cfg.Cycle.BiWeeklyAnchor)
	assert.Equal(t, 10, cfg.Cycle.SemiMonthlySplitDay)
	assert.Equal(t, 500*time.Millisecond, cfg.Autosave.FieldDelay.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.IdleTTL.Duration)
	require.Len(t, cfg.People, 1)
	assert.Equal(t, timesheet.RoleManager, cfg.People[0].Role)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "server.toml")
	want := config.DefaultConfig()
	want.Database.Path = ":memory:"
	want.People = []timesheet.Person{{ID: "a@b.com", Name: "A", Role: timesheet.RoleEmployee}}

	require.NoError(t, config.Save(path, want))
	got, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"port", func(c *config.Config) { c.Server.Port = 0 }},
		{"database", func(c *config.Config) { c.Database.Path = "" }},
		{"cycle type", func(c *config.Config) { c.Cycle.DefaultType = "fortnightly" }},
		{"anchor not sunday", func(c *config.Config) { c.Cycle.BiWeeklyAnchor = cycle.NewDate(2024, time.January, 8) }},
		{"split day", func(c *config.Config) { c.Cycle.SemiMonthlySplitDay = 28 }},
		{"delay", func(c *config.Config) { c.Autosave.DurationDelay = config.Duration{} }},
		{"idle ttl", func(c *config.Config) { c.Sessions.IdleTTL = config.Duration{} }},
		{"person id", func(c *config.Config) { c.People = []timesheet.Person{{ID: "boss"}} }},
		{"person role", func(c *config.Config) {
			c.People = []timesheet.Person{{ID: "boss@b.com", Role: "owner"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalid)
		})
	}

	assert.NoError(t, config.DefaultConfig().Validate())
}
