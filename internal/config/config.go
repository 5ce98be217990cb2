package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment string `toml:"environment"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// postgres
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`

	// redis
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// prometheus metrics server
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`

	// trainload tuning
	RecoveryCurve              []RecoveryBreakpoint `toml:"recovery_curve"`
	PercentileMinSampleSize    int                  `toml:"percentile_min_sample_size"`
	ExerciseStatsTTLMinutes    int                  `toml:"exercise_stats_ttl_minutes"`
	StreakTimezone             string               `toml:"streak_timezone"`
	AchievementsCatalogPath    string               `toml:"achievements_catalog_path"`
	RecalculateAllowedPerMin   int                  `toml:"recalculate_allowed_per_min"`
	LeaderboardDefaultLimit    int                  `toml:"leaderboard_default_limit"`
}

// RecoveryBreakpoint maps a cumulative fatigue score to the hours needed
// for full recovery. The curve is interpolated between breakpoints and
// saturates at the last one.
type RecoveryBreakpoint struct {
	Fatigue float64 `toml:"fatigue"`
	Hours   float64 `toml:"hours"`
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var tomlConfig Toml
	if _, err := toml.DecodeFile(path, &tomlConfig); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	cfg, err := tomlConfig.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config section missing for env: %s", env)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.RecoveryCurve) == 0 {
		c.RecoveryCurve = DefaultRecoveryCurve()
	}
	if c.PercentileMinSampleSize == 0 {
		c.PercentileMinSampleSize = 30
	}
	if c.ExerciseStatsTTLMinutes == 0 {
		c.ExerciseStatsTTLMinutes = 60
	}
	if c.StreakTimezone == "" {
		c.StreakTimezone = "UTC"
	}
	if c.RecalculateAllowedPerMin == 0 {
		c.RecalculateAllowedPerMin = 5
	}
	if c.LeaderboardDefaultLimit == 0 {
		c.LeaderboardDefaultLimit = 10
	}
}

// DefaultRecoveryCurve anchors a typical full session load around a 48h
// recovery window, saturating at 96h for extreme loads.
func DefaultRecoveryCurve() []RecoveryBreakpoint {
	return []RecoveryBreakpoint{
		{Fatigue: 0, Hours: 24},
		{Fatigue: 600, Hours: 36},
		{Fatigue: 1500, Hours: 48},
		{Fatigue: 3000, Hours: 72},
		{Fatigue: 6000, Hours: 96},
	}
}
