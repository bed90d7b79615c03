package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key when read from the environment.
const EnvPrefix = "ATTENDANCE"

// Config captures environment driven configuration values for the attendance tracker.
type Config struct {
	SQLiteDSN         string
	Location          *time.Location
	PromptBuffer      time.Duration
	GlobalTrackerName string
	GlobalTrackerDays int
	UndoTTL           time.Duration
	UndoMaxActors     int
	LogLevel          slog.Level
}

// Load parses configuration values from the process environment, after
// loading a .env file from the working directory when one exists. The file
// named by ATTENDANCE_ENV_FILE is used instead when that variable is set.
// Values already present in the environment win over the file.
//
// Every missing or malformed value is reported in a single error.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv(EnvPrefix + "_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	return fromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	v.SetDefault("sqlite_dsn", "attendance.db")
	v.SetDefault("timezone", "Asia/Kolkata")
	v.SetDefault("prompt_buffer", "5m")
	v.SetDefault("global_tracker_name", "Sem 6 - NITT EEE B")
	v.SetDefault("global_tracker_days", "150")
	v.SetDefault("undo_ttl", "30m")
	v.SetDefault("undo_max_actors", "1024")
	v.SetDefault("log_level", "info")
	return v
}

func fromViper(v *viper.Viper) (Config, error) {
	var cfg Config

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)
	key := func(name string) string {
		return EnvPrefix + "_" + strings.ToUpper(name)
	}
	get := func(name string) string {
		return strings.TrimSpace(v.GetString(name))
	}

	if cfg.SQLiteDSN = get("sqlite_dsn"); cfg.SQLiteDSN == "" {
		missing = append(missing, key("sqlite_dsn"))
	}

	if name := get("timezone"); name == "" {
		missing = append(missing, key("timezone"))
	} else if loc, err := time.LoadLocation(name); err != nil {
		invalid = append(invalid, key("timezone"))
	} else {
		cfg.Location = loc
	}

	if buffer, err := time.ParseDuration(get("prompt_buffer")); err != nil || buffer < 0 {
		invalid = append(invalid, key("prompt_buffer"))
	} else {
		cfg.PromptBuffer = buffer
	}

	if cfg.GlobalTrackerName = get("global_tracker_name"); cfg.GlobalTrackerName == "" {
		missing = append(missing, key("global_tracker_name"))
	}

	if days, err := strconv.Atoi(get("global_tracker_days")); err != nil || days < 0 {
		invalid = append(invalid, key("global_tracker_days"))
	} else {
		cfg.GlobalTrackerDays = days
	}

	if ttl, err := time.ParseDuration(get("undo_ttl")); err != nil || ttl <= 0 {
		invalid = append(invalid, key("undo_ttl"))
	} else {
		cfg.UndoTTL = ttl
	}

	if actors, err := strconv.Atoi(get("undo_max_actors")); err != nil || actors <= 0 {
		invalid = append(invalid, key("undo_max_actors"))
	} else {
		cfg.UndoMaxActors = actors
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(get("log_level"))); err != nil {
		invalid = append(invalid, key("log_level"))
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required configuration is missing: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
