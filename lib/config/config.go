// Package config loads the lock manager settings from the environment, .env
// files and an optional config file.
//
// Every setting is read from an environment variable named after a prefix,
// e.g. with the prefix "hlock":
//
//	HLOCK_DELIMITER    key segment delimiter, empty disables the hierarchy (default "/")
//	HLOCK_TIMEOUT      automatic expiry as a duration like "30s", "0" disables it (default 0)
//	HLOCK_LOG_LEVEL    debug, info, warn or error (default info)
//	HLOCK_CONFIG_FILE  optional config file (yaml, json, toml, ...) with the same keys
//
// Environment variables take precedence over the config file. The .env files
// are loaded first and never override variables that are already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ValentinKolb/hlock/lib/lockmgr"
	"github.com/ValentinKolb/hlock/lib/logging"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/viper"
)

// Logger is the logger of the config package
var Logger = logger.GetLogger("config")

// DefaultEnvFiles are loaded when Load is called without files
var DefaultEnvFiles = []string{".env", ".env.local"}

// Settings holds the loaded settings.
type Settings struct {
	Delimiter  string
	Timeout    time.Duration
	LogLevel   string
	ConfigFile string
}

// Load reads the settings for the given environment prefix. Missing .env
// files are skipped, a missing config file is an error.
func Load(prefix string, files ...string) (Settings, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("config: load %s: %w", file, err)
		}
	}

	// initialize viper
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	v.SetDefault("delimiter", "/")
	v.SetDefault("timeout", "0")
	v.SetDefault("log-level", "info")
	v.SetDefault("config-file", "")

	settings := Settings{ConfigFile: v.GetString("config-file")}
	if settings.ConfigFile != "" {
		v.SetConfigFile(settings.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("config: read %s: %w", settings.ConfigFile, err)
		}
		Logger.Infof("using config file %s", settings.ConfigFile)
	}

	settings.Delimiter = v.GetString("delimiter")
	settings.LogLevel = v.GetString("log-level")

	timeout, err := parseTimeout(v.GetString("timeout"))
	if err != nil {
		return Settings{}, err
	}
	settings.Timeout = timeout

	if _, err := logging.ParseLogLevel(settings.LogLevel); err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	return settings, nil
}

// parseTimeout accepts durations ("1m30s") and bare numbers of seconds
func parseTimeout(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "0" {
		return 0, nil
	}
	timeout, err := time.ParseDuration(value)
	if err != nil {
		if seconds, serr := time.ParseDuration(value + "s"); serr == nil {
			timeout, err = seconds, nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("config: invalid timeout %q: %w", value, err)
	}
	if timeout < 0 {
		return 0, fmt.Errorf("config: invalid timeout %q: must not be negative", value)
	}
	return timeout, nil
}

// LockManagerConfig returns a lock manager configuration with the loaded
// delimiter and timeout. The collaborators are left at their defaults.
func (s Settings) LockManagerConfig() lockmgr.Config {
	config := lockmgr.DefaultConfig()
	config.Delimiter = s.Delimiter
	config.Timeout = s.Timeout
	return config
}

// InitLoggers applies the loaded log level to the loggers of this module.
func (s Settings) InitLoggers() error {
	return logging.InitLoggers(s.LogLevel)
}

// String returns a formatted string representation of the settings
func (s Settings) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Settings")
	addField("Delimiter", fmt.Sprintf("%q", s.Delimiter))
	if s.Timeout == 0 {
		addField("Timeout", "disabled")
	} else {
		addField("Timeout", s.Timeout.String())
	}
	addField("Log Level", s.LogLevel)
	if s.ConfigFile == "" {
		addField("Config File", "(none)")
	} else {
		addField("Config File", s.ConfigFile)
	}

	return sb.String()
}
