// Package config loads brainquiz settings. Sources are applied in order:
// built-in defaults, a YAML file, BRAINQUIZ_* environment variables (a .env
// file is read into the environment first) and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable, e.g. BRAINQUIZ_STORAGE_DRIVER.
const EnvPrefix = "BRAINQUIZ_"

// DefaultFile is read when present and no file is named explicitly.
const DefaultFile = "brainquiz.yaml"

type Config struct {
	Storage   Storage   `koanf:"storage"`
	Scheduler Scheduler `koanf:"scheduler"`
	Server    Server    `koanf:"server"`
	Log       Log       `koanf:"log"`
	Lookup    Lookup    `koanf:"lookup"`
	Notify    Notify    `koanf:"notify"`
	Sync      Sync      `koanf:"sync"`
}

type Storage struct {
	// Driver is "json" for questions.json/user_stats.json or "sqlite".
	Driver string `koanf:"driver" validate:"oneof=json sqlite"`
	// Path is the data directory for json and the database file for sqlite.
	Path string `koanf:"path" validate:"required"`
}

type Scheduler struct {
	Order string `koanf:"order" validate:"oneof=collection overdue"`
}

type Server struct {
	Addr string `koanf:"addr" validate:"required"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type Lookup struct {
	Lang      string `koanf:"lang" validate:"required,alpha,min=2,max=3"`
	Sentences int    `koanf:"sentences" validate:"min=1,max=10"`
}

type Notify struct {
	Desktop  bool     `koanf:"desktop"`
	Schedule string   `koanf:"schedule" validate:"required"`
	Telegram Telegram `koanf:"telegram"`
}

type Telegram struct {
	Token string `koanf:"token"`
	Chat  int64  `koanf:"chat" validate:"required_with=Token"`
}

// Enabled reports whether Telegram reminders are configured.
func (t Telegram) Enabled() bool { return t.Token != "" }

type Sync struct {
	Sources  []string `koanf:"sources" validate:"dive,required"`
	ReposDir string   `koanf:"reposdir" validate:"required"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Storage:   Storage{Driver: "json", Path: "."},
		Scheduler: Scheduler{Order: "collection"},
		Server:    Server{Addr: ":8080"},
		Log:       Log{Level: "info", Format: "text"},
		Lookup:    Lookup{Lang: "en", Sentences: 3},
		Notify:    Notify{Desktop: true, Schedule: "0 * * * *"},
		Sync:      Sync{ReposDir: "repos"},
	}
}

// Options says where Load looks.
type Options struct {
	// File is a YAML config file. Empty means DefaultFile if it exists.
	File string
	// EnvFile is a dotenv file. Empty means ".env" if it exists.
	EnvFile string
	// Flags overrides keys for flags the user changed; see FlagKeys.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"driver":     "storage.driver",
	"data":       "storage.path",
	"order":      "scheduler.order",
	"addr":       "server.addr",
	"log-level":  "log.level",
	"log-format": "log.format",
	"lang":       "lookup.lang",
	"schedule":   "notify.schedule",
}

// Load builds and validates the configuration.
func Load(opts Options) (*Config, error) {
	if err := loadDotEnv(opts.EnvFile); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	path, explicit := opts.File, opts.File != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey(opts.Flags)), nil); err != nil {
			return nil, fmt.Errorf("failed to read flags: %w", err)
		}
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read env file %s: %w", path, err)
		}
		return nil
	}
	// Variables already set in the environment win over the file.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// envKey maps BRAINQUIZ_NOTIFY_TELEGRAM_TOKEN to notify.telegram.token.
// Sync sources are a comma-separated list.
func envKey(name, value string) (string, any) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "_", ".")
	if key == "sync.sources" {
		var sources []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
		return key, sources
	}
	return key, value
}

func flagKey(fs *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := FlagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}

// RegisterFlags adds the flags named in FlagKeys to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("driver", d.Storage.Driver, "storage driver: json or sqlite")
	fs.String("data", d.Storage.Path, "data directory (json) or database file (sqlite)")
	fs.String("order", d.Scheduler.Order, "due card order: collection or overdue")
	fs.String("addr", d.Server.Addr, "HTTP listen address for serve")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn or error")
	fs.String("log-format", d.Log.Format, "log format: text or json")
	fs.String("lang", d.Lookup.Lang, "Wikipedia language edition")
	fs.String("schedule", d.Notify.Schedule, "cron schedule for remind --watch")
}
