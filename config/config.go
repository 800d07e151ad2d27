// Package config loads runtime settings for provider credentials, model
// defaults and middleware tuning.
//
// Settings come from a config file (any format viper reads), the
// environment with the LLMKIT_ prefix, and optional .env files. The config
// file is watched; changes are debounced, re-validated and announced to
// registered callbacks.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/streamloop/llmkit/partialjson"
)

// Settings is the full runtime configuration.
type Settings struct {
	// DefaultProvider selects the adapter used when a request names none.
	DefaultProvider string `mapstructure:"default_provider"`

	Providers map[string]Provider `mapstructure:"providers"`

	Accumulator AccumulatorSettings `mapstructure:"accumulator"`
	Thread      ThreadSettings      `mapstructure:"thread"`
	Log         LogSettings         `mapstructure:"log"`
}

// Provider holds the per-backend connection settings.
type Provider struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// AccumulatorSettings selects which streamed payloads the partial-JSON
// accumulator parses.
type AccumulatorSettings struct {
	ParseObjects   bool `mapstructure:"parse_objects"`
	ParseToolCalls bool `mapstructure:"parse_tool_calls"`
}

// Options converts the settings into the accumulator's option struct.
func (a AccumulatorSettings) Options() partialjson.Options {
	return partialjson.Options{
		ParseObjects:   a.ParseObjects,
		ParseToolCalls: a.ParseToolCalls,
	}
}

type ThreadSettings struct {
	// CacheSize bounds the in-memory thread cache; 0 disables caching.
	CacheSize int `mapstructure:"cache_size"`
}

type LogSettings struct {
	Level string `mapstructure:"level"`
}

// Provider returns the settings for one backend.
func (s Settings) Provider(name string) (Provider, bool) {
	p, ok := s.Providers[name]
	return p, ok
}

func (s Settings) validate() error {
	if s.DefaultProvider != "" {
		if _, ok := s.Providers[s.DefaultProvider]; !ok {
			return fmt.Errorf("config: default_provider %q has no providers entry", s.DefaultProvider)
		}
	}
	if s.Thread.CacheSize < 0 {
		return fmt.Errorf("config: thread.cache_size must not be negative")
	}
	return nil
}

// Config is a live view over the settings file. Get is concurrency safe and
// returns a copy; registered OnChange callbacks fire after a reload that
// produced different settings.
type Config struct {
	v        *viper.Viper
	value    Settings
	mu       sync.RWMutex
	watchers []func(old, new Settings)
}

type Option func(*viper.Viper)

// WithDefaults seeds default values applied below file and env sources.
func WithDefaults(defaults map[string]any) Option {
	return func(v *viper.Viper) {
		for k, val := range defaults {
			v.SetDefault(k, val)
		}
	}
}

// LoadEnv loads .env files into the process environment before viper binds
// it. Missing files are skipped; malformed ones are reported.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env file %q: %w", f, err)
		}
	}
	return nil
}

// Load reads the settings file, binds LLMKIT_ environment variables and
// starts watching the file for changes.
func Load(path string, opts ...Option) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("LLMKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Both accumulator kinds are on unless the file turns them off.
	v.SetDefault("accumulator.parse_objects", true)
	v.SetDefault("accumulator.parse_tool_calls", true)

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	c := &Config{v: v, value: s}
	c.watch()
	return c, nil
}

// Get returns a copy of the current settings.
func (c *Config) Get() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copySettings(c.value)
}

// OnChange registers a callback invoked with the old and new settings after
// a file change that survived re-validation.
func (c *Config) OnChange(callback func(old, new Settings)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, callback)
}

func copySettings(src Settings) Settings {
	var dst Settings
	data, _ := json.Marshal(src)
	_ = json.Unmarshal(data, &dst)
	return dst
}

func (c *Config) watch() {
	var (
		debounceTimer *time.Timer
		debounceMu    sync.Mutex
	)

	// Editors fire several fsnotify events per save; debounce them into one
	// reload.
	c.v.OnConfigChange(func(_ fsnotify.Event) {
		debounceMu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
			c.handleChange()
		})
		debounceMu.Unlock()
	})

	c.v.WatchConfig()
}

func (c *Config) handleChange() {
	old := c.Get()

	next, watchers, ok := c.reload()
	if !ok {
		return
	}
	if reflect.DeepEqual(old, next) {
		return
	}

	for _, cb := range watchers {
		func() {
			defer func() { _ = recover() }()
			cb(old, next)
		}()
	}
}

// reload re-reads and re-validates the file; a broken intermediate state
// keeps the previous settings.
func (c *Config) reload() (Settings, []func(old, new Settings), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.v.ReadInConfig(); err != nil {
		return Settings{}, nil, false
	}
	var s Settings
	if err := c.v.Unmarshal(&s); err != nil {
		return Settings{}, nil, false
	}
	if err := s.validate(); err != nil {
		return Settings{}, nil, false
	}
	c.value = s

	watchers := make([]func(old, new Settings), len(c.watchers))
	copy(watchers, c.watchers)

	return copySettings(s), watchers, true
}
