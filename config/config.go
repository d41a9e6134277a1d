// Package config loads the brain and host settings from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds engine and host configuration.
type Config struct {
	// --- Engine ---
	Depth             int           `yaml:"depth"` // redirect budget per turn
	Strict            bool          `yaml:"strict"`
	HistorySize       int           `yaml:"history_size"`
	MacroTimeout      time.Duration `yaml:"macro_timeout"`
	SplitSentences    bool          `yaml:"split_sentences"`
	SentenceSplitters string        `yaml:"sentence_splitters"`
	PostSubstitution  bool          `yaml:"post_substitution"`
	Seed              int64         `yaml:"seed"` // 0 = seed from the clock

	Replies Replies `yaml:"replies"`
	Store   Store   `yaml:"store"`
	Log     Log     `yaml:"log"`
	Server  Server  `yaml:"server"`
}

// Replies are the texts used when the engine cannot produce an answer.
type Replies struct {
	NoMatch   string `yaml:"no_match"`
	NoReply   string `yaml:"no_reply"`
	Recursion string `yaml:"recursion"`
}

// Store selects the session persistence backend.
type Store struct {
	Driver string `yaml:"driver"` // "memory", "bolt" or "sqlite"
	Path   string `yaml:"path"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"`
}

// Server configures the HTTP host.
type Server struct {
	Addr string `yaml:"addr"`
}

// Default returns a Config with the built-in defaults.
func Default() Config {
	return Config{
		Depth:             50,
		HistorySize:       9,
		MacroTimeout:      2 * time.Second,
		SentenceSplitters: ".!?;",
		Replies: Replies{
			NoMatch:   "ERR: No Reply Matched",
			NoReply:   "ERR: No Reply Found",
			Recursion: "ERR: Deep Recursion Detected!",
		},
		Store:  Store{Driver: "memory"},
		Log:    Log{Level: "info"},
		Server: Server{Addr: ":8080"},
	}
}

// Load reads a YAML config file on top of the defaults. Relative store
// and log paths are resolved against the file's directory.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing YAML %s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	if cfg.Store.Path != "" && !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(baseDir, cfg.Store.Path)
	}
	if cfg.Log.File != "" && !filepath.IsAbs(cfg.Log.File) {
		cfg.Log.File = filepath.Join(baseDir, cfg.Log.File)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if c.Depth < 1 {
		return fmt.Errorf("depth must be at least 1, got %d", c.Depth)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("history_size must be at least 1, got %d", c.HistorySize)
	}
	if c.MacroTimeout < 0 {
		return fmt.Errorf("macro_timeout must not be negative")
	}
	switch c.Store.Driver {
	case "", "memory":
	case "bolt", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store driver %q needs a path", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// WithGlobals applies the rule-set globals that tune the engine:
// "depth", "split_sentences" and "sentence_splitters". Unparseable
// values are ignored.
func (c Config) WithGlobals(globals map[string]string) Config {
	if v, ok := globals["depth"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.Depth = n
		}
	}
	if v, ok := globals["split_sentences"]; ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.SplitSentences = b
		}
	}
	if v, ok := globals["sentence_splitters"]; ok {
		if v = strings.Join(strings.Fields(v), ""); v != "" {
			c.SentenceSplitters = v
		}
	}
	return c
}

// Logger builds the zap logger described by the log section.
func (l Log) Logger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if l.Level != "" {
		if err := level.UnmarshalText([]byte(l.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", l.Level, err)
		}
	}

	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if l.File != "" {
		zc.OutputPaths = []string{l.File}
		zc.ErrorOutputPaths = []string{l.File}
	}
	return zc.Build()
}
