package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"example.com/gflink/internal/archive"
	"example.com/gflink/internal/common"
	"example.com/gflink/internal/link"
)

type logConfig struct {
	Directory  string `yaml:"directory" toml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB" toml:"max_size_mb"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"max_age_days"`
	MaxBackups int    `yaml:"maxBackups" toml:"max_backups"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

type captureConfig struct {
	// Directory enables recording of every received frame.
	Directory string           `yaml:"directory" toml:"directory"`
	Archive   archive.S3Config `yaml:"archive" toml:"archive"`
}

type config struct {
	Addr       string        `yaml:"addr" toml:"addr"`
	StorageDir string        `yaml:"storageDir" toml:"storage_dir"`
	Link       link.Config   `yaml:"link" toml:"link"`
	Capture    captureConfig `yaml:"capture" toml:"capture"`
	Logs       logConfig     `yaml:"logs" toml:"logs"`
	Tracing    tracingConfig `yaml:"tracing" toml:"tracing"`
}

// loadConfig reads a YAML or, for a .toml extension, TOML config. Relative
// directories resolve against the config file's directory.
func loadConfig(path string) (config, error) {
	var cfg config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
		}
	default:
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && err != io.EOF {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}

	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = "data"
	}
	cfg.StorageDir = resolvePath(cfg.StorageDir)
	cfg.Link = cfg.Link.Normalize()
	if _, err := link.IPFromString(cfg.Link.Host); err != nil {
		return cfg, fmt.Errorf("link host: %w", err)
	}
	if cfg.Capture.Directory != "" {
		cfg.Capture.Directory = resolvePath(cfg.Capture.Directory)
	}
	if cfg.Capture.Archive.Enabled() && cfg.Capture.Directory == "" {
		return cfg, fmt.Errorf("capture.archive needs capture.directory")
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	} else {
		cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	tc, err := cfg.Tracing.normalize()
	if err != nil {
		return cfg, err
	}
	cfg.Tracing = tc
	return cfg, nil
}

func setupLogging(cfg config) error {
	if err := os.MkdirAll(cfg.Logs.Directory, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Logs.Directory, "gfd.log"),
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	out := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	common.SetLogOutput(out)
	return nil
}
