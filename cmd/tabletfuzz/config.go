package main

import (
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/aalhour/tabletfuzz/internal/compression"
	"github.com/aalhour/tabletfuzz/internal/logging"
)

// Config holds the settings of a run. A JSONC file may set any of them;
// flags given on the command line win.
type Config struct {
	Seed             int64  `json:"seed"`
	Length           int    `json:"length"`
	Iterations       int    `json:"iterations"`
	UpdateMultiplier int    `json:"update_multiplier"`
	AllowRestart     bool   `json:"allow_restart"`
	Compression      string `json:"compression"`
	SyncWAL          bool   `json:"sync_wal"`
	Dir              string `json:"dir"`
	Keep             bool   `json:"keep"`
	LogLevel         string `json:"log_level"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		Length:           50,
		Iterations:       1,
		UpdateMultiplier: 1,
		Compression:      compression.SnappyCompression.String(),
		SyncWAL:          true,
		LogLevel:         "warn",
	}
}

// loadConfigFile reads a JSONC config over cfg. Keys missing from the file
// keep their value in cfg.
func loadConfigFile(path string, cfg Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return cfg, errors.Wrapf(err, "invalid JSONC in %s", path)
	}
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Length < 0 {
		return errors.Newf("length must not be negative, got %d", c.Length)
	}
	if c.Iterations < 1 {
		return errors.Newf("iterations must be at least 1, got %d", c.Iterations)
	}
	if c.UpdateMultiplier < 1 {
		return errors.Newf("update multiplier must be at least 1, got %d", c.UpdateMultiplier)
	}
	if _, err := compression.ParseType(c.Compression); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// configFlags binds the config to flags. resolve applies the config file
// named by --config, then every flag the user set.
type configFlags struct {
	path string
	cfg  Config
}

func addConfigFlags(fs *flag.FlagSet) *configFlags {
	cf := &configFlags{cfg: DefaultConfig()}
	c := &cf.cfg
	fs.StringVar(&cf.path, "config", "", "JSONC config file")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "random seed (0 picks one from the clock)")
	fs.IntVar(&c.Length, "length", c.Length, "ops per case")
	fs.IntVar(&c.Iterations, "iterations", c.Iterations, "cases to run, with seeds seed, seed+1, ...")
	fs.IntVar(&c.UpdateMultiplier, "update-multiplier", c.UpdateMultiplier, "times each UPDATE is repeated")
	fs.BoolVar(&c.AllowRestart, "allow-restart", c.AllowRestart, "generate RESTART ops")
	fs.StringVar(&c.Compression, "compression", c.Compression, "rowset compression: none, snappy, zlib, lz4, zstd")
	fs.BoolVar(&c.SyncWAL, "sync-wal", c.SyncWAL, "sync the WAL on every commit")
	fs.StringVar(&c.Dir, "dir", c.Dir, "data directory (default: a new temp directory)")
	fs.BoolVar(&c.Keep, "keep", c.Keep, "keep the data directory after a passing run")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "error, warn, info or debug")
	return cf
}

func (cf *configFlags) resolve(fs *flag.FlagSet) (Config, error) {
	if cf.path == "" {
		return cf.cfg, cf.cfg.validate()
	}
	cfg, err := loadConfigFile(cf.path, DefaultConfig())
	if err != nil {
		return Config{}, err
	}
	set := map[string]func(){
		"seed":              func() { cfg.Seed = cf.cfg.Seed },
		"length":            func() { cfg.Length = cf.cfg.Length },
		"iterations":        func() { cfg.Iterations = cf.cfg.Iterations },
		"update-multiplier": func() { cfg.UpdateMultiplier = cf.cfg.UpdateMultiplier },
		"allow-restart":     func() { cfg.AllowRestart = cf.cfg.AllowRestart },
		"compression":       func() { cfg.Compression = cf.cfg.Compression },
		"sync-wal":          func() { cfg.SyncWAL = cf.cfg.SyncWAL },
		"dir":               func() { cfg.Dir = cf.cfg.Dir },
		"keep":              func() { cfg.Keep = cf.cfg.Keep },
		"log-level":         func() { cfg.LogLevel = cf.cfg.LogLevel },
	}
	fs.Visit(func(f *flag.Flag) {
		if apply, ok := set[f.Name]; ok {
			apply()
		}
	})
	return cfg, cfg.validate()
}
