// Package config loads the simulator's optional defaults from a JSON
// file, following the same generic decode-into-a-typed-struct pattern
// the teacher's module-loading code uses, plus environment overrides
// for local development.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// PhysicalMemorySize is the fixed size of the physical memory buffer
// the simulator allocates, per spec §6.
const PhysicalMemorySize = 67_108_864

// Config holds the simulator's tunable defaults. Every field can be
// overridden by an environment variable of the same name prefixed
// with MEMSIM_, loaded from a .env file if present.
type Config struct {
	LogLevel   string `json:"LOG_LEVEL"`
	MemorySize uint32 `json:"MEMORY_SIZE"`
	DumpPath   string `json:"DUMP_PATH"`
	DebugAddr  string `json:"DEBUG_ADDR"`
}

// Default returns the built-in configuration used when no config file
// is given.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		MemorySize: PhysicalMemorySize,
		DumpPath:   "./dumps",
		DebugAddr:  "",
	}
}

// LoadJSON decodes a JSON file into a new value of type T. It mirrors
// the teacher's CargarConfiguracion[T] generic loader.
func LoadJSON[T any](path string) (*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	var v T
	if err := json.NewDecoder(f).Decode(&v); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return &v, nil
}

// Load returns the default configuration, optionally overridden by a
// JSON file at path (ignored if empty), then by MEMSIM_* environment
// variables (loaded from a .env file in the working directory, if
// present, so a local checkout can carry dev-only overrides without
// touching the tracked config).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := LoadJSON[Config](path)
		if err != nil {
			return nil, err
		}
		mergeNonZero(cfg, fileCfg)
	}

	_ = godotenv.Load() // best-effort; absence of .env is not an error

	applyEnvOverrides(cfg)
	return cfg, nil
}

func mergeNonZero(dst, src *Config) {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.MemorySize != 0 {
		dst.MemorySize = src.MemorySize
	}
	if src.DumpPath != "" {
		dst.DumpPath = src.DumpPath
	}
	if src.DebugAddr != "" {
		dst.DebugAddr = src.DebugAddr
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEMSIM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MEMSIM_MEMORY_SIZE"); v != "" {
		var n uint32
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			cfg.MemorySize = n
		}
	}
	if v := os.Getenv("MEMSIM_DUMP_PATH"); v != "" {
		cfg.DumpPath = v
	}
	if v := os.Getenv("MEMSIM_DEBUG_ADDR"); v != "" {
		cfg.DebugAddr = v
	}
}
