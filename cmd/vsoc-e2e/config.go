package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/srediag/vsoc-shm/internal/logging"
	"github.com/srediag/vsoc-shm/pkg/e2e"
	"github.com/srediag/vsoc-shm/pkg/shm"
)

const (
	envWindow = "VSOC_WINDOW"
	envDomain = "VSOC_DOMAIN"

	defaultWindow = "/dev/shm/vsoc_e2e"
	defaultAddr   = ":20000"
)

type config struct {
	// Window is the window file; empty runs on a heap window.
	Window   string `yaml:"window"`
	Domain   string `yaml:"domain"`
	Side     string `yaml:"side"`
	LogLevel string `yaml:"log_level"`
	// DataSize is the payload size of the primary and secondary regions.
	DataSize uint64 `yaml:"data_size"`
	Addr     string `yaml:"addr"`
	// Regions replaces the E2E catalog when creating a window.
	Regions []shm.RegionSpec `yaml:"regions"`
	E2E     e2e.Config       `yaml:"e2e"`
}

func defaultConfig() config {
	return config{
		Window:   defaultWindow,
		Side:     "guest",
		DataSize: shm.DefaultE2EDataSize,
		Addr:     defaultAddr,
		E2E:      e2e.DefaultConfig(),
	}
}

// loadConfig reads path over the defaults and applies the environment.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if v, ok := os.LookupEnv(envWindow); ok {
		cfg.Window = v
	}
	if v, ok := os.LookupEnv(envDomain); ok {
		cfg.Domain = v
	}
	if v := os.Getenv(logging.EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	return cfg, nil
}

func (c config) regions() []shm.RegionSpec {
	if len(c.Regions) > 0 {
		return c.Regions
	}
	return shm.E2ERegions(c.DataSize)
}

func (c config) apply() error {
	if c.LogLevel != "" {
		l, err := logging.ParseLevel(c.LogLevel)
		if err != nil {
			return err
		}
		logging.SetLevel(l)
	}
	return e2e.VerifyConfig(c.E2E)
}
