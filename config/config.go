package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderMemory = "memory"
	ProviderSQLite = "sqlite"
	ProviderRedis  = "redis"

	KindEcho = "echo"
	KindHTTP = "http"
)

// Config is the process configuration read from the YAML file.
type Config struct {
	// Address of the HTTP listener.
	Listen string `yaml:"listen"`
	// Address of the bare TCP listener. Disabled if empty.
	TCPListen string `yaml:"tcpListen"`
	// Address of the admin listener serving /metrics. Disabled if empty.
	AdminListen string       `yaml:"adminListen"`
	Cache       CacheConfig  `yaml:"cache"`
	Router      RouterConfig `yaml:"router"`
	Backends    []Backend    `yaml:"backends"`
}

// CacheConfig selects the cache provider and its connection settings.
type CacheConfig struct {
	Provider string `yaml:"provider"`
	SQLite   struct {
		File string `yaml:"file"`
	} `yaml:"sqlite"`
	Redis struct {
		URL       string `yaml:"url"`
		KeyPrefix string `yaml:"keyPrefix"`
	} `yaml:"redis"`
}

// RouterConfig holds the router options.
type RouterConfig struct {
	CollapseMisses bool     `yaml:"collapseMisses"`
	InvokeTimeout  Duration `yaml:"invokeTimeout"`
	StaticDir      string   `yaml:"staticDir"`
}

// Backend describes one registered service.
// The URL is read from the URLEnv key of the lookup, falling back to URL.
type Backend struct {
	Name string `yaml:"name"`
	// Label names the service in echo payloads. Name is used if empty.
	Label   string   `yaml:"label"`
	Kind    string   `yaml:"kind"`
	URL     string   `yaml:"url"`
	URLEnv  string   `yaml:"urlEnv"`
	Timeout Duration `yaml:"timeout"`
	Breaker struct {
		Failures uint32   `yaml:"failures"`
		OpenFor  Duration `yaml:"openFor"`
	} `yaml:"breaker"`
}

// Default returns the configuration used when no file is given:
// two echo backends whose URLs come from SERVICE1_URL and SERVICE2_URL.
func Default() Config {
	return Config{
		Listen: ":8080",
		Cache:  CacheConfig{Provider: ProviderMemory},
		Router: RouterConfig{InvokeTimeout: Duration(10 * time.Second)},
		Backends: []Backend{
			{Name: "service1", Label: "Service 1", Kind: KindEcho, URLEnv: "SERVICE1_URL", URL: "http://default-service1-url"},
			{Name: "service2", Label: "Service 2", Kind: KindEcho, URLEnv: "SERVICE2_URL", URL: "http://default-service2-url"},
		},
	}
}

// Load reads a YAML config file on top of the defaults.
// A file that lists backends replaces the default backends.
func Load(filename string) (Config, error) {
	config := Default()
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	var fromFile Config
	if err := yaml.Unmarshal(configBytes, &fromFile); err != nil {
		return config, fmt.Errorf("could not parse %s: %w", filename, err)
	}
	merge(&config, fromFile)
	return config, config.Validate()
}

func merge(dst *Config, src Config) {
	if src.Listen != "" {
		dst.Listen = src.Listen
	}
	if src.TCPListen != "" {
		dst.TCPListen = src.TCPListen
	}
	if src.AdminListen != "" {
		dst.AdminListen = src.AdminListen
	}
	if src.Cache.Provider != "" {
		dst.Cache.Provider = src.Cache.Provider
	}
	dst.Cache.SQLite = src.Cache.SQLite
	dst.Cache.Redis = src.Cache.Redis
	dst.Router.CollapseMisses = src.Router.CollapseMisses
	if src.Router.InvokeTimeout != 0 {
		dst.Router.InvokeTimeout = src.Router.InvokeTimeout
	}
	dst.Router.StaticDir = src.Router.StaticDir
	if len(src.Backends) > 0 {
		dst.Backends = src.Backends
	}
}

// Validate reports the first problem found in the configuration.
func (c Config) Validate() error {
	switch c.Cache.Provider {
	case ProviderMemory:
	case ProviderSQLite:
	case ProviderRedis:
		if c.Cache.Redis.URL == "" {
			return errors.New("redis cache provider needs cache.redis.url")
		}
	default:
		return fmt.Errorf("unsupported cache provider: %q", c.Cache.Provider)
	}
	if c.Router.InvokeTimeout < 0 {
		return errors.New("router.invokeTimeout must not be negative")
	}

	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backend #%d has no name", i+1)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate backend name: %s", b.Name)
		}
		seen[b.Name] = true
		if b.Kind != KindEcho && b.Kind != KindHTTP {
			return fmt.Errorf("backend %s: unsupported kind %q", b.Name, b.Kind)
		}
		if b.Kind == KindHTTP && b.URL == "" && b.URLEnv == "" {
			return fmt.Errorf("backend %s: http backend needs url or urlEnv", b.Name)
		}
		if b.Timeout < 0 || b.Breaker.OpenFor < 0 {
			return fmt.Errorf("backend %s: durations must not be negative", b.Name)
		}
	}
	return nil
}
