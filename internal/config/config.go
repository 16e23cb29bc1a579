package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"sigs.k8s.io/yaml"

	"toolhub/internal/mcp"
)

const (
	EnvPrefix      = "TOOLHUB_"
	EnvConfigPath  = EnvPrefix + "CONFIG"
	EnvLogLevel    = EnvPrefix + "LOG_LEVEL"
	EnvCollision   = EnvPrefix + "COLLISION"
	EnvTimeout     = EnvPrefix + "TIMEOUT_SECONDS"
	DefaultPath    = "config.toml"
	DefaultAddr    = "localhost:8080"
	DefaultMCPPath = "/mcp"
)

type Config struct {
	LogLevel        string         `toml:"log_level" json:"log_level,omitempty" validate:"omitempty,oneof=trace debug info notice warn warning error critical"`
	Collision       string         `toml:"collision" json:"collision,omitempty" validate:"omitempty,oneof=last_wins prefix"`
	RepairArguments bool           `toml:"repair_arguments" json:"repair_arguments,omitempty"`
	Concurrency     int            `toml:"concurrency" json:"concurrency,omitempty" validate:"gte=0"`
	Timeouts        TimeoutConfig  `toml:"timeouts" json:"timeouts"`
	Audit           AuditConfig    `toml:"audit" json:"audit"`
	Servers         []ServerConfig `toml:"mcp_servers" json:"mcp_servers,omitempty" validate:"dive"`
	Serve           ServeConfig    `toml:"serve" json:"serve"`
}

// ServerConfig names one peer. The descriptor fields sit beside the name.
type ServerConfig struct {
	Name           string `toml:"name" json:"name" validate:"required"`
	mcp.Descriptor `validate:"-"`
}

type TimeoutConfig struct {
	DefaultSeconds int            `toml:"default_seconds" json:"default_seconds,omitempty" validate:"gte=0"`
	MaxSeconds     int            `toml:"max_seconds" json:"max_seconds,omitempty" validate:"gte=0"`
	PerPeer        map[string]int `toml:"per_peer" json:"per_peer,omitempty"`
}

type AuditConfig struct {
	Enabled bool `toml:"enabled" json:"enabled,omitempty"`
	// Path of the JSON-lines audit file; empty or "-" means stderr.
	Path string `toml:"path" json:"path,omitempty"`
}

type ServeConfig struct {
	Transport          string         `toml:"transport" json:"transport,omitempty" validate:"omitempty,oneof=stdio sse streamable"`
	Addr               string         `toml:"addr" json:"addr,omitempty"`
	Path               string         `toml:"path" json:"path,omitempty"`
	Toolsets           []string       `toml:"toolsets" json:"toolsets,omitempty"`
	DisabledTools      []string       `toml:"disabled_tools" json:"disabled_tools,omitempty"`
	ToolTimeoutSeconds int            `toml:"tool_timeout_seconds" json:"tool_timeout_seconds,omitempty" validate:"gte=0"`
	APIKeys            []APIKeyConfig `toml:"api_keys" json:"api_keys,omitempty" validate:"dive"`
}

type APIKeyConfig struct {
	ID       string   `toml:"id" json:"id" validate:"required"`
	Key      string   `toml:"key" json:"key" validate:"required"`
	Toolsets []string `toml:"toolsets" json:"toolsets,omitempty"`
	Tools    []string `toml:"tools" json:"tools,omitempty"`
}

type Overrides struct {
	LogLevel        *string
	Collision       *string
	TimeoutSeconds  *int
	RepairArguments *bool
	Toolsets        *[]string
	Transport       *string
	Addr            *string
}

func DefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		Collision: string(mcp.CollisionLastWins),
		Timeouts:  TimeoutConfig{DefaultSeconds: 30},
		Serve: ServeConfig{
			Transport: "stdio",
			Addr:      DefaultAddr,
			Path:      DefaultMCPPath,
			Toolsets:  []string{"text", "math"},
		},
	}
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return errors.Wrapf(err, "load %s", file)
		}
	}
	return nil
}

// ResolvePath picks the config file: the explicit path, then $TOOLHUB_CONFIG,
// then ./config.toml when it exists.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

func Load(path string, dir string, overrides Overrides) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return cfg, err
		}
		merge(&cfg, fileCfg)
	}

	if dir != "" {
		files, err := dropInFiles(dir)
		if err != nil {
			return cfg, err
		}
		for _, file := range files {
			fileCfg, err := readFile(file)
			if err != nil {
				return cfg, err
			}
			merge(&cfg, fileCfg)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyOverrides(&cfg, overrides)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if err := checkDuplicates(c.Servers); err != nil {
		return err
	}
	for _, server := range c.Servers {
		if err := mcp.ValidatePeerName(server.Name); err != nil {
			return errors.Wrap(err, "mcp_servers")
		}
		if err := server.Descriptor.Validate(); err != nil {
			return errors.Wrapf(err, "mcp_servers %q", server.Name)
		}
	}
	return nil
}

// ManagerTimeouts converts the timeout section for the manager.
func (c Config) ManagerTimeouts() mcp.Timeouts {
	t := mcp.Timeouts{
		Default: time.Duration(c.Timeouts.DefaultSeconds) * time.Second,
		Max:     time.Duration(c.Timeouts.MaxSeconds) * time.Second,
	}
	if len(c.Timeouts.PerPeer) > 0 {
		t.PerName = make(map[string]time.Duration, len(c.Timeouts.PerPeer))
		for name, secs := range c.Timeouts.PerPeer {
			t.PerName[name] = time.Duration(secs) * time.Second
		}
	}
	return t
}

// Builder returns a manager builder for the configured peers, or the default
// builder when none are configured.
func (c Config) Builder() (mcp.Builder, error) {
	policy, err := mcp.ParseCollisionPolicy(c.Collision)
	if err != nil {
		return mcp.Builder{}, err
	}
	b := mcp.NewBuilder()
	if len(c.Servers) == 0 {
		b = mcp.DefaultBuilder()
	}
	for _, server := range c.Servers {
		b = b.Add(server.Name, server.Descriptor)
	}
	return b.
		WithTimeouts(c.ManagerTimeouts()).
		WithCollisionPolicy(policy).
		WithArgumentRepair(c.RepairArguments).
		WithConcurrency(c.Concurrency), nil
}

func readFile(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "decode %s", path)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "decode %s", path)
		}
	}
	if err := checkDuplicates(cfg.Servers); err != nil {
		return cfg, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

func checkDuplicates(servers []ServerConfig) error {
	seen := map[string]bool{}
	for _, server := range servers {
		if seen[server.Name] {
			return errors.WithHint(
				errors.Newf("duplicate mcp_servers name %q", server.Name),
				"Peer names must be unique; drop-in files replace peers by name.",
			)
		}
		seen[server.Name] = true
	}
	return nil
}

func dropInFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".toml", ".yaml", ".yml", ".json":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func merge(dst *Config, src Config) {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.Collision != "" {
		dst.Collision = src.Collision
	}
	if src.RepairArguments {
		dst.RepairArguments = src.RepairArguments
	}
	if src.Concurrency > 0 {
		dst.Concurrency = src.Concurrency
	}
	if src.Timeouts.DefaultSeconds > 0 {
		dst.Timeouts.DefaultSeconds = src.Timeouts.DefaultSeconds
	}
	if src.Timeouts.MaxSeconds > 0 {
		dst.Timeouts.MaxSeconds = src.Timeouts.MaxSeconds
	}
	for name, secs := range src.Timeouts.PerPeer {
		if dst.Timeouts.PerPeer == nil {
			dst.Timeouts.PerPeer = map[string]int{}
		}
		dst.Timeouts.PerPeer[name] = secs
	}
	if src.Audit.Enabled {
		dst.Audit.Enabled = src.Audit.Enabled
	}
	if src.Audit.Path != "" {
		dst.Audit.Path = src.Audit.Path
	}
	for _, server := range src.Servers {
		replaced := false
		for i := range dst.Servers {
			if dst.Servers[i].Name == server.Name {
				dst.Servers[i] = server
				replaced = true
				break
			}
		}
		if !replaced {
			dst.Servers = append(dst.Servers, server)
		}
	}
	if src.Serve.Transport != "" {
		dst.Serve.Transport = src.Serve.Transport
	}
	if src.Serve.Addr != "" {
		dst.Serve.Addr = src.Serve.Addr
	}
	if src.Serve.Path != "" {
		dst.Serve.Path = src.Serve.Path
	}
	if len(src.Serve.Toolsets) > 0 {
		dst.Serve.Toolsets = append([]string{}, src.Serve.Toolsets...)
	}
	if len(src.Serve.DisabledTools) > 0 {
		dst.Serve.DisabledTools = append([]string{}, src.Serve.DisabledTools...)
	}
	if src.Serve.ToolTimeoutSeconds > 0 {
		dst.Serve.ToolTimeoutSeconds = src.Serve.ToolTimeoutSeconds
	}
	if len(src.Serve.APIKeys) > 0 {
		dst.Serve.APIKeys = append([]APIKeyConfig{}, src.Serve.APIKeys...)
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvCollision); v != "" {
		cfg.Collision = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s", EnvTimeout)
		}
		cfg.Timeouts.DefaultSeconds = secs
	}
	return nil
}

func applyOverrides(cfg *Config, overrides Overrides) {
	if overrides.LogLevel != nil {
		cfg.LogLevel = *overrides.LogLevel
	}
	if overrides.Collision != nil {
		cfg.Collision = *overrides.Collision
	}
	if overrides.TimeoutSeconds != nil {
		cfg.Timeouts.DefaultSeconds = *overrides.TimeoutSeconds
	}
	if overrides.RepairArguments != nil {
		cfg.RepairArguments = *overrides.RepairArguments
	}
	if overrides.Toolsets != nil {
		cfg.Serve.Toolsets = append([]string{}, (*overrides.Toolsets)...)
	}
	if overrides.Transport != nil {
		cfg.Serve.Transport = *overrides.Transport
	}
	if overrides.Addr != nil {
		cfg.Serve.Addr = *overrides.Addr
	}
}
