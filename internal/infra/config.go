package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"onecam/internal/domain"
)

// Config represents application configuration loaded from an optional TOML file
// and environment variables.
type Config struct {
	AppEnv string
	Port   string

	EngineBaseURL      string
	EngineClientID     string
	EngineTimeout      time.Duration
	EnginePollAttempts int
	EnginePollInterval time.Duration
	EngineWorkflowPath string

	InputDir         string
	OutputDir        string
	PublicInputDir   string
	PublicOutputDir  string
	InputPrefix      string
	OutputPrefix     string
	StaticDir        string
	WatchQueueSize   int
	WatchWorkers     int
	WatchSettle      time.Duration
	CORSOrigins      []string
	WSAllowedOrigins []string
	RateLimitPerMin  int
	DatabaseURL      string
	GeoIPDBPath      string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	ShutdownTimeout  time.Duration
}

// fileConfig mirrors the TOML layout. Zero values mean "not set".
type fileConfig struct {
	AppEnv             string   `toml:"app_env"`
	Port               string   `toml:"port"`
	StaticDir          string   `toml:"static_dir"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	WSAllowedOrigins   []string `toml:"ws_allowed_origins"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
	DatabaseURL        string   `toml:"database_url"`
	GeoIPDBPath        string   `toml:"geoip_db_path"`

	Engine struct {
		BaseURL        string `toml:"base_url"`
		ClientID       string `toml:"client_id"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
		PollAttempts   int    `toml:"poll_attempts"`
		PollIntervalMS int    `toml:"poll_interval_ms"`
		WorkflowPath   string `toml:"workflow_path"`
	} `toml:"engine"`

	Watch struct {
		InputDir        string `toml:"input_dir"`
		OutputDir       string `toml:"output_dir"`
		PublicInputDir  string `toml:"public_input_dir"`
		PublicOutputDir string `toml:"public_output_dir"`
		InputPrefix     string `toml:"input_prefix"`
		OutputPrefix    string `toml:"output_prefix"`
		QueueSize       int    `toml:"queue_size"`
		Workers         int    `toml:"workers"`
		SettleMS        int    `toml:"settle_ms"`
	} `toml:"watch"`
}

// LoadConfig builds the configuration. When path is non-empty the TOML file is
// read first; environment variables override anything it sets.
func LoadConfig(path string) (*Config, error) {
	var fc fileConfig
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(raw, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", orString(fc.AppEnv, "development")),
		Port:               getEnv("PORT", orString(fc.Port, "5000")),
		EngineBaseURL:      strings.TrimRight(getEnv("ENGINE_BASE_URL", orString(fc.Engine.BaseURL, "http://127.0.0.1:8188")), "/"),
		EngineClientID:     getEnv("ENGINE_CLIENT_ID", orString(fc.Engine.ClientID, "123")),
		EngineTimeout:      time.Second * time.Duration(getEnvInt("ENGINE_TIMEOUT_SECONDS", orInt(fc.Engine.TimeoutSeconds, 60))),
		EnginePollAttempts: getEnvInt("ENGINE_POLL_ATTEMPTS", orInt(fc.Engine.PollAttempts, 1)),
		EnginePollInterval: time.Millisecond * time.Duration(getEnvInt("ENGINE_POLL_INTERVAL_MS", orInt(fc.Engine.PollIntervalMS, 1000))),
		EngineWorkflowPath: getEnv("ENGINE_WORKFLOW_PATH", fc.Engine.WorkflowPath),
		InputDir:           getEnv("ENGINE_INPUT_DIR", orString(fc.Watch.InputDir, "./ComfyUI/input")),
		OutputDir:          getEnv("ENGINE_OUTPUT_DIR", orString(fc.Watch.OutputDir, "./ComfyUI/output")),
		PublicInputDir:     getEnv("PUBLIC_INPUT_DIR", orString(fc.Watch.PublicInputDir, "./public/img/input")),
		PublicOutputDir:    getEnv("PUBLIC_OUTPUT_DIR", orString(fc.Watch.PublicOutputDir, "./public/img/output")),
		InputPrefix:        getEnv("PUBLIC_INPUT_PREFIX", orString(fc.Watch.InputPrefix, "/img/input/")),
		OutputPrefix:       getEnv("PUBLIC_OUTPUT_PREFIX", orString(fc.Watch.OutputPrefix, "/img/output/")),
		StaticDir:          getEnv("STATIC_DIR", orString(fc.StaticDir, "./public")),
		WatchQueueSize:     getEnvInt("WATCH_QUEUE_SIZE", orInt(fc.Watch.QueueSize, 256)),
		WatchWorkers:       getEnvInt("WATCH_WORKERS", orInt(fc.Watch.Workers, 4)),
		WatchSettle:        time.Millisecond * time.Duration(getEnvInt("WATCH_SETTLE_MS", orInt(fc.Watch.SettleMS, 200))),
		CORSOrigins:        getEnvList("CORS_ALLOWED_ORIGINS", orList(fc.CORSAllowedOrigins, []string{"*"})),
		WSAllowedOrigins:   getEnvList("WS_ALLOWED_ORIGINS", orList(fc.WSAllowedOrigins, []string{"http://localhost:3000"})),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", orInt(fc.RateLimitPerMinute, 30)),
		DatabaseURL:        getEnv("DATABASE_URL", fc.DatabaseURL),
		GeoIPDBPath:        getEnv("GEOIP_DB_PATH", fc.GeoIPDBPath),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		ShutdownTimeout:    time.Second * time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10)),
	}

	if strings.EqualFold(cfg.EngineClientID, "auto") {
		cfg.EngineClientID = uuid.NewString()
	}

	for _, dir := range []*string{&cfg.InputDir, &cfg.OutputDir, &cfg.PublicInputDir, &cfg.PublicOutputDir, &cfg.StaticDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", *dir, err)
		}
		*dir = abs
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.EngineBaseURL == "" {
		return errors.New("ENGINE_BASE_URL is required")
	}
	if c.WatchQueueSize <= 0 {
		return errors.New("WATCH_QUEUE_SIZE must be positive")
	}
	if c.WatchWorkers <= 0 {
		return errors.New("WATCH_WORKERS must be positive")
	}
	if c.WatchSettle < 0 {
		return errors.New("WATCH_SETTLE_MS must not be negative")
	}
	if c.EnginePollAttempts <= 0 {
		return errors.New("ENGINE_POLL_ATTEMPTS must be positive")
	}
	if c.InputDir == c.OutputDir {
		return fmt.Errorf("input and output directories must differ (%s)", c.InputDir)
	}
	for _, root := range c.WatchedRoots() {
		for _, watched := range []string{c.InputDir, c.OutputDir} {
			if sameOrUnder(root.Destination, watched) {
				return fmt.Errorf("%s destination %s must not be inside watched directory %s", root.Role, root.Destination, watched)
			}
		}
	}
	return nil
}

// sameOrUnder reports whether path is dir or lies below it.
func sameOrUnder(path, dir string) bool {
	path, dir = filepath.Clean(path), filepath.Clean(dir)
	if path == dir {
		return true
	}
	if dir == string(filepath.Separator) {
		return true
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

// WatchedRoots returns the input and output roots in that order.
func (c *Config) WatchedRoots() []domain.WatchedRoot {
	return []domain.WatchedRoot{
		{Role: domain.RoleInput, Dir: c.InputDir, Destination: c.PublicInputDir, Prefix: c.InputPrefix},
		{Role: domain.RoleOutput, Dir: c.OutputDir, Destination: c.PublicOutputDir, Prefix: c.OutputPrefix},
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func orString(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func orList(v, fallback []string) []string {
	if len(v) > 0 {
		return v
	}
	return fallback
}
