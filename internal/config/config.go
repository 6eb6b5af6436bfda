package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

// Config holds all server configuration.
type Config struct {
	Server ServerConfig
	Model  ModelConfig
	Log    LogConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string
	Port            int
	MaxUploadBytes  int64
	DefaultTopK     int
	ShutdownTimeout time.Duration
}

// ModelConfig holds model loading and inference settings.
type ModelConfig struct {
	Dir            string
	ORTLibPath     string
	IntraOpThreads int
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadDotenv populates the environment from dotenv files. Missing files are
// skipped and variables already set win.
func LoadDotenv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			slog.Warn("failed to load dotenv file", "file", f, "error", err)
		}
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		Server: ServerConfig{
			Host:            getenv("HOST", "0.0.0.0"),
			Port:            getenvInt("PORT", 8000),
			MaxUploadBytes:  int64(getenvInt("MAX_UPLOAD_BYTES", 10<<20)),
			DefaultTopK:     getenvInt("DEFAULT_TOP_K", 3),
			ShutdownTimeout: getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Model: ModelConfig{
			Dir:            getenv("MODEL_DIR", "my-trained-vit-model"),
			ORTLibPath:     os.Getenv("ORT_LIB_PATH"),
			IntraOpThreads: getenvInt("ORT_INTRA_OP_THREADS", 4),
		},
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
		},
	}
}

// BindFlags registers command-line overrides on fs, using the current values
// of cfg as defaults.
func BindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Model.Dir, "model-dir", cfg.Model.Dir, "model artifact directory")
	fs.StringVar(&cfg.Model.ORTLibPath, "ort-lib", cfg.Model.ORTLibPath, "path to the ONNX Runtime shared library")
	fs.IntVar(&cfg.Model.IntraOpThreads, "threads", cfg.Model.IntraOpThreads, "ONNX Runtime intra-op threads")
	fs.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "listen host")
	fs.IntVarP(&cfg.Server.Port, "port", "p", cfg.Server.Port, "listen port")
	fs.IntVar(&cfg.Server.DefaultTopK, "top-k", cfg.Server.DefaultTopK, "predictions returned when top_k is omitted")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "text or json")
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Model.Dir == "" {
		errs = append(errs, errors.New("model dir must not be empty"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Server.Port))
	}
	if c.Server.DefaultTopK < 1 {
		errs = append(errs, fmt.Errorf("default top_k must be positive, got %d", c.Server.DefaultTopK))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max upload bytes must be positive, got %d", c.Server.MaxUploadBytes))
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
