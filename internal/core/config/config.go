package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type InvalidationCfg struct {
	Enabled bool
	Driver  string
	Topic   string
	Brokers string
	GroupID string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int

	// CatalogPath points at a YAML authority catalog; the built-in catalog is
	// used when empty.
	CatalogPath string

	InitDir          string
	RedisAddr        string
	InitRedisEnabled bool
	InitCacheSize    int

	GridBaseURL   string
	GridDir       string
	GridCacheSize int
	// GridFetchTimeout bounds one remote grid download.
	GridFetchTimeout time.Duration

	NetworkEnabled  bool
	OnlyBestDefault bool
	// ProjDebug is the runtime log verbosity, 0 (none) to 3 (trace).
	ProjDebug int

	OpCacheSize          int
	TransformMaxPoints   int
	BoundsDensifyDefault int
	RequestTimeout       time.Duration

	Invalidation InvalidationCfg
	Metrics      MetricsCfg
}

// Load reads the given .env files (missing files are skipped) into the
// process environment, without overriding variables already set, and then
// returns FromEnv.
func Load(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	maxPoints := getint("TRANSFORM_MAX_POINTS", 100000)
	if maxPoints < 1 {
		maxPoints = 1
	}
	densify := getint("BOUNDS_DENSIFY_DEFAULT", 21)
	if densify < 2 {
		densify = 2
	}

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),

		CatalogPath: getenv("CATALOG_PATH", ""),

		InitDir:          getenv("INIT_DIR", ""),
		RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
		InitRedisEnabled: getbool("INIT_REDIS_ENABLED", false),
		InitCacheSize:    getint("INIT_CACHE_SIZE", 256),

		GridBaseURL:   getenv("GRID_BASE_URL", ""),
		GridDir:       getenv("GRID_DIR", ""),
		GridCacheSize: getint("GRID_CACHE_SIZE", 32),

		GridFetchTimeout: getduration("GRID_FETCH_TIMEOUT", 30*time.Second),

		NetworkEnabled:  getbool("NETWORK_ENABLED", false),
		OnlyBestDefault: getbool("ONLY_BEST_DEFAULT", false),
		ProjDebug:       getint("PROJ_DEBUG", 1),

		OpCacheSize:          getint("OP_CACHE_SIZE", 128),
		TransformMaxPoints:   maxPoints,
		BoundsDensifyDefault: densify,
		RequestTimeout:       getduration("REQUEST_TIMEOUT", 10*time.Second),

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Driver:  getenv("INVALIDATION_DRIVER", "none"),
			Topic:   getenv("KAFKA_TOPIC", "catalog-changes"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "projd-invalidator"),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Addr:    getenv("METRICS_ADDR", ""),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
