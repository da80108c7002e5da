// Package config loads process configuration for the master and workers.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// variables from .env files and the environment (TILEPAINT_*). Command line
// flags are applied last by the cmd packages.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/tilepaint/internal/cluster"
)

// Dataset names, one per partition.
const (
	DatasetLondon     = "London"
	DatasetTippecanoe = "Tippecanoe"
)

type App struct {
	// dev | prod
	Env      string `yaml:"env" validate:"oneof=dev prod"`
	LogLevel string `yaml:"log_level"`
}

type Cluster struct {
	Workers   int    `yaml:"workers" validate:"min=1"`
	Threshold int    `yaml:"threshold" validate:"min=0"`
	BasePort  int    `yaml:"base_port" validate:"min=1,max=65535"`
	Host      string `yaml:"host" validate:"required"`

	// WorkerBinary is the executable launched per worker. Empty means a
	// binary named "worker" next to the running executable.
	WorkerBinary string `yaml:"worker_binary"`

	RestartOnExit    bool          `yaml:"restart_on_exit"`
	RestartDelay     time.Duration `yaml:"restart_delay" validate:"min=0,required_if=RestartOnExit true"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout" validate:"gt=0"`
	HealthInterval   time.Duration `yaml:"health_interval" validate:"gt=0"`
	BroadcastTimeout time.Duration `yaml:"broadcast_timeout" validate:"gt=0"`
}

type Admin struct {
	Addr string `yaml:"addr" validate:"required"`
}

type Datasets struct {
	London     string `yaml:"london" validate:"required"`
	Tippecanoe string `yaml:"tippecanoe" validate:"required"`
}

type Tiles struct {
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	MergeAdjacent bool          `yaml:"merge_adjacent"`
	// CacheTTL enables the raw tile read cache when positive.
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"min=0"`
}

type Replica struct {
	Size         int64  `yaml:"size" validate:"min=1"`
	DefaultColor string `yaml:"default_color" validate:"required"`
}

type Config struct {
	App      App      `yaml:"app"`
	Cluster  Cluster  `yaml:"cluster"`
	Admin    Admin    `yaml:"admin"`
	Datasets Datasets `yaml:"datasets"`
	Tiles    Tiles    `yaml:"tiles"`
	Replica  Replica  `yaml:"replica"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		App: App{Env: "dev", LogLevel: "info"},
		Cluster: Cluster{
			Workers:          8,
			Threshold:        cluster.DefaultThreshold,
			BasePort:         3000,
			Host:             "127.0.0.1",
			RestartDelay:     time.Second,
			ReadyTimeout:     15 * time.Second,
			HealthInterval:   10 * time.Second,
			BroadcastTimeout: 2 * time.Second,
		},
		Admin: Admin{Addr: ":3000"},
		Datasets: Datasets{
			London:     "data/London.mbtiles",
			Tippecanoe: "data/Tippecanoe.mbtiles",
		},
		Tiles: Tiles{
			Timeout:       5 * time.Second,
			MergeAdjacent: true,
		},
		Replica: Replica{
			Size:         6_000_000,
			DefaultColor: "blue",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadDotEnv loads each existing .env file into the environment. Variables
// already set are left alone.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Cluster.BasePort+c.Cluster.Workers > 65535 {
		return fmt.Errorf("invalid config: worker ports exceed 65535")
	}
	return nil
}

// Dataset returns the dataset name and MBTiles path served by partition p.
func (c *Config) Dataset(p cluster.Partition) (name, path string) {
	if p == cluster.PartitionA {
		return DatasetLondon, c.Datasets.London
	}
	return DatasetTippecanoe, c.Datasets.Tippecanoe
}

// ---- env helpers ----

const envPrefix = "TILEPAINT_"

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return strings.TrimSpace(v), v != ""
}

func (c *Config) applyEnvOverrides() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := getEnvStr(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := getEnvStr(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	num64 := func(key string, dst *int64) {
		if v, ok := getEnvStr(key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := getEnvStr(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := getEnvStr(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	// APP
	str("ENV", &c.App.Env)
	str("LOG_LEVEL", &c.App.LogLevel)
	c.App.Env = strings.ToLower(c.App.Env)

	// CLUSTER
	num("WORKERS", &c.Cluster.Workers)
	num("THRESHOLD", &c.Cluster.Threshold)
	num("BASE_PORT", &c.Cluster.BasePort)
	str("HOST", &c.Cluster.Host)
	str("WORKER_BINARY", &c.Cluster.WorkerBinary)
	flag("RESTART_ON_EXIT", &c.Cluster.RestartOnExit)
	dur("RESTART_DELAY", &c.Cluster.RestartDelay)
	dur("READY_TIMEOUT", &c.Cluster.ReadyTimeout)
	dur("HEALTH_INTERVAL", &c.Cluster.HealthInterval)
	dur("BROADCAST_TIMEOUT", &c.Cluster.BroadcastTimeout)

	// ADMIN
	str("ADMIN_ADDR", &c.Admin.Addr)

	// DATASETS
	str("LONDON_MBTILES", &c.Datasets.London)
	str("TIPPECANOE_MBTILES", &c.Datasets.Tippecanoe)

	// TILES
	dur("TILE_TIMEOUT", &c.Tiles.Timeout)
	flag("MERGE_ADJACENT", &c.Tiles.MergeAdjacent)
	dur("TILE_CACHE_TTL", &c.Tiles.CacheTTL)

	// REPLICA
	num64("REPLICA_SIZE", &c.Replica.Size)
	str("DEFAULT_COLOR", &c.Replica.DefaultColor)

	return errors.Join(errs...)
}
