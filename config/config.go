package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the comparison configuration from a toml file.
type Config struct {
	Run       RunConfig       `toml:"run"`
	Scales    []ScaleConfig   `toml:"scale"`
	Generator GeneratorConfig `toml:"generator"`
	Requests  RequestConfig   `toml:"requests"`
	Delay     DelayConfig     `toml:"delay"`
	Output    OutputConfig    `toml:"output"`
	Etcd      EtcdConfig      `toml:"etcd"`
	MySQL     MySQLConfig     `toml:"mysql"`
	Redis     RedisConfig     `toml:"redis"`
	Log       LogConfig       `toml:"log"`
}

type RunConfig struct {
	Algorithms    []string `toml:"algorithms"`
	Granularities []int    `toml:"granularities"` // L values for CPEG and CNE
	RunsPerScale  int      `toml:"runs_per_scale"`
	Seed          int64    `toml:"seed"`
	TimeBudgetMS  int      `toml:"time_budget_ms"` // 0 disables the per-request deadline
	MaxWorkers    int      `toml:"max_workers"` // above 1, timings and process RSS include concurrent tasks
	Scenario      string   `toml:"scenario"` // optional YAML/JSON scenario; replaces generated scales
}

func (r RunConfig) TimeBudget() time.Duration {
	return time.Duration(r.TimeBudgetMS) * time.Millisecond
}

type ScaleConfig struct {
	Nodes int `toml:"nodes"`
	Edges int `toml:"edges"`
}

func (s ScaleConfig) Name() string {
	return fmt.Sprintf("n%d-e%d", s.Nodes, s.Edges)
}

type GeneratorConfig struct {
	ComputeFraction float64 `toml:"compute_fraction"`
	BandwidthMin    float64 `toml:"bandwidth_min"`
	BandwidthMax    float64 `toml:"bandwidth_max"`
	DelayMin        float64 `toml:"delay_min"`
	DelayMax        float64 `toml:"delay_max"`
	CapacityMin     float64 `toml:"capacity_min"`
	CapacityMax     float64 `toml:"capacity_max"`
	Directed        bool    `toml:"directed"`
}

type RequestConfig struct {
	Count        int     `toml:"count"`
	BandwidthMin float64 `toml:"bandwidth_min"`
	BandwidthMax float64 `toml:"bandwidth_max"`
	CapacityMin  float64 `toml:"capacity_min"`
	CapacityMax  float64 `toml:"capacity_max"`
	MaxDelayMin  float64 `toml:"max_delay_min"`
	MaxDelayMax  float64 `toml:"max_delay_max"`
}

type DelayConfig struct {
	ProcessingFactor float64 `toml:"processing_factor"`
}

type OutputConfig struct {
	Dir           string `toml:"dir"`
	DumpTopology  bool   `toml:"dump_topology"`
	MetricsPrefix string `toml:"metrics_prefix"`
}

type EtcdConfig struct {
	Enabled       bool     `toml:"enabled"`
	Endpoints     []string `toml:"endpoints"`
	DialTimeoutMS int      `toml:"dial_timeout_ms"`
	Prefix        string   `toml:"prefix"`
}

type MySQLConfig struct {
	Enabled  bool   `toml:"enabled"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Address  string `toml:"address"`
	DBName   string `toml:"dbname"`
}

// RedisConfig enables the list of recent delays per algorithm.
type RedisConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Keep    int    `toml:"keep"`
}

type LogConfig struct {
	Dir   string `toml:"dir"`
	File  string `toml:"file"`
	Level string `toml:"level"`
}

// Default returns the configuration used for every key the file leaves out.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Algorithms:    []string{"CPEG", "CNE", "CCN", "MPCN", "MINLP"},
			Granularities: []int{10},
			RunsPerScale:  10,
			Seed:          1,
			MaxWorkers:    1,
		},
		Scales: []ScaleConfig{{Nodes: 50, Edges: 200}, {Nodes: 100, Edges: 500}},
		Generator: GeneratorConfig{
			ComputeFraction: 0.6,
			BandwidthMin:    1000,
			BandwidthMax:    5000,
			DelayMin:        1,
			DelayMax:        5,
			CapacityMin:     10000,
			CapacityMax:     100000,
		},
		Requests: RequestConfig{
			Count:        50,
			BandwidthMin: 100,
			BandwidthMax: 1000,
			CapacityMin:  1000,
			CapacityMax:  10000,
			MaxDelayMin:  10,
			MaxDelayMax:  50,
		},
		Delay:  DelayConfig{ProcessingFactor: 10},
		Output: OutputConfig{Dir: "./results", MetricsPrefix: "node_selection_"},
		Etcd: EtcdConfig{
			Endpoints:     []string{"localhost:2379"},
			DialTimeoutMS: 5000,
			Prefix:        "/node_selection/results/",
		},
		MySQL: MySQLConfig{Address: "127.0.0.1:3306", DBName: "node_selection"},
		Redis: RedisConfig{Address: "127.0.0.1:6379", Keep: 100},
		Log:   LogConfig{Dir: "./logs", File: "node_selection.log", Level: "info"},
	}
}

// Load decodes path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	defaultScales := cfg.Scales
	cfg.Scales = nil

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warnf("config.Load: ignoring unknown keys in %s: %v", path, undecoded)
	}
	if len(cfg.Scales) == 0 {
		log.Warnf("config.Load: no [[scale]] in %s, using defaults", path)
		cfg.Scales = defaultScales
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Override applies command line values on top of a loaded config and validates again.
// Empty values leave the config untouched.
func (c *Config) Override(scenario, logLevel string) error {
	if scenario != "" {
		c.Run.Scenario = scenario
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	return c.Validate()
}

// Validate checks bounds that would otherwise surface in the middle of a run.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(len(c.Run.Algorithms) > 0, "run.algorithms is empty")
	check(len(c.Run.Granularities) > 0, "run.granularities is empty")
	for _, l := range c.Run.Granularities {
		check(l >= 1, "run.granularities: %d is below 1", l)
	}
	check(c.Run.RunsPerScale >= 1, "run.runs_per_scale must be at least 1")
	check(c.Run.TimeBudgetMS >= 0, "run.time_budget_ms must not be negative")
	check(c.Run.MaxWorkers >= 1, "run.max_workers must be at least 1")

	for _, s := range c.Scales {
		check(s.Nodes >= 2, "scale %s: at least 2 nodes are needed", s.Name())
		check(s.Edges >= 0, "scale %s: negative edge count", s.Name())
	}

	g := c.Generator
	check(g.ComputeFraction > 0 && g.ComputeFraction <= 1, "generator.compute_fraction must be in (0, 1]")
	check(g.BandwidthMin >= 0 && g.BandwidthMin <= g.BandwidthMax, "generator bandwidth range is invalid")
	check(g.DelayMin >= 0 && g.DelayMin <= g.DelayMax, "generator delay range is invalid")
	check(g.CapacityMin > 0 && g.CapacityMin <= g.CapacityMax, "generator capacity range is invalid")

	r := c.Requests
	check(r.Count >= 1, "requests.count must be at least 1")
	check(r.BandwidthMin > 0 && r.BandwidthMin <= r.BandwidthMax, "requests bandwidth range is invalid")
	check(r.CapacityMin > 0 && r.CapacityMin <= r.CapacityMax, "requests capacity range is invalid")
	check(r.MaxDelayMin > 0 && r.MaxDelayMin <= r.MaxDelayMax, "requests max delay range is invalid")

	check(c.Delay.ProcessingFactor >= 0, "delay.processing_factor must not be negative")
	check(c.Output.Dir != "", "output.dir is empty")
	if c.Etcd.Enabled {
		check(len(c.Etcd.Endpoints) > 0, "etcd.endpoints is empty")
	}
	if c.MySQL.Enabled {
		check(c.MySQL.Address != "" && c.MySQL.DBName != "", "mysql.address and mysql.dbname are required")
	}
	if c.Redis.Enabled {
		check(c.Redis.Address != "", "redis.address is empty")
		check(c.Redis.Keep >= 1, "redis.keep must be at least 1")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
