package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	gopool "github.com/FeiLiu52/TVT-code/common"
	"github.com/FeiLiu52/TVT-code/comparison"
	"github.com/FeiLiu52/TVT-code/config"
	"github.com/FeiLiu52/TVT-code/metrics"
	"github.com/FeiLiu52/TVT-code/report"
	_ "github.com/FeiLiu52/TVT-code/selection/adapter"
	"github.com/FeiLiu52/TVT-code/selection/common"
	"github.com/FeiLiu52/TVT-code/topology"
)

var (
	configPath = flag.StringP("config", "c", "node_selection.toml", "path to the comparison config")
	scenario   = flag.String("scenario", "", "YAML/JSON scenario replacing the generated scales")
	logLevel   = flag.String("log-level", "", "overrides log.level from the config")
)

// log init
func init() {
	setupLogging("./logs", "node_selection.log", log.InfoLevel)
}

func setupLogging(logDir, file string, level log.Level) {
	os.MkdirAll(logDir, 0755)

	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, file),
		MaxSize:    100, // MB
		MaxBackups: 7,
		MaxAge:     30, // Days
		Compress:   true,
	}

	multiWriter := io.MultiWriter(os.Stdout, fileLogger)
	log.SetOutput(multiWriter)

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetLevel(level)

	log.Infof("Logging initialized: file=%s, stdout=enabled", filepath.Join(logDir, file))
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Override(*scenario, *logLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildJobs(cfg *config.Config) ([]comparison.Job, error) {
	if cfg.Run.Scenario != "" {
		s, err := comparison.LoadScenario(cfg.Run.Scenario)
		if err != nil {
			return nil, err
		}
		job, err := comparison.ScenarioJob(s)
		if err != nil {
			return nil, err
		}
		return []comparison.Job{job}, nil
	}

	g := cfg.Generator
	params := comparison.JobParams{
		Seed:         cfg.Run.Seed,
		RunsPerScale: cfg.Run.RunsPerScale,
		Generator: topology.GeneratorParams{
			ComputeFraction: g.ComputeFraction,
			BandwidthMin:    g.BandwidthMin,
			BandwidthMax:    g.BandwidthMax,
			DelayMin:        g.DelayMin,
			DelayMax:        g.DelayMax,
			CapacityMin:     g.CapacityMin,
			CapacityMax:     g.CapacityMax,
			Directed:        g.Directed,
		},
		Requests: comparison.RequestParams{
			BandwidthMin: cfg.Requests.BandwidthMin,
			BandwidthMax: cfg.Requests.BandwidthMax,
			CapacityMin:  cfg.Requests.CapacityMin,
			CapacityMax:  cfg.Requests.CapacityMax,
			MaxDelayMin:  cfg.Requests.MaxDelayMin,
			MaxDelayMax:  cfg.Requests.MaxDelayMax,
		},
		RequestCount: cfg.Requests.Count,
	}
	for _, s := range cfg.Scales {
		params.Scales = append(params.Scales, comparison.Scale{Name: s.Name(), Nodes: s.Nodes, Edges: s.Edges})
	}
	return comparison.GenerateJobs(params)
}

func dumpTopologies(dir string, jobs []comparison.Job) error {
	for _, job := range jobs {
		path := filepath.Join(dir, fmt.Sprintf("topology_%s_run%d.yaml", job.Scale, job.Run))
		if err := topology.Save(path, job.Topology); err != nil {
			return err
		}
	}
	return nil
}

func publish(ctx context.Context, cfg config.EtcdConfig, runID string, host metrics.HostInfo, summaries []metrics.Summary) {
	publisher, err := report.NewEtcdPublisher(report.EtcdConfig{
		Endpoints:   cfg.Endpoints,
		DialTimeout: time.Duration(cfg.DialTimeoutMS) * time.Millisecond,
		Prefix:      cfg.Prefix,
	})
	if err != nil {
		log.Errorf("etcd publisher init failed, err:%v", err)
		return
	}
	defer publisher.Close()

	if err := publisher.PublishSummaries(ctx, runID, host, summaries); err != nil {
		log.Errorf("publishing summaries failed, err:%v", err)
	}
}

func storeMySQL(ctx context.Context, cfg config.MySQLConfig, runID string, records []metrics.Record, summaries []metrics.Summary) {
	db, err := report.ConnectMySQL(report.MySQLConfig{
		Username: cfg.Username,
		Password: cfg.Password,
		Address:  cfg.Address,
		DBName:   cfg.DBName,
	})
	if err != nil {
		log.Errorf("mysql init failed, err:%v", err)
		return
	}
	defer db.Close()

	if err := report.EnsureSchema(ctx, db); err != nil {
		log.Errorf("%v", err)
		return
	}
	if err := report.InsertRecords(ctx, db, runID, records); err != nil {
		log.Errorf("storing records failed, err:%v", err)
		return
	}
	if err := report.InsertSummaries(ctx, db, runID, summaries); err != nil {
		log.Errorf("storing summaries failed, err:%v", err)
	}
}

func pushRedis(cfg config.RedisConfig, runID string, records []metrics.Record, summaries []metrics.Summary) {
	pool := report.NewRedisPool(cfg.Address)
	defer pool.Close()
	conn := pool.Get()
	defer conn.Close()

	if err := report.PushDelays(conn, runID, records, cfg.Keep); err != nil {
		log.Errorf("pushing delays to redis failed, err:%v", err)
		return
	}

	averages, err := report.RecentAverages(conn, runID, summaries, cfg.Keep)
	if err != nil {
		log.Errorf("reading recent delays from redis failed, err:%v", err)
		return
	}
	for key, avg := range averages {
		log.Infof("recent average delay %s: %.4f", key, avg)
	}
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading configuration failed, err:%v", err)
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("invalid log level, err:%v", err)
	}
	setupLogging(cfg.Log.Dir, cfg.Log.File, level)

	runID := uuid.NewString()
	host, err := metrics.GetHostInfo()
	if err != nil {
		log.Warnf("reading host info failed, err:%v", err)
	} else {
		log.Infof("run %s on %s (%s %s, %d cores, %.0f MB)", runID, host.Hostname, host.OS, host.Platform, host.LogicalCores, host.TotalMemoryMB)
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		log.Fatalf("creating output dir %s failed, err:%v", cfg.Output.Dir, err)
	}

	jobs, err := buildJobs(cfg)
	if err != nil {
		log.Fatalf("building jobs failed, err:%v", err)
	}
	if cfg.Output.DumpTopology {
		if err := dumpTopologies(cfg.Output.Dir, jobs); err != nil {
			log.Fatalf("dumping topologies failed, err:%v", err)
		}
	}

	registry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(prometheus.WrapRegistererWithPrefix(cfg.Output.MetricsPrefix, registry))
	if err != nil {
		log.Fatalf("registering metrics failed, err:%v", err)
	}
	var sampler metrics.MemorySampler
	if ps, err := metrics.NewProcessSampler(); err == nil {
		sampler = ps
	} else {
		log.Warnf("memory sampling disabled, err:%v", err)
	}
	recorder := metrics.NewRecorder(sampler, collector)

	pool, err := gopool.NewPool(gopool.PoolConfig{MaxWorkers: cfg.Run.MaxWorkers})
	if err != nil {
		log.Fatalf("creating pool failed, err:%v", err)
	}
	defer pool.Release()
	if cfg.Run.MaxWorkers > 1 {
		log.Warnf("%d workers: elapsed times and process RSS include concurrent tasks", cfg.Run.MaxWorkers)
	}

	runner := comparison.NewRunner(common.GetGlobalRegistry(), recorder, pool, comparison.RunnerConfig{
		RunID:         runID,
		Algorithms:    cfg.Run.Algorithms,
		Granularities: cfg.Run.Granularities,
		Options: common.Options{
			Delay:      common.DelayModel{ProcessingFactor: cfg.Delay.ProcessingFactor},
			TimeBudget: cfg.Run.TimeBudget(),
		},
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	if err := runner.Run(ctx, jobs); err != nil {
		log.Fatalf("comparison run %s failed, err:%v", runID, err)
	}
	log.Infof("comparison run %s finished in %v", runID, time.Since(start))

	records, summaries := recorder.Records(), recorder.Finalize()
	files, err := report.WriteFiles(cfg.Output.Dir, runID, records, summaries)
	if err != nil {
		log.Fatalf("writing results failed, err:%v", err)
	}
	log.Infof("results written: detailed=%s, summary=%s", files.Detailed, files.Summary)

	metricsFile := filepath.Join(cfg.Output.Dir, fmt.Sprintf("metrics_%s.prom", runID))
	if err := prometheus.WriteToTextfile(metricsFile, registry); err != nil {
		log.Warnf("writing metrics snapshot failed, err:%v", err)
	}

	if cfg.Etcd.Enabled {
		publish(ctx, cfg.Etcd, runID, host, summaries)
	}
	if cfg.MySQL.Enabled {
		storeMySQL(ctx, cfg.MySQL, runID, records, summaries)
	}
	if cfg.Redis.Enabled {
		pushRedis(cfg.Redis, runID, records, summaries)
	}
}
