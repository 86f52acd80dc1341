package report

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/FeiLiu52/TVT-code/metrics"
)

const DefaultPrefix = "/node_selection/results/"

type EtcdConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
	Prefix      string
}

func DefaultEtcdConfig() EtcdConfig {
	return EtcdConfig{
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
		Prefix:      DefaultPrefix,
	}
}

// putter is the part of the etcd KV API the publisher needs.
type putter interface {
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
}

// SummaryMessage is the JSON document stored per algorithm and scale.
type SummaryMessage struct {
	RunID           string           `json:"run_id"`
	Scale           string           `json:"scale"`
	Algorithm       string           `json:"algorithm"`
	Invocations     int              `json:"invocations"`
	Selected        int              `json:"selected"`
	SuccessRate     float64          `json:"success_rate"`
	DelayMean       float64          `json:"delay_mean"`
	DelayVariance   float64          `json:"delay_variance"`
	DelayGapMean    float64          `json:"delay_gap_mean"`
	DelayGapSamples int              `json:"delay_gap_samples"`
	ElapsedMSMean   float64          `json:"elapsed_ms_mean"`
	VerticesMean    float64          `json:"vertices_mean"`
	EdgesMean       float64          `json:"edges_mean"`
	GraphMBMean     float64          `json:"graph_memory_mb_mean"`
	Outcomes        map[string]int   `json:"outcomes"`
	Host            metrics.HostInfo `json:"host"`
	PublishedAt     time.Time        `json:"published_at"`
}

// EtcdPublisher stores per-algorithm summaries of a comparison under
// <prefix><run id>/<scale>/<algorithm>.
type EtcdPublisher struct {
	client      *clientv3.Client
	kv          putter
	prefix      string
	publisherID string
}

func NewEtcdPublisher(config EtcdConfig) (*EtcdPublisher, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: config.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	p := newPublisher(client, config.Prefix)
	p.client = client
	return p, nil
}

func newPublisher(kv putter, prefix string) *EtcdPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &EtcdPublisher{
		kv:          kv,
		prefix:      prefix,
		publisherID: fmt.Sprintf("publisher-%d", time.Now().Unix()),
	}
}

func (p *EtcdPublisher) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

func (p *EtcdPublisher) Key(runID, scale, algorithm string) string {
	return path.Join(p.prefix, runID, scale, algorithm)
}

// PublishSummaries writes one key per summary and stops at the first failure.
func (p *EtcdPublisher) PublishSummaries(ctx context.Context, runID string, host metrics.HostInfo, summaries []metrics.Summary) error {
	now := time.Now()
	for _, s := range summaries {
		msg := SummaryMessage{
			RunID:           runID,
			Scale:           s.Scale,
			Algorithm:       s.Algorithm,
			Invocations:     s.Invocations,
			Selected:        s.Selected,
			SuccessRate:     s.SuccessRate,
			DelayMean:       s.Delay.Mean,
			DelayVariance:   s.Delay.Variance,
			DelayGapMean:    s.DelayGap.Mean,
			DelayGapSamples: s.DelayGapSamples,
			ElapsedMSMean:   s.ElapsedMS.Mean,
			VerticesMean:    s.Vertices.Mean,
			EdgesMean:       s.Edges.Mean,
			GraphMBMean:     s.GraphMB.Mean,
			Outcomes:        s.ReasonsByCode,
			Host:            host,
			PublishedAt:     now,
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}

		key := p.Key(runID, s.Scale, s.Algorithm)
		if _, err := p.kv.Put(ctx, key, string(data)); err != nil {
			return fmt.Errorf("failed to publish summary %s: %w", key, err)
		}
		log.Debugf("[%s] Summary published: %s", p.publisherID, key)
	}

	log.Infof("[%s] Published %d summaries for run %s", p.publisherID, len(summaries), runID)
	return nil
}
