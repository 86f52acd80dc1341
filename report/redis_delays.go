package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"
	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/metrics"
)

// DefaultRecentDelays is how many delays are kept per list.
const DefaultRecentDelays = 100

func NewRedisPool(address string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", address)
		},
	}
}

// DelayKey names the list of end-to-end delays of one algorithm at one scale.
func DelayKey(runID, scale, algorithm string) string {
	return fmt.Sprintf("node_selection:%s:%s:%s", runID, scale, algorithm)
}

// PushDelays appends the delay of every selected record to its list, keeping the last keep
// entries.
func PushDelays(conn redis.Conn, runID string, records []metrics.Record, keep int) error {
	if keep <= 0 {
		keep = DefaultRecentDelays
	}
	touched := map[string]bool{}
	for _, rec := range records {
		if rec.Delay == nil {
			continue
		}
		key := DelayKey(runID, rec.Scale, rec.Algorithm)
		if _, err := conn.Do("RPUSH", key, strconv.FormatFloat(*rec.Delay, 'f', -1, 64)); err != nil {
			return fmt.Errorf("failed to push delay to %s: %w", key, err)
		}
		touched[key] = true
	}
	for key := range touched {
		if _, err := conn.Do("LTRIM", key, -keep, -1); err != nil {
			return fmt.Errorf("failed to trim %s: %w", key, err)
		}
	}
	log.Infof("Pushed delays of run %s to %d lists", runID, len(touched))
	return nil
}

// AverageDelay averages the last n delays stored under key. It returns the number of values
// it averaged.
func AverageDelay(conn redis.Conn, key string, n int) (float64, int, error) {
	values, err := redis.Float64s(conn.Do("LRANGE", key, -n, -1))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to retrieve %s from redis: %w", key, err)
	}
	if len(values) == 0 {
		log.Infof("No delays found for key: %s", key)
		return 0, 0, nil
	}

	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values)), len(values), nil
}

// RecentAverages reads back the last n delays of every summarized algorithm and returns their
// averages keyed by list name. Lists without delays are left out.
func RecentAverages(conn redis.Conn, runID string, summaries []metrics.Summary, n int) (map[string]float64, error) {
	result := make(map[string]float64)
	for _, s := range summaries {
		key := DelayKey(runID, s.Scale, s.Algorithm)
		avg, count, err := AverageDelay(conn, key, n)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			result[key] = avg
		}
	}
	return result, nil
}
