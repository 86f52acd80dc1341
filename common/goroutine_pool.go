package common

import (
	"fmt"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

type PoolConfig struct {
	MaxWorkers int
}

// NewPool creates the worker pool comparison runs are fanned out on.
func NewPool(config PoolConfig) (*ants.Pool, error) {
	if config.MaxWorkers < 1 {
		return nil, fmt.Errorf("pool needs at least one worker, got %d", config.MaxWorkers)
	}

	pool, err := ants.NewPool(config.MaxWorkers)
	if err != nil {
		log.Errorf("Failed to create ants goroutine_pool: %v", err)
		return nil, err
	}

	log.Debugf("goroutine_pool created with %d workers", config.MaxWorkers)
	return pool, nil
}
