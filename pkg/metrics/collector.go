package metrics

import (
	"time"

	"github.com/cuemby/wharf/pkg/log"
	"github.com/cuemby/wharf/pkg/types"
)

// ReleaseLister is the storage subset the collector reads
type ReleaseLister interface {
	ListReleases() ([]*types.Release, error)
}

// Collector periodically refreshes release gauges from storage
type Collector struct {
	releases ReleaseLister
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector that refreshes every 15 seconds
func NewCollector(releases ReleaseLister) *Collector {
	return &Collector{
		releases: releases,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	releases, err := c.releases.ListReleases()
	if err != nil {
		logger := log.WithComponent("metrics")
		logger.Warn().Err(err).Msg("Failed to list releases")
		return
	}

	counts := map[types.ReleaseStatus]int{
		types.ReleaseStatusPending:    0,
		types.ReleaseStatusInProgress: 0,
		types.ReleaseStatusSuccess:    0,
		types.ReleaseStatusFailed:     0,
	}
	active := 0
	for _, r := range releases {
		counts[r.Status]++
		if r.Active {
			active++
		}
	}

	for status, n := range counts {
		ReleasesTotal.WithLabelValues(string(status)).Set(float64(n))
	}
	ActiveReleases.Set(float64(active))
}
