package metrics

import (
	"context"
	"sync"
	"time"

	"media-migrator/internal/logging"
)

var collectorLog = logging.With("metrics")

// StatsProvider supplies the backlog figures the collector exports.
type StatsProvider interface {
	GetStats(ctx context.Context) (Stats, error)
}

// DBMetricsUpdater refreshes connection pool gauges.
type DBMetricsUpdater interface {
	UpdateDBMetrics()
}

// Stats holds the current migration backlog.
type Stats struct {
	NeverQueued    int64
	Pending        int64
	Processing     int64
	Done           int64
	Error          int64
	RunningTenants int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	db            DBMetricsUpdater
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewCollector creates a new metrics collector. db may be nil.
func NewCollector(provider StatsProvider, db DBMetricsUpdater, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		db:            db,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.wg.Wait()
}

func (c *Collector) collectLoop() {
	defer c.wg.Done()

	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.db != nil {
		c.db.UpdateDBMetrics()
	}
	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	stats, err := c.statsProvider.GetStats(ctx)
	if err != nil {
		collectorLog.Warn("Failed to collect migration stats: %v", err)
		return
	}

	MigrationItems.WithLabelValues("none").Set(float64(stats.NeverQueued))
	MigrationItems.WithLabelValues("pending").Set(float64(stats.Pending))
	MigrationItems.WithLabelValues("processing").Set(float64(stats.Processing))
	MigrationItems.WithLabelValues("done").Set(float64(stats.Done))
	MigrationItems.WithLabelValues("error").Set(float64(stats.Error))
	RunningTenants.Set(float64(stats.RunningTenants))

	collectorLog.Debug("Metrics collected: pending=%d processing=%d done=%d error=%d running=%d",
		stats.Pending, stats.Processing, stats.Done, stats.Error, stats.RunningTenants)
}
