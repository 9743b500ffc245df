package metrics

import "time"

// Collector periodically samples a replica's CRDT value into QuerySize.
type Collector struct {
	summarize func() any
	interval  time.Duration
	stopCh    chan struct{}
}

// NewCollector builds a Collector that calls summarize on each tick.
func NewCollector(interval time.Duration, summarize func() any) *Collector {
	return &Collector{
		summarize: summarize,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start begins collecting metrics.
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

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	QuerySize.Set(float64(querySize(c.summarize())))
}

func querySize(v any) int {
	switch q := v.(type) {
	case []string:
		return len(q)
	case uint64:
		return int(q)
	case int64:
		return int(q)
	default:
		return 0
	}
}
