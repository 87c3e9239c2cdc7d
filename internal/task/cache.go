package task

import (
	"sync"
	"time"

	"github.com/phrazzld/scry-reports/internal/domain"
)

// DefaultRetention is how long a report stays in the cache after submission.
const DefaultRetention = 72 * time.Hour

// ReportCache maps sn to report for every report the process created.
// Entries are removed only by Sweep once they are older than the retention,
// whether or not they finished.
type ReportCache struct {
	mu        sync.RWMutex
	entries   map[string]*domain.Report
	retention time.Duration
}

// NewReportCache creates a cache. A non-positive retention uses DefaultRetention.
func NewReportCache(retention time.Duration) *ReportCache {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &ReportCache{
		entries:   make(map[string]*domain.Report),
		retention: retention,
	}
}

// Put stores a report.
func (c *ReportCache) Put(r *domain.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[r.SN()] = r
}

// Get returns the report with sn, or nil.
func (c *ReportCache) Get(sn string) *domain.Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[sn]
}

// Delete removes a report.
func (c *ReportCache) Delete(sn string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sn)
}

// Len returns the number of cached reports.
func (c *ReportCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep evicts reports created more than the retention before now and
// returns how many were evicted.
func (c *ReportCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for sn, r := range c.entries {
		if now.Sub(r.CreatedAt()) > c.retention {
			delete(c.entries, sn)
			evicted++
		}
	}
	return evicted
}
