package pipeline

import (
	"sync"

	"github.com/couchcryptid/rainfall-idf-service/internal/domain"
)

// ReportCache is a thread-safe LRU of reports keyed by domain.RequestKey.
// Analyses are deterministic, so a replayed request is answered from the cache.
// A cache with maxEntries <= 0 stores nothing.
type ReportCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.AnalysisReport
	prev  *entry
	next  *entry
}

// NewReportCache creates a cache holding at most maxEntries reports.
func NewReportCache(maxEntries int) *ReportCache {
	return &ReportCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

// Get returns the cached report for key and marks it most recently used.
func (c *ReportCache) Get(key string) (domain.AnalysisReport, bool) {
	if c == nil {
		return domain.AnalysisReport{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.AnalysisReport{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

// Put stores a report, evicting the least recently used one when full.
func (c *ReportCache) Put(key string, value domain.AnalysisReport) {
	if c == nil || c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

// Len returns the number of cached reports.
func (c *ReportCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ReportCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *ReportCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *ReportCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *ReportCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
