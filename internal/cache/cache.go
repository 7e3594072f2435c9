// Package cache provides the in-memory, key-addressed cache shared by every dashboard session.
//
// Entries are addressed by the canonical form of domain.FilterParams, expire lazily on lookup and
// are evicted by priority and recency when the cache is full. With dynamic TTL enabled the lease of
// an entry is recomputed on every hit from how often it is read and how slow it was to fetch.
package cache

import (
	"sync"
	"time"

	"github.com/fixora/dashboard/internal/domain"
	"github.com/fixora/dashboard/internal/metrics"
)

// Priority orders entries for eviction when dynamic TTL is enabled. Lower is evicted first.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

// Clock returns the current time. Tests replace it to control expiry.
type Clock func() time.Time

// Config bounds a cache. Zero values are not defaulted here; see DefaultConfig.
type Config struct {
	Name       string
	BaseTTL    time.Duration
	MinTTL     time.Duration
	MaxTTL     time.Duration
	MaxEntries int

	DynamicTTL    bool
	HotThreshold  int
	ColdThreshold int
	SlowLatency   time.Duration
	FastLatency   time.Duration

	AutoActivate      bool
	ActivationLatency time.Duration
	ActivationRepeats int
}

// DefaultConfig returns the bounds used for metrics data
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		BaseTTL:           5 * time.Minute,
		MinTTL:            30 * time.Second,
		MaxTTL:            15 * time.Minute,
		MaxEntries:        100,
		DynamicTTL:        false,
		HotThreshold:      5,
		ColdThreshold:     1,
		SlowLatency:       2 * time.Second,
		FastLatency:       200 * time.Millisecond,
		AutoActivate:      false,
		ActivationLatency: time.Second,
		ActivationRepeats: 2,
	}
}

// EntryInfo is the metadata of one entry as reported by Stats
type EntryInfo struct {
	Key         string        `json:"key"`
	CreatedAt   time.Time     `json:"created_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	LastAccess  time.Time     `json:"last_access"`
	AccessCount int           `json:"access_count"`
	Priority    Priority      `json:"priority,omitempty"`
	AvgLatency  time.Duration `json:"avg_latency"`
}

// Stats reports cache size, hit rate and per-entry metadata
type Stats struct {
	Name       string      `json:"name"`
	Active     bool        `json:"active"`
	Size       int         `json:"size"`
	MaxEntries int         `json:"max_entries"`
	Hits       int64       `json:"hits"`
	Misses     int64       `json:"misses"`
	Evictions  int64       `json:"evictions"`
	HitRate    float64     `json:"hit_rate"`
	Entries    []EntryInfo `json:"entries"`
}

type entry[T any] struct {
	data        T
	createdAt   time.Time
	expiresAt   time.Time
	lastAccess  time.Time
	accessCount int
	accessSeq   uint64
	priority    Priority
}

type latencyStat struct {
	total time.Duration
	count int
}

func (l latencyStat) avg() time.Duration {
	if l.count == 0 {
		return 0
	}
	return l.total / time.Duration(l.count)
}

// LocalCache is a key-addressed cache of T. It is safe for concurrent use.
type LocalCache[T any] struct {
	mu      sync.Mutex
	cfg     Config
	now     Clock
	entries map[string]*entry[T]

	latency  map[string]latencyStat
	requests map[string]int
	active   bool

	seq       uint64
	hits      int64
	misses    int64
	evictions int64
}

// Option configures a LocalCache
type Option func(*options)

type options struct {
	clock Clock
}

// WithClock replaces time.Now
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// New creates a cache bounded by cfg
func New[T any](cfg Config, opts ...Option) *LocalCache[T] {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.MinTTL > 0 && cfg.MaxTTL > 0 && cfg.MinTTL > cfg.MaxTTL {
		cfg.MinTTL, cfg.MaxTTL = cfg.MaxTTL, cfg.MinTTL
	}

	return &LocalCache[T]{
		cfg:      cfg,
		now:      o.clock,
		entries:  make(map[string]*entry[T]),
		latency:  make(map[string]latencyStat),
		requests: make(map[string]int),
		active:   !cfg.AutoActivate,
	}
}

// Name returns the configured cache name
func (c *LocalCache[T]) Name() string {
	return c.cfg.Name
}

// Get returns the fresh entry for params
func (c *LocalCache[T]) Get(params domain.FilterParams) (T, bool) {
	return c.GetKey(params.CacheKey())
}

// GetKey returns the fresh entry stored under a canonical key. Expired entries are removed.
func (c *LocalCache[T]) GetKey(key string) (T, bool) {
	var zero T

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if !c.active {
		c.requests[key]++
		c.trimTracking()
		if c.cfg.ActivationRepeats > 0 && c.requests[key] > c.cfg.ActivationRepeats {
			c.active = true
		}
		c.recordMiss()
		return zero, false
	}

	e, ok := c.entries[key]
	if !ok {
		c.recordMiss()
		return zero, false
	}

	if !now.Before(e.expiresAt) {
		c.remove(key, "expired")
		c.recordMiss()
		return zero, false
	}

	c.seq++
	e.accessSeq = c.seq
	e.lastAccess = now
	e.accessCount++
	if c.cfg.DynamicTTL {
		e.expiresAt = now.Add(c.ttlFor(key, e.accessCount))
		e.priority = c.priorityFor(key, e.accessCount)
	}

	c.recordHit()
	return e.data, true
}

// Set stores data for params
func (c *LocalCache[T]) Set(params domain.FilterParams, data T) {
	c.SetKey(params.CacheKey(), data)
}

// SetKey stores data under a canonical key. A cache with no capacity, or one that has not
// activated yet, ignores the call.
func (c *LocalCache[T]) SetKey(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.MaxEntries <= 0 || !c.active {
		return
	}

	now := c.now()
	c.seq++

	if e, ok := c.entries[key]; ok {
		e.data = data
		e.createdAt = now
		e.lastAccess = now
		e.accessSeq = c.seq
		e.expiresAt = now.Add(c.ttlFor(key, e.accessCount))
		if c.cfg.DynamicTTL {
			e.priority = c.priorityFor(key, e.accessCount)
		}
		return
	}

	if len(c.entries) >= c.cfg.MaxEntries {
		c.purgeExpired(now)
	}
	for len(c.entries) >= c.cfg.MaxEntries {
		c.evictOne()
	}

	e := &entry[T]{
		data:       data,
		createdAt:  now,
		lastAccess: now,
		accessSeq:  c.seq,
		expiresAt:  now.Add(c.ttlFor(key, 0)),
	}
	if c.cfg.DynamicTTL {
		e.priority = c.priorityFor(key, 0)
	}
	c.entries[key] = e
	metrics.CacheEntries.WithLabelValues(c.cfg.Name).Set(float64(len(c.entries)))
}

// RecordLatency feeds the observed fetch latency of params into dynamic TTL and auto-activation
func (c *LocalCache[T]) RecordLatency(params domain.FilterParams, d time.Duration) {
	c.RecordLatencyKey(params.CacheKey(), d)
}

// RecordLatencyKey is RecordLatency for a canonical key
func (c *LocalCache[T]) RecordLatencyKey(key string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.latency[key]
	s.total += d
	s.count++
	c.latency[key] = s
	c.trimTracking()

	if !c.active && c.cfg.ActivationLatency > 0 && d > c.cfg.ActivationLatency {
		c.active = true
	}
}

// Delete removes the entry for params
func (c *LocalCache[T]) Delete(params domain.FilterParams) {
	c.DeleteKey(params.CacheKey())
}

// DeleteKey removes the entry stored under key
func (c *LocalCache[T]) DeleteKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		metrics.CacheEntries.WithLabelValues(c.cfg.Name).Set(float64(len(c.entries)))
	}
}

// Clear drops every entry and resets counters. Activation state is kept.
func (c *LocalCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry[T])
	c.latency = make(map[string]latencyStat)
	c.requests = make(map[string]int)
	c.hits, c.misses, c.evictions = 0, 0, 0
	metrics.CacheEntries.WithLabelValues(c.cfg.Name).Set(0)
}

// Len returns the number of stored entries, expired ones included
func (c *LocalCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Active reports whether the cache stores entries
func (c *LocalCache[T]) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Stats returns a point-in-time copy of the cache statistics
func (c *LocalCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Name:       c.cfg.Name,
		Active:     c.active,
		Size:       len(c.entries),
		MaxEntries: c.cfg.MaxEntries,
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		Entries:    make([]EntryInfo, 0, len(c.entries)),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	for k, e := range c.entries {
		s.Entries = append(s.Entries, EntryInfo{
			Key:         k,
			CreatedAt:   e.createdAt,
			ExpiresAt:   e.expiresAt,
			LastAccess:  e.lastAccess,
			AccessCount: e.accessCount,
			Priority:    e.priority,
			AvgLatency:  c.latency[k].avg(),
		})
	}
	return s
}

// ttlFor computes the lease of key. Without dynamic TTL it is always BaseTTL.
func (c *LocalCache[T]) ttlFor(key string, accessCount int) time.Duration {
	ttl := c.cfg.BaseTTL
	if !c.cfg.DynamicTTL {
		return ttl
	}

	switch {
	case c.cfg.HotThreshold > 0 && accessCount > c.cfg.HotThreshold:
		ttl *= 2
	case accessCount <= c.cfg.ColdThreshold:
		ttl /= 2
	}

	if avg := c.latency[key].avg(); c.latency[key].count > 0 {
		switch {
		case c.cfg.SlowLatency > 0 && avg > c.cfg.SlowLatency:
			ttl += ttl / 2
		case avg < c.cfg.FastLatency:
			ttl -= ttl / 4
		}
	}

	if c.cfg.MinTTL > 0 && ttl < c.cfg.MinTTL {
		ttl = c.cfg.MinTTL
	}
	if c.cfg.MaxTTL > 0 && ttl > c.cfg.MaxTTL {
		ttl = c.cfg.MaxTTL
	}
	return ttl
}

func (c *LocalCache[T]) priorityFor(key string, accessCount int) Priority {
	stat := c.latency[key]
	slow := stat.count > 0 && c.cfg.SlowLatency > 0 && stat.avg() > c.cfg.SlowLatency
	hot := c.cfg.HotThreshold > 0 && accessCount > c.cfg.HotThreshold

	switch {
	case hot || slow:
		return PriorityHigh
	case accessCount <= c.cfg.ColdThreshold:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// evictOne removes the least recently accessed entry, lowest priority first with dynamic TTL.
// The most recently accessed entry is never the victim while another one exists.
func (c *LocalCache[T]) evictOne() {
	var newest string
	var newestSeq uint64
	for k, e := range c.entries {
		if newest == "" || e.accessSeq > newestSeq {
			newest, newestSeq = k, e.accessSeq
		}
	}

	var victim string
	var ve *entry[T]
	for k, e := range c.entries {
		if k == newest && len(c.entries) > 1 {
			continue
		}
		if ve == nil || c.evictsBefore(e, ve) {
			victim, ve = k, e
		}
	}
	if ve != nil {
		c.remove(victim, "capacity")
	}
}

func (c *LocalCache[T]) evictsBefore(a, b *entry[T]) bool {
	if c.cfg.DynamicTTL && a.priority.rank() != b.priority.rank() {
		return a.priority.rank() < b.priority.rank()
	}
	return a.accessSeq < b.accessSeq
}

func (c *LocalCache[T]) purgeExpired(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			c.remove(k, "expired")
		}
	}
}

func (c *LocalCache[T]) remove(key, reason string) {
	delete(c.entries, key)
	c.evictions++
	metrics.CacheEvictions.WithLabelValues(c.cfg.Name, reason).Inc()
	metrics.CacheEntries.WithLabelValues(c.cfg.Name).Set(float64(len(c.entries)))
}

// trimTracking keeps the latency and request maps from growing without bound
func (c *LocalCache[T]) trimTracking() {
	limit := 4 * c.cfg.MaxEntries
	if limit < 256 {
		limit = 256
	}
	for k := range c.requests {
		if len(c.requests) <= limit {
			break
		}
		delete(c.requests, k)
	}
	for k := range c.latency {
		if len(c.latency) <= limit {
			break
		}
		if _, live := c.entries[k]; !live {
			delete(c.latency, k)
		}
	}
}

func (c *LocalCache[T]) recordHit() {
	c.hits++
	metrics.CacheHits.WithLabelValues(c.cfg.Name).Inc()
}

func (c *LocalCache[T]) recordMiss() {
	c.misses++
	metrics.CacheMisses.WithLabelValues(c.cfg.Name).Inc()
}
