package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/talentflow/ats-backend/models"
	"github.com/talentflow/ats-backend/shared"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Data      interface{}
	ExpiresAt time.Time
}

func (ce *CacheEntry) expiredAt(now time.Time) bool {
	return now.After(ce.ExpiresAt)
}

// CacheService is a bounded in-memory TTL cache
type CacheService struct {
	cache      map[string]*CacheEntry
	mutex      sync.RWMutex
	defaultTTL time.Duration
	maxSize    int
	now        func() time.Time

	hits   int64
	misses int64
}

// NewCacheService creates a cache holding at most maxSize entries
func NewCacheService(defaultTTL time.Duration, maxSize int) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &CacheService{
		cache:      make(map[string]*CacheEntry),
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (cs *CacheService) WithClock(now func() time.Time) *CacheService {
	cs.now = now
	return cs
}

// Get retrieves a value from cache
func (cs *CacheService) Get(key string) (interface{}, bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	entry, exists := cs.cache[key]
	if !exists || entry.expiredAt(cs.now()) {
		cs.misses++
		return nil, false
	}

	cs.hits++
	return entry.Data, true
}

// Set stores a value in cache with default TTL
func (cs *CacheService) Set(key string, value interface{}) {
	cs.SetWithTTL(key, value, cs.defaultTTL)
}

// SetWithTTL stores a value in cache with custom TTL
func (cs *CacheService) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if _, exists := cs.cache[key]; !exists && len(cs.cache) >= cs.maxSize {
		cs.evictOldest()
	}

	cs.cache[key] = &CacheEntry{
		Data:      value,
		ExpiresAt: cs.now().Add(ttl),
	}
}

// evictOldest removes the entry closest to expiry
func (cs *CacheService) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range cs.cache {
		if oldestKey == "" || entry.ExpiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.ExpiresAt
		}
	}

	if oldestKey != "" {
		delete(cs.cache, oldestKey)
	}
}

// Clear removes all values from cache
func (cs *CacheService) Clear() {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.cache = make(map[string]*CacheEntry)
}

// Size returns the number of items in cache
func (cs *CacheService) Size() int {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	return len(cs.cache)
}

// Sweep removes expired entries and returns how many were dropped
func (cs *CacheService) Sweep() int {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	now := cs.now()
	removed := 0
	for key, entry := range cs.cache {
		if entry.expiredAt(now) {
			delete(cs.cache, key)
			removed++
		}
	}
	return removed
}

// StartCleanup sweeps every interval until ctx is cancelled
func (cs *CacheService) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := cs.Sweep(); removed > 0 {
				logrus.WithFields(logrus.Fields{
					"component": "CacheService",
					"removed":   removed,
				}).Debug("Expired cache entries removed")
			}
		}
	}
}

// GetCacheStats returns cache statistics
func (cs *CacheService) GetCacheStats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	return map[string]interface{}{
		"size":     len(cs.cache),
		"max_size": cs.maxSize,
		"hits":     cs.hits,
		"misses":   cs.misses,
		"type":     "in-memory",
	}
}

// catalogSource is the uncached catalog. *CatalogService implements it.
type catalogSource interface {
	ListCompanies(ctx context.Context, search string, limit int) ([]models.PublicCompany, error)
	ListJobs(ctx context.Context, filter models.PublicJobFilter) (*models.PublicJobPage, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.PublicJob, error)
}

// CachedCatalogService wraps the public catalog with a read-through cache.
// Errors are never cached.
type CachedCatalogService struct {
	catalog        catalogSource
	cache          *CacheService
	serviceMetrics *shared.ServiceMetrics
}

func NewCachedCatalogService(catalog catalogSource, cache *CacheService) *CachedCatalogService {
	return &CachedCatalogService{
		catalog:        catalog,
		cache:          cache,
		serviceMetrics: shared.NewServiceMetrics("Catalog_Cache"),
	}
}

// ListCompanies returns active companies, using cache when possible
func (c *CachedCatalogService) ListCompanies(ctx context.Context, search string, limit int) ([]models.PublicCompany, error) {
	cacheKey := fmt.Sprintf("companies:%s:%d", strings.ToLower(strings.TrimSpace(search)), limit)
	if cached, found := c.cache.Get(cacheKey); found {
		if companies, ok := cached.([]models.PublicCompany); ok {
			c.serviceMetrics.RecordOutcome("hit")
			return companies, nil
		}
	}
	c.serviceMetrics.RecordOutcome("miss")

	companies, err := c.catalog.ListCompanies(ctx, search, limit)
	if err != nil {
		return nil, err
	}
	c.cache.Set(cacheKey, companies)
	return companies, nil
}

// ListJobs returns a page of open jobs, using cache when possible
func (c *CachedCatalogService) ListJobs(ctx context.Context, filter models.PublicJobFilter) (*models.PublicJobPage, error) {
	cacheKey := jobFilterKey(filter)
	if cached, found := c.cache.Get(cacheKey); found {
		if page, ok := cached.(*models.PublicJobPage); ok {
			c.serviceMetrics.RecordOutcome("hit")
			return page, nil
		}
	}
	c.serviceMetrics.RecordOutcome("miss")

	page, err := c.catalog.ListJobs(ctx, filter)
	if err != nil {
		return nil, err
	}
	c.cache.Set(cacheKey, page)
	return page, nil
}

// GetJob returns one open job, using cache when possible
func (c *CachedCatalogService) GetJob(ctx context.Context, jobID uuid.UUID) (*models.PublicJob, error) {
	cacheKey := "job:" + jobID.String()
	if cached, found := c.cache.Get(cacheKey); found {
		if job, ok := cached.(*models.PublicJob); ok {
			c.serviceMetrics.RecordOutcome("hit")
			return job, nil
		}
	}
	c.serviceMetrics.RecordOutcome("miss")

	job, err := c.catalog.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(cacheKey, job)
	return job, nil
}

// GetCacheStats returns statistics of the underlying cache
func (c *CachedCatalogService) GetCacheStats() map[string]interface{} {
	return c.cache.GetCacheStats()
}

// ClearCache drops every cached listing and returns how many entries were removed
func (c *CachedCatalogService) ClearCache() int {
	removed := c.cache.Size()
	c.cache.Clear()
	logrus.WithFields(logrus.Fields{
		"component": "CachedCatalogService",
		"removed":   removed,
	}).Info("Catalog cache cleared")
	return removed
}

// GetServiceMetrics returns hit and miss counters
func (c *CachedCatalogService) GetServiceMetrics() *shared.ServiceMetrics {
	return c.serviceMetrics
}

func jobFilterKey(f models.PublicJobFilter) string {
	company := ""
	if f.CompanyID != nil {
		company = f.CompanyID.String()
	}
	return strings.Join([]string{
		"jobs",
		fmt.Sprint(f.Page),
		fmt.Sprint(f.Limit),
		strings.ToLower(strings.TrimSpace(f.Search)),
		company,
		strings.ToLower(f.CompanySlug),
		f.EmploymentType,
		f.Modality,
		strings.ToLower(f.Location),
		strings.ToLower(f.Department),
	}, "|")
}
