package store

import (
	"time"

	"github.com/infoagent/infoagent/internal/profile"
	"github.com/infoagent/infoagent/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Cache for memory-by-ID lookups. Invalidated on update and delete.
	memoryCache *cache.Cache[int32, *Memory]
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:      driver,
		profile:     profile,
		memoryCache: cache.New[int32, *Memory](cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.memoryCache.Close()
	return s.driver.Close()
}
