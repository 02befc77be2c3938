package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/redis/go-redis/v9"

	"tutor-backend/internal/models"
)

const syllabusCacheKey = "cache:syllabus"

// syllabusCache is the subset of the Redis client the catalog uses.
type syllabusCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// TopicCatalog is a read-through cache over the syllabus file. Lookups go
// memory, then Redis (when configured), then disk.
type TopicCatalog struct {
	path  string
	cache syllabusCache
	ttl   time.Duration

	mu     sync.RWMutex
	loaded models.Syllabus
}

func NewTopicCatalog(path string, redisClient *redis.Client, ttl time.Duration) *TopicCatalog {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &TopicCatalog{path: path, ttl: ttl}
	if redisClient != nil {
		c.cache = redisClient
	}
	return c
}

// ForClass returns the topics of one class key such as "class_5".
// A missing class yields (nil, nil).
func (c *TopicCatalog) ForClass(ctx context.Context, classKey string) (models.ClassTopics, error) {
	syllabus, err := c.Syllabus(ctx)
	if err != nil {
		return nil, err
	}
	return syllabus[classKey], nil
}

func (c *TopicCatalog) Syllabus(ctx context.Context) (models.Syllabus, error) {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded != nil {
		return loaded, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded != nil {
		return c.loaded, nil
	}

	syllabus, err := c.fromRedis(ctx)
	if err != nil || syllabus == nil {
		syllabus, err = c.fromFile()
		if err != nil {
			return nil, err
		}
		c.storeRedis(ctx, syllabus)
	}

	c.loaded = syllabus
	return syllabus, nil
}

// Invalidate drops every cached tier so the next lookup re-reads the file.
// Both tiers are cleared under the lock, so no lookup can refill memory
// from the Redis copy in between.
func (c *TopicCatalog) Invalidate(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.Del(ctx, syllabusCacheKey).Err(); err != nil {
			log.Printf("topic catalog: failed to clear redis cache: %v", err)
		}
	}
	c.loaded = nil
}

// Watch invalidates the catalog whenever the syllabus file changes. It
// returns once the watcher is running; the watch stops with ctx.
func (c *TopicCatalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Editors often replace the file, so watch the directory.
	dir := filepath.Dir(c.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(c.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					log.Printf("topic catalog: %s changed (%s), invalidating", event.Name, event.Op)
					c.Invalidate(ctx)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("topic catalog: watcher error: %v", err)
			}
		}
	}()

	return nil
}

func (c *TopicCatalog) fromFile() (models.Syllabus, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read syllabus: %w", err)
	}

	var syllabus models.Syllabus
	if err := json.Unmarshal(data, &syllabus); err != nil {
		return nil, fmt.Errorf("failed to parse syllabus: %w", err)
	}
	if syllabus == nil {
		syllabus = models.Syllabus{}
	}
	log.Printf("topic catalog: loaded %d classes from %s", len(syllabus), c.path)
	return syllabus, nil
}

func (c *TopicCatalog) fromRedis(ctx context.Context) (models.Syllabus, error) {
	if c.cache == nil {
		return nil, nil
	}

	raw, err := c.cache.Get(ctx, syllabusCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var syllabus models.Syllabus
	if err := json.Unmarshal(raw, &syllabus); err != nil {
		return nil, err
	}
	return syllabus, nil
}

func (c *TopicCatalog) storeRedis(ctx context.Context, syllabus models.Syllabus) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(syllabus)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, syllabusCacheKey, data, c.ttl).Err(); err != nil {
		log.Printf("topic catalog: failed to populate redis cache: %v", err)
	}
}
