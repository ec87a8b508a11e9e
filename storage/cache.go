package storage

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

// Backend is the persistence contract shared by SQLStore, TableStore and Cache.
type Backend interface {
	Ping(ctx context.Context) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error)
	UpdateCategory(ctx context.Context, id int64, patch domain.CategoryPatch) (domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) (int, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
	GetTask(ctx context.Context, id int64) (domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error)
	UpdatePositions(ctx context.Context, updates []domain.PositionUpdate) error
	DeleteTask(ctx context.Context, id int64) error
}

var (
	_ Backend = (*SQLStore)(nil)
	_ Backend = (*TableStore)(nil)
	_ Backend = (*Cache)(nil)
)

const (
	categoriesCacheKey = "board:categories"
	tasksCacheKey      = "board:tasks"
)

// Cache wraps a Backend with Redis-backed caching for the list reads. Every
// write evicts both lists, whether or not it succeeded.
//
// Each eviction starts a new generation. A list read from the backend is only
// cached if no eviction happened while it was in flight, and reads of
// different generations never share a singleflight call.
type Cache struct {
	base  Backend
	redis *redis.Client
	ttl   time.Duration
	sf    singleflight.Group
	gen   atomic.Uint64
}

// NewCache creates a caching Backend wrapper using the provided Redis client and TTL.
func NewCache(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Ping(ctx context.Context) error {
	if err := c.base.Ping(ctx); err != nil {
		return err
	}
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

func (c *Cache) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var cached []domain.Category
	if c.load(ctx, categoriesCacheKey, &cached) {
		return cached, nil
	}
	gen := c.gen.Load()
	v, err, _ := c.sf.Do(flightKey(categoriesCacheKey, gen), func() (any, error) {
		cats, err := c.base.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, categoriesCacheKey, gen, cats)
		return cats, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneCategories(v.([]domain.Category)), nil
}

func (c *Cache) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var cached []domain.Task
	if c.load(ctx, tasksCacheKey, &cached) {
		return cached, nil
	}
	gen := c.gen.Load()
	v, err, _ := c.sf.Do(flightKey(tasksCacheKey, gen), func() (any, error) {
		tasks, err := c.base.ListTasks(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, tasksCacheKey, gen, tasks)
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneTasks(v.([]domain.Task)), nil
}

func (c *Cache) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return c.base.GetTask(ctx, id)
}

func (c *Cache) CreateCategory(ctx context.Context, cat domain.Category) (domain.Category, error) {
	defer c.evict(ctx)
	return c.base.CreateCategory(ctx, cat)
}

func (c *Cache) UpdateCategory(ctx context.Context, id int64, patch domain.CategoryPatch) (domain.Category, error) {
	defer c.evict(ctx)
	return c.base.UpdateCategory(ctx, id, patch)
}

func (c *Cache) DeleteCategory(ctx context.Context, id int64) (int, error) {
	defer c.evict(ctx)
	return c.base.DeleteCategory(ctx, id)
}

func (c *Cache) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	defer c.evict(ctx)
	return c.base.CreateTask(ctx, t)
}

func (c *Cache) UpdateTask(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error) {
	defer c.evict(ctx)
	return c.base.UpdateTask(ctx, id, patch)
}

func (c *Cache) UpdatePositions(ctx context.Context, updates []domain.PositionUpdate) error {
	defer c.evict(ctx)
	return c.base.UpdatePositions(ctx, updates)
}

func (c *Cache) DeleteTask(ctx context.Context, id int64) error {
	defer c.evict(ctx)
	return c.base.DeleteTask(ctx, id)
}

func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			log.WithError(err).WithField("key", key).Warn("board cache read failed")
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

// store caches v unless an eviction has happened since gen was read. An
// eviction racing with the write is caught by the second check.
func (c *Cache) store(ctx context.Context, key string, gen uint64, v any) {
	if c.redis == nil || c.ttl == 0 || c.gen.Load() != gen {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return
	}
	if c.gen.Load() != gen {
		_ = c.redis.Del(context.WithoutCancel(ctx), key).Err()
	}
}

// evict starts a new generation before deleting, so a read still in flight
// either skips its write or removes it again.
func (c *Cache) evict(ctx context.Context) {
	c.gen.Add(1)
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(context.WithoutCancel(ctx), categoriesCacheKey, tasksCacheKey).Err(); err != nil {
		log.WithError(err).Warn("board cache eviction failed")
	}
}

func flightKey(key string, gen uint64) string {
	return key + "@" + strconv.FormatUint(gen, 10)
}

func cloneCategories(in []domain.Category) []domain.Category {
	out := make([]domain.Category, len(in))
	copy(out, in)
	return out
}

func cloneTasks(in []domain.Task) []domain.Task {
	out := make([]domain.Task, len(in))
	copy(out, in)
	return out
}
