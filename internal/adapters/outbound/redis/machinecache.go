// Package redis provides a Redis implementation of the MachineCache port.
//
// The cache is a read-through front for the machine registry: entries are
// written on authorization hits and dropped synchronously by every
// administrative mutation, so an evicted or expired entry is only ever a
// cache miss, never stale authority.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/bridgefi/mxbridge/internal/domain/entity"
	"github.com/bridgefi/mxbridge/internal/ports/outbound"
)

// Compile-time check that MachineCache implements outbound.MachineCache
var _ outbound.MachineCache = (*MachineCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long cached entries live before expiring
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		TTL:       10 * time.Minute,
		KeyPrefix: "mxbridge",
	}
}

// MachineCache is a Redis implementation of the outbound.MachineCache port.
type MachineCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewMachineCache creates a new Redis machine cache.
func NewMachineCache(cfg Config, logger *slog.Logger) (*MachineCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "redis-cache")

	return &MachineCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger,
	}, nil
}

// Ping checks the Redis connection.
func (c *MachineCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *MachineCache) Close() error {
	return c.client.Close()
}

// key generates a cache key in the format prefix:machine:address
func (c *MachineCache) key(address common.Address) string {
	return fmt.Sprintf("%s:machine:%s", c.keyPrefix, address.Hex())
}

// cachedMachine is the stored representation; fees only, the address is the key.
type cachedMachine struct {
	BuyFee  uint64 `json:"buyFee"`
	SellFee uint64 `json:"sellFee"`
}

// Get retrieves a cached machine. A miss is (zero, false, nil).
func (c *MachineCache) Get(ctx context.Context, address common.Address) (entity.Machine, bool, error) {
	data, err := c.client.Get(ctx, c.key(address)).Bytes()
	if err == redis.Nil {
		return entity.Machine{}, false, nil
	}
	if err != nil {
		return entity.Machine{}, false, fmt.Errorf("failed to get machine: %w", err)
	}

	var cached cachedMachine
	if err := json.Unmarshal(data, &cached); err != nil {
		// A corrupt entry is a miss; overwritten on the next Set.
		c.logger.Warn("dropping undecodable cache entry", "key", c.key(address), "error", err)
		return entity.Machine{}, false, nil
	}

	return entity.Machine{
		Address: address,
		BuyFee:  cached.BuyFee,
		SellFee: cached.SellFee,
	}, true, nil
}

// Set caches a machine for the configured TTL.
func (c *MachineCache) Set(ctx context.Context, m entity.Machine) error {
	data, err := json.Marshal(cachedMachine{BuyFee: m.BuyFee, SellFee: m.SellFee})
	if err != nil {
		return fmt.Errorf("failed to encode machine: %w", err)
	}
	if err := c.client.Set(ctx, c.key(m.Address), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache machine: %w", err)
	}
	return nil
}

// Invalidate drops the cached entry for address. Deleting an absent key is
// not an error.
func (c *MachineCache) Invalidate(ctx context.Context, address common.Address) error {
	if err := c.client.Del(ctx, c.key(address)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate machine: %w", err)
	}
	return nil
}
