package repository

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/mapleleafu/pongarena/pongarena-backend/registry"
	"github.com/redis/go-redis/v9"
)

const usernameKeyPrefix = "pong:username:"

// CachedAccounts puts a Redis cache in front of an account lookup. Cache
// failures fall through to the backing lookup.
type CachedAccounts struct {
    next   registry.AccountLookup
    client *redis.Client
    ttl    time.Duration
    logger *slog.Logger
}

func NewCachedAccounts(next registry.AccountLookup, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedAccounts {
    if logger == nil {
        logger = slog.Default()
    }
    return &CachedAccounts{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedAccounts) ResolveUsername(ctx context.Context, id int64) (string, error) {
    key := usernameKeyPrefix + strconv.FormatInt(id, 10)

    name, err := c.client.Get(ctx, key).Result()
    switch {
    case err == nil:
        return name, nil
    case !errors.Is(err, redis.Nil):
        c.logger.Warn("username cache read failed", "player_id", id, "error", err)
    }

    name, err = c.next.ResolveUsername(ctx, id)
    if err != nil {
        return "", err
    }
    if err := c.client.Set(ctx, key, name, c.ttl).Err(); err != nil {
        c.logger.Warn("username cache write failed", "player_id", id, "error", err)
    }
    return name, nil
}

// ConnectRedis returns a client that answered a ping.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
    client := redis.NewClient(&redis.Options{
        Addr:         addr,
        DialTimeout:  5 * time.Second,
        ReadTimeout:  time.Second,
        WriteTimeout: time.Second,
    })
    if err := client.Ping(ctx).Err(); err != nil {
        client.Close()
        return nil, err
    }
    return client, nil
}
