package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mapleleafu/pongarena/pongarena-backend/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLookup struct {
    calls int
    names map[int64]string
}

func (l *countingLookup) ResolveUsername(_ context.Context, id int64) (string, error) {
    l.calls++
    name, ok := l.names[id]
    if !ok {
        return "", models.ErrAccountNotFound
    }
    return name, nil
}

// A cache that cannot be reached must not hide the backing store.
func TestCachedAccountsFallsThroughWhenRedisIsDown(t *testing.T) {
    client := redis.NewClient(&redis.Options{
        Addr:        "127.0.0.1:1",
        DialTimeout: 100 * time.Millisecond,
        MaxRetries:  -1,
    })
    defer client.Close()

    next := &countingLookup{names: map[int64]string{1: "alice"}}
    accounts := NewCachedAccounts(next, client, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

    name, err := accounts.ResolveUsername(context.Background(), 1)
    require.NoError(t, err)
    assert.Equal(t, "alice", name)

    _, err = accounts.ResolveUsername(context.Background(), 2)
    assert.True(t, errors.Is(err, models.ErrAccountNotFound))
    assert.Equal(t, 2, next.calls)
}
