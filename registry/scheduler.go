package registry

import (
	"context"
	"time"

	"github.com/mapleleafu/pongarena/pongarena-backend/game"
	"github.com/mapleleafu/pongarena/pongarena-backend/models"
)

// Start launches the tick, broadcast and flush loops.
func (r *Registry) Start() {
    r.startOnce.Do(func() {
        r.wg.Add(3)
        go r.every("tick", r.opts.TickInterval, r.Tick)
        go r.every("broadcast", r.opts.BroadcastInterval, r.Broadcast)
        go r.every("flush", r.opts.FlushInterval, r.Flush)
        r.logger.Info("registry started",
            "tick", r.opts.TickInterval,
            "broadcast", r.opts.BroadcastInterval,
            "flush", r.opts.FlushInterval)
    })
}

// Stop halts the loops, then drains the persistence queue. Safe to call more than once.
func (r *Registry) Stop() {
    r.stopOnce.Do(func() {
        close(r.stopCh)
        r.wg.Wait()
        r.persist.close()
        r.logger.Info("registry stopped")
    })
}

func (r *Registry) every(name string, interval time.Duration, fn func()) {
    defer r.wg.Done()

    ticker := time.NewTicker(interval)
    defer ticker.Stop()

    for {
        select {
        case <-r.stopCh:
            return
        case <-ticker.C:
            r.safely(name, fn)
        }
    }
}

func (r *Registry) safely(name string, fn func()) {
    defer func() {
        if rec := recover(); rec != nil {
            r.logger.Error("loop iteration panicked", "loop", name, "panic", rec)
        }
    }()
    fn()
}

// Tick advances every match once and applies the pool policies.
func (r *Registry) Tick() {
    r.mu.Lock()
    defer r.mu.Unlock()

    now := r.opts.Clock()
    for _, p := range r.pools {
        for id, m := range p.matches {
            key := Key{Type: p.gameType, ID: id}
            if r.tickMatch(p, key, m, now) {
                delete(p.matches, id)
            }
        }
    }
}

func (r *Registry) tickMatch(p *pool, key Key, m *game.Match, now time.Time) (remove bool) {
    defer func() {
        if rec := recover(); rec != nil {
            r.logger.Error("match tick panicked", "match", key, "panic", rec)
            remove = false
        }
    }()

    m.Advance(now)

    if m.Status() == game.StatusPaused && m.PausedFor(now) > r.opts.PauseTimeout {
        if p.policy.OnPauseTimeout(r, key, m, now) {
            return true
        }
    }
    if m.Status() == game.StatusFinished {
        p.policy.OnFinish(r, key, m, now)
        return true
    }
    return false
}

// Broadcast sends the current state of every match that has a bound connection.
// Snapshots are taken under the lock and encoded outside it.
func (r *Registry) Broadcast() {
    r.mu.Lock()
    sink := r.sink
    r.mu.Unlock()

    for _, key := range sink.BoundMatches() {
        snap, ok := r.Snapshot(key)
        if !ok {
            continue
        }
        msg, err := models.Encode(models.MsgState, snap)
        if err != nil {
            r.logger.Error("encode state", "match", key, "error", err)
            continue
        }
        sink.Broadcast(key, msg)
    }
}

// Flush queues a progress write for every live match. Jobs are queued under
// the lock so a match's last progress write is always queued before its
// terminal write.
func (r *Registry) Flush() {
    r.mu.Lock()
    defer r.mu.Unlock()

    for _, p := range r.pools {
        for id, m := range p.matches {
            mp := progressOf(m)
            r.persist.enqueueProgress(job{
                name: "flush",
                key:  Key{Type: p.gameType, ID: id},
                run:  func(ctx context.Context) error { return r.store.SaveProgress(ctx, mp) },
            })
        }
    }
}

// sendFinal pushes the last state of a match before its connections are closed.
func (r *Registry) sendFinal(key Key, m *game.Match) {
    msg, err := models.Encode(models.MsgState, m.Snapshot())
    if err != nil {
        r.logger.Error("encode final state", "match", key, "error", err)
        return
    }
    r.sink.Broadcast(key, msg)
}

func (r *Registry) archive(key Key, doc models.MatchArchive) {
    if a := r.opts.Archiver; a != nil {
        r.persist.enqueueTerminal(job{
            name: "archive",
            key:  key,
            run:  func(ctx context.Context) error { return a.Archive(ctx, doc) },
        })
    }
    if p := r.opts.Publisher; p != nil {
        r.persist.enqueueTerminal(job{
            name: "publish",
            key:  key,
            run:  func(ctx context.Context) error { return p.PublishMatchEnded(ctx, doc) },
        })
    }
}
