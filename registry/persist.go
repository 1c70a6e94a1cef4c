package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type job struct {
    name string
    key  Key
    run  func(ctx context.Context) error
}

// persister runs store writes off the tick loop on a single worker, in two lanes:
//   - terminal writes (finalize, interrupt, archive, publish) happen once per
//     match and are never dropped;
//   - progress writes keep only the latest pending write per match, and a
//     terminal write for a match discards its pending progress.
//
// Terminal jobs run first. Failures are logged and not retried.
type persister struct {
    mu         sync.Mutex
    cond       *sync.Cond
    closed     bool
    terminal   []job
    pending    map[Key]job
    order      []Key
    maxPending int
    timeout    time.Duration
    logger     *slog.Logger
    done       chan struct{}
}

func newPersister(maxPending int, timeout time.Duration, logger *slog.Logger) *persister {
    p := &persister{
        pending:    make(map[Key]job),
        maxPending: maxPending,
        timeout:    timeout,
        logger:     logger,
        done:       make(chan struct{}),
    }
    p.cond = sync.NewCond(&p.mu)
    go p.run()
    return p
}

func (p *persister) run() {
    defer close(p.done)
    for {
        j, ok := p.next()
        if !ok {
            return
        }
        p.exec(j)
    }
}

// next blocks until a job is available. It reports false once the persister
// is closed and both lanes are empty.
func (p *persister) next() (job, bool) {
    p.mu.Lock()
    defer p.mu.Unlock()

    for {
        if len(p.terminal) > 0 {
            j := p.terminal[0]
            p.terminal[0] = job{}
            p.terminal = p.terminal[1:]
            return j, true
        }
        for len(p.order) > 0 {
            key := p.order[0]
            p.order = p.order[1:]
            if j, ok := p.pending[key]; ok {
                delete(p.pending, key)
                return j, true
            }
        }
        if p.closed {
            return job{}, false
        }
        p.cond.Wait()
    }
}

func (p *persister) exec(j job) {
    ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
    defer cancel()

    defer func() {
        if rec := recover(); rec != nil {
            p.logger.Error("persistence job panicked", "job", j.name, "match", j.key, "panic", rec)
        }
    }()

    if err := j.run(ctx); err != nil {
        p.logger.Error("persistence job failed", "job", j.name, "match", j.key, "error", err)
    }
}

// enqueueProgress never blocks. It replaces a write already pending for the
// same match, and drops the job when maxPending matches are already waiting.
func (p *persister) enqueueProgress(j job) bool {
    p.mu.Lock()
    defer p.mu.Unlock()

    if p.closed {
        p.logger.Warn("persistence stopped, dropping job", "job", j.name, "match", j.key)
        return false
    }
    if _, ok := p.pending[j.key]; ok {
        p.pending[j.key] = j
        return true
    }
    if len(p.pending) >= p.maxPending {
        p.logger.Warn("persistence queue full, dropping job", "job", j.name, "match", j.key)
        return false
    }
    p.pending[j.key] = j
    p.order = append(p.order, j.key)
    p.cond.Signal()
    return true
}

// enqueueTerminal never blocks and never drops a job while the persister is open.
func (p *persister) enqueueTerminal(j job) bool {
    p.mu.Lock()
    defer p.mu.Unlock()

    if p.closed {
        p.logger.Error("persistence stopped, losing terminal write", "job", j.name, "match", j.key)
        return false
    }
    delete(p.pending, j.key)
    p.terminal = append(p.terminal, j)
    p.cond.Signal()
    return true
}

// close stops intake and waits for queued jobs to finish.
func (p *persister) close() {
    p.mu.Lock()
    p.closed = true
    p.cond.Broadcast()
    p.mu.Unlock()
    <-p.done
}
