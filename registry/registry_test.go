package registry_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mapleleafu/pongarena/pongarena-backend/game"
	"github.com/mapleleafu/pongarena/pongarena-backend/models"
	"github.com/mapleleafu/pongarena/pongarena-backend/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func testLogger() *slog.Logger {
    return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
    mu  sync.Mutex
    now time.Time
}

func newFakeClock() *fakeClock {
    return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.now = c.now.Add(d)
}

type fakeAccounts struct {
    names map[int64]string
    err   error
}

func (a fakeAccounts) ResolveUsername(_ context.Context, id int64) (string, error) {
    if a.err != nil {
        return "", a.err
    }
    name, ok := a.names[id]
    if !ok {
        return "", models.ErrAccountNotFound
    }
    return name, nil
}

type fakeStore struct {
    mu          sync.Mutex
    progress    []models.MatchProgress
    results     []models.MatchResult
    interrupted []int64
    resumable   []models.MatchRecord
    failWrites  bool
    saveDelay   time.Duration

    // ended holds ids that already got their terminal write; lateWrites
    // counts progress writes for them.
    ended      map[int64]bool
    lateWrites int
}

func (s *fakeStore) SaveProgress(_ context.Context, p models.MatchProgress) error {
    if s.saveDelay > 0 {
        time.Sleep(s.saveDelay)
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.failWrites {
        return errors.New("db down")
    }
    if s.ended[p.ID] {
        s.lateWrites++
    }
    s.progress = append(s.progress, p)
    return nil
}

func (s *fakeStore) FinalizeMatch(_ context.Context, r models.MatchResult) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.results = append(s.results, r)
    s.endLocked(r.ID)
    return nil
}

func (s *fakeStore) MarkInterrupted(_ context.Context, id int64) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.interrupted = append(s.interrupted, id)
    s.endLocked(id)
    return nil
}

func (s *fakeStore) endLocked(id int64) {
    if s.ended == nil {
        s.ended = make(map[int64]bool)
    }
    s.ended[id] = true
}

func (s *fakeStore) LoadResumable(context.Context) ([]models.MatchRecord, error) {
    return s.resumable, nil
}

func (s *fakeStore) progressCount() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.progress)
}

type fakeSink struct {
    mu     sync.Mutex
    bound  []registry.Key
    sent   map[registry.Key][][]byte
    closed map[registry.Key]string
}

func newFakeSink(bound ...registry.Key) *fakeSink {
    return &fakeSink{
        bound:  bound,
        sent:   make(map[registry.Key][][]byte),
        closed: make(map[registry.Key]string),
    }
}

func (s *fakeSink) BoundMatches() []registry.Key {
    s.mu.Lock()
    defer s.mu.Unlock()
    return append([]registry.Key(nil), s.bound...)
}

func (s *fakeSink) Broadcast(key registry.Key, msg []byte) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.sent[key] = append(s.sent[key], msg)
}

func (s *fakeSink) CloseMatch(key registry.Key, reason string) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.closed[key] = reason
}

type recordingArchive struct {
    mu   sync.Mutex
    docs []models.MatchArchive
}

func (a *recordingArchive) Archive(_ context.Context, doc models.MatchArchive) error {
    a.mu.Lock()
    defer a.mu.Unlock()
    a.docs = append(a.docs, doc)
    return nil
}

func (a *recordingArchive) PublishMatchEnded(ctx context.Context, doc models.MatchArchive) error {
    return a.Archive(ctx, doc)
}

type env struct {
    reg     *registry.Registry
    clock   *fakeClock
    store   *fakeStore
    sink    *fakeSink
    archive *recordingArchive
    events  *recordingArchive
}

func newEnv(t *testing.T) *env {
    t.Helper()
    return newEnvWith(t, registry.Options{}, &fakeStore{})
}

// newEnvWith fills in the fake clock, seeded rand and recorders on top of opts.
func newEnvWith(t *testing.T, opts registry.Options, store *fakeStore) *env {
    t.Helper()
    e := &env{
        clock:   newFakeClock(),
        store:   store,
        sink:    newFakeSink(),
        archive: &recordingArchive{},
        events:  &recordingArchive{},
    }
    accounts := fakeAccounts{names: map[int64]string{1: "alice", 2: "bob", 3: "carol"}}
    var seed uint64
    opts.Clock = e.clock.Now
    opts.NewRand = func() *rand.Rand {
        seed++
        return rand.New(rand.NewSource(seed))
    }
    opts.Archiver = e.archive
    opts.Publisher = e.events
    e.reg = registry.New(accounts, e.store, testLogger(), opts)
    e.reg.SetBroadcaster(e.sink)
    t.Cleanup(e.reg.Stop)
    return e
}

// tick advances the fake clock by one tick interval and runs the scheduler once.
func (e *env) tick() {
    e.clock.Advance(10 * time.Millisecond)
    e.reg.Tick()
}

func (e *env) startMultiplayer(t *testing.T, id int64) registry.Key {
    t.Helper()
    require.NoError(t, e.reg.CreateMultiplayerGame(context.Background(), id, 1, 2))
    for _, player := range []int64{1, 2} {
        _, err := e.reg.JoinMultiplayer(id, player)
        require.NoError(t, err)
        for _, in := range []string{"up", "down"} {
            ok, err := e.reg.Input(id, player, in)
            require.NoError(t, err)
            require.True(t, ok)
        }
    }
    e.tick()
    key := registry.Key{Type: game.MultiPlayer, ID: id}
    status, _ := e.reg.Status(key)
    require.Equal(t, game.StatusActive, status)
    return key
}

func (e *env) startSingleplayer(t *testing.T, id int64) registry.Key {
    t.Helper()
    require.NoError(t, e.reg.CreateSingleplayerGame(context.Background(), id, 1, 2))
    _, err := e.reg.JoinSingleplayer(id)
    require.NoError(t, err)
    require.NoError(t, e.reg.SingleInput(id, "up", "up"))
    require.NoError(t, e.reg.SingleInput(id, "down", "down"))
    e.tick()
    key := registry.Key{Type: game.SinglePlayer, ID: id}
    status, _ := e.reg.Status(key)
    require.Equal(t, game.StatusActive, status)
    return key
}

// playToEnd keeps both paddles on the half of the board the ball is moving
// away from, so every serve ends in a point.
func (e *env) playToEnd(t *testing.T, key registry.Key) {
    t.Helper()
    for i := 0; i < 10000; i++ {
        snap, ok := e.reg.Snapshot(key)
        if !ok {
            return
        }
        switch snap.GameState {
        case game.StatusResetting:
            e.clock.Advance(game.ResetTimeout)
        case game.StatusActive:
            token := "up"
            if snap.Objects.Ball.VY < 0 {
                token = "down"
            }
            if key.Type == game.SinglePlayer {
                require.NoError(t, e.reg.SingleInput(key.ID, token, token))
            } else {
                for _, player := range []int64{1, 2} {
                    _, err := e.reg.Input(key.ID, player, token)
                    require.NoError(t, err)
                }
            }
        }
        e.tick()
    }
    t.Fatalf("match %s did not finish", key)
}

// TestCreateGame covers validation on both pools.
func TestCreateGame(t *testing.T) {
    tests := []struct {
        name     string
        gameType game.GameType
        setup    func(e *env)
        p1, p2   int64
        wantKind registry.ErrorKind
    }{
        {name: "multiplayer", gameType: game.MultiPlayer, p1: 1, p2: 2},
        {name: "singleplayer", gameType: game.SinglePlayer, p1: 1, p2: 2},
        {name: "same player twice", gameType: game.MultiPlayer, p1: 1, p2: 1, wantKind: registry.BadPlayerID},
        {name: "unknown account", gameType: game.MultiPlayer, p1: 1, p2: 99, wantKind: registry.AccountNotFound},
        {
            name:     "duplicate multiplayer id",
            gameType: game.MultiPlayer,
            p1:       1,
            p2:       2,
            setup: func(e *env) {
                _ = e.reg.CreateMultiplayerGame(context.Background(), 10, 2, 3)
            },
            wantKind: registry.GameIDAlreadyExists,
        },
        {
            name:     "duplicate singleplayer id",
            gameType: game.SinglePlayer,
            p1:       1,
            p2:       2,
            setup: func(e *env) {
                _ = e.reg.CreateSingleplayerGame(context.Background(), 10, 2, 3)
            },
            wantKind: registry.GameIDAlreadyExists,
        },
        {
            name:     "same id in the other pool is fine",
            gameType: game.SinglePlayer,
            p1:       1,
            p2:       2,
            setup: func(e *env) {
                _ = e.reg.CreateMultiplayerGame(context.Background(), 10, 2, 3)
            },
        },
    }

    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            e := newEnv(t)
            if tt.setup != nil {
                tt.setup(e)
            }

            var err error
            if tt.gameType == game.MultiPlayer {
                err = e.reg.CreateMultiplayerGame(context.Background(), 10, tt.p1, tt.p2)
            } else {
                err = e.reg.CreateSingleplayerGame(context.Background(), 10, tt.p1, tt.p2)
            }

            if tt.wantKind != 0 {
                require.Error(t, err)
                assert.True(t, registry.IsKind(err, tt.wantKind), "got %v", err)
                return
            }
            require.NoError(t, err)
            status, ok := e.reg.Status(registry.Key{Type: tt.gameType, ID: 10})
            require.True(t, ok)
            assert.Equal(t, game.StatusNotStarted, status)
        })
    }
}

func TestCreateGameAccountBackendFailure(t *testing.T) {
    reg := registry.New(fakeAccounts{err: errors.New("connection refused")}, &fakeStore{}, testLogger(), registry.Options{})
    defer reg.Stop()

    err := reg.CreateMultiplayerGame(context.Background(), 1, 1, 2)

    require.Error(t, err)
    var ge *registry.GameError
    assert.False(t, errors.As(err, &ge), "backend failures are not client errors")
    assert.Equal(t, 0, reg.Len(game.MultiPlayer))
}

func TestJoinMultiplayer(t *testing.T) {
    e := newEnv(t)
    require.NoError(t, e.reg.CreateMultiplayerGame(context.Background(), 5, 1, 2))

    _, err := e.reg.JoinMultiplayer(6, 1)
    assert.True(t, registry.IsKind(err, registry.GameDoesNotExist))

    _, err = e.reg.JoinMultiplayer(5, 3)
    assert.True(t, registry.IsKind(err, registry.PlayerNotInGame))

    settings, err := e.reg.JoinMultiplayer(5, 1)
    require.NoError(t, err)
    assert.Equal(t, game.DefaultSettings(), settings)
}

func TestInputRequiresJoin(t *testing.T) {
    e := newEnv(t)
    require.NoError(t, e.reg.CreateMultiplayerGame(context.Background(), 5, 1, 2))

    ok, err := e.reg.Input(5, 1, "up")
    require.NoError(t, err)
    assert.False(t, ok, "player has not joined")

    _, err = e.reg.JoinMultiplayer(5, 1)
    require.NoError(t, err)
    ok, err = e.reg.Input(5, 1, "up")
    require.NoError(t, err)
    assert.True(t, ok)

    ok, err = e.reg.Input(5, 1, "sideways")
    require.NoError(t, err)
    assert.False(t, ok)

    _, err = e.reg.Input(404, 1, "up")
    assert.True(t, registry.IsKind(err, registry.GameDoesNotExist))

    err = e.reg.SingleInput(5, "up", "down")
    assert.True(t, registry.IsKind(err, registry.GameDoesNotExist), "pools are separate")
}

// TestPauseTimeoutResumesMultiplayer walks a dropped multiplayer match through the full pause window.
func TestPauseTimeoutResumesMultiplayer(t *testing.T) {
    e := newEnv(t)
    key := e.startMultiplayer(t, 3)

    snap, ok := e.reg.Disconnect(key, 2)
    require.True(t, ok)
    assert.Equal(t, game.StatusPaused, snap.GameState)
    assert.False(t, snap.Players[1].Joined)
    assert.True(t, snap.Players[0].Joined)

    e.clock.Advance(30 * time.Second)
    e.reg.Tick()
    status, _ := e.reg.Status(key)
    assert.Equal(t, game.StatusPaused, status)

    e.clock.Advance(time.Millisecond)
    e.reg.Tick()
    status, ok = e.reg.Status(key)
    require.True(t, ok)
    assert.Equal(t, game.StatusActive, status)
}

func TestPauseTimeoutInterruptsSingleplayer(t *testing.T) {
    e := newEnv(t)
    key := e.startSingleplayer(t, 4)

    snap, ok := e.reg.Disconnect(key, 1)
    require.True(t, ok)
    assert.Equal(t, game.StatusPaused, snap.GameState)
    assert.False(t, snap.Players[0].Joined)
    assert.False(t, snap.Players[1].Joined)

    e.clock.Advance(30*time.Second + time.Millisecond)
    e.reg.Tick()

    _, ok = e.reg.Status(key)
    assert.False(t, ok, "interrupted match is removed")
    assert.Equal(t, "Game was interrupted", e.sink.closed[key])

    e.reg.Stop()
    assert.Equal(t, []int64{4}, e.store.interrupted)
    require.Len(t, e.archive.docs, 1)
    assert.Equal(t, string(game.StatusInterrupted), e.archive.docs[0].Status)
    assert.Equal(t, "single_player", e.archive.docs[0].GameType)
}

func TestRejoinResumesMultiplayer(t *testing.T) {
    e := newEnv(t)
    key := e.startMultiplayer(t, 3)
    e.reg.Disconnect(key, 1)

    _, err := e.reg.JoinMultiplayer(3, 1)
    require.NoError(t, err)

    status, _ := e.reg.Status(key)
    assert.Equal(t, game.StatusActive, status)
}

func TestDisconnectBeforeStartDoesNotPause(t *testing.T) {
    e := newEnv(t)
    require.NoError(t, e.reg.CreateMultiplayerGame(context.Background(), 8, 1, 2))
    _, err := e.reg.JoinMultiplayer(8, 1)
    require.NoError(t, err)

    snap, ok := e.reg.Disconnect(registry.Key{Type: game.MultiPlayer, ID: 8}, 1)

    require.True(t, ok)
    assert.Equal(t, game.StatusNotStarted, snap.GameState)
    assert.False(t, snap.Players[0].Joined)

    _, ok = e.reg.Disconnect(registry.Key{Type: game.MultiPlayer, ID: 9}, 1)
    assert.False(t, ok)
}

func TestFinishedMatchIsFinalized(t *testing.T) {
    tests := []struct {
        name  string
        start func(e *env, t *testing.T) registry.Key
    }{
        {name: "multiplayer", start: func(e *env, t *testing.T) registry.Key { return e.startMultiplayer(t, 11) }},
        {name: "singleplayer", start: func(e *env, t *testing.T) registry.Key { return e.startSingleplayer(t, 11) }},
    }

    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            e := newEnv(t)
            key := tt.start(e, t)

            e.playToEnd(t, key)

            assert.Equal(t, "Game has finished", e.sink.closed[key])
            sent := e.sink.sent[key]
            require.NotEmpty(t, sent)
            var last struct {
                Type    models.MessageType `json:"type"`
                Payload game.Snapshot      `json:"payload"`
            }
            require.NoError(t, json.Unmarshal(sent[len(sent)-1], &last))
            assert.Equal(t, models.MsgState, last.Type)
            assert.Equal(t, game.StatusFinished, last.Payload.GameState)
            require.NotNil(t, last.Payload.Winner)

            e.reg.Stop()
            require.Len(t, e.store.results, 1)
            res := e.store.results[0]
            assert.Equal(t, int64(11), res.ID)
            assert.Equal(t, string(game.StatusFinished), res.Status)
            require.NotNil(t, res.WinnerID)
            require.NotNil(t, res.LoserID)
            assert.Equal(t, last.Payload.Winner.ID, *res.WinnerID)
            assert.Equal(t, 3, max(res.Player1Score, res.Player2Score))
            assert.Equal(t, res.Player1Score+res.Player2Score, res.FinishedRounds)

            require.Len(t, e.archive.docs, 1)
            require.Len(t, e.events.docs, 1)
            assert.Equal(t, e.archive.docs[0], e.events.docs[0])
        })
    }
}

func TestFlushPersistsProgress(t *testing.T) {
    e := newEnv(t)
    require.NoError(t, e.reg.CreateMultiplayerGame(context.Background(), 1, 1, 2))
    require.NoError(t, e.reg.CreateSingleplayerGame(context.Background(), 2, 2, 3))

    e.reg.Flush()
    e.reg.Stop()

    require.Len(t, e.store.progress, 2)
    byID := map[int64]models.MatchProgress{}
    for _, p := range e.store.progress {
        byID[p.ID] = p
    }
    assert.Equal(t, models.MatchProgress{ID: 1, Player1ID: 1, Player2ID: 2, Status: "not_started"}, byID[1])
    assert.Equal(t, models.MatchProgress{ID: 2, Player1ID: 2, Player2ID: 3, Status: "not_started"}, byID[2])
}

// TestFlushRacingTicksNeverRevivesFinishedMatches runs the flush loop
// against the tick loop while every match plays out.
func TestFlushRacingTicksNeverRevivesFinishedMatches(t *testing.T) {
    e := newEnv(t)
    const matches = 20
    keys := make([]registry.Key, 0, matches)
    for id := int64(1); id <= matches; id++ {
        keys = append(keys, e.startMultiplayer(t, id))
    }

    e.reg.Flush()
    stop := make(chan struct{})
    var wg sync.WaitGroup
    wg.Add(1)
    go func() {
        defer wg.Done()
        for {
            select {
            case <-stop:
                return
            default:
                e.reg.Flush()
            }
        }
    }()

    for _, key := range keys {
        e.playToEnd(t, key)
    }
    close(stop)
    wg.Wait()
    e.reg.Flush()
    e.reg.Stop()

    assert.Len(t, e.store.results, matches)
    assert.NotEmpty(t, e.store.progress)
    assert.Zero(t, e.store.lateWrites, "progress written after a match was finalized")
}

// TestTerminalWritesSurviveSlowStore fills the progress queue with a slow
// store and checks no finish is lost.
func TestTerminalWritesSurviveSlowStore(t *testing.T) {
    store := &fakeStore{saveDelay: 2 * time.Millisecond}
    e := newEnvWith(t, registry.Options{PersistQueueSize: 4}, store)
    const matches = 30
    keys := make([]registry.Key, 0, matches)
    for id := int64(1); id <= matches; id++ {
        keys = append(keys, e.startMultiplayer(t, id))
    }

    e.reg.Flush()
    for _, key := range keys {
        e.playToEnd(t, key)
    }
    e.reg.Stop()

    assert.Len(t, store.results, matches)
    assert.Len(t, e.archive.docs, matches)
    assert.Len(t, e.events.docs, matches)
    assert.Less(t, len(store.progress), matches, "a full progress queue drops flushes")
    assert.Zero(t, store.lateWrites)
}

func TestFailedWritesDoNotStallTicks(t *testing.T) {
    e := newEnv(t)
    e.store.failWrites = true
    key := e.startMultiplayer(t, 1)

    e.reg.Flush()
    e.tick()

    status, ok := e.reg.Status(key)
    require.True(t, ok)
    assert.Equal(t, game.StatusActive, status)
}

func TestRecover(t *testing.T) {
    e := newEnv(t)
    e.store.resumable = []models.MatchRecord{
        {ID: 20, Player1ID: 1, Player2ID: 2, Player1Score: 1, Player2Score: 2, FinishedRounds: 3, Status: "active"},
        {ID: 21, Player1ID: 1, Player2ID: 99, Status: "not_started"},
        {ID: 22, Player1ID: 2, Player2ID: 3, Status: "resetting", FinishedRounds: 1, Player2Score: 1},
    }

    n, err := e.reg.Recover(context.Background())

    require.NoError(t, err)
    assert.Equal(t, 2, n)
    assert.Equal(t, 2, e.reg.Len(game.MultiPlayer))
    assert.Equal(t, 0, e.reg.Len(game.SinglePlayer))

    snap, ok := e.reg.Snapshot(registry.Key{Type: game.MultiPlayer, ID: 20})
    require.True(t, ok)
    assert.Equal(t, game.StatusActive, snap.GameState)
    assert.Equal(t, 1, snap.Players[0].Score)
    assert.Equal(t, 2, snap.Players[1].Score)
    assert.Equal(t, "alice", snap.Players[0].Username)
    assert.Equal(t, 3, snap.FinishedRounds)

    n, err = e.reg.Recover(context.Background())
    require.NoError(t, err)
    assert.Equal(t, 0, n, "already loaded matches are skipped")
}

func TestBroadcastSkipsStaleBindings(t *testing.T) {
    e := newEnv(t)
    require.NoError(t, e.reg.CreateMultiplayerGame(context.Background(), 1, 1, 2))
    live := registry.Key{Type: game.MultiPlayer, ID: 1}
    stale := registry.Key{Type: game.MultiPlayer, ID: 2}
    e.sink.bound = []registry.Key{live, stale}

    e.reg.Broadcast()

    require.Len(t, e.sink.sent[live], 1)
    assert.Empty(t, e.sink.sent[stale])

    var frame models.Envelope
    require.NoError(t, json.Unmarshal(e.sink.sent[live][0], &frame))
    assert.Equal(t, models.MsgState, frame.Type)
    var snap game.Snapshot
    require.NoError(t, json.Unmarshal(frame.Payload, &snap))
    assert.Equal(t, game.StatusNotStarted, snap.GameState)
}

// TestLoopsRun exercises the real tickers.
func TestLoopsRun(t *testing.T) {
    store := &fakeStore{}
    reg := registry.New(fakeAccounts{names: map[int64]string{1: "a", 2: "b"}}, store, testLogger(), registry.Options{
        TickInterval:      time.Millisecond,
        BroadcastInterval: time.Millisecond,
        FlushInterval:     5 * time.Millisecond,
    })
    require.NoError(t, reg.CreateMultiplayerGame(context.Background(), 1, 1, 2))

    reg.Start()
    reg.Start()

    assert.Eventually(t, func() bool { return store.progressCount() > 0 }, time.Second, 5*time.Millisecond)

    reg.Stop()
    reg.Stop()
}
