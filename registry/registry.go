package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mapleleafu/pongarena/pongarena-backend/game"
	"github.com/mapleleafu/pongarena/pongarena-backend/models"
	"golang.org/x/exp/rand"
)

// Key addresses a match inside its pool. Ids are unique per pool only.
type Key struct {
    Type game.GameType
    ID   int64
}

func (k Key) String() string {
    return fmt.Sprintf("%s/%d", k.Type, k.ID)
}

// AccountLookup resolves the display name of a player.
type AccountLookup interface {
    ResolveUsername(ctx context.Context, playerID int64) (string, error)
}

// MatchStore is the persistence side of the registry. Calls come from the
// persistence worker, never from the tick loop.
type MatchStore interface {
    SaveProgress(ctx context.Context, p models.MatchProgress) error
    FinalizeMatch(ctx context.Context, r models.MatchResult) error
    MarkInterrupted(ctx context.Context, matchID int64) error
    LoadResumable(ctx context.Context) ([]models.MatchRecord, error)
}

type Archiver interface {
    Archive(ctx context.Context, doc models.MatchArchive) error
}

type Publisher interface {
    PublishMatchEnded(ctx context.Context, doc models.MatchArchive) error
}

// Broadcaster delivers frames to the connections bound to a match.
// Implementations must not call back into the registry.
type Broadcaster interface {
    BoundMatches() []Key
    Broadcast(key Key, msg []byte)
    CloseMatch(key Key, reason string)
}

type Options struct {
    TickInterval      time.Duration
    BroadcastInterval time.Duration
    FlushInterval     time.Duration
    PauseTimeout      time.Duration

    // PersistQueueSize caps how many matches may have a progress write
    // pending. Terminal writes are not counted.
    PersistQueueSize int
    PersistTimeout   time.Duration

    Clock   func() time.Time
    NewRand func() *rand.Rand

    Archiver  Archiver
    Publisher Publisher
}

func DefaultOptions() Options {
    return Options{
        TickInterval:      10 * time.Millisecond,
        BroadcastInterval: time.Second / 30,
        FlushInterval:     time.Second,
        PauseTimeout:      game.PauseTimeout,
        PersistQueueSize:  1024,
        PersistTimeout:    5 * time.Second,
    }
}

func (o *Options) applyDefaults() {
    d := DefaultOptions()
    if o.TickInterval <= 0 {
        o.TickInterval = d.TickInterval
    }
    if o.BroadcastInterval <= 0 {
        o.BroadcastInterval = d.BroadcastInterval
    }
    if o.FlushInterval <= 0 {
        o.FlushInterval = d.FlushInterval
    }
    if o.PauseTimeout <= 0 {
        o.PauseTimeout = d.PauseTimeout
    }
    if o.PersistQueueSize <= 0 {
        o.PersistQueueSize = d.PersistQueueSize
    }
    if o.PersistTimeout <= 0 {
        o.PersistTimeout = d.PersistTimeout
    }
    if o.Clock == nil {
        o.Clock = time.Now
    }
    if o.NewRand == nil {
        var mu sync.Mutex
        seed := rand.New(rand.NewSource(uint64(o.Clock().UnixNano())))
        o.NewRand = func() *rand.Rand {
            mu.Lock()
            defer mu.Unlock()
            return rand.New(rand.NewSource(seed.Uint64()))
        }
    }
}

type pool struct {
    gameType game.GameType
    matches  map[int64]*game.Match
    policy   Policy
}

// Registry owns both match pools and drives them from its loops. Every match
// mutation happens under mu.
type Registry struct {
    mu    sync.Mutex
    pools []*pool

    accounts AccountLookup
    store    MatchStore
    sink     Broadcaster
    persist  *persister
    logger   *slog.Logger
    opts     Options

    stopCh    chan struct{}
    wg        sync.WaitGroup
    startOnce sync.Once
    stopOnce  sync.Once
}

func New(accounts AccountLookup, store MatchStore, logger *slog.Logger, opts Options) *Registry {
    opts.applyDefaults()
    if logger == nil {
        logger = slog.Default()
    }
    r := &Registry{
        pools: []*pool{
            {gameType: game.MultiPlayer, matches: make(map[int64]*game.Match), policy: ResumeOnTimeout{}},
            {gameType: game.SinglePlayer, matches: make(map[int64]*game.Match), policy: InterruptOnTimeout{}},
        },
        accounts: accounts,
        store:    store,
        sink:     nopBroadcaster{},
        logger:   logger.With("component", "registry"),
        opts:     opts,
        stopCh:   make(chan struct{}),
    }
    r.persist = newPersister(opts.PersistQueueSize, opts.PersistTimeout, r.logger)
    return r
}

// SetBroadcaster wires the connection router in. It must be called before Start.
func (r *Registry) SetBroadcaster(b Broadcaster) {
    r.mu.Lock()
    defer r.mu.Unlock()
    if b == nil {
        b = nopBroadcaster{}
    }
    r.sink = b
}

func (r *Registry) poolFor(t game.GameType) (*pool, error) {
    for _, p := range r.pools {
        if p.gameType == t {
            return p, nil
        }
    }
    return nil, newGameError(UnknownGameType, "Error: unknown game type %d", t)
}

func (r *Registry) lookup(key Key) (*game.Match, error) {
    p, err := r.poolFor(key.Type)
    if err != nil {
        return nil, err
    }
    m, ok := p.matches[key.ID]
    if !ok {
        return nil, newGameError(GameDoesNotExist, "Error: game with id %d does not exist", key.ID)
    }
    return m, nil
}

func (r *Registry) CreateMultiplayerGame(ctx context.Context, id, player1ID, player2ID int64) error {
    return r.create(ctx, game.MultiPlayer, id, player1ID, player2ID)
}

func (r *Registry) CreateSingleplayerGame(ctx context.Context, id, player1ID, player2ID int64) error {
    return r.create(ctx, game.SinglePlayer, id, player1ID, player2ID)
}

func (r *Registry) create(ctx context.Context, t game.GameType, id, player1ID, player2ID int64) error {
    if player1ID == player2ID {
        return newGameError(BadPlayerID, "Error: player ids must differ, both are %d", player1ID)
    }
    if err := r.checkFree(t, id); err != nil {
        return err
    }

    p1, err := r.resolvePlayer(ctx, player1ID)
    if err != nil {
        return err
    }
    p2, err := r.resolvePlayer(ctx, player2ID)
    if err != nil {
        return err
    }

    r.mu.Lock()
    defer r.mu.Unlock()
    p, err := r.poolFor(t)
    if err != nil {
        return err
    }
    if _, exists := p.matches[id]; exists {
        return newGameError(GameIDAlreadyExists, "Error: game id %d already exists", id)
    }
    p.matches[id] = game.NewMatch(id, t, p1, p2, game.WithRand(r.opts.NewRand()))

    r.logger.Info("match created", "match", Key{t, id}, "player1_id", player1ID, "player2_id", player2ID)
    return nil
}

func (r *Registry) checkFree(t game.GameType, id int64) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    p, err := r.poolFor(t)
    if err != nil {
        return err
    }
    if _, exists := p.matches[id]; exists {
        return newGameError(GameIDAlreadyExists, "Error: game id %d already exists", id)
    }
    return nil
}

func (r *Registry) resolvePlayer(ctx context.Context, id int64) (game.PlayerInfo, error) {
    name, err := r.accounts.ResolveUsername(ctx, id)
    if errors.Is(err, models.ErrAccountNotFound) {
        return game.PlayerInfo{}, &GameError{Kind: AccountNotFound, Msg: fmt.Sprintf("Error: player %d does not exist", id), Err: err}
    }
    if err != nil {
        return game.PlayerInfo{}, fmt.Errorf("resolve player %d: %w", id, err)
    }
    return game.PlayerInfo{ID: id, Username: name}, nil
}

// JoinMultiplayer marks the player as joined and resumes the match once both are in.
func (r *Registry) JoinMultiplayer(matchID, playerID int64) (game.Settings, error) {
    r.mu.Lock()
    defer r.mu.Unlock()

    m, err := r.lookup(Key{game.MultiPlayer, matchID})
    if err != nil {
        return game.Settings{}, err
    }
    if !m.SetJoined(playerID, true) {
        return game.Settings{}, newGameError(PlayerNotInGame, "Error: player with id %d is not in game %d", playerID, matchID)
    }
    if m.AllJoined() {
        m.Resume()
    }
    return m.Settings(), nil
}

// JoinSingleplayer hands both paddles to the caller. The caller's identity is
// not checked against the match players.
func (r *Registry) JoinSingleplayer(matchID int64) (game.Settings, error) {
    r.mu.Lock()
    defer r.mu.Unlock()

    m, err := r.lookup(Key{game.SinglePlayer, matchID})
    if err != nil {
        return game.Settings{}, err
    }
    m.SetAllJoined(true)
    m.Resume()
    return m.Settings(), nil
}

// Input queues a multiplayer command. Commands from players that are not
// joined are ignored and reported as not accepted.
func (r *Registry) Input(matchID, playerID int64, token string) (bool, error) {
    r.mu.Lock()
    defer r.mu.Unlock()

    m, err := r.lookup(Key{game.MultiPlayer, matchID})
    if err != nil {
        return false, err
    }
    if !m.IsJoined(playerID) {
        return false, nil
    }
    return m.AcceptInput(playerID, token), nil
}

// SingleInput feeds both paddles of a single-player match at once.
func (r *Registry) SingleInput(matchID int64, input1, input2 string) error {
    r.mu.Lock()
    defer r.mu.Unlock()

    m, err := r.lookup(Key{game.SinglePlayer, matchID})
    if err != nil {
        return err
    }
    players := m.Players()
    if !m.AcceptInput(players[0].ID, input1) {
        r.logger.Debug("input rejected", "match", Key{game.SinglePlayer, matchID}, "player_id", players[0].ID, "input", input1)
    }
    if !m.AcceptInput(players[1].ID, input2) {
        r.logger.Debug("input rejected", "match", Key{game.SinglePlayer, matchID}, "player_id", players[1].ID, "input", input2)
    }
    return nil
}

// Disconnect unjoins the player, pauses the match and returns the state the
// remaining connections should see.
func (r *Registry) Disconnect(key Key, playerID int64) (game.Snapshot, bool) {
    r.mu.Lock()
    defer r.mu.Unlock()

    m, err := r.lookup(key)
    if err != nil {
        return game.Snapshot{}, false
    }
    if key.Type == game.SinglePlayer {
        m.SetAllJoined(false)
    } else {
        m.SetJoined(playerID, false)
    }
    m.Pause(r.opts.Clock())
    return m.Snapshot(), true
}

func (r *Registry) Snapshot(key Key) (game.Snapshot, bool) {
    r.mu.Lock()
    defer r.mu.Unlock()

    m, err := r.lookup(key)
    if err != nil {
        return game.Snapshot{}, false
    }
    return m.Snapshot(), true
}

// Status reports the lifecycle state of a live match.
func (r *Registry) Status(key Key) (game.Status, bool) {
    r.mu.Lock()
    defer r.mu.Unlock()

    m, err := r.lookup(key)
    if err != nil {
        return "", false
    }
    return m.Status(), true
}

func (r *Registry) Len(t game.GameType) int {
    r.mu.Lock()
    defer r.mu.Unlock()

    p, err := r.poolFor(t)
    if err != nil {
        return 0
    }
    return len(p.matches)
}

// Recover loads unfinished matches into the multiplayer pool. Rows whose
// accounts cannot be resolved are skipped.
func (r *Registry) Recover(ctx context.Context) (int, error) {
    rows, err := r.store.LoadResumable(ctx)
    if err != nil {
        return 0, fmt.Errorf("load resumable matches: %w", err)
    }

    restored := 0
    for _, row := range rows {
        if err := r.restore(ctx, row); err != nil {
            r.logger.Warn("skipping unrecoverable match", "match_id", row.ID, "error", err)
            continue
        }
        restored++
    }
    r.logger.Info("matches recovered", "loaded", len(rows), "restored", restored)
    return restored, nil
}

func (r *Registry) restore(ctx context.Context, row models.MatchRecord) error {
    if err := r.checkFree(game.MultiPlayer, row.ID); err != nil {
        return err
    }
    p1, err := r.resolvePlayer(ctx, row.Player1ID)
    if err != nil {
        return err
    }
    p2, err := r.resolvePlayer(ctx, row.Player2ID)
    if err != nil {
        return err
    }

    m := game.NewMatch(row.ID, game.MultiPlayer, p1, p2, game.WithRand(r.opts.NewRand()))
    m.Restore(row.Player1Score, row.Player2Score, row.FinishedRounds, game.Status(row.Status), r.opts.Clock())

    r.mu.Lock()
    defer r.mu.Unlock()
    p, _ := r.poolFor(game.MultiPlayer)
    if _, exists := p.matches[row.ID]; exists {
        return newGameError(GameIDAlreadyExists, "Error: game id %d already exists", row.ID)
    }
    p.matches[row.ID] = m
    return nil
}

type nopBroadcaster struct{}

func (nopBroadcaster) BoundMatches() []Key    { return nil }
func (nopBroadcaster) Broadcast(Key, []byte)  {}
func (nopBroadcaster) CloseMatch(Key, string) {}
