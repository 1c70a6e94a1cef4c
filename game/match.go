package game

import (
	"math"
	"time"

	"golang.org/x/exp/rand"
)

// PlayerInfo identifies an account taking part in a match.
type PlayerInfo struct {
    ID       int64
    Username string
}

type Player struct {
    ID       int64   `json:"id"`
    Username string  `json:"username"`
    Score    int     `json:"score"`
    Joined   bool    `json:"joined"`
    Ready    bool    `json:"ready"`
    Side     Side    `json:"side"`
    Inputs   []Input `json:"inputs"`
}

func (p *Player) hasInput(in Input) bool {
    for _, queued := range p.Inputs {
        if queued == in {
            return true
        }
    }
    return false
}

// Match is one pong game. It is not safe for concurrent use; the registry
// serializes every call.
type Match struct {
    id       int64
    gameType GameType

    players        [2]*Player
    objects        Objects
    status         Status
    finishedRounds int
    totalRounds    int
    winner         *Player
    loser          *Player

    resetTimer time.Time
    pausedAt   time.Time
    remaining  time.Duration

    rng *rand.Rand
}

type Option func(*Match)

// WithRand replaces the serve RNG, mostly so tests can pin serve angles.
func WithRand(rng *rand.Rand) Option {
    return func(m *Match) {
        m.rng = rng
    }
}

func WithTotalRounds(n int) Option {
    return func(m *Match) {
        if n > 0 {
            m.totalRounds = n
        }
    }
}

// NewMatch builds a match with p1 on the left and p2 on the right and the ball already served.
func NewMatch(id int64, gameType GameType, p1, p2 PlayerInfo, opts ...Option) *Match {
    m := &Match{
        id:          id,
        gameType:    gameType,
        status:      StatusNotStarted,
        totalRounds: TotalRounds,
        players: [2]*Player{
            {ID: p1.ID, Username: p1.Username, Side: SideLeft, Inputs: []Input{}},
            {ID: p2.ID, Username: p2.Username, Side: SideRight, Inputs: []Input{}},
        },
        objects: Objects{
            Ball: Ball{
                X:     BoardWidth / 2,
                Y:     BoardHeight / 2,
                Speed: DefaultBallSpeed,
            },
            LeftPaddle:  newPaddle(PaddleToWallDist),
            RightPaddle: newPaddle(BoardWidth - PaddleToWallDist),
        },
    }
    for _, opt := range opts {
        opt(m)
    }
    if m.rng == nil {
        m.rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
    }
    m.resetBall()
    return m
}

func (m *Match) ID() int64           { return m.id }
func (m *Match) Type() GameType      { return m.gameType }
func (m *Match) Status() Status      { return m.status }
func (m *Match) FinishedRounds() int { return m.finishedRounds }

func (m *Match) player(id int64) *Player {
    for _, p := range m.players {
        if p.ID == id {
            return p
        }
    }
    return nil
}

// Players returns copies of both players, left first.
func (m *Match) Players() [2]Player {
    return [2]Player{copyPlayer(m.players[0]), copyPlayer(m.players[1])}
}

func (m *Match) HasPlayer(id int64) bool {
    return m.player(id) != nil
}

func (m *Match) IsJoined(id int64) bool {
    p := m.player(id)
    return p != nil && p.Joined
}

// SetJoined flips the joined flag of a player. It returns false for unknown ids.
func (m *Match) SetJoined(id int64, joined bool) bool {
    p := m.player(id)
    if p == nil {
        return false
    }
    p.Joined = joined
    return true
}

func (m *Match) SetAllJoined(joined bool) {
    for _, p := range m.players {
        p.Joined = joined
    }
}

func (m *Match) AllJoined() bool {
    return m.players[0].Joined && m.players[1].Joined
}

// Winner and Loser return player ids, or false while undecided or on a tie.
func (m *Match) Winner() (int64, bool) {
    if m.winner == nil {
        return 0, false
    }
    return m.winner.ID, true
}

func (m *Match) Loser() (int64, bool) {
    if m.loser == nil {
        return 0, false
    }
    return m.loser.ID, true
}

// AcceptInput queues a paddle command for a player. "none" is accepted and dropped.
func (m *Match) AcceptInput(id int64, token string) bool {
    p := m.player(id)
    if p == nil {
        return false
    }
    switch token {
    case string(InputUp):
        p.Inputs = append(p.Inputs, InputUp)
    case string(InputDown):
        p.Inputs = append(p.Inputs, InputDown)
    case InputNone:
    default:
        return false
    }
    return true
}

// Pause only applies to an active match.
func (m *Match) Pause(now time.Time) {
    if m.status != StatusActive {
        return
    }
    m.status = StatusPaused
    m.pausedAt = now
    m.remaining = PauseTimeout
}

func (m *Match) Resume() {
    if m.status != StatusPaused {
        return
    }
    m.status = StatusActive
    m.pausedAt = time.Time{}
}

// PausedFor reports how long the match has been paused, zero when it is not.
func (m *Match) PausedFor(now time.Time) time.Duration {
    if m.status != StatusPaused {
        return 0
    }
    return now.Sub(m.pausedAt)
}

// MarkInterrupted ends a match that will never be resumed.
func (m *Match) MarkInterrupted() {
    if m.status.Terminal() {
        return
    }
    m.status = StatusInterrupted
    m.pausedAt = time.Time{}
}

// Restore applies persisted progress to a freshly built match.
func (m *Match) Restore(score1, score2, finishedRounds int, status Status, now time.Time) {
    m.players[0].Score = score1
    m.players[1].Score = score2
    m.finishedRounds = finishedRounds
    if status.Resumable() {
        m.status = status
    }
    if m.status == StatusResetting {
        m.resetTimer = now
        m.remaining = ResetTimeout
    }
}

// Advance runs one simulation step.
func (m *Match) Advance(now time.Time) {
    if m.status == StatusPaused {
        m.remaining = PauseTimeout - now.Sub(m.pausedAt)
        return
    }

    m.processInputs()

    switch m.status {
    case StatusNotStarted:
        if m.players[0].Ready && m.players[1].Ready {
            m.status = StatusActive
            m.clearInputs()
        }
    case StatusActive:
        scorer, scored := m.objects.moveBall()
        if !scored {
            return
        }
        for _, p := range m.players {
            if p.Side == scorer {
                p.Score++
            }
        }
        m.finishedRounds++
        if m.decided() {
            m.finish()
            return
        }
        m.status = StatusResetting
        m.resetRound()
        m.resetTimer = now
        m.remaining = ResetTimeout
    case StatusResetting:
        m.remaining = ResetTimeout - now.Sub(m.resetTimer)
        if m.remaining < 0 {
            m.status = StatusActive
        }
    }
}

func (m *Match) roundsToWin() int {
    return (m.totalRounds + 1) / 2
}

func (m *Match) decided() bool {
    need := m.roundsToWin()
    return m.players[0].Score >= need || m.players[1].Score >= need
}

func (m *Match) finish() {
    m.status = StatusFinished
    p1, p2 := m.players[0], m.players[1]
    switch {
    case p1.Score > p2.Score:
        m.winner, m.loser = p1, p2
    case p2.Score > p1.Score:
        m.winner, m.loser = p2, p1
    default:
        m.winner, m.loser = nil, nil
    }
}

func (m *Match) processInputs() {
    switch m.status {
    case StatusNotStarted:
        for _, p := range m.players {
            if p.Ready {
                p.Inputs = p.Inputs[:0]
                continue
            }
            if p.hasInput(InputUp) && p.hasInput(InputDown) {
                p.Ready = true
                p.Inputs = p.Inputs[:0]
                continue
            }
            // Only presence matters before the start, so keep at most one of each.
            if len(p.Inputs) > 1 {
                p.Inputs = p.Inputs[:1]
            }
        }
    case StatusActive:
        for _, p := range m.players {
            paddle := &m.objects.LeftPaddle
            if p.Side == SideRight {
                paddle = &m.objects.RightPaddle
            }
            for _, in := range p.Inputs {
                switch in {
                case InputUp:
                    paddle.move(-PaddleStep)
                case InputDown:
                    paddle.move(PaddleStep)
                }
            }
            p.Inputs = p.Inputs[:0]
        }
    case StatusResetting:
        m.clearInputs()
    }
}

func (m *Match) clearInputs() {
    for _, p := range m.players {
        p.Inputs = p.Inputs[:0]
    }
}

func (m *Match) resetRound() {
    m.objects.LeftPaddle.YOffset = 0
    m.objects.RightPaddle.YOffset = 0
    m.resetBall()
}

// resetBall centers the ball and serves it inside a 90 degree cone, alternating sides.
func (m *Match) resetBall() {
    b := &m.objects.Ball
    if b.StartDir == 0 {
        if m.rng.Float64() > 0.5 {
            b.StartDir = 1
        } else {
            b.StartDir = -1
        }
    }

    var angle float64
    if b.StartDir == 1 {
        angle = m.randBetween(-0.25*math.Pi, 0.25*math.Pi)
    } else {
        angle = m.randBetween(0.75*math.Pi, 1.25*math.Pi)
    }

    b.X = BoardWidth / 2
    b.Y = BoardHeight / 2
    b.VX = math.Cos(angle) * DefaultBallSpeed
    b.VY = math.Sin(angle) * DefaultBallSpeed
    b.Speed = DefaultBallSpeed
    b.StartDir = -b.StartDir
}

func (m *Match) randBetween(lo, hi float64) float64 {
    return lo + m.rng.Float64()*(hi-lo)
}
