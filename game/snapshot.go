package game

import (
	"math"
	"time"
)

// Snapshot is the client-visible state of a match.
type Snapshot struct {
    Objects          Objects  `json:"objects"`
    FinishedRounds   int      `json:"finished_rounds"`
    Players          []Player `json:"players"`
    GameState        Status   `json:"game_state"`
    Winner           *Player  `json:"winner"`
    Loser            *Player  `json:"loser"`
    RemainingTimeout int      `json:"remaining_timeout"`
}

// Settings describes the board geometry, sent once when a client joins.
type Settings struct {
    BoardWidth       float64 `json:"board_width"`
    BoardHeight      float64 `json:"board_height"`
    PaddleHeight     float64 `json:"paddle_height"`
    PaddleWidth      float64 `json:"paddle_width"`
    PaddleToWallDist float64 `json:"paddle_to_wall_dist"`
    BallRadius       float64 `json:"ball_radius"`
}

// DefaultSettings is identical for every match.
func DefaultSettings() Settings {
    return Settings{
        BoardWidth:       BoardWidth,
        BoardHeight:      BoardHeight,
        PaddleHeight:     PaddleHeight,
        PaddleWidth:      PaddleWidth,
        PaddleToWallDist: PaddleToWallDist,
        BallRadius:       BallRadius,
    }
}

func (m *Match) Settings() Settings {
    return DefaultSettings()
}

// Snapshot returns a deep copy so it can be encoded without holding the registry lock.
func (m *Match) Snapshot() Snapshot {
    s := Snapshot{
        Objects:          m.objects,
        FinishedRounds:   m.finishedRounds,
        Players:          []Player{copyPlayer(m.players[0]), copyPlayer(m.players[1])},
        GameState:        m.status,
        RemainingTimeout: remainingSeconds(m.remaining),
    }
    if m.winner != nil {
        w := copyPlayer(m.winner)
        s.Winner = &w
    }
    if m.loser != nil {
        l := copyPlayer(m.loser)
        s.Loser = &l
    }
    return s
}

// remainingSeconds is floor(ms/1000)+1, so a fresh 3s countdown reads 4.
func remainingSeconds(d time.Duration) int {
    return int(math.Floor(float64(d.Milliseconds())/1000)) + 1
}

func copyPlayer(p *Player) Player {
    c := *p
    c.Inputs = append([]Input{}, p.Inputs...)
    return c
}
