package game

import (
	"math"
	"time"
)

// Board geometry and pacing shared by every match.
const (
    BoardWidth       = 800.0
    BoardHeight      = 600.0
    PaddleHeight     = 100.0
    PaddleWidth      = 10.0
    PaddleToWallDist = 20.0
    BallRadius       = 10.0

    TotalRounds      = 5
    DefaultBallSpeed = 3.0
    SpeedMultiplier  = 1.1
    PaddleStep       = 5.0

    ResetTimeout = 3000 * time.Millisecond
    PauseTimeout = 30000 * time.Millisecond
)

// MaxBounceAngle is the steepest angle a paddle can send the ball back at.
const MaxBounceAngle = 0.45 * math.Pi

// Status is the lifecycle state of a match.
type Status string

const (
    StatusNotStarted  Status = "not_started"
    StatusActive      Status = "active"
    StatusResetting   Status = "resetting"
    StatusPaused      Status = "paused"
    StatusFinished    Status = "finished"
    StatusInterrupted Status = "interrupted"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
    return s == StatusFinished || s == StatusInterrupted
}

// Resumable reports whether a persisted match in this status can be loaded back after a restart.
func (s Status) Resumable() bool {
    return s == StatusActive || s == StatusNotStarted || s == StatusResetting
}

// GameType selects the pool a match lives in.
type GameType int

const (
    SinglePlayer GameType = 1
    MultiPlayer  GameType = 2
)

func (t GameType) String() string {
    switch t {
    case SinglePlayer:
        return "single_player"
    case MultiPlayer:
        return "multi_player"
    default:
        return "unknown"
    }
}

type Side string

const (
    SideLeft  Side = "left"
    SideRight Side = "right"
)

// Input is a queued paddle command.
type Input string

const (
    InputUp   Input = "up"
    InputDown Input = "down"
)

// InputNone is accepted from clients but never queued.
const InputNone = "none"
