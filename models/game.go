package models

import (
	"errors"
	"time"
)

var (
    ErrAccountNotFound = errors.New("account not found")
    ErrMatchNotFound   = errors.New("match not found")
)

// MatchRecord is a row of the matches table.
type MatchRecord struct {
    ID             int64     `json:"id"`
    Player1ID      int64     `json:"player1_id"`
    Player2ID      int64     `json:"player2_id"`
    Player1Score   int       `json:"player1_score"`
    Player2Score   int       `json:"player2_score"`
    Status         string    `json:"status"`
    FinishedRounds int       `json:"finished_rounds"`
    WinnerID       *int64    `json:"winner_id"`
    LoserID        *int64    `json:"loser_id"`
    MatchTime      time.Time `json:"match_time"`
}

// MatchProgress is what the periodic flush writes for a live match.
type MatchProgress struct {
    ID             int64
    Player1ID      int64
    Player2ID      int64
    Status         string
    FinishedRounds int
    Player1Score   int
    Player2Score   int
}

// MatchResult is the final write for a finished match. Winner and loser stay nil on a tie.
type MatchResult struct {
    MatchProgress
    WinnerID *int64
    LoserID  *int64
}
