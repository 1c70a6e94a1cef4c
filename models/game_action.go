package models

import "time"

type ArchivedPlayer struct {
    ID       int64  `bson:"id" json:"id"`
    Username string `bson:"username" json:"username"`
    Score    int    `bson:"score" json:"score"`
    Side     string `bson:"side" json:"side"`
}

// MatchArchive is the document stored for every match that reached a terminal state.
// It doubles as the payload of the match-finished event.
type MatchArchive struct {
    MatchID        int64            `bson:"match_id" json:"match_id"`
    GameType       string           `bson:"game_type" json:"game_type"`
    Status         string           `bson:"status" json:"status"`
    Players        []ArchivedPlayer `bson:"players" json:"players"`
    WinnerID       *int64           `bson:"winner_id,omitempty" json:"winner_id"`
    LoserID        *int64           `bson:"loser_id,omitempty" json:"loser_id"`
    FinishedRounds int              `bson:"finished_rounds" json:"finished_rounds"`
    EndedAt        time.Time        `bson:"ended_at" json:"ended_at"`
}
