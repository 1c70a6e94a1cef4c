package registry

import (
	"context"
	"time"

	"github.com/mapleleafu/pongarena/pongarena-backend/game"
	"github.com/mapleleafu/pongarena/pongarena-backend/models"
)

// Policy decides what a pool does with matches after each tick. Both hooks
// run with the registry lock held.
type Policy interface {
    // OnPauseTimeout handles a match paused for longer than the pause
    // timeout. Returning true removes the match from its pool.
    OnPauseTimeout(r *Registry, key Key, m *game.Match, now time.Time) bool
    // OnFinish runs once for a finished match, right before it is removed.
    OnFinish(r *Registry, key Key, m *game.Match, now time.Time)
}

type finishAndArchive struct{}

func (finishAndArchive) OnFinish(r *Registry, key Key, m *game.Match, now time.Time) {
    result := resultOf(m)
    r.persist.enqueueTerminal(job{
        name: "finalize",
        key:  key,
        run:  func(ctx context.Context) error { return r.store.FinalizeMatch(ctx, result) },
    })
    r.archive(key, archiveOf(key, m, now))

    r.sendFinal(key, m)
    r.sink.CloseMatch(key, "Game has finished")

    winner, _ := m.Winner()
    r.logger.Info("match finished", "match", key, "winner_id", winner, "rounds", m.FinishedRounds())
}

// ResumeOnTimeout lets a multiplayer match continue when the missing player
// does not come back in time.
type ResumeOnTimeout struct{ finishAndArchive }

func (ResumeOnTimeout) OnPauseTimeout(r *Registry, key Key, m *game.Match, now time.Time) bool {
    m.Resume()
    r.logger.Info("pause timed out, resuming", "match", key)
    return false
}

// InterruptOnTimeout abandons a single-player match whose only connection is gone.
type InterruptOnTimeout struct{ finishAndArchive }

func (InterruptOnTimeout) OnPauseTimeout(r *Registry, key Key, m *game.Match, now time.Time) bool {
    m.MarkInterrupted()
    r.persist.enqueueTerminal(job{
        name: "interrupt",
        key:  key,
        run:  func(ctx context.Context) error { return r.store.MarkInterrupted(ctx, key.ID) },
    })
    r.archive(key, archiveOf(key, m, now))
    r.sink.CloseMatch(key, "Game was interrupted")

    r.logger.Info("pause timed out, match interrupted", "match", key)
    return true
}

func resultOf(m *game.Match) models.MatchResult {
    res := models.MatchResult{MatchProgress: progressOf(m)}
    if id, ok := m.Winner(); ok {
        res.WinnerID = &id
    }
    if id, ok := m.Loser(); ok {
        res.LoserID = &id
    }
    return res
}

func progressOf(m *game.Match) models.MatchProgress {
    players := m.Players()
    return models.MatchProgress{
        ID:             m.ID(),
        Player1ID:      players[0].ID,
        Player2ID:      players[1].ID,
        Status:         string(m.Status()),
        FinishedRounds: m.FinishedRounds(),
        Player1Score:   players[0].Score,
        Player2Score:   players[1].Score,
    }
}

func archiveOf(key Key, m *game.Match, now time.Time) models.MatchArchive {
    res := resultOf(m)
    doc := models.MatchArchive{
        MatchID:        key.ID,
        GameType:       key.Type.String(),
        Status:         res.Status,
        WinnerID:       res.WinnerID,
        LoserID:        res.LoserID,
        FinishedRounds: res.FinishedRounds,
        EndedAt:        now.UTC(),
    }
    for _, p := range m.Players() {
        doc.Players = append(doc.Players, models.ArchivedPlayer{
            ID:       p.ID,
            Username: p.Username,
            Score:    p.Score,
            Side:     string(p.Side),
        })
    }
    return doc
}
