package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mapleleafu/pongarena/pongarena-backend/game"
	"github.com/mapleleafu/pongarena/pongarena-backend/models"
)

// MatchStore keeps the matches table in step with the registry.
type MatchStore struct {
    db *sql.DB
}

func NewMatchStore(db *sql.DB) *MatchStore {
    return &MatchStore{db: db}
}

const matchColumns = `id, player1_id, player2_id, player1_score, player2_score, status,
    finished_rounds, winner_id, loser_id, match_time`

func (s *MatchStore) CreateMatchRecord(ctx context.Context, player1ID, player2ID int64) (int64, error) {
    var id int64
    err := s.db.QueryRowContext(ctx,
        `INSERT INTO matches (player1_id, player2_id, status) VALUES ($1, $2, $3) RETURNING id`,
        player1ID, player2ID, string(game.StatusNotStarted),
    ).Scan(&id)
    if err != nil {
        return 0, fmt.Errorf("insert match: %w", err)
    }
    return id, nil
}

// SaveProgress writes the current score. A row that does not exist yet is
// created. Finished and interrupted rows are left untouched.
func (s *MatchStore) SaveProgress(ctx context.Context, p models.MatchProgress) error {
    _, err := s.db.ExecContext(ctx, `
        INSERT INTO matches (id, player1_id, player2_id, player1_score, player2_score, status, finished_rounds)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            player1_score = EXCLUDED.player1_score,
            player2_score = EXCLUDED.player2_score,
            status = EXCLUDED.status,
            finished_rounds = EXCLUDED.finished_rounds
        WHERE matches.status NOT IN ($8, $9)`,
        p.ID, p.Player1ID, p.Player2ID, p.Player1Score, p.Player2Score, p.Status, p.FinishedRounds,
        string(game.StatusFinished), string(game.StatusInterrupted),
    )
    if err != nil {
        return fmt.Errorf("save progress of match %d: %w", p.ID, err)
    }
    return nil
}

func (s *MatchStore) FinalizeMatch(ctx context.Context, r models.MatchResult) error {
    res, err := s.db.ExecContext(ctx, `
        UPDATE matches SET
            player1_score = $2,
            player2_score = $3,
            status = $4,
            finished_rounds = $5,
            winner_id = $6,
            loser_id = $7
        WHERE id = $1`,
        r.ID, r.Player1Score, r.Player2Score, r.Status, r.FinishedRounds, nullInt64(r.WinnerID), nullInt64(r.LoserID),
    )
    if err != nil {
        return fmt.Errorf("finalize match %d: %w", r.ID, err)
    }
    return expectRow(res, r.ID)
}

func (s *MatchStore) MarkInterrupted(ctx context.Context, id int64) error {
    res, err := s.db.ExecContext(ctx, `UPDATE matches SET status = $2 WHERE id = $1`, id, string(game.StatusInterrupted))
    if err != nil {
        return fmt.Errorf("mark match %d interrupted: %w", id, err)
    }
    return expectRow(res, id)
}

// LoadResumable returns every match a restart should bring back.
func (s *MatchStore) LoadResumable(ctx context.Context) ([]models.MatchRecord, error) {
    return s.query(ctx, `SELECT `+matchColumns+` FROM matches WHERE status IN ($1, $2, $3) ORDER BY id`,
        string(game.StatusNotStarted), string(game.StatusActive), string(game.StatusResetting))
}

func (s *MatchStore) ListMatches(ctx context.Context) ([]models.MatchRecord, error) {
    return s.query(ctx, `SELECT `+matchColumns+` FROM matches ORDER BY match_time DESC, id DESC`)
}

func (s *MatchStore) GetMatch(ctx context.Context, id int64) (models.MatchRecord, error) {
    row := s.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
    m, err := scanMatch(row)
    if errors.Is(err, sql.ErrNoRows) {
        return models.MatchRecord{}, models.ErrMatchNotFound
    }
    if err != nil {
        return models.MatchRecord{}, fmt.Errorf("get match %d: %w", id, err)
    }
    return m, nil
}

func (s *MatchStore) query(ctx context.Context, q string, args ...any) ([]models.MatchRecord, error) {
    rows, err := s.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, fmt.Errorf("query matches: %w", err)
    }
    defer rows.Close()

    var out []models.MatchRecord
    for rows.Next() {
        m, err := scanMatch(rows)
        if err != nil {
            return nil, fmt.Errorf("scan match: %w", err)
        }
        out = append(out, m)
    }
    return out, rows.Err()
}

type scanner interface {
    Scan(dest ...any) error
}

func scanMatch(sc scanner) (models.MatchRecord, error) {
    var (
        m             models.MatchRecord
        winner, loser sql.NullInt64
    )
    err := sc.Scan(&m.ID, &m.Player1ID, &m.Player2ID, &m.Player1Score, &m.Player2Score, &m.Status,
        &m.FinishedRounds, &winner, &loser, &m.MatchTime)
    if err != nil {
        return m, err
    }
    if winner.Valid {
        m.WinnerID = &winner.Int64
    }
    if loser.Valid {
        m.LoserID = &loser.Int64
    }
    return m, nil
}

func nullInt64(p *int64) sql.NullInt64 {
    if p == nil {
        return sql.NullInt64{}
    }
    return sql.NullInt64{Int64: *p, Valid: true}
}

func expectRow(res sql.Result, id int64) error {
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return fmt.Errorf("match %d: %w", id, models.ErrMatchNotFound)
    }
    return nil
}
