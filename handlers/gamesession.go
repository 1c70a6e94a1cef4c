package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mapleleafu/pongarena/pongarena-backend/game"
	"github.com/mapleleafu/pongarena/pongarena-backend/models"
	"github.com/mapleleafu/pongarena/pongarena-backend/pkg/responses"
	"github.com/mapleleafu/pongarena/pongarena-backend/registry"
	"github.com/mapleleafu/pongarena/pongarena-backend/utils"
)

// MatchCreator registers a freshly stored match with the live registry.
type MatchCreator interface {
    CreateMultiplayerGame(ctx context.Context, id, player1ID, player2ID int64) error
    CreateSingleplayerGame(ctx context.Context, id, player1ID, player2ID int64) error
}

type MatchRecords interface {
    CreateMatchRecord(ctx context.Context, player1ID, player2ID int64) (int64, error)
    ListMatches(ctx context.Context) ([]models.MatchRecord, error)
    GetMatch(ctx context.Context, id int64) (models.MatchRecord, error)
}

// GameHandler serves the REST side of match management.
type GameHandler struct {
    matches  MatchCreator
    records  MatchRecords
    accounts registry.AccountLookup
    logger   *slog.Logger
}

func NewGameHandler(matches MatchCreator, records MatchRecords, accounts registry.AccountLookup, logger *slog.Logger) *GameHandler {
    if logger == nil {
        logger = slog.Default()
    }
    return &GameHandler{
        matches:  matches,
        records:  records,
        accounts: accounts,
        logger:   logger.With("component", "games"),
    }
}

type createGameRequest struct {
    Player1ID int64 `json:"player1_id"`
    Player2ID int64 `json:"player2_id"`
}

func (gh *GameHandler) NewMultiplayerGame(w http.ResponseWriter, r *http.Request) {
    gh.createGame(w, r, game.MultiPlayer)
}

func (gh *GameHandler) NewSingleplayerGame(w http.ResponseWriter, r *http.Request) {
    gh.createGame(w, r, game.SinglePlayer)
}

func (gh *GameHandler) createGame(w http.ResponseWriter, r *http.Request, gameType game.GameType) {
    var req createGameRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        utils.HandleError(w, responses.BadRequestError{Msg: "Invalid request."})
        return
    }
    if req.Player1ID == req.Player2ID {
        utils.HandleError(w, responses.BadRequestError{Msg: "player1_id and player2_id must differ."})
        return
    }

    ctx := r.Context()
    for _, p := range []struct {
        field string
        id    int64
    }{{"player1_id", req.Player1ID}, {"player2_id", req.Player2ID}} {
        if _, err := gh.accounts.ResolveUsername(ctx, p.id); err != nil {
            if errors.Is(err, models.ErrAccountNotFound) {
                utils.HandleError(w, responses.BadRequestError{Msg: fmt.Sprintf("%s %d does not exist", p.field, p.id)})
                return
            }
            gh.logger.Error("account lookup failed", "player_id", p.id, "error", err)
            utils.HandleError(w, err)
            return
        }
    }

    id, err := gh.records.CreateMatchRecord(ctx, req.Player1ID, req.Player2ID)
    if err != nil {
        gh.logger.Error("failed to store match", "error", err)
        utils.HandleError(w, responses.InternalServerError{Msg: "Failed to create game."})
        return
    }

    if gameType == game.MultiPlayer {
        err = gh.matches.CreateMultiplayerGame(ctx, id, req.Player1ID, req.Player2ID)
    } else {
        err = gh.matches.CreateSingleplayerGame(ctx, id, req.Player1ID, req.Player2ID)
    }
    if err != nil {
        gh.logger.Error("failed to register match", "match_id", id, "type", gameType, "error", err)
        utils.HandleError(w, gameErrorToAPI(err))
        return
    }

    gh.logger.Info("game created", "match_id", id, "type", gameType)
    utils.HandleSuccess(w, models.SuccessResponse(map[string]int64{"id": id}))
}

func gameErrorToAPI(err error) error {
    var ge *registry.GameError
    if !errors.As(err, &ge) {
        return err
    }
    switch ge.Kind {
    case registry.BadPlayerID, registry.AccountNotFound:
        return responses.BadRequestError{Msg: ge.Msg}
    case registry.GameIDAlreadyExists:
        return responses.ConflictError{Msg: ge.Msg}
    case registry.GameDoesNotExist:
        return responses.NotFoundError{Msg: ge.Msg}
    default:
        return err
    }
}
