package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mapleleafu/pongarena/pongarena-backend/models"
	"github.com/mapleleafu/pongarena/pongarena-backend/pkg/responses"
	"github.com/mapleleafu/pongarena/pongarena-backend/utils"
)

func (gh *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
    games, err := gh.records.ListMatches(r.Context())
    if err != nil {
        gh.logger.Error("error fetching games", "error", err)
        utils.HandleError(w, responses.InternalServerError{Msg: "Failed to fetch games."})
        return
    }

    if len(games) == 0 {
        utils.HandleError(w, responses.NotFoundError{Msg: "No games found"})
        return
    }

    utils.HandleSuccess(w, models.SuccessResponse(games))
}

func (gh *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
    idStr := mux.Vars(r)["id"]
    id, err := strconv.ParseInt(idStr, 10, 64)
    if err != nil {
        utils.HandleError(w, responses.BadRequestError{Msg: "Invalid game id."})
        return
    }

    match, err := gh.records.GetMatch(r.Context(), id)
    if err != nil {
        if errors.Is(err, models.ErrMatchNotFound) {
            utils.HandleError(w, responses.NotFoundError{Msg: fmt.Sprintf("Game with id %d not found", id)})
            return
        }
        gh.logger.Error("error fetching game", "match_id", id, "error", err)
        utils.HandleError(w, responses.InternalServerError{Msg: "Failed to fetch game."})
        return
    }

    utils.HandleSuccess(w, models.SuccessResponse(match))
}
