package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mapleleafu/pongarena/pongarena-backend/middleware"
	"github.com/mapleleafu/pongarena/pongarena-backend/models"
	"github.com/mapleleafu/pongarena/pongarena-backend/utils"
)

func NewRouter(hub *Hub, games *GameHandler, validator TokenValidator) *mux.Router {
    r := mux.NewRouter()

    // Public routes
    r.HandleFunc("/game", hub.ServeWS)
    r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
        utils.HandleSuccess(w, models.SuccessResponse(map[string]int{"connections": hub.Len()}))
    }).Methods(http.MethodGet)

    // Secured routes
    secured := r.PathPrefix("/api").Subrouter()
    secured.Use(middleware.JWTValidationMiddleware(validator))
    secured.HandleFunc("/game/new-multiplayer", games.NewMultiplayerGame).Methods(http.MethodPost)
    secured.HandleFunc("/game/new-singleplayer", games.NewSingleplayerGame).Methods(http.MethodPost)
    secured.HandleFunc("/game", games.ListGames).Methods(http.MethodGet)
    secured.HandleFunc("/game/{id}", games.GetGame).Methods(http.MethodGet)
    return r
}
