package handlers

import (
	"errors"

	"github.com/gorilla/websocket"
	"github.com/mapleleafu/pongarena/pongarena-backend/game"
	"github.com/mapleleafu/pongarena/pongarena-backend/models"
	"github.com/mapleleafu/pongarena/pongarena-backend/registry"
)

const invalidMessageReason = "Invalid auth or message"

// maxCloseReason is the room left for a reason in a close frame.
const maxCloseReason = 123

func (h *Hub) processMessage(c *Connection, rawMessage []byte) {
    msg, err := models.ParseClientMessage(rawMessage)
    if err != nil {
        h.logger.Debug("rejecting message", "conn", c.id, "error", err)
        h.reject(c, err)
        return
    }

    switch m := msg.(type) {
    case models.JoinMulti:
        h.handleJoinMulti(c, m)
    case models.JoinSingle:
        h.handleJoinSingle(c, m)
    case models.ControlInput:
        h.handleInput(c, m)
    }
}

func (h *Hub) handleJoinMulti(c *Connection, m models.JoinMulti) {
    claims, err := h.validator.ValidateToken(m.Token)
    if err != nil {
        h.logger.Debug("join rejected", "conn", c.id, "error", err)
        h.reject(c, err)
        return
    }

    matchID := int64(m.GameID)
    settings, err := h.matches.JoinMultiplayer(matchID, claims.ID)
    if err != nil {
        h.logger.Info("join rejected", "conn", c.id, "match_id", matchID, "user_id", claims.ID, "error", err)
        h.reject(c, err)
        return
    }

    h.attach(c, registry.Key{Type: game.MultiPlayer, ID: matchID}, claims.ID, settings)
}

func (h *Hub) handleJoinSingle(c *Connection, m models.JoinSingle) {
    claims, err := h.validator.ValidateToken(m.Token)
    if err != nil {
        h.logger.Debug("join rejected", "conn", c.id, "error", err)
        h.reject(c, err)
        return
    }

    matchID := int64(m.GameID)
    settings, err := h.matches.JoinSingleplayer(matchID)
    if err != nil {
        h.logger.Info("join rejected", "conn", c.id, "match_id", matchID, "user_id", claims.ID, "error", err)
        h.reject(c, err)
        return
    }

    h.attach(c, registry.Key{Type: game.SinglePlayer, ID: matchID}, claims.ID, settings)
}

// attach binds c after a successful join and sends the board settings.
func (h *Hub) attach(c *Connection, key registry.Key, userID int64, settings game.Settings) {
    ok, prev := h.bind(c, key, userID)
    if !ok {
        // Closed while joining: undo the join.
        h.matches.Disconnect(key, userID)
        return
    }
    if prev != nil {
        h.leave(prev)
    }

    msg, err := models.Encode(models.MsgSettings, settings)
    if err != nil {
        h.logger.Error("encode settings", "error", err)
        return
    }
    h.sendTo(c, msg)
    h.logger.Info("player joined", "conn", c.id, "match", key, "user_id", userID)
}

func (h *Hub) handleInput(c *Connection, m models.ControlInput) {
    b := h.bindingOf(c)
    if b == nil {
        h.logger.Debug("input before join ignored", "conn", c.id)
        return
    }

    if b.key.Type == game.SinglePlayer {
        if err := h.matches.SingleInput(b.key.ID, m.InputPlayer1, m.InputPlayer2); err != nil {
            h.reject(c, err)
        }
        return
    }

    accepted, err := h.matches.Input(b.key.ID, b.userID, m.Input)
    if err != nil {
        h.reject(c, err)
        return
    }
    if !accepted {
        h.logger.Debug("input rejected", "conn", c.id, "match", b.key, "input", m.Input)
    }
}

// reject closes c with 1008. Registry errors carry their own reason.
func (h *Hub) reject(c *Connection, err error) {
    reason := invalidMessageReason
    var ge *registry.GameError
    if errors.As(err, &ge) {
        reason = ge.Msg
    }
    if len(reason) > maxCloseReason {
        reason = reason[:maxCloseReason]
    }
    h.closeConn(c, websocket.ClosePolicyViolation, reason)
}
