package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

type MessageType string

const (
    MsgJoinMulti    MessageType = "join_multi"
    MsgJoinSingle   MessageType = "join_single"
    MsgControlInput MessageType = "input"
    MsgSettings     MessageType = "settings"
    MsgState        MessageType = "state"
)

var ErrInvalidMessage = errors.New("invalid message")

// Envelope is the frame every websocket message travels in.
type Envelope struct {
    Type    MessageType     `json:"type"`
    Payload json.RawMessage `json:"payload"`
}

// MatchID accepts both 12 and "12" on the wire.
type MatchID int64

func (id *MatchID) UnmarshalJSON(b []byte) error {
    b = bytes.Trim(b, `"`)
    n, err := strconv.ParseInt(string(b), 10, 64)
    if err != nil {
        return fmt.Errorf("game_id %q: %w", b, ErrInvalidMessage)
    }
    *id = MatchID(n)
    return nil
}

type JoinPayload struct {
    Token  string  `json:"token"`
    GameID MatchID `json:"game_id"`
}

type InputPayload struct {
    Input        string `json:"input,omitempty"`
    InputPlayer1 string `json:"input_player1,omitempty"`
    InputPlayer2 string `json:"input_player2,omitempty"`
}

// ClientMessage is one of JoinMulti, JoinSingle or ControlInput.
type ClientMessage interface {
    clientMessage()
}

type JoinMulti struct{ JoinPayload }
type JoinSingle struct{ JoinPayload }
type ControlInput struct{ InputPayload }

func (JoinMulti) clientMessage()    {}
func (JoinSingle) clientMessage()   {}
func (ControlInput) clientMessage() {}

// ParseClientMessage validates an inbound frame. Any error means the sender
// violated the protocol.
func ParseClientMessage(b []byte) (ClientMessage, error) {
    if len(b) == 0 {
        return nil, fmt.Errorf("empty frame: %w", ErrInvalidMessage)
    }
    var env Envelope
    if err := json.Unmarshal(b, &env); err != nil {
        return nil, fmt.Errorf("decode envelope: %v: %w", err, ErrInvalidMessage)
    }

    switch env.Type {
    case MsgJoinMulti, MsgJoinSingle:
        p, err := decodePayload[JoinPayload](env)
        if err != nil {
            return nil, err
        }
        if p.Token == "" {
            return nil, fmt.Errorf("%s without token: %w", env.Type, ErrInvalidMessage)
        }
        if env.Type == MsgJoinMulti {
            return JoinMulti{p}, nil
        }
        return JoinSingle{p}, nil
    case MsgControlInput:
        p, err := decodePayload[InputPayload](env)
        if err != nil {
            return nil, err
        }
        return ControlInput{p}, nil
    default:
        return nil, fmt.Errorf("unexpected message type %q: %w", env.Type, ErrInvalidMessage)
    }
}

func decodePayload[T any](env Envelope) (T, error) {
    var out T
    if len(env.Payload) == 0 || string(env.Payload) == "null" {
        return out, fmt.Errorf("empty payload for %q: %w", env.Type, ErrInvalidMessage)
    }
    if err := json.Unmarshal(env.Payload, &out); err != nil {
        if errors.Is(err, ErrInvalidMessage) {
            return out, err
        }
        return out, fmt.Errorf("decode %q payload: %v: %w", env.Type, err, ErrInvalidMessage)
    }
    return out, nil
}

// Encode builds an outbound frame.
func Encode(t MessageType, payload any) ([]byte, error) {
    if t == "" {
        return nil, errors.New("encode: empty message type")
    }
    pb, err := json.Marshal(payload)
    if err != nil {
        return nil, err
    }
    return json.Marshal(Envelope{Type: t, Payload: pb})
}
