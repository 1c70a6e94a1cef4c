package registry

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
    BadPlayerID ErrorKind = iota + 1
    GameIDAlreadyExists
    GameDoesNotExist
    PlayerNotInGame
    AccountNotFound
    UnknownGameType
)

func (k ErrorKind) String() string {
    switch k {
    case BadPlayerID:
        return "BAD_PLAYER_ID"
    case GameIDAlreadyExists:
        return "GAME_ID_ALREADY_EXISTS"
    case GameDoesNotExist:
        return "GAME_DOES_NOT_EXIST"
    case PlayerNotInGame:
        return "PLAYER_NOT_IN_GAME"
    case AccountNotFound:
        return "ACCOUNT_NOT_FOUND"
    case UnknownGameType:
        return "UNKNOWN_GAME_TYPE"
    default:
        return "UNKNOWN"
    }
}

// GameError is a registry failure a client can be told about. Msg is safe to
// use as a websocket close reason.
type GameError struct {
    Kind ErrorKind
    Msg  string
    Err  error
}

func (e *GameError) Error() string {
    if e.Err != nil {
        return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
    }
    return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *GameError) Unwrap() error {
    return e.Err
}

func newGameError(kind ErrorKind, format string, args ...any) *GameError {
    return &GameError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a GameError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
    var ge *GameError
    return errors.As(err, &ge) && ge.Kind == kind
}
