package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessage(t *testing.T) {
    tests := []struct {
        name    string
        raw     string
        want    ClientMessage
        wantErr bool
    }{
        {
            name: "join multi with numeric id",
            raw:  `{"type":"join_multi","payload":{"token":"abc","game_id":12}}`,
            want: JoinMulti{JoinPayload{Token: "abc", GameID: 12}},
        },
        {
            name: "join single with string id",
            raw:  `{"type":"join_single","payload":{"token":"abc","game_id":"7"}}`,
            want: JoinSingle{JoinPayload{Token: "abc", GameID: 7}},
        },
        {
            name: "multiplayer input",
            raw:  `{"type":"input","payload":{"input":"up"}}`,
            want: ControlInput{InputPayload{Input: "up"}},
        },
        {
            name: "single player input",
            raw:  `{"type":"input","payload":{"input_player1":"down","input_player2":"none"}}`,
            want: ControlInput{InputPayload{InputPlayer1: "down", InputPlayer2: "none"}},
        },
        {name: "not json", raw: `hello`, wantErr: true},
        {name: "empty frame", raw: ``, wantErr: true},
        {name: "unknown type", raw: `{"type":"state","payload":{}}`, wantErr: true},
        {name: "missing payload", raw: `{"type":"join_multi"}`, wantErr: true},
        {name: "join without token", raw: `{"type":"join_multi","payload":{"game_id":1}}`, wantErr: true},
        {name: "non numeric game id", raw: `{"type":"join_multi","payload":{"token":"t","game_id":"abc"}}`, wantErr: true},
    }

    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            got, err := ParseClientMessage([]byte(tt.raw))
            if tt.wantErr {
                require.Error(t, err)
                assert.ErrorIs(t, err, ErrInvalidMessage)
                return
            }
            require.NoError(t, err)
            assert.Equal(t, tt.want, got)
        })
    }
}

func TestEncode(t *testing.T) {
    b, err := Encode(MsgSettings, map[string]int{"board_width": 800})
    require.NoError(t, err)

    var env Envelope
    require.NoError(t, json.Unmarshal(b, &env))
    assert.Equal(t, MsgSettings, env.Type)
    assert.JSONEq(t, `{"board_width":800}`, string(env.Payload))

    _, err = Encode("", nil)
    assert.Error(t, err)
}
