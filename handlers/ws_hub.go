package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mapleleafu/pongarena/pongarena-backend/game"
	"github.com/mapleleafu/pongarena/pongarena-backend/models"
	"github.com/mapleleafu/pongarena/pongarena-backend/registry"
)

// MatchService is the part of the registry the router drives.
type MatchService interface {
    JoinMultiplayer(matchID, playerID int64) (game.Settings, error)
    JoinSingleplayer(matchID int64) (game.Settings, error)
    Input(matchID, playerID int64, token string) (bool, error)
    SingleInput(matchID int64, input1, input2 string) error
    Disconnect(key registry.Key, playerID int64) (game.Snapshot, bool)
}

type HubOptions struct {
    // SendQueueSize bounds the outbound frames buffered per connection.
    SendQueueSize int
    // MaxMissedSends is how many consecutive frames a connection may drop
    // before it is disconnected as a slow consumer.
    MaxMissedSends    int
    HeartbeatInterval time.Duration
    WriteWait         time.Duration
    MaxMessageSize    int64
}

func DefaultHubOptions() HubOptions {
    return HubOptions{
        SendQueueSize:     16,
        MaxMissedSends:    3,
        HeartbeatInterval: 5 * time.Second,
        WriteWait:         10 * time.Second,
        MaxMessageSize:    4096,
    }
}

func (o *HubOptions) applyDefaults() {
    d := DefaultHubOptions()
    if o.SendQueueSize <= 0 {
        o.SendQueueSize = d.SendQueueSize
    }
    if o.MaxMissedSends <= 0 {
        o.MaxMissedSends = d.MaxMissedSends
    }
    if o.HeartbeatInterval <= 0 {
        o.HeartbeatInterval = d.HeartbeatInterval
    }
    if o.WriteWait <= 0 {
        o.WriteWait = d.WriteWait
    }
    if o.MaxMessageSize <= 0 {
        o.MaxMessageSize = d.MaxMessageSize
    }
}

type binding struct {
    key    registry.Key
    userID int64
}

// Connection represents a WebSocket connection and the match it is bound to.
type Connection struct {
    id     string
    ws     *websocket.Conn
    send   chan []byte
    alive  atomic.Bool
    missed atomic.Int32

    // Guarded by Hub.mu.
    binding     *binding
    closed      bool
    closeCode   int
    closeReason string
}

// Hub maintains the set of active connections and which match each one is bound to.
type Hub struct {
    matches   MatchService
    validator TokenValidator
    logger    *slog.Logger
    opts      HubOptions
    upgrader  websocket.Upgrader

    mu      sync.RWMutex
    conns   map[*Connection]struct{}
    byMatch map[registry.Key]map[*Connection]struct{}
}

func NewHub(matches MatchService, validator TokenValidator, logger *slog.Logger, opts HubOptions) *Hub {
    opts.applyDefaults()
    if logger == nil {
        logger = slog.Default()
    }
    return &Hub{
        matches:   matches,
        validator: validator,
        logger:    logger.With("component", "hub"),
        opts:      opts,
        upgrader: websocket.Upgrader{
            ReadBufferSize:  1024,
            WriteBufferSize: 1024,
            CheckOrigin:     func(r *http.Request) bool { return true },
        },
        conns:   make(map[*Connection]struct{}),
        byMatch: make(map[registry.Key]map[*Connection]struct{}),
    }
}

func (h *Hub) register(ws *websocket.Conn) *Connection {
    c := &Connection{
        id:   uuid.NewString(),
        ws:   ws,
        send: make(chan []byte, h.opts.SendQueueSize),
    }
    c.alive.Store(true)

    h.mu.Lock()
    h.conns[c] = struct{}{}
    h.mu.Unlock()
    return c
}

// unregister drops a connection whose read side ended and pauses its match.
func (h *Hub) unregister(c *Connection) {
    h.mu.Lock()
    b := h.releaseLocked(h.unbindLocked(c))
    delete(h.conns, c)
    h.closeLocked(c, websocket.CloseNormalClosure, "")
    h.mu.Unlock()

    h.logger.Debug("connection closed", "conn", c.id)
    if b != nil {
        h.leave(b)
    }
}

// leave pauses the match a connection was bound to and tells the rest of it.
func (h *Hub) leave(b *binding) {
    snap, ok := h.matches.Disconnect(b.key, b.userID)
    if !ok {
        return
    }
    msg, err := models.Encode(models.MsgState, snap)
    if err != nil {
        h.logger.Error("encode state", "match", b.key, "error", err)
        return
    }
    h.Broadcast(b.key, msg)
}

// bind attaches c to a match. It reports false when c is already closed, and
// returns the binding it replaced, if any.
func (h *Hub) bind(c *Connection, key registry.Key, userID int64) (bool, *binding) {
    h.mu.Lock()
    defer h.mu.Unlock()

    if c.closed {
        return false, nil
    }
    prev := h.releaseLocked(h.unbindLocked(c))
    if prev != nil && prev.key == key {
        prev = nil
    }
    c.binding = &binding{key: key, userID: userID}
    set, ok := h.byMatch[key]
    if !ok {
        set = make(map[*Connection]struct{})
        h.byMatch[key] = set
    }
    set[c] = struct{}{}
    return true, prev
}

// releaseLocked returns b unless another connection of the same user is
// still bound to b's match, in which case the player has not left.
func (h *Hub) releaseLocked(b *binding) *binding {
    if b == nil {
        return nil
    }
    for other := range h.byMatch[b.key] {
        if other.binding != nil && other.binding.userID == b.userID {
            return nil
        }
    }
    return b
}

func (h *Hub) unbindLocked(c *Connection) *binding {
    b := c.binding
    if b == nil {
        return nil
    }
    c.binding = nil
    if set, ok := h.byMatch[b.key]; ok {
        delete(set, c)
        if len(set) == 0 {
            delete(h.byMatch, b.key)
        }
    }
    return b
}

func (h *Hub) bindingOf(c *Connection) *binding {
    h.mu.RLock()
    defer h.mu.RUnlock()
    return c.binding
}

// closeLocked queues a close frame behind whatever is already in the send queue.
func (h *Hub) closeLocked(c *Connection, code int, reason string) {
    if c.closed {
        return
    }
    c.closed = true
    c.closeCode = code
    c.closeReason = reason
    close(c.send)
}

func (h *Hub) closeConn(c *Connection, code int, reason string) {
    h.mu.Lock()
    defer h.mu.Unlock()
    h.closeLocked(c, code, reason)
}

// offer enqueues without blocking. It reports whether c has now missed too
// many frames in a row.
func (h *Hub) offer(c *Connection, msg []byte) (slow bool) {
    if c.closed {
        return false
    }
    select {
    case c.send <- msg:
        c.missed.Store(0)
        return false
    default:
        n := c.missed.Add(1)
        h.logger.Debug("send queue full, dropping frame", "conn", c.id, "missed", n)
        return int(n) >= h.opts.MaxMissedSends
    }
}

func (h *Hub) sendTo(c *Connection, msg []byte) {
    h.mu.RLock()
    slow := h.offer(c, msg)
    h.mu.RUnlock()
    if slow {
        h.dropSlow(c)
    }
}

// Broadcast sends msg to every connection bound to key.
func (h *Hub) Broadcast(key registry.Key, msg []byte) {
    var slow []*Connection

    h.mu.RLock()
    for c := range h.byMatch[key] {
        if h.offer(c, msg) {
            slow = append(slow, c)
        }
    }
    h.mu.RUnlock()

    for _, c := range slow {
        h.dropSlow(c)
    }
}

func (h *Hub) dropSlow(c *Connection) {
    h.logger.Warn("disconnecting slow consumer", "conn", c.id, "missed", c.missed.Load())
    h.closeConn(c, websocket.CloseTryAgainLater, "Too slow")
    // Closing the socket unblocks a stuck writer and ends the read pump.
    deadline := time.Now().Add(time.Second)
    _ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Too slow"), deadline)
    _ = c.ws.Close()
}

// CloseMatch detaches and closes every connection bound to key.
func (h *Hub) CloseMatch(key registry.Key, reason string) {
    h.mu.Lock()
    defer h.mu.Unlock()

    for c := range h.byMatch[key] {
        c.binding = nil
        h.closeLocked(c, websocket.CloseNormalClosure, reason)
    }
    delete(h.byMatch, key)
}

// BoundMatches lists every match with at least one bound connection.
func (h *Hub) BoundMatches() []registry.Key {
    h.mu.RLock()
    defer h.mu.RUnlock()

    keys := make([]registry.Key, 0, len(h.byMatch))
    for key := range h.byMatch {
        keys = append(keys, key)
    }
    return keys
}

func (h *Hub) Len() int {
    h.mu.RLock()
    defer h.mu.RUnlock()
    return len(h.conns)
}

// Stop closes every connection with 1001.
func (h *Hub) Stop() {
    h.mu.Lock()
    defer h.mu.Unlock()

    for c := range h.conns {
        h.closeLocked(c, websocket.CloseGoingAway, "Server shutting down")
    }
    h.logger.Info("hub stopped", "connections", len(h.conns))
}
