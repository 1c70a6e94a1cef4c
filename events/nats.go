package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mapleleafu/pongarena/pongarena-backend/models"
)

// SubjectMatchEnded carries one MatchArchive per finished or interrupted match.
const SubjectMatchEnded = "pong.match.finished"

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
    Publish(subject string, data []byte) error
    FlushWithContext(ctx context.Context) error
    Drain() error
}

type NATSPublisher struct {
    conn    Conn
    subject string
}

func NewNATSPublisher(conn Conn) *NATSPublisher {
    return &NATSPublisher{conn: conn, subject: SubjectMatchEnded}
}

// Connect dials url and keeps reconnecting for as long as the process runs.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
    conn, err := nats.Connect(url,
        nats.Name("pongarena-backend"),
        nats.MaxReconnects(-1),
        nats.ReconnectWait(time.Second),
        nats.PingInterval(20*time.Second),
        nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
            if err != nil {
                logger.Warn("nats disconnected", "error", err)
            }
        }),
        nats.ReconnectHandler(func(c *nats.Conn) {
            logger.Info("nats reconnected", "url", c.ConnectedUrl())
        }),
    )
    if err != nil {
        return nil, fmt.Errorf("connect nats: %w", err)
    }
    return conn, nil
}

func (p *NATSPublisher) PublishMatchEnded(ctx context.Context, doc models.MatchArchive) error {
    data, err := json.Marshal(doc)
    if err != nil {
        return fmt.Errorf("encode match %d event: %w", doc.MatchID, err)
    }
    if err := p.conn.Publish(p.subject, data); err != nil {
        return fmt.Errorf("publish match %d event: %w", doc.MatchID, err)
    }
    return p.conn.FlushWithContext(ctx)
}

// Close drains pending messages before closing the connection.
func (p *NATSPublisher) Close() error {
    return p.conn.Drain()
}
