package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mapleleafu/pongarena/pongarena-backend/models"
)

const archiveCollection = "match_archive"

func ConnectMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
    ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
    defer cancel()

    client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
    if err != nil {
        return nil, fmt.Errorf("connect mongodb: %w", err)
    }

    if err := client.Ping(ctx, nil); err != nil {
        client.Disconnect(context.Background())
        return nil, fmt.Errorf("ping mongodb: %w", err)
    }
    return client, nil
}

// MongoArchive keeps one document per ended match.
type MongoArchive struct {
    coll *mongo.Collection
}

func NewMongoArchive(client *mongo.Client, database string) *MongoArchive {
    return &MongoArchive{coll: client.Database(database).Collection(archiveCollection)}
}

// Archive stores doc, replacing an earlier document for the same match.
func (a *MongoArchive) Archive(ctx context.Context, doc models.MatchArchive) error {
    _, err := a.coll.ReplaceOne(ctx,
        bson.M{"match_id": doc.MatchID},
        doc,
        options.Replace().SetUpsert(true),
    )
    if err != nil {
        return fmt.Errorf("archive match %d: %w", doc.MatchID, err)
    }
    return nil
}
