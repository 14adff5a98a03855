package jobserver

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	jobsCollection      = "jobs"
	artifactsCollection = "artifacts"
)

// MongoDB is a connected client bound to one database. Both Mongo-backed
// stores can share it.
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
}

func ConnectMongo(ctx context.Context, uri, database string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	logrus.Infof("Connected to MongoDB database %s", database)
	return &MongoDB{client: client, database: client.Database(database)}, nil
}

func (d *MongoDB) Collection(name string) *mongo.Collection {
	return d.database.Collection(name)
}

func (d *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

func createIndex(coll *mongo.Collection, keys bson.D) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys}); err != nil {
		logrus.WithError(err).Warnf("Failed to create index on %s", coll.Name())
	}
}
