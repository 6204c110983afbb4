package config

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectDB opens the mongo client used by the storage package. Mongo is an
// archive sink only; the engine never reads its own state back from it, so a
// connection failure is reported to the caller instead of killing the process.
func ConnectDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	slog.Info("connected to MongoDB", slog.String("database", cfg.Mongo.Database))
	return client, nil
}

// DisconnectDB closes the mongo connection on shutdown.
func DisconnectDB(client *mongo.Client) {
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		slog.Error("mongo disconnect failed", slog.Any("error", err))
	}
}
