package storage

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// WatchlistStore keeps the durable set of watched symbols. Market data for
// the entries is never stored here; it is looked up in the registry at read
// time so the watchlist can never show a stale copy.
type WatchlistStore struct {
	collection *mongo.Collection
}

func NewWatchlistStore(client *mongo.Client, database string) *WatchlistStore {
	return &WatchlistStore{collection: client.Database(database).Collection("watchlist")}
}

// Add records a watched symbol. Adding an already-watched symbol is a no-op.
func (s *WatchlistStore) Add(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(symbol)
	_, err := s.collection.UpdateOne(
		ctx,
		bson.M{"_id": symbol},
		bson.M{"$setOnInsert": bson.M{"_id": symbol}},
		options.Update().SetUpsert(true),
	)
	return err
}

// Remove drops a watched symbol. Removing an unknown symbol is a no-op.
func (s *WatchlistStore) Remove(ctx context.Context, symbol string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": strings.ToUpper(symbol)})
	return err
}

// Symbols returns all watched symbols in lexicographic order.
func (s *WatchlistStore) Symbols(ctx context.Context) ([]string, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []struct {
		Symbol string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(docs))
	for _, doc := range docs {
		symbols = append(symbols, doc.Symbol)
	}
	return symbols, nil
}
