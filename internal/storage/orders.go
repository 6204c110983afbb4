package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trading-engine/internal/models"
)

// orderDoc is the archive representation of an order. Prices are stored as
// strings so the exact decimal survives the round trip.
type orderDoc struct {
	ID                   string    `bson:"_id"`
	Symbol               string    `bson:"symbol"`
	Side                 string    `bson:"side"`
	Quantity             int64     `bson:"quantity"`
	ExecutionPrice       string    `bson:"execution_price"`
	Timestamp            time.Time `bson:"timestamp"`
	ResultingCashBalance string    `bson:"resulting_cash_balance"`
}

// OrderArchive is a write-behind sink for settled orders. The engine's
// in-memory order log stays authoritative; the archive only serves durable
// history across restarts.
type OrderArchive struct {
	collection *mongo.Collection
}

func NewOrderArchive(client *mongo.Client, database string) *OrderArchive {
	return &OrderArchive{collection: client.Database(database).Collection("orders")}
}

// Record persists one settled order.
func (a *OrderArchive) Record(ctx context.Context, order models.Order) error {
	doc := orderDoc{
		ID:                   order.ID,
		Symbol:               order.Symbol,
		Side:                 string(order.Side),
		Quantity:             order.Quantity,
		ExecutionPrice:       order.ExecutionPrice.String(),
		Timestamp:            order.Timestamp,
		ResultingCashBalance: order.ResultingCashBalance.String(),
	}
	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("archive order %s: %w", order.ID, err)
	}
	return nil
}

// Recent returns up to limit archived orders, newest first.
func (a *OrderArchive) Recent(ctx context.Context, limit int64) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cur, err := a.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := doc.toOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (d orderDoc) toOrder() (models.Order, error) {
	price, err := decimal.NewFromString(d.ExecutionPrice)
	if err != nil {
		return models.Order{}, fmt.Errorf("archived order %s has bad price %q: %w", d.ID, d.ExecutionPrice, err)
	}
	balance, err := decimal.NewFromString(d.ResultingCashBalance)
	if err != nil {
		return models.Order{}, fmt.Errorf("archived order %s has bad balance %q: %w", d.ID, d.ResultingCashBalance, err)
	}
	return models.Order{
		ID:                   d.ID,
		Symbol:               d.Symbol,
		Side:                 models.OrderSide(d.Side),
		Quantity:             d.Quantity,
		ExecutionPrice:       price,
		Timestamp:            d.Timestamp,
		ResultingCashBalance: balance,
	}, nil
}
