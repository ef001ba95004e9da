package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// cartTTL drops carts nobody touched for this long.
const cartTTL = 30 * 24 * time.Hour

type MongoRepository struct {
	collection *mongo.Collection
}

var _ Repository = (*MongoRepository)(nil)

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client.Database(database), nil
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection("carts")}
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}
	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoRepository) GetCart(ctx context.Context, sessionID string) (*Cart, error) {
	var c Cart
	err := m.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if c.Items == nil {
		c.Items = []Item{}
	}
	return &c, nil
}

func (m *MongoRepository) AddItem(ctx context.Context, sessionID string, item Item) error {
	now := time.Now().UTC()
	item.AddedAt = now
	item.Quantity = clampQuantity(item.Quantity)
	filter := bson.M{"session_id": sessionID}

	existing, err := m.GetCart(ctx, sessionID)
	if errors.Is(err, ErrCartNotFound) {
		c := newCart(sessionID)
		c.Items = []Item{item}
		update := bson.M{"$setOnInsert": c}
		if _, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return fmt.Errorf("failed to create cart with item: %w", err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	for _, it := range existing.Items {
		if !it.same(item.ProductID, item.VariantKey) {
			continue
		}
		update := bson.M{
			"$set": bson.M{
				"items.$[elem].quantity": clampQuantity(it.Quantity + item.Quantity),
				"items.$[elem].added_at": now,
				"updated_at":             now,
			},
		}
		opts := options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{
				bson.M{"elem.product_id": item.ProductID, "elem.variant_key": item.VariantKey},
			},
		})
		if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
			return fmt.Errorf("failed to update existing item: %w", err)
		}
		return nil
	}

	update := bson.M{
		"$push": bson.M{"items": item},
		"$set":  bson.M{"updated_at": now},
	}
	if _, err := m.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to add new item: %w", err)
	}
	return nil
}

func (m *MongoRepository) UpdateItemQuantity(ctx context.Context, sessionID, productID, variant string, quantity int) error {
	filter := bson.M{
		"session_id": sessionID,
		"items":      bson.M{"$elemMatch": bson.M{"product_id": productID, "variant_key": variant}},
	}
	update := bson.M{
		"$set": bson.M{
			"items.$[elem].quantity": clampQuantity(quantity),
			"updated_at":             time.Now().UTC(),
		},
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.product_id": productID, "elem.variant_key": variant},
		},
	})

	result, err := m.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *MongoRepository) RemoveItem(ctx context.Context, sessionID, productID, variant string) error {
	update := bson.M{
		"$pull": bson.M{"items": bson.M{"product_id": productID, "variant_key": variant}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	result, err := m.collection.UpdateOne(ctx, bson.M{"session_id": sessionID}, update)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, sessionID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}
