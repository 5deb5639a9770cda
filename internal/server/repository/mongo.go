package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores one document per cart row plus a products
// collection for catalog snapshots.
type MongoRepository struct {
	client   *mongo.Client
	items    *mongo.Collection
	products *mongo.Collection
}

type mongoProduct struct {
	ID             string  `bson:"_id"`
	Title          string  `bson:"title"`
	Price          float64 `bson:"price"`
	SellerID       string  `bson:"seller_id"`
	SellerName     string  `bson:"seller_name"`
	SellerBusiness bool    `bson:"seller_business"`
	SellerVerified bool    `bson:"seller_verified"`
}

type mongoItem struct {
	ID        string       `bson:"_id"`
	UserID    string       `bson:"user_id"`
	ProductID string       `bson:"product_id"`
	Quantity  int          `bson:"quantity"`
	Product   mongoProduct `bson:"product"`
	AddedAt   time.Time    `bson:"added_at"`
}

func ConnectMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client, nil
}

func NewMongoRepository(client *mongo.Client, database string) *MongoRepository {
	db := client.Database(database)
	return &MongoRepository{
		client:   client,
		items:    db.Collection("cart_items"),
		products: db.Collection("products"),
	}
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			// One row per (user, product); repeated adds must merge.
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "product_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}

	_, err := m.items.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func (m *MongoRepository) GetCart(ctx context.Context, userID string) ([]Item, error) {
	opts := options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}})
	cursor, err := m.items.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoItem
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}

	items := make([]Item, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.toItem())
	}
	return items, nil
}

func (m *MongoRepository) AddItem(ctx context.Context, userID, productID string, quantity int) (Item, error) {
	var product mongoProduct
	err := m.products.FindOne(ctx, bson.M{"_id": productID}).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Item{}, ErrProductNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("failed to look up product: %w", err)
	}

	now := time.Now()
	filter := bson.M{"user_id": userID, "product_id": productID}
	update := bson.M{
		"$inc": bson.M{"quantity": quantity},
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"user_id":    userID,
			"product_id": productID,
			"product":    product,
			"added_at":   now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc mongoItem
	if err := m.items.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return Item{}, fmt.Errorf("failed to upsert cart item: %w", err)
	}

	return doc.toItem(), nil
}

func (m *MongoRepository) UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error {
	res, err := m.items.UpdateOne(ctx,
		bson.M{"_id": itemID, "user_id": userID},
		bson.M{"$set": bson.M{"quantity": quantity}},
	)
	if err != nil {
		return fmt.Errorf("failed to update quantity: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *MongoRepository) RemoveItem(ctx context.Context, userID, itemID string) error {
	res, err := m.items.DeleteOne(ctx, bson.M{"_id": itemID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *MongoRepository) ClearCart(ctx context.Context, userID string) error {
	if _, err := m.items.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) UpsertProduct(ctx context.Context, p Product) error {
	// _id stays out of $set; it is immutable and comes from the filter on
	// insert.
	set := bson.M{
		"title":           p.Title,
		"price":           p.Price,
		"seller_id":       p.SellerID,
		"seller_name":     p.SellerName,
		"seller_business": p.SellerBusiness,
		"seller_verified": p.SellerVerified,
	}

	opts := options.Update().SetUpsert(true)
	_, err := m.products.UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": set}, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (d mongoItem) toItem() Item {
	return Item{
		ID:        d.ID,
		UserID:    d.UserID,
		ProductID: d.ProductID,
		Quantity:  d.Quantity,
		AddedAt:   d.AddedAt,
		Product: Product{
			ID:             d.Product.ID,
			Title:          d.Product.Title,
			Price:          d.Product.Price,
			SellerID:       d.Product.SellerID,
			SellerName:     d.Product.SellerName,
			SellerBusiness: d.Product.SellerBusiness,
			SellerVerified: d.Product.SellerVerified,
		},
	}
}
