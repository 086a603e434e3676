package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"free-shipping-bar/internal/domain"
	"free-shipping-bar/internal/infrastructure/repository/entity"
	"free-shipping-bar/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var _ ports.Repository = (*MongoRepository)(nil)

// MongoRepository implements Repository using MongoDB
type MongoRepository struct {
	client             *mongo.Client
	shopsCollection    *mongo.Collection
	settingsCollection *mongo.Collection
}

// ConnectMongo dials uri and returns a repository on database.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	r := NewMongoRepository(client.Database(database))
	r.client = client
	return r, nil
}

// NewMongoRepository creates a new MongoDB repository
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		shopsCollection:    db.Collection("shops"),
		settingsCollection: db.Collection("settings"),
	}
}

// Ping ensures the server is reachable.
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.shopsCollection.Database().Client().Ping(ctx, readpref.Primary())
}

// Close disconnects the client when the repository owns it.
func (r *MongoRepository) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Disconnect(ctx)
}

// Migrate creates the unique indexes keying both collections. SQL migration
// files do not apply to MongoDB.
func (r *MongoRepository) Migrate(ctx context.Context, _ fs.FS) error {
	if _, err := r.shopsCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "domain", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create shops index: %w", err)
	}
	if _, err := r.settingsCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "shop", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create settings index: %w", err)
	}
	return nil
}

// SaveShop saves or updates a shop
func (r *MongoRepository) SaveShop(ctx context.Context, shop *domain.Shop) error {
	now := time.Now()
	shop.UpdatedAt = now
	installedAt := shop.InstalledAt
	if installedAt.IsZero() {
		installedAt = now
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"domain": shop.Domain}
	update := bson.M{
		"$set": bson.M{
			"accessToken": shop.AccessToken,
			"scope":       shop.Scope,
			"uninstalled": shop.Uninstalled,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{"installedAt": installedAt},
	}

	if _, err := r.shopsCollection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save shop: %w", err)
	}
	return nil
}

// GetShop retrieves a shop by domain
func (r *MongoRepository) GetShop(ctx context.Context, shopDomain string) (*domain.Shop, error) {
	var doc entity.MongoShopDoc
	filter := bson.M{"domain": shopDomain}

	err := r.shopsCollection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}

	return doc.ToDomain(), nil
}

// MarkUninstalled flags the shop and reports whether it existed.
func (r *MongoRepository) MarkUninstalled(ctx context.Context, shopDomain string) (bool, error) {
	res, err := r.shopsCollection.UpdateOne(ctx,
		bson.M{"domain": shopDomain},
		bson.M{"$set": bson.M{"uninstalled": true, "updatedAt": time.Now()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark shop uninstalled: %w", err)
	}
	return res.MatchedCount > 0, nil
}

// GetSettings retrieves the stored settings for shop.
func (r *MongoRepository) GetSettings(ctx context.Context, shop string) (*domain.Settings, error) {
	var doc entity.MongoSettingsDoc
	err := r.settingsCollection.FindOne(ctx, bson.M{"shop": shop}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return doc.ToDomain(), nil
}

// SaveSettings replaces the settings document for settings.Shop.
func (r *MongoRepository) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	settings.UpdatedAt = time.Now()
	doc := entity.MongoSettingsDocFromDomain(settings)

	opts := options.Replace().SetUpsert(true)
	if _, err := r.settingsCollection.ReplaceOne(ctx, bson.M{"shop": settings.Shop}, doc, opts); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// EnsureSettings inserts settings unless the shop already has a document.
func (r *MongoRepository) EnsureSettings(ctx context.Context, settings *domain.Settings) error {
	settings.UpdatedAt = time.Now()
	doc := entity.MongoSettingsDocFromDomain(settings)

	opts := options.Update().SetUpsert(true)
	update := bson.M{"$setOnInsert": doc}
	if _, err := r.settingsCollection.UpdateOne(ctx, bson.M{"shop": settings.Shop}, update, opts); err != nil {
		return fmt.Errorf("failed to ensure settings: %w", err)
	}
	return nil
}
