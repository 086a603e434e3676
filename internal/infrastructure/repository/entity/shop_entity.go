package entity

import (
	"time"

	"free-shipping-bar/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoShopDoc represents a shop in MongoDB
type MongoShopDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Domain      string             `bson:"domain"`
	AccessToken string             `bson:"accessToken"`
	Scope       string             `bson:"scope"`
	Uninstalled bool               `bson:"uninstalled"`
	InstalledAt time.Time          `bson:"installedAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoShopDoc) ToDomain() *domain.Shop {
	return &domain.Shop{
		Domain:      d.Domain,
		AccessToken: d.AccessToken,
		Scope:       d.Scope,
		InstalledAt: d.InstalledAt,
		UpdatedAt:   d.UpdatedAt,
		Uninstalled: d.Uninstalled,
	}
}

// MongoSettingsDoc represents a shop's bar settings in MongoDB
type MongoSettingsDoc struct {
	Shop           string    `bson:"shop"`
	ThresholdCents int64     `bson:"thresholdCents"`
	Position       string    `bson:"position"`
	BannerText     string    `bson:"bannerText"`
	TopText        *string   `bson:"topText"`
	BottomText     *string   `bson:"bottomText"`
	Background     string    `bson:"bg"`
	Foreground     string    `bson:"fg"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoSettingsDoc) ToDomain() *domain.Settings {
	return &domain.Settings{
		Shop:           d.Shop,
		ThresholdCents: d.ThresholdCents,
		Position:       domain.ParsePosition(d.Position),
		BannerText:     d.BannerText,
		TopText:        d.TopText,
		BottomText:     d.BottomText,
		Background:     d.Background,
		Foreground:     d.Foreground,
		UpdatedAt:      d.UpdatedAt,
	}
}

// MongoSettingsDocFromDomain converts a domain entity to a MongoDB document
func MongoSettingsDocFromDomain(s *domain.Settings) *MongoSettingsDoc {
	return &MongoSettingsDoc{
		Shop:           s.Shop,
		ThresholdCents: s.ThresholdCents,
		Position:       string(domain.ParsePosition(string(s.Position))),
		BannerText:     s.BannerText,
		TopText:        s.TopText,
		BottomText:     s.BottomText,
		Background:     s.Background,
		Foreground:     s.Foreground,
		UpdatedAt:      s.UpdatedAt,
	}
}
