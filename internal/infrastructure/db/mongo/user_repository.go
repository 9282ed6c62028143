package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

const maxUpdateAttempts = 5

// UserRepository stores users with their price plans embedded, so a plan
// mutation and the status it implies are written in one document update.
type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(collectionUsers)}
}

type mongoUser struct {
	ID          string             `bson:"_id"`
	ExternalID  string             `bson:"external_id"`
	Handle      string             `bson:"handle"`
	HandleLower string             `bson:"handle_lower"`
	DisplayName string             `bson:"display_name"`
	AvatarURL   string             `bson:"avatar_url,omitempty"`
	Description string             `bson:"description"`
	Status      string             `bson:"status"`
	Plans       []domain.PricePlan `bson:"plans"`
	Version     int64              `bson:"version"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

func toMongoUser(u *domain.User) mongoUser {
	plans := u.Plans
	if plans == nil {
		plans = []domain.PricePlan{}
	}
	return mongoUser{
		ID:          u.ID,
		ExternalID:  u.ExternalID,
		Handle:      u.Handle,
		HandleLower: domain.NormalizeHandle(u.Handle),
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Description: u.Description,
		Status:      string(u.Status),
		Plans:       plans,
		Version:     u.Version,
		CreatedAt:   u.CreatedAt.UTC(),
		UpdatedAt:   u.UpdatedAt.UTC(),
	}
}

func (mu mongoUser) toDomain() *domain.User {
	plans := mu.Plans
	if plans == nil {
		plans = []domain.PricePlan{}
	}
	return &domain.User{
		ID:          mu.ID,
		ExternalID:  mu.ExternalID,
		Handle:      mu.Handle,
		DisplayName: mu.DisplayName,
		AvatarURL:   mu.AvatarURL,
		Description: mu.Description,
		Status:      domain.UserStatus(mu.Status),
		Plans:       plans,
		Version:     mu.Version,
		CreatedAt:   mu.CreatedAt,
		UpdatedAt:   mu.UpdatedAt,
	}
}

func userIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "external_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "handle_lower", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
}

// UpsertByExternalID inserts u on first login and refreshes the display
// attributes on later ones.
func (r *UserRepository) UpsertByExternalID(ctx context.Context, u *domain.User) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toMongoUser(u)
	filter := bson.M{"external_id": u.ExternalID}
	update := bson.M{
		"$set": bson.M{
			"handle":       doc.Handle,
			"handle_lower": doc.HandleLower,
			"display_name": doc.DisplayName,
			"avatar_url":   doc.AvatarURL,
			"updated_at":   doc.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":         doc.ID,
			"description": doc.Description,
			"status":      doc.Status,
			"plans":       doc.Plans,
			"version":     int64(0),
			"created_at":  doc.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out mongoUser
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrHandleTaken
		}
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return out.toDomain(), nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) FindByHandle(ctx context.Context, handle string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"handle_lower": domain.NormalizeHandle(handle)})
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var mu mongoUser
		if err := cur.Decode(&mu); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		out[mu.ID] = mu.toDomain()
	}
	return out, cur.Err()
}

// Update performs an optimistic read-modify-write keyed on the document
// version, retrying when a concurrent writer got there first.
func (r *UserRepository) Update(ctx context.Context, id string, fn ports.UserUpdateFn) (*domain.User, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		version := current.Version
		if err := fn(current); err != nil {
			return nil, err
		}
		current.Version = version + 1

		doc := toMongoUser(current)
		writeCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		res, err := r.col.UpdateOne(writeCtx,
			bson.M{"_id": id, "version": version},
			bson.M{"$set": bson.M{
				"display_name": doc.DisplayName,
				"description":  doc.Description,
				"status":       doc.Status,
				"plans":        doc.Plans,
				"version":      doc.Version,
				"updated_at":   doc.UpdatedAt,
			}},
		)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		if res.MatchedCount == 1 {
			return current, nil
		}
	}
	return nil, fmt.Errorf("update user %s: %w", id, domain.ErrTransitionConflict)
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var mu mongoUser
	if err := r.col.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return mu.toDomain(), nil
}
