package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

const workCounterID = "works"

// WorkRepository persists works and writes their notifications in the same
// transaction as the change that produced them.
type WorkRepository struct {
	client        *mongo.Client
	col           *mongo.Collection
	users         *mongo.Collection
	notifications *mongo.Collection
	counters      *mongo.Collection
}

func NewWorkRepository(client *mongo.Client, db *mongo.Database) *WorkRepository {
	return &WorkRepository{
		client:        client,
		col:           db.Collection(collectionWorks),
		users:         db.Collection(collectionUsers),
		notifications: db.Collection(collectionNotifications),
		counters:      db.Collection(collectionCounters),
	}
}

func workIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "number", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "creator_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
}

func partyField(p domain.Party) string {
	if p == domain.PartyCreator {
		return "creator_id"
	}
	return "requester_id"
}

// Create re-validates the snapshotted plan against the creator document,
// allocates the next work number and inserts the work with its notification.
// Touching the creator document makes a concurrent plan change conflict with
// this transaction instead of interleaving with it.
func (r *WorkRepository) Create(ctx context.Context, w *domain.Work, n *domain.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return withTransaction(ctx, r.client, func(sc mongo.SessionContext) error {
		var creator mongoUser
		err := r.users.FindOneAndUpdate(sc,
			bson.M{"_id": w.CreatorID},
			bson.M{"$set": bson.M{"last_requested_at": w.CreatedAt}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&creator)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("load creator: %w", err)
		}

		plan, err := creator.toDomain().RequestablePlan(w.PlanID)
		if err != nil {
			return err
		}
		if plan.Amount != w.Amount || plan.PaymentURL != w.PaymentURL {
			return domain.ErrPlanChanged
		}

		var counter struct {
			Seq int64 `bson:"seq"`
		}
		err = r.counters.FindOneAndUpdate(sc,
			bson.M{"_id": workCounterID},
			bson.M{"$inc": bson.M{"seq": int64(1)}},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&counter)
		if err != nil {
			return fmt.Errorf("next work number: %w", err)
		}
		w.Number = counter.Seq
		n.WorkNumber = counter.Seq

		if _, err := r.col.InsertOne(sc, w); err != nil {
			return fmt.Errorf("insert work: %w", err)
		}
		if _, err := r.notifications.InsertOne(sc, n); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		return nil
	})
}

func (r *WorkRepository) FindByID(ctx context.Context, id string) (*domain.Work, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var w domain.Work
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&w); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrWorkNotFound
		}
		return nil, fmt.Errorf("find work: %w", err)
	}
	if !w.Status.Valid() {
		return nil, fmt.Errorf("work %s has unknown status %q", w.ID, w.Status)
	}
	return &w, nil
}

func (r *WorkRepository) ListByParty(ctx context.Context, party domain.Party, userID string) ([]*domain.Work, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "number", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{partyField(party): userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}
	defer cur.Close(ctx)

	works := make([]*domain.Work, 0)
	if err := cur.All(ctx, &works); err != nil {
		return nil, fmt.Errorf("decode works: %w", err)
	}
	for _, w := range works {
		if !w.Status.Valid() {
			return nil, fmt.Errorf("work %s has unknown status %q", w.ID, w.Status)
		}
	}
	return works, nil
}

// Transition applies the status change only while the work is still in t.From
// and t.ActorID sits on the acting side.
func (r *WorkRepository) Transition(ctx context.Context, t ports.WorkTransition, n *domain.Notification) (*domain.Work, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{"status": t.To, "updated_at": t.At}
	switch t.To {
	case domain.WorkDelivered:
		set["delivered_at"] = t.At
		set["file_ref"] = t.FileRef
	case domain.WorkRejected:
		set["rejected_at"] = t.At
	case domain.WorkPaid:
		set["paid_at"] = t.At
	}
	filter := bson.M{"_id": t.WorkID, "status": t.From, partyField(t.Actor): t.ActorID}

	var updated domain.Work
	err := withTransaction(ctx, r.client, func(sc mongo.SessionContext) error {
		err := r.col.FindOneAndUpdate(sc, filter, bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&updated)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return domain.ErrTransitionConflict
			}
			return fmt.Errorf("update work: %w", err)
		}
		if _, err := r.notifications.InsertOne(sc, n); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *WorkRepository) CountByStatus(ctx context.Context, party domain.Party, userID string) (map[domain.WorkStatus]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{partyField(party): userID}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("count works: %w", err)
	}
	defer cur.Close(ctx)

	out := make(map[domain.WorkStatus]int64)
	for cur.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode count: %w", err)
		}
		out[domain.WorkStatus(row.Status)] = row.Count
	}
	return out, cur.Err()
}
