package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tapassist/internal/model"
)

// ErrNotFound is returned when a conversation does not exist or belongs to a
// different merchant.
var ErrNotFound = errors.New("conversation not found")

// Repository is the durable store for merchant conversations.
type Repository interface {
	Get(ctx context.Context, merchantID, id string) (*model.Conversation, error)
	List(ctx context.Context, merchantID string) ([]*model.Conversation, error)
	Save(ctx context.Context, conv *model.Conversation) error
	Rename(ctx context.Context, merchantID, id, title string) error
	Delete(ctx context.Context, merchantID, id string) error
}

// MongoRepository stores conversations in the chats collection, one document
// per conversation with the full turn list embedded.
type MongoRepository struct {
	coll  *mongo.Collection
	cache *Cache
}

// NewMongoRepository builds a repository over db.chats. The cache is optional;
// with nil every read goes to Mongo.
func NewMongoRepository(db *mongo.Database, cache *Cache) *MongoRepository {
	return &MongoRepository{coll: db.Collection("chats"), cache: cache}
}

func (r *MongoRepository) Get(ctx context.Context, merchantID, id string) (*model.Conversation, error) {
	if r.cache != nil {
		if conv, ok := r.cache.Get(ctx, id); ok && conv.MerchantID == merchantID {
			return conv, nil
		}
	}

	var conv model.Conversation
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "merchantId": merchantID}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	if r.cache != nil {
		r.cache.Put(ctx, &conv)
	}
	return &conv, nil
}

func (r *MongoRepository) List(ctx context.Context, merchantID string) ([]*model.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{"merchantId": merchantID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var convs []*model.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return convs, nil
}

func (r *MongoRepository) Save(ctx context.Context, conv *model.Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"_id": conv.ID}, conv, opts); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	if r.cache != nil {
		r.cache.Put(ctx, conv)
	}
	return nil
}

func (r *MongoRepository) Rename(ctx context.Context, merchantID, id, title string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "merchantId": merchantID},
		bson.M{"$set": bson.M{"title": title, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	if r.cache != nil {
		r.cache.Invalidate(ctx, id)
	}
	return nil
}

func (r *MongoRepository) Delete(ctx context.Context, merchantID, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "merchantId": merchantID})
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if r.cache != nil {
		r.cache.Invalidate(ctx, id)
	}
	log.Info().Str("conversation_id", id).Msg("conversation deleted")
	return nil
}
