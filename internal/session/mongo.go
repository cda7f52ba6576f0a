package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "sessions"

// MongoStore keeps sessions in a collection with a TTL index on expiresAt.
// The TTL monitor is lazy, so Get re-checks expiry itself.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(mongoCollection)}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("create session ttl index: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, key string) (*Session, error) {
	var sess Session

	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&sess)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mongo find session: %w", err)
	}

	if sess.Expired(time.Now()) {
		return nil, ErrNotFound
	}

	return &sess, nil
}

func (s *MongoStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.Key == "" {
		return errors.New("session key is required")
	}

	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": sess.Key}, sess, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo save session: %w", err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, key string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("mongo delete session: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}
