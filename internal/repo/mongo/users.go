// Package mongo stores user records in a MongoDB collection.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/geocoder89/memberhub/internal/domain/user"
)

const usersCollection = "users"

// userDoc is the stored shape. The password digest keeps the "password" key
// used by existing collections.
type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password"`
	Role         string             `bson:"role,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt,omitempty"`
	UpdatedAt    time.Time          `bson:"updatedAt,omitempty"`
}

func (d userDoc) toDomain() user.User {
	role := user.Role(d.Role)
	if !role.Valid() {
		role = user.RoleUser
	}

	return user.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         role,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type UsersRepo struct {
	coll *mongo.Collection
}

func NewUsersRepo(db *mongo.Database) *UsersRepo {
	return &UsersRepo{coll: db.Collection(usersCollection)}
}

// EnsureIndexes creates the email index. It is unique; collections that
// already hold duplicate emails reject it and the caller decides whether to
// carry on without it.
func (r *UsersRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

// FindBy matches value against field. value is always encoded as a BSON
// string, so it cannot carry query operators.
func (r *UsersRepo) FindBy(ctx context.Context, field user.Field, value string) ([]user.User, error) {
	switch field {
	case user.FieldEmail, user.FieldName:
	default:
		return nil, fmt.Errorf("unsupported lookup field %q", field)
	}

	cursor, err := r.coll.Find(ctx, bson.D{{Key: string(field), Value: value}})
	if err != nil {
		return nil, fmt.Errorf("find users by %s: %w", field, err)
	}

	return decodeAll(ctx, cursor)
}

func (r *UsersRepo) Insert(ctx context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()

	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}

	return doc.toDomain(), nil
}

func (r *UsersRepo) SetRole(ctx context.Context, id string, role user.Role) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return user.ErrNotFound
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"role": string(role), "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}

	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})

	cursor, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return decodeAll(ctx, cursor)
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, nil)
}

func decodeAll(ctx context.Context, cursor *mongo.Cursor) ([]user.User, error) {
	defer cursor.Close(ctx)

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	out := make([]user.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}
