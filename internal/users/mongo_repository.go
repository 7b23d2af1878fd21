package users

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/odyssey-erp/todo-api/internal/platform/docstore"
	"github.com/odyssey-erp/todo-api/internal/shared"
)

type userDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	Tokens    []tokenDocument    `bson:"tokens"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type tokenDocument struct {
	Access string `bson:"access"`
	Token  string `bson:"token"`
}

// MongoRepository implements Repository on a MongoDB collection.
type MongoRepository struct {
	collection *mongo.Collection
}

// NewMongoRepository constructs a repository over db's users collection.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(docstore.CollectionUsers)}
}

// EnsureIndexes creates the unique email index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	return err
}

// Create inserts user and assigns its ID.
func (r *MongoRepository) Create(ctx context.Context, user *User) error {
	doc := toUserDocument(user)
	doc.ID = primitive.NewObjectID()
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	user.ID = doc.ID.Hex()
	return nil
}

// FindByID fetches a user by id.
func (r *MongoRepository) FindByID(ctx context.Context, id string) (*User, error) {
	oid, ok := docstore.ObjectID(id)
	if !ok {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

// FindByEmail fetches a user by email.
func (r *MongoRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// FindByToken fetches a user that still holds token under access.
func (r *MongoRepository) FindByToken(ctx context.Context, id, access, token string) (*User, error) {
	oid, ok := docstore.ObjectID(id)
	if !ok {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, bson.M{
		"_id":    oid,
		"tokens": bson.M{"$elemMatch": bson.M{"access": access, "token": token}},
	})
}

// PushToken atomically appends entry to the token array.
func (r *MongoRepository) PushToken(ctx context.Context, id string, entry TokenEntry) error {
	oid, ok := docstore.ObjectID(id)
	if !ok {
		return shared.ErrNotFound
	}
	res, err := r.collection.UpdateByID(ctx, oid, bson.M{
		"$push": bson.M{"tokens": tokenDocument{Access: entry.Access, Token: entry.Token}},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// PullToken atomically removes token from the token array.
func (r *MongoRepository) PullToken(ctx context.Context, id, token string) error {
	oid, ok := docstore.ObjectID(id)
	if !ok {
		return nil
	}
	_, err := r.collection.UpdateByID(ctx, oid, bson.M{
		"$pull": bson.M{"tokens": bson.M{"token": token}},
	})
	return err
}

// SetPasswordHash replaces the stored password hash.
func (r *MongoRepository) SetPasswordHash(ctx context.Context, id, hash string) error {
	oid, ok := docstore.ObjectID(id)
	if !ok {
		return shared.ErrNotFound
	}
	res, err := r.collection.UpdateByID(ctx, oid, bson.M{
		"$set": bson.M{"password": hash, "updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListWithTokens returns every user with a non-empty token array.
func (r *MongoRepository) ListWithTokens(ctx context.Context) ([]User, error) {
	cur, err := r.collection.Find(ctx, bson.M{"tokens.0": bson.M{"$exists": true}},
		options.Find().SetProjection(bson.M{"password": 0}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []User
	for cur.Next(ctx) {
		var doc userDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *doc.toUser())
	}
	return out, cur.Err()
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var doc userDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return doc.toUser(), nil
}

func toUserDocument(u *User) userDocument {
	tokens := make([]tokenDocument, 0, len(u.Tokens))
	for _, t := range u.Tokens {
		tokens = append(tokens, tokenDocument{Access: t.Access, Token: t.Token})
	}
	return userDocument{
		Email:     u.Email,
		Password:  u.PasswordHash,
		Tokens:    tokens,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (d userDocument) toUser() *User {
	tokens := make([]TokenEntry, 0, len(d.Tokens))
	for _, t := range d.Tokens {
		tokens = append(tokens, TokenEntry{Access: t.Access, Token: t.Token})
	}
	return &User{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		PasswordHash: d.Password,
		Tokens:       tokens,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

var _ Repository = (*MongoRepository)(nil)
