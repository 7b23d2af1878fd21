package todos

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

type todoDocument struct {
	ID          primitive.ObjectID `bson:"_id"`
	Text        string             `bson:"text"`
	Completed   bool               `bson:"completed"`
	CompletedAt *int64             `bson:"completedAt"`
	Creator     primitive.ObjectID `bson:"_creator"`
	CreatedAt   time.Time          `bson:"createdAt"`
}

func (d todoDocument) toTodo() *Todo {
	return &Todo{
		ID:          d.ID.Hex(),
		Text:        d.Text,
		Completed:   d.Completed,
		CompletedAt: d.CompletedAt,
		Owner:       d.Creator.Hex(),
		CreatedAt:   d.CreatedAt,
	}
}

// MongoRepository implements Repository on a MongoDB collection.
type MongoRepository struct {
	collection *mongo.Collection
}

// NewMongoRepository constructs a repository over db's todos collection.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(docstore.CollectionTodos)}
}

// EnsureIndexes creates the owner index used by every query.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "_creator", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("creator_id"),
	})
	return err
}

// Insert stores todo and assigns its ID.
func (r *MongoRepository) Insert(ctx context.Context, todo *Todo) error {
	owner, ok := docstore.ObjectID(todo.Owner)
	if !ok {
		return shared.ErrNotFound
	}
	doc := todoDocument{
		ID:          primitive.NewObjectID(),
		Text:        todo.Text,
		Completed:   todo.Completed,
		CompletedAt: todo.CompletedAt,
		Creator:     owner,
		CreatedAt:   todo.CreatedAt,
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return err
	}
	todo.ID = doc.ID.Hex()
	return nil
}

// ListByOwner returns owner's todos in insertion order.
func (r *MongoRepository) ListByOwner(ctx context.Context, owner string) ([]Todo, error) {
	oid, ok := docstore.ObjectID(owner)
	if !ok {
		return []Todo{}, nil
	}
	cur, err := r.collection.Find(ctx, bson.M{"_creator": oid}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []Todo{}
	for cur.Next(ctx) {
		var doc todoDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *doc.toTodo())
	}
	return out, cur.Err()
}

// FindOne returns the todo when owned by owner.
func (r *MongoRepository) FindOne(ctx context.Context, owner, id string) (*Todo, error) {
	filter, ok := ownedFilter(owner, id)
	if !ok {
		return nil, shared.ErrNotFound
	}
	var doc todoDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.toTodo(), nil
}

// Update applies patch atomically to the owned todo and returns the new state.
func (r *MongoRepository) Update(ctx context.Context, owner, id string, patch Patch) (*Todo, error) {
	filter, ok := ownedFilter(owner, id)
	if !ok {
		return nil, shared.ErrNotFound
	}
	set := bson.M{"completed": patch.Completed, "completedAt": patch.CompletedAt}
	if patch.Text != nil {
		set["text"] = *patch.Text
	}
	var doc todoDocument
	err := r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		return nil, notFound(err)
	}
	return doc.toTodo(), nil
}

// Delete removes the owned todo and returns it.
func (r *MongoRepository) Delete(ctx context.Context, owner, id string) (*Todo, error) {
	filter, ok := ownedFilter(owner, id)
	if !ok {
		return nil, shared.ErrNotFound
	}
	var doc todoDocument
	if err := r.collection.FindOneAndDelete(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.toTodo(), nil
}

func ownedFilter(owner, id string) (bson.M, bool) {
	oid, ok := docstore.ObjectID(id)
	if !ok {
		return nil, false
	}
	creator, ok := docstore.ObjectID(owner)
	if !ok {
		return nil, false
	}
	return bson.M{"_id": oid, "_creator": creator}, true
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return shared.ErrNotFound
	}
	return err
}

var _ Repository = (*MongoRepository)(nil)
