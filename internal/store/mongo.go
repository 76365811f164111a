package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/taskboard/apiserver/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// UsersCollection is the name of the MongoDB collection holding user documents.
const UsersCollection = "users"

// MongoUserRepository persists users as MongoDB documents with the tasks
// embedded as an array.
type MongoUserRepository struct {
	coll *mongo.Collection
}

type userDocument struct {
	ID           string         `bson:"_id"`
	Name         string         `bson:"name"`
	Email        string         `bson:"email"`
	PasswordHash string         `bson:"passwordHash,omitempty"`
	Tasks        []taskDocument `bson:"tasks"`
	Version      int64          `bson:"version"`
	CreatedAt    time.Time      `bson:"createdAt"`
	UpdatedAt    time.Time      `bson:"updatedAt"`
}

type taskDocument struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Completed   bool      `bson:"completed"`
	CreatedAt   time.Time `bson:"createdAt"`
}

var withoutPassword = bson.D{{Key: "passwordHash", Value: 0}}

// NewMongoUserRepository stores users in the users collection of db.
func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{coll: db.Collection(UsersCollection)}
}

// EnsureIndexes creates the unique email index.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_key"),
	})
	return err
}

// GetByID loads a user by id without the password hash.
func (r *MongoUserRepository) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	var doc userDocument
	err := r.coll.FindOne(
		ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		options.FindOne().SetProjection(withoutPassword),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return doc.toUser()
}

// GetByEmail loads a user by email including the password hash.
func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	var doc userDocument
	err := r.coll.FindOne(ctx, bson.D{{Key: "email", Value: email}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return doc.toUser()
}

// Create inserts user at version 1. A duplicate key maps to ErrEmailExists.
func (r *MongoUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Tasks == nil {
		user.Tasks = types.NewTaskList()
	}
	user.Version = 1
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, newUserDocument(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrEmailExists
		}
		return types.User{}, err
	}
	return user, nil
}

// Update writes the document when the stored version still matches and
// increments it. A miss is reported as ErrNotFound or ErrVersionConflict.
func (r *MongoUserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now().UTC()
	if user.Tasks == nil {
		user.Tasks = types.NewTaskList()
	}

	doc := newUserDocument(user)
	filter := bson.D{
		{Key: "_id", Value: doc.ID},
		{Key: "version", Value: user.Version},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "name", Value: doc.Name},
			{Key: "email", Value: doc.Email},
			{Key: "tasks", Value: doc.Tasks},
			{Key: "updatedAt", Value: doc.UpdatedAt},
		}},
		{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
	}

	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return types.User{}, ErrEmailExists
		}
		return types.User{}, err
	}
	if result.MatchedCount == 0 {
		count, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: doc.ID}})
		if err != nil {
			return types.User{}, err
		}
		if count == 0 {
			return types.User{}, ErrNotFound
		}
		return types.User{}, ErrVersionConflict
	}

	user.Version++
	return user, nil
}

// List returns a page of users ordered by creation time.
func (r *MongoUserRepository) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	offset, limit = normalizePage(offset, limit)

	total, err := r.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, 0, err
	}

	cursor, err := r.coll.Find(ctx, bson.D{}, options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetProjection(withoutPassword))
	if err != nil {
		return nil, 0, err
	}

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, err
	}

	users := make([]types.User, 0, len(docs))
	for _, doc := range docs {
		user, err := doc.toUser()
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	return users, int(total), nil
}

func newUserDocument(user types.User) userDocument {
	tasks := user.Tasks.All()
	docs := make([]taskDocument, 0, len(tasks))
	for _, task := range tasks {
		docs = append(docs, taskDocument{
			ID:          task.ID.String(),
			Title:       task.Title,
			Description: task.Description,
			Completed:   task.Completed,
			CreatedAt:   task.CreatedAt,
		})
	}
	return userDocument{
		ID:           user.ID.String(),
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Tasks:        docs,
		Version:      user.Version,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func (d userDocument) toUser() (types.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return types.User{}, err
	}

	tasks := make([]types.Task, 0, len(d.Tasks))
	for _, doc := range d.Tasks {
		taskID, err := uuid.Parse(doc.ID)
		if err != nil {
			return types.User{}, err
		}
		tasks = append(tasks, types.Task{
			ID:          taskID,
			Title:       doc.Title,
			Description: doc.Description,
			Completed:   doc.Completed,
			CreatedAt:   doc.CreatedAt.UTC(),
		})
	}

	return types.User{
		ID:           id,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Tasks:        types.NewTaskList(tasks...),
		Version:      d.Version,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}, nil
}
