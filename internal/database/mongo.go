package database

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/lildude/workouttracker/internal/model"
)

const (
	activitiesCollection  = "activities"
	credentialsCollection = "credentials"
)

// activityDoc is an activity document as stored in MongoDB.
type activityDoc struct {
	ID             any `bson:"_id,omitempty"`
	model.Activity `bson:",inline"`
}

// credentialDoc is a credential document: {"id": name, "value": {...}}.
type credentialDoc struct {
	ID    any      `bson:"_id"`
	Name  string   `bson:"id"`
	Value bson.Raw `bson:"value"`
}

// MongoStore is a Store backed by MongoDB.
type MongoStore struct {
	client      *mongo.Client
	activities  *mongo.Collection
	credentials *mongo.Collection
	policy      InsertPolicy
}

// NewMongoStore connects to MongoDB and checks the primary is reachable.
func NewMongoStore(ctx context.Context, uri string, policy InsertPolicy) (*MongoStore, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return newMongoStore(cli, policy), nil
}

func newMongoStore(cli *mongo.Client, policy InsertPolicy) *MongoStore {
	if policy == "" {
		policy = InsertAppend
	}
	db := cli.Database(databaseName)
	return &MongoStore{
		client:      cli,
		activities:  db.Collection(activitiesCollection),
		credentials: db.Collection(credentialsCollection),
		policy:      policy,
	}
}

func (s *MongoStore) SaveActivities(ctx context.Context, activities []model.Activity) []model.InsertResult {
	out := make([]model.InsertResult, 0, len(activities))
	for _, a := range activities {
		id, err := s.saveActivity(ctx, a)
		if err != nil {
			out = append(out, failed(a, err))
			continue
		}
		out = append(out, model.InsertResult{Name: a.Name, ID: idString(id)})
	}
	return out
}

func (s *MongoStore) saveActivity(ctx context.Context, a model.Activity) (any, error) {
	if s.policy != InsertUpsert {
		res, err := s.activities.InsertOne(ctx, a)
		if err != nil {
			return nil, err
		}
		return res.InsertedID, nil
	}

	opts := options.FindOneAndReplace().SetUpsert(true).SetReturnDocument(options.After)
	var doc activityDoc
	if err := s.activities.FindOneAndReplace(ctx, bson.D{{Key: "id", Value: a.ID}}, a, opts).Decode(&doc); err != nil {
		return nil, err
	}
	return doc.ID, nil
}

func (s *MongoStore) FindActivities(ctx context.Context, f model.Filter) ([]model.Activity, error) {
	filter, err := activityFilter(f)
	if err != nil {
		return nil, err
	}

	cur, err := s.activities.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("finding activities: %w", err)
	}
	defer cur.Close(ctx)

	var activities []model.Activity
	for cur.Next(ctx) {
		var doc activityDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding activity: %w", err)
		}
		doc.Activity.StoreID = idString(doc.ID)
		activities = append(activities, doc.Activity)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterating activities: %w", err)
	}
	return activities, nil
}

func (s *MongoStore) GetCredential(ctx context.Context, name string, v any) error {
	doc, err := s.credential(ctx, name)
	if err != nil {
		return err
	}
	if err := bson.Unmarshal(doc.Value, v); err != nil {
		return fmt.Errorf("decoding credential %s: %w", name, err)
	}
	return nil
}

func (s *MongoStore) SaveCredential(ctx context.Context, name string, v any) error {
	doc, err := s.credential(ctx, name)
	if err != nil {
		return err
	}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "value", Value: v}}}}
	_, err = s.credentials.UpdateOne(ctx, bson.D{{Key: "_id", Value: doc.ID}}, update, options.Update().SetUpsert(false))
	if err != nil {
		return fmt.Errorf("saving credential %s: %w", name, err)
	}
	return nil
}

func (s *MongoStore) credential(ctx context.Context, name string) (*credentialDoc, error) {
	var doc credentialDoc
	err := s.credentials.FindOne(ctx, bson.D{{Key: "id", Value: name}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrCredentialNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %s: %w", name, err)
	}
	return &doc, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// activityFilter builds {field: {$in: values}}.
func activityFilter(f model.Filter) (bson.D, error) {
	if _, ok := filterColumns[f.Field]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, f.Field)
	}
	values := f.Values
	if values == nil {
		values = []any{}
	}
	return bson.D{{Key: f.Field, Value: bson.D{{Key: "$in", Value: values}}}}, nil
}

func idString(id any) string {
	switch v := id.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
