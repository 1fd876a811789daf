package database

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/lildude/workouttracker/internal/model"
)

const activitiesNS = databaseName + "." + activitiesCollection

func TestMongoSaveActivitiesAppend(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserts each activity", func(mt *mtest.T) {
		s := newMongoStore(mt.Client, InsertAppend)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key error"}),
			mtest.CreateSuccessResponse(),
		)

		results := s.SaveActivities(context.Background(), sampleActivities())
		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		if !results[0].OK() || len(results[0].ID) != 24 {
			t.Errorf("expected an object id for the first insert, got %+v", results[0])
		}
		if results[1].OK() || results[1].Name != "Lunch Run" {
			t.Errorf("expected the second insert to fail, got %+v", results[1])
		}
		if !results[2].OK() {
			t.Errorf("expected the batch to continue after a failure, got %+v", results[2])
		}

		evt := mt.GetStartedEvent()
		if evt.CommandName != "insert" {
			t.Fatalf("expected insert, got %s", evt.CommandName)
		}
		if name := evt.Command.Lookup("documents", "0", "name").StringValue(); name != "Morning Ride" {
			t.Errorf("expected Morning Ride, got %q", name)
		}
		if _, err := evt.Command.LookupErr("documents", "0", "workout_type"); err == nil {
			t.Error("expected an absent workout_type to be left out")
		}
	})
}

func TestMongoSaveActivitiesUpsert(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("replaces by strava id", func(mt *mtest.T) {
		s := newMongoStore(mt.Client, InsertUpsert)
		oid := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: oid},
			{Key: "id", Value: int64(1)},
			{Key: "name", Value: "Morning Ride"},
		}}))

		results := s.SaveActivities(context.Background(), sampleActivities()[:1])
		if len(results) != 1 || results[0].ID != oid.Hex() {
			t.Fatalf("expected id %s, got %+v", oid.Hex(), results)
		}

		evt := mt.GetStartedEvent()
		if evt.CommandName != "findAndModify" {
			t.Fatalf("expected findAndModify, got %s", evt.CommandName)
		}
		if id, ok := evt.Command.Lookup("query", "id").Int64OK(); !ok || id != 1 {
			t.Errorf("expected query on id 1, got %v", evt.Command.Lookup("query"))
		}
		if upsert, ok := evt.Command.Lookup("upsert").BooleanOK(); !ok || !upsert {
			t.Error("expected upsert to be set")
		}
		if w := evt.Command.Lookup("update", "average_watts").Double(); w != 180 {
			t.Errorf("expected average_watts 180 in the replacement, got %v", w)
		}
	})

	mt.Run("reports errors", func(mt *mtest.T) {
		s := newMongoStore(mt.Client, InsertUpsert)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad value"}))

		results := s.SaveActivities(context.Background(), sampleActivities()[:1])
		if len(results) != 1 || results[0].OK() {
			t.Errorf("expected a failed result, got %+v", results)
		}
	})
}

func TestMongoFindActivities(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes ids and nulls", func(mt *mtest.T) {
		s := newMongoStore(mt.Client, InsertAppend)
		first, second := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, activitiesNS, mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: first},
				{Key: "id", Value: int64(1)},
				{Key: "name", Value: "Morning Ride"},
				{Key: "type", Value: "Ride"},
				{Key: "average_watts", Value: 180.0},
			},
			bson.D{
				{Key: "_id", Value: second},
				{Key: "id", Value: int64(3)},
				{Key: "name", Value: "Zwift - London"},
				{Key: "type", Value: "VirtualRide"},
				{Key: "workout_type", Value: nil},
			},
		))

		got, err := s.FindActivities(context.Background(), model.Filter{Field: "id", Values: []any{int64(1), int64(3)}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 activities, got %d", len(got))
		}
		if got[0].StoreID != first.Hex() || got[1].StoreID != second.Hex() {
			t.Errorf("expected store ids %s and %s, got %q and %q", first.Hex(), second.Hex(), got[0].StoreID, got[1].StoreID)
		}
		if !got[0].AverageWatts.Valid || got[0].AverageWatts.Value != 180 {
			t.Errorf("expected average_watts 180, got %+v", got[0].AverageWatts)
		}
		if got[0].WorkoutType.Present {
			t.Error("expected workout_type to be absent")
		}
		if !got[1].WorkoutType.Present || got[1].WorkoutType.Valid {
			t.Errorf("expected a null workout_type, got %+v", got[1].WorkoutType)
		}

		evt := mt.GetStartedEvent()
		if evt.CommandName != "find" {
			t.Fatalf("expected find, got %s", evt.CommandName)
		}
		in, ok := evt.Command.Lookup("filter", "id", "$in").ArrayOK()
		if !ok {
			t.Fatalf("expected an $in filter, got %v", evt.Command.Lookup("filter"))
		}
		values, err := in.Values()
		if err != nil || len(values) != 2 {
			t.Errorf("expected 2 filter values, got %v (%v)", values, err)
		}
	})

	mt.Run("unsupported field", func(mt *mtest.T) {
		s := newMongoStore(mt.Client, InsertAppend)
		_, err := s.FindActivities(context.Background(), model.Filter{Field: "distance"})
		if !errors.Is(err, ErrUnsupportedFilter) {
			t.Errorf("expected ErrUnsupportedFilter, got %v", err)
		}
		if evt := mt.GetStartedEvent(); evt != nil {
			t.Errorf("expected no command, got %s", evt.CommandName)
		}
	})
}

func TestMongoCredentials(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	credentialsNS := databaseName + "." + credentialsCollection

	mt.Run("get and replace by _id", func(mt *mtest.T) {
		s := newMongoStore(mt.Client, InsertAppend)
		oid := primitive.NewObjectID()
		stored := bson.D{
			{Key: "_id", Value: oid},
			{Key: "id", Value: model.CredentialStrava},
			{Key: "value", Value: bson.D{
				{Key: "access_token", Value: "access-1"},
				{Key: "refresh_token", Value: "refresh-1"},
				{Key: "expires_at", Value: int64(1700000000)},
			}},
		}
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, credentialsNS, mtest.FirstBatch, stored),
			mtest.CreateCursorResponse(0, credentialsNS, mtest.FirstBatch, stored),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		var cred model.StravaCredential
		if err := s.GetCredential(context.Background(), model.CredentialStrava, &cred); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cred.AccessToken != "access-1" || cred.ExpiresAt != 1700000000 {
			t.Errorf("unexpected credential: %+v", cred)
		}

		cred.AccessToken = "access-2"
		if err := s.SaveCredential(context.Background(), model.CredentialStrava, cred); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		mt.GetStartedEvent() // find for GetCredential
		mt.GetStartedEvent() // find for SaveCredential
		evt := mt.GetStartedEvent()
		if evt.CommandName != "update" {
			t.Fatalf("expected update, got %s", evt.CommandName)
		}
		if id, ok := evt.Command.Lookup("updates", "0", "q", "_id").ObjectIDOK(); !ok || id != oid {
			t.Errorf("expected update by _id %s, got %v", oid.Hex(), evt.Command.Lookup("updates", "0", "q"))
		}
		if tok := evt.Command.Lookup("updates", "0", "u", "$set", "value", "access_token").StringValue(); tok != "access-2" {
			t.Errorf("expected access-2, got %q", tok)
		}
	})

	mt.Run("missing credential", func(mt *mtest.T) {
		s := newMongoStore(mt.Client, InsertAppend)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, credentialsNS, mtest.FirstBatch),
			mtest.CreateCursorResponse(0, credentialsNS, mtest.FirstBatch),
		)

		var cred model.StravaCredential
		if err := s.GetCredential(context.Background(), model.CredentialGSheet, &cred); !errors.Is(err, ErrCredentialNotFound) {
			t.Errorf("expected ErrCredentialNotFound, got %v", err)
		}
		if err := s.SaveCredential(context.Background(), model.CredentialGSheet, cred); !errors.Is(err, ErrCredentialNotFound) {
			t.Errorf("expected ErrCredentialNotFound, got %v", err)
		}
	})
}
