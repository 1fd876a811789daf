// Package model holds the records shared by the pipeline stages.
package model

// Credential names as stored in the credentials collection.
const (
	CredentialStrava = "strava"
	CredentialGSheet = "gsheet"
)

// Activity holds only the data we keep from the Strava API for an activity.
// Optional metrics remember whether Strava sent the key at all, so a metric
// sent as null still gets a column while an absent one does not.
type Activity struct {
	// StoreID is assigned by the store and never projected.
	StoreID string `json:"-" bson:"-"`

	ID                   int64             `json:"id" bson:"id"`
	Name                 string            `json:"name" bson:"name"`
	StartDateLocal       string            `json:"start_date_local" bson:"start_date_local"`
	MovingTime           int64             `json:"moving_time" bson:"moving_time"`
	ElapsedTime          int64             `json:"elapsed_time" bson:"elapsed_time"`
	Type                 string            `json:"type" bson:"type"`
	WorkoutType          Nullable[int]     `json:"workout_type,omitzero" bson:"workout_type,omitempty"`
	Distance             float64           `json:"distance" bson:"distance"`
	TotalElevationGain   float64           `json:"total_elevation_gain" bson:"total_elevation_gain"`
	Kilojoules           Nullable[float64] `json:"kilojoules,omitzero" bson:"kilojoules,omitempty"`
	AverageSpeed         float64           `json:"average_speed" bson:"average_speed"`
	MaxSpeed             float64           `json:"max_speed" bson:"max_speed"`
	AverageWatts         Nullable[float64] `json:"average_watts,omitzero" bson:"average_watts,omitempty"`
	MaxWatts             Nullable[float64] `json:"max_watts,omitzero" bson:"max_watts,omitempty"`
	WeightedAverageWatts Nullable[float64] `json:"weighted_average_watts,omitzero" bson:"weighted_average_watts,omitempty"`
}

// Field is a single key/value pair of an activity.
type Field struct {
	Key   string
	Value any
}

// Fields returns the activity as an ordered list of fields, in the order of
// the kept Strava attributes. Absent optional metrics are left out and null
// ones have a nil Value.
func (a *Activity) Fields() []Field {
	f := make([]Field, 0, 15)
	add := func(key string, v any) { f = append(f, Field{key, v}) }
	optional := func(key string, present bool, v any) {
		if present {
			add(key, v)
		}
	}

	add("id", a.ID)
	add("name", a.Name)
	add("start_date_local", a.StartDateLocal)
	add("moving_time", a.MovingTime)
	add("elapsed_time", a.ElapsedTime)
	add("type", a.Type)
	optional("workout_type", a.WorkoutType.Present, a.WorkoutType.Interface())
	add("distance", a.Distance)
	add("total_elevation_gain", a.TotalElevationGain)
	optional("kilojoules", a.Kilojoules.Present, a.Kilojoules.Interface())
	add("average_speed", a.AverageSpeed)
	add("max_speed", a.MaxSpeed)
	optional("average_watts", a.AverageWatts.Present, a.AverageWatts.Interface())
	optional("max_watts", a.MaxWatts.Present, a.MaxWatts.Interface())
	optional("weighted_average_watts", a.WeightedAverageWatts.Present, a.WeightedAverageWatts.Interface())
	return f
}

// InsertResult is the outcome of storing a single activity. ID is set on
// success, Err on failure.
type InsertResult struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
	Err  string `json:"error,omitempty"`
}

// OK reports whether the insert succeeded.
func (r InsertResult) OK() bool {
	return r.Err == ""
}

// Filter selects activities whose Field equals any of Values.
type Filter struct {
	Field  string
	Values []any
}

// RideTypes is the filter used to pick the activities published to the sheet.
var RideTypes = Filter{Field: "type", Values: []any{"Ride", "VirtualRide"}}

// StravaCredential is the server to server credential for the Strava API.
type StravaCredential struct {
	TokenType    string `json:"token_type,omitempty" bson:"token_type,omitempty"`
	AccessToken  string `json:"access_token" bson:"access_token"`
	RefreshToken string `json:"refresh_token" bson:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at" bson:"expires_at"`
	ExpiresIn    int64  `json:"expires_in,omitempty" bson:"expires_in,omitempty"`
}

// ServiceAccount is a Google service account key as downloaded from the
// cloud console.
type ServiceAccount struct {
	Type                    string `json:"type" bson:"type"`
	ProjectID               string `json:"project_id" bson:"project_id"`
	PrivateKeyID            string `json:"private_key_id" bson:"private_key_id"`
	PrivateKey              string `json:"private_key" bson:"private_key"`
	ClientEmail             string `json:"client_email" bson:"client_email"`
	ClientID                string `json:"client_id" bson:"client_id"`
	AuthURI                 string `json:"auth_uri" bson:"auth_uri"`
	TokenURI                string `json:"token_uri" bson:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url" bson:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url" bson:"client_x509_cert_url"`
}
