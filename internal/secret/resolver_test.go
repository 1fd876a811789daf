package secret

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSMClient struct {
	params     map[string]string
	decryption []bool
}

func (f *fakeSSMClient) GetParameter(_ context.Context, input *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.decryption = append(f.decryption, aws.ToBool(input.WithDecryption))
	if *input.Name == "/workouttracker/throttled" {
		return nil, fmt.Errorf("operation error SSM: GetParameter, ThrottlingException: Rate exceeded")
	}
	val, ok := f.params[*input.Name]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:  input.Name,
			Value: aws.String(val),
		},
	}, nil
}

func TestSSMResolver(t *testing.T) {
	client := &fakeSSMClient{params: map[string]string{
		"/workouttracker/strava-client-secret": "s3cret",
	}}
	resolver := NewSSMResolver(client)

	val, err := resolver.GetSecret(context.Background(), "/workouttracker/strava-client-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "s3cret" {
		t.Errorf("expected %q, got %q", "s3cret", val)
	}
	if !client.decryption[0] {
		t.Error("expected parameter to be decrypted")
	}

	if _, err := resolver.GetSecret(context.Background(), "/workouttracker/missing"); !errors.Is(err, ErrNotSet) {
		t.Errorf("expected ErrNotSet for missing parameter, got %v", err)
	}

	_, err = resolver.GetSecret(context.Background(), "/workouttracker/throttled")
	if err == nil || errors.Is(err, ErrNotSet) {
		t.Errorf("expected backend error, got %v", err)
	}
}

func TestSSMResolverEmptyParameter(t *testing.T) {
	resolver := NewSSMResolver(emptySSM{})
	if _, err := resolver.GetSecret(context.Background(), "/workouttracker/empty"); !errors.Is(err, ErrNotSet) {
		t.Errorf("expected ErrNotSet for parameter without value, got %v", err)
	}
}

type emptySSM struct{}

func (emptySSM) GetParameter(context.Context, *ssm.GetParameterInput, ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return &ssm.GetParameterOutput{}, nil
}

func TestEnvResolver(t *testing.T) {
	t.Setenv("COGNITO_CLIENT_SECRET", "env-secret")
	t.Setenv("MONGO_CONNECTION_STRING", "")

	resolver := NewEnvResolver()
	val, err := resolver.GetSecret(context.Background(), "/workouttracker/cognito-client-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "env-secret" {
		t.Errorf("expected %q, got %q", "env-secret", val)
	}

	if _, err := resolver.GetSecret(context.Background(), "/workouttracker/mongo-connection-string"); !errors.Is(err, ErrNotSet) {
		t.Errorf("expected ErrNotSet for unset env var, got %v", err)
	}
}

func TestEnvVar(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/workouttracker/strava-client-secret", "STRAVA_CLIENT_SECRET"},
		{"/workouttracker/mongo-connection-string", "MONGO_CONNECTION_STRING"},
		{"redis-url", "REDIS_URL"},
	}
	for _, tc := range tests {
		if got := EnvVar(tc.input); got != tc.expected {
			t.Errorf("EnvVar(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestNew(t *testing.T) {
	r, err := New(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.(*EnvResolver); !ok {
		t.Errorf("expected *EnvResolver, got %T", r)
	}

	if _, err := New(context.Background(), "vault", ""); err == nil {
		t.Error("expected error for unknown backend, got nil")
	}
}
