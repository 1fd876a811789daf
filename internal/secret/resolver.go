// Package secret resolves client secrets and connection strings from the
// environment or from AWS Systems Manager Parameter Store.
package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ErrNotSet is returned when a secret does not exist in the backend. Any
// other error means the backend could not be asked.
var ErrNotSet = errors.New("secret not set")

// Backends accepted by New.
const (
	BackendEnv = "env"
	BackendSSM = "ssm"
)

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver retrieves secret values by parameter name, e.g.
// "/workouttracker/strava-client-secret".
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// New returns the resolver for backend. An empty backend means BackendEnv.
func New(ctx context.Context, backend, region string) (Resolver, error) {
	switch strings.ToLower(backend) {
	case "", BackendEnv:
		return NewEnvResolver(), nil
	case BackendSSM:
		var opts []func(*awsconfig.LoadOptions) error
		if region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("loading aws config: %w", err)
		}
		return NewSSMResolver(ssm.NewFromConfig(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", backend)
	}
}

// SSMResolver fetches secrets from AWS Systems Manager Parameter Store.
type SSMResolver struct {
	client SSMClient
}

func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client}
}

// GetSecret retrieves a SecureString parameter with decryption.
func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	var notFound *ssmtypes.ParameterNotFound
	if errors.As(err, &notFound) {
		return "", fmt.Errorf("%w: ssm parameter %q", ErrNotSet, name)
	}
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("%w: ssm parameter %q has no value", ErrNotSet, name)
	}
	return *out.Parameter.Value, nil
}

// EnvResolver reads secrets from environment variables named after the last
// segment of the parameter: "/workouttracker/strava-client-secret" is read
// from STRAVA_CLIENT_SECRET.
type EnvResolver struct{}

func NewEnvResolver() *EnvResolver {
	return &EnvResolver{}
}

func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := EnvVar(name)
	val := os.Getenv(envName)
	if val == "" {
		return "", fmt.Errorf("%w: environment variable %q (from param %q)", ErrNotSet, envName, name)
	}
	return val, nil
}

// EnvVar converts a parameter name to its environment variable name.
func EnvVar(name string) string {
	parts := strings.Split(name, "/")
	last := parts[len(parts)-1]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}
