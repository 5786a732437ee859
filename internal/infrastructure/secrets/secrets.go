package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type Provider interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider reads secrets from AWS Secrets Manager and caches them for the
// lifetime of the process.
type AWSProvider struct {
	client secretsManagerAPI
	cache  map[string]string
	mu     sync.RWMutex
}

func NewAWSProvider(ctx context.Context) (*AWSProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return newAWSProvider(secretsmanager.NewFromConfig(cfg)), nil
}

func newAWSProvider(client secretsManagerAPI) *AWSProvider {
	return &AWSProvider{
		client: client,
		cache:  make(map[string]string),
	}
}

func (p *AWSProvider) GetSecret(ctx context.Context, name string) (string, error) {
	p.mu.RLock()
	if v, ok := p.cache[name]; ok {
		p.mu.RUnlock()
		return v, nil
	}
	p.mu.RUnlock()

	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", name)
	}

	p.mu.Lock()
	p.cache[name] = *out.SecretString
	p.mu.Unlock()

	return *out.SecretString, nil
}

// Resolve returns value when it is set, otherwise fetches name from the provider.
// An empty name with an empty value resolves to "" so callers can report the
// missing configuration themselves.
func Resolve(ctx context.Context, p Provider, name, value string) (string, error) {
	if value != "" || name == "" {
		return value, nil
	}
	if p == nil {
		return "", fmt.Errorf("secret %s requested but no secrets provider configured", name)
	}
	return p.GetSecret(ctx, name)
}
