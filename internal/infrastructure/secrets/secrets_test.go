package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsManager struct {
	values map[string]string
	calls  int
}

func (f *fakeSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[aws.ToString(params.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestAWSProviderCachesSecrets(t *testing.T) {
	fake := &fakeSecretsManager{values: map[string]string{"paystack/secret": "sk_live_abc"}}
	p := newAWSProvider(fake)

	for i := 0; i < 3; i++ {
		v, err := p.GetSecret(context.Background(), "paystack/secret")
		require.NoError(t, err)
		assert.Equal(t, "sk_live_abc", v)
	}
	assert.Equal(t, 1, fake.calls)
}

func TestAWSProviderMissingSecret(t *testing.T) {
	p := newAWSProvider(&fakeSecretsManager{values: map[string]string{}})

	_, err := p.GetSecret(context.Background(), "nope")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	fake := newAWSProvider(&fakeSecretsManager{values: map[string]string{"name": "from-aws"}})
	ctx := context.Background()

	v, err := Resolve(ctx, fake, "name", "from-env")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	v, err = Resolve(ctx, fake, "name", "")
	require.NoError(t, err)
	assert.Equal(t, "from-aws", v)

	v, err = Resolve(ctx, nil, "", "")
	require.NoError(t, err)
	assert.Empty(t, v)

	_, err = Resolve(ctx, nil, "name", "")
	assert.Error(t, err)
}
