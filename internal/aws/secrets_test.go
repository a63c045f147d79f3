package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSecrets struct {
	calls int
	value *string
	err   error
}

func (m *mockSecrets) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: m.value}, nil
}

func TestSecretsClient_CachesUntilMaxAge(t *testing.T) {
	m := &mockSecrets{value: awsString(`{"MP_ACCESS_TOKEN":"tok-1"}`)}
	s := NewSecretsClient(m)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	v, err := s.GetCredentials(ctx, "checkout/PROVIDER_CREDENTIALS")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", v["MP_ACCESS_TOKEN"])

	m.value = awsString(`{"MP_ACCESS_TOKEN":"tok-2"}`)
	v, err = s.GetCredentials(ctx, "checkout/PROVIDER_CREDENTIALS")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", v["MP_ACCESS_TOKEN"])
	assert.Equal(t, 1, m.calls)

	now = now.Add(CredentialsMaxAge)
	v, err = s.GetCredentials(ctx, "checkout/PROVIDER_CREDENTIALS")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", v["MP_ACCESS_TOKEN"])
	assert.Equal(t, 2, m.calls)
}

func TestSecretsClient_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewSecretsClient(&mockSecrets{}).GetCredentials(ctx, "bin")
	assert.ErrorIs(t, err, ErrNoSecretString)

	_, err = NewSecretsClient(&mockSecrets{value: awsString("not json")}).GetCredentials(ctx, "bad")
	assert.Error(t, err)

	denied := errors.New("access denied")
	_, err = NewSecretsClient(&mockSecrets{err: denied}).GetCredentials(ctx, "x")
	assert.ErrorIs(t, err, denied)
}
