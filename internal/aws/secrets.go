package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// CredentialsMaxAge bounds how long a warm process keeps provider credentials
// before reading them again, so rotated tokens are picked up without a deploy.
const CredentialsMaxAge = 15 * time.Minute

// ErrNoSecretString is returned for binary secrets; provider credentials are JSON text.
var ErrNoSecretString = errors.New("secret has no string value")

type cachedSecret struct {
	values  map[string]string
	fetched time.Time
}

// SecretsClient reads provider credentials stored as a JSON object of
// KEY -> value pairs, e.g. {"MP_ACCESS_TOKEN": "...", "SHIPPING_TOKEN": "..."}.
type SecretsClient struct {
	client  SecretsAPI
	maxAge  time.Duration
	nowFunc func() time.Time

	mu    sync.Mutex
	cache map[string]cachedSecret
}

// NewSecretsClient wraps a Secrets Manager client.
func NewSecretsClient(client SecretsAPI) *SecretsClient {
	return &SecretsClient{
		client:  client,
		maxAge:  CredentialsMaxAge,
		nowFunc: time.Now,
		cache:   make(map[string]cachedSecret),
	}
}

// GetCredentials returns the decoded credentials of the named secret.
// Callers must not modify the returned map.
func (s *SecretsClient) GetCredentials(ctx context.Context, name string) (map[string]string, error) {
	now := s.nowFunc()
	s.mu.Lock()
	if c, ok := s.cache[name]; ok && now.Sub(c.fetched) < s.maxAge {
		s.mu.Unlock()
		return c.values, nil
	}
	s.mu.Unlock()

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &name})
	if err != nil {
		return nil, fmt.Errorf("get secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s: %w", name, ErrNoSecretString)
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		return nil, fmt.Errorf("decode secret %s: %w", name, err)
	}

	s.mu.Lock()
	s.cache[name] = cachedSecret{values: values, fetched: now}
	s.mu.Unlock()
	return values, nil
}
