package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/quartetops/quartet/pkg/models"
)

// SecretBackend stores token material outside the sqlite database.
// Implementations must key secrets by the full (provider, user) pair.
type SecretBackend interface {
	Set(key, secret string) error
	// Get returns "" with no error when the key is absent.
	Get(key string) (string, error)
	Delete(key string) error
}

// keyringService is the service name under which secrets are filed in the
// OS keychain.
const keyringService = "quartet"

// KeyringBackend stores secrets in the OS keychain via the platform
// keyring (Keychain, Secret Service, Credential Manager).
type KeyringBackend struct {
	service string
}

// NewKeyringBackend creates the OS keychain backend.
func NewKeyringBackend() *KeyringBackend {
	return &KeyringBackend{service: keyringService}
}

// Set files a secret under the key.
func (k *KeyringBackend) Set(key, secret string) error {
	if err := keyring.Set(k.service, key, secret); err != nil {
		return fmt.Errorf("keyring set %s: %w", key, err)
	}
	return nil
}

// Get retrieves a secret, returning "" when the key is absent.
func (k *KeyringBackend) Get(key string) (string, error) {
	secret, err := keyring.Get(k.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("keyring get %s: %w", key, err)
	}
	return secret, nil
}

// Delete removes a secret. Deleting a missing key is not an error.
func (k *KeyringBackend) Delete(key string) error {
	if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %s: %w", key, err)
	}
	return nil
}

// tokenSecret is the JSON shape of token material filed in a secret
// backend.
type tokenSecret struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func encodeTokenSecret(cred *models.UserCredential) (string, error) {
	raw, err := json.Marshal(tokenSecret{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
	})
	if err != nil {
		return "", fmt.Errorf("encode token secret: %w", err)
	}
	return string(raw), nil
}

func decodeTokenSecret(secret string, cred *models.UserCredential) error {
	var ts tokenSecret
	if err := json.Unmarshal([]byte(secret), &ts); err != nil {
		return fmt.Errorf("decode token secret: %w", err)
	}
	cred.AccessToken = ts.AccessToken
	cred.RefreshToken = ts.RefreshToken
	return nil
}
