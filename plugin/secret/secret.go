// Package secret keeps credentials encrypted at rest in the store's secret
// table.
package secret

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/hrygo/etlabplus/store"
)

// Well-known secret keys.
const (
	KeyToken = "userToken"
	KeyUser  = "userData"
)

// fallbackPassphrase is used when no passphrase is configured. Values are
// then only obfuscated on disk.
const fallbackPassphrase = "etlabplus-local"

const saltSize = 16

// Store is a small key-value store for secrets.
type Store interface {
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Backend persists ciphertext. *store.Store satisfies it.
type Backend interface {
	UpsertSecret(ctx context.Context, upsert *store.Secret) (*store.Secret, error)
	GetSecret(ctx context.Context, find *store.FindSecret) (*store.Secret, error)
	DeleteSecret(ctx context.Context, delete *store.DeleteSecret) error
}

// KDFParams are the Argon2id cost parameters.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams follows the RFC 9106 second recommended option.
var DefaultKDFParams = KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}

// Vault encrypts values with XChaCha20-Poly1305 under a key derived from a
// passphrase. Every value has its own salt and nonce; the stored layout is
// salt || nonce || ciphertext.
type Vault struct {
	backend    Backend
	passphrase []byte
	params     KDFParams

	mu   sync.Mutex
	keys map[string][]byte
}

var _ Store = (*Vault)(nil)

// Option configures a Vault.
type Option func(*Vault)

// WithKDFParams overrides the Argon2id cost.
func WithKDFParams(params KDFParams) Option {
	return func(v *Vault) {
		v.params = params
	}
}

// NewVault creates a Vault over backend.
func NewVault(backend Backend, passphrase string, opts ...Option) *Vault {
	if passphrase == "" {
		slog.Warn("no secret passphrase configured, stored credentials are only obfuscated")
		passphrase = fallbackPassphrase
	}
	v := &Vault{
		backend:    backend,
		passphrase: []byte(passphrase),
		params:     DefaultKDFParams,
		keys:       make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Vault) deriveKey(salt []byte) []byte {
	v.mu.Lock()
	defer v.mu.Unlock()

	if key, ok := v.keys[string(salt)]; ok {
		return key
	}
	key := argon2.IDKey(v.passphrase, salt, v.params.Time, v.params.Memory, v.params.Threads, chacha20poly1305.KeySize)
	v.keys[string(salt)] = key
	return key
}

func (v *Vault) seal(key string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "failed to generate salt")
	}
	aead, err := chacha20poly1305.NewX(v.deriveKey(salt))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	// The key name is bound as additional data so ciphertexts cannot be
	// swapped between keys.
	return aead.Seal(out, nonce, plaintext, []byte(key)), nil
}

func (v *Vault) open(key string, sealed []byte) ([]byte, error) {
	if len(sealed) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, errors.New("ciphertext too short")
	}
	salt := sealed[:saltSize]
	nonce := sealed[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[saltSize+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(v.deriveKey(salt))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt secret")
	}
	return plaintext, nil
}

func (v *Vault) Get(ctx context.Context, key string) (string, bool, error) {
	secret, err := v.backend.GetSecret(ctx, &store.FindSecret{Key: key})
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read secret %s", key)
	}
	if secret == nil {
		return "", false, nil
	}
	plaintext, err := v.open(key, secret.Ciphertext)
	if err != nil {
		return "", false, errors.Wrapf(err, "secret %s", key)
	}
	return string(plaintext), true, nil
}

func (v *Vault) Set(ctx context.Context, key, value string) error {
	sealed, err := v.seal(key, []byte(value))
	if err != nil {
		return err
	}
	_, err = v.backend.UpsertSecret(ctx, &store.Secret{
		Key:        key,
		Ciphertext: sealed,
		UpdatedTs:  time.Now().Unix(),
	})
	return errors.Wrapf(err, "failed to write secret %s", key)
}

func (v *Vault) Delete(ctx context.Context, key string) error {
	err := v.backend.DeleteSecret(ctx, &store.DeleteSecret{Key: key})
	return errors.Wrapf(err, "failed to delete secret %s", key)
}
