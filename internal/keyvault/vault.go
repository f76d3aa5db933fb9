// Package keyvault resolves per-project symmetric keys through a tiered
// lookup: an in-memory session cache first, then a durable settings slot that
// holds the key encrypted under a surface-local master secret, then a miss.
// Plaintext key material never reaches durable storage.
package keyvault

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/zecrypt/zecrypt-go/internal/common"
	"github.com/zecrypt/zecrypt-go/internal/fieldcipher"
	"github.com/zecrypt/zecrypt-go/internal/logging"
)

// storageKeyPrefix namespaces project-key slots inside the settings store.
const storageKeyPrefix = "project_key."

// SettingsStore is the durable string key/value surface backing tier 2.
// Lookups for absent keys return common.ErrNotFound.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// DeriveMasterSecret stretches a master passphrase and a per-install salt
// into the hex key used to wrap project keys at rest.
func DeriveMasterSecret(passphrase, salt []byte) string {
	raw := argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
	defer common.WipeByteArray(raw)
	return hex.EncodeToString(raw)
}

// Vault caches and persists project keys, addressed by project name.
type Vault struct {
	mu        sync.RWMutex
	store     SettingsStore
	master    string
	cache     map[string]string
	attempted map[string]bool
	log       logging.Logger
}

// New returns a Vault wrapping keys with master (a fieldcipher hex key)
// before they touch store.
func New(store SettingsStore, master string, log logging.Logger) *Vault {
	return &Vault{
		store:     store,
		master:    master,
		cache:     make(map[string]string),
		attempted: make(map[string]bool),
		log:       log,
	}
}

// GetProjectKey resolves the key for project. Tier 1 is the session cache;
// tier 2 is the durable slot, decrypted with the master secret and written
// back into the cache. A definitive miss returns common.ErrMissingKey and is
// remembered, so repeated lookups for an absent key cost no storage reads;
// an unwrap failure is remembered the same way and logged once.
func (v *Vault) GetProjectKey(ctx context.Context, project string) (string, error) {
	v.mu.RLock()
	if key, ok := v.cache[project]; ok {
		v.mu.RUnlock()
		return key, nil
	}
	if v.attempted[project] {
		v.mu.RUnlock()
		return "", common.ErrMissingKey
	}
	v.mu.RUnlock()

	wrapped, err := v.store.Get(ctx, storageKeyPrefix+project)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			v.mu.Lock()
			v.attempted[project] = true
			v.mu.Unlock()
			return "", common.ErrMissingKey
		}
		return "", fmt.Errorf("key vault read: %w", err)
	}

	key, err := fieldcipher.Decrypt(wrapped, v.master)
	if err != nil {
		// Remembered like a miss: retrying the same unwrap every render or
		// poll cycle cannot succeed until the slot or the master changes.
		v.log.Error(ctx, "stored project key failed to unwrap", "project", project, "error", err)
		v.mu.Lock()
		v.attempted[project] = true
		v.mu.Unlock()
		return "", err
	}

	v.mu.Lock()
	v.cache[project] = key
	v.mu.Unlock()
	return key, nil
}

// SetProjectKey wraps rawKey under the master secret, persists it, and primes
// the session cache. Idempotent for identical values; concurrent writers may
// race but write the same slot.
func (v *Vault) SetProjectKey(ctx context.Context, project, rawKey string) error {
	wrapped, err := fieldcipher.Encrypt(rawKey, v.master)
	if err != nil {
		return fmt.Errorf("key vault wrap: %w", err)
	}
	if err := v.store.Set(ctx, storageKeyPrefix+project, wrapped); err != nil {
		return fmt.Errorf("key vault write: %w", err)
	}

	v.mu.Lock()
	v.cache[project] = rawKey
	delete(v.attempted, project)
	v.mu.Unlock()
	return nil
}

// Forget drops the durable slot and every cached trace of the project key.
func (v *Vault) Forget(ctx context.Context, project string) error {
	if err := v.store.Delete(ctx, storageKeyPrefix+project); err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("key vault delete: %w", err)
	}
	v.mu.Lock()
	delete(v.cache, project)
	delete(v.attempted, project)
	v.mu.Unlock()
	return nil
}

// Reset clears the session cache and the miss guard, e.g. on lock/logout.
// Durable slots are untouched.
func (v *Vault) Reset() {
	v.mu.Lock()
	v.cache = make(map[string]string)
	v.attempted = make(map[string]bool)
	v.mu.Unlock()
}
