// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package credstore owns persisted credentials. All credential mutation in
// the process goes through the CredentialManager; no other component writes
// the secret-storage backend directly.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned by SecretStorage implementations when no value is
// stored under a key.
var ErrNotFound = errors.New("atlasbridge credstore: secret not found")

// SecretStorage abstracts the durable secret backend (OS keychain in
// production, in-memory in tests).
type SecretStorage interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) (string, error)
	// Set upserts the value stored under key.
	Set(key, value string) error
	// Delete removes the value stored under key. Deleting an absent key is
	// not an error.
	Delete(key string) error
	// Keys lists all stored keys.
	Keys() ([]string, error)
}

// MemoryStorage is a SecretStorage backed by a map. Used in tests and as a
// fallback when no OS keychain is available.
type MemoryStorage struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{secrets: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.secrets[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key] = value
	return nil
}

func (m *MemoryStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, key)
	return nil
}

func (m *MemoryStorage) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.secrets))
	for k := range m.secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// keyringIndexKey is the reserved entry under which KeyringStorage tracks
// its key set; OS keychains cannot enumerate entries for a service.
const keyringIndexKey = "__atlasbridge_index__"

// KeyringStorage stores secrets in the OS keychain.
type KeyringStorage struct {
	mu      sync.Mutex
	service string
}

// NewKeyringStorage creates a keychain-backed storage under the given
// service name.
func NewKeyringStorage(service string) *KeyringStorage {
	return &KeyringStorage{service: service}
}

func (k *KeyringStorage) Get(key string) (string, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keychain read for %s failed: %w", key, err)
	}
	return v, nil
}

func (k *KeyringStorage) Set(key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("keychain write for %s failed: %w", key, err)
	}
	return k.updateIndex(func(keys map[string]struct{}) {
		keys[key] = struct{}{}
	})
}

func (k *KeyringStorage) Delete(key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keychain delete for %s failed: %w", key, err)
	}
	return k.updateIndex(func(keys map[string]struct{}) {
		delete(keys, key)
	})
}

func (k *KeyringStorage) Keys() ([]string, error) {
	index, err := k.readIndex()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (k *KeyringStorage) readIndex() (map[string]struct{}, error) {
	raw, err := keyring.Get(k.service, keyringIndexKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keychain index read failed: %w", err)
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("keychain index is corrupt: %w", err)
	}
	index := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		index[key] = struct{}{}
	}
	return index, nil
}

func (k *KeyringStorage) updateIndex(mutate func(map[string]struct{})) error {
	index, err := k.readIndex()
	if err != nil {
		return err
	}
	mutate(index)
	keys := make([]string, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("failed to marshal keychain index: %w", err)
	}
	if err := keyring.Set(k.service, keyringIndexKey, string(data)); err != nil {
		return fmt.Errorf("keychain index write failed: %w", err)
	}
	return nil
}
