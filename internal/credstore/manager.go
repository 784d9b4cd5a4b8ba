// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package credstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/atlasbridge/atlasbridge/internal/auth"
)

// RefreshedTokens is the result of a successful refresh-token exchange.
type RefreshedTokens struct {
	Access         string
	Refresh        string
	ExpirationDate int64
	Iat            int64
	ReceivedAt     int64
}

// OAuthRefresher exchanges a stored refresh token for a new token pair. The
// OAuth dance engine implements this.
type OAuthRefresher interface {
	RefreshAccessToken(ctx context.Context, provider auth.OAuthProvider, refreshToken string) (*RefreshedTokens, error)
}

// CredentialManager persists and retrieves AuthInfo per site, keyed by a
// derived credential id. Saves to the same credential id are last-write-wins
// with no version stamping; the per-manager mutex only guarantees a reader
// never observes a torn record.
type CredentialManager struct {
	storage   SecretStorage
	refresher OAuthRefresher

	mu    sync.Mutex
	cache map[string]auth.AuthInfo

	subMu       sync.Mutex
	subscribers []func(auth.AuthChangeEvent)
}

// NewCredentialManager wires a manager to its secret backend and the OAuth
// refresher used by RefreshOrMarkAsInvalid.
func NewCredentialManager(storage SecretStorage, refresher OAuthRefresher) *CredentialManager {
	return &CredentialManager{
		storage:   storage,
		refresher: refresher,
		cache:     make(map[string]auth.AuthInfo),
	}
}

// GenerateCredentialID derives the stable storage key for a (productKey,
// userID) pair. Site deduplication relies on this being identical across
// runs.
func GenerateCredentialID(productKey, userID string) string {
	sum := sha256.Sum256([]byte(productKey + "::" + userID))
	return hex.EncodeToString(sum[:])
}

// OnDidAuthChange registers a subscriber for credential change events.
func (c *CredentialManager) OnDidAuthChange(fn func(auth.AuthChangeEvent)) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

func (c *CredentialManager) fire(event auth.AuthChangeEvent) {
	c.subMu.Lock()
	subs := make([]func(auth.AuthChangeEvent), len(c.subscribers))
	copy(subs, c.subscribers)
	c.subMu.Unlock()
	for _, fn := range subs {
		fn(event)
	}
}

func storageKey(site auth.DetailedSiteInfo) string {
	return fmt.Sprintf("%s-%s", site.Product.Key, site.CredentialID)
}

// GetAuthInfo returns the persisted credential for the site, or nil when
// nothing is stored. allowCache serves the in-process copy without touching
// the backend.
func (c *CredentialManager) GetAuthInfo(ctx context.Context, site auth.DetailedSiteInfo, allowCache bool) (*auth.AuthInfo, error) {
	key := storageKey(site)

	if allowCache {
		c.mu.Lock()
		cached, ok := c.cache[key]
		c.mu.Unlock()
		if ok {
			return &cached, nil
		}
	}

	raw, err := c.storage.Get(key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var info auth.AuthInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("stored credential for %s is corrupt: %w", site.Host, err)
	}

	c.mu.Lock()
	c.cache[key] = info
	c.mu.Unlock()

	return &info, nil
}

// SaveAuthInfo upserts the credential for the site, overwriting any existing
// entry for the same credential id, and fires an update event.
func (c *CredentialManager) SaveAuthInfo(ctx context.Context, site auth.DetailedSiteInfo, info auth.AuthInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal credential for %s: %w", site.Host, err)
	}

	key := storageKey(site)

	// Cache and backend move together under the lock so a read issued after
	// this save resolves observes the saved value.
	c.mu.Lock()
	err = c.storage.Set(key, string(data))
	if err == nil {
		c.cache[key] = info
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"site": site.Host, "type": string(info.Type)}).Debug("saved credentials")
	c.fire(auth.AuthChangeEvent{Type: auth.AuthChangeUpdate, Site: site})
	return nil
}

// RemoveAuthInfo deletes the credential for the site and fires a remove
// event. Removing an absent credential is a no-op.
func (c *CredentialManager) RemoveAuthInfo(ctx context.Context, site auth.DetailedSiteInfo) error {
	key := storageKey(site)

	c.mu.Lock()
	err := c.storage.Delete(key)
	if err == nil {
		delete(c.cache, key)
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.fire(auth.AuthChangeEvent{
		Type:         auth.AuthChangeRemove,
		Product:      site.Product,
		CredentialID: site.CredentialID,
	})
	return nil
}

// RefreshOrMarkAsInvalid attempts a token refresh for refreshable credential
// types. On success the updated tokens are saved with state Valid and true
// is returned. On refresh failure the credential is saved with state Invalid
// (retained for audit but unusable) and false is returned. Non-refreshable
// types (basic, pat, hardcoded) always return false without touching
// storage: the user must re-authenticate interactively, or for hardcoded
// sites the file poller re-runs the login flow.
func (c *CredentialManager) RefreshOrMarkAsInvalid(ctx context.Context, site auth.DetailedSiteInfo) (bool, error) {
	info, err := c.GetAuthInfo(ctx, site, false)
	if err != nil {
		return false, err
	}
	if info == nil {
		log.WithField("site", site.Host).Debug("no credentials to refresh")
		return false, nil
	}

	if info.Type != auth.TypeOAuth {
		return false, nil
	}

	provider, ok := auth.OAuthProviderForSite(site.SiteInfo)
	if !ok {
		// OAuth credentials for a host with no provider cannot be refreshed.
		invalid := *info
		invalid.State = auth.Invalid
		if err := c.SaveAuthInfo(ctx, site, invalid); err != nil {
			return false, err
		}
		return false, nil
	}

	tokens, err := c.refresher.RefreshAccessToken(ctx, provider, info.Refresh)
	if err != nil {
		log.WithError(err).WithField("site", site.Host).Warn("token refresh failed, marking credentials invalid")
		invalid := *info
		invalid.State = auth.Invalid
		if saveErr := c.SaveAuthInfo(ctx, site, invalid); saveErr != nil {
			return false, saveErr
		}
		return false, nil
	}

	updated := *info
	updated.State = auth.Valid
	updated.Access = tokens.Access
	if tokens.Refresh != "" {
		updated.Refresh = tokens.Refresh
	}
	updated.ExpirationDate = tokens.ExpirationDate
	updated.Iat = tokens.Iat
	updated.ReceivedAt = tokens.ReceivedAt

	if err := c.SaveAuthInfo(ctx, site, updated); err != nil {
		return false, err
	}
	return true, nil
}

// GetAllValidAuthInfo returns every stored credential for the product whose
// state is still Valid.
func (c *CredentialManager) GetAllValidAuthInfo(ctx context.Context, product auth.Product) ([]auth.AuthInfo, error) {
	keys, err := c.storage.Keys()
	if err != nil {
		return nil, err
	}

	prefix := product.Key + "-"
	var result []auth.AuthInfo
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		raw, err := c.storage.Get(key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var info auth.AuthInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			log.WithField("key", key).Warn("skipping corrupt credential record")
			continue
		}
		if info.State == auth.Valid {
			result = append(result, info)
		}
	}
	return result, nil
}
