// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sites keeps the registry of authenticated Jira and Bitbucket
// sites, persisted to disk so logins survive restarts.
package sites

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/atlasbridge/atlasbridge/internal/auth"
	"github.com/atlasbridge/atlasbridge/internal/util"
)

const sitesFileName = "sites.json"

// ChangeEvent describes a registry mutation.
type ChangeEvent struct {
	Product auth.Product
}

// Manager is the site registry. All accessors are safe for concurrent use.
type Manager struct {
	path string

	mu          sync.RWMutex
	sites       []auth.DetailedSiteInfo
	subscribers []func(ChangeEvent)
}

// NewManager loads the registry from dir, starting empty when no file
// exists yet.
func NewManager(dir string) (*Manager, error) {
	m := &Manager{path: filepath.Join(dir, sitesFileName)}

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read site registry: %w", err)
	}
	if err := json.Unmarshal(data, &m.sites); err != nil {
		return nil, fmt.Errorf("failed to parse site registry %s: %w", m.path, err)
	}
	log.WithField("sites", len(m.sites)).Debug("loaded site registry")
	return m, nil
}

// OnDidSitesChange registers a callback fired after every mutation.
func (m *Manager) OnDidSitesChange(fn func(ChangeEvent)) {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.mu.Unlock()
}

// AddSites inserts or replaces sites, matching on product and site id.
func (m *Manager) AddSites(newSites []auth.DetailedSiteInfo) error {
	if len(newSites) == 0 {
		return nil
	}

	m.mu.Lock()
	for _, site := range newSites {
		replaced := false
		for i, existing := range m.sites {
			if existing.Product.Key == site.Product.Key && existing.ID == site.ID {
				m.sites[i] = site
				replaced = true
				break
			}
		}
		if !replaced {
			m.sites = append(m.sites, site)
		}
	}
	err := m.persistLocked()
	product := newSites[0].Product
	m.mu.Unlock()

	if err != nil {
		return err
	}
	m.fire(ChangeEvent{Product: product})
	return nil
}

// AddOrUpdateSite is AddSites for a single entry.
func (m *Manager) AddOrUpdateSite(site auth.DetailedSiteInfo) error {
	return m.AddSites([]auth.DetailedSiteInfo{site})
}

// RemoveSite deletes a site from the registry. It reports whether anything
// was removed.
func (m *Manager) RemoveSite(product auth.Product, siteID string) (bool, error) {
	m.mu.Lock()
	removed := false
	kept := m.sites[:0]
	for _, existing := range m.sites {
		if existing.Product.Key == product.Key && existing.ID == siteID {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	m.sites = kept

	var err error
	if removed {
		err = m.persistLocked()
	}
	m.mu.Unlock()

	if err != nil {
		return removed, err
	}
	if removed {
		m.fire(ChangeEvent{Product: product})
	}
	return removed, nil
}

// GetSiteForID looks a site up by product and id.
func (m *Manager) GetSiteForID(product auth.Product, siteID string) (auth.DetailedSiteInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, site := range m.sites {
		if site.Product.Key == product.Key && site.ID == siteID {
			return site, true
		}
	}
	return auth.DetailedSiteInfo{}, false
}

// GetSiteForHost looks a site up by product and host name.
func (m *Manager) GetSiteForHost(product auth.Product, host string) (auth.DetailedSiteInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, site := range m.sites {
		if site.Product.Key == product.Key && site.Host == host {
			return site, true
		}
	}
	return auth.DetailedSiteInfo{}, false
}

// ProductSites returns all registered sites for a product.
func (m *Manager) ProductSites(product auth.Product) []auth.DetailedSiteInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []auth.DetailedSiteInfo
	for _, site := range m.sites {
		if site.Product.Key == product.Key {
			out = append(out, site)
		}
	}
	return out
}

// AllSites returns every registered site.
func (m *Manager) AllSites() []auth.DetailedSiteInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]auth.DetailedSiteInfo, len(m.sites))
	copy(out, m.sites)
	return out
}

// SitesAvailable reports whether any site is registered for a product.
func (m *Manager) SitesAvailable(product auth.Product) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, site := range m.sites {
		if site.Product.Key == product.Key {
			return true
		}
	}
	return false
}

func (m *Manager) persistLocked() error {
	if err := util.SecureWriteJSON(m.path, m.sites, nil); err != nil {
		return fmt.Errorf("failed to persist site registry: %w", err)
	}
	return nil
}

func (m *Manager) fire(ev ChangeEvent) {
	m.mu.RLock()
	subs := make([]func(ChangeEvent), len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}
