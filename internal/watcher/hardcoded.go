// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package watcher keeps hardcoded credential files and the credential store
// in sync. Rotated tokens are picked up either through filesystem events or
// a periodic poll, whichever fires first.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/atlasbridge/atlasbridge/internal/auth"
	"github.com/atlasbridge/atlasbridge/internal/config"
	"github.com/atlasbridge/atlasbridge/internal/util"
)

// Authenticator re-validates one hardcoded site from its credential file.
type Authenticator interface {
	AuthenticateHardcodedSite(ctx context.Context, hc config.HardcodedSite, existing *auth.AuthInfo) (bool, error)
}

// SiteLookup finds the registered site entry for a host.
type SiteLookup interface {
	GetSiteForHost(product auth.Product, host string) (auth.DetailedSiteInfo, bool)
}

// CredentialReader reads the stored credential for a site.
type CredentialReader interface {
	GetAuthInfo(ctx context.Context, site auth.DetailedSiteInfo, allowCache bool) (*auth.AuthInfo, error)
}

// HardcodedWatcher re-authenticates hardcoded sites whenever their
// credential files change on disk, with a poll as the fallback for
// filesystems where events are unreliable.
type HardcodedWatcher struct {
	sites        []config.HardcodedSite
	login        Authenticator
	registry     SiteLookup
	store        CredentialReader
	pollInterval time.Duration
}

func NewHardcodedWatcher(sites []config.HardcodedSite, login Authenticator, registry SiteLookup, store CredentialReader, pollInterval time.Duration) *HardcodedWatcher {
	return &HardcodedWatcher{
		sites:        sites,
		login:        login,
		registry:     registry,
		store:        store,
		pollInterval: pollInterval,
	}
}

// Run blocks until ctx is done. It authenticates every configured site once
// at startup and then reacts to file changes and poll ticks.
func (w *HardcodedWatcher) Run(ctx context.Context) {
	if len(w.sites) == 0 {
		return
	}

	w.checkAll(ctx)

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("failed to create filesystem watcher, falling back to polling only")
		fsWatcher = nil
	} else {
		defer fsWatcher.Close()
		// Watch directories rather than the files themselves; editors and
		// credential helpers typically replace the file via rename.
		dirs := map[string]bool{}
		for _, hc := range w.sites {
			dir := filepath.Dir(util.Substitute(hc.CredentialsPath))
			if dirs[dir] {
				continue
			}
			dirs[dir] = true
			if err := fsWatcher.Add(dir); err != nil {
				log.WithError(err).WithField("dir", dir).Warn("failed to watch credential directory")
			}
		}
	}

	var events chan fsnotify.Event
	var errs chan error
	if fsWatcher != nil {
		events = fsWatcher.Events
		errs = fsWatcher.Errors
	}

	var ticker *time.Ticker
	var ticks <-chan time.Time
	if w.pollInterval > 0 {
		ticker = time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.checkPath(ctx, event.Name)
		case err := <-errs:
			if err != nil {
				log.WithError(err).Warn("credential watcher error")
			}
		case <-ticks:
			w.checkAll(ctx)
		}
	}
}

func (w *HardcodedWatcher) checkPath(ctx context.Context, changed string) {
	for _, hc := range w.sites {
		if util.Substitute(hc.CredentialsPath) == changed {
			w.check(ctx, hc)
		}
	}
}

func (w *HardcodedWatcher) checkAll(ctx context.Context) {
	for _, hc := range w.sites {
		w.check(ctx, hc)
	}
}

func (w *HardcodedWatcher) check(ctx context.Context, hc config.HardcodedSite) {
	var existing *auth.AuthInfo
	product := auth.ProductBitbucket
	if hc.Product == auth.ProductJira.Key {
		product = auth.ProductJira
	}
	if site, ok := w.registry.GetSiteForHost(product, hc.Host); ok {
		if info, err := w.store.GetAuthInfo(ctx, site, true); err == nil {
			existing = info
		}
	}

	changed, err := w.login.AuthenticateHardcodedSite(ctx, hc, existing)
	if err != nil {
		log.WithError(err).WithField("host", hc.Host).Warn("hardcoded site authentication failed")
		return
	}
	if changed {
		log.WithField("host", hc.Host).Info("hardcoded credential rotated")
	}
}
