// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasbridge/atlasbridge/internal/auth"
	"github.com/atlasbridge/atlasbridge/internal/config"
)

type recordingAuthenticator struct {
	mu    sync.Mutex
	seen  []string
	calls int
}

func (a *recordingAuthenticator) AuthenticateHardcodedSite(_ context.Context, hc config.HardcodedSite, existing *auth.AuthInfo) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.seen = append(a.seen, hc.Host)
	return true, nil
}

func (a *recordingAuthenticator) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type emptyLookup struct{}

func (emptyLookup) GetSiteForHost(auth.Product, string) (auth.DetailedSiteInfo, bool) {
	return auth.DetailedSiteInfo{}, false
}

type emptyReader struct{}

func (emptyReader) GetAuthInfo(context.Context, auth.DetailedSiteInfo, bool) (*auth.AuthInfo, error) {
	return nil, nil
}

func TestWatcherAuthenticatesOnStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds")
	require.NoError(t, os.WriteFile(path, []byte("tok"), 0600))

	sites := []config.HardcodedSite{{
		Product:           auth.ProductBitbucket.Key,
		Host:              "bitbucket.org",
		CredentialsPath:   path,
		CredentialsFormat: config.FormatSelf,
		AuthHeader:        "bearer",
	}}

	authn := &recordingAuthenticator{}
	w := NewHardcodedWatcher(sites, authn, emptyLookup{}, emptyReader{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return authn.callCount() >= 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Contains(t, authn.seen, "bitbucket.org")
}

func TestWatcherReactsToFileRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds")
	require.NoError(t, os.WriteFile(path, []byte("tok-1"), 0600))

	sites := []config.HardcodedSite{{
		Product:           auth.ProductBitbucket.Key,
		Host:              "bitbucket.org",
		CredentialsPath:   path,
		CredentialsFormat: config.FormatSelf,
		AuthHeader:        "bearer",
	}}

	authn := &recordingAuthenticator{}
	w := NewHardcodedWatcher(sites, authn, emptyLookup{}, emptyReader{}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool { return authn.callCount() >= 1 }, 2*time.Second, 10*time.Millisecond)
	before := authn.callCount()

	require.NoError(t, os.WriteFile(path, []byte("tok-2"), 0600))
	require.Eventually(t, func() bool { return authn.callCount() > before }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherPollsWithoutEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds")
	require.NoError(t, os.WriteFile(path, []byte("tok"), 0600))

	sites := []config.HardcodedSite{{
		Product:           auth.ProductBitbucket.Key,
		Host:              "bitbucket.org",
		CredentialsPath:   path,
		CredentialsFormat: config.FormatSelf,
		AuthHeader:        "bearer",
	}}

	authn := &recordingAuthenticator{}
	w := NewHardcodedWatcher(sites, authn, emptyLookup{}, emptyReader{}, 25*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool { return authn.callCount() >= 3 }, 2*time.Second, 10*time.Millisecond)
}
