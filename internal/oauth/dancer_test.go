// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasbridge/atlasbridge/internal/auth"
	"github.com/atlasbridge/atlasbridge/internal/config"
)

const testCallbackPort = 42117

// fakeJiraProvider stands in for auth.atlassian.com and api.atlassian.com.
func fakeJiraProvider(t *testing.T, rejectRefresh bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if rejectRefresh {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "acc-token",
			"refresh_token": "ref-token",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer acc-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"account_id": "aaid-1",
			"name":       "Jane Doe",
			"email":      "jane@example.com",
			"picture":    "https://avatar.example.com/jane.png",
		})
	})
	mux.HandleFunc("/oauth/token/accessible-resources", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "tenant-1", "name": "one", "scopes": []string{"read:jira-user"}, "avatarUrl": "", "url": "https://one.atlassian.net"},
			{"id": "tenant-2", "name": "two", "scopes": []string{"read:jira-user"}, "avatarUrl": "", "url": "https://two.atlassian.net"},
		})
	})
	return httptest.NewServer(mux)
}

func dancerForProvider(providerURL string) *Dancer {
	cfg := &config.Config{
		DanceTimeoutSeconds: 5,
		Providers: map[string]config.ProviderOverride{
			string(auth.JiraCloud): {
				AuthURL:      providerURL + "/authorize",
				TokenURL:     providerURL + "/oauth/token",
				APIBaseURL:   providerURL,
				ClientID:     "test-client",
				CallbackPort: testCallbackPort,
			},
			string(auth.JiraCloudRemote): {
				AuthURL:    providerURL + "/authorize",
				TokenURL:   providerURL + "/oauth/token",
				APIBaseURL: providerURL,
				ClientID:   "test-client",
			},
		},
	}
	return NewDancer(cfg)
}

func TestDoDanceHappyPath(t *testing.T) {
	provider := fakeJiraProvider(t, false)
	defer provider.Close()

	dancer := dancerForProvider(provider.URL)
	defer dancer.Close()

	// Stand-in for the user's browser: follow the authorization URL far
	// enough to bounce the code back to the loopback listener.
	dancer.openBrowser = func(authURL string) error {
		parsed, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := parsed.Query()
		redirect := q.Get("redirect_uri")
		state := q.Get("state")
		go func() {
			cb := redirect + "?code=the-code&state=" + url.QueryEscape(state)
			resp, err := http.Get(cb)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	resp, err := dancer.DoDance(context.Background(), auth.JiraCloud, auth.SiteInfo{Host: "one.atlassian.net", Product: auth.ProductJira}, "")
	require.NoError(t, err)

	assert.Equal(t, "acc-token", resp.Access)
	assert.Equal(t, "ref-token", resp.Refresh)
	assert.Equal(t, "aaid-1", resp.User.ID)
	assert.Equal(t, "Jane Doe", resp.User.DisplayName)
	require.Len(t, resp.AccessibleResources, 2)
	assert.Equal(t, "tenant-1", resp.AccessibleResources[0].ID)
	assert.NotZero(t, resp.ExpirationDate)
	assert.Equal(t, StateComplete, dancer.State())
}

func TestDoDanceStateMismatch(t *testing.T) {
	provider := fakeJiraProvider(t, false)
	defer provider.Close()

	dancer := dancerForProvider(provider.URL)
	defer dancer.Close()

	dancer.openBrowser = func(authURL string) error {
		parsed, _ := url.Parse(authURL)
		redirect := parsed.Query().Get("redirect_uri")
		go func() {
			resp, err := http.Get(redirect + "?code=the-code&state=forged")
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}

	_, err := dancer.DoDance(context.Background(), auth.JiraCloud, auth.SiteInfo{Host: "one.atlassian.net", Product: auth.ProductJira}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch")
	assert.Equal(t, StateFailed, dancer.State())
}

func TestDoDanceTimeout(t *testing.T) {
	provider := fakeJiraProvider(t, false)
	defer provider.Close()

	dancer := dancerForProvider(provider.URL)
	defer dancer.Close()
	dancer.timeout = 50 * time.Millisecond
	dancer.openBrowser = func(string) error { return nil }

	_, err := dancer.DoDance(context.Background(), auth.JiraCloud, auth.SiteInfo{Host: "one.atlassian.net", Product: auth.ProductJira}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrTimeout)
}

func TestSecondDanceWhileOneIsRunningFails(t *testing.T) {
	provider := fakeJiraProvider(t, false)
	defer provider.Close()

	dancer := dancerForProvider(provider.URL)
	defer dancer.Close()
	dancer.timeout = 200 * time.Millisecond

	started := make(chan struct{})
	unblock := make(chan struct{})
	dancer.openBrowser = func(string) error {
		close(started)
		<-unblock
		return nil
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := dancer.DoDance(context.Background(), auth.JiraCloud, auth.SiteInfo{Host: "one.atlassian.net", Product: auth.ProductJira}, "")
		firstErr <- err
	}()

	<-started
	_, err := dancer.DoDance(context.Background(), auth.JiraCloud, auth.SiteInfo{Host: "one.atlassian.net", Product: auth.ProductJira}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")

	close(unblock)
	assert.ErrorIs(t, <-firstErr, auth.ErrTimeout)
}

func TestRefreshAccessToken(t *testing.T) {
	provider := fakeJiraProvider(t, false)
	defer provider.Close()

	dancer := dancerForProvider(provider.URL)
	defer dancer.Close()

	tokens, err := dancer.RefreshAccessToken(context.Background(), auth.JiraCloud, "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "acc-token", tokens.Access)
	assert.Equal(t, "ref-token", tokens.Refresh)
}

func TestRefreshAccessTokenRejected(t *testing.T) {
	provider := fakeJiraProvider(t, true)
	defer provider.Close()

	dancer := dancerForProvider(provider.URL)
	defer dancer.Close()

	_, err := dancer.RefreshAccessToken(context.Background(), auth.JiraCloud, "revoked")
	require.Error(t, err)
	var rejected *auth.RefreshRejectedError
	assert.True(t, errors.As(err, &rejected), "expected RefreshRejectedError, got %T: %v", err, err)
}

func TestRemoteDanceStateCorrelation(t *testing.T) {
	provider := fakeJiraProvider(t, false)
	defer provider.Close()

	dancer := dancerForProvider(provider.URL)
	defer dancer.Close()

	state, authURL, err := dancer.DoInitRemoteDance()
	require.NoError(t, err)
	assert.Contains(t, authURL, "state="+url.QueryEscape(state))
	assert.Equal(t, 1, dancer.pendingRemoteCount())

	site := auth.SiteInfo{Host: "jira.atlassian.com", Product: auth.ProductJira}

	// Unknown state must fail without redeeming the registered one.
	_, err = dancer.DoFinishRemoteDance(context.Background(), auth.JiraCloudRemote, site, "bogus", "the-code")
	require.Error(t, err)
	assert.Equal(t, 1, dancer.pendingRemoteCount())

	resp, err := dancer.DoFinishRemoteDance(context.Background(), auth.JiraCloudRemote, site, state, "the-code")
	require.NoError(t, err)
	assert.Equal(t, "acc-token", resp.Access)
	assert.Equal(t, 0, dancer.pendingRemoteCount())

	// States are single use.
	_, err = dancer.DoFinishRemoteDance(context.Background(), auth.JiraCloudRemote, site, state, "the-code")
	require.Error(t, err)
}

func TestStrategyForProviderUnknown(t *testing.T) {
	_, err := StrategyForProvider(auth.OAuthProvider("nope"), nil)
	require.Error(t, err)
}
