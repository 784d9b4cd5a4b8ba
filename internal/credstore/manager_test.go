// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package credstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasbridge/atlasbridge/internal/auth"
)

type stubRefresher struct {
	calls  int
	tokens *RefreshedTokens
	err    error
}

func (s *stubRefresher) RefreshAccessToken(ctx context.Context, provider auth.OAuthProvider, refreshToken string) (*RefreshedTokens, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.tokens, nil
}

func cloudSite(credentialID string) auth.DetailedSiteInfo {
	return auth.DetailedSiteInfo{
		SiteInfo:     auth.SiteInfo{Host: "foo.atlassian.net", Product: auth.ProductJira},
		ID:           "site-1",
		Name:         "foo",
		IsCloud:      true,
		UserID:       "user-1",
		CredentialID: credentialID,
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	mgr := NewCredentialManager(NewMemoryStorage(), &stubRefresher{})
	site := cloudSite(GenerateCredentialID("jira", "user-1"))
	info := auth.NewOAuthInfo("acc", "ref", 123, 45, 678, auth.UserInfo{ID: "user-1", DisplayName: "Jane"})

	require.NoError(t, mgr.SaveAuthInfo(context.Background(), site, info))

	got, err := mgr.GetAuthInfo(context.Background(), site, true)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, info, *got)

	// Bypassing the cache must read the same record back from the backend.
	got, err = mgr.GetAuthInfo(context.Background(), site, false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, info, *got)
}

func TestGetAuthInfoMissing(t *testing.T) {
	mgr := NewCredentialManager(NewMemoryStorage(), &stubRefresher{})
	got, err := mgr.GetAuthInfo(context.Background(), cloudSite("nope"), true)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRefreshSuccessSavesValidTokens(t *testing.T) {
	refresher := &stubRefresher{tokens: &RefreshedTokens{Access: "new-acc", Refresh: "new-ref", ReceivedAt: 99}}
	mgr := NewCredentialManager(NewMemoryStorage(), refresher)
	site := cloudSite(GenerateCredentialID("jira", "user-1"))

	require.NoError(t, mgr.SaveAuthInfo(context.Background(), site, auth.NewOAuthInfo("old-acc", "old-ref", 0, 0, 0, auth.EmptyUserInfo)))

	ok, err := mgr.RefreshOrMarkAsInvalid(context.Background(), site)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, refresher.calls)

	got, err := mgr.GetAuthInfo(context.Background(), site, false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, auth.Valid, got.State)
	assert.Equal(t, "new-acc", got.Access)
	assert.Equal(t, "new-ref", got.Refresh)
}

func TestRefreshFailureMarksInvalid(t *testing.T) {
	refresher := &stubRefresher{err: errors.New("refresh token revoked")}
	mgr := NewCredentialManager(NewMemoryStorage(), refresher)
	site := cloudSite(GenerateCredentialID("jira", "user-1"))

	require.NoError(t, mgr.SaveAuthInfo(context.Background(), site, auth.NewOAuthInfo("acc", "ref", 0, 0, 0, auth.EmptyUserInfo)))

	ok, err := mgr.RefreshOrMarkAsInvalid(context.Background(), site)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := mgr.GetAuthInfo(context.Background(), site, false)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, auth.Invalid, got.State)
	// Tokens are retained for audit even though the record is unusable.
	assert.Equal(t, "acc", got.Access)
}

func TestRefreshNonRefreshableTypes(t *testing.T) {
	refresher := &stubRefresher{}
	mgr := NewCredentialManager(NewMemoryStorage(), refresher)

	cases := []auth.AuthInfo{
		auth.NewBasicAuthInfo("u", "pw", auth.EmptyUserInfo),
		auth.NewPATAuthInfo("tok", auth.EmptyUserInfo),
		auth.NewHardcodedAuthInfo("tok", auth.SchemeBearer, auth.EmptyUserInfo),
	}
	for _, info := range cases {
		site := cloudSite(GenerateCredentialID("jira", "u-"+string(info.Type)))
		require.NoError(t, mgr.SaveAuthInfo(context.Background(), site, info))

		ok, err := mgr.RefreshOrMarkAsInvalid(context.Background(), site)
		require.NoError(t, err)
		assert.False(t, ok, "type %s must not be refreshable", info.Type)

		got, err := mgr.GetAuthInfo(context.Background(), site, false)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, auth.Valid, got.State, "non-refreshable credentials keep their state")
	}
	assert.Equal(t, 0, refresher.calls)
}

func TestGetAllValidAuthInfoFiltersStateAndProduct(t *testing.T) {
	mgr := NewCredentialManager(NewMemoryStorage(), &stubRefresher{})
	ctx := context.Background()

	valid := cloudSite(GenerateCredentialID("jira", "u1"))
	require.NoError(t, mgr.SaveAuthInfo(ctx, valid, auth.NewPATAuthInfo("tok1", auth.EmptyUserInfo)))

	invalidInfo := auth.NewPATAuthInfo("tok2", auth.EmptyUserInfo)
	invalidInfo.State = auth.Invalid
	invalid := cloudSite(GenerateCredentialID("jira", "u2"))
	require.NoError(t, mgr.SaveAuthInfo(ctx, invalid, invalidInfo))

	bbSite := auth.DetailedSiteInfo{
		SiteInfo:     auth.SiteInfo{Host: "bitbucket.org", Product: auth.ProductBitbucket},
		CredentialID: GenerateCredentialID("bitbucket", "u3"),
	}
	require.NoError(t, mgr.SaveAuthInfo(ctx, bbSite, auth.NewPATAuthInfo("tok3", auth.EmptyUserInfo)))

	infos, err := mgr.GetAllValidAuthInfo(ctx, auth.ProductJira)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "tok1", infos[0].Token)
}

func TestChangeEvents(t *testing.T) {
	mgr := NewCredentialManager(NewMemoryStorage(), &stubRefresher{})
	site := cloudSite(GenerateCredentialID("jira", "user-1"))

	var events []auth.AuthChangeEvent
	mgr.OnDidAuthChange(func(e auth.AuthChangeEvent) { events = append(events, e) })

	require.NoError(t, mgr.SaveAuthInfo(context.Background(), site, auth.NewPATAuthInfo("tok", auth.EmptyUserInfo)))
	require.NoError(t, mgr.RemoveAuthInfo(context.Background(), site))

	require.Len(t, events, 2)
	assert.Equal(t, auth.AuthChangeUpdate, events[0].Type)
	assert.Equal(t, site.Host, events[0].Site.Host)
	assert.Equal(t, auth.AuthChangeRemove, events[1].Type)
	assert.Equal(t, site.CredentialID, events[1].CredentialID)
}
