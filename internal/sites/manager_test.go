// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sites

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasbridge/atlasbridge/internal/auth"
)

func jiraSite(id, host string) auth.DetailedSiteInfo {
	return auth.DetailedSiteInfo{
		SiteInfo: auth.SiteInfo{Host: host, Product: auth.ProductJira},
		ID:       id,
		Name:     host,
	}
}

func TestAddSitesDedupAndLookup(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, m.AddSites([]auth.DetailedSiteInfo{
		jiraSite("tenant-1", "one.atlassian.net"),
		jiraSite("tenant-2", "two.atlassian.net"),
	}))

	// Re-adding the same id replaces rather than duplicates.
	updated := jiraSite("tenant-1", "one.atlassian.net")
	updated.Name = "renamed"
	require.NoError(t, m.AddOrUpdateSite(updated))

	all := m.ProductSites(auth.ProductJira)
	require.Len(t, all, 2)

	got, ok := m.GetSiteForID(auth.ProductJira, "tenant-1")
	require.True(t, ok)
	assert.Equal(t, "renamed", got.Name)

	got, ok = m.GetSiteForHost(auth.ProductJira, "two.atlassian.net")
	require.True(t, ok)
	assert.Equal(t, "tenant-2", got.ID)

	_, ok = m.GetSiteForID(auth.ProductBitbucket, "tenant-1")
	assert.False(t, ok, "lookups are product scoped")

	assert.True(t, m.SitesAvailable(auth.ProductJira))
	assert.False(t, m.SitesAvailable(auth.ProductBitbucket))
}

func TestRegistrySurvivesReload(t *testing.T) {
	dir := t.TempDir()

	m, err := NewManager(dir)
	require.NoError(t, err)
	require.NoError(t, m.AddOrUpdateSite(jiraSite("tenant-1", "one.atlassian.net")))

	reloaded, err := NewManager(dir)
	require.NoError(t, err)
	got, ok := reloaded.GetSiteForID(auth.ProductJira, "tenant-1")
	require.True(t, ok)
	assert.Equal(t, "one.atlassian.net", got.Host)
}

func TestRemoveSite(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.AddOrUpdateSite(jiraSite("tenant-1", "one.atlassian.net")))

	var events []ChangeEvent
	m.OnDidSitesChange(func(ev ChangeEvent) { events = append(events, ev) })

	removed, err := m.RemoveSite(auth.ProductJira, "tenant-1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, m.SitesAvailable(auth.ProductJira))
	require.Len(t, events, 1)
	assert.Equal(t, auth.ProductJira.Key, events[0].Product.Key)

	removed, err = m.RemoveSite(auth.ProductJira, "tenant-1")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Len(t, events, 1, "no event for a no-op removal")
}
