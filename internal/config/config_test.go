// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDanceTimeoutSeconds, cfg.DanceTimeoutSeconds)
}

func TestLoadConfigHardcodedSites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
port: 9090
hardcoded-sites:
  - product: bitbucket
    host: bitbucket.org
    credentials-path: ${env:HOME}/.git-credentials
    credentials-format: git-remote
    auth-header: bearer
  - product: bitbucket
    host: bitbucket.org
    credentials-path: /etc/token
    credentials-format: bogus
    auth-header: bearer
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	require.Len(t, cfg.HardcodedSites, 2)
	assert.True(t, cfg.HardcodedSites[0].Valid())
	assert.False(t, cfg.HardcodedSites[1].Valid(), "unknown credentials-format must be invalid")
}

func TestCheckManagementKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &Config{ManagementKey: string(hash)}
	assert.True(t, cfg.CheckManagementKey("s3cret"))
	assert.False(t, cfg.CheckManagementKey("wrong"))

	cfg = &Config{ManagementKey: "plain"}
	assert.True(t, cfg.CheckManagementKey("plain"))
	assert.False(t, cfg.CheckManagementKey(""))

	cfg = &Config{}
	assert.False(t, cfg.CheckManagementKey("anything"))
}
