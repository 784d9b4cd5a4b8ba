// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config provides configuration management for the atlasbridge
// daemon. It handles loading and parsing the YAML configuration file and
// provides structured access to application settings: listen address, auth
// storage directory, hardcoded credential sites, OAuth endpoint overrides
// and logging behavior.
package config

import (
	"crypto/subtle"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// CredentialsFormat selects how a hardcoded credential file is parsed.
type CredentialsFormat string

const (
	// FormatSelf means the file contents, trimmed, are the token.
	FormatSelf CredentialsFormat = "self"
	// FormatGitRemote means the token is embedded in an
	// https://x-token-auth:<token>@bitbucket.org remote URL.
	FormatGitRemote CredentialsFormat = "git-remote"
)

// HardcodedSite describes a site whose credential is sourced from a local
// file instead of an interactive login.
type HardcodedSite struct {
	Product            string            `yaml:"product" json:"product"`
	Host               string            `yaml:"host" json:"host"`
	CredentialsPath    string            `yaml:"credentials-path" json:"credentialsPath"`
	CredentialsFormat  CredentialsFormat `yaml:"credentials-format" json:"credentialsFormat"`
	AuthHeader         string            `yaml:"auth-header" json:"authHeader"`
	IsCloud            *bool             `yaml:"is-cloud,omitempty" json:"isCloud,omitempty"`
	HasResolutionField *bool             `yaml:"has-resolution-field,omitempty" json:"hasResolutionField,omitempty"`
}

// Valid reports whether the entry carries everything the hardcoded login
// flow needs.
func (h HardcodedSite) Valid() bool {
	if h.Host == "" || h.CredentialsPath == "" {
		return false
	}
	if h.CredentialsFormat != FormatSelf && h.CredentialsFormat != FormatGitRemote {
		return false
	}
	return h.AuthHeader == "basic" || h.AuthHeader == "bearer"
}

// ProviderOverride redirects one OAuth provider at its test or staging
// endpoints. Zero values fall back to the built-in endpoints.
type ProviderOverride struct {
	AuthURL      string `yaml:"auth-url" json:"auth-url"`
	TokenURL     string `yaml:"token-url" json:"token-url"`
	APIBaseURL   string `yaml:"api-base-url" json:"api-base-url"`
	ClientID     string `yaml:"client-id" json:"client-id"`
	CallbackPort int    `yaml:"callback-port" json:"callback-port"`
}

// Config represents the daemon configuration, loaded from a YAML file.
type Config struct {
	// Host is the interface the management API binds to. Default 127.0.0.1;
	// the login endpoints are localhost-only regardless.
	Host string `yaml:"host" json:"-"`
	// Port is the management API port.
	Port int `yaml:"port" json:"-"`

	// AuthDir is the directory for the site registry and fallback credential
	// storage.
	AuthDir string `yaml:"auth-dir" json:"-"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile routes logs to rotating files under AuthDir/logs.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// ManagementKey guards mutating management endpoints. A bcrypt hash
	// (recognized by its $2 prefix) or a plain secret.
	ManagementKey string `yaml:"management-key" json:"-"`

	// RefreshPollSeconds is how often hardcoded credential files are
	// re-read looking for rotated tokens. 0 disables polling.
	RefreshPollSeconds int `yaml:"refresh-poll-seconds" json:"refresh-poll-seconds"`

	// DanceTimeoutSeconds bounds how long an OAuth dance waits for the
	// browser callback before failing.
	DanceTimeoutSeconds int `yaml:"dance-timeout-seconds" json:"dance-timeout-seconds"`

	// HardcodedSites lists sites authenticated from local credential files.
	HardcodedSites []HardcodedSite `yaml:"hardcoded-sites" json:"hardcoded-sites"`

	// Providers overrides OAuth endpoints per provider key (jiracloud,
	// bbcloud, ...), mainly for tests and staging.
	Providers map[string]ProviderOverride `yaml:"providers" json:"providers"`
}

// Default values applied when the config file omits them.
const (
	DefaultPort                = 34107
	DefaultRefreshPollSeconds  = 300
	DefaultDanceTimeoutSeconds = 300
)

// LoadConfig reads and parses the YAML configuration file at path. A missing
// file yields the defaults rather than an error so a fresh install can start
// without any configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Host:                "127.0.0.1",
		Port:                DefaultPort,
		AuthDir:             "~/.atlasbridge",
		RefreshPollSeconds:  DefaultRefreshPollSeconds,
		DanceTimeoutSeconds: DefaultDanceTimeoutSeconds,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DanceTimeoutSeconds <= 0 {
		cfg.DanceTimeoutSeconds = DefaultDanceTimeoutSeconds
	}

	return cfg, nil
}

// CheckManagementKey verifies a caller-supplied secret against the
// configured management key. Bcrypt hashes are compared with bcrypt;
// anything else is compared in constant time. An empty configured key
// rejects everything.
func (c *Config) CheckManagementKey(secret string) bool {
	if c.ManagementKey == "" {
		return false
	}
	if strings.HasPrefix(c.ManagementKey, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(c.ManagementKey), []byte(secret)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(c.ManagementKey), []byte(secret)) == 1
}
