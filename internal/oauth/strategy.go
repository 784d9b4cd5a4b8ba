// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package oauth drives the provider-specific authorization-code and
// refresh-token exchange flows, including the remote (no local callback)
// variant.
package oauth

import (
	"fmt"

	"golang.org/x/oauth2"

	"github.com/atlasbridge/atlasbridge/internal/auth"
	"github.com/atlasbridge/atlasbridge/internal/config"
	"github.com/atlasbridge/atlasbridge/internal/secret"
)

// Strategy bundles everything provider-specific about one OAuth endpoint
// set: endpoints, client credentials, scopes, the loopback callback the
// provider redirects to, and the API base URLs used to resolve identity.
type Strategy struct {
	Provider     auth.OAuthProvider
	Product      auth.Product
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	UsePKCE      bool
	CallbackPort int
	CallbackPath string
}

const (
	jiraCallbackPort      = 31415
	bitbucketCallbackPort = 31416
)

// StrategyForProvider returns the strategy for a provider, applying any
// endpoint overrides from configuration (used for staging and tests).
func StrategyForProvider(provider auth.OAuthProvider, overrides map[string]config.ProviderOverride) (*Strategy, error) {
	var s *Strategy

	switch provider {
	case auth.JiraCloud, auth.JiraCloudRemote:
		s = &Strategy{
			Provider:     provider,
			Product:      auth.ProductJira,
			ClientID:     secret.JiraCloudClientID(),
			Scopes:       []string{"read:jira-user", "read:jira-work", "write:jira-work", "offline_access", "manage:jira-project"},
			AuthURL:      "https://auth.atlassian.com/authorize",
			TokenURL:     "https://auth.atlassian.com/oauth/token",
			APIBaseURL:   "https://api.atlassian.com",
			UsePKCE:      true,
			CallbackPort: jiraCallbackPort,
			CallbackPath: "/" + string(provider),
		}
	case auth.JiraCloudStaging:
		s = &Strategy{
			Provider:     provider,
			Product:      auth.ProductJira,
			ClientID:     secret.JiraCloudStagingClientID(),
			Scopes:       []string{"read:jira-user", "read:jira-work", "write:jira-work", "offline_access", "manage:jira-project"},
			AuthURL:      "https://auth.stg.atlassian.com/authorize",
			TokenURL:     "https://auth.stg.atlassian.com/oauth/token",
			APIBaseURL:   "https://api.stg.atlassian.com",
			UsePKCE:      true,
			CallbackPort: jiraCallbackPort,
			CallbackPath: "/" + string(provider),
		}
	case auth.BitbucketCloud:
		s = &Strategy{
			Provider:     provider,
			Product:      auth.ProductBitbucket,
			ClientID:     secret.BitbucketCloudClientID(),
			ClientSecret: secret.BitbucketCloudClientSecret(),
			AuthURL:      "https://bitbucket.org/site/oauth2/authorize",
			TokenURL:     "https://bitbucket.org/site/oauth2/access_token",
			APIBaseURL:   "https://api.bitbucket.org/2.0",
			CallbackPort: bitbucketCallbackPort,
			CallbackPath: "/" + string(provider),
		}
	case auth.BitbucketCloudStaging:
		s = &Strategy{
			Provider:     provider,
			Product:      auth.ProductBitbucket,
			ClientID:     secret.BitbucketCloudStagingClientID(),
			ClientSecret: secret.BitbucketCloudStagingClientSecret(),
			AuthURL:      "https://staging.bb-inf.net/site/oauth2/authorize",
			TokenURL:     "https://staging.bb-inf.net/site/oauth2/access_token",
			APIBaseURL:   "https://api-staging.bb-inf.net/2.0",
			CallbackPort: bitbucketCallbackPort,
			CallbackPath: "/" + string(provider),
		}
	default:
		return nil, fmt.Errorf("atlasbridge oauth: no strategy for provider %q", string(provider))
	}

	if override, ok := overrides[string(provider)]; ok {
		if override.AuthURL != "" {
			s.AuthURL = override.AuthURL
		}
		if override.TokenURL != "" {
			s.TokenURL = override.TokenURL
		}
		if override.APIBaseURL != "" {
			s.APIBaseURL = override.APIBaseURL
		}
		if override.ClientID != "" {
			s.ClientID = override.ClientID
		}
		if override.CallbackPort > 0 {
			s.CallbackPort = override.CallbackPort
		}
	}

	return s, nil
}

// RedirectURL is the loopback address the provider redirects the browser to
// during a local dance.
func (s *Strategy) RedirectURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", s.CallbackPort, s.CallbackPath)
}

// OAuth2Config builds the x/oauth2 configuration for this strategy.
func (s *Strategy) OAuth2Config(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Scopes:       s.Scopes,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.AuthURL,
			TokenURL:  s.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeOptions returns the provider-specific authorization URL
// parameters.
func (s *Strategy) AuthCodeOptions() []oauth2.AuthCodeOption {
	switch s.Product.Key {
	case auth.ProductJira.Key:
		return []oauth2.AuthCodeOption{
			oauth2.SetAuthURLParam("audience", "api.atlassian.com"),
			oauth2.SetAuthURLParam("prompt", "consent"),
			oauth2.AccessTypeOffline,
		}
	default:
		return nil
	}
}
