// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package login orchestrates the authentication flows: interactive cloud
// OAuth, the remote two-phase OAuth variant, username or token logins
// against server deployments, and file-backed hardcoded credentials. A
// successful flow always ends with the credential saved and the site
// registered.
package login

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/atlasbridge/atlasbridge/internal/auth"
	"github.com/atlasbridge/atlasbridge/internal/credstore"
)

// remoteAuthHost is the placeholder host used while finishing a remote
// dance; the real sites come from the grant's accessible resources.
const remoteAuthHost = "jira.atlassian.com"

// SiteRegistry is the slice of the site manager the login flows need.
type SiteRegistry interface {
	AddSites(sites []auth.DetailedSiteInfo) error
	AddOrUpdateSite(site auth.DetailedSiteInfo) error
}

// CredentialStore persists credentials keyed by site identity.
type CredentialStore interface {
	GetAuthInfo(ctx context.Context, site auth.DetailedSiteInfo, allowCache bool) (*auth.AuthInfo, error)
	SaveAuthInfo(ctx context.Context, site auth.DetailedSiteInfo, info auth.AuthInfo) error
}

// OAuthDancer runs the provider-facing parts of the OAuth flows.
type OAuthDancer interface {
	DoDance(ctx context.Context, provider auth.OAuthProvider, site auth.SiteInfo, finalRedirectURL string) (*auth.OAuthResponse, error)
	DoInitRemoteDance() (state, authURL string, err error)
	DoFinishRemoteDance(ctx context.Context, provider auth.OAuthProvider, site auth.SiteInfo, state, code string) (*auth.OAuthResponse, error)
}

// JiraProber covers the Jira REST lookups login needs.
type JiraProber interface {
	Myself(ctx context.Context, baseAPIURL, authHeader string) (auth.UserInfo, error)
	HasResolutionField(ctx context.Context, baseAPIURL, authHeader string) (bool, error)
}

// BitbucketProber covers the Bitbucket REST lookups login needs.
type BitbucketProber interface {
	CloudUser(ctx context.Context, apiBaseURL, authHeader string) (auth.UserInfo, error)
	ServerUsername(ctx context.Context, baseURL, authHeader string) (string, error)
	ServerUser(ctx context.Context, baseURL, authHeader, slug string) (auth.UserInfo, error)
}

// ServerCredentials carries user input for a server login. Token wins when
// both are set.
type ServerCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

// Manager ties the dance engine, the credential store and the site registry
// together.
type Manager struct {
	registry  SiteRegistry
	store     CredentialStore
	dancer    OAuthDancer
	jira      JiraProber
	bitbucket BitbucketProber
}

func NewManager(registry SiteRegistry, store CredentialStore, dancer OAuthDancer, jira JiraProber, bitbucket BitbucketProber) *Manager {
	return &Manager{
		registry:  registry,
		store:     store,
		dancer:    dancer,
		jira:      jira,
		bitbucket: bitbucket,
	}
}

// UserInitiatedOAuthLogin runs the interactive cloud OAuth flow for a site
// and registers every tenant the grant covers.
func (m *Manager) UserInitiatedOAuthLogin(ctx context.Context, site auth.SiteInfo, finalRedirectURL string) error {
	provider, ok := auth.OAuthProviderForSite(site)
	if !ok {
		return &auth.UnsupportedProviderError{Host: site.Host}
	}

	resp, err := m.dancer.DoDance(ctx, provider, site, finalRedirectURL)
	if err != nil {
		return fmt.Errorf("failed to authenticate %s: %w", site.Host, err)
	}
	return m.saveOAuthDetails(ctx, provider, site, resp)
}

// InitRemoteAuth starts the remote OAuth variant and returns the state
// token plus the authorization URL for the user to open elsewhere.
func (m *Manager) InitRemoteAuth() (state, authURL string, err error) {
	return m.dancer.DoInitRemoteDance()
}

// FinishRemoteAuth redeems the pasted authorization code from a remote
// dance started by InitRemoteAuth.
func (m *Manager) FinishRemoteAuth(ctx context.Context, state, code string) error {
	site := auth.SiteInfo{Host: remoteAuthHost, Product: auth.ProductJira}
	resp, err := m.dancer.DoFinishRemoteDance(ctx, auth.JiraCloudRemote, site, state, code)
	if err != nil {
		return fmt.Errorf("failed to finish remote authentication: %w", err)
	}
	return m.saveOAuthDetails(ctx, auth.JiraCloudRemote, site, resp)
}

// saveOAuthDetails maps a completed dance onto detailed sites, persists the
// credential under each and registers them.
func (m *Manager) saveOAuthDetails(ctx context.Context, provider auth.OAuthProvider, site auth.SiteInfo, resp *auth.OAuthResponse) error {
	info := auth.NewOAuthInfo(resp.Access, resp.Refresh, resp.ExpirationDate, resp.Iat, resp.ReceivedAt, resp.User)

	detailed, err := m.oauthSiteDetails(ctx, provider, site, resp, info)
	if err != nil {
		return err
	}
	if len(detailed) == 0 {
		return fmt.Errorf("authentication for %s granted access to no sites", site.Host)
	}

	for _, d := range detailed {
		if err := m.store.SaveAuthInfo(ctx, d, info); err != nil {
			return fmt.Errorf("failed to save credential for %s: %w", d.Host, err)
		}
	}
	if err := m.registry.AddSites(detailed); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"provider": string(provider),
		"sites":    len(detailed),
	}).Info("authenticated")
	return nil
}

func (m *Manager) oauthSiteDetails(ctx context.Context, provider auth.OAuthProvider, site auth.SiteInfo, resp *auth.OAuthResponse, info auth.AuthInfo) ([]auth.DetailedSiteInfo, error) {
	credentialID := credstore.GenerateCredentialID(site.Product.Key, resp.User.ID)

	if site.Product.Key == auth.ProductBitbucket.Key {
		if len(resp.AccessibleResources) == 0 {
			return nil, nil
		}
		resource := resp.AccessibleResources[0]
		return []auth.DetailedSiteInfo{{
			SiteInfo: auth.SiteInfo{
				Host:    resource.ID,
				Product: auth.ProductBitbucket,
			},
			ID:           resource.ID,
			Name:         resource.Name,
			AvatarURL:    resource.AvatarURL,
			BaseLinkURL:  resource.URL,
			BaseAPIURL:   bitbucketCloudAPIBase(provider),
			IsCloud:      true,
			UserID:       resp.User.ID,
			CredentialID: credentialID,
		}}, nil
	}

	apiGateway := jiraCloudAPIGateway(provider)
	authHeader := auth.AuthHeader(info)

	var detailed []auth.DetailedSiteInfo
	for _, resource := range resp.AccessibleResources {
		baseAPIURL := fmt.Sprintf("%s/ex/jira/%s/rest", apiGateway, resource.ID)
		d := auth.DetailedSiteInfo{
			SiteInfo: auth.SiteInfo{
				Host:    hostOf(resource.URL),
				Product: auth.ProductJira,
			},
			ID:           resource.ID,
			Name:         resource.Name,
			AvatarURL:    resource.AvatarURL,
			BaseLinkURL:  resource.URL,
			BaseAPIURL:   baseAPIURL,
			IsCloud:      true,
			UserID:       resp.User.ID,
			CredentialID: credentialID,
		}

		// Best effort; a failed probe leaves the flag unset rather than
		// aborting the login.
		if has, err := m.jira.HasResolutionField(ctx, baseAPIURL+"/api/2", authHeader); err == nil {
			d.HasResolutionField = has
		} else {
			log.WithError(err).WithField("site", d.Name).Debug("resolution field probe failed")
		}
		detailed = append(detailed, d)
	}
	return detailed, nil
}

// UserInitiatedServerLogin authenticates against a self-hosted Jira or
// Bitbucket instance with a username and password or a personal access
// token, and registers the site on success.
func (m *Manager) UserInitiatedServerLogin(ctx context.Context, site auth.SiteInfo, creds ServerCredentials) (auth.DetailedSiteInfo, error) {
	detailed, info, err := m.resolveServerSite(ctx, site, creds)
	if err != nil {
		return auth.DetailedSiteInfo{}, err
	}
	if err := m.store.SaveAuthInfo(ctx, detailed, info); err != nil {
		return auth.DetailedSiteInfo{}, fmt.Errorf("failed to save credential for %s: %w", detailed.Host, err)
	}
	if err := m.registry.AddOrUpdateSite(detailed); err != nil {
		return auth.DetailedSiteInfo{}, err
	}
	log.WithField("host", detailed.Host).Info("authenticated server site")
	return detailed, nil
}

// UpdatedServerInfo re-validates stored or edited server credentials and
// refreshes the registered site entry in place.
func (m *Manager) UpdatedServerInfo(ctx context.Context, site auth.SiteInfo, creds ServerCredentials) (auth.DetailedSiteInfo, error) {
	return m.UserInitiatedServerLogin(ctx, site, creds)
}

func (m *Manager) resolveServerSite(ctx context.Context, site auth.SiteInfo, creds ServerCredentials) (auth.DetailedSiteInfo, auth.AuthInfo, error) {
	baseLink := serverBaseLink(site)

	var info auth.AuthInfo
	var header string
	usePAT := creds.Token != ""
	if usePAT {
		header, _ = auth.AuthHeaderMaker(auth.SchemeBearer, creds.Token)
	} else {
		header = "Basic " + auth.BasicAuthEncode(creds.Username, creds.Password)
	}

	var user auth.UserInfo
	var hasResolution bool
	var err error

	switch site.Product.Key {
	case auth.ProductJira.Key:
		baseAPIURL := baseLink + "/rest/api/2"
		user, err = m.jira.Myself(ctx, baseAPIURL, header)
		if err != nil {
			return auth.DetailedSiteInfo{}, auth.AuthInfo{}, err
		}
		if has, probeErr := m.jira.HasResolutionField(ctx, baseAPIURL, header); probeErr == nil {
			hasResolution = has
		}
	case auth.ProductBitbucket.Key:
		var slug string
		slug, err = m.bitbucket.ServerUsername(ctx, baseLink, header)
		if err != nil {
			return auth.DetailedSiteInfo{}, auth.AuthInfo{}, err
		}
		user, err = m.bitbucket.ServerUser(ctx, baseLink, header, slug)
		if err != nil {
			return auth.DetailedSiteInfo{}, auth.AuthInfo{}, err
		}
	default:
		return auth.DetailedSiteInfo{}, auth.AuthInfo{}, fmt.Errorf("unknown product %q", site.Product.Key)
	}

	var credentialID string
	if usePAT {
		info = auth.NewPATAuthInfo(creds.Token, user)
		credentialID = credstore.GenerateCredentialID(site.Product.Key, user.ID)
	} else {
		info = auth.NewBasicAuthInfo(creds.Username, creds.Password, user)
		credentialID = credstore.GenerateCredentialID(baseLink, creds.Username)
	}

	baseAPIURL := baseLink
	if site.Product.Key == auth.ProductJira.Key {
		baseAPIURL = baseLink + "/rest/api/2"
	}

	detailed := auth.DetailedSiteInfo{
		SiteInfo:           site,
		ID:                 site.Host,
		Name:               site.Host,
		AvatarURL:          user.AvatarURL,
		BaseLinkURL:        baseLink,
		BaseAPIURL:         baseAPIURL,
		IsCloud:            false,
		UserID:             user.ID,
		CredentialID:       credentialID,
		HasResolutionField: hasResolution,
	}
	return detailed, info, nil
}

func serverBaseLink(site auth.SiteInfo) string {
	protocol := strings.TrimSuffix(site.Protocol, ":")
	if protocol == "" {
		protocol = "https"
	}
	return protocol + "://" + site.Host + site.ContextPath
}

func jiraCloudAPIGateway(provider auth.OAuthProvider) string {
	if provider == auth.JiraCloudStaging {
		return "https://api.stg.atlassian.com"
	}
	return "https://api.atlassian.com"
}

func bitbucketCloudAPIBase(provider auth.OAuthProvider) string {
	if provider == auth.BitbucketCloudStaging {
		return "https://api-staging.bb-inf.net/2.0"
	}
	return "https://api.bitbucket.org/2.0"
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}
