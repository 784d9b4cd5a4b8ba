// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package auth defines the credential and site identity model shared by the
// credential store, the OAuth dance engine, the login manager and the HTTP
// auth interceptor. The types here carry no behavior beyond discriminant
// helpers and header derivation.
package auth

// Product identifies one of the two supported Atlassian products.
type Product struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

var (
	ProductJira      = Product{Name: "Jira", Key: "jira"}
	ProductBitbucket = Product{Name: "Bitbucket", Key: "bitbucket"}
	EmptyProduct     = Product{}
)

// ProductForKey resolves a product by its key.
func ProductForKey(key string) (Product, bool) {
	switch key {
	case ProductJira.Key:
		return ProductJira, true
	case ProductBitbucket.Key:
		return ProductBitbucket, true
	default:
		return EmptyProduct, false
	}
}

// OAuthProvider names a known cloud OAuth endpoint set.
type OAuthProvider string

const (
	BitbucketCloud        OAuthProvider = "bbcloud"
	BitbucketCloudStaging OAuthProvider = "bbcloudstaging"
	JiraCloud             OAuthProvider = "jiracloud"
	JiraCloudStaging      OAuthProvider = "jiracloudstaging"
	JiraCloudRemote       OAuthProvider = "jiracloudremote"
)

// SiteInfo identifies a server or cloud instance before full detail is known.
type SiteInfo struct {
	Host               string  `json:"host"`
	Protocol           string  `json:"protocol,omitempty"`
	Product            Product `json:"product"`
	ContextPath        string  `json:"contextPath,omitempty"`
	CustomSSLCertPaths string  `json:"customSSLCertPaths,omitempty"`
	PfxPath            string  `json:"pfxPath,omitempty"`
	PfxPassphrase      string  `json:"pfxPassphrase,omitempty"`
}

// DetailedSiteInfo is the fully resolved site identity produced by a login
// flow. ID and CredentialID are the stable keys used for storage lookup and
// deduplication. HasResolutionField is mutated later by the field-schema
// probe (Jira only).
type DetailedSiteInfo struct {
	SiteInfo
	ID                 string `json:"id"`
	Name               string `json:"name"`
	AvatarURL          string `json:"avatarUrl"`
	BaseLinkURL        string `json:"baseLinkUrl"`
	BaseAPIURL         string `json:"baseApiUrl"`
	IsCloud            bool   `json:"isCloud"`
	UserID             string `json:"userId"`
	CredentialID       string `json:"credentialId"`
	HasResolutionField bool   `json:"hasResolutionField"`
}

// UserInfo is the product-agnostic identity resolved during login.
type UserInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatarUrl"`
}

var EmptyUserInfo = UserInfo{}

// AuthInfoState records whether a stored credential may still be used.
type AuthInfoState int

const (
	Valid AuthInfoState = iota
	Invalid
)

// AuthType discriminates the AuthInfo union.
type AuthType string

const (
	TypeNone      AuthType = "none"
	TypeOAuth     AuthType = "oauth"
	TypeBasic     AuthType = "basic"
	TypePAT       AuthType = "pat"
	TypeHardcoded AuthType = "hardcoded"
)

// AuthScheme selects the wire-level Authorization scheme.
type AuthScheme string

const (
	SchemeBasic  AuthScheme = "basic"
	SchemeBearer AuthScheme = "bearer"
)

// AuthInfo is the persisted credential record for one site. Type is the
// sole discriminant for which variant fields are populated; State is the
// authority for whether the credential may still be used.
type AuthInfo struct {
	Type  AuthType      `json:"type"`
	User  UserInfo      `json:"user"`
	State AuthInfoState `json:"state"`

	// oauth
	Access         string `json:"access,omitempty"`
	Refresh        string `json:"refresh,omitempty"`
	ExpirationDate int64  `json:"expirationDate,omitempty"`
	Iat            int64  `json:"iat,omitempty"`
	ReceivedAt     int64  `json:"receivedAt,omitempty"`

	// basic
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// pat and hardcoded
	Token string `json:"token,omitempty"`

	// hardcoded
	AuthHeader AuthScheme `json:"authHeader,omitempty"`
}

// EmptyAuthInfo is the placeholder credential for unauthenticated sites.
var EmptyAuthInfo = AuthInfo{Type: TypeNone, State: Valid}

func NewOAuthInfo(access, refresh string, expirationDate, iat, receivedAt int64, user UserInfo) AuthInfo {
	return AuthInfo{
		Type:           TypeOAuth,
		User:           user,
		State:          Valid,
		Access:         access,
		Refresh:        refresh,
		ExpirationDate: expirationDate,
		Iat:            iat,
		ReceivedAt:     receivedAt,
	}
}

func NewBasicAuthInfo(username, password string, user UserInfo) AuthInfo {
	return AuthInfo{Type: TypeBasic, User: user, State: Valid, Username: username, Password: password}
}

func NewPATAuthInfo(token string, user UserInfo) AuthInfo {
	return AuthInfo{Type: TypePAT, User: user, State: Valid, Token: token}
}

func NewHardcodedAuthInfo(token string, scheme AuthScheme, user UserInfo) AuthInfo {
	return AuthInfo{Type: TypeHardcoded, User: user, State: Valid, Token: token, AuthHeader: scheme}
}

func (a AuthInfo) IsOAuth() bool     { return a.Type == TypeOAuth }
func (a AuthInfo) IsBasic() bool     { return a.Type == TypeBasic }
func (a AuthInfo) IsPAT() bool       { return a.Type == TypePAT }
func (a AuthInfo) IsHardcoded() bool { return a.Type == TypeHardcoded }
func (a AuthInfo) IsNone() bool      { return a.Type == TypeNone || a.Type == "" }

// GetSecretForAuthInfo returns the sensitive material carried by the
// credential. It is empty only for the none variant.
func GetSecretForAuthInfo(a AuthInfo) string {
	switch a.Type {
	case TypeOAuth:
		return a.Access + a.Refresh
	case TypeBasic:
		return a.Password
	case TypePAT, TypeHardcoded:
		return a.Token
	default:
		return ""
	}
}

// OAuthResponse is the transient aggregate returned by a completed dance.
// It is mapped into an oauth AuthInfo before persisting.
type OAuthResponse struct {
	Access              string
	Refresh             string
	ExpirationDate      int64
	Iat                 int64
	ReceivedAt          int64
	User                UserInfo
	AccessibleResources []AccessibleResource
}

// AccessibleResource is one cloud tenant covered by an OAuth grant. A single
// OAuth login fans out into one DetailedSiteInfo per accessible tenant.
type AccessibleResource struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Scopes    []string `json:"scopes"`
	AvatarURL string   `json:"avatarUrl"`
	URL       string   `json:"url"`
}

// AuthChangeType tags credential change notifications.
type AuthChangeType string

const (
	AuthChangeUpdate AuthChangeType = "update"
	AuthChangeRemove AuthChangeType = "remove"
)

// AuthChangeEvent is fired by the credential store whenever a credential is
// saved or removed.
type AuthChangeEvent struct {
	Type         AuthChangeType
	Site         DetailedSiteInfo
	Product      Product
	CredentialID string
}
