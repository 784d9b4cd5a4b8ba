// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// BasicAuthEncode produces the base64 payload for a Basic Authorization
// header.
func BasicAuthEncode(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// AuthHeaderMaker builds a wire Authorization header value for the given
// scheme. Only basic and bearer are valid schemes.
func AuthHeaderMaker(scheme AuthScheme, token string) (string, error) {
	switch scheme {
	case SchemeBasic:
		return fmt.Sprintf("Basic %s", token), nil
	case SchemeBearer:
		return fmt.Sprintf("Bearer %s", token), nil
	default:
		return "", &UnknownSchemeError{Scheme: scheme}
	}
}

// AuthHeader derives the Authorization header for a credential. The none
// variant yields an empty string.
func AuthHeader(credentials AuthInfo) string {
	var header string
	switch credentials.Type {
	case TypeOAuth:
		header, _ = AuthHeaderMaker(SchemeBearer, credentials.Access)
	case TypeBasic:
		header, _ = AuthHeaderMaker(SchemeBasic, BasicAuthEncode(credentials.Username, credentials.Password))
	case TypePAT:
		header, _ = AuthHeaderMaker(SchemeBearer, credentials.Token)
	case TypeHardcoded:
		// The scheme is stored alongside the token; an unknown value means
		// the record was tampered with, treat it as no credential.
		header, _ = AuthHeaderMaker(credentials.AuthHeader, credentials.Token)
	}
	return header
}

// OAuthProviderForSite resolves the OAuth provider for a site by matching
// its hostname against the known cloud domains. The second return is false
// when the host belongs to no known provider (server instances, unknown
// domains).
func OAuthProviderForSite(site SiteInfo) (OAuthProvider, bool) {
	hostname := strings.Split(site.Host, ":")[0]

	switch {
	case strings.HasSuffix(hostname, "atlassian.net"), strings.HasSuffix(hostname, "jira.com"):
		return JiraCloud, true
	case strings.HasSuffix(hostname, "jira-dev.com"):
		return JiraCloudStaging, true
	case strings.HasSuffix(hostname, "bitbucket.org"):
		return BitbucketCloud, true
	case strings.HasSuffix(hostname, "bb-inf.net"):
		return BitbucketCloudStaging, true
	default:
		return "", false
	}
}
