// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package login

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/atlasbridge/atlasbridge/internal/auth"
	"github.com/atlasbridge/atlasbridge/internal/config"
	"github.com/atlasbridge/atlasbridge/internal/credstore"
	"github.com/atlasbridge/atlasbridge/internal/util"
)

// gitRemoteTokenPattern extracts the token from an
// https://x-token-auth:<token>@bitbucket.org remote URL.
var gitRemoteTokenPattern = regexp.MustCompile(`https://x-token-auth:([^@]+)@bitbucket\.org`)

// AuthenticateHardcodedSite reads the credential file of a configured
// hardcoded site and, when the token differs from what is already stored,
// validates it against the product and saves it. It returns whether a new
// credential was stored. A token identical to the stored valid one is a
// no-op with no network traffic.
func (m *Manager) AuthenticateHardcodedSite(ctx context.Context, hc config.HardcodedSite, existing *auth.AuthInfo) (bool, error) {
	if !hc.Valid() {
		return false, fmt.Errorf("hardcoded site %q is misconfigured", hc.Host)
	}

	token, err := readHardcodedToken(hc)
	if err != nil {
		return false, err
	}

	if existing != nil && existing.IsHardcoded() &&
		existing.State == auth.Valid && existing.Token == token {
		return false, nil
	}

	scheme := auth.AuthScheme(hc.AuthHeader)
	header, err := auth.AuthHeaderMaker(scheme, token)
	if err != nil {
		return false, err
	}

	product := auth.ProductBitbucket
	if hc.Product == auth.ProductJira.Key {
		product = auth.ProductJira
	}
	isCloud := hc.IsCloud == nil || *hc.IsCloud

	user, detailed, err := m.resolveHardcodedSite(ctx, hc, product, isCloud, header)
	if err != nil {
		return false, err
	}

	info := auth.NewHardcodedAuthInfo(token, scheme, user)
	detailed.UserID = user.ID
	detailed.CredentialID = credstore.GenerateCredentialID(product.Key, user.ID)

	if err := m.store.SaveAuthInfo(ctx, detailed, info); err != nil {
		return false, fmt.Errorf("failed to save credential for %s: %w", hc.Host, err)
	}
	if err := m.registry.AddOrUpdateSite(detailed); err != nil {
		return false, err
	}

	log.WithField("host", hc.Host).Info("hardcoded credential stored")
	return true, nil
}

func (m *Manager) resolveHardcodedSite(ctx context.Context, hc config.HardcodedSite, product auth.Product, isCloud bool, header string) (auth.UserInfo, auth.DetailedSiteInfo, error) {
	baseLink := "https://" + hc.Host
	var baseAPIURL string
	var user auth.UserInfo
	var err error

	switch product.Key {
	case auth.ProductBitbucket.Key:
		if isCloud {
			baseAPIURL = "https://api." + hc.Host + "/2.0"
			user, err = m.bitbucket.CloudUser(ctx, baseAPIURL, header)
		} else {
			baseAPIURL = baseLink
			var slug string
			if slug, err = m.bitbucket.ServerUsername(ctx, baseLink, header); err == nil {
				user, err = m.bitbucket.ServerUser(ctx, baseLink, header, slug)
			}
		}
	case auth.ProductJira.Key:
		baseAPIURL = baseLink + "/rest/api/2"
		user, err = m.jira.Myself(ctx, baseAPIURL, header)
	default:
		err = fmt.Errorf("unknown product %q", hc.Product)
	}
	if err != nil {
		return auth.UserInfo{}, auth.DetailedSiteInfo{}, err
	}

	detailed := auth.DetailedSiteInfo{
		SiteInfo:    auth.SiteInfo{Host: hc.Host, Product: product},
		ID:          hc.Host,
		Name:        hc.Host,
		AvatarURL:   user.AvatarURL,
		BaseLinkURL: baseLink,
		BaseAPIURL:  baseAPIURL,
		IsCloud:     isCloud,
	}
	if hc.HasResolutionField != nil {
		detailed.HasResolutionField = *hc.HasResolutionField
	}
	return user, detailed, nil
}

func readHardcodedToken(hc config.HardcodedSite) (string, error) {
	path := util.Substitute(hc.CredentialsPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &auth.CredentialReadError{Path: path, Cause: err}
	}

	switch hc.CredentialsFormat {
	case config.FormatGitRemote:
		match := gitRemoteTokenPattern.FindSubmatch(data)
		if match == nil {
			return "", &auth.CredentialReadError{
				Path:  path,
				Cause: fmt.Errorf("no x-token-auth remote URL found"),
			}
		}
		return string(match[1]), nil
	default:
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", &auth.CredentialReadError{Path: path, Cause: fmt.Errorf("credential file is empty")}
		}
		return token, nil
	}
}
