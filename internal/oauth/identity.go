// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/atlasbridge/atlasbridge/internal/auth"
)

// resolveIdentity fetches the authenticated user and the cloud tenants the
// grant covers. Jira exposes both through the api.atlassian.com gateway;
// Bitbucket has a single implicit tenant.
func (d *Dancer) resolveIdentity(ctx context.Context, strategy *Strategy, accessToken string) (auth.UserInfo, []auth.AccessibleResource, error) {
	switch strategy.Product.Key {
	case auth.ProductJira.Key:
		return d.resolveJiraIdentity(ctx, strategy, accessToken)
	case auth.ProductBitbucket.Key:
		return d.resolveBitbucketIdentity(ctx, strategy, accessToken)
	default:
		return auth.UserInfo{}, nil, fmt.Errorf("atlasbridge oauth: unknown product %q", strategy.Product.Key)
	}
}

func (d *Dancer) resolveJiraIdentity(ctx context.Context, strategy *Strategy, accessToken string) (auth.UserInfo, []auth.AccessibleResource, error) {
	meBody, err := d.authorizedGet(ctx, strategy.APIBaseURL+"/me", accessToken)
	if err != nil {
		return auth.UserInfo{}, nil, fmt.Errorf("failed to fetch user profile: %w", err)
	}
	me := gjson.ParseBytes(meBody)
	user := auth.UserInfo{
		ID:          me.Get("account_id").String(),
		DisplayName: me.Get("name").String(),
		Email:       me.Get("email").String(),
		AvatarURL:   me.Get("picture").String(),
	}

	resBody, err := d.authorizedGet(ctx, strategy.APIBaseURL+"/oauth/token/accessible-resources", accessToken)
	if err != nil {
		return auth.UserInfo{}, nil, fmt.Errorf("failed to fetch accessible resources: %w", err)
	}

	var resources []auth.AccessibleResource
	gjson.ParseBytes(resBody).ForEach(func(_, entry gjson.Result) bool {
		resource := auth.AccessibleResource{
			ID:        entry.Get("id").String(),
			Name:      entry.Get("name").String(),
			AvatarURL: entry.Get("avatarUrl").String(),
			URL:       entry.Get("url").String(),
		}
		entry.Get("scopes").ForEach(func(_, scope gjson.Result) bool {
			resource.Scopes = append(resource.Scopes, scope.String())
			return true
		})
		resources = append(resources, resource)
		return true
	})

	return user, resources, nil
}

func (d *Dancer) resolveBitbucketIdentity(ctx context.Context, strategy *Strategy, accessToken string) (auth.UserInfo, []auth.AccessibleResource, error) {
	userBody, err := d.authorizedGet(ctx, strategy.APIBaseURL+"/user", accessToken)
	if err != nil {
		return auth.UserInfo{}, nil, fmt.Errorf("failed to fetch user profile: %w", err)
	}
	profile := gjson.ParseBytes(userBody)
	user := auth.UserInfo{
		ID:          profile.Get("account_id").String(),
		DisplayName: profile.Get("display_name").String(),
		AvatarURL:   profile.Get("links.avatar.href").String(),
	}

	// The primary confirmed email lives behind a separate endpoint.
	if emailBody, err := d.authorizedGet(ctx, strategy.APIBaseURL+"/user/emails", accessToken); err == nil {
		gjson.GetBytes(emailBody, "values").ForEach(func(_, entry gjson.Result) bool {
			if entry.Get("is_primary").Bool() {
				user.Email = entry.Get("email").String()
				return false
			}
			return true
		})
	}

	host := "bitbucket.org"
	if strategy.Provider == auth.BitbucketCloudStaging {
		host = "staging.bb-inf.net"
	}
	resources := []auth.AccessibleResource{{
		ID:   host,
		Name: host,
		URL:  "https://" + host,
	}}

	return user, resources, nil
}

func (d *Dancer) authorizedGet(ctx context.Context, url, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}
	return body, nil
}
